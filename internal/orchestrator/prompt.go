package orchestrator

import (
	"fmt"
	"strings"

	"github.com/horus-ai-bot-go/internal/clock"
	"github.com/horus-ai-bot-go/internal/models"
)

// InstructionBuilder assembles the system instruction and the augmented user
// prompt sent to the providers.
type InstructionBuilder struct {
	persona string
	clk     clock.Clock
}

func NewInstructionBuilder(persona string, clk clock.Clock) *InstructionBuilder {
	return &InstructionBuilder{persona: persona, clk: clk}
}

// SystemInstruction is the persona plus the standing rules the model follows
// on every turn, including the fact-disclosure protocol.
func (b *InstructionBuilder) SystemInstruction() string {
	var sb strings.Builder
	if b.persona != "" {
		sb.WriteString(b.persona)
		sb.WriteString("\n\n")
	}
	sb.WriteString("Answer in the language the user writes in.\n")
	sb.WriteString("Keep answers concise and avoid repeating the question back.\n")
	sb.WriteString("When the user discloses a lasting personal fact (a preference, a name, ")
	sb.WriteString("a plan, a relationship), restate it wrapped in <store_memory></store_memory> ")
	sb.WriteString("tags at the end of your reply. The tags are removed before the user sees ")
	sb.WriteString("the reply, so never reference them in the visible text.\n")
	return sb.String()
}

// UserPrompt augments the raw prompt with the current date, the requesting
// user's identity and the retrieved memories.
func (b *InstructionBuilder) UserPrompt(prompt string, user models.UserInfo, memories []models.MemoryFact) string {
	var sb strings.Builder

	fmt.Fprintf(&sb, "Current date: %s\n", b.clk.Now().UTC().Format("2006-01-02"))

	if user.ID != "" {
		sb.WriteString("You are talking to: ")
		sb.WriteString(user.FirstName)
		if user.Username != "" {
			fmt.Fprintf(&sb, " (@%s)", user.Username)
		}
		sb.WriteString("\n")
	}

	if len(memories) > 0 {
		sb.WriteString("\nWhat you remember about this user:\n")
		for _, fact := range memories {
			sb.WriteString("<memory>")
			sb.WriteString(fact.Content)
			if !fact.CreatedAt.IsZero() {
				fmt.Fprintf(&sb, " (noted %s)", fact.CreatedAt.Format("2006-01-02"))
			}
			sb.WriteString("</memory>\n")
		}
	}

	sb.WriteString("\n")
	sb.WriteString(prompt)
	return sb.String()
}
