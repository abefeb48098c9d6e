// Package llm dispatches generation requests to the configured model
// backends with rate limiting, tool calling and ordered fallback.
package llm

import (
	"context"
	"sort"

	"github.com/horus-ai-bot-go/internal/models"
)

// Provider produces a completion for a prompt plus chat history. History is
// always embedded in chronological order followed by the new user turn.
type Provider interface {
	Name() string
	GenerateText(ctx context.Context, prompt, systemInstruction string, history []models.ChatMessage) (string, error)
	GenerateWithImage(ctx context.Context, image models.Media, prompt, systemInstruction string, history []models.ChatMessage) (string, error)
	GenerateWithAudio(ctx context.Context, audio models.Media, prompt, systemInstruction string, history []models.ChatMessage) (string, error)
}

// chronological returns history sorted by timestamp ascending without
// mutating the caller's slice.
func chronological(history []models.ChatMessage) []models.ChatMessage {
	sorted := make([]models.ChatMessage, len(history))
	copy(sorted, history)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Timestamp.Before(sorted[j].Timestamp)
	})
	return sorted
}
