// Package orchestrator runs one generation request end to end: gather
// context, call the model, extract disclosed facts, persist the exchange.
package orchestrator

import (
	"context"

	"github.com/sirupsen/logrus"

	"github.com/horus-ai-bot-go/internal/models"
	"github.com/horus-ai-bot-go/internal/services/history"
	"github.com/horus-ai-bot-go/internal/services/llm"
)

// Request is one user turn. At most one of Image and Audio is set.
type Request struct {
	Prompt string
	User   models.UserInfo
	Image  *models.Media
	Audio  *models.Media
}

// MemorySource is the slice of memory.Provider the orchestrator reads from.
type MemorySource interface {
	RelevantMemories(ctx context.Context, userID, query string) []models.MemoryFact
	ArchiveWorkingMemory(ctx context.Context, userID, prompt string)
}

// ReplyProcessor strips disclosure tags and persists the extracted facts.
type ReplyProcessor interface {
	Process(ctx context.Context, reply string, user models.UserInfo) (string, []string)
}

// Orchestrator wires the pipeline stages together. The flow is strictly
// linear; a generation failure aborts the request with no partial writes,
// while context and persistence failures degrade without aborting.
type Orchestrator struct {
	provider  llm.Provider
	history   history.Store
	memories  MemorySource
	processor ReplyProcessor
	prompts   *InstructionBuilder
	window    int
	logger    *logrus.Logger
}

func New(provider llm.Provider, hist history.Store, memories MemorySource, processor ReplyProcessor, prompts *InstructionBuilder, window int, logger *logrus.Logger) *Orchestrator {
	return &Orchestrator{
		provider:  provider,
		history:   hist,
		memories:  memories,
		processor: processor,
		prompts:   prompts,
		window:    window,
		logger:    logger,
	}
}

// HandleGenerationRequest runs the pipeline and returns the cleaned reply.
func (o *Orchestrator) HandleGenerationRequest(ctx context.Context, req Request) (string, error) {
	userID := req.User.ID

	// Context gathering degrades to empty on failure.
	recent, err := o.history.Recent(ctx, userID, o.window)
	if err != nil {
		o.logger.WithError(err).WithField("user_id", userID).Error("Failed to load chat history")
		recent = nil
	}
	memories := o.memories.RelevantMemories(ctx, userID, req.Prompt)

	instruction := o.prompts.SystemInstruction()
	prompt := o.prompts.UserPrompt(req.Prompt, req.User, memories)

	var reply string
	switch {
	case req.Image != nil:
		reply, err = o.provider.GenerateWithImage(ctx, *req.Image, prompt, instruction, recent)
	case req.Audio != nil:
		reply, err = o.provider.GenerateWithAudio(ctx, *req.Audio, prompt, instruction, recent)
	default:
		reply, err = o.provider.GenerateText(ctx, prompt, instruction, recent)
	}
	if err != nil {
		// Nothing is persisted for a failed generation.
		return "", err
	}

	cleaned, stored := o.processor.Process(ctx, reply, req.User)
	if len(stored) > 0 {
		o.logger.WithFields(logrus.Fields{
			"user_id": userID,
			"facts":   len(stored),
		}).Info("Stored disclosed memories")
	}

	// The raw prompt goes into history, not the augmented one.
	if err := o.history.Append(ctx, models.RoleUser, req.Prompt, userID); err != nil {
		o.logger.WithError(err).WithField("user_id", userID).Error("Failed to persist user turn")
	}
	if err := o.history.Append(ctx, models.RoleAssistant, cleaned, userID); err != nil {
		o.logger.WithError(err).WithField("user_id", userID).Error("Failed to persist model turn")
	}

	o.memories.ArchiveWorkingMemory(ctx, userID, req.Prompt)

	return cleaned, nil
}
