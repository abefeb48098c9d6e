package orchestrator

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/horus-ai-bot-go/internal/clock"
	"github.com/horus-ai-bot-go/internal/models"
	"github.com/horus-ai-bot-go/internal/services/history"
	"github.com/horus-ai-bot-go/internal/services/memory"
)

type fakeProvider struct {
	reply      string
	err        error
	lastPrompt string
	lastMode   string
}

func (f *fakeProvider) Name() string { return "fake" }

func (f *fakeProvider) GenerateText(ctx context.Context, prompt, systemInstruction string, hist []models.ChatMessage) (string, error) {
	f.lastPrompt = prompt
	f.lastMode = "text"
	return f.reply, f.err
}

func (f *fakeProvider) GenerateWithImage(ctx context.Context, image models.Media, prompt, systemInstruction string, hist []models.ChatMessage) (string, error) {
	f.lastPrompt = prompt
	f.lastMode = "image"
	return f.reply, f.err
}

func (f *fakeProvider) GenerateWithAudio(ctx context.Context, audio models.Media, prompt, systemInstruction string, hist []models.ChatMessage) (string, error) {
	f.lastPrompt = prompt
	f.lastMode = "audio"
	return f.reply, f.err
}

type fakeMemories struct {
	facts    []models.MemoryFact
	archived []string
}

func (f *fakeMemories) RelevantMemories(ctx context.Context, userID, query string) []models.MemoryFact {
	return f.facts
}

func (f *fakeMemories) ArchiveWorkingMemory(ctx context.Context, userID, prompt string) {
	f.archived = append(f.archived, prompt)
}

type recordingSink struct {
	stored []string
}

func (r *recordingSink) Store(ctx context.Context, userID, content, source string, metadata map[string]models.Value) bool {
	r.stored = append(r.stored, content)
	return true
}

func quietLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetLevel(logrus.PanicLevel)
	return logger
}

func newTestOrchestrator(provider *fakeProvider, sink *recordingSink, mems *fakeMemories) (*Orchestrator, *history.MemoryStore) {
	logger := quietLogger()
	hist := history.NewMemoryStore(nil)
	processor := memory.NewProcessor(sink, logger)
	prompts := NewInstructionBuilder("You are a helpful assistant.", clock.NewFake(time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)))
	return New(provider, hist, mems, processor, prompts, 50, logger), hist
}

func TestHandleGenerationRequestStripsTagsAndPersists(t *testing.T) {
	provider := &fakeProvider{reply: "Nice to meet you!<store_memory>User is called Ana</store_memory>"}
	sink := &recordingSink{}
	mems := &fakeMemories{}
	orch, hist := newTestOrchestrator(provider, sink, mems)

	reply, err := orch.HandleGenerationRequest(context.Background(), Request{
		Prompt: "Hi, I'm Ana",
		User:   models.UserInfo{ID: "42", FirstName: "Ana"},
	})
	if err != nil {
		t.Fatalf("HandleGenerationRequest failed: %v", err)
	}
	if reply != "Nice to meet you!" {
		t.Errorf("Expected cleaned reply, got %q", reply)
	}
	if len(sink.stored) != 1 || sink.stored[0] != "User is called Ana" {
		t.Errorf("Expected one stored fact, got %v", sink.stored)
	}

	messages, _ := hist.Recent(context.Background(), "42", 10)
	if len(messages) != 2 {
		t.Fatalf("Expected 2 history entries, got %d", len(messages))
	}
	if messages[0].Role != models.RoleUser || messages[0].Content != "Hi, I'm Ana" {
		t.Errorf("User turn stored wrong: %+v", messages[0])
	}
	if messages[1].Role != models.RoleAssistant || messages[1].Content != "Nice to meet you!" {
		t.Errorf("Model turn should be the cleaned reply: %+v", messages[1])
	}
	if len(mems.archived) != 1 || mems.archived[0] != "Hi, I'm Ana" {
		t.Errorf("Expected raw prompt archived, got %v", mems.archived)
	}
}

func TestHandleGenerationRequestNoPersistenceOnFailure(t *testing.T) {
	provider := &fakeProvider{err: errors.New("backend down")}
	sink := &recordingSink{}
	mems := &fakeMemories{}
	orch, hist := newTestOrchestrator(provider, sink, mems)

	_, err := orch.HandleGenerationRequest(context.Background(), Request{
		Prompt: "hello",
		User:   models.UserInfo{ID: "42"},
	})
	if err == nil {
		t.Fatal("Expected error from failed generation")
	}

	messages, _ := hist.Recent(context.Background(), "42", 10)
	if len(messages) != 0 {
		t.Errorf("Expected no history after failed generation, got %d entries", len(messages))
	}
	if len(mems.archived) != 0 {
		t.Errorf("Expected no working memory after failed generation, got %v", mems.archived)
	}
}

func TestHandleGenerationRequestAugmentsPrompt(t *testing.T) {
	provider := &fakeProvider{reply: "ok"}
	sink := &recordingSink{}
	mems := &fakeMemories{facts: []models.MemoryFact{
		{Content: "Prefers tea over coffee", CreatedAt: time.Date(2025, 1, 10, 0, 0, 0, 0, time.UTC)},
	}}
	orch, _ := newTestOrchestrator(provider, sink, mems)

	_, err := orch.HandleGenerationRequest(context.Background(), Request{
		Prompt: "what should I drink?",
		User:   models.UserInfo{ID: "42", FirstName: "Ana", Username: "ana"},
	})
	if err != nil {
		t.Fatalf("HandleGenerationRequest failed: %v", err)
	}

	for _, want := range []string{
		"Current date: 2025-03-01",
		"Ana (@ana)",
		"<memory>Prefers tea over coffee (noted 2025-01-10)</memory>",
		"what should I drink?",
	} {
		if !strings.Contains(provider.lastPrompt, want) {
			t.Errorf("Augmented prompt missing %q:\n%s", want, provider.lastPrompt)
		}
	}
}

func TestHandleGenerationRequestDispatchesMedia(t *testing.T) {
	provider := &fakeProvider{reply: "ok"}
	orch, _ := newTestOrchestrator(provider, &recordingSink{}, &fakeMemories{})

	media := &models.Media{Data: []byte{1, 2, 3}, MIMEType: "image/jpeg"}
	if _, err := orch.HandleGenerationRequest(context.Background(), Request{
		Prompt: "what is this?",
		User:   models.UserInfo{ID: "42"},
		Image:  media,
	}); err != nil {
		t.Fatalf("HandleGenerationRequest failed: %v", err)
	}
	if provider.lastMode != "image" {
		t.Errorf("Expected image dispatch, got %s", provider.lastMode)
	}

	audio := &models.Media{Data: []byte{4, 5}, MIMEType: "audio/ogg"}
	if _, err := orch.HandleGenerationRequest(context.Background(), Request{
		Prompt: "transcribe",
		User:   models.UserInfo{ID: "42"},
		Audio:  audio,
	}); err != nil {
		t.Fatalf("HandleGenerationRequest failed: %v", err)
	}
	if provider.lastMode != "audio" {
		t.Errorf("Expected audio dispatch, got %s", provider.lastMode)
	}
}

func TestHandleGenerationRequestStripsWithoutUser(t *testing.T) {
	provider := &fakeProvider{reply: "Hello<memory>anonymous fact</memory>"}
	sink := &recordingSink{}
	orch, _ := newTestOrchestrator(provider, sink, &fakeMemories{})

	reply, err := orch.HandleGenerationRequest(context.Background(), Request{Prompt: "hi"})
	if err != nil {
		t.Fatalf("HandleGenerationRequest failed: %v", err)
	}
	if reply != "Hello" {
		t.Errorf("Expected tags stripped for unknown user, got %q", reply)
	}
	if len(sink.stored) != 0 {
		t.Errorf("Expected nothing stored for unknown user, got %v", sink.stored)
	}
}
