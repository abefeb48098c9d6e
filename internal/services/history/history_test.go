package history

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/horus-ai-bot-go/internal/clock"
	"github.com/horus-ai-bot-go/internal/models"
)

func TestAppendAndRecentOrder(t *testing.T) {
	store := NewMemoryStore(nil)
	ctx := context.Background()

	if err := store.Append(ctx, models.RoleUser, "hello", "42"); err != nil {
		t.Fatalf("Append failed: %v", err)
	}
	if err := store.Append(ctx, models.RoleAssistant, "hi there", "42"); err != nil {
		t.Fatalf("Append failed: %v", err)
	}

	messages, err := store.Recent(ctx, "42", 10)
	if err != nil {
		t.Fatalf("Recent failed: %v", err)
	}
	if len(messages) != 2 {
		t.Fatalf("Expected 2 messages, got %d", len(messages))
	}
	if messages[0].Role != models.RoleUser || messages[0].Content != "hello" {
		t.Errorf("Unexpected first message: %+v", messages[0])
	}
	if messages[1].Role != models.RoleAssistant || messages[1].Content != "hi there" {
		t.Errorf("Unexpected second message: %+v", messages[1])
	}
}

func TestRecentWindowKeepsLatest(t *testing.T) {
	store := NewMemoryStore(nil)
	ctx := context.Background()

	for i := 0; i < 10; i++ {
		if err := store.Append(ctx, models.RoleUser, fmt.Sprintf("msg-%d", i), "42"); err != nil {
			t.Fatalf("Append failed: %v", err)
		}
	}

	messages, err := store.Recent(ctx, "42", 3)
	if err != nil {
		t.Fatalf("Recent failed: %v", err)
	}
	if len(messages) != 3 {
		t.Fatalf("Expected 3 messages, got %d", len(messages))
	}
	if messages[0].Content != "msg-7" || messages[2].Content != "msg-9" {
		t.Errorf("Window returned wrong slice: %v ... %v", messages[0].Content, messages[2].Content)
	}
}

func TestRecentDefaultsWindow(t *testing.T) {
	store := NewMemoryStore(nil)
	ctx := context.Background()

	for i := 0; i < DefaultWindow+10; i++ {
		if err := store.Append(ctx, models.RoleUser, fmt.Sprintf("msg-%d", i), "42"); err != nil {
			t.Fatalf("Append failed: %v", err)
		}
	}

	messages, err := store.Recent(ctx, "42", 0)
	if err != nil {
		t.Fatalf("Recent failed: %v", err)
	}
	if len(messages) != DefaultWindow {
		t.Errorf("Expected %d messages, got %d", DefaultWindow, len(messages))
	}
}

func TestRecentEmptyLog(t *testing.T) {
	store := NewMemoryStore(nil)

	messages, err := store.Recent(context.Background(), "nobody", 5)
	if err != nil {
		t.Fatalf("Recent failed: %v", err)
	}
	if len(messages) != 0 {
		t.Errorf("Expected empty log, got %d messages", len(messages))
	}
}

func TestClearRemovesOnlyThatUser(t *testing.T) {
	store := NewMemoryStore(nil)
	ctx := context.Background()

	_ = store.Append(ctx, models.RoleUser, "a", "1")
	_ = store.Append(ctx, models.RoleUser, "b", "2")

	if err := store.Clear(ctx, "1"); err != nil {
		t.Fatalf("Clear failed: %v", err)
	}

	one, _ := store.Recent(ctx, "1", 10)
	two, _ := store.Recent(ctx, "2", 10)
	if len(one) != 0 {
		t.Errorf("Expected cleared log for user 1, got %d messages", len(one))
	}
	if len(two) != 1 {
		t.Errorf("Expected user 2 log untouched, got %d messages", len(two))
	}
}

func TestAppendStampsFromClock(t *testing.T) {
	start := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	clk := clock.NewFake(start)
	store := NewMemoryStore(clk)
	ctx := context.Background()

	_ = store.Append(ctx, models.RoleUser, "first", "42")
	clk.Advance(time.Minute)
	_ = store.Append(ctx, models.RoleAssistant, "second", "42")

	messages, err := store.Recent(ctx, "42", 10)
	if err != nil {
		t.Fatalf("Recent failed: %v", err)
	}
	if !messages[0].Timestamp.Equal(start) {
		t.Errorf("Expected first timestamp %v, got %v", start, messages[0].Timestamp)
	}
	if !messages[1].Timestamp.Equal(start.Add(time.Minute)) {
		t.Errorf("Expected second timestamp %v, got %v", start.Add(time.Minute), messages[1].Timestamp)
	}
}

func TestAppendBatchPreservesOrder(t *testing.T) {
	store := NewMemoryStore(nil)
	ctx := context.Background()

	batch := []models.ChatMessage{
		{Role: models.RoleUser, Content: "first"},
		{Role: models.RoleAssistant, Content: "second"},
		{Role: models.RoleUser, Content: "third"},
	}
	if err := store.AppendBatch(ctx, "7", batch); err != nil {
		t.Fatalf("AppendBatch failed: %v", err)
	}

	messages, err := store.Recent(ctx, "7", 10)
	if err != nil {
		t.Fatalf("Recent failed: %v", err)
	}
	if len(messages) != 3 {
		t.Fatalf("Expected 3 messages, got %d", len(messages))
	}
	for i, want := range []string{"first", "second", "third"} {
		if messages[i].Content != want {
			t.Errorf("Message %d: expected %q, got %q", i, want, messages[i].Content)
		}
	}
}
