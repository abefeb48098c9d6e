package llm

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/horus-ai-bot-go/internal/config"
	"github.com/horus-ai-bot-go/internal/models"
	"github.com/horus-ai-bot-go/internal/ratelimit"
)

func newTestOllama(t *testing.T, handler http.HandlerFunc) *Ollama {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	logger := logrus.New()
	logger.SetLevel(logrus.PanicLevel)

	cfg := &config.ProviderConfig{
		BaseURL: server.URL,
		Model:   "test-model",
		Timeout: 5 * time.Second,
	}
	bucket := ratelimit.NewTokenBucket(100, 10, nil)
	return NewOllama(cfg, bucket, nil, logger)
}

func TestOllamaGenerateText(t *testing.T) {
	var captured ollamaRequest
	o := newTestOllama(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/chat" {
			t.Errorf("Unexpected path %s", r.URL.Path)
		}
		if err := json.NewDecoder(r.Body).Decode(&captured); err != nil {
			t.Errorf("Failed to decode request: %v", err)
		}
		w.Write([]byte(`{"message":{"content":"hello back"}}`))
	})

	history := []models.ChatMessage{
		{Role: models.RoleUser, Content: "earlier question", Timestamp: time.Now().Add(-time.Minute)},
		{Role: models.RoleAssistant, Content: "earlier answer", Timestamp: time.Now()},
	}

	reply, err := o.GenerateText(context.Background(), "hi", "be brief", history)
	if err != nil {
		t.Fatalf("GenerateText failed: %v", err)
	}
	if reply != "hello back" {
		t.Errorf("Expected %q, got %q", "hello back", reply)
	}

	roles := make([]string, 0, len(captured.Messages))
	for _, m := range captured.Messages {
		roles = append(roles, m.Role)
	}
	want := []string{"system", "user", "assistant", "user"}
	if len(roles) != len(want) {
		t.Fatalf("Expected %d messages, got %v", len(want), roles)
	}
	for i := range want {
		if roles[i] != want[i] {
			t.Errorf("Message %d: expected role %q, got %q", i, want[i], roles[i])
		}
	}
}

func TestOllamaAudioIsCapabilityError(t *testing.T) {
	o := newTestOllama(t, func(w http.ResponseWriter, r *http.Request) {
		t.Error("Audio requests must not reach the backend")
	})

	audio := models.Media{MIMEType: "audio/ogg", Data: []byte{1, 2, 3}}
	_, err := o.GenerateWithAudio(context.Background(), audio, "transcribe", "", nil)
	if err == nil {
		t.Fatal("Expected capability error")
	}
	if !IsCapability(err) {
		t.Errorf("Expected a capability error, got %v", err)
	}
	if IsTransient(err) {
		t.Error("Capability errors must not trigger fallback")
	}
}

func TestOllamaAPIErrorIsPermanent(t *testing.T) {
	o := newTestOllama(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"error":"model not found"}`))
	})

	_, err := o.GenerateText(context.Background(), "hi", "", nil)
	if err == nil {
		t.Fatal("Expected error from the api error field")
	}
	if IsTransient(err) {
		t.Errorf("API errors must not be transient: %v", err)
	}
}

func TestOllamaServerErrorIsTransient(t *testing.T) {
	o := newTestOllama(t, func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "loading model", http.StatusInternalServerError)
	})

	_, err := o.GenerateText(context.Background(), "hi", "", nil)
	if !IsTransient(err) {
		t.Errorf("5xx should be transient, got %v", err)
	}
}
