package tools

import (
	"context"
	"errors"
	"testing"

	"github.com/sirupsen/logrus"

	"github.com/horus-ai-bot-go/internal/models"
)

type stubTool struct {
	name   string
	result string
	err    error
}

func (s *stubTool) Name() string        { return s.name }
func (s *stubTool) Description() string { return "stub" }
func (s *stubTool) Parameters() ParameterSchema {
	return ParameterSchema{Type: "object", Properties: map[string]Property{}}
}
func (s *stubTool) Execute(ctx context.Context, args map[string]models.Value) (string, error) {
	return s.result, s.err
}

func newTestRegistry() *Registry {
	logger := logrus.New()
	logger.SetLevel(logrus.PanicLevel)
	return NewRegistry(nil, logger)
}

func TestExecuteRegisteredTool(t *testing.T) {
	registry := newTestRegistry()
	registry.Register("echo", &stubTool{name: "echo", result: "hello"})

	result, err := registry.Execute(context.Background(), "echo", nil)
	if err != nil {
		t.Fatalf("Execute failed: %v", err)
	}
	if result != "hello" {
		t.Errorf("Expected %q, got %q", "hello", result)
	}
}

func TestExecuteUnknownTool(t *testing.T) {
	registry := newTestRegistry()

	_, err := registry.Execute(context.Background(), "missing", nil)
	if !errors.Is(err, ErrToolNotFound) {
		t.Errorf("Expected ErrToolNotFound, got %v", err)
	}
}

func TestExecutorErrorPropagatesUnmodified(t *testing.T) {
	registry := newTestRegistry()
	boom := errors.New("executor failed")
	registry.Register("broken", &stubTool{name: "broken", err: boom})

	_, err := registry.Execute(context.Background(), "broken", nil)
	if !errors.Is(err, boom) {
		t.Errorf("Expected the executor error unmodified, got %v", err)
	}
}

func TestLastRegistrationWins(t *testing.T) {
	registry := newTestRegistry()
	registry.Register("dup", &stubTool{name: "dup", result: "first"})
	registry.Register("dup", &stubTool{name: "dup", result: "second"})

	result, err := registry.Execute(context.Background(), "dup", nil)
	if err != nil {
		t.Fatalf("Execute failed: %v", err)
	}
	if result != "second" {
		t.Errorf("Expected last registration to win, got %q", result)
	}
}

func TestDeclarationsKeepRegistrationOrder(t *testing.T) {
	registry := newTestRegistry()
	registry.Register("alpha", &stubTool{name: "alpha"})
	registry.Register("beta", &stubTool{name: "beta"})
	registry.Register("alpha", &stubTool{name: "alpha"}) // re-register keeps position

	decls := registry.Declarations()
	if len(decls) != 2 {
		t.Fatalf("Expected 2 declarations, got %d", len(decls))
	}
	if decls[0].Name != "alpha" || decls[1].Name != "beta" {
		t.Errorf("Unexpected declaration order: %s, %s", decls[0].Name, decls[1].Name)
	}
}
