package handlers

import (
	"errors"
	"fmt"
	"testing"

	"github.com/horus-ai-bot-go/internal/i18n"
)

func TestMediaErrorMessageForOversizeFile(t *testing.T) {
	cause := fmt.Errorf("%w: %d bytes", errMediaTooLarge, 25*1024*1024)
	if got := mediaErrorMessage(cause); got != i18n.MsgMediaTooLarge {
		t.Errorf("Oversize media should map to %q, got %q", i18n.MsgMediaTooLarge, got)
	}
}

func TestMediaErrorMessageForDownloadFailure(t *testing.T) {
	cause := errors.New("file download returned status 502")
	if got := mediaErrorMessage(cause); got != i18n.MsgMediaFailed {
		t.Errorf("Generic failures should map to %q, got %q", i18n.MsgMediaFailed, got)
	}
}

func TestResolveLanguage(t *testing.T) {
	supported := []string{"en", "pt"}

	if got := resolveLanguage("pt", supported, "en"); got != "pt" {
		t.Errorf("Expected supported code kept, got %q", got)
	}
	if got := resolveLanguage("fr", supported, "en"); got != "en" {
		t.Errorf("Expected fallback for unsupported code, got %q", got)
	}
	if got := resolveLanguage("", supported, "en"); got != "en" {
		t.Errorf("Expected fallback for empty code, got %q", got)
	}
}
