package llm

import (
	"errors"
	"fmt"
)

// Kind classifies a provider failure. The fallback chain decides whether to
// retry by inspecting the kind, never the concrete error type.
type Kind int

const (
	// KindTransient covers network failures and server-side errors (5xx);
	// the only kind that triggers fallback to the secondary provider.
	KindTransient Kind = iota + 1
	// KindCapability means the provider does not support the requested
	// modality. Never falls back.
	KindCapability
	// KindTool wraps a tool dispatch failure (unknown tool or executor
	// error). Never falls back: the tool may already have run side effects.
	KindTool
	// KindPermanent covers everything else (bad request, auth, malformed
	// response).
	KindPermanent
)

func (k Kind) String() string {
	switch k {
	case KindTransient:
		return "transient"
	case KindCapability:
		return "capability"
	case KindTool:
		return "tool"
	default:
		return "permanent"
	}
}

// Error is a classified provider failure.
type Error struct {
	Kind     Kind
	Provider string
	Err      error
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s provider: %s error: %v", e.Provider, e.Kind, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

func newError(kind Kind, provider string, err error) *Error {
	return &Error{Kind: kind, Provider: provider, Err: err}
}

// IsTransient reports whether err carries KindTransient.
func IsTransient(err error) bool { return kindOf(err) == KindTransient }

// IsCapability reports whether err carries KindCapability.
func IsCapability(err error) bool { return kindOf(err) == KindCapability }

func kindOf(err error) Kind {
	var perr *Error
	if errors.As(err, &perr) {
		return perr.Kind
	}
	return 0
}
