package llm

import (
	"context"

	"github.com/horus-ai-bot-go/internal/models"
	"github.com/sirupsen/logrus"
)

// FallbackMetrics records fallback hops. Satisfied by middleware.Metrics.
type FallbackMetrics interface {
	RecordProviderFallback(from, to string)
}

// ThrottleMetrics records blocking waits on a provider token bucket.
type ThrottleMetrics interface {
	RecordThrottleWait(provider string)
}

// FallbackProvider retries a request against the secondary provider when the
// primary fails with a transient error. One hop only: a secondary failure
// propagates unmodified, and capability or tool errors never fall back.
type FallbackProvider struct {
	primary   Provider
	secondary Provider
	metrics   FallbackMetrics
	logger    *logrus.Logger
}

func NewFallbackProvider(primary, secondary Provider, metrics FallbackMetrics, logger *logrus.Logger) *FallbackProvider {
	return &FallbackProvider{
		primary:   primary,
		secondary: secondary,
		metrics:   metrics,
		logger:    logger,
	}
}

func (f *FallbackProvider) Name() string { return f.primary.Name() }

func (f *FallbackProvider) GenerateText(ctx context.Context, prompt, systemInstruction string, history []models.ChatMessage) (string, error) {
	text, err := f.primary.GenerateText(ctx, prompt, systemInstruction, history)
	if err == nil || !IsTransient(err) {
		return text, err
	}
	f.logFallback(err)
	return f.secondary.GenerateText(ctx, prompt, systemInstruction, history)
}

func (f *FallbackProvider) GenerateWithImage(ctx context.Context, image models.Media, prompt, systemInstruction string, history []models.ChatMessage) (string, error) {
	text, err := f.primary.GenerateWithImage(ctx, image, prompt, systemInstruction, history)
	if err == nil || !IsTransient(err) {
		return text, err
	}
	f.logFallback(err)
	return f.secondary.GenerateWithImage(ctx, image, prompt, systemInstruction, history)
}

func (f *FallbackProvider) GenerateWithAudio(ctx context.Context, audio models.Media, prompt, systemInstruction string, history []models.ChatMessage) (string, error) {
	text, err := f.primary.GenerateWithAudio(ctx, audio, prompt, systemInstruction, history)
	if err == nil || !IsTransient(err) {
		return text, err
	}
	f.logFallback(err)
	return f.secondary.GenerateWithAudio(ctx, audio, prompt, systemInstruction, history)
}

func (f *FallbackProvider) logFallback(err error) {
	f.logger.WithFields(logrus.Fields{
		"primary":   f.primary.Name(),
		"secondary": f.secondary.Name(),
		"error":     err.Error(),
	}).Warn("Primary provider failed, falling back")

	if f.metrics != nil {
		f.metrics.RecordProviderFallback(f.primary.Name(), f.secondary.Name())
	}
}
