// Package ratelimit implements the token bucket that gates every outbound
// provider call. One bucket is shared by all requests hitting one provider.
package ratelimit

import (
	"context"
	"sync"
	"time"

	"github.com/horus-ai-bot-go/internal/clock"
)

// pollInterval is how often Wait re-attempts acquisition.
const pollInterval = 100 * time.Millisecond

// TokenBucket accrues capacity at a fixed rate up to a burst ceiling.
// Refill and consumption happen in a single critical section, so tokens
// never go negative and never exceed the configured burst.
type TokenBucket struct {
	mu              sync.Mutex
	tokens          float64
	maxBurst        int
	tokensPerSecond float64
	lastRefill      time.Time
	clk             clock.Clock
}

// NewTokenBucket creates a bucket that starts full.
func NewTokenBucket(tokensPerSecond float64, burst int, clk clock.Clock) *TokenBucket {
	if clk == nil {
		clk = clock.System()
	}
	return &TokenBucket{
		tokens:          float64(burst),
		maxBurst:        burst,
		tokensPerSecond: tokensPerSecond,
		lastRefill:      clk.Now(),
		clk:             clk,
	}
}

// TryAcquire consumes one token if available. Returning false is the sole
// "busy" signal; it never fails otherwise.
func (b *TokenBucket) TryAcquire() bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.refill()
	if b.tokens >= 1 {
		b.tokens--
		return true
	}
	return false
}

// Wait blocks until a token is acquired or the context is canceled, polling
// at a fixed interval. There is no upper bound on the wait besides the
// caller's context.
func (b *TokenBucket) Wait(ctx context.Context) error {
	for {
		if b.TryAcquire() {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(pollInterval):
		}
	}
}

// refill must be called with the mutex held.
func (b *TokenBucket) refill() {
	now := b.clk.Now()
	elapsed := now.Sub(b.lastRefill).Seconds()
	b.tokens += elapsed * b.tokensPerSecond
	if b.tokens > float64(b.maxBurst) {
		b.tokens = float64(b.maxBurst)
	}
	b.lastRefill = now
}
