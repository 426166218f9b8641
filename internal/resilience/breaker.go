package resilience

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/storywire/storywire/internal/cache"
)

const (
	defaultFailureThreshold = 8
	defaultFailureWindow    = 2 * time.Minute
	defaultOpenDuration     = 5 * time.Minute
)

// CircuitBreaker tracks provider-level failures in a rolling window and
// fails fast once a provider is deemed unhealthy. State is cache-backed and
// shared across workers; losing it degrades to closed.
type CircuitBreaker struct {
	cache            cache.Cache
	failureThreshold int
	failureWindow    time.Duration
	openDuration     time.Duration
	logger           *slog.Logger
}

// NewCircuitBreaker creates a cache-backed circuit breaker with defaults.
func NewCircuitBreaker(c cache.Cache, logger *slog.Logger) *CircuitBreaker {
	return &CircuitBreaker{
		cache:            c,
		failureThreshold: defaultFailureThreshold,
		failureWindow:    defaultFailureWindow,
		openDuration:     defaultOpenDuration,
		logger:           logger,
	}
}

// IsOpen reports whether callers should skip the provider entirely right now.
func (b *CircuitBreaker) IsOpen(ctx context.Context, provider string) bool {
	_, err := b.cache.Get(ctx, openFlagKey(provider))
	if errors.Is(err, cache.ErrCacheMiss) {
		return false
	}
	if err != nil {
		// Cache unavailable: assume closed so calls can still be attempted.
		b.logger.Warn("failed to read circuit state", "provider", provider, "error", err)
		return false
	}
	return true
}

// RecordFailure adds one failure to the rolling window and opens the circuit
// when the threshold is crossed.
func (b *CircuitBreaker) RecordFailure(ctx context.Context, provider string) {
	count, err := b.cache.Incr(ctx, failureCounterKey(provider), b.failureWindow)
	if err != nil {
		b.logger.Warn("failed to record circuit failure", "provider", provider, "error", err)
		return
	}

	if count < int64(b.failureThreshold) {
		return
	}

	b.logger.Error("circuit opening",
		"provider", provider,
		"failures", count,
		"window", b.failureWindow,
		"open_for", b.openDuration,
	)

	if err := b.cache.Set(ctx, openFlagKey(provider), "1", b.openDuration); err != nil {
		b.logger.Warn("failed to open circuit", "provider", provider, "error", err)
	}
	if err := b.cache.Delete(ctx, failureCounterKey(provider)); err != nil {
		b.logger.Warn("failed to reset circuit failure counter", "provider", provider, "error", err)
	}
}

// RecordSuccess clears the provider's rolling failure counter.
func (b *CircuitBreaker) RecordSuccess(ctx context.Context, provider string) {
	if err := b.cache.Delete(ctx, failureCounterKey(provider)); err != nil {
		b.logger.Warn("failed to clear circuit failure counter", "provider", provider, "error", err)
	}
}

func openFlagKey(provider string) string {
	return fmt.Sprintf("circuit:open:%s", provider)
}

func failureCounterKey(provider string) string {
	return fmt.Sprintf("circuit:failures:%s", provider)
}
