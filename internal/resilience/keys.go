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
	defaultCooldown       = 10 * time.Minute
	defaultErrorThreshold = 5
	errorCounterWindow    = time.Hour
)

// Key identifies one credential within a provider's pool.
type Key struct {
	Provider string
	Index    int
	Value    string
}

// KeyManager rotates through registered credential pools per provider.
// Cooldown flags and rolling error counters live in the shared cache so all
// workers see the same key state; losing that state degrades to "assume
// available", which self-corrects on the next failure.
type KeyManager struct {
	cache          cache.Cache
	pools          map[string][]string
	cooldown       time.Duration
	errorThreshold int
	logger         *slog.Logger
}

// NewKeyManager creates a key manager backed by the shared cache.
func NewKeyManager(c cache.Cache, logger *slog.Logger) *KeyManager {
	return &KeyManager{
		cache:          c,
		pools:          make(map[string][]string),
		cooldown:       defaultCooldown,
		errorThreshold: defaultErrorThreshold,
		logger:         logger,
	}
}

// Register adds a provider's credential pool. An empty pool is a
// configuration error and fails immediately.
func (m *KeyManager) Register(provider string, keys []string) error {
	if len(keys) == 0 {
		return fmt.Errorf("no credentials configured for provider %s", provider)
	}
	m.pools[provider] = keys
	return nil
}

// GetKey returns the first credential for the provider that is not in
// cooldown, skipping any indexes in tried.
func (m *KeyManager) GetKey(ctx context.Context, provider string, tried map[int]bool) (Key, error) {
	pool, ok := m.pools[provider]
	if !ok {
		return Key{}, fmt.Errorf("unknown provider %s", provider)
	}

	for idx, value := range pool {
		if tried[idx] {
			continue
		}
		if m.inCooldown(ctx, provider, idx) {
			continue
		}
		return Key{Provider: provider, Index: idx, Value: value}, nil
	}

	return Key{}, fmt.Errorf("provider %s: %w", provider, ErrNoKeysAvailable)
}

// ReportFailure updates key state after a failed call. Rate-limit signals
// trigger immediate cooldown; other errors count toward the hourly rolling
// threshold.
func (m *KeyManager) ReportFailure(ctx context.Context, key Key, callErr error) {
	if IsRateLimit(callErr) {
		cooldown := m.cooldown
		var rle *RateLimitError
		if errors.As(callErr, &rle) && rle.RetryAfter > 0 {
			cooldown = rle.RetryAfter
		}
		m.startCooldown(ctx, key, cooldown)
		return
	}

	count, err := m.cache.Incr(ctx, errorCounterKey(key.Provider, key.Index), errorCounterWindow)
	if err != nil {
		m.logger.Warn("failed to update key error counter",
			"provider", key.Provider,
			"key_index", key.Index,
			"error", err,
		)
		return
	}

	if count >= int64(m.errorThreshold) {
		m.startCooldown(ctx, key, m.cooldown)
	}
}

// ReportSuccess clears the key's rolling error counter.
func (m *KeyManager) ReportSuccess(ctx context.Context, key Key) {
	if err := m.cache.Delete(ctx, errorCounterKey(key.Provider, key.Index)); err != nil {
		m.logger.Warn("failed to clear key error counter",
			"provider", key.Provider,
			"key_index", key.Index,
			"error", err,
		)
	}
}

func (m *KeyManager) inCooldown(ctx context.Context, provider string, idx int) bool {
	_, err := m.cache.Get(ctx, cooldownKey(provider, idx))
	if errors.Is(err, cache.ErrCacheMiss) {
		return false
	}
	if err != nil {
		// Cache unavailable: assume the key is usable.
		m.logger.Warn("failed to read key cooldown state", "provider", provider, "error", err)
		return false
	}
	return true
}

func (m *KeyManager) startCooldown(ctx context.Context, key Key, cooldown time.Duration) {
	m.logger.Warn("key entering cooldown",
		"provider", key.Provider,
		"key_index", key.Index,
		"cooldown", cooldown,
	)

	if err := m.cache.Set(ctx, cooldownKey(key.Provider, key.Index), "1", cooldown); err != nil {
		m.logger.Warn("failed to record key cooldown",
			"provider", key.Provider,
			"key_index", key.Index,
			"error", err,
		)
	}
	if err := m.cache.Delete(ctx, errorCounterKey(key.Provider, key.Index)); err != nil {
		m.logger.Warn("failed to reset key error counter",
			"provider", key.Provider,
			"key_index", key.Index,
			"error", err,
		)
	}
}

func cooldownKey(provider string, idx int) string {
	return fmt.Sprintf("keys:cooldown:%s:%d", provider, idx)
}

func errorCounterKey(provider string, idx int) string {
	return fmt.Sprintf("keys:errors:%s:%d", provider, idx)
}
