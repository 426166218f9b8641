package resilience

import (
	"context"
	"fmt"
	"log/slog"
)

const defaultMaxAttempts = 3

// Operation is a single provider call executed with one credential.
type Operation func(ctx context.Context, apiKey string) error

// Executor is the entry point for all outbound provider calls: it fails
// fast when the circuit is open, rotates keys across bounded attempts, and
// feeds the outcome of every attempt back into key and circuit state.
type Executor struct {
	keys        *KeyManager
	breaker     *CircuitBreaker
	maxAttempts int
	logger      *slog.Logger
}

// NewExecutor wires the key manager and circuit breaker together.
func NewExecutor(keys *KeyManager, breaker *CircuitBreaker, logger *slog.Logger) *Executor {
	return &Executor{
		keys:        keys,
		breaker:     breaker,
		maxAttempts: defaultMaxAttempts,
		logger:      logger,
	}
}

// Execute runs the operation with up to maxAttempts distinct keys. A
// rate-limited or failing key is reported and the next key is tried;
// exhausting all attempts returns a single aggregated error carrying the
// last underlying cause.
func (e *Executor) Execute(ctx context.Context, provider string, op Operation) error {
	if e.breaker.IsOpen(ctx, provider) {
		return fmt.Errorf("provider %s: %w", provider, ErrCircuitOpen)
	}

	tried := make(map[int]bool, e.maxAttempts)
	var lastErr error

	for attempt := 0; attempt < e.maxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return fmt.Errorf("provider %s call cancelled: %w", provider, err)
		}

		key, err := e.keys.GetKey(ctx, provider, tried)
		if err != nil {
			if lastErr != nil {
				return fmt.Errorf("provider %s: attempts exhausted: %w", provider, lastErr)
			}
			return err
		}
		tried[key.Index] = true

		err = op(ctx, key.Value)
		if err == nil {
			e.keys.ReportSuccess(ctx, key)
			e.breaker.RecordSuccess(ctx, provider)
			return nil
		}

		lastErr = err
		e.logger.Warn("provider call failed",
			"provider", provider,
			"key_index", key.Index,
			"attempt", attempt+1,
			"error", err,
		)
		e.keys.ReportFailure(ctx, key, err)
		e.breaker.RecordFailure(ctx, provider)
	}

	return fmt.Errorf("provider %s failed after %d attempts: %w", provider, e.maxAttempts, lastErr)
}
