package resilience

import (
	"errors"
	"fmt"
	"time"
)

// ErrNoKeysAvailable is returned when every registered credential for a
// provider is in cooldown. Terminal for the current attempt; callers take
// their degraded path.
var ErrNoKeysAvailable = errors.New("resilience: no keys available")

// ErrCircuitOpen is returned before any attempt is made when the provider's
// circuit breaker is open.
var ErrCircuitOpen = errors.New("resilience: circuit open")

// RateLimitError signals a provider rate-limit response (HTTP 429 or
// equivalent). The key that hit it enters cooldown immediately.
type RateLimitError struct {
	Provider   string
	RetryAfter time.Duration
}

func (e *RateLimitError) Error() string {
	if e.RetryAfter > 0 {
		return fmt.Sprintf("provider %s rate limited (retry after %v)", e.Provider, e.RetryAfter)
	}
	return fmt.Sprintf("provider %s rate limited", e.Provider)
}

// IsRateLimit checks whether an error carries a rate-limit signal.
func IsRateLimit(err error) bool {
	var rle *RateLimitError
	return errors.As(err, &rle)
}

// Unavailable reports whether an error means the provider cannot be called
// at all right now (circuit open or all keys cooling down). Callers must
// have a degraded path for this condition.
func Unavailable(err error) bool {
	return errors.Is(err, ErrCircuitOpen) || errors.Is(err, ErrNoKeysAvailable)
}
