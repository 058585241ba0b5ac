package channel

import (
	cryptorand "crypto/rand"
	"math"
	"math/big"
	"time"
)

// BackoffConfig controls the delay between reconnect attempts. Delay is a
// pure function of the attempt counter, which keeps retry timing testable.
type BackoffConfig struct {
	// Initial is the jitter window for the first retry: the delay is drawn
	// uniformly from [0, Initial)
	Initial time.Duration

	// Min is the base delay for exponential growth on later retries
	Min time.Duration

	// Max caps the delay regardless of attempt count
	Max time.Duration

	// Growth is the exponential growth factor applied per attempt
	Growth float64
}

// DefaultBackoffConfig returns the default backoff policy: a short random
// first retry, growth slightly above the golden ratio, capped at a minute.
func DefaultBackoffConfig() BackoffConfig {
	return BackoffConfig{
		Initial: 5 * time.Second,
		Min:     1920 * time.Millisecond,
		Max:     60 * time.Second,
		Growth:  1.618,
	}
}

// Delay returns the wait before retry number attempt (zero-based). The
// first retry is jittered so a fleet of clients losing the same endpoint
// does not reconnect in lockstep; later retries grow exponentially.
func (c BackoffConfig) Delay(attempt int) time.Duration {
	if attempt <= 0 {
		return time.Duration(secureRandFloat64() * float64(c.Initial))
	}

	delay := float64(c.Min) * math.Pow(c.Growth, float64(attempt))
	if delay > float64(c.Max) {
		return c.Max
	}
	return time.Duration(delay)
}

// secureRandFloat64 generates a cryptographically secure random float64 in
// [0, 1). Falls back to the midpoint if the system source fails.
func secureRandFloat64() float64 {
	max := big.NewInt(1 << 53)
	n, err := cryptorand.Int(cryptorand.Reader, max)
	if err != nil {
		return 0.5
	}
	return float64(n.Int64()) / float64(1<<53)
}
