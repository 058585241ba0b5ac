package channel

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestBackoffFirstRetryJittered(t *testing.T) {
	cfg := DefaultBackoffConfig()

	for i := 0; i < 200; i++ {
		delay := cfg.Delay(0)
		assert.GreaterOrEqual(t, delay, time.Duration(0))
		assert.Less(t, delay, cfg.Initial)
	}
}

func TestBackoffGrowth(t *testing.T) {
	cfg := BackoffConfig{
		Initial: 5 * time.Second,
		Min:     1920 * time.Millisecond,
		Max:     60 * time.Second,
		Growth:  1.618,
	}

	prev := cfg.Delay(1)
	for attempt := 2; attempt <= 8; attempt++ {
		delay := cfg.Delay(attempt)
		assert.Greater(t, delay, prev, "attempt %d should wait longer than attempt %d", attempt, attempt-1)
		prev = delay
	}
}

func TestBackoffDeterministicAfterFirst(t *testing.T) {
	cfg := DefaultBackoffConfig()

	for attempt := 1; attempt <= 10; attempt++ {
		assert.Equal(t, cfg.Delay(attempt), cfg.Delay(attempt),
			"delay for attempt %d must be a pure function of the attempt counter", attempt)
	}
}

func TestBackoffCappedAtMax(t *testing.T) {
	cfg := DefaultBackoffConfig()

	for _, attempt := range []int{20, 100, 1000} {
		assert.Equal(t, cfg.Max, cfg.Delay(attempt))
	}
}
