package worker

import (
	"math"
	"math/rand"
	"time"
)

//nolint:gosec
var randFloat = rand.New(rand.NewSource(time.Now().UnixNano())).Float64

// BackoffStrategy returns how long to wait before a given retry attempt.
type BackoffStrategy interface {
	Backoff(attempt int) time.Duration
}

type ConstBackoff struct {
	Delay time.Duration
}

func (c ConstBackoff) Backoff(int) time.Duration { return c.Delay }

// ExponentialBackoff grows the delay by Multiplier per attempt, capped at
// MaxDelay, with optional proportional jitter.
type ExponentialBackoff struct {
	Multiplier   float64
	InitialDelay time.Duration
	MaxDelay     time.Duration
	Jitter       float64
}

func (b *ExponentialBackoff) Backoff(attempt int) time.Duration {
	duration := b.InitialDelay * time.Duration(math.Pow(b.Multiplier, float64(attempt-1)))

	if b.MaxDelay > 0 && duration > b.MaxDelay {
		duration = b.MaxDelay
	}
	if b.Jitter > 0 {
		duration += time.Duration(randFloat() * b.Jitter * float64(duration))
	}

	return duration
}
