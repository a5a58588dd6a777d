package worker

import (
	"context"
	"errors"
	"fmt"
	"time"
)

var ErrInvalidJobHandler = errors.New("job handler is not valid")

// Default run options.
var (
	DefaultMaxAttempts                 = 3
	DefaultTimeout                     = 5 * time.Second
	DefaultBackoff     BackoffStrategy = &ExponentialBackoff{
		Multiplier:   1.6,
		InitialDelay: 1 * time.Second,
		MaxDelay:     15 * time.Minute,
		Jitter:       0.2,
	}
)

// JobHandler executes one job type. Handle is invoked by the Worker when a
// job is ready, bounded by JobOpts.
type JobHandler struct {
	Handle  JobFunc
	JobOpts JobOptions
}

// JobFunc is the job body. Returning RetryableError lets the worker retry
// with backoff; any other error or a panic marks the job dead.
type JobFunc func(context.Context, JobSpec) error

// JobOptions control the retry strategy and the execution timeout.
type JobOptions struct {
	MaxAttempts int
	Timeout     time.Duration
	BackoffStrategy
}

// Sanitize fills defaults for unspecified options.
// Returns ErrInvalidJobHandler if the Handle function is not set.
func (h *JobHandler) Sanitize() error {
	if h.Handle == nil {
		return fmt.Errorf("%w: handle function must be set", ErrInvalidJobHandler)
	}

	if h.JobOpts.MaxAttempts <= 0 {
		h.JobOpts.MaxAttempts = DefaultMaxAttempts
	}
	if h.JobOpts.Timeout <= 0 {
		h.JobOpts.Timeout = DefaultTimeout
	}
	if h.JobOpts.BackoffStrategy == nil {
		h.JobOpts.BackoffStrategy = DefaultBackoff
	}

	return nil
}

// RetryableError instructs the worker to attempt a retry. Retry is not
// guaranteed: the job still has a cap on attempts.
type RetryableError struct {
	Cause error
}

func (re *RetryableError) Error() string {
	return fmt.Sprintf("retryable-error: %v", re.Cause)
}

func (re *RetryableError) Unwrap() error { return re.Cause }
