package worker

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/goto/salt/log"
)

var (
	ErrTypeExists  = errors.New("handler for given job type exists")
	ErrUnknownType = errors.New("job type is invalid")
	ErrJobExists   = errors.New("job with id exists")
	ErrNoJob       = errors.New("no job found")
)

// Worker provides asynchronous job processing on top of a JobProcessor.
type Worker struct {
	workers      int
	pollInterval time.Duration

	processor JobProcessor
	logger    log.Logger

	mu       sync.RWMutex
	handlers map[string]JobHandler
}

type Option func(w *Worker) error

func WithLogger(l log.Logger) Option {
	return func(w *Worker) error {
		if l == nil {
			l = log.NewNoop()
		}
		w.logger = l
		return nil
	}
}

func WithRunConfig(workers int, pollInterval time.Duration) Option {
	return func(w *Worker) error {
		if workers <= 0 {
			workers = 1
		}

		const minPollInterval = 100 * time.Millisecond
		if pollInterval < minPollInterval {
			pollInterval = minPollInterval
		}

		w.workers = workers
		w.pollInterval = pollInterval
		return nil
	}
}

// New returns a Worker with defaults of 1 worker thread, a 1s poll interval
// and a noop logger.
func New(processor JobProcessor, opts ...Option) (*Worker, error) {
	w := &Worker{
		processor: processor,
		handlers:  make(map[string]JobHandler),
	}

	defaults := []Option{WithLogger(nil), WithRunConfig(1, time.Second)}
	for _, opt := range append(defaults, opts...) {
		if err := opt(w); err != nil {
			return nil, fmt.Errorf("new worker: %w", err)
		}
	}

	return w, nil
}

// Register binds a job type to its handler.
// Returns ErrTypeExists if the type is already registered.
func (w *Worker) Register(typ string, h JobHandler) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if _, exists := w.handlers[typ]; exists {
		return fmt.Errorf("register handler: %w: type %q", ErrTypeExists, typ)
	}
	if err := h.Sanitize(); err != nil {
		return fmt.Errorf("register handler: %w: type %q", err, typ)
	}

	w.handlers[typ] = h
	return nil
}

// Enqueue enqueues all jobs for processing.
func (w *Worker) Enqueue(ctx context.Context, specs ...JobSpec) error {
	jobs := make([]Job, 0, len(specs))
	for _, spec := range specs {
		job, err := NewJob(spec)
		if err != nil {
			return fmt.Errorf("worker enqueue: %w", err)
		}
		jobs = append(jobs, job)
	}

	return w.processor.Enqueue(ctx, jobs...)
}

// Run starts the worker threads that dequeue and process ready jobs. It
// blocks until the context is canceled, which drains the threads gracefully.
func (w *Worker) Run(baseCtx context.Context) error {
	ctx, cancel := context.WithCancel(baseCtx)
	defer cancel()

	var wg sync.WaitGroup
	wg.Add(w.workers)
	for i := 0; i < w.workers; i++ {
		go func(id int) {
			defer wg.Done()

			w.runThread(ctx)
			w.logger.Info("worker thread exited", "worker_id", id)
		}(i)
	}
	wg.Wait()

	if err := ctx.Err(); err != nil &&
		!errors.Is(err, context.Canceled) && !errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	return nil
}

func (w *Worker) runThread(ctx context.Context) {
	timer := time.NewTimer(w.pollInterval)
	defer timer.Stop()

	idleBackoff := &ExponentialBackoff{
		Multiplier:   1.6,
		InitialDelay: w.pollInterval,
		MaxDelay:     5 * time.Second,
		Jitter:       0.5,
	}

	pollAttempt := 1
	for {
		select {
		case <-ctx.Done():
			return

		case <-timer.C:
			types := w.getTypes()
			if len(types) == 0 {
				w.logger.Warn("no job handler registered, skipping poll")
				timer.Reset(w.pollInterval)
				continue
			}

			switch err := w.processor.Process(ctx, types, w.processJob); {
			case errors.Is(err, ErrNoJob):
				pollAttempt++
			case err != nil:
				w.logger.Error("process job failed", "err", err)
				pollAttempt = 1
			default:
				pollAttempt = 1
			}
			timer.Reset(idleBackoff.Backoff(pollAttempt))
		}
	}
}

func (w *Worker) processJob(ctx context.Context, job Job) Job {
	const invalidTypeBackoff = 5 * time.Minute

	start := time.Now()

	h, ok := w.jobHandler(job.Type)
	if !ok {
		// Should not happen since Process filters on registered types; kept
		// as a safety net against nil dereferences.
		job.LastError = ErrUnknownType.Error()
		job.RunAt = time.Now().Add(invalidTypeBackoff)
		return job
	}

	job.Attempt(ctx, time.Now(), h)

	w.logger.Info("job attempted",
		"job_id", job.ID,
		"job_type", job.Type,
		"attempts_done", job.AttemptsDone,
		"job_status", job.Status,
		"last_error", job.LastError,
		"time_ms", time.Since(start).Milliseconds(),
	)

	return job
}

func (w *Worker) jobHandler(typ string) (JobHandler, bool) {
	w.mu.RLock()
	defer w.mu.RUnlock()

	h, ok := w.handlers[typ]
	return h, ok
}

func (w *Worker) getTypes() []string {
	w.mu.RLock()
	defer w.mu.RUnlock()

	types := make([]string, 0, len(w.handlers))
	for typ := range w.handlers {
		types = append(types, typ)
	}
	return types
}
