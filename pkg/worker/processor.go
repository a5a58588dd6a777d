package worker

import "context"

//go:generate mockery --name=JobProcessor -r --case underscore --with-expecter --structname JobProcessor --filename job_processor_mock.go --output=./mocks

// JobProcessor is a durable job store that hands out jobs only once they are
// ready.
type JobProcessor interface {
	// Enqueue persists all jobs with all-or-nothing behavior. Jobs with a
	// zero or historical RunAt are eligible immediately.
	Enqueue(ctx context.Context, jobs ...Job) error

	// Process dequeues one ready job of the given types and invokes fn while
	// holding the job. Depending on the result it clears the job, marks it
	// dead, or schedules the retry. Returns ErrNoJob when nothing is ready.
	Process(ctx context.Context, types []string, fn JobExecutorFunc) error
}

// JobExecutorFunc handles one ready job and returns the job updated with the
// attempt's result.
type JobExecutorFunc func(context.Context, Job) Job
