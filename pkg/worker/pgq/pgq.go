// Package pgq implements worker.JobProcessor on PostgreSQL. Ready jobs are
// picked with FOR UPDATE SKIP LOCKED so that concurrent worker processes
// never hand out the same job twice.
package pgq

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	sq "github.com/Masterminds/squirrel"
	"github.com/geodatahub/geocat/pkg/worker"
	"github.com/jackc/pgconn"
	"github.com/jackc/pgerrcode"
	_ "github.com/newrelic/go-agent/v3/integrations/nrpgx" // register instrumented DB driver
	"github.com/oklog/ulid/v2"
	"go.nhat.io/otelsql"
	semconv "go.opentelemetry.io/otel/semconv/v1.20.0"
)

const (
	pgDriverName  = "nrpgx"
	jobsTable     = "jobs_queue"
	deadJobsTable = "dead_jobs"
)

// Processor implements a JobProcessor backed by PostgreSQL.
type Processor struct {
	db *sql.DB
}

func NewProcessor(ctx context.Context, cfg Config) (*Processor, error) {
	driverName, err := otelsql.Register(
		pgDriverName,
		otelsql.TraceQueryWithoutArgs(),
		otelsql.TraceRowsClose(),
		otelsql.TraceRowsAffected(),
		otelsql.WithSystem(semconv.DBSystemPostgreSQL),
		otelsql.WithInstanceName("pgq"),
	)
	if err != nil {
		return nil, fmt.Errorf("new pgq processor: %w", err)
	}

	db, err := sql.Open(driverName, cfg.ConnectionString())
	if err != nil {
		return nil, fmt.Errorf("new pgq processor: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		return nil, fmt.Errorf("new pgq processor: %w", err)
	}

	db.SetMaxOpenConns(cfg.MaxOpenConns)
	if cfg.MaxIdleConns != 0 {
		db.SetMaxIdleConns(cfg.MaxIdleConns)
	}
	if maxLifetime := cfg.ConnMaxLifetimeWithJitter(); maxLifetime != 0 {
		db.SetConnMaxLifetime(maxLifetime)
	}
	db.SetConnMaxIdleTime(cfg.ConnMaxIdleTime)

	return &Processor{db: db}, nil
}

func (p *Processor) Enqueue(ctx context.Context, jobs ...worker.Job) error {
	insert := sq.Insert(jobsTable).Columns(
		"id", "type", "run_at", "payload", "created_at", "updated_at",
	)
	for _, j := range jobs {
		insert = insert.Values(
			j.ID.String(), j.Type, j.RunAt.UTC(), j.Payload, j.CreatedAt.UTC(), j.UpdatedAt.UTC(),
		)
	}

	_, err := insert.RunWith(p.db).
		PlaceholderFormat(sq.Dollar).
		ExecContext(ctx)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == pgerrcode.UniqueViolation {
			return fmt.Errorf("enqueue jobs: %w: %s", worker.ErrJobExists, err.Error())
		}
		return fmt.Errorf("enqueue jobs: %w", err)
	}

	return nil
}

func (p *Processor) Process(ctx context.Context, types []string, fn worker.JobExecutorFunc) error {
	err := p.withTx(ctx, func(ctx context.Context, tx *sql.Tx) error {
		job, err := p.pickupJob(ctx, tx, types)
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return fmt.Errorf("pickup job: %w", worker.ErrNoJob)
			}
			return fmt.Errorf("pickup job: %w", err)
		}

		resultJob := fn(ctx, job)
		switch resultJob.Status {
		case worker.StatusDone:
			return p.clearJob(ctx, tx, resultJob)
		case worker.StatusDead:
			return p.markJobDead(ctx, tx, resultJob)
		default:
			return p.setupRetry(ctx, tx, resultJob)
		}
	})
	if err != nil {
		return fmt.Errorf("pgq process: %w", err)
	}
	return nil
}

func (p *Processor) Close() error { return p.db.Close() }

func (p *Processor) withTx(ctx context.Context, fn func(context.Context, *sql.Tx) error) (err error) {
	tx, err := p.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}

	defer func() {
		if r := recover(); r != nil {
			_ = tx.Rollback()
			err = fmt.Errorf("panic: %v", r)
		}
	}()

	if err := fn(ctx, tx); err != nil {
		_ = tx.Rollback()
		return fmt.Errorf("run with tx: %w", err)
	}

	return tx.Commit()
}

func (*Processor) pickupJob(ctx context.Context, r sq.BaseRunner, types []string) (worker.Job, error) {
	query := sq.Select().
		From(jobsTable).
		Columns(
			"id", "type", "run_at", "payload", "created_at",
			"updated_at", "attempts_done", "last_attempt_at", "last_error",
		).
		Where(sq.Eq{"type": types}).
		Where(sq.Expr("run_at <= current_timestamp")).
		OrderBy("id ASC").
		Limit(1).
		Suffix("FOR UPDATE SKIP LOCKED")

	var (
		job           worker.Job
		id            string
		lastErr       sql.NullString
		lastAttemptAt sql.NullTime
	)
	err := query.PlaceholderFormat(sq.Dollar).
		RunWith(r).
		QueryRowContext(ctx).
		Scan(
			&id, &job.Type, &job.RunAt, &job.Payload, &job.CreatedAt,
			&job.UpdatedAt, &job.AttemptsDone, &lastAttemptAt, &lastErr,
		)
	if err != nil {
		return worker.Job{}, err
	}

	uid, err := ulid.ParseStrict(id)
	if err != nil {
		return worker.Job{}, fmt.Errorf("parse job id: %w", err)
	}

	job.ID = uid
	job.LastAttemptAt = lastAttemptAt.Time
	job.LastError = lastErr.String
	return job, nil
}

func (*Processor) clearJob(ctx context.Context, r sq.BaseRunner, job worker.Job) error {
	_, err := sq.Delete(jobsTable).
		Where(sq.Eq{"id": job.ID.String()}).
		PlaceholderFormat(sq.Dollar).
		RunWith(r).
		ExecContext(ctx)
	if err != nil {
		return fmt.Errorf("clear job: %w", err)
	}
	return nil
}

func (p *Processor) markJobDead(ctx context.Context, r sq.BaseRunner, job worker.Job) error {
	_, err := sq.Insert(deadJobsTable).
		Columns(
			"id", "type", "payload", "created_at",
			"updated_at", "attempts_done", "last_attempt_at", "last_error",
		).
		Values(
			job.ID.String(), job.Type, job.Payload, job.CreatedAt.UTC(),
			job.UpdatedAt.UTC(), job.AttemptsDone, job.LastAttemptAt.UTC(), job.LastError,
		).
		PlaceholderFormat(sq.Dollar).
		RunWith(r).
		ExecContext(ctx)
	if err != nil {
		return fmt.Errorf("mark job dead: %w", err)
	}

	return p.clearJob(ctx, r, job)
}

func (*Processor) setupRetry(ctx context.Context, r sq.BaseRunner, job worker.Job) error {
	_, err := sq.Update(jobsTable).
		Set("run_at", job.RunAt.UTC()).
		Set("updated_at", job.UpdatedAt.UTC()).
		Set("attempts_done", job.AttemptsDone).
		Set("last_attempt_at", job.LastAttemptAt.UTC()).
		Set("last_error", job.LastError).
		Where(sq.Eq{"id": job.ID.String()}).
		PlaceholderFormat(sq.Dollar).
		RunWith(r).
		ExecContext(ctx)
	if err != nil {
		return fmt.Errorf("setup retry: %w", err)
	}
	return nil
}

// DeadJobs lists jobs that exhausted their attempts, for inspection and
// resurrection.
func (p *Processor) DeadJobs(ctx context.Context, size, offset int) ([]worker.Job, error) {
	query := sq.Select().
		From(deadJobsTable).
		Columns(
			"id", "type", "payload", "created_at",
			"updated_at", "attempts_done", "last_attempt_at", "last_error",
		).
		Limit(uint64(size)).
		Offset(uint64(offset)).
		OrderBy("id ASC")

	rows, err := query.PlaceholderFormat(sq.Dollar).
		RunWith(p.db).
		QueryContext(ctx)
	if err != nil {
		return nil, fmt.Errorf("list dead jobs: run query: %w", err)
	}
	defer rows.Close()

	var deadJobs []worker.Job
	for rows.Next() {
		var (
			job           worker.Job
			id            string
			lastErr       sql.NullString
			lastAttemptAt sql.NullTime
		)
		err := rows.Scan(
			&id, &job.Type, &job.Payload, &job.CreatedAt,
			&job.UpdatedAt, &job.AttemptsDone, &lastAttemptAt, &lastErr,
		)
		if err != nil {
			return nil, fmt.Errorf("list dead jobs: scan row: %w", err)
		}

		uid, err := ulid.ParseStrict(id)
		if err != nil {
			return nil, fmt.Errorf("list dead jobs: parse job id: %w", err)
		}

		job.ID = uid
		job.LastAttemptAt = lastAttemptAt.Time
		job.LastError = lastErr.String
		deadJobs = append(deadJobs, job)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list dead jobs: scan rows: %w", err)
	}

	return deadJobs, nil
}

// ClearDeadJobs drops dead jobs for good.
func (p *Processor) ClearDeadJobs(ctx context.Context, jobIDs []string) error {
	_, err := sq.Delete(deadJobsTable).
		Where(sq.Eq{"id": jobIDs}).
		PlaceholderFormat(sq.Dollar).
		RunWith(p.db).
		ExecContext(ctx)
	if err != nil {
		return fmt.Errorf("clear dead jobs: %w", err)
	}
	return nil
}

// Resurrect moves dead jobs back onto the queue for immediate retry.
func (p *Processor) Resurrect(ctx context.Context, jobIDs []string) error {
	err := p.withTx(ctx, func(ctx context.Context, tx *sql.Tx) error {
		_, err := sq.Insert(jobsTable).
			Columns("id", "type", "run_at", "payload", "created_at", "updated_at").
			Select(sq.Select(
				"id", "type", "current_timestamp", "payload", "created_at", "current_timestamp",
			).From(deadJobsTable).Where(sq.Eq{"id": jobIDs})).
			PlaceholderFormat(sq.Dollar).
			RunWith(tx).
			ExecContext(ctx)
		if err != nil {
			return err
		}

		_, err = sq.Delete(deadJobsTable).
			Where(sq.Eq{"id": jobIDs}).
			PlaceholderFormat(sq.Dollar).
			RunWith(tx).
			ExecContext(ctx)
		return err
	})
	if err != nil {
		return fmt.Errorf("resurrect dead jobs: %w", err)
	}
	return nil
}
