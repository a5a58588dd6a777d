package record

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/geodatahub/geocat/core/resource"
	"github.com/goto/salt/log"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"golang.org/x/sync/errgroup"
)

// ConsolidateResult reports how a consolidation trigger ended.
type ConsolidateResult string

const (
	ResultSkipped      ConsolidateResult = "skipped"
	ResultConsolidated ConsolidateResult = "consolidated"
)

// DefaultLockTTL bounds how long a crashed worker can keep a dataset locked.
const DefaultLockTTL = 10 * time.Second

// lockReleaseTimeout bounds the release round trip to the lock store.
const lockReleaseTimeout = time.Second

// DefaultLinkFanOutLimit caps concurrent consolidation triggers issued by a
// single link-check event.
const DefaultLinkFanOutLimit = 8

// LockManager grants a time-bounded exclusive lock per key. The lock is
// advisory: it is the only serialization between concurrent consolidations
// of the same dataset.
type LockManager interface {
	Acquire(ctx context.Context, key string, ttl time.Duration) (Lock, error)
}

type Lock interface {
	Release(ctx context.Context) error
}

//go:generate mockery --name=Worker -r --case underscore --with-expecter --structname Worker --filename worker_mock.go --output=./mocks

// Worker enqueues consolidation jobs on the external job queue, which owns
// retry and backoff policy.
type Worker interface {
	EnqueueConsolidateJob(ctx context.Context, recordID, reason string, freshness Freshness) error
}

// RelatedResourceGetter is the slice of the resource service the
// orchestrator reads from.
type RelatedResourceGetter interface {
	GetByRecord(ctx context.Context, recordID string) ([]resource.Resource, error)
}

type Service struct {
	repo         Repository
	catalogs     CatalogRecordRepository
	revisions    RevisionRepository
	publications PublicationRepository
	resources    RelatedResourceGetter
	locks        LockManager
	worker       Worker
	logger       log.Logger

	lockTTL         time.Duration
	linkFanOutLimit int

	consolidateCounter metric.Int64Counter
}

type ServiceDeps struct {
	Repo            Repository
	CatalogRepo     CatalogRecordRepository
	RevisionRepo    RevisionRepository
	PublicationRepo PublicationRepository
	Resources       RelatedResourceGetter
	Locks           LockManager
	Worker          Worker
	Logger          log.Logger

	LockTTL         time.Duration
	LinkFanOutLimit int
}

func NewService(deps ServiceDeps) *Service {
	logger := deps.Logger
	if logger == nil {
		logger = log.NewNoop()
	}
	if deps.LockTTL <= 0 {
		deps.LockTTL = DefaultLockTTL
	}
	if deps.LinkFanOutLimit <= 0 {
		deps.LinkFanOutLimit = DefaultLinkFanOutLimit
	}

	consolidateCounter, err := otel.Meter("github.com/geodatahub/geocat/core/record").
		Int64Counter("geocat.record.consolidation")
	if err != nil {
		otel.Handle(err)
	}

	return &Service{
		repo:               deps.Repo,
		catalogs:           deps.CatalogRepo,
		revisions:          deps.RevisionRepo,
		publications:       deps.PublicationRepo,
		resources:          deps.Resources,
		locks:              deps.Locks,
		worker:             deps.Worker,
		logger:             logger,
		lockTTL:            deps.LockTTL,
		linkFanOutLimit:    deps.LinkFanOutLimit,
		consolidateCounter: consolidateCounter,
	}
}

// ConsolidationLockKey is the lock key serializing consolidation of one
// dataset.
func ConsolidationLockKey(recordID string) string {
	return recordID + ":consolidation"
}

// GetByID returns the consolidated record of a dataset.
func (s *Service) GetByID(ctx context.Context, recordID string) (Record, error) {
	if recordID == "" {
		return Record{}, ErrEmptyRecordID
	}
	return s.repo.GetByID(ctx, recordID)
}

// GetRevision returns one immutable content snapshot of a dataset.
func (s *Service) GetRevision(ctx context.Context, recordID, recordHash string) (Revision, error) {
	return s.revisions.Get(ctx, recordID, recordHash)
}

// TriggerUpdated enqueues consolidation of a dataset. The reason is an
// opaque diagnostic string and is never interpreted.
func (s *Service) TriggerUpdated(ctx context.Context, recordID, reason string) error {
	return s.TriggerUpdatedWithFreshness(ctx, recordID, reason, Freshness{})
}

func (s *Service) TriggerUpdatedWithFreshness(ctx context.Context, recordID, reason string, freshness Freshness) error {
	if recordID == "" {
		return ErrEmptyRecordID
	}
	return s.worker.EnqueueConsolidateJob(ctx, recordID, reason, freshness)
}

// Consolidate rebuilds the consolidated record of one dataset from all its
// catalog copies, related resources and publications.
//
// The whole read-merge-write sequence runs under the dataset's consolidation
// lock, which is released on every exit path before the original error is
// surfaced. Failing to acquire the lock is retryable; the job queue re-runs
// the trigger with backoff.
func (s *Service) Consolidate(ctx context.Context, recordID string, freshness Freshness) (res ConsolidateResult, err error) {
	if recordID == "" {
		return "", ErrEmptyRecordID
	}
	defer func() {
		s.instrumentConsolidate(ctx, res, err)
	}()

	rec, err := s.repo.GetByID(ctx, recordID)
	if err != nil {
		var notFound NotFoundError
		if !errors.As(err, &notFound) {
			return "", fmt.Errorf("load consolidated record: %w", err)
		}
		rec = Record{RecordID: recordID}
	}

	if rec.IsFresh(freshness) {
		s.logger.Debug("record is fresh enough, skipping", "record", recordID)
		return ResultSkipped, nil
	}

	lck, err := s.locks.Acquire(ctx, ConsolidationLockKey(recordID), s.lockTTL)
	if err != nil {
		return "", fmt.Errorf("acquire consolidation lock: %w", err)
	}
	defer func() {
		// The job context may already be canceled or past its deadline when
		// consolidation unwinds. Release on a fresh context so the key never
		// lingers for the remainder of the TTL.
		rctx, cancel := context.WithTimeout(context.Background(), lockReleaseTimeout)
		defer cancel()
		if rerr := lck.Release(rctx); rerr != nil {
			s.logger.Error("release consolidation lock", "record", recordID, "err", rerr)
		}
	}()

	copies, err := s.catalogs.GetByRecord(ctx, recordID)
	if err != nil {
		return "", fmt.Errorf("fetch catalog records: %w", err)
	}

	var (
		resources    []resource.Resource
		revision     Revision
		publications []Publication
	)
	eg, egCtx := errgroup.WithContext(ctx)
	eg.Go(func() (err error) {
		resources, err = s.resources.GetByRecord(egCtx, recordID)
		return err
	})
	eg.Go(func() (err error) {
		revision, err = SelectBestRevision(egCtx, s.revisions, copies, rec)
		return err
	})
	eg.Go(func() (err error) {
		publications, err = s.publications.GetByRecord(egCtx, recordID)
		return err
	})
	if err := eg.Wait(); err != nil {
		return "", err
	}

	if err := mergeRecord(&rec, revision, copies, resources, publications); err != nil {
		return "", err
	}

	if err := s.repo.Upsert(ctx, &rec); err != nil {
		return "", fmt.Errorf("persist consolidated record: %w", err)
	}

	return ResultConsolidated, nil
}

// OnLinkChecked re-triggers consolidation of every dataset referencing the
// checked link. Fan-out is bounded and failures are independent: the IDs
// whose trigger failed are returned, and only a lookup failure fails the
// event itself.
func (s *Service) OnLinkChecked(ctx context.Context, linkID string) (failed []string, err error) {
	recordIDs, err := s.repo.GetIDsByLink(ctx, linkID)
	if err != nil {
		return nil, fmt.Errorf("resolve datasets for link %q: %w", linkID, err)
	}

	var (
		mu sync.Mutex
		eg errgroup.Group
	)
	eg.SetLimit(s.linkFanOutLimit)
	for _, recordID := range recordIDs {
		recordID := recordID
		eg.Go(func() error {
			if terr := s.TriggerUpdated(ctx, recordID, "link checked"); terr != nil {
				s.logger.Error("trigger consolidation for checked link",
					"link", linkID, "record", recordID, "err", terr)
				mu.Lock()
				failed = append(failed, recordID)
				mu.Unlock()
			}
			return nil
		})
	}
	_ = eg.Wait()

	return failed, nil
}

func (s *Service) instrumentConsolidate(ctx context.Context, res ConsolidateResult, err error) {
	outcome := string(res)
	if err != nil {
		outcome = "failure"
	}
	s.consolidateCounter.Add(ctx, 1, metric.WithAttributes(
		attribute.String("consolidation.outcome", outcome),
	))
}
