package workermanager

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/geodatahub/geocat/core/record"
	"github.com/geodatahub/geocat/core/resource"
	"github.com/geodatahub/geocat/pkg/lock"
	"github.com/geodatahub/geocat/pkg/worker"
	"github.com/goto/salt/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeWorker struct {
	Handlers map[string]worker.JobHandler
	Jobs     []worker.JobSpec
	Err      error
}

func (f *fakeWorker) Register(typ string, h worker.JobHandler) error {
	if f.Handlers == nil {
		f.Handlers = make(map[string]worker.JobHandler)
	}
	f.Handlers[typ] = h
	return nil
}

func (f *fakeWorker) Run(ctx context.Context) error { return nil }

func (f *fakeWorker) Enqueue(ctx context.Context, jobs ...worker.JobSpec) error {
	f.Jobs = append(f.Jobs, jobs...)
	return f.Err
}

type fakeRecordSvc struct {
	GetByIDFunc       func(ctx context.Context, recordID string) (record.Record, error)
	ConsolidateFunc   func(ctx context.Context, recordID string, freshness record.Freshness) (record.ConsolidateResult, error)
	OnLinkCheckedFunc func(ctx context.Context, linkID string) ([]string, error)
}

func (f *fakeRecordSvc) GetByID(ctx context.Context, recordID string) (record.Record, error) {
	return f.GetByIDFunc(ctx, recordID)
}

func (f *fakeRecordSvc) Consolidate(ctx context.Context, recordID string, freshness record.Freshness) (record.ConsolidateResult, error) {
	return f.ConsolidateFunc(ctx, recordID, freshness)
}

func (f *fakeRecordSvc) OnLinkChecked(ctx context.Context, linkID string) ([]string, error) {
	return f.OnLinkCheckedFunc(ctx, linkID)
}

type fakeResourceSvc struct {
	EnrichFunc func(ctx context.Context, res resource.Resource) error
	MatchFunc  func(ctx context.Context, res resource.Resource) error
}

func (f *fakeResourceSvc) EnrichRemoteResource(ctx context.Context, res resource.Resource) error {
	return f.EnrichFunc(ctx, res)
}

func (f *fakeResourceSvc) MatchFeatureType(ctx context.Context, res resource.Resource) error {
	return f.MatchFunc(ctx, res)
}

type fakeDiscoveryRepo struct {
	Upserted []string
	Deleted  []string
}

func (f *fakeDiscoveryRepo) Upsert(ctx context.Context, rec record.Record) error {
	f.Upserted = append(f.Upserted, rec.RecordID)
	return nil
}

func (f *fakeDiscoveryRepo) Delete(ctx context.Context, recordID string) error {
	f.Deleted = append(f.Deleted, recordID)
	return nil
}

func (f *fakeDiscoveryRepo) Search(ctx context.Context, cfg record.SearchConfig) ([]record.SearchResult, error) {
	return nil, nil
}

func newTestManager(t *testing.T, w *fakeWorker, recordSvc RecordService, resourceSvc ResourceService, discovery record.DiscoveryRepository) *Manager {
	t.Helper()

	m := NewWithWorker(w, Deps{DiscoveryRepo: discovery, Logger: log.NewNoop()})
	m.BindServices(recordSvc, resourceSvc)
	require.NoError(t, m.init())
	return m
}

func TestManagerInit(t *testing.T) {
	t.Run("should fail when services are not bound", func(t *testing.T) {
		m := NewWithWorker(&fakeWorker{}, Deps{Logger: log.NewNoop()})
		assert.Error(t, m.init())
	})

	t.Run("should register all job types", func(t *testing.T) {
		w := &fakeWorker{}
		newTestManager(t, w, &fakeRecordSvc{}, &fakeResourceSvc{}, &fakeDiscoveryRepo{})

		for _, typ := range []string{
			jobConsolidateRecord, jobLinkChecked, jobEnrichRemoteResource,
			jobMatchFeatureType, jobIndexRecord,
		} {
			assert.Contains(t, w.Handlers, typ)
		}
	})
}

func TestConsolidateRecordHandler(t *testing.T) {
	ctx := context.Background()
	payload, err := json.Marshal(consolidatePayload{RecordID: "fr-123", Reason: "harvested", MaxAge: time.Hour})
	require.NoError(t, err)

	t.Run("should consolidate and chain the index job", func(t *testing.T) {
		w := &fakeWorker{}
		recordSvc := &fakeRecordSvc{
			ConsolidateFunc: func(ctx context.Context, recordID string, freshness record.Freshness) (record.ConsolidateResult, error) {
				assert.Equal(t, "fr-123", recordID)
				assert.Equal(t, time.Hour, freshness.MaxAge)
				return record.ResultConsolidated, nil
			},
		}
		newTestManager(t, w, recordSvc, &fakeResourceSvc{}, &fakeDiscoveryRepo{})

		h := w.Handlers[jobConsolidateRecord]
		require.NoError(t, h.Handle(ctx, worker.JobSpec{Type: jobConsolidateRecord, Payload: payload}))

		require.Len(t, w.Jobs, 1)
		assert.Equal(t, jobIndexRecord, w.Jobs[0].Type)
	})

	t.Run("should not index a skipped consolidation", func(t *testing.T) {
		w := &fakeWorker{}
		recordSvc := &fakeRecordSvc{
			ConsolidateFunc: func(ctx context.Context, recordID string, freshness record.Freshness) (record.ConsolidateResult, error) {
				return record.ResultSkipped, nil
			},
		}
		newTestManager(t, w, recordSvc, &fakeResourceSvc{}, &fakeDiscoveryRepo{})

		h := w.Handlers[jobConsolidateRecord]
		require.NoError(t, h.Handle(ctx, worker.JobSpec{Type: jobConsolidateRecord, Payload: payload}))
		assert.Empty(t, w.Jobs)
	})

	t.Run("should retry when the lock is held elsewhere", func(t *testing.T) {
		w := &fakeWorker{}
		recordSvc := &fakeRecordSvc{
			ConsolidateFunc: func(ctx context.Context, recordID string, freshness record.Freshness) (record.ConsolidateResult, error) {
				return "", fmt.Errorf("acquire consolidation lock: %w", lock.ErrNotObtained)
			},
		}
		newTestManager(t, w, recordSvc, &fakeResourceSvc{}, &fakeDiscoveryRepo{})

		h := w.Handlers[jobConsolidateRecord]
		err := h.Handle(ctx, worker.JobSpec{Type: jobConsolidateRecord, Payload: payload})

		var re *worker.RetryableError
		assert.ErrorAs(t, err, &re)
		assert.ErrorIs(t, err, lock.ErrNotObtained)
	})

	t.Run("should kill the job when the dataset has nothing to consolidate", func(t *testing.T) {
		w := &fakeWorker{}
		recordSvc := &fakeRecordSvc{
			ConsolidateFunc: func(ctx context.Context, recordID string, freshness record.Freshness) (record.ConsolidateResult, error) {
				return "", fmt.Errorf("select best revision: %w", record.NotFoundError{RecordID: recordID})
			},
		}
		newTestManager(t, w, recordSvc, &fakeResourceSvc{}, &fakeDiscoveryRepo{})

		h := w.Handlers[jobConsolidateRecord]
		err := h.Handle(ctx, worker.JobSpec{Type: jobConsolidateRecord, Payload: payload})

		var re *worker.RetryableError
		assert.Error(t, err)
		assert.False(t, errors.As(err, &re))
	})
}

func TestLinkCheckedHandler(t *testing.T) {
	ctx := context.Background()
	payload, err := json.Marshal(linkCheckedPayload{LinkID: "link-1"})
	require.NoError(t, err)

	t.Run("should tolerate partial trigger failures", func(t *testing.T) {
		w := &fakeWorker{}
		recordSvc := &fakeRecordSvc{
			OnLinkCheckedFunc: func(ctx context.Context, linkID string) ([]string, error) {
				assert.Equal(t, "link-1", linkID)
				return []string{"fr-2"}, nil
			},
		}
		newTestManager(t, w, recordSvc, &fakeResourceSvc{}, &fakeDiscoveryRepo{})

		h := w.Handlers[jobLinkChecked]
		assert.NoError(t, h.Handle(ctx, worker.JobSpec{Type: jobLinkChecked, Payload: payload}))
	})

	t.Run("should retry a lookup failure", func(t *testing.T) {
		w := &fakeWorker{}
		recordSvc := &fakeRecordSvc{
			OnLinkCheckedFunc: func(ctx context.Context, linkID string) ([]string, error) {
				return nil, errors.New("store down")
			},
		}
		newTestManager(t, w, recordSvc, &fakeResourceSvc{}, &fakeDiscoveryRepo{})

		h := w.Handlers[jobLinkChecked]
		err := h.Handle(ctx, worker.JobSpec{Type: jobLinkChecked, Payload: payload})

		var re *worker.RetryableError
		assert.ErrorAs(t, err, &re)
	})
}

func TestEnrichRemoteResourceHandler(t *testing.T) {
	ctx := context.Background()
	res := resource.Resource{
		RecordID:       "fr-123",
		RemoteResource: &resource.RemoteResource{Location: "https://files.example.org/a.zip"},
	}
	payload, err := json.Marshal(res)
	require.NoError(t, err)

	t.Run("should kill the job when the secondary row is gone", func(t *testing.T) {
		w := &fakeWorker{}
		resourceSvc := &fakeResourceSvc{
			EnrichFunc: func(ctx context.Context, res resource.Resource) error {
				return fmt.Errorf("enrich remote resource: %w", resource.NotFoundError{Location: "x"})
			},
		}
		newTestManager(t, w, &fakeRecordSvc{}, resourceSvc, &fakeDiscoveryRepo{})

		h := w.Handlers[jobEnrichRemoteResource]
		err := h.Handle(ctx, worker.JobSpec{Type: jobEnrichRemoteResource, Payload: payload})

		var re *worker.RetryableError
		assert.Error(t, err)
		assert.False(t, errors.As(err, &re))
	})

	t.Run("should retry a transient failure", func(t *testing.T) {
		w := &fakeWorker{}
		resourceSvc := &fakeResourceSvc{
			EnrichFunc: func(ctx context.Context, res resource.Resource) error {
				return errors.New("store down")
			},
		}
		newTestManager(t, w, &fakeRecordSvc{}, resourceSvc, &fakeDiscoveryRepo{})

		h := w.Handlers[jobEnrichRemoteResource]
		err := h.Handle(ctx, worker.JobSpec{Type: jobEnrichRemoteResource, Payload: payload})

		var re *worker.RetryableError
		assert.ErrorAs(t, err, &re)
	})
}

func TestIndexRecordHandler(t *testing.T) {
	ctx := context.Background()
	payload, err := json.Marshal(indexRecordPayload{RecordID: "fr-123"})
	require.NoError(t, err)

	t.Run("should index the consolidated record", func(t *testing.T) {
		w := &fakeWorker{}
		discovery := &fakeDiscoveryRepo{}
		recordSvc := &fakeRecordSvc{
			GetByIDFunc: func(ctx context.Context, recordID string) (record.Record, error) {
				return record.Record{RecordID: recordID}, nil
			},
		}
		newTestManager(t, w, recordSvc, &fakeResourceSvc{}, discovery)

		h := w.Handlers[jobIndexRecord]
		require.NoError(t, h.Handle(ctx, worker.JobSpec{Type: jobIndexRecord, Payload: payload}))
		assert.Equal(t, []string{"fr-123"}, discovery.Upserted)
	})

	t.Run("should drop a vanished record from the index", func(t *testing.T) {
		w := &fakeWorker{}
		discovery := &fakeDiscoveryRepo{}
		recordSvc := &fakeRecordSvc{
			GetByIDFunc: func(ctx context.Context, recordID string) (record.Record, error) {
				return record.Record{}, record.NotFoundError{RecordID: recordID}
			},
		}
		newTestManager(t, w, recordSvc, &fakeResourceSvc{}, discovery)

		h := w.Handlers[jobIndexRecord]
		require.NoError(t, h.Handle(ctx, worker.JobSpec{Type: jobIndexRecord, Payload: payload}))
		assert.Equal(t, []string{"fr-123"}, discovery.Deleted)
		assert.Empty(t, discovery.Upserted)
	})
}
