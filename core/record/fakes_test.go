package record_test

import (
	"context"
	"sync"
	"time"

	"github.com/geodatahub/geocat/core/record"
	"github.com/geodatahub/geocat/core/resource"
)

type fakeRecordRepo struct {
	GetByIDFunc      func(ctx context.Context, recordID string) (record.Record, error)
	UpsertFunc       func(ctx context.Context, rec *record.Record) error
	GetIDsByLinkFunc func(ctx context.Context, linkID string) ([]string, error)
}

func (f *fakeRecordRepo) GetByID(ctx context.Context, recordID string) (record.Record, error) {
	if f.GetByIDFunc == nil {
		return record.Record{}, record.NotFoundError{RecordID: recordID}
	}
	return f.GetByIDFunc(ctx, recordID)
}

func (f *fakeRecordRepo) Upsert(ctx context.Context, rec *record.Record) error {
	if f.UpsertFunc == nil {
		return nil
	}
	return f.UpsertFunc(ctx, rec)
}

func (f *fakeRecordRepo) GetIDsByLink(ctx context.Context, linkID string) ([]string, error) {
	if f.GetIDsByLinkFunc == nil {
		return nil, nil
	}
	return f.GetIDsByLinkFunc(ctx, linkID)
}

type fakeCatalogRepo struct {
	GetByRecordFunc func(ctx context.Context, recordID string) ([]record.CatalogRecord, error)
}

func (f *fakeCatalogRepo) GetByRecord(ctx context.Context, recordID string) ([]record.CatalogRecord, error) {
	if f.GetByRecordFunc == nil {
		return nil, nil
	}
	return f.GetByRecordFunc(ctx, recordID)
}

type fakeRevisionRepo struct {
	GetFunc func(ctx context.Context, recordID, recordHash string) (record.Revision, error)
}

func (f *fakeRevisionRepo) Get(ctx context.Context, recordID, recordHash string) (record.Revision, error) {
	if f.GetFunc == nil {
		return record.Revision{}, record.NotFoundError{RecordID: recordID, RecordHash: recordHash}
	}
	return f.GetFunc(ctx, recordID, recordHash)
}

type fakePublicationRepo struct {
	GetByRecordFunc func(ctx context.Context, recordID string) ([]record.Publication, error)
}

func (f *fakePublicationRepo) GetByRecord(ctx context.Context, recordID string) ([]record.Publication, error) {
	if f.GetByRecordFunc == nil {
		return nil, nil
	}
	return f.GetByRecordFunc(ctx, recordID)
}

type fakeResourceGetter struct {
	GetByRecordFunc func(ctx context.Context, recordID string) ([]resource.Resource, error)
}

func (f *fakeResourceGetter) GetByRecord(ctx context.Context, recordID string) ([]resource.Resource, error) {
	if f.GetByRecordFunc == nil {
		return nil, nil
	}
	return f.GetByRecordFunc(ctx, recordID)
}

type fakeLock struct {
	Released      bool
	ReleaseCtxErr error
	Err           error
}

func (f *fakeLock) Release(ctx context.Context) error {
	f.Released = true
	f.ReleaseCtxErr = ctx.Err()
	return f.Err
}

type fakeLockManager struct {
	AcquireFunc func(ctx context.Context, key string, ttl time.Duration) (record.Lock, error)

	LastKey string
	Lock    *fakeLock
}

func (f *fakeLockManager) Acquire(ctx context.Context, key string, ttl time.Duration) (record.Lock, error) {
	f.LastKey = key
	if f.AcquireFunc != nil {
		return f.AcquireFunc(ctx, key, ttl)
	}
	if f.Lock == nil {
		f.Lock = &fakeLock{}
	}
	return f.Lock, nil
}

// mutexLockManager serializes acquirers of any key behind one mutex, the
// in-process stand-in for the distributed lock.
type mutexLockManager struct {
	mu sync.Mutex
}

func (m *mutexLockManager) Acquire(ctx context.Context, key string, ttl time.Duration) (record.Lock, error) {
	m.mu.Lock()
	return &mutexLock{mu: &m.mu}, nil
}

type mutexLock struct {
	mu *sync.Mutex
}

func (l *mutexLock) Release(ctx context.Context) error {
	l.mu.Unlock()
	return nil
}

type fakeWorker struct {
	EnqueueFunc func(ctx context.Context, recordID, reason string, freshness record.Freshness) error

	mu       sync.Mutex
	Enqueued []string
}

func (f *fakeWorker) EnqueueConsolidateJob(ctx context.Context, recordID, reason string, freshness record.Freshness) error {
	f.mu.Lock()
	f.Enqueued = append(f.Enqueued, recordID)
	f.mu.Unlock()

	if f.EnqueueFunc == nil {
		return nil
	}
	return f.EnqueueFunc(ctx, recordID, reason, freshness)
}
