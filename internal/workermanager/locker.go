package workermanager

import (
	"context"
	"time"

	"github.com/geodatahub/geocat/core/record"
	"github.com/geodatahub/geocat/pkg/lock"
)

// Locker adapts the redis lock manager to the orchestrator's interface.
type Locker struct {
	manager *lock.Manager
}

func NewLocker(manager *lock.Manager) *Locker {
	return &Locker{manager: manager}
}

func (l *Locker) Acquire(ctx context.Context, key string, ttl time.Duration) (record.Lock, error) {
	lck, err := l.manager.Acquire(ctx, key, ttl)
	if err != nil {
		return nil, err
	}
	return lck, nil
}
