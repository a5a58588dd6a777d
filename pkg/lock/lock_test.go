package lock_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/geodatahub/geocat/pkg/lock"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeRedis struct {
	SetNXResult bool
	SetNXErr    error
	EvalErr     error

	LastKey   string
	LastValue interface{}
	LastTTL   time.Duration
	EvalKeys  []string
	EvalArgs  []interface{}
}

func (f *fakeRedis) SetNX(ctx context.Context, key string, value interface{}, expiration time.Duration) *redis.BoolCmd {
	f.LastKey = key
	f.LastValue = value
	f.LastTTL = expiration

	cmd := redis.NewBoolResult(f.SetNXResult, f.SetNXErr)
	return cmd
}

func (f *fakeRedis) Eval(ctx context.Context, script string, keys []string, args ...interface{}) *redis.Cmd {
	f.EvalKeys = keys
	f.EvalArgs = args

	cmd := redis.NewCmd(ctx)
	if f.EvalErr != nil {
		cmd.SetErr(f.EvalErr)
	} else {
		cmd.SetVal(int64(1))
	}
	return cmd
}

func TestManagerAcquire(t *testing.T) {
	ctx := context.Background()

	t.Run("should set the prefixed key with the TTL", func(t *testing.T) {
		client := &fakeRedis{SetNXResult: true}
		mgr := lock.NewManagerWithClient(client, "geocat")

		lck, err := mgr.Acquire(ctx, "fr-123:consolidation", 10*time.Second)
		require.NoError(t, err)
		require.NotNil(t, lck)

		assert.Equal(t, "geocat:fr-123:consolidation", client.LastKey)
		assert.Equal(t, 10*time.Second, client.LastTTL)
		assert.NotEmpty(t, client.LastValue)
	})

	t.Run("should report a held lock as not obtained", func(t *testing.T) {
		client := &fakeRedis{SetNXResult: false}
		mgr := lock.NewManagerWithClient(client, "geocat")

		_, err := mgr.Acquire(ctx, "fr-123:consolidation", 10*time.Second)
		assert.ErrorIs(t, err, lock.ErrNotObtained)
	})

	t.Run("should surface a transport failure", func(t *testing.T) {
		boom := errors.New("connection refused")
		client := &fakeRedis{SetNXErr: boom}
		mgr := lock.NewManagerWithClient(client, "geocat")

		_, err := mgr.Acquire(ctx, "fr-123:consolidation", 10*time.Second)
		assert.ErrorIs(t, err, boom)
		assert.NotErrorIs(t, err, lock.ErrNotObtained)
	})

	t.Run("should default the key prefix", func(t *testing.T) {
		client := &fakeRedis{SetNXResult: true}
		mgr := lock.NewManagerWithClient(client, "")

		_, err := mgr.Acquire(ctx, "k", time.Second)
		require.NoError(t, err)
		assert.Equal(t, "geocat:k", client.LastKey)
	})
}

func TestLockRelease(t *testing.T) {
	ctx := context.Background()

	t.Run("should release with the acquisition token", func(t *testing.T) {
		client := &fakeRedis{SetNXResult: true}
		mgr := lock.NewManagerWithClient(client, "geocat")

		lck, err := mgr.Acquire(ctx, "fr-123:consolidation", time.Second)
		require.NoError(t, err)
		require.NoError(t, lck.Release(ctx))

		assert.Equal(t, []string{"geocat:fr-123:consolidation"}, client.EvalKeys)
		require.Len(t, client.EvalArgs, 1)
		assert.Equal(t, client.LastValue, client.EvalArgs[0])
	})

	t.Run("should surface a release failure", func(t *testing.T) {
		boom := errors.New("connection reset")
		client := &fakeRedis{SetNXResult: true, EvalErr: boom}
		mgr := lock.NewManagerWithClient(client, "geocat")

		lck, err := mgr.Acquire(ctx, "k", time.Second)
		require.NoError(t, err)
		assert.ErrorIs(t, lck.Release(ctx), boom)
	})
}
