// Package lock provides a Redis-backed advisory lock with a bounded TTL.
// Locks self-expire rather than requiring a heartbeat, so a crashed holder
// blocks other workers for at most the TTL.
package lock

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// ErrNotObtained means the lock is currently held by another worker, or the
// lock service refused the acquisition. Callers should treat it as retryable.
var ErrNotObtained = errors.New("lock not obtained")

// releaseScript deletes the key only when it still carries our token, so an
// expired lock re-acquired by another worker is never released by us.
const releaseScript = `if redis.call("get", KEYS[1]) == ARGV[1] then
	return redis.call("del", KEYS[1])
else
	return 0
end`

type Config struct {
	Addr        string        `mapstructure:"addr" default:"localhost:6379"`
	Password    string        `mapstructure:"password" default:""`
	DB          int           `mapstructure:"db" default:"0"`
	KeyPrefix   string        `mapstructure:"key_prefix" default:"geocat"`
	DialTimeout time.Duration `mapstructure:"dial_timeout" default:"5s"`
}

// Client is the slice of the go-redis API the manager needs.
type Client interface {
	SetNX(ctx context.Context, key string, value interface{}, expiration time.Duration) *redis.BoolCmd
	Eval(ctx context.Context, script string, keys []string, args ...interface{}) *redis.Cmd
}

type Manager struct {
	client Client
	prefix string
}

func NewManager(ctx context.Context, cfg Config) (*Manager, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:        cfg.Addr,
		Password:    cfg.Password,
		DB:          cfg.DB,
		DialTimeout: cfg.DialTimeout,
	})
	if err := rdb.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("new lock manager: redis ping: %w", err)
	}
	return NewManagerWithClient(rdb, cfg.KeyPrefix), nil
}

func NewManagerWithClient(client Client, prefix string) *Manager {
	if prefix == "" {
		prefix = "geocat"
	}
	return &Manager{client: client, prefix: prefix}
}

// Acquire obtains the lock or returns ErrNotObtained immediately. It never
// waits for a held lock: re-queuing with backoff is the caller's concern.
func (m *Manager) Acquire(ctx context.Context, key string, ttl time.Duration) (*Lock, error) {
	token := uuid.NewString()
	fullKey := m.prefix + ":" + key

	ok, err := m.client.SetNX(ctx, fullKey, token, ttl).Result()
	if err != nil {
		return nil, fmt.Errorf("acquire lock %q: %w", key, err)
	}
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrNotObtained, key)
	}

	return &Lock{client: m.client, key: fullKey, token: token}, nil
}

// Lock is one held acquisition. Release is idempotent: releasing an already
// expired lock is a no-op.
type Lock struct {
	client Client
	key    string
	token  string
}

func (l *Lock) Release(ctx context.Context) error {
	if err := l.client.Eval(ctx, releaseScript, []string{l.key}, l.token).Err(); err != nil {
		return fmt.Errorf("release lock %q: %w", l.key, err)
	}
	return nil
}
