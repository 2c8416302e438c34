package scheduler

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

const defaultLockTTL = 2 * time.Minute

// Lock coordinates exclusive job runs across instances.
type Lock interface {
	Acquire(ctx context.Context) (bool, error)
	Release(ctx context.Context) error
}

// LockFactory returns the lock guarding the named job.
type LockFactory func(job string) (Lock, error)

type redisStore interface {
	SetNX(ctx context.Context, key string, value any, ttl time.Duration) (bool, error)
	Get(ctx context.Context, key string) (string, error)
	Del(ctx context.Context, keys ...string) error
	LockKey(name string) string
}

// RedisLock implements Lock with SETNX plus a TTL so a crashed holder cannot
// block the job forever.
type RedisLock struct {
	client redisStore
	key    string
	ttl    time.Duration
	owner  string
}

func NewRedisLock(client redisStore, job string, ttl time.Duration) (*RedisLock, error) {
	if client == nil {
		return nil, errors.New("redis client required for lock")
	}
	if job == "" {
		return nil, errors.New("lock key is required")
	}
	if ttl <= 0 {
		ttl = defaultLockTTL
	}
	return &RedisLock{client: client, key: client.LockKey(job), ttl: ttl}, nil
}

// RedisLocks builds one RedisLock per job on the shared client.
func RedisLocks(client redisStore, ttl time.Duration) LockFactory {
	return func(job string) (Lock, error) {
		return NewRedisLock(client, job, ttl)
	}
}

func (l *RedisLock) Acquire(ctx context.Context) (bool, error) {
	owner := uuid.NewString()
	ok, err := l.client.SetNX(ctx, l.key, owner, l.ttl)
	if err != nil {
		return false, fmt.Errorf("setnx: %w", err)
	}
	if ok {
		l.owner = owner
	}
	return ok, nil
}

// Release frees the lock only if the owner value still matches.
func (l *RedisLock) Release(ctx context.Context) error {
	if l.owner == "" {
		return nil
	}
	value, err := l.client.Get(ctx, l.key)
	if err != nil {
		if errors.Is(err, redis.Nil) {
			l.owner = ""
			return nil
		}
		return fmt.Errorf("read lock owner: %w", err)
	}
	if value != l.owner {
		l.owner = ""
		return nil
	}
	if err := l.client.Del(ctx, l.key); err != nil {
		return fmt.Errorf("delete lock: %w", err)
	}
	l.owner = ""
	return nil
}

// NoopLock always grants the lock. Used when Redis is disabled and a single
// worker runs the schedule.
type NoopLock struct{}

func (NoopLock) Acquire(context.Context) (bool, error) { return true, nil }
func (NoopLock) Release(context.Context) error         { return nil }

func NoopLocks() LockFactory {
	return func(string) (Lock, error) { return NoopLock{}, nil }
}
