package cron

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

const defaultLockTTL = 25 * time.Hour

// Lock keeps a retention cycle to a single cron-worker instance.
type Lock interface {
	Acquire(ctx context.Context) (bool, error)
	Release(ctx context.Context) error
}

type redisStore interface {
	SetNX(ctx context.Context, key string, value any, ttl time.Duration) (bool, error)
	DelIfEquals(ctx context.Context, key, value string) (bool, error)
}

// RedisLockParams configure a RedisLock. Holder names the process in the
// stored owner token so a stuck lock can be traced to its instance.
type RedisLockParams struct {
	Client redisStore
	Key    string
	TTL    time.Duration
	Holder string
}

// RedisLock implements Lock with SETNX and a TTL.
type RedisLock struct {
	client redisStore
	key    string
	ttl    time.Duration
	holder string
	token  string
}

func NewRedisLock(params RedisLockParams) (*RedisLock, error) {
	if params.Client == nil {
		return nil, errors.New("redis client required for lock")
	}
	if params.Key == "" {
		return nil, errors.New("lock key is required")
	}
	ttl := params.TTL
	if ttl <= 0 {
		ttl = defaultLockTTL
	}
	holder := params.Holder
	if holder == "" {
		holder = "cron-worker"
	}
	return &RedisLock{client: params.Client, key: params.Key, ttl: ttl, holder: holder}, nil
}

// Acquire tries to own the lock for the configured TTL.
func (l *RedisLock) Acquire(ctx context.Context) (bool, error) {
	token := l.holder + "/" + uuid.NewString()
	ok, err := l.client.SetNX(ctx, l.key, token, l.ttl)
	if err != nil {
		return false, fmt.Errorf("setnx %s: %w", l.key, err)
	}
	if ok {
		l.token = token
	}
	return ok, nil
}

// Release frees the lock only while this instance still owns it.
func (l *RedisLock) Release(ctx context.Context) error {
	if l.token == "" {
		return nil
	}
	defer func() { l.token = "" }()
	if _, err := l.client.DelIfEquals(ctx, l.key, l.token); err != nil {
		return fmt.Errorf("release lock: %w", err)
	}
	return nil
}
