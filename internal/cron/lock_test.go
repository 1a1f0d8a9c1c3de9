package cron

import (
	"context"
	"strings"
	"testing"
	"time"
)

type memoryStore struct {
	values map[string]string
}

func (m *memoryStore) SetNX(ctx context.Context, key string, value any, ttl time.Duration) (bool, error) {
	if _, ok := m.values[key]; ok {
		return false, nil
	}
	m.values[key] = value.(string)
	return true, nil
}

func (m *memoryStore) DelIfEquals(ctx context.Context, key, value string) (bool, error) {
	if m.values[key] != value {
		return false, nil
	}
	delete(m.values, key)
	return true, nil
}

func TestRedisLockExclusive(t *testing.T) {
	ctx := context.Background()
	store := &memoryStore{values: map[string]string{}}
	first, err := NewRedisLock(RedisLockParams{Client: store, Key: "packclaim:cron:lock", Holder: "a"})
	if err != nil {
		t.Fatalf("NewRedisLock: %v", err)
	}
	second, _ := NewRedisLock(RedisLockParams{Client: store, Key: "packclaim:cron:lock", Holder: "b"})

	if ok, err := first.Acquire(ctx); err != nil || !ok {
		t.Fatalf("first acquire: ok=%v err=%v", ok, err)
	}
	if got := store.values["packclaim:cron:lock"]; !strings.HasPrefix(got, "a/") {
		t.Fatalf("expected owner token prefixed by holder, got %q", got)
	}
	if ok, err := second.Acquire(ctx); err != nil || ok {
		t.Fatalf("second acquire should fail: ok=%v err=%v", ok, err)
	}
	if err := second.Release(ctx); err != nil {
		t.Fatalf("second release: %v", err)
	}
	if _, ok := store.values["packclaim:cron:lock"]; !ok {
		t.Fatal("non-owner release removed the lock")
	}
	if err := first.Release(ctx); err != nil {
		t.Fatalf("first release: %v", err)
	}
	if ok, err := second.Acquire(ctx); err != nil || !ok {
		t.Fatalf("acquire after release: ok=%v err=%v", ok, err)
	}
}

func TestRedisLockReleaseAfterExpiry(t *testing.T) {
	ctx := context.Background()
	store := &memoryStore{values: map[string]string{}}
	lock, _ := NewRedisLock(RedisLockParams{Client: store, Key: "k", TTL: time.Minute})
	if _, err := lock.Acquire(ctx); err != nil {
		t.Fatalf("acquire: %v", err)
	}
	delete(store.values, "k")
	if err := lock.Release(ctx); err != nil {
		t.Fatalf("release of expired key should be a no-op, got %v", err)
	}
}
