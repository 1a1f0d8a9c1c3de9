package idempotency

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/packclaim/pkg/redis"
)

type fakeStore struct {
	data     map[string]string
	getError error
	setError error
	lastTTL  time.Duration
}

func newFakeStore() *fakeStore {
	return &fakeStore{data: map[string]string{}}
}

func (f *fakeStore) Get(_ context.Context, key string) (string, error) {
	if f.getError != nil {
		return "", f.getError
	}
	v, ok := f.data[key]
	if !ok {
		return "", redis.Nil
	}
	return v, nil
}

func (f *fakeStore) SetNX(_ context.Context, key string, value any, ttl time.Duration) (bool, error) {
	if f.setError != nil {
		return false, f.setError
	}
	f.lastTTL = ttl
	if _, ok := f.data[key]; ok {
		return false, nil
	}
	f.data[key] = "1"
	return true, nil
}

func (f *fakeStore) IdempotencyKey(scope, id string) string {
	return "pc:idempotency:" + scope + ":" + id
}

func TestMarkThenIsProcessed(t *testing.T) {
	store := newFakeStore()
	manager, err := NewManager(store, 24*time.Hour)
	if err != nil {
		t.Fatalf("NewManager: %v", err)
	}
	ctx := context.Background()
	packID := uuid.New()

	done, err := manager.IsProcessed(ctx, "notify-pack-owner", packID)
	if err != nil || done {
		t.Fatalf("expected unmarked pack, got done=%v err=%v", done, err)
	}

	if err := manager.MarkProcessed(ctx, "notify-pack-owner", packID); err != nil {
		t.Fatalf("MarkProcessed: %v", err)
	}
	if err := manager.MarkProcessed(ctx, "notify-pack-owner", packID); err != nil {
		t.Fatalf("second MarkProcessed: %v", err)
	}
	key := "pc:idempotency:processed:notify-pack-owner:" + packID.String()
	if _, ok := store.data[key]; !ok {
		t.Fatalf("expected key %q, have %v", key, store.data)
	}
	if store.lastTTL != 24*time.Hour {
		t.Fatalf("unexpected ttl: %v", store.lastTTL)
	}

	done, err = manager.IsProcessed(ctx, "notify-pack-owner", packID)
	if err != nil || !done {
		t.Fatalf("expected marked pack, got done=%v err=%v", done, err)
	}
}

func TestManagerErrors(t *testing.T) {
	store := newFakeStore()
	manager, err := NewManager(store, time.Hour)
	if err != nil {
		t.Fatalf("NewManager: %v", err)
	}
	ctx := context.Background()

	if _, err := manager.IsProcessed(ctx, "", uuid.New()); err == nil {
		t.Fatal("expected error for empty consumer")
	}
	if err := manager.MarkProcessed(ctx, "notify-pack-owner", uuid.Nil); err == nil {
		t.Fatal("expected error for nil id")
	}

	store.getError = errors.New("connection reset")
	if _, err := manager.IsProcessed(ctx, "notify-pack-owner", uuid.New()); err == nil {
		t.Fatal("expected read error")
	}
	store.setError = errors.New("connection reset")
	if err := manager.MarkProcessed(ctx, "notify-pack-owner", uuid.New()); err == nil {
		t.Fatal("expected write error")
	}

	if _, err := NewManager(nil, time.Hour); err == nil {
		t.Fatal("expected error without store")
	}
}
