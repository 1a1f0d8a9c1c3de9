package idempotency

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/packclaim/pkg/redis"
)

// Manager remembers committed work per consumer in Redis with a TTL.
// Keys follow the `pc:idempotency:processed:<consumer>:<id>` pattern.
//
// A mark is only a cache of a durable fact: callers write it after the
// database commit that made the work visible, never before.
type Manager struct {
	store redis.IdempotencyStore
	ttl   time.Duration
}

func NewManager(store redis.IdempotencyStore, ttl time.Duration) (*Manager, error) {
	if store == nil {
		return nil, errors.New("idempotency store is required")
	}
	if ttl < 0 {
		return nil, errors.New("ttl must be non-negative")
	}
	return &Manager{store: store, ttl: ttl}, nil
}

// IsProcessed reports whether consumer already recorded id as done.
func (m *Manager) IsProcessed(ctx context.Context, consumer string, id uuid.UUID) (bool, error) {
	key, err := m.processedKey(consumer, id)
	if err != nil {
		return false, err
	}
	_, err = m.store.Get(ctx, key)
	switch {
	case errors.Is(err, redis.Nil):
		return false, nil
	case err != nil:
		return false, fmt.Errorf("read %s: %w", key, err)
	}
	return true, nil
}

// MarkProcessed records id as done by consumer. Marking twice is harmless.
func (m *Manager) MarkProcessed(ctx context.Context, consumer string, id uuid.UUID) error {
	key, err := m.processedKey(consumer, id)
	if err != nil {
		return err
	}
	if _, err := m.store.SetNX(ctx, key, "1", m.ttl); err != nil {
		return fmt.Errorf("mark %s: %w", key, err)
	}
	return nil
}

func (m *Manager) processedKey(consumer string, id uuid.UUID) (string, error) {
	if consumer == "" {
		return "", errors.New("consumer name is required")
	}
	if id == uuid.Nil {
		return "", errors.New("id is required")
	}
	return m.store.IdempotencyKey("processed:"+consumer, id.String()), nil
}
