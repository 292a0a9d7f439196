package idempotency

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	goredis "github.com/redis/go-redis/v9"

	"github.com/openmarketlabs/relay-backend/pkg/redis"
)

// Manager tracks processed event IDs per consumer group in Redis. Keys follow
// the `relay:idempotency:evt:processed:<group>:<event_id>` pattern. The
// marker is written only after the handler's transaction commits: a crash
// mid-handling leaves no marker behind, so the broker's redelivery is
// reprocessed instead of silently dropped. A lost key only risks a duplicate
// delivery, never a loss; handlers stay idempotent.
type Manager struct {
	store redis.IdempotencyStore
	ttl   time.Duration
}

// NewManager builds an idempotency guard that marks events as processed for the given TTL.
func NewManager(store redis.IdempotencyStore, ttl time.Duration) (*Manager, error) {
	if store == nil {
		return nil, errors.New("idempotency store is required")
	}
	if ttl < 0 {
		return nil, errors.New("ttl must be non-negative")
	}
	return &Manager{
		store: store,
		ttl:   ttl,
	}, nil
}

// IsProcessed reports whether the group already committed this event. It
// never writes; a missing key reads as not processed.
func (m *Manager) IsProcessed(ctx context.Context, group string, eventID uuid.UUID) (bool, error) {
	key, err := m.processedKey(group, eventID)
	if err != nil {
		return false, err
	}
	if _, err := m.store.Get(ctx, key); err != nil {
		if errors.Is(err, goredis.Nil) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

// MarkProcessed records the marker with the configured TTL. Callers invoke it
// after the handler's transaction commits.
func (m *Manager) MarkProcessed(ctx context.Context, group string, eventID uuid.UUID) error {
	key, err := m.processedKey(group, eventID)
	if err != nil {
		return err
	}
	if _, err := m.store.SetNX(ctx, key, "1", m.ttl); err != nil {
		return err
	}
	return nil
}

func (m *Manager) processedKey(group string, eventID uuid.UUID) (string, error) {
	if group == "" {
		return "", errors.New("consumer group is required")
	}
	if eventID == uuid.Nil {
		return "", errors.New("event id is required")
	}
	scope := fmt.Sprintf("evt:processed:%s", group)
	return m.store.IdempotencyKey(scope, eventID.String()), nil
}
