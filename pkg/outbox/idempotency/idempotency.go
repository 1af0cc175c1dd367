// Package idempotency remembers which events a consumer has already handled
// so at-least-once deliveries are applied once.
package idempotency

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/dishdash-backend/pkg/redis"
)

const processedScope = "evt:processed:"

var (
	ErrConsumerRequired = errors.New("idempotency: consumer name is required")
	ErrEventIDRequired  = errors.New("idempotency: event id is required")
)

// Manager marks (consumer, event id) pairs in Redis with SETNX. A mark lives
// for ttl; zero keeps it until it is deleted.
type Manager struct {
	store redis.IdempotencyStore
	ttl   time.Duration
	now   func() time.Time
}

func NewManager(store redis.IdempotencyStore, ttl time.Duration) (*Manager, error) {
	switch {
	case store == nil:
		return nil, errors.New("idempotency: store is required")
	case ttl < 0:
		return nil, errors.New("idempotency: ttl must not be negative")
	}
	return &Manager{store: store, ttl: ttl, now: time.Now}, nil
}

// CheckAndMarkProcessed reports whether eventID was already seen by consumer,
// marking it when it was not.
func (m *Manager) CheckAndMarkProcessed(ctx context.Context, consumer string, eventID uuid.UUID) (bool, error) {
	if eventID == uuid.Nil {
		return false, ErrEventIDRequired
	}
	return m.CheckAndMarkKey(ctx, consumer, eventID.String())
}

// CheckAndMarkKey is CheckAndMarkProcessed for processor event ids.
func (m *Manager) CheckAndMarkKey(ctx context.Context, consumer, id string) (bool, error) {
	key, err := m.key(consumer, id)
	if err != nil {
		return false, err
	}
	fresh, err := m.store.SetNX(ctx, key, m.now().UTC().Format(time.RFC3339), m.ttl)
	if err != nil {
		return false, err
	}
	return !fresh, nil
}

// Delete forgets a mark so a redelivery is handled again.
func (m *Manager) Delete(ctx context.Context, consumer string, eventID uuid.UUID) error {
	if eventID == uuid.Nil {
		return ErrEventIDRequired
	}
	return m.DeleteKey(ctx, consumer, eventID.String())
}

func (m *Manager) DeleteKey(ctx context.Context, consumer, id string) error {
	key, err := m.key(consumer, id)
	if err != nil {
		return err
	}
	return m.store.Del(ctx, key)
}

func (m *Manager) key(consumer, id string) (string, error) {
	consumer = strings.TrimSpace(consumer)
	id = strings.TrimSpace(id)
	if consumer == "" {
		return "", ErrConsumerRequired
	}
	if id == "" {
		return "", ErrEventIDRequired
	}
	return m.store.IdempotencyKey(processedScope+consumer, id), nil
}
