package idempotency

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type memoryStore struct {
	mu     sync.Mutex
	values map[string]any
	ttls   map[string]time.Duration
	err    error
}

func newMemoryStore() *memoryStore {
	return &memoryStore{values: map[string]any{}, ttls: map[string]time.Duration{}}
}

func (s *memoryStore) Get(_ context.Context, key string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	v, _ := s.values[key].(string)
	return v, nil
}

func (s *memoryStore) SetNX(_ context.Context, key string, value any, ttl time.Duration) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return false, s.err
	}
	if _, ok := s.values[key]; ok {
		return false, nil
	}
	s.values[key] = value
	s.ttls[key] = ttl
	return true, nil
}

func (s *memoryStore) Del(_ context.Context, keys ...string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, k := range keys {
		delete(s.values, k)
	}
	return nil
}

func (s *memoryStore) IdempotencyKey(scope, id string) string {
	return "dd:idempotency:" + scope + ":" + id
}

func TestManagerMarksOncePerConsumer(t *testing.T) {
	store := newMemoryStore()
	manager, err := NewManager(store, 48*time.Hour)
	require.NoError(t, err)
	manager.now = func() time.Time { return time.Date(2026, 3, 4, 18, 30, 0, 0, time.UTC) }
	ctx := context.Background()
	eventID := uuid.New()

	seen, err := manager.CheckAndMarkProcessed(ctx, "customer-notifications", eventID)
	require.NoError(t, err)
	assert.False(t, seen)

	key := "dd:idempotency:evt:processed:customer-notifications:" + eventID.String()
	assert.Equal(t, "2026-03-04T18:30:00Z", store.values[key])
	assert.Equal(t, 48*time.Hour, store.ttls[key])

	seen, err = manager.CheckAndMarkProcessed(ctx, "customer-notifications", eventID)
	require.NoError(t, err)
	assert.True(t, seen)

	// another consumer keeps its own marks
	seen, err = manager.CheckAndMarkProcessed(ctx, "kitchen-display", eventID)
	require.NoError(t, err)
	assert.False(t, seen)
}

func TestManagerDeleteAllowsRedelivery(t *testing.T) {
	manager, err := NewManager(newMemoryStore(), time.Hour)
	require.NoError(t, err)
	ctx := context.Background()

	seen, err := manager.CheckAndMarkKey(ctx, "square-webhooks", "evt_4f2c")
	require.NoError(t, err)
	require.False(t, seen)

	require.NoError(t, manager.DeleteKey(ctx, "square-webhooks", "evt_4f2c"))
	seen, err = manager.CheckAndMarkKey(ctx, "square-webhooks", " evt_4f2c ")
	require.NoError(t, err)
	assert.False(t, seen)
}

func TestManagerRejectsIncompleteKeys(t *testing.T) {
	manager, err := NewManager(newMemoryStore(), time.Hour)
	require.NoError(t, err)
	ctx := context.Background()

	_, err = manager.CheckAndMarkProcessed(ctx, "customer-notifications", uuid.Nil)
	assert.ErrorIs(t, err, ErrEventIDRequired)
	_, err = manager.CheckAndMarkKey(ctx, "square-webhooks", "  ")
	assert.ErrorIs(t, err, ErrEventIDRequired)
	_, err = manager.CheckAndMarkKey(ctx, "", "evt_1")
	assert.ErrorIs(t, err, ErrConsumerRequired)
	assert.ErrorIs(t, manager.Delete(ctx, "customer-notifications", uuid.Nil), ErrEventIDRequired)
}

func TestManagerSurfacesStoreErrors(t *testing.T) {
	store := newMemoryStore()
	store.err = errors.New("redis unavailable")
	manager, err := NewManager(store, time.Hour)
	require.NoError(t, err)

	_, err = manager.CheckAndMarkProcessed(context.Background(), "customer-notifications", uuid.New())
	assert.EqualError(t, err, "redis unavailable")
}

func TestNewManagerValidates(t *testing.T) {
	_, err := NewManager(nil, time.Hour)
	assert.Error(t, err)
	_, err = NewManager(newMemoryStore(), -time.Second)
	assert.Error(t, err)
}
