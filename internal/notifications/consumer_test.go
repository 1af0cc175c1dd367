package notifications

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/angelmondragon/dishdash-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/dishdash-backend/pkg/errors"
	"github.com/angelmondragon/dishdash-backend/pkg/outbox"
	"github.com/angelmondragon/dishdash-backend/pkg/outbox/idempotency"
	"github.com/angelmondragon/dishdash-backend/pkg/outbox/payloads"
	"github.com/angelmondragon/dishdash-backend/pkg/outbox/registry"
)

type memoryStore struct {
	mu   sync.Mutex
	keys map[string]bool
}

func (m *memoryStore) Get(context.Context, string) (string, error) { return "", nil }

func (m *memoryStore) SetNX(_ context.Context, key string, _ any, _ time.Duration) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.keys[key] {
		return false, nil
	}
	m.keys[key] = true
	return true, nil
}

func (m *memoryStore) IdempotencyKey(scope, id string) string {
	return "dd:idempotency:" + scope + ":" + id
}

func (m *memoryStore) Del(_ context.Context, keys ...string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, k := range keys {
		delete(m.keys, k)
	}
	return nil
}

type recordingDispatcher struct {
	events []Event
	err    error
}

func (r *recordingDispatcher) Dispatch(_ context.Context, event Event) error {
	if r.err != nil {
		return r.err
	}
	r.events = append(r.events, event)
	return nil
}

func newTestConsumer(t *testing.T, d dispatcher) (*Consumer, *memoryStore) {
	t.Helper()
	store := &memoryStore{keys: map[string]bool{}}
	manager, err := idempotency.NewManager(store, time.Hour)
	require.NoError(t, err)
	return &Consumer{
		dispatcher: d,
		processed:  manager,
		decoders:   registry.NewPayloadDecoders(),
		logg:       testLogger(),
	}, store
}

type delivery struct {
	attributes map[string]string
	data       []byte
}

func envelopeDelivery(t *testing.T, eventType enums.OutboxEventType, eventID uuid.UUID, data any) delivery {
	t.Helper()
	raw, err := json.Marshal(data)
	require.NoError(t, err)
	body, err := json.Marshal(outbox.PayloadEnvelope{Version: 1, EventID: eventID.String(), OccurredAt: time.Now().UTC(), Data: raw})
	require.NoError(t, err)
	return delivery{
		attributes: map[string]string{"event_type": string(eventType), "event_id": eventID.String()},
		data:       body,
	}
}

func (c *Consumer) deliver(d delivery) bool {
	return c.handle(context.Background(), d.attributes, d.data)
}

func TestConsumerMapsEventsAndDedupes(t *testing.T) {
	d := &recordingDispatcher{}
	c, _ := newTestConsumer(t, d)
	orderID := uuid.New()

	confirmed := envelopeDelivery(t, enums.EventOrderStatusChanged, uuid.New(), payloads.OrderStatusChangedEvent{
		OrderID: orderID, From: enums.OrderStatusPending, To: enums.OrderStatusConfirmed,
	})
	assert.True(t, c.deliver(confirmed))
	assert.True(t, c.deliver(confirmed))

	ready := envelopeDelivery(t, enums.EventOrderStatusChanged, uuid.New(), payloads.OrderStatusChangedEvent{
		OrderID: orderID, From: enums.OrderStatusPreparing, To: enums.OrderStatusReady,
	})
	assert.True(t, c.deliver(ready))

	driver := uuid.New()
	assigned := envelopeDelivery(t, enums.EventDeliveryAssigned, uuid.New(), payloads.DeliveryAssignedEvent{
		DeliveryID: uuid.New(), OrderID: orderID, DriverID: driver,
	})
	assert.True(t, c.deliver(assigned))

	refunded := envelopeDelivery(t, enums.EventPaymentRefunded, uuid.New(), payloads.PaymentRefundedEvent{
		OrderID: orderID, PaymentID: uuid.New(), RefundID: "rf_1", Amount: decimal.RequireFromString("12.5"),
	})
	assert.True(t, c.deliver(refunded))

	created := envelopeDelivery(t, enums.EventOrderCreated, uuid.New(), payloads.OrderCreatedEvent{OrderID: orderID})
	assert.True(t, c.deliver(created))

	require.Len(t, d.events, 4)
	assert.Equal(t, enums.NotificationTypeOrderConfirmed, d.events[0].Type)
	assert.Equal(t, enums.NotificationTypeOrderStatusChanged, d.events[1].Type)
	assert.Equal(t, enums.OrderStatusReady, d.events[1].Status)
	assert.Equal(t, enums.NotificationTypeDriverAssigned, d.events[2].Type)
	assert.Equal(t, driver, *d.events[2].DriverID)
	assert.Equal(t, enums.NotificationTypePaymentRefunded, d.events[3].Type)
	assert.Equal(t, "12.50", d.events[3].Amount)
}

func TestConsumerNacksAndReleasesOnTransientFailure(t *testing.T) {
	d := &recordingDispatcher{err: errors.New("db down")}
	c, store := newTestConsumer(t, d)
	msg := envelopeDelivery(t, enums.EventOrderStatusChanged, uuid.New(), payloads.OrderStatusChangedEvent{
		OrderID: uuid.New(), To: enums.OrderStatusPreparing,
	})

	assert.False(t, c.deliver(msg))
	assert.Empty(t, store.keys)

	d.err = nil
	assert.True(t, c.deliver(msg))
	assert.Len(t, d.events, 1)
}

func TestConsumerAcksPermanentFailure(t *testing.T) {
	d := &recordingDispatcher{err: pkgerrors.New(pkgerrors.CodeNotFound, "order not found")}
	c, store := newTestConsumer(t, d)
	msg := envelopeDelivery(t, enums.EventDeliveryAssigned, uuid.New(), payloads.DeliveryAssignedEvent{
		DeliveryID: uuid.New(), OrderID: uuid.New(), DriverID: uuid.New(),
	})

	assert.True(t, c.deliver(msg))
	// the marker stays so a redelivery is not retried
	assert.Len(t, store.keys, 1)
}

func TestConsumerAcksUndeliverableMessages(t *testing.T) {
	d := &recordingDispatcher{}
	c, store := newTestConsumer(t, d)
	statusChanged := map[string]string{"event_type": string(enums.EventOrderStatusChanged)}

	cases := map[string]delivery{
		"not json":      {attributes: statusChanged, data: []byte("{not json")},
		"bad event id":  {attributes: statusChanged, data: []byte(`{"version":1,"eventId":"x","data":{}}`)},
		"null data":     envelopeDelivery(t, enums.EventOrderStatusChanged, uuid.New(), nil),
		"wrong shape":   envelopeDelivery(t, enums.EventOrderStatusChanged, uuid.New(), map[string]int{"order_id": 7}),
		"no event type": {attributes: map[string]string{}, data: []byte(`{}`)},
	}
	for name, msg := range cases {
		t.Run(name, func(t *testing.T) {
			assert.True(t, c.deliver(msg))
		})
	}
	assert.Empty(t, d.events)
	assert.Empty(t, store.keys)
}

func TestConsumerRejectsUnknownEnvelopeVersion(t *testing.T) {
	c, _ := newTestConsumer(t, &recordingDispatcher{})
	_, err := c.decodeEvent(enums.EventOrderStatusChanged, outbox.PayloadEnvelope{Version: 9, Data: json.RawMessage(`{}`)})
	require.ErrorIs(t, err, registry.ErrNoDecoder)
}
