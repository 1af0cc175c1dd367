package registry

import (
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"github.com/angelmondragon/dishdash-backend/pkg/enums"
	"github.com/angelmondragon/dishdash-backend/pkg/outbox/payloads"
)

// ErrNoDecoder is returned for event versions nobody registered.
var ErrNoDecoder = errors.New("no decoder registered")

// Decoder turns envelope data into a typed payload pointer.
type Decoder func(data json.RawMessage) (any, error)

type decoderKey struct {
	eventType enums.OutboxEventType
	version   int
}

// DecoderRegistry maps (event type, envelope version) to payload decoders.
// The relay uses it to reject rows it could never deliver and consumers use
// it to read what they receive.
type DecoderRegistry struct {
	mu       sync.RWMutex
	decoders map[decoderKey]Decoder
}

func NewDecoderRegistry() *DecoderRegistry {
	return &DecoderRegistry{decoders: make(map[decoderKey]Decoder)}
}

// NewPayloadDecoders registers the v1 payload of every event the platform emits.
func NewPayloadDecoders() *DecoderRegistry {
	reg := NewDecoderRegistry()
	reg.Register(enums.EventOrderCreated, 1, decodeInto[payloads.OrderCreatedEvent])
	reg.Register(enums.EventOrderStatusChanged, 1, decodeInto[payloads.OrderStatusChangedEvent])
	reg.Register(enums.EventOrderPaid, 1, decodeInto[payloads.OrderPaidEvent])
	reg.Register(enums.EventPaymentFailed, 1, decodeInto[payloads.PaymentFailedEvent])
	reg.Register(enums.EventPaymentRefunded, 1, decodeInto[payloads.PaymentRefundedEvent])
	reg.Register(enums.EventDeliveryAssigned, 1, decodeInto[payloads.DeliveryAssignedEvent])
	reg.Register(enums.EventDeliveryStatusChanged, 1, decodeInto[payloads.DeliveryStatusChangedEvent])
	return reg
}

func decodeInto[T any](data json.RawMessage) (any, error) {
	out := new(T)
	if err := json.Unmarshal(data, out); err != nil {
		return nil, err
	}
	return out, nil
}

func (r *DecoderRegistry) Register(eventType enums.OutboxEventType, version int, decoder Decoder) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.decoders[decoderKey{eventType, version}] = decoder
}

func (r *DecoderRegistry) Has(eventType enums.OutboxEventType, version int) bool {
	_, ok := r.lookup(eventType, version)
	return ok
}

func (r *DecoderRegistry) Decode(eventType enums.OutboxEventType, version int, data json.RawMessage) (any, error) {
	decoder, ok := r.lookup(eventType, version)
	if !ok {
		return nil, fmt.Errorf("%w for %s@v%d", ErrNoDecoder, eventType, version)
	}
	return decoder(data)
}

func (r *DecoderRegistry) lookup(eventType enums.OutboxEventType, version int) (Decoder, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	decoder, ok := r.decoders[decoderKey{eventType, version}]
	return decoder, ok
}
