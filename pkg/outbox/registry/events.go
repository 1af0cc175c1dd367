package registry

import (
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/angelmondragon/dishdash-backend/pkg/config"
	"github.com/angelmondragon/dishdash-backend/pkg/db/models"
	"github.com/angelmondragon/dishdash-backend/pkg/enums"
	"github.com/angelmondragon/dishdash-backend/pkg/outbox"
)

// ErrUnpublishable marks outbox rows that no retry can fix.
var ErrUnpublishable = errors.New("event cannot be published")

func unpublishable(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrUnpublishable, fmt.Sprintf(format, args...))
}

// EventDescriptor routes an event type to the aggregate it belongs to and
// the topic it is published on.
type EventDescriptor struct {
	EventType     enums.OutboxEventType
	AggregateType enums.OutboxAggregateType
	Topic         string
}

// ResolvedEvent is a validated outbox row ready for publishing.
type ResolvedEvent struct {
	Descriptor EventDescriptor
	Envelope   outbox.PayloadEnvelope
	EventID    uuid.UUID
	Payload    any
}

// EventRegistry validates outbox rows against the known event catalogue.
type EventRegistry struct {
	routes   map[enums.OutboxEventType]EventDescriptor
	decoders *DecoderRegistry
}

var aggregateOf = map[enums.OutboxEventType]enums.OutboxAggregateType{
	enums.EventOrderCreated:          enums.AggregateOrder,
	enums.EventOrderStatusChanged:    enums.AggregateOrder,
	enums.EventOrderPaid:             enums.AggregateOrder,
	enums.EventPaymentFailed:         enums.AggregatePayment,
	enums.EventPaymentRefunded:       enums.AggregatePayment,
	enums.EventDeliveryAssigned:      enums.AggregateDelivery,
	enums.EventDeliveryStatusChanged: enums.AggregateDelivery,
}

// NewEventRegistry routes every event to the orders topic so one ordered
// subscription sees an order's whole lifecycle.
func NewEventRegistry(cfg config.PubSubConfig, decoders *DecoderRegistry) (*EventRegistry, error) {
	if cfg.OrdersTopic == "" {
		return nil, errors.New("orders topic is required")
	}
	if decoders == nil {
		decoders = NewPayloadDecoders()
	}
	reg := &EventRegistry{
		routes:   make(map[enums.OutboxEventType]EventDescriptor, len(aggregateOf)),
		decoders: decoders,
	}
	for eventType, aggregate := range aggregateOf {
		reg.routes[eventType] = EventDescriptor{EventType: eventType, AggregateType: aggregate, Topic: cfg.OrdersTopic}
	}
	return reg, nil
}

func (r *EventRegistry) Descriptor(eventType enums.OutboxEventType) (EventDescriptor, bool) {
	desc, ok := r.routes[eventType]
	return desc, ok
}

// Resolve checks the row's routing and decodes its payload. Every error it
// returns wraps ErrUnpublishable.
func (r *EventRegistry) Resolve(event models.OutboxEvent) (*ResolvedEvent, error) {
	desc, ok := r.routes[event.EventType]
	switch {
	case !ok:
		return nil, unpublishable("unsupported event type %s", event.EventType)
	case desc.AggregateType != event.AggregateType:
		return nil, unpublishable("%s belongs to %s aggregates, got %s", event.EventType, desc.AggregateType, event.AggregateType)
	case event.AggregateID == uuid.Nil:
		return nil, unpublishable("missing aggregate id")
	}

	envelope, eventID, err := outbox.DecodeEnvelope(event.Payload)
	if err != nil {
		return nil, unpublishable("%v", err)
	}
	if !envelope.HasData() {
		return nil, unpublishable("%s has no payload", event.EventType)
	}
	payload, err := r.decoders.Decode(event.EventType, envelope.Version, envelope.Data)
	if err != nil {
		return nil, unpublishable("decode %s payload: %v", event.EventType, err)
	}
	return &ResolvedEvent{Descriptor: desc, Envelope: envelope, EventID: eventID, Payload: payload}, nil
}
