package notifications

import (
	"context"
	"errors"
	"fmt"

	pubsub "cloud.google.com/go/pubsub/v2"
	"github.com/google/uuid"

	"github.com/angelmondragon/dishdash-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/dishdash-backend/pkg/errors"
	"github.com/angelmondragon/dishdash-backend/pkg/logger"
	"github.com/angelmondragon/dishdash-backend/pkg/outbox"
	"github.com/angelmondragon/dishdash-backend/pkg/outbox/payloads"
	"github.com/angelmondragon/dishdash-backend/pkg/outbox/registry"
)

const customerNotificationConsumer = "customer-notifications"

var errNotNotifiable = errors.New("event does not notify customers")

type dispatcher interface {
	Dispatch(ctx context.Context, event Event) error
}

// processedStore remembers which events this consumer already handled.
type processedStore interface {
	CheckAndMarkProcessed(ctx context.Context, consumer string, eventID uuid.UUID) (bool, error)
	Delete(ctx context.Context, consumer string, eventID uuid.UUID) error
}

// Consumer turns order domain events into customer notifications.
type Consumer struct {
	dispatcher   dispatcher
	subscription *pubsub.Subscriber
	processed    processedStore
	decoders     *registry.DecoderRegistry
	logg         *logger.Logger
}

func NewConsumer(d dispatcher, subscription *pubsub.Subscriber, processed processedStore, logg *logger.Logger) (*Consumer, error) {
	switch {
	case d == nil:
		return nil, fmt.Errorf("notification dispatcher required")
	case subscription == nil:
		return nil, fmt.Errorf("orders subscription required")
	case processed == nil:
		return nil, fmt.Errorf("idempotency manager required")
	case logg == nil:
		return nil, fmt.Errorf("logger required")
	}
	return &Consumer{
		dispatcher:   d,
		subscription: subscription,
		processed:    processed,
		decoders:     registry.NewPayloadDecoders(),
		logg:         logg,
	}, nil
}

// Run receives until ctx is cancelled.
func (c *Consumer) Run(ctx context.Context) error {
	return c.subscription.Receive(ctx, func(ctx context.Context, msg *pubsub.Message) {
		ctx = c.logg.WithField(ctx, "message_id", msg.ID)
		if c.handle(ctx, msg.Attributes, msg.Data) {
			msg.Ack()
			return
		}
		msg.Nack()
	})
}

// handle reports whether the message should be acked. Only transient
// failures are nacked; anything a redelivery cannot fix is acked and logged.
func (c *Consumer) handle(ctx context.Context, attributes map[string]string, data []byte) bool {
	eventType := enums.OutboxEventType(attributes["event_type"])
	ctx = c.logg.WithField(ctx, "event_type", string(eventType))
	if !notifies(eventType) {
		c.logg.Debug(ctx, "event has no customer notification")
		return true
	}

	envelope, eventID, err := outbox.DecodeEnvelope(data)
	if err != nil {
		c.logg.Error(ctx, "dropping malformed envelope", err)
		return true
	}
	ctx = c.logg.WithField(ctx, "event_id", eventID.String())

	event, err := c.decodeEvent(eventType, envelope)
	if err != nil {
		c.logg.Error(ctx, "dropping undecodable payload", err)
		return true
	}
	ctx = c.logg.WithOrderID(ctx, event.OrderID.String())

	seen, err := c.processed.CheckAndMarkProcessed(ctx, customerNotificationConsumer, eventID)
	if err != nil {
		c.logg.Error(ctx, "idempotency check failed", err)
		return false
	}
	if seen {
		c.logg.Info(ctx, "event already processed")
		return true
	}

	dispatchErr := c.dispatcher.Dispatch(ctx, event)
	if dispatchErr == nil {
		return true
	}
	if !pkgerrors.IsRetryable(dispatchErr) {
		c.logg.Warn(c.logg.WithField(ctx, "error", dispatchErr.Error()), "notification dropped")
		return true
	}
	c.logg.Error(ctx, "notification dispatch failed", dispatchErr)
	if err := c.processed.Delete(context.WithoutCancel(ctx), customerNotificationConsumer, eventID); err != nil {
		c.logg.Error(ctx, "failed to clear idempotency marker", err)
	}
	return false
}

func notifies(eventType enums.OutboxEventType) bool {
	switch eventType {
	case enums.EventOrderStatusChanged, enums.EventDeliveryAssigned, enums.EventPaymentRefunded:
		return true
	}
	return false
}

// decodeEvent maps an outbox payload onto the notification it produces.
func (c *Consumer) decodeEvent(eventType enums.OutboxEventType, envelope outbox.PayloadEnvelope) (Event, error) {
	if !envelope.HasData() {
		return Event{}, outbox.ErrEmptyPayload
	}
	payload, err := c.decoders.Decode(eventType, envelope.Version, envelope.Data)
	if err != nil {
		return Event{}, err
	}
	switch p := payload.(type) {
	case *payloads.OrderStatusChangedEvent:
		kind := enums.NotificationTypeOrderStatusChanged
		if p.To == enums.OrderStatusConfirmed {
			kind = enums.NotificationTypeOrderConfirmed
		}
		return Event{Type: kind, OrderID: p.OrderID, Status: p.To}, nil
	case *payloads.DeliveryAssignedEvent:
		driver := p.DriverID
		return Event{Type: enums.NotificationTypeDriverAssigned, OrderID: p.OrderID, DriverID: &driver}, nil
	case *payloads.PaymentRefundedEvent:
		return Event{Type: enums.NotificationTypePaymentRefunded, OrderID: p.OrderID, Amount: p.Amount.StringFixed(2)}, nil
	}
	return Event{}, fmt.Errorf("%w: %s", errNotNotifiable, eventType)
}
