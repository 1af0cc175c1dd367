package deliveries

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// LocationUpdate is the message published for every driver ping.
type LocationUpdate struct {
	DeliveryID uuid.UUID `json:"delivery_id"`
	OrderID    uuid.UUID `json:"order_id"`
	DriverID   uuid.UUID `json:"driver_id"`
	Latitude   float64   `json:"latitude"`
	Longitude  float64   `json:"longitude"`
	RecordedAt time.Time `json:"recorded_at"`
}

// LocationSink receives live driver positions for tracking consumers.
type LocationSink interface {
	PublishLocation(ctx context.Context, update LocationUpdate) error
}

type topicPublisher interface {
	Publish(ctx context.Context, data []byte, attributes map[string]string) (string, error)
}

// PubSubLocationSink publishes location updates to the delivery location topic,
// keyed by delivery id.
type PubSubLocationSink struct {
	publisher topicPublisher
}

func NewPubSubLocationSink(publisher topicPublisher) *PubSubLocationSink {
	return &PubSubLocationSink{publisher: publisher}
}

func (s *PubSubLocationSink) PublishLocation(ctx context.Context, update LocationUpdate) error {
	data, err := json.Marshal(update)
	if err != nil {
		return fmt.Errorf("marshal location update: %w", err)
	}
	_, err = s.publisher.Publish(ctx, data, map[string]string{
		"delivery_id": update.DeliveryID.String(),
		"order_id":    update.OrderID.String(),
	})
	return err
}
