package notifications

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/angelmondragon/dishdash-backend/pkg/enums"
	"github.com/angelmondragon/dishdash-backend/pkg/logger"
)

// Message is one outbound notification on a single channel.
type Message struct {
	Channel  enums.NotificationChannel `json:"channel"`
	Address  string                    `json:"address"`
	Subject  string                    `json:"subject"`
	Body     string                    `json:"body"`
	Metadata map[string]string         `json:"metadata,omitempty"`
}

// Transport hands a message to the system that actually delivers it.
type Transport interface {
	Send(ctx context.Context, msg Message) error
}

type topicPublisher interface {
	Publish(ctx context.Context, data []byte, attributes map[string]string) (string, error)
}

// PubSubTransport publishes messages to the notification delivery topic. Email,
// SMS and push senders subscribe with a filter on the channel attribute.
type PubSubTransport struct {
	publisher topicPublisher
}

func NewPubSubTransport(publisher topicPublisher) *PubSubTransport {
	return &PubSubTransport{publisher: publisher}
}

func (t *PubSubTransport) Send(ctx context.Context, msg Message) error {
	data, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("marshal notification message: %w", err)
	}
	attrs := map[string]string{"channel": string(msg.Channel)}
	for k, v := range msg.Metadata {
		attrs[k] = v
	}
	if _, err := t.publisher.Publish(ctx, data, attrs); err != nil {
		return fmt.Errorf("publish %s notification: %w", msg.Channel, err)
	}
	return nil
}

// LogTransport writes messages to the log. Used for local runs.
type LogTransport struct {
	logg *logger.Logger
}

func NewLogTransport(logg *logger.Logger) *LogTransport {
	return &LogTransport{logg: logg}
}

func (t *LogTransport) Send(ctx context.Context, msg Message) error {
	if t.logg == nil {
		return nil
	}
	t.logg.Info(t.logg.WithFields(ctx, map[string]any{
		"channel": string(msg.Channel),
		"address": msg.Address,
		"subject": msg.Subject,
	}), "notification sent")
	return nil
}
