package pubsub

import (
	"context"
	"errors"

	pubsub "cloud.google.com/go/pubsub/v2"
)

// TopicPublisher publishes raw payloads to one topic and waits for the server ack.
type TopicPublisher struct {
	publisher *pubsub.Publisher
}

func NewTopicPublisher(publisher *pubsub.Publisher) *TopicPublisher {
	return &TopicPublisher{publisher: publisher}
}

// Publish returns the server-assigned message id.
func (t *TopicPublisher) Publish(ctx context.Context, data []byte, attributes map[string]string) (string, error) {
	if t == nil || t.publisher == nil {
		return "", errors.New("pubsub publisher not configured")
	}
	result := t.publisher.Publish(ctx, &pubsub.Message{Data: data, Attributes: attributes})
	return result.Get(ctx)
}

// Stop flushes pending messages.
func (t *TopicPublisher) Stop() {
	if t == nil || t.publisher == nil {
		return
	}
	t.publisher.Stop()
}
