package main

import (
	"context"

	gcppubsub "cloud.google.com/go/pubsub/v2"

	"github.com/angelmondragon/dishdash-backend/pkg/pubsub"
)

// publisher sends one message and waits for the server ack.
type publisher interface {
	Publish(ctx context.Context, msg *gcppubsub.Message) (string, error)
}

// gcpClient adapts the shared Pub/Sub client to the relay.
type gcpClient struct {
	client *pubsub.Client
}

func (c gcpClient) Ping(ctx context.Context) error {
	return c.client.Ping(ctx)
}

func (c gcpClient) Publisher(topic string) publisher {
	raw := c.client.OrderedPublisher(topic)
	if raw == nil {
		return nil
	}
	return orderedPublisher{raw: raw}
}

type orderedPublisher struct {
	raw *gcppubsub.Publisher
}

// Publish resumes the ordering key after a failure; Pub/Sub pauses a key
// once any of its messages fails.
func (p orderedPublisher) Publish(ctx context.Context, msg *gcppubsub.Message) (string, error) {
	id, err := p.raw.Publish(ctx, msg).Get(ctx)
	if err != nil && msg.OrderingKey != "" {
		p.raw.ResumePublish(msg.OrderingKey)
	}
	return id, err
}
