package main

import (
	"context"
	"errors"
	"fmt"
	"time"

	gcppubsub "cloud.google.com/go/pubsub/v2"
	"gorm.io/gorm"

	"github.com/angelmondragon/dishdash-backend/pkg/db/models"
	"github.com/angelmondragon/dishdash-backend/pkg/enums"
	"github.com/angelmondragon/dishdash-backend/pkg/outbox/registry"
)

var errNoPublisher = errors.New("no publisher for topic")

// relay publishes one claimed row and records the outcome on it. The
// returned error only reports bookkeeping failures, which abort the batch.
func (s *Service) relay(ctx context.Context, tx *gorm.DB, event models.OutboxEvent) error {
	ctx = s.logg.WithFields(ctx, map[string]any{
		"outbox_id":      event.ID.String(),
		"event_type":     event.EventType,
		"aggregate_type": event.AggregateType,
		"aggregate_id":   event.AggregateID.String(),
		"attempt_count":  event.AttemptCount,
	})

	resolved, err := s.registry.Resolve(event)
	if err != nil {
		return s.deadLetter(ctx, tx, event, enums.OutboxDLQReasonNonRetryable, err)
	}
	ctx = s.logg.WithFields(ctx, map[string]any{
		"event_id": resolved.EventID.String(),
		"topic":    resolved.Descriptor.Topic,
	})

	err = s.publish(ctx, event, resolved)
	switch {
	case err == nil:
		if err := s.repo.MarkPublishedTx(tx, event.ID); err != nil {
			return fmt.Errorf("mark published %s: %w", event.ID, err)
		}
		s.metrics.IncPublished(string(event.EventType))
		s.logg.Debug(ctx, "outbox event published")
		return nil
	case errors.Is(err, errNoPublisher):
		return s.deadLetter(ctx, tx, event, enums.OutboxDLQReasonUnroutable, err)
	case errors.Is(err, registry.ErrUnpublishable):
		return s.deadLetter(ctx, tx, event, enums.OutboxDLQReasonNonRetryable, err)
	case event.AttemptCount+1 >= s.maxAttempts:
		event.AttemptCount++
		return s.deadLetter(ctx, tx, event, enums.OutboxDLQReasonMaxAttempts, fmt.Errorf("gave up after %d attempts: %w", event.AttemptCount, err))
	}

	s.logg.Warn(s.logg.WithField(ctx, "error", err.Error()), "outbox publish failed, will retry")
	s.metrics.IncFailed(string(event.EventType))
	if markErr := s.repo.MarkFailedTx(tx, event.ID, err); markErr != nil {
		return fmt.Errorf("mark failed %s: %w", event.ID, markErr)
	}
	return nil
}

func (s *Service) deadLetter(ctx context.Context, tx *gorm.DB, event models.OutboxEvent, reason enums.OutboxDLQErrorReason, cause error) error {
	s.logg.Warn(s.logg.WithFields(ctx, map[string]any{
		"error":        cause.Error(),
		"error_reason": reason,
	}), "outbox event dead-lettered")
	if err := s.repo.DeadLetterTx(tx, event, reason, cause); err != nil {
		return fmt.Errorf("dead-letter %s: %w", event.ID, err)
	}
	s.metrics.IncDeadLettered(string(event.EventType), string(reason))
	return nil
}

// publish sends the stored envelope verbatim. Messages of one aggregate share
// an ordering key so subscribers see them in commit order.
func (s *Service) publish(ctx context.Context, event models.OutboxEvent, resolved *registry.ResolvedEvent) error {
	topic := resolved.Descriptor.Topic
	pub := s.pubsub.Publisher(topic)
	if pub == nil {
		return fmt.Errorf("%w %s", errNoPublisher, topic)
	}

	msg := &gcppubsub.Message{
		Data:        event.Payload,
		OrderingKey: event.OrderingKey(),
		Attributes: map[string]string{
			"event_id":       resolved.EventID.String(),
			"event_type":     string(event.EventType),
			"aggregate_type": string(event.AggregateType),
			"aggregate_id":   event.AggregateID.String(),
			"created_at":     event.CreatedAt.UTC().Format(time.RFC3339Nano),
		},
	}

	publishCtx, cancel := context.WithTimeout(ctx, defaultPublishTimeout)
	defer cancel()
	_, err := pub.Publish(publishCtx, msg)
	return err
}
