package models

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/dishdash-backend/pkg/enums"
)

// OutboxEvent is a domain event written in the same transaction as the state
// change it describes. The row id doubles as the event id seen by consumers.
type OutboxEvent struct {
	ID             uuid.UUID                 `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	EventType      enums.OutboxEventType     `gorm:"column:event_type;type:text;not null"`
	AggregateType  enums.OutboxAggregateType `gorm:"column:aggregate_type;type:text;not null"`
	AggregateID    uuid.UUID                 `gorm:"column:aggregate_id;type:uuid;not null"`
	Payload        json.RawMessage           `gorm:"column:payload;type:jsonb;not null"`
	AttemptCount   int                       `gorm:"column:attempt_count;not null;default:0"`
	LastError      *string                   `gorm:"column:last_error"`
	CreatedAt      time.Time                 `gorm:"column:created_at;autoCreateTime"`
	PublishedAt    *time.Time                `gorm:"column:published_at"`
	DeadLetteredAt *time.Time                `gorm:"column:dead_lettered_at"`
}

// OrderingKey groups the events of one aggregate so they are delivered in
// commit order.
func (e OutboxEvent) OrderingKey() string {
	return string(e.AggregateType) + ":" + e.AggregateID.String()
}

// Pending reports whether the relay should still try to publish the row.
func (e OutboxEvent) Pending() bool {
	return e.PublishedAt == nil && e.DeadLetteredAt == nil
}
