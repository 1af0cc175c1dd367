package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/angelmondragon/dishdash-backend/pkg/enums"
)

// Payment records one settlement attempt against an order.
type Payment struct {
	ID              uuid.UUID           `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	OrderID         uuid.UUID           `gorm:"column:order_id;type:uuid;not null"`
	Amount          decimal.Decimal     `gorm:"column:amount;type:numeric(12,2);not null"`
	Status          enums.PaymentStatus `gorm:"column:status;type:text;not null"`
	PaymentMethod   enums.PaymentMethod `gorm:"column:payment_method;type:text;not null"`
	PaymentIntentID *string             `gorm:"column:payment_intent_id"`
	IdempotencyKey  *string             `gorm:"column:idempotency_key"`
	RefundID        *string             `gorm:"column:refund_id"`
	RefundedAmount  *decimal.Decimal    `gorm:"column:refunded_amount;type:numeric(12,2)"`
	FailureReason   *string             `gorm:"column:failure_reason"`
	RequiresAction  bool                `gorm:"column:requires_action;not null;default:false"`
	CreatedAt       time.Time           `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt       time.Time           `gorm:"column:updated_at;autoUpdateTime"`
}
