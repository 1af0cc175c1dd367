package payloads

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/angelmondragon/dishdash-backend/pkg/enums"
)

// OrderCreatedEvent is emitted once checkout commits an order.
type OrderCreatedEvent struct {
	OrderID     uuid.UUID       `json:"order_id"`
	OrderNumber int64           `json:"order_number"`
	UserID      *uuid.UUID      `json:"user_id,omitempty"`
	Type        enums.OrderType `json:"type"`
	Total       decimal.Decimal `json:"total"`
	Discount    decimal.Decimal `json:"discount"`
	CouponID    *uuid.UUID      `json:"coupon_id,omitempty"`
	GiftCardID  *uuid.UUID      `json:"gift_card_id,omitempty"`
}

// OrderStatusChangedEvent is emitted on every order state machine transition.
type OrderStatusChangedEvent struct {
	OrderID   uuid.UUID         `json:"order_id"`
	UserID    *uuid.UUID        `json:"user_id,omitempty"`
	From      enums.OrderStatus `json:"from"`
	To        enums.OrderStatus `json:"to"`
	Reason    string            `json:"reason,omitempty"`
	ChangedAt time.Time         `json:"changed_at"`
}

// OrderPaidEvent is emitted when a payment settles an order.
type OrderPaidEvent struct {
	OrderID   uuid.UUID           `json:"order_id"`
	PaymentID uuid.UUID           `json:"payment_id"`
	Method    enums.PaymentMethod `json:"method"`
	Amount    decimal.Decimal     `json:"amount"`
	PaidAt    time.Time           `json:"paid_at"`
}

// PaymentFailedEvent is emitted when the card processor declines a charge.
type PaymentFailedEvent struct {
	OrderID   uuid.UUID `json:"order_id"`
	PaymentID uuid.UUID `json:"payment_id"`
	Reason    string    `json:"reason"`
}

// PaymentRefundedEvent is emitted after a processor refund succeeds.
type PaymentRefundedEvent struct {
	OrderID   uuid.UUID       `json:"order_id"`
	PaymentID uuid.UUID       `json:"payment_id"`
	RefundID  string          `json:"refund_id"`
	Amount    decimal.Decimal `json:"amount"`
}

// DeliveryAssignedEvent is emitted when dispatch assigns a driver.
type DeliveryAssignedEvent struct {
	DeliveryID uuid.UUID `json:"delivery_id"`
	OrderID    uuid.UUID `json:"order_id"`
	DriverID   uuid.UUID `json:"driver_id"`
	AssignedAt time.Time `json:"assigned_at"`
}

// DeliveryStatusChangedEvent is emitted on driver-driven delivery transitions.
type DeliveryStatusChangedEvent struct {
	DeliveryID uuid.UUID            `json:"delivery_id"`
	OrderID    uuid.UUID            `json:"order_id"`
	DriverID   *uuid.UUID           `json:"driver_id,omitempty"`
	From       enums.DeliveryStatus `json:"from"`
	To         enums.DeliveryStatus `json:"to"`
	Reason     string               `json:"reason,omitempty"`
}
