package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/angelmondragon/dishdash-backend/pkg/enums"
	"github.com/angelmondragon/dishdash-backend/pkg/pagination"
	"github.com/angelmondragon/dishdash-backend/pkg/types"
)

// Order is the customer-facing order with totals frozen at checkout.
type Order struct {
	ID                    uuid.UUID                `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	OrderNumber           int64                    `gorm:"column:order_number;autoIncrement;not null"`
	UserID                *uuid.UUID               `gorm:"column:user_id;type:uuid"`
	CustomerName          string                   `gorm:"column:customer_name;not null"`
	CustomerEmail         *string                  `gorm:"column:customer_email"`
	CustomerPhone         *string                  `gorm:"column:customer_phone"`
	DeliveryAddress       *types.Address           `gorm:"column:delivery_address;type:jsonb;serializer:json"`
	Type                  enums.OrderType          `gorm:"column:type;type:text;not null"`
	Status                enums.OrderStatus        `gorm:"column:status;type:text;not null;default:'PENDING'"`
	PaymentStatus         enums.OrderPaymentStatus `gorm:"column:payment_status;type:text;not null;default:'UNPAID'"`
	Subtotal              decimal.Decimal          `gorm:"column:subtotal;type:numeric(12,2);not null"`
	Tax                   decimal.Decimal          `gorm:"column:tax;type:numeric(12,2);not null"`
	DeliveryFee           decimal.Decimal          `gorm:"column:delivery_fee;type:numeric(12,2);not null"`
	Tip                   decimal.Decimal          `gorm:"column:tip;type:numeric(12,2);not null"`
	Discount              decimal.Decimal          `gorm:"column:discount;type:numeric(12,2);not null"`
	Total                 decimal.Decimal          `gorm:"column:total;type:numeric(12,2);not null"`
	CouponID              *uuid.UUID               `gorm:"column:coupon_id;type:uuid"`
	CouponDiscount        decimal.Decimal          `gorm:"column:coupon_discount;type:numeric(12,2);not null"`
	GiftCardID            *uuid.UUID               `gorm:"column:gift_card_id;type:uuid"`
	GiftCardAmount        decimal.Decimal          `gorm:"column:gift_card_amount;type:numeric(12,2);not null"`
	LoyaltyPointsRedeemed int64                    `gorm:"column:loyalty_points_redeemed;not null;default:0"`
	LoyaltyDiscount       decimal.Decimal          `gorm:"column:loyalty_discount;type:numeric(12,2);not null"`
	Notes                 *string                  `gorm:"column:notes"`
	ConfirmedAt           *time.Time               `gorm:"column:confirmed_at"`
	PreparingAt           *time.Time               `gorm:"column:preparing_at"`
	ReadyAt               *time.Time               `gorm:"column:ready_at"`
	OutForDeliveryAt      *time.Time               `gorm:"column:out_for_delivery_at"`
	DeliveredAt           *time.Time               `gorm:"column:delivered_at"`
	ActualDeliveryTime    *time.Time               `gorm:"column:actual_delivery_time"`
	CancelledAt           *time.Time               `gorm:"column:cancelled_at"`
	CancelReason          *string                  `gorm:"column:cancel_reason"`
	Items                 []OrderItem              `gorm:"foreignKey:OrderID"`
	CreatedAt             time.Time                `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt             time.Time                `gorm:"column:updated_at;autoUpdateTime"`
}

func (o Order) PageKey() pagination.Cursor {
	return pagination.Cursor{CreatedAt: o.CreatedAt, ID: o.ID}
}

// OrderItem is an immutable price snapshot of one cart line.
type OrderItem struct {
	ID         uuid.UUID               `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	OrderID    uuid.UUID               `gorm:"column:order_id;type:uuid;not null"`
	MenuItemID uuid.UUID               `gorm:"column:menu_item_id;type:uuid;not null"`
	Name       string                  `gorm:"column:name;not null"`
	UnitPrice  decimal.Decimal         `gorm:"column:unit_price;type:numeric(12,2);not null"`
	Quantity   int                     `gorm:"column:quantity;not null"`
	Modifiers  types.ModifierSnapshots `gorm:"column:modifiers;type:jsonb;serializer:json"`
	LineTotal  decimal.Decimal         `gorm:"column:line_total;type:numeric(12,2);not null"`
	Notes      *string                 `gorm:"column:notes"`
	CreatedAt  time.Time               `gorm:"column:created_at;autoCreateTime"`
}
