package orders

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/angelmondragon/dishdash-backend/pkg/db/models"
	"github.com/angelmondragon/dishdash-backend/pkg/enums"
	"github.com/angelmondragon/dishdash-backend/pkg/types"
)

// ItemInput is one cart line. Prices always come from the catalog.
type ItemInput struct {
	MenuItemID  uuid.UUID
	Quantity    int
	ModifierIDs []uuid.UUID
	Notes       *string
}

type CreateOrderInput struct {
	UserID          *uuid.UUID
	CustomerName    string
	CustomerEmail   *string
	CustomerPhone   *string
	Type            enums.OrderType
	DeliveryAddress *types.Address
	Items           []ItemInput
	Tip             decimal.Decimal
	Notes           *string
	CouponCode      *string
	GiftCardCode    *string
	GiftCardPIN     *string
	// GiftCardAmount caps how much of the card is applied; nil applies as much as the total allows.
	GiftCardAmount *decimal.Decimal
	LoyaltyPoints  int64
}

type UpdateStatusInput struct {
	OrderID uuid.UUID
	Status  string
	Reason  *string
	Actor   *Actor
}

type CancelInput struct {
	OrderID uuid.UUID
	Reason  *string
	Actor   *Actor
}

// Actor identifies the caller for ownership checks and event attribution.
type Actor struct {
	UserID uuid.UUID
	Role   string
	// Staff callers may act on any order.
	Staff bool
}

type MarkPaidInput struct {
	OrderID   uuid.UUID
	PaymentID uuid.UUID
	Method    enums.PaymentMethod
	Amount    decimal.Decimal
}

// MarkPaidResult reports whether this call performed the UNPAID -> PAID flip.
type MarkPaidResult struct {
	Order   *models.Order
	Changed bool
}

type OrderItemDTO struct {
	ID         uuid.UUID               `json:"id"`
	MenuItemID uuid.UUID               `json:"menu_item_id"`
	Name       string                  `json:"name"`
	UnitPrice  decimal.Decimal         `json:"unit_price"`
	Quantity   int                     `json:"quantity"`
	Modifiers  types.ModifierSnapshots `json:"modifiers"`
	LineTotal  decimal.Decimal         `json:"line_total"`
	Notes      *string                 `json:"notes,omitempty"`
}

type OrderDTO struct {
	ID                    uuid.UUID       `json:"id"`
	OrderNumber           int64           `json:"order_number"`
	UserID                *uuid.UUID      `json:"user_id,omitempty"`
	CustomerName          string          `json:"customer_name"`
	CustomerEmail         *string         `json:"customer_email,omitempty"`
	CustomerPhone         *string         `json:"customer_phone,omitempty"`
	DeliveryAddress       *types.Address  `json:"delivery_address,omitempty"`
	Type                  string          `json:"type"`
	Status                string          `json:"status"`
	PaymentStatus         string          `json:"payment_status"`
	Subtotal              decimal.Decimal `json:"subtotal"`
	Tax                   decimal.Decimal `json:"tax"`
	DeliveryFee           decimal.Decimal `json:"delivery_fee"`
	Tip                   decimal.Decimal `json:"tip"`
	Discount              decimal.Decimal `json:"discount"`
	Total                 decimal.Decimal `json:"total"`
	CouponID              *uuid.UUID      `json:"coupon_id,omitempty"`
	CouponDiscount        decimal.Decimal `json:"coupon_discount"`
	GiftCardID            *uuid.UUID      `json:"gift_card_id,omitempty"`
	GiftCardAmount        decimal.Decimal `json:"gift_card_amount"`
	LoyaltyPointsRedeemed int64           `json:"loyalty_points_redeemed"`
	LoyaltyDiscount       decimal.Decimal `json:"loyalty_discount"`
	Notes                 *string         `json:"notes,omitempty"`
	ConfirmedAt           *time.Time      `json:"confirmed_at,omitempty"`
	PreparingAt           *time.Time      `json:"preparing_at,omitempty"`
	ReadyAt               *time.Time      `json:"ready_at,omitempty"`
	OutForDeliveryAt      *time.Time      `json:"out_for_delivery_at,omitempty"`
	DeliveredAt           *time.Time      `json:"delivered_at,omitempty"`
	CancelledAt           *time.Time      `json:"cancelled_at,omitempty"`
	CancelReason          *string         `json:"cancel_reason,omitempty"`
	Items                 []OrderItemDTO  `json:"items,omitempty"`
	CreatedAt             time.Time       `json:"created_at"`
	UpdatedAt             time.Time       `json:"updated_at"`
}

type OrderList struct {
	Orders []OrderDTO `json:"orders"`
	Cursor string     `json:"cursor"`
}

func NewOrderDTO(order models.Order) OrderDTO {
	dto := OrderDTO{
		ID:                    order.ID,
		OrderNumber:           order.OrderNumber,
		UserID:                order.UserID,
		CustomerName:          order.CustomerName,
		CustomerEmail:         order.CustomerEmail,
		CustomerPhone:         order.CustomerPhone,
		DeliveryAddress:       order.DeliveryAddress,
		Type:                  string(order.Type),
		Status:                string(order.Status),
		PaymentStatus:         string(order.PaymentStatus),
		Subtotal:              order.Subtotal,
		Tax:                   order.Tax,
		DeliveryFee:           order.DeliveryFee,
		Tip:                   order.Tip,
		Discount:              order.Discount,
		Total:                 order.Total,
		CouponID:              order.CouponID,
		CouponDiscount:        order.CouponDiscount,
		GiftCardID:            order.GiftCardID,
		GiftCardAmount:        order.GiftCardAmount,
		LoyaltyPointsRedeemed: order.LoyaltyPointsRedeemed,
		LoyaltyDiscount:       order.LoyaltyDiscount,
		Notes:                 order.Notes,
		ConfirmedAt:           order.ConfirmedAt,
		PreparingAt:           order.PreparingAt,
		ReadyAt:               order.ReadyAt,
		OutForDeliveryAt:      order.OutForDeliveryAt,
		DeliveredAt:           order.DeliveredAt,
		CancelledAt:           order.CancelledAt,
		CancelReason:          order.CancelReason,
		CreatedAt:             order.CreatedAt,
		UpdatedAt:             order.UpdatedAt,
	}
	for _, item := range order.Items {
		dto.Items = append(dto.Items, OrderItemDTO{
			ID:         item.ID,
			MenuItemID: item.MenuItemID,
			Name:       item.Name,
			UnitPrice:  item.UnitPrice,
			Quantity:   item.Quantity,
			Modifiers:  item.Modifiers,
			LineTotal:  item.LineTotal,
			Notes:      item.Notes,
		})
	}
	return dto
}
