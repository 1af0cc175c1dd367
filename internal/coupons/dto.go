package coupons

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/angelmondragon/dishdash-backend/pkg/db/models"
	"github.com/angelmondragon/dishdash-backend/pkg/enums"
)

type ValidateInput struct {
	Code        string
	UserID      *uuid.UUID
	Subtotal    decimal.Decimal
	DeliveryFee decimal.Decimal
}

// ValidationResult is never an error for ineligible coupons; Reason explains
// the rejection instead.
type ValidationResult struct {
	Valid    bool
	Reason   string
	Coupon   *models.Coupon
	Discount DiscountResult
}

// DiscountResult carries Supported=false for coupon types without a pricing rule.
type DiscountResult struct {
	Amount    decimal.Decimal
	Supported bool
}

type RecordUsageInput struct {
	CouponID uuid.UUID
	UserID   *uuid.UUID
	OrderID  uuid.UUID
	Discount decimal.Decimal
}

type CreateInput struct {
	Code              string
	Type              enums.CouponType
	DiscountValue     decimal.Decimal
	MaxDiscountAmount *decimal.Decimal
	MinOrderAmount    *decimal.Decimal
	ValidFrom         *time.Time
	ValidUntil        *time.Time
	UsageLimit        *int
	UsageLimitPerUser *int
	Description       *string
}

// CouponDTO is the API representation of a coupon.
type CouponDTO struct {
	ID                uuid.UUID        `json:"id"`
	Code              string           `json:"code"`
	Type              string           `json:"type"`
	DiscountValue     decimal.Decimal  `json:"discount_value"`
	MaxDiscountAmount *decimal.Decimal `json:"max_discount_amount,omitempty"`
	MinOrderAmount    *decimal.Decimal `json:"min_order_amount,omitempty"`
	ValidFrom         *time.Time       `json:"valid_from,omitempty"`
	ValidUntil        *time.Time       `json:"valid_until,omitempty"`
	UsageLimit        *int             `json:"usage_limit,omitempty"`
	UsageLimitPerUser *int             `json:"usage_limit_per_user,omitempty"`
	UsageCount        int              `json:"usage_count"`
	Status            string           `json:"status"`
	Description       *string          `json:"description,omitempty"`
}

func NewCouponDTO(c models.Coupon) CouponDTO {
	return CouponDTO{
		ID:                c.ID,
		Code:              c.Code,
		Type:              string(c.Type),
		DiscountValue:     c.DiscountValue,
		MaxDiscountAmount: c.MaxDiscountAmount,
		MinOrderAmount:    c.MinOrderAmount,
		ValidFrom:         c.ValidFrom,
		ValidUntil:        c.ValidUntil,
		UsageLimit:        c.UsageLimit,
		UsageLimitPerUser: c.UsageLimitPerUser,
		UsageCount:        c.UsageCount,
		Status:            string(c.Status),
		Description:       c.Description,
	}
}
