package coupons

import (
	"github.com/shopspring/decimal"

	"github.com/angelmondragon/dishdash-backend/pkg/db/models"
	"github.com/angelmondragon/dishdash-backend/pkg/enums"
)

var hundred = decimal.NewFromInt(100)

// CalculateDiscount prices a coupon against an order subtotal and delivery fee.
func CalculateDiscount(coupon models.Coupon, subtotal, deliveryFee decimal.Decimal) DiscountResult {
	switch coupon.Type {
	case enums.CouponTypePercentage:
		amount := subtotal.Mul(coupon.DiscountValue).Div(hundred).Round(2)
		if coupon.MaxDiscountAmount != nil && amount.GreaterThan(*coupon.MaxDiscountAmount) {
			amount = *coupon.MaxDiscountAmount
		}
		return DiscountResult{Amount: amount, Supported: true}
	case enums.CouponTypeFixed:
		return DiscountResult{Amount: decimal.Min(coupon.DiscountValue, subtotal), Supported: true}
	case enums.CouponTypeFreeShipping:
		return DiscountResult{Amount: deliveryFee, Supported: true}
	default:
		// BUY_X_GET_Y has no pricing rule yet.
		return DiscountResult{Amount: decimal.Zero, Supported: false}
	}
}
