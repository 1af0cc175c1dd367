package coupons

import (
	"net/http"
	"time"

	"github.com/shopspring/decimal"

	"github.com/angelmondragon/dishdash-backend/api/middleware"
	"github.com/angelmondragon/dishdash-backend/api/responses"
	"github.com/angelmondragon/dishdash-backend/api/validators"
	internalcoupons "github.com/angelmondragon/dishdash-backend/internal/coupons"
	"github.com/angelmondragon/dishdash-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/dishdash-backend/pkg/errors"
	"github.com/angelmondragon/dishdash-backend/pkg/logger"
)

type checkRequest struct {
	Code        string          `json:"code" validate:"required,max=64,redeemcode"`
	Subtotal    decimal.Decimal `json:"subtotal"`
	DeliveryFee decimal.Decimal `json:"delivery_fee"`
}

type createRequest struct {
	Code              string           `json:"code" validate:"required,max=64,redeemcode"`
	Type              string           `json:"type" validate:"required"`
	DiscountValue     decimal.Decimal  `json:"discount_value"`
	MaxDiscountAmount *decimal.Decimal `json:"max_discount_amount"`
	MinOrderAmount    *decimal.Decimal `json:"min_order_amount"`
	ValidFrom         *time.Time       `json:"valid_from"`
	ValidUntil        *time.Time       `json:"valid_until"`
	UsageLimit        *int             `json:"usage_limit" validate:"omitempty,min=1"`
	UsageLimitPerUser *int             `json:"usage_limit_per_user" validate:"omitempty,min=1"`
	Description       *string          `json:"description" validate:"omitempty,max=500"`
}

type validateResponse struct {
	Valid    bool                      `json:"valid"`
	Coupon   internalcoupons.CouponDTO `json:"coupon"`
	Discount decimal.Decimal           `json:"discount"`
}

type applyResponse struct {
	Code             string          `json:"code"`
	Discount         decimal.Decimal `json:"discount"`
	Supported        bool            `json:"supported"`
	SubtotalAfter    decimal.Decimal `json:"subtotal_after_discount"`
	DeliveryFeeAfter decimal.Decimal `json:"delivery_fee_after_discount"`
}

// Validate checks coupon eligibility for the caller's cart. Ineligible coupons
// answer 400 with the rejection reason.
func Validate(svc internalcoupons.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		result, ok := check(w, r, svc, logg)
		if !ok {
			return
		}
		responses.WriteSuccess(w, validateResponse{
			Valid:    true,
			Coupon:   internalcoupons.NewCouponDTO(*result.Coupon),
			Discount: result.Discount.Amount,
		})
	}
}

// Apply prices a coupon against the cart without recording usage; usage is
// recorded when the order is placed.
func Apply(svc internalcoupons.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		result, ok := check(w, r, svc, logg)
		if !ok {
			return
		}

		coupon := result.Coupon
		subtotal := result.Subtotal
		fee := result.DeliveryFee
		discount := result.Discount.Amount
		if coupon.Type == enums.CouponTypeFreeShipping {
			fee = fee.Sub(discount)
		} else {
			subtotal = subtotal.Sub(discount)
		}

		responses.WriteSuccess(w, applyResponse{
			Code:             coupon.Code,
			Discount:         discount,
			Supported:        result.Discount.Supported,
			SubtotalAfter:    subtotal,
			DeliveryFeeAfter: fee,
		})
	}
}

type checkedCoupon struct {
	*internalcoupons.ValidationResult
	Subtotal    decimal.Decimal
	DeliveryFee decimal.Decimal
}

func check(w http.ResponseWriter, r *http.Request, svc internalcoupons.Service, logg *logger.Logger) (*checkedCoupon, bool) {
	if svc == nil {
		responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "coupons service unavailable"))
		return nil, false
	}

	var payload checkRequest
	if err := validators.DecodeJSONBody(r, &payload); err != nil {
		responses.WriteError(r.Context(), logg, w, err)
		return nil, false
	}
	if payload.Subtotal.IsNegative() || payload.DeliveryFee.IsNegative() {
		responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeValidation, "amounts must not be negative"))
		return nil, false
	}

	input := internalcoupons.ValidateInput{
		Code:        payload.Code,
		Subtotal:    payload.Subtotal,
		DeliveryFee: payload.DeliveryFee,
	}
	if userID, ok := middleware.UserUUIDFromContext(r.Context()); ok {
		input.UserID = &userID
	}

	result, err := svc.Validate(r.Context(), input)
	if err != nil {
		responses.WriteError(r.Context(), logg, w, err)
		return nil, false
	}
	if !result.Valid {
		responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeBusinessRule, result.Reason))
		return nil, false
	}
	return &checkedCoupon{ValidationResult: result, Subtotal: payload.Subtotal, DeliveryFee: payload.DeliveryFee}, true
}

// Create registers a coupon. Operator only.
func Create(svc internalcoupons.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "coupons service unavailable"))
			return
		}

		var payload createRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		couponType, err := enums.ParseCouponType(payload.Type)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid coupon type"))
			return
		}

		coupon, err := svc.Create(r.Context(), internalcoupons.CreateInput{
			Code:              payload.Code,
			Type:              couponType,
			DiscountValue:     payload.DiscountValue,
			MaxDiscountAmount: payload.MaxDiscountAmount,
			MinOrderAmount:    payload.MinOrderAmount,
			ValidFrom:         payload.ValidFrom,
			ValidUntil:        payload.ValidUntil,
			UsageLimit:        payload.UsageLimit,
			UsageLimitPerUser: payload.UsageLimitPerUser,
			Description:       payload.Description,
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		ctx := logg.WithFields(r.Context(), map[string]any{
			"coupon_id":   coupon.ID.String(),
			"coupon_code": coupon.Code,
		})
		logg.Info(ctx, "coupon.created")
		responses.WriteSuccessStatus(w, http.StatusCreated, internalcoupons.NewCouponDTO(*coupon))
	}
}
