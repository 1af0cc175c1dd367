package coupons

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/angelmondragon/dishdash-backend/api/middleware"
	internalcoupons "github.com/angelmondragon/dishdash-backend/internal/coupons"
	"github.com/angelmondragon/dishdash-backend/pkg/db/models"
	"github.com/angelmondragon/dishdash-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/dishdash-backend/pkg/errors"
	"github.com/angelmondragon/dishdash-backend/pkg/logger"
)

type stubCouponsService struct {
	validateFn func(ctx context.Context, input internalcoupons.ValidateInput) (*internalcoupons.ValidationResult, error)
	createFn   func(ctx context.Context, input internalcoupons.CreateInput) (*models.Coupon, error)
}

func (s *stubCouponsService) Validate(ctx context.Context, input internalcoupons.ValidateInput) (*internalcoupons.ValidationResult, error) {
	return s.validateFn(ctx, input)
}

func (s *stubCouponsService) CalculateDiscount(models.Coupon, decimal.Decimal, decimal.Decimal) internalcoupons.DiscountResult {
	return internalcoupons.DiscountResult{}
}

func (s *stubCouponsService) RecordUsage(context.Context, *gorm.DB, internalcoupons.RecordUsageInput) error {
	return nil
}

func (s *stubCouponsService) Create(ctx context.Context, input internalcoupons.CreateInput) (*models.Coupon, error) {
	return s.createFn(ctx, input)
}

func (s *stubCouponsService) Get(context.Context, string) (*models.Coupon, error) {
	return nil, nil
}

func (s *stubCouponsService) ExpireStale(context.Context, time.Time) (int64, error) {
	return 0, nil
}

func testLogger() *logger.Logger {
	return logger.New(logger.Options{ServiceName: "test", Output: io.Discard})
}

func validResult(couponType enums.CouponType, amount string) *internalcoupons.ValidationResult {
	return &internalcoupons.ValidationResult{
		Valid: true,
		Coupon: &models.Coupon{
			ID:     uuid.New(),
			Code:   "SAVE10",
			Type:   couponType,
			Status: enums.CouponStatusActive,
		},
		Discount: internalcoupons.DiscountResult{Amount: decimal.RequireFromString(amount), Supported: true},
	}
}

func TestValidateForwardsCallerAndCart(t *testing.T) {
	userID := uuid.New()
	svc := &stubCouponsService{validateFn: func(_ context.Context, input internalcoupons.ValidateInput) (*internalcoupons.ValidationResult, error) {
		require.NotNil(t, input.UserID)
		assert.Equal(t, userID, *input.UserID)
		assert.Equal(t, "save10", input.Code)
		assert.True(t, input.Subtotal.Equal(decimal.RequireFromString("50.00")))
		return validResult(enums.CouponTypePercentage, "5.00"), nil
	}}

	req := httptest.NewRequest(http.MethodPost, "/api/v1/coupons/validate", strings.NewReader(`{"code":"save10","subtotal":"50.00","delivery_fee":"3.99"}`))
	req = req.WithContext(middleware.WithUserID(req.Context(), userID.String()))
	resp := httptest.NewRecorder()
	Validate(svc, testLogger())(resp, req)

	require.Equal(t, http.StatusOK, resp.Code)
	var envelope struct {
		Data struct {
			Valid    bool   `json:"valid"`
			Discount string `json:"discount"`
		} `json:"data"`
	}
	require.NoError(t, json.Unmarshal(resp.Body.Bytes(), &envelope))
	assert.True(t, envelope.Data.Valid)
	assert.Equal(t, "5", envelope.Data.Discount)
}

func TestValidateIneligibleReturnsReason(t *testing.T) {
	svc := &stubCouponsService{validateFn: func(context.Context, internalcoupons.ValidateInput) (*internalcoupons.ValidationResult, error) {
		return &internalcoupons.ValidationResult{Valid: false, Reason: "Coupon has expired"}, nil
	}}

	req := httptest.NewRequest(http.MethodPost, "/api/v1/coupons/validate", strings.NewReader(`{"code":"OLD","subtotal":"20"}`))
	resp := httptest.NewRecorder()
	Validate(svc, testLogger())(resp, req)

	require.Equal(t, http.StatusBadRequest, resp.Code)
	var envelope struct {
		Error struct {
			Code    string `json:"code"`
			Message string `json:"message"`
		} `json:"error"`
	}
	require.NoError(t, json.Unmarshal(resp.Body.Bytes(), &envelope))
	assert.Equal(t, string(pkgerrors.CodeBusinessRule), envelope.Error.Code)
	assert.Equal(t, "Coupon has expired", envelope.Error.Message)
}

func TestApplyFreeShippingReducesDeliveryFee(t *testing.T) {
	svc := &stubCouponsService{validateFn: func(context.Context, internalcoupons.ValidateInput) (*internalcoupons.ValidationResult, error) {
		return validResult(enums.CouponTypeFreeShipping, "3.99"), nil
	}}

	req := httptest.NewRequest(http.MethodPost, "/api/v1/coupons/apply", strings.NewReader(`{"code":"SHIPFREE","subtotal":"30.00","delivery_fee":"3.99"}`))
	resp := httptest.NewRecorder()
	Apply(svc, testLogger())(resp, req)

	require.Equal(t, http.StatusOK, resp.Code)
	var envelope struct {
		Data struct {
			SubtotalAfter    string `json:"subtotal_after_discount"`
			DeliveryFeeAfter string `json:"delivery_fee_after_discount"`
		} `json:"data"`
	}
	require.NoError(t, json.Unmarshal(resp.Body.Bytes(), &envelope))
	assert.Equal(t, "30", envelope.Data.SubtotalAfter)
	assert.Equal(t, "0", envelope.Data.DeliveryFeeAfter)
}

func TestApplyRejectsNegativeSubtotal(t *testing.T) {
	req := httptest.NewRequest(http.MethodPost, "/api/v1/coupons/apply", strings.NewReader(`{"code":"SAVE10","subtotal":"-1"}`))
	resp := httptest.NewRecorder()
	Apply(&stubCouponsService{}, testLogger())(resp, req)
	assert.Equal(t, http.StatusBadRequest, resp.Code)
}

func TestCreateRejectsUnknownType(t *testing.T) {
	req := httptest.NewRequest(http.MethodPost, "/api/v1/admin/coupons", strings.NewReader(`{"code":"X","type":"BOGUS","discount_value":"5"}`))
	resp := httptest.NewRecorder()
	Create(&stubCouponsService{}, testLogger())(resp, req)
	assert.Equal(t, http.StatusBadRequest, resp.Code)
}

func TestCreateDuplicateCodeConflicts(t *testing.T) {
	svc := &stubCouponsService{createFn: func(context.Context, internalcoupons.CreateInput) (*models.Coupon, error) {
		return nil, pkgerrors.New(pkgerrors.CodeConflict, "coupon code already exists")
	}}
	req := httptest.NewRequest(http.MethodPost, "/api/v1/admin/coupons", strings.NewReader(`{"code":"SAVE10","type":"FIXED","discount_value":"5"}`))
	resp := httptest.NewRecorder()
	Create(svc, testLogger())(resp, req)
	assert.Equal(t, http.StatusConflict, resp.Code)
}

func TestCreateReturnsCreated(t *testing.T) {
	svc := &stubCouponsService{createFn: func(_ context.Context, input internalcoupons.CreateInput) (*models.Coupon, error) {
		assert.Equal(t, enums.CouponTypePercentage, input.Type)
		require.NotNil(t, input.UsageLimit)
		assert.Equal(t, 100, *input.UsageLimit)
		return &models.Coupon{ID: uuid.New(), Code: "SAVE10", Type: input.Type, DiscountValue: input.DiscountValue, Status: enums.CouponStatusActive}, nil
	}}
	req := httptest.NewRequest(http.MethodPost, "/api/v1/admin/coupons", strings.NewReader(`{"code":"save10","type":"PERCENTAGE","discount_value":"10","usage_limit":100}`))
	resp := httptest.NewRecorder()
	Create(svc, testLogger())(resp, req)
	assert.Equal(t, http.StatusCreated, resp.Code)
}
