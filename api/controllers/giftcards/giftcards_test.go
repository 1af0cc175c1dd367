package giftcards

import (
	"context"
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

	internalgiftcards "github.com/angelmondragon/dishdash-backend/internal/giftcards"
	"github.com/angelmondragon/dishdash-backend/pkg/db/models"
	"github.com/angelmondragon/dishdash-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/dishdash-backend/pkg/errors"
	"github.com/angelmondragon/dishdash-backend/pkg/logger"
)

type stubGiftCardsService struct {
	balanceFn func(ctx context.Context, code string, pin *string) (*internalgiftcards.BalanceDTO, error)
	useFn     func(ctx context.Context, tx *gorm.DB, input internalgiftcards.UseInput) (*internalgiftcards.UseResult, error)
	issueFn   func(ctx context.Context, input internalgiftcards.IssueInput) (*models.GiftCard, error)
}

func (s *stubGiftCardsService) Validate(context.Context, string, *string) (*internalgiftcards.ValidationResult, error) {
	return nil, nil
}

func (s *stubGiftCardsService) CheckBalance(ctx context.Context, code string, pin *string) (*internalgiftcards.BalanceDTO, error) {
	return s.balanceFn(ctx, code, pin)
}

func (s *stubGiftCardsService) Use(ctx context.Context, tx *gorm.DB, input internalgiftcards.UseInput) (*internalgiftcards.UseResult, error) {
	return s.useFn(ctx, tx, input)
}

func (s *stubGiftCardsService) Refund(context.Context, *gorm.DB, internalgiftcards.RefundInput) (*internalgiftcards.RefundResult, error) {
	return nil, nil
}

func (s *stubGiftCardsService) Issue(ctx context.Context, input internalgiftcards.IssueInput) (*models.GiftCard, error) {
	return s.issueFn(ctx, input)
}

func (s *stubGiftCardsService) ExpireStale(context.Context, time.Time) (int64, error) {
	return 0, nil
}

func (s *stubGiftCardsService) ListTransactions(context.Context, uuid.UUID) ([]models.GiftCardTransaction, error) {
	return nil, nil
}

func testLogger() *logger.Logger {
	return logger.New(logger.Options{ServiceName: "test", Output: io.Discard})
}

func TestBalanceStatusMapping(t *testing.T) {
	cases := []struct {
		name   string
		err    error
		status int
	}{
		{"found", nil, http.StatusOK},
		{"unknown code", pkgerrors.New(pkgerrors.CodeNotFound, "Gift card not found"), http.StatusNotFound},
		{"pin required", pkgerrors.New(pkgerrors.CodeValidation, "Gift card PIN required"), http.StatusBadRequest},
		{"wrong pin", pkgerrors.New(pkgerrors.CodeBusinessRule, "Invalid gift card PIN"), http.StatusBadRequest},
		{"too many attempts", pkgerrors.New(pkgerrors.CodeRateLimit, "too many attempts"), http.StatusTooManyRequests},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			svc := &stubGiftCardsService{balanceFn: func(_ context.Context, code string, pin *string) (*internalgiftcards.BalanceDTO, error) {
				assert.Equal(t, "GC-ABC", code)
				require.NotNil(t, pin)
				assert.Equal(t, "1234", *pin)
				if tc.err != nil {
					return nil, tc.err
				}
				return &internalgiftcards.BalanceDTO{Code: code, CurrentBalance: decimal.NewFromInt(25), Status: string(enums.GiftCardStatusActive)}, nil
			}}

			req := httptest.NewRequest(http.MethodPost, "/api/v1/gift-cards/balance", strings.NewReader(`{"code":"GC-ABC","pin":"1234"}`))
			resp := httptest.NewRecorder()
			Balance(svc, testLogger())(resp, req)
			assert.Equal(t, tc.status, resp.Code)
		})
	}
}

func TestUseRejectsNonPositiveAmount(t *testing.T) {
	req := httptest.NewRequest(http.MethodPost, "/api/v1/gift-cards/use", strings.NewReader(`{"code":"GC-ABC","amount":"0"}`))
	resp := httptest.NewRecorder()
	Use(&stubGiftCardsService{}, testLogger())(resp, req)
	assert.Equal(t, http.StatusBadRequest, resp.Code)
}

func TestUseInsufficientBalance(t *testing.T) {
	svc := &stubGiftCardsService{useFn: func(_ context.Context, tx *gorm.DB, input internalgiftcards.UseInput) (*internalgiftcards.UseResult, error) {
		assert.Nil(t, tx)
		assert.True(t, input.Amount.Equal(decimal.RequireFromString("80.00")))
		return nil, pkgerrors.New(pkgerrors.CodeBusinessRule, "Insufficient balance")
	}}
	req := httptest.NewRequest(http.MethodPost, "/api/v1/gift-cards/use", strings.NewReader(`{"code":"GC-ABC","amount":"80.00"}`))
	resp := httptest.NewRecorder()
	Use(svc, testLogger())(resp, req)
	assert.Equal(t, http.StatusBadRequest, resp.Code)
	assert.Contains(t, resp.Body.String(), "Insufficient balance")
}

func TestUseSuccess(t *testing.T) {
	cardID := uuid.New()
	svc := &stubGiftCardsService{useFn: func(context.Context, *gorm.DB, internalgiftcards.UseInput) (*internalgiftcards.UseResult, error) {
		return &internalgiftcards.UseResult{
			GiftCardID:   cardID,
			Amount:       decimal.RequireFromString("30"),
			BalanceAfter: decimal.RequireFromString("20"),
			Status:       string(enums.GiftCardStatusActive),
		}, nil
	}}
	req := httptest.NewRequest(http.MethodPost, "/api/v1/gift-cards/use", strings.NewReader(`{"code":"GC-ABC","amount":"30"}`))
	resp := httptest.NewRecorder()
	Use(svc, testLogger())(resp, req)
	require.Equal(t, http.StatusOK, resp.Code)
	assert.Contains(t, resp.Body.String(), cardID.String())
}

func TestIssueReturnsCreatedWithoutPinHash(t *testing.T) {
	hash := "argon2id$secret"
	svc := &stubGiftCardsService{issueFn: func(_ context.Context, input internalgiftcards.IssueInput) (*models.GiftCard, error) {
		return &models.GiftCard{
			ID:              uuid.New(),
			Code:            "GC-NEW",
			PINHash:         &hash,
			OriginalBalance: input.Amount,
			CurrentBalance:  input.Amount,
			Status:          enums.GiftCardStatusActive,
		}, nil
	}}
	req := httptest.NewRequest(http.MethodPost, "/api/v1/admin/gift-cards", strings.NewReader(`{"amount":"50","pin":"4321"}`))
	resp := httptest.NewRecorder()
	Issue(svc, testLogger())(resp, req)
	require.Equal(t, http.StatusCreated, resp.Code)
	assert.NotContains(t, resp.Body.String(), hash)
	assert.Contains(t, resp.Body.String(), "GC-NEW")
}
