package giftcards

import (
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/angelmondragon/dishdash-backend/api/responses"
	"github.com/angelmondragon/dishdash-backend/api/validators"
	internalgiftcards "github.com/angelmondragon/dishdash-backend/internal/giftcards"
	pkgerrors "github.com/angelmondragon/dishdash-backend/pkg/errors"
	"github.com/angelmondragon/dishdash-backend/pkg/logger"
)

type balanceRequest struct {
	Code string  `json:"code" validate:"required,max=64,redeemcode"`
	PIN  *string `json:"pin" validate:"omitempty,max=32"`
}

type useRequest struct {
	Code    string          `json:"code" validate:"required,max=64,redeemcode"`
	PIN     *string         `json:"pin" validate:"omitempty,max=32"`
	Amount  decimal.Decimal `json:"amount"`
	OrderID *uuid.UUID      `json:"order_id"`
}

type issueRequest struct {
	Amount         decimal.Decimal `json:"amount"`
	PIN            *string         `json:"pin" validate:"omitempty,min=4,max=32"`
	ExpiresAt      *time.Time      `json:"expires_at"`
	PurchaserEmail *string         `json:"purchaser_email" validate:"omitempty,email"`
}

type useResponse struct {
	GiftCardID   uuid.UUID       `json:"gift_card_id"`
	Amount       decimal.Decimal `json:"amount"`
	BalanceAfter decimal.Decimal `json:"balance_after"`
	Status       string          `json:"status"`
}

// Balance reports the balance of a gift card. PIN-protected cards require the PIN.
func Balance(svc internalgiftcards.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "gift cards service unavailable"))
			return
		}

		var payload balanceRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		balance, err := svc.CheckBalance(r.Context(), payload.Code, payload.PIN)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, balance)
	}
}

// Use redeems value from a gift card at the counter. Staff only.
func Use(svc internalgiftcards.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "gift cards service unavailable"))
			return
		}

		var payload useRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		if !payload.Amount.IsPositive() {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeValidation, "amount must be positive"))
			return
		}

		result, err := svc.Use(r.Context(), nil, internalgiftcards.UseInput{
			Code:    payload.Code,
			PIN:     payload.PIN,
			Amount:  payload.Amount,
			OrderID: payload.OrderID,
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		ctx := logg.WithFields(r.Context(), map[string]any{
			"gift_card_id": result.GiftCardID.String(),
			"amount":       result.Amount.String(),
		})
		logg.Info(ctx, "gift_card.used")
		responses.WriteSuccess(w, useResponse{
			GiftCardID:   result.GiftCardID,
			Amount:       result.Amount,
			BalanceAfter: result.BalanceAfter,
			Status:       result.Status,
		})
	}
}

// Issue creates a new gift card and returns its generated code. Operator only.
func Issue(svc internalgiftcards.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "gift cards service unavailable"))
			return
		}

		var payload issueRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		card, err := svc.Issue(r.Context(), internalgiftcards.IssueInput{
			Amount:         payload.Amount,
			PIN:            payload.PIN,
			ExpiresAt:      payload.ExpiresAt,
			PurchaserEmail: payload.PurchaserEmail,
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		logg.Info(logg.WithField(r.Context(), "gift_card_id", card.ID.String()), "gift_card.issued")
		responses.WriteSuccessStatus(w, http.StatusCreated, internalgiftcards.NewBalanceDTO(*card))
	}
}
