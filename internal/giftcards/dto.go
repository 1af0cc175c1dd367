package giftcards

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/angelmondragon/dishdash-backend/pkg/db/models"
)

type ValidationResult struct {
	Valid    bool
	Reason   string
	GiftCard *models.GiftCard
	Balance  decimal.Decimal
}

// UseInput identifies the card by ID (already validated by the caller) or by
// code, in which case the PIN is checked.
type UseInput struct {
	GiftCardID *uuid.UUID
	Code       string
	PIN        *string
	Amount     decimal.Decimal
	OrderID    *uuid.UUID
}

type UseResult struct {
	GiftCardID   uuid.UUID
	Amount       decimal.Decimal
	BalanceAfter decimal.Decimal
	Status       string
}

type RefundInput struct {
	GiftCardID uuid.UUID
	Amount     decimal.Decimal
	OrderID    *uuid.UUID
}

type RefundResult struct {
	GiftCardID   uuid.UUID
	Restored     decimal.Decimal
	BalanceAfter decimal.Decimal
	Status       string
}

type IssueInput struct {
	Amount         decimal.Decimal
	PIN            *string
	ExpiresAt      *time.Time
	PurchaserEmail *string
}

// BalanceDTO is returned by balance checks; the PIN hash never leaves the service.
type BalanceDTO struct {
	ID              uuid.UUID       `json:"id"`
	Code            string          `json:"code"`
	CurrentBalance  decimal.Decimal `json:"current_balance"`
	OriginalBalance decimal.Decimal `json:"original_balance"`
	Status          string          `json:"status"`
	ExpiresAt       *time.Time      `json:"expires_at,omitempty"`
}

func NewBalanceDTO(card models.GiftCard) BalanceDTO {
	return BalanceDTO{
		ID:              card.ID,
		Code:            card.Code,
		CurrentBalance:  card.CurrentBalance,
		OriginalBalance: card.OriginalBalance,
		Status:          string(card.Status),
		ExpiresAt:       card.ExpiresAt,
	}
}
