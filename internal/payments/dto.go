package payments

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/angelmondragon/dishdash-backend/internal/orders"
	"github.com/angelmondragon/dishdash-backend/pkg/db/models"
)

type ProcessInput struct {
	OrderID        uuid.UUID
	Amount         decimal.Decimal
	Method         string
	SourceID       *string
	IdempotencyKey *string
	Actor          *orders.Actor
}

type ProcessResult struct {
	Payment        *models.Payment
	Order          *models.Order
	RequiresAction bool
}

type ConfirmInput struct {
	IntentID        string
	PaymentMethodID *string
}

type RefundInput struct {
	PaymentID uuid.UUID
	// Amount nil refunds the full payment.
	Amount *decimal.Decimal
	Reason *string
}

type PaymentDTO struct {
	ID              uuid.UUID        `json:"id"`
	OrderID         uuid.UUID        `json:"order_id"`
	Amount          decimal.Decimal  `json:"amount"`
	Status          string           `json:"status"`
	PaymentMethod   string           `json:"payment_method"`
	PaymentIntentID *string          `json:"payment_intent_id,omitempty"`
	RefundID        *string          `json:"refund_id,omitempty"`
	RefundedAmount  *decimal.Decimal `json:"refunded_amount,omitempty"`
	FailureReason   *string          `json:"failure_reason,omitempty"`
	RequiresAction  bool             `json:"requires_action"`
	CreatedAt       time.Time        `json:"created_at"`
	UpdatedAt       time.Time        `json:"updated_at"`
}

func NewPaymentDTO(p models.Payment) PaymentDTO {
	return PaymentDTO{
		ID:              p.ID,
		OrderID:         p.OrderID,
		Amount:          p.Amount,
		Status:          string(p.Status),
		PaymentMethod:   string(p.PaymentMethod),
		PaymentIntentID: p.PaymentIntentID,
		RefundID:        p.RefundID,
		RefundedAmount:  p.RefundedAmount,
		FailureReason:   p.FailureReason,
		RequiresAction:  p.RequiresAction,
		CreatedAt:       p.CreatedAt,
		UpdatedAt:       p.UpdatedAt,
	}
}

// ProcessResponse is the API shape of a payment attempt.
type ProcessResponse struct {
	Payment        PaymentDTO      `json:"payment"`
	Order          orders.OrderDTO `json:"order"`
	RequiresAction bool            `json:"requires_action"`
}

func NewProcessResponse(result *ProcessResult) ProcessResponse {
	resp := ProcessResponse{RequiresAction: result.RequiresAction}
	if result.Payment != nil {
		resp.Payment = NewPaymentDTO(*result.Payment)
	}
	if result.Order != nil {
		resp.Order = orders.NewOrderDTO(*result.Order)
	}
	return resp
}
