package payments

import (
	"context"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/angelmondragon/dishdash-backend/internal/gateway"
	"github.com/angelmondragon/dishdash-backend/pkg/db/models"
	"github.com/angelmondragon/dishdash-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/dishdash-backend/pkg/errors"
)

const (
	reasonCardFailed         = "Card payment failed"
	reasonConfirmationFailed = "Payment confirmation failed"
	reasonRefundCardOnly     = "Refund only supported for card payments"
	reasonOrderCancelled     = "Order was cancelled"
)

// MethodHandler implements one payment method variant.
type MethodHandler interface {
	Method() enums.PaymentMethod
	Authorize(ctx context.Context, req AuthorizeRequest) (*Authorization, error)
	Confirm(ctx context.Context, payment *models.Payment, paymentMethodID string) (*Authorization, error)
	Retrieve(ctx context.Context, payment *models.Payment) (*Authorization, error)
	Refund(ctx context.Context, payment *models.Payment, amount decimal.Decimal, reason string) (*RefundOutcome, error)
}

type AuthorizeRequest struct {
	Order          *models.Order
	Amount         decimal.Decimal
	Currency       string
	SourceID       string
	IdempotencyKey string
	CustomerID     string
}

// Authorization is the handler's view of where a payment landed.
type Authorization struct {
	Status         enums.PaymentStatus
	IntentID       *string
	IdempotencyKey *string
	RequiresAction bool
	FailureReason  *string
}

type RefundOutcome struct {
	RefundID string
	Amount   decimal.Decimal
}

// Registry resolves payment method strings to handlers.
type Registry struct {
	handlers map[enums.PaymentMethod]MethodHandler
}

func NewRegistry(handlers ...MethodHandler) *Registry {
	r := &Registry{handlers: make(map[enums.PaymentMethod]MethodHandler, len(handlers))}
	for _, h := range handlers {
		r.handlers[h.Method()] = h
	}
	return r
}

// Resolve rejects unknown strings as invalid input and known methods without
// a handler as not implemented.
func (r *Registry) Resolve(raw string) (MethodHandler, error) {
	method, err := enums.ParsePaymentMethod(strings.ToUpper(strings.TrimSpace(raw)))
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid payment method")
	}
	return r.ForMethod(method)
}

func (r *Registry) ForMethod(method enums.PaymentMethod) (MethodHandler, error) {
	handler, ok := r.handlers[method]
	if !ok {
		return nil, pkgerrors.New(pkgerrors.CodeBusinessRule, fmt.Sprintf("Payment method %s is not yet implemented", method))
	}
	return handler, nil
}

// CashHandler settles immediately at the counter or on delivery.
type CashHandler struct{}

func (CashHandler) Method() enums.PaymentMethod { return enums.PaymentMethodCash }

func (CashHandler) Authorize(_ context.Context, req AuthorizeRequest) (*Authorization, error) {
	auth := &Authorization{Status: enums.PaymentStatusCompleted}
	if key := strings.TrimSpace(req.IdempotencyKey); key != "" {
		auth.IdempotencyKey = &key
	}
	return auth, nil
}

func (CashHandler) Confirm(context.Context, *models.Payment, string) (*Authorization, error) {
	return nil, pkgerrors.New(pkgerrors.CodeBusinessRule, "Cash payments do not require confirmation")
}

func (CashHandler) Retrieve(_ context.Context, payment *models.Payment) (*Authorization, error) {
	return &Authorization{Status: payment.Status}, nil
}

func (CashHandler) Refund(context.Context, *models.Payment, decimal.Decimal, string) (*RefundOutcome, error) {
	return nil, pkgerrors.New(pkgerrors.CodeBusinessRule, reasonRefundCardOnly)
}

// CardHandler charges through the payment gateway.
type CardHandler struct {
	Gateway gateway.Gateway
}

func (CardHandler) Method() enums.PaymentMethod { return enums.PaymentMethodCard }

func (h CardHandler) Authorize(ctx context.Context, req AuthorizeRequest) (*Authorization, error) {
	source := strings.TrimSpace(req.SourceID)
	if source == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "source id is required for card payments")
	}
	cents := gateway.ToMinorUnits(req.Amount)
	key := strings.TrimSpace(req.IdempotencyKey)
	if key == "" {
		key = gateway.IdempotencyKey(req.Order.ID, source, cents)
	}
	intent, err := h.Gateway.CreateIntent(ctx, gateway.IntentParams{
		AmountCents:    cents,
		Currency:       req.Currency,
		SourceID:       source,
		OrderID:        req.Order.ID,
		CustomerID:     req.CustomerID,
		IdempotencyKey: key,
		Note:           fmt.Sprintf("Order #%d", req.Order.OrderNumber),
	})
	if err != nil {
		return nil, err
	}
	auth := fromIntent(intent, reasonCardFailed)
	auth.IdempotencyKey = &key
	return auth, nil
}

func (h CardHandler) Confirm(ctx context.Context, payment *models.Payment, paymentMethodID string) (*Authorization, error) {
	if payment.PaymentIntentID == nil {
		return nil, pkgerrors.New(pkgerrors.CodeStateConflict, "payment has no gateway intent")
	}
	intent, err := h.Gateway.ConfirmIntent(ctx, *payment.PaymentIntentID, paymentMethodID)
	if err != nil {
		return nil, err
	}
	return fromIntent(intent, reasonConfirmationFailed), nil
}

func (h CardHandler) Retrieve(ctx context.Context, payment *models.Payment) (*Authorization, error) {
	if payment.PaymentIntentID == nil {
		return nil, pkgerrors.New(pkgerrors.CodeStateConflict, "payment has no gateway intent")
	}
	intent, err := h.Gateway.RetrieveIntent(ctx, *payment.PaymentIntentID)
	if err != nil {
		return nil, err
	}
	return fromIntent(intent, reasonCardFailed), nil
}

func (h CardHandler) Refund(ctx context.Context, payment *models.Payment, amount decimal.Decimal, reason string) (*RefundOutcome, error) {
	if payment.PaymentIntentID == nil {
		return nil, pkgerrors.New(pkgerrors.CodeStateConflict, "payment has no gateway intent")
	}
	refund, err := h.Gateway.CreateRefund(ctx, gateway.RefundParams{
		IntentID:       *payment.PaymentIntentID,
		AmountCents:    gateway.ToMinorUnits(amount),
		Reason:         reason,
		IdempotencyKey: "ddr-" + payment.ID.String(),
	})
	if err != nil {
		return nil, err
	}
	return &RefundOutcome{RefundID: refund.ID, Amount: gateway.FromMinorUnits(refund.AmountCents)}, nil
}

func fromIntent(intent *gateway.Intent, fallbackReason string) *Authorization {
	id := intent.ID
	auth := &Authorization{IntentID: &id}
	switch intent.Status {
	case gateway.IntentSucceeded:
		auth.Status = enums.PaymentStatusCompleted
	case gateway.IntentRequiresAction:
		auth.Status = enums.PaymentStatusProcessing
		auth.RequiresAction = true
	case gateway.IntentProcessing:
		auth.Status = enums.PaymentStatusProcessing
	default:
		auth.Status = enums.PaymentStatusFailed
		reason := strings.TrimSpace(intent.FailureReason)
		if reason == "" {
			reason = fallbackReason
		}
		auth.FailureReason = &reason
	}
	return auth
}
