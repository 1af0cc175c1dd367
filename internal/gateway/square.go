package gateway

import (
	"context"
	"errors"
	"fmt"
	"strings"

	sq "github.com/square/square-go-sdk"

	pkgerrors "github.com/angelmondragon/dishdash-backend/pkg/errors"
	"github.com/angelmondragon/dishdash-backend/pkg/logger"
	"github.com/angelmondragon/dishdash-backend/pkg/square"
)

const (
	squareStatusApproved  = "APPROVED"
	squareStatusPending   = "PENDING"
	squareStatusCompleted = "COMPLETED"
	squareStatusCanceled  = "CANCELED"
	squareStatusFailed    = "FAILED"

	squareRefundRejected = "REJECTED"
	squareRefundFailed   = "FAILED"

	defaultFailureReason = "Card payment failed"
)

// SquareAPI is the subset of pkg/square the gateway relies on.
type SquareAPI interface {
	CreatePayment(ctx context.Context, params square.PaymentCreateParams) (*sq.Payment, error)
	GetPayment(ctx context.Context, paymentID string) (*sq.Payment, error)
	CompletePayment(ctx context.Context, paymentID string) (*sq.Payment, error)
	RefundPayment(ctx context.Context, params square.RefundCreateParams) (*sq.PaymentRefund, error)
	EnsureCustomer(ctx context.Context, params square.CustomerCreateParams) (*sq.Customer, error)
}

type SquareGatewayParams struct {
	Client         SquareAPI
	DelayedCapture bool
	Currency       string
	Logger         *logger.Logger
}

// SquareGateway implements Gateway over the Square Payments API.
type SquareGateway struct {
	client         SquareAPI
	delayedCapture bool
	currency       string
	logg           *logger.Logger
}

func NewSquareGateway(params SquareGatewayParams) (*SquareGateway, error) {
	if params.Client == nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "square client is required")
	}
	currency := strings.ToUpper(strings.TrimSpace(params.Currency))
	if currency == "" {
		currency = "USD"
	}
	return &SquareGateway{
		client:         params.Client,
		delayedCapture: params.DelayedCapture,
		currency:       currency,
		logg:           params.Logger,
	}, nil
}

func (g *SquareGateway) CreateIntent(ctx context.Context, params IntentParams) (*Intent, error) {
	if params.AmountCents <= 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "amount must be positive")
	}
	if strings.TrimSpace(params.SourceID) == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "payment source is required")
	}
	key := params.IdempotencyKey
	if key == "" {
		key = IdempotencyKey(params.OrderID, params.SourceID, params.AmountCents)
	}

	payment, err := g.client.CreatePayment(ctx, square.PaymentCreateParams{
		AmountCents:    params.AmountCents,
		Currency:       g.currencyFor(params.Currency),
		CustomerID:     params.CustomerID,
		SourceID:       params.SourceID,
		IdempotencyKey: key,
		Note:           params.Note,
		ReferenceID:    params.OrderID.String(),
		Autocomplete:   !g.delayedCapture,
	})
	if err != nil {
		if declined, ok := declineFrom(err); ok {
			g.warn(ctx, "card payment declined", params.OrderID.String(), declined.FailureReason)
			declined.AmountCents = params.AmountCents
			declined.ReferenceID = params.OrderID.String()
			return declined, nil
		}
		return nil, g.mapError(err, "create intent")
	}
	return intentFromPayment(payment), nil
}

// ConfirmIntent captures an approved payment. Square completes with the source used at
// creation, so paymentMethodID is informational only.
func (g *SquareGateway) ConfirmIntent(ctx context.Context, intentID, paymentMethodID string) (*Intent, error) {
	if strings.TrimSpace(intentID) == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "payment intent id is required")
	}
	payment, err := g.client.GetPayment(ctx, intentID)
	if err != nil {
		return nil, g.mapError(err, "retrieve intent")
	}
	if stringValue(payment.GetStatus()) != squareStatusApproved {
		return intentFromPayment(payment), nil
	}

	payment, err = g.client.CompletePayment(ctx, intentID)
	if err != nil {
		if declined, ok := declineFrom(err); ok {
			declined.ID = intentID
			return declined, nil
		}
		return nil, g.mapError(err, "confirm intent")
	}
	return intentFromPayment(payment), nil
}

func (g *SquareGateway) RetrieveIntent(ctx context.Context, intentID string) (*Intent, error) {
	if strings.TrimSpace(intentID) == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "payment intent id is required")
	}
	payment, err := g.client.GetPayment(ctx, intentID)
	if err != nil {
		return nil, g.mapError(err, "retrieve intent")
	}
	return intentFromPayment(payment), nil
}

func (g *SquareGateway) CreateRefund(ctx context.Context, params RefundParams) (*Refund, error) {
	if strings.TrimSpace(params.IntentID) == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "payment intent id is required")
	}
	if params.AmountCents <= 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "refund amount must be positive")
	}
	refund, err := g.client.RefundPayment(ctx, square.RefundCreateParams{
		PaymentID:      params.IntentID,
		AmountCents:    params.AmountCents,
		Currency:       g.currencyFor(params.Currency),
		Reason:         params.Reason,
		IdempotencyKey: params.IdempotencyKey,
	})
	if err != nil {
		return nil, g.mapError(err, "create refund")
	}
	status := stringValue(refund.GetStatus())
	if status == squareRefundRejected || status == squareRefundFailed {
		return nil, pkgerrors.New(pkgerrors.CodeBusinessRule, "Refund was rejected by the card processor")
	}
	amount := params.AmountCents
	if money := refund.GetAmountMoney(); money != nil && money.GetAmount() != nil {
		amount = *money.GetAmount()
	}
	return &Refund{ID: refund.GetID(), Status: status, AmountCents: amount}, nil
}

func (g *SquareGateway) EnsureCustomer(ctx context.Context, params CustomerParams) (string, error) {
	customer, err := g.client.EnsureCustomer(ctx, square.CustomerCreateParams{
		ReferenceID: params.UserID.String(),
		Email:       params.Email,
		GivenName:   params.Name,
		PhoneNumber: params.Phone,
	})
	if err != nil {
		return "", g.mapError(err, "ensure customer")
	}
	if customer == nil {
		return "", pkgerrors.New(pkgerrors.CodeExternalService, "square returned no customer")
	}
	return stringValue(customer.GetID()), nil
}

func (g *SquareGateway) currencyFor(currency string) string {
	if trimmed := strings.TrimSpace(currency); trimmed != "" {
		return strings.ToUpper(trimmed)
	}
	return g.currency
}

func (g *SquareGateway) mapError(err error, op string) error {
	if errors.Is(err, square.ErrRequestTimeout) {
		return pkgerrors.Wrap(pkgerrors.CodeExternalService, fmt.Errorf("%w: %v", ErrOutcomeUnknown, err), fmt.Sprintf("%s: outcome unknown", op))
	}
	if typed := pkgerrors.As(err); typed != nil {
		return err
	}
	return pkgerrors.Wrap(pkgerrors.CodeExternalService, err, op)
}

func (g *SquareGateway) warn(ctx context.Context, msg, orderID, reason string) {
	if g.logg == nil {
		return
	}
	g.logg.Warn(g.logg.WithFields(ctx, map[string]any{"order_id": orderID, "reason": reason}), msg)
}

// declineFrom turns a card decline into a failed intent rather than an error.
func declineFrom(err error) (*Intent, bool) {
	detail, ok := square.ErrorDetailFrom(err)
	if !ok || detail.Category != string(sq.ErrorCategoryPaymentMethodError) {
		return nil, false
	}
	reason := detail.Detail
	if reason == "" {
		reason = defaultFailureReason
	}
	return &Intent{Status: IntentFailed, FailureReason: reason}, true
}

func intentFromPayment(payment *sq.Payment) *Intent {
	if payment == nil {
		return &Intent{Status: IntentFailed, FailureReason: defaultFailureReason}
	}
	intent := &Intent{
		ID:          stringValue(payment.GetID()),
		Status:      mapPaymentStatus(stringValue(payment.GetStatus())),
		ReferenceID: stringValue(payment.GetReferenceID()),
	}
	if money := payment.GetAmountMoney(); money != nil {
		if amount := money.GetAmount(); amount != nil {
			intent.AmountCents = *amount
		}
		if currency := money.GetCurrency(); currency != nil {
			intent.Currency = string(*currency)
		}
	}
	if intent.Status == IntentFailed {
		intent.FailureReason = failureReason(payment)
	}
	return intent
}

func mapPaymentStatus(status string) IntentStatus {
	switch strings.ToUpper(status) {
	case squareStatusCompleted:
		return IntentSucceeded
	case squareStatusApproved:
		return IntentRequiresAction
	case squareStatusPending:
		return IntentProcessing
	case squareStatusCanceled:
		return IntentCanceled
	case squareStatusFailed:
		return IntentFailed
	default:
		return IntentRequiresPaymentMethod
	}
}

func failureReason(payment *sq.Payment) string {
	if card := payment.GetCardDetails(); card != nil {
		for _, e := range card.GetErrors() {
			if e != nil && e.Detail != nil && *e.Detail != "" {
				return *e.Detail
			}
		}
	}
	return defaultFailureReason
}

func stringValue(ptr *string) string {
	if ptr == nil {
		return ""
	}
	return *ptr
}
