package gateway

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// ErrOutcomeUnknown is returned when the processor may or may not have acted on a request.
// Callers reconcile through RetrieveIntent or by retrying with the same idempotency key.
var ErrOutcomeUnknown = errors.New("payment gateway outcome unknown")

// IntentStatus is the processor-neutral state of a charge.
type IntentStatus string

const (
	IntentSucceeded             IntentStatus = "succeeded"
	IntentRequiresAction        IntentStatus = "requires_action"
	IntentProcessing            IntentStatus = "processing"
	IntentCanceled              IntentStatus = "canceled"
	IntentRequiresPaymentMethod IntentStatus = "requires_payment_method"
	IntentFailed                IntentStatus = "failed"
)

// Gateway is the card processor boundary. Amounts are minor units.
type Gateway interface {
	CreateIntent(ctx context.Context, params IntentParams) (*Intent, error)
	ConfirmIntent(ctx context.Context, intentID, paymentMethodID string) (*Intent, error)
	RetrieveIntent(ctx context.Context, intentID string) (*Intent, error)
	CreateRefund(ctx context.Context, params RefundParams) (*Refund, error)
	EnsureCustomer(ctx context.Context, params CustomerParams) (string, error)
}

type IntentParams struct {
	AmountCents    int64
	Currency       string
	SourceID       string
	OrderID        uuid.UUID
	CustomerID     string
	IdempotencyKey string
	Note           string
}

type Intent struct {
	ID            string
	Status        IntentStatus
	AmountCents   int64
	Currency      string
	ReferenceID   string
	FailureReason string
}

type RefundParams struct {
	IntentID       string
	AmountCents    int64
	Currency       string
	Reason         string
	IdempotencyKey string
}

type Refund struct {
	ID          string
	Status      string
	AmountCents int64
}

type CustomerParams struct {
	UserID uuid.UUID
	Email  string
	Name   string
	Phone  string
}

// IdempotencyKey derives a stable processor key from the charge identity so a retry
// after an unknown outcome lands on the original payment.
func IdempotencyKey(orderID uuid.UUID, sourceID string, amountCents int64) string {
	sum := sha256.Sum256([]byte(fmt.Sprintf("%s|%s|%d", orderID, strings.TrimSpace(sourceID), amountCents)))
	return "dd-" + hex.EncodeToString(sum[:])[:40]
}

// MaxIdempotencyKeyLen is the longest key Square accepts.
const MaxIdempotencyKeyLen = 45

// ClientIdempotencyKey scopes a caller supplied Idempotency-Key to one order.
// Processor keys are global to the seller account and capped in length, so
// the raw header value is never sent.
func ClientIdempotencyKey(orderID uuid.UUID, clientKey string) string {
	sum := sha256.Sum256([]byte(orderID.String() + "|" + strings.TrimSpace(clientKey)))
	return "ddk-" + hex.EncodeToString(sum[:])[:40]
}

// ToMinorUnits converts a currency amount to cents.
func ToMinorUnits(amount decimal.Decimal) int64 {
	return amount.Shift(2).Round(0).IntPart()
}

// FromMinorUnits converts cents to a currency amount.
func FromMinorUnits(cents int64) decimal.Decimal {
	return decimal.New(cents, -2)
}
