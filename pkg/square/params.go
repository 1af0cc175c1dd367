package square

import (
	"strings"

	sq "github.com/square/square-go-sdk"
)

const defaultCurrency = "USD"

// CustomerCreateParams describes the diner profile created on first payment.
type CustomerCreateParams struct {
	Email          string
	PhoneNumber    string
	GivenName      string
	FamilyName     string
	ReferenceID    string
	Note           string
	IdempotencyKey string
}

func (p CustomerCreateParams) toSquareRequest(idempotencyKey string) *sq.CreateCustomerRequest {
	return &sq.CreateCustomerRequest{
		IdempotencyKey: optional(idempotencyKey),
		EmailAddress:   optional(p.Email),
		PhoneNumber:    optional(p.PhoneNumber),
		GivenName:      optional(p.GivenName),
		FamilyName:     optional(p.FamilyName),
		ReferenceID:    optional(p.ReferenceID),
		Note:           optional(p.Note),
	}
}

// PaymentCreateParams charges a card nonce for an order. ReferenceID carries
// the order id so webhooks can be matched back to it. With Autocomplete false
// the payment stays APPROVED until CompletePayment.
type PaymentCreateParams struct {
	AmountCents    int64
	Currency       string
	LocationID     string
	CustomerID     string
	SourceID       string
	IdempotencyKey string
	Note           string
	ReferenceID    string
	Autocomplete   bool
}

func (p PaymentCreateParams) toSquareRequest(idempotencyKey string) *sq.CreatePaymentRequest {
	return &sq.CreatePaymentRequest{
		IdempotencyKey: idempotencyKey,
		SourceID:       p.SourceID,
		AmountMoney:    money(p.AmountCents, p.Currency),
		LocationID:     optional(p.LocationID),
		CustomerID:     optional(p.CustomerID),
		ReferenceID:    optional(p.ReferenceID),
		Note:           optional(p.Note),
		Autocomplete:   ptr(p.Autocomplete),
	}
}

// RefundCreateParams returns all or part of a completed payment.
type RefundCreateParams struct {
	PaymentID      string
	AmountCents    int64
	Currency       string
	Reason         string
	IdempotencyKey string
}

func (p RefundCreateParams) toSquareRequest(idempotencyKey string) *sq.RefundPaymentRequest {
	return &sq.RefundPaymentRequest{
		IdempotencyKey: idempotencyKey,
		PaymentID:      optional(p.PaymentID),
		AmountMoney:    money(p.AmountCents, p.Currency),
		Reason:         optional(p.Reason),
	}
}

// optional trims v and returns nil for blanks so Square omits the field.
func optional(v string) *string {
	v = strings.TrimSpace(v)
	if v == "" {
		return nil
	}
	return &v
}

func ptr[T any](v T) *T {
	return &v
}

// money builds a Square amount in minor units; zero amounts are omitted.
func money(cents int64, currency string) *sq.Money {
	if cents == 0 {
		return nil
	}
	code := strings.ToUpper(strings.TrimSpace(currency))
	if code == "" {
		code = defaultCurrency
	}
	return &sq.Money{Amount: ptr(cents), Currency: ptr(sq.Currency(code))}
}
