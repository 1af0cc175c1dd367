package gateway

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	sq "github.com/square/square-go-sdk"

	pkgerrors "github.com/angelmondragon/dishdash-backend/pkg/errors"
	"github.com/angelmondragon/dishdash-backend/pkg/square"
)

type stubSquare struct {
	createResp   *sq.Payment
	createErr    error
	getResp      *sq.Payment
	getErr       error
	completeResp *sq.Payment
	completeErr  error
	refundResp   *sq.PaymentRefund
	refundErr    error
	customer     *sq.Customer

	lastCreate    square.PaymentCreateParams
	lastRefund    square.RefundCreateParams
	completeCalls int
}

func (s *stubSquare) CreatePayment(_ context.Context, params square.PaymentCreateParams) (*sq.Payment, error) {
	s.lastCreate = params
	return s.createResp, s.createErr
}

func (s *stubSquare) GetPayment(context.Context, string) (*sq.Payment, error) {
	return s.getResp, s.getErr
}

func (s *stubSquare) CompletePayment(context.Context, string) (*sq.Payment, error) {
	s.completeCalls++
	return s.completeResp, s.completeErr
}

func (s *stubSquare) RefundPayment(_ context.Context, params square.RefundCreateParams) (*sq.PaymentRefund, error) {
	s.lastRefund = params
	return s.refundResp, s.refundErr
}

func (s *stubSquare) EnsureCustomer(context.Context, square.CustomerCreateParams) (*sq.Customer, error) {
	return s.customer, nil
}

func ptr[T any](v T) *T { return &v }

func squarePayment(id, status string, cents int64) *sq.Payment {
	currency := sq.Currency("USD")
	return &sq.Payment{
		ID:          ptr(id),
		Status:      ptr(status),
		AmountMoney: &sq.Money{Amount: ptr(cents), Currency: &currency},
	}
}

func newTestGateway(t *testing.T, client SquareAPI, delayed bool) *SquareGateway {
	t.Helper()
	g, err := NewSquareGateway(SquareGatewayParams{Client: client, DelayedCapture: delayed})
	if err != nil {
		t.Fatalf("new gateway: %v", err)
	}
	return g
}

func TestMapPaymentStatus(t *testing.T) {
	cases := map[string]IntentStatus{
		"COMPLETED": IntentSucceeded,
		"APPROVED":  IntentRequiresAction,
		"PENDING":   IntentProcessing,
		"CANCELED":  IntentCanceled,
		"FAILED":    IntentFailed,
		"":          IntentRequiresPaymentMethod,
	}
	for in, want := range cases {
		if got := mapPaymentStatus(in); got != want {
			t.Fatalf("status %q: expected %s got %s", in, want, got)
		}
	}
}

func TestCreateIntentUsesDeterministicKey(t *testing.T) {
	stub := &stubSquare{createResp: squarePayment("pay_1", "COMPLETED", 2500)}
	g := newTestGateway(t, stub, false)
	orderID := uuid.New()

	intent, err := g.CreateIntent(context.Background(), IntentParams{AmountCents: 2500, SourceID: "cnon:ok", OrderID: orderID})
	if err != nil {
		t.Fatalf("create intent: %v", err)
	}
	if intent.Status != IntentSucceeded || intent.ID != "pay_1" || intent.AmountCents != 2500 {
		t.Fatalf("unexpected intent %+v", intent)
	}
	if want := IdempotencyKey(orderID, "cnon:ok", 2500); stub.lastCreate.IdempotencyKey != want {
		t.Fatalf("expected key %q got %q", want, stub.lastCreate.IdempotencyKey)
	}
	if stub.lastCreate.ReferenceID != orderID.String() {
		t.Fatalf("expected order id as reference, got %q", stub.lastCreate.ReferenceID)
	}
	if !stub.lastCreate.Autocomplete {
		t.Fatalf("expected autocomplete without delayed capture")
	}
}

func TestCreateIntentDeclineBecomesFailedIntent(t *testing.T) {
	declined := pkgerrors.New(pkgerrors.CodeBusinessRule, "square create payment failed").
		WithDetails(square.APIErrorDetail{Category: "PAYMENT_METHOD_ERROR", Code: "GENERIC_DECLINE", Detail: "Card declined"})
	g := newTestGateway(t, &stubSquare{createErr: declined}, false)

	intent, err := g.CreateIntent(context.Background(), IntentParams{AmountCents: 100, SourceID: "cnon:bad", OrderID: uuid.New()})
	if err != nil {
		t.Fatalf("expected decline as result, got %v", err)
	}
	if intent.Status != IntentFailed || intent.FailureReason != "Card declined" {
		t.Fatalf("unexpected intent %+v", intent)
	}
}

func TestCreateIntentTimeoutIsOutcomeUnknown(t *testing.T) {
	timeout := pkgerrors.Wrap(pkgerrors.CodeExternalService, fmt.Errorf("%w: deadline", square.ErrRequestTimeout), "square create payment timed out")
	g := newTestGateway(t, &stubSquare{createErr: timeout}, false)

	_, err := g.CreateIntent(context.Background(), IntentParams{AmountCents: 100, SourceID: "cnon:ok", OrderID: uuid.New()})
	if !errors.Is(err, ErrOutcomeUnknown) {
		t.Fatalf("expected outcome unknown, got %v", err)
	}
	if typed := pkgerrors.As(err); typed == nil || typed.Code() != pkgerrors.CodeExternalService {
		t.Fatalf("expected external service error, got %v", err)
	}
}

func TestConfirmIntentCompletesApprovedPayment(t *testing.T) {
	stub := &stubSquare{
		getResp:      squarePayment("pay_2", "APPROVED", 900),
		completeResp: squarePayment("pay_2", "COMPLETED", 900),
	}
	g := newTestGateway(t, stub, true)

	intent, err := g.ConfirmIntent(context.Background(), "pay_2", "")
	if err != nil {
		t.Fatalf("confirm: %v", err)
	}
	if intent.Status != IntentSucceeded || stub.completeCalls != 1 {
		t.Fatalf("expected completed payment, got %+v after %d completes", intent, stub.completeCalls)
	}

	stub.getResp = squarePayment("pay_2", "COMPLETED", 900)
	if _, err := g.ConfirmIntent(context.Background(), "pay_2", ""); err != nil {
		t.Fatalf("second confirm: %v", err)
	}
	if stub.completeCalls != 1 {
		t.Fatalf("expected completed payment not to be captured twice")
	}
}

func TestCreateRefund(t *testing.T) {
	stub := &stubSquare{refundResp: &sq.PaymentRefund{ID: "ref_1", Status: ptr("PENDING")}}
	g := newTestGateway(t, stub, false)

	refund, err := g.CreateRefund(context.Background(), RefundParams{IntentID: "pay_3", AmountCents: 500})
	if err != nil {
		t.Fatalf("refund: %v", err)
	}
	if refund.ID != "ref_1" || refund.AmountCents != 500 {
		t.Fatalf("unexpected refund %+v", refund)
	}
	if stub.lastRefund.PaymentID != "pay_3" || stub.lastRefund.Currency != "USD" {
		t.Fatalf("unexpected refund params %+v", stub.lastRefund)
	}

	stub.refundResp = &sq.PaymentRefund{ID: "ref_2", Status: ptr("REJECTED")}
	_, err = g.CreateRefund(context.Background(), RefundParams{IntentID: "pay_3", AmountCents: 500})
	if typed := pkgerrors.As(err); typed == nil || typed.Code() != pkgerrors.CodeBusinessRule {
		t.Fatalf("expected rejected refund to be a business rule error, got %v", err)
	}
}

func TestMinorUnits(t *testing.T) {
	if got := ToMinorUnits(decimal.RequireFromString("20.005")); got != 2001 {
		t.Fatalf("expected 2001, got %d", got)
	}
	if got := FromMinorUnits(1999); !got.Equal(decimal.RequireFromString("19.99")) {
		t.Fatalf("expected 19.99, got %s", got)
	}
}

func TestIdempotencyKeyIsStable(t *testing.T) {
	orderID := uuid.New()
	a := IdempotencyKey(orderID, "src", 100)
	if a != IdempotencyKey(orderID, " src ", 100) {
		t.Fatalf("expected trimmed source to produce same key")
	}
	if a == IdempotencyKey(orderID, "src", 101) {
		t.Fatalf("expected amount to change the key")
	}
	if len(a) != 43 {
		t.Fatalf("expected 43 character key, got %d", len(a))
	}
}

func TestClientIdempotencyKeyIsScopedAndBounded(t *testing.T) {
	orderID := uuid.New()
	raw := strings.Repeat("client-retry-", 10)
	key := ClientIdempotencyKey(orderID, raw)
	if len(key) > MaxIdempotencyKeyLen {
		t.Fatalf("expected at most %d characters, got %d", MaxIdempotencyKeyLen, len(key))
	}
	if strings.Contains(key, "client-retry") {
		t.Fatalf("expected hashed key, got %q", key)
	}
	if key != ClientIdempotencyKey(orderID, " "+raw+" ") {
		t.Fatalf("expected trimmed header to produce same key")
	}
	if key == ClientIdempotencyKey(uuid.New(), raw) {
		t.Fatalf("expected orders to get distinct keys for the same header")
	}
}

func TestLogGatewayReplaysIdempotentCharge(t *testing.T) {
	g := NewLogGateway(nil, true)
	params := IntentParams{AmountCents: 700, SourceID: "cnon:ok", OrderID: uuid.New()}

	first, err := g.CreateIntent(context.Background(), params)
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	second, err := g.CreateIntent(context.Background(), params)
	if err != nil {
		t.Fatalf("replay: %v", err)
	}
	if first.ID != second.ID || first.Status != IntentRequiresAction {
		t.Fatalf("expected replayed pending intent, got %+v / %+v", first, second)
	}
	confirmed, err := g.ConfirmIntent(context.Background(), first.ID, "")
	if err != nil || confirmed.Status != IntentSucceeded {
		t.Fatalf("expected confirmation to succeed, got %+v err=%v", confirmed, err)
	}
}
