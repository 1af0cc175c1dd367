package payments

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/angelmondragon/dishdash-backend/internal/dbtest"
	"github.com/angelmondragon/dishdash-backend/internal/gateway"
	"github.com/angelmondragon/dishdash-backend/internal/orders"
	dbpkg "github.com/angelmondragon/dishdash-backend/pkg/db"
	"github.com/angelmondragon/dishdash-backend/pkg/db/models"
	"github.com/angelmondragon/dishdash-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/dishdash-backend/pkg/errors"
	"github.com/angelmondragon/dishdash-backend/pkg/outbox"
)

type stubOrders struct {
	order         *models.Order
	paidCalls     int
	refundedCalls int
}

func (s *stubOrders) Get(_ context.Context, orderID uuid.UUID, _ *orders.Actor) (*models.Order, error) {
	if s.order == nil || s.order.ID != orderID {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "Order not found")
	}
	copied := *s.order
	return &copied, nil
}

func (s *stubOrders) MarkPaid(_ context.Context, _ *gorm.DB, _ orders.MarkPaidInput) (*orders.MarkPaidResult, error) {
	s.paidCalls++
	if s.order.Status == enums.OrderStatusCancelled && s.order.PaymentStatus == enums.OrderPaymentUnpaid {
		return nil, pkgerrors.Wrap(pkgerrors.CodeStateConflict, orders.ErrCancelled, "Order was cancelled before the payment settled")
	}
	if s.order.PaymentStatus == enums.OrderPaymentPaid {
		return &orders.MarkPaidResult{Order: s.order}, nil
	}
	s.order.PaymentStatus = enums.OrderPaymentPaid
	s.order.Status = enums.OrderStatusConfirmed
	return &orders.MarkPaidResult{Order: s.order, Changed: true}, nil
}

func (s *stubOrders) MarkRefunded(context.Context, *gorm.DB, uuid.UUID) error {
	s.refundedCalls++
	if s.order.PaymentStatus == enums.OrderPaymentPaid {
		s.order.PaymentStatus = enums.OrderPaymentRefunded
	}
	return nil
}

type stubGateway struct {
	createFn func(gateway.IntentParams) (*gateway.Intent, error)
}

func (s stubGateway) CreateIntent(_ context.Context, params gateway.IntentParams) (*gateway.Intent, error) {
	return s.createFn(params)
}

func (stubGateway) ConfirmIntent(context.Context, string, string) (*gateway.Intent, error) {
	return nil, errors.New("not implemented")
}

func (stubGateway) RetrieveIntent(context.Context, string) (*gateway.Intent, error) {
	return nil, errors.New("not implemented")
}

func (stubGateway) CreateRefund(context.Context, gateway.RefundParams) (*gateway.Refund, error) {
	return nil, errors.New("not implemented")
}

func (stubGateway) EnsureCustomer(context.Context, gateway.CustomerParams) (string, error) {
	return "", nil
}

type fixture struct {
	svc    Service
	conn   *gorm.DB
	orders *stubOrders
}

func newFixture(t *testing.T, gw gateway.Gateway, total string) *fixture {
	t.Helper()
	conn := dbtest.Open(t)
	stub := &stubOrders{order: &models.Order{
		ID:            uuid.New(),
		OrderNumber:   1042,
		CustomerName:  "Jo Park",
		Type:          enums.OrderTypePickup,
		Status:        enums.OrderStatusPending,
		PaymentStatus: enums.OrderPaymentUnpaid,
		Total:         decimal.RequireFromString(total),
	}}
	svc, err := NewService(ServiceParams{
		Repo:    NewRepository(conn),
		Tx:      dbpkg.Wrap(conn),
		Outbox:  outbox.NewService(outbox.NewRepository(conn), nil),
		Orders:  stub,
		Methods: NewRegistry(CashHandler{}, CardHandler{Gateway: gw}),
		Now:     func() time.Time { return time.Date(2026, 6, 3, 19, 0, 0, 0, time.UTC) },
	})
	require.NoError(t, err)
	return &fixture{svc: svc, conn: conn, orders: stub}
}

func (f *fixture) orderID() uuid.UUID { return f.orders.order.ID }

func strPtr(v string) *string { return &v }

func requireCode(t *testing.T, err error, code pkgerrors.Code) *pkgerrors.Error {
	t.Helper()
	typed := pkgerrors.As(err)
	require.NotNilf(t, typed, "expected typed error, got %v", err)
	require.Equal(t, code, typed.Code())
	return typed
}

func countRows(t *testing.T, conn *gorm.DB, model any, query string, args ...any) int64 {
	t.Helper()
	var count int64
	require.NoError(t, conn.Model(model).Where(query, args...).Count(&count).Error)
	return count
}

func TestRegistryResolve(t *testing.T) {
	registry := NewRegistry(CashHandler{}, CardHandler{})

	handler, err := registry.Resolve(" cash ")
	require.NoError(t, err)
	assert.Equal(t, enums.PaymentMethodCash, handler.Method())

	_, err = registry.Resolve("DIGITAL_WALLET")
	typed := requireCode(t, err, pkgerrors.CodeBusinessRule)
	assert.Equal(t, "Payment method DIGITAL_WALLET is not yet implemented", typed.Message())

	_, err = registry.Resolve("bitcoin")
	requireCode(t, err, pkgerrors.CodeValidation)
}

func TestProcessCashAmountTolerance(t *testing.T) {
	f := newFixture(t, gateway.NewLogGateway(nil, false), "20.00")
	ctx := context.Background()

	_, err := f.svc.ProcessPayment(ctx, ProcessInput{OrderID: f.orderID(), Amount: decimal.RequireFromString("20.02"), Method: "CASH"})
	typed := requireCode(t, err, pkgerrors.CodeBusinessRule)
	assert.Equal(t, "Payment amount does not match order total", typed.Message())
	assert.Zero(t, f.orders.paidCalls)

	result, err := f.svc.ProcessPayment(ctx, ProcessInput{OrderID: f.orderID(), Amount: decimal.RequireFromString("20.005"), Method: "CASH"})
	require.NoError(t, err)
	assert.Equal(t, enums.PaymentStatusCompleted, result.Payment.Status)
	assert.True(t, result.Payment.Amount.Equal(decimal.RequireFromString("20.00")))
	assert.Equal(t, enums.OrderPaymentPaid, result.Order.PaymentStatus)
	assert.Equal(t, 1, f.orders.paidCalls)

	_, err = f.svc.ProcessPayment(ctx, ProcessInput{OrderID: f.orderID(), Amount: decimal.RequireFromString("20.00"), Method: "CASH"})
	typed = requireCode(t, err, pkgerrors.CodeBusinessRule)
	assert.Equal(t, "Order already paid", typed.Message())
}

func TestProcessUnknownOrder(t *testing.T) {
	f := newFixture(t, gateway.NewLogGateway(nil, false), "20.00")
	_, err := f.svc.ProcessPayment(context.Background(), ProcessInput{OrderID: uuid.New(), Amount: decimal.NewFromInt(20), Method: "CASH"})
	typed := requireCode(t, err, pkgerrors.CodeNotFound)
	assert.Equal(t, "Order not found", typed.Message())
}

func TestConfirmPaymentIntentIsIdempotent(t *testing.T) {
	f := newFixture(t, gateway.NewLogGateway(nil, true), "31.50")
	ctx := context.Background()

	pending, err := f.svc.ProcessPayment(ctx, ProcessInput{
		OrderID:  f.orderID(),
		Amount:   decimal.RequireFromString("31.50"),
		Method:   "card",
		SourceID: strPtr("cnon:card-nonce-ok"),
	})
	require.NoError(t, err)
	require.True(t, pending.RequiresAction)
	require.Equal(t, enums.PaymentStatusProcessing, pending.Payment.Status)
	require.NotNil(t, pending.Payment.PaymentIntentID)
	assert.Zero(t, f.orders.paidCalls)

	intentID := *pending.Payment.PaymentIntentID
	first, err := f.svc.ConfirmPaymentIntent(ctx, ConfirmInput{IntentID: intentID})
	require.NoError(t, err)
	assert.Equal(t, enums.PaymentStatusCompleted, first.Payment.Status)
	assert.False(t, first.RequiresAction)

	second, err := f.svc.ConfirmPaymentIntent(ctx, ConfirmInput{IntentID: intentID})
	require.NoError(t, err)
	assert.Equal(t, enums.PaymentStatusCompleted, second.Payment.Status)
	assert.Equal(t, 1, f.orders.paidCalls)
	assert.EqualValues(t, 1, countRows(t, f.conn, &models.Payment{}, "order_id = ?", f.orderID()))
}

func TestConfirmUnknownIntent(t *testing.T) {
	f := newFixture(t, gateway.NewLogGateway(nil, true), "10.00")
	_, err := f.svc.ConfirmPaymentIntent(context.Background(), ConfirmInput{IntentID: "missing"})
	typed := requireCode(t, err, pkgerrors.CodeNotFound)
	assert.Equal(t, "Payment record not found", typed.Message())
}

func TestProcessCardRetryReusesPaymentRecord(t *testing.T) {
	f := newFixture(t, gateway.NewLogGateway(nil, true), "18.25")
	ctx := context.Background()
	input := ProcessInput{
		OrderID:  f.orderID(),
		Amount:   decimal.RequireFromString("18.25"),
		Method:   "CARD",
		SourceID: strPtr("cnon:retry"),
	}

	first, err := f.svc.ProcessPayment(ctx, input)
	require.NoError(t, err)
	second, err := f.svc.ProcessPayment(ctx, input)
	require.NoError(t, err)

	assert.Equal(t, first.Payment.ID, second.Payment.ID)
	assert.Equal(t, *first.Payment.PaymentIntentID, *second.Payment.PaymentIntentID)
	assert.EqualValues(t, 1, countRows(t, f.conn, &models.Payment{}, "order_id = ?", f.orderID()))
}

func TestProcessCardDeclineRecordsFailure(t *testing.T) {
	gw := stubGateway{createFn: func(params gateway.IntentParams) (*gateway.Intent, error) {
		return &gateway.Intent{ID: "pay_declined", Status: gateway.IntentFailed, AmountCents: params.AmountCents, FailureReason: "Card declined"}, nil
	}}
	f := newFixture(t, gw, "12.00")

	_, err := f.svc.ProcessPayment(context.Background(), ProcessInput{
		OrderID:  f.orderID(),
		Amount:   decimal.RequireFromString("12.00"),
		Method:   "CARD",
		SourceID: strPtr("cnon:declined"),
	})
	typed := requireCode(t, err, pkgerrors.CodeBusinessRule)
	assert.Equal(t, "Card declined", typed.Message())
	assert.Zero(t, f.orders.paidCalls)
	assert.EqualValues(t, 1, countRows(t, f.conn, &models.Payment{}, "status = ?", enums.PaymentStatusFailed))
	assert.EqualValues(t, 1, countRows(t, f.conn, &models.OutboxEvent{}, "event_type = ?", enums.EventPaymentFailed))
}

func TestProcessCardTimeoutLeavesNoRecord(t *testing.T) {
	gw := stubGateway{createFn: func(gateway.IntentParams) (*gateway.Intent, error) {
		return nil, pkgerrors.Wrap(pkgerrors.CodeExternalService, fmt.Errorf("%w: deadline exceeded", gateway.ErrOutcomeUnknown), "create payment timed out")
	}}
	f := newFixture(t, gw, "12.00")

	_, err := f.svc.ProcessPayment(context.Background(), ProcessInput{
		OrderID:  f.orderID(),
		Amount:   decimal.RequireFromString("12.00"),
		Method:   "CARD",
		SourceID: strPtr("cnon:slow"),
	})
	require.ErrorIs(t, err, gateway.ErrOutcomeUnknown)
	assert.Zero(t, countRows(t, f.conn, &models.Payment{}, "order_id = ?", f.orderID()))
}

func TestProcessCardRequiresSource(t *testing.T) {
	f := newFixture(t, gateway.NewLogGateway(nil, false), "12.00")
	_, err := f.svc.ProcessPayment(context.Background(), ProcessInput{OrderID: f.orderID(), Amount: decimal.NewFromInt(12), Method: "CARD"})
	requireCode(t, err, pkgerrors.CodeValidation)
}

func TestCreateRefund(t *testing.T) {
	f := newFixture(t, gateway.NewLogGateway(nil, false), "40.00")
	ctx := context.Background()

	paid, err := f.svc.ProcessPayment(ctx, ProcessInput{
		OrderID:  f.orderID(),
		Amount:   decimal.RequireFromString("40.00"),
		Method:   "CARD",
		SourceID: strPtr("cnon:refundable"),
	})
	require.NoError(t, err)
	require.Equal(t, enums.PaymentStatusCompleted, paid.Payment.Status)

	tooMuch := decimal.RequireFromString("41.00")
	_, err = f.svc.CreateRefund(ctx, RefundInput{PaymentID: paid.Payment.ID, Amount: &tooMuch})
	requireCode(t, err, pkgerrors.CodeBusinessRule)

	refunded, err := f.svc.CreateRefund(ctx, RefundInput{PaymentID: paid.Payment.ID, Reason: strPtr("cold food")})
	require.NoError(t, err)
	assert.Equal(t, enums.PaymentStatusRefunded, refunded.Status)
	require.NotNil(t, refunded.RefundID)
	require.NotNil(t, refunded.RefundedAmount)
	assert.True(t, refunded.RefundedAmount.Equal(decimal.RequireFromString("40.00")))
	assert.Equal(t, 1, f.orders.refundedCalls)
	assert.EqualValues(t, 1, countRows(t, f.conn, &models.OutboxEvent{}, "event_type = ?", enums.EventPaymentRefunded))

	_, err = f.svc.CreateRefund(ctx, RefundInput{PaymentID: paid.Payment.ID})
	typed := requireCode(t, err, pkgerrors.CodeBusinessRule)
	assert.Equal(t, "Payment already refunded", typed.Message())
}

func TestCreateRefundRejectsCash(t *testing.T) {
	f := newFixture(t, gateway.NewLogGateway(nil, false), "15.00")
	ctx := context.Background()

	paid, err := f.svc.ProcessPayment(ctx, ProcessInput{OrderID: f.orderID(), Amount: decimal.RequireFromString("15.00"), Method: "CASH"})
	require.NoError(t, err)

	_, err = f.svc.CreateRefund(ctx, RefundInput{PaymentID: paid.Payment.ID})
	typed := requireCode(t, err, pkgerrors.CodeBusinessRule)
	assert.Equal(t, "Refund only supported for card payments", typed.Message())

	_, err = f.svc.CreateRefund(ctx, RefundInput{PaymentID: uuid.New()})
	requireCode(t, err, pkgerrors.CodeNotFound)
}

func TestListForOrder(t *testing.T) {
	f := newFixture(t, gateway.NewLogGateway(nil, false), "15.00")
	ctx := context.Background()
	_, err := f.svc.ProcessPayment(ctx, ProcessInput{OrderID: f.orderID(), Amount: decimal.RequireFromString("15.00"), Method: "CASH"})
	require.NoError(t, err)

	rows, err := f.svc.ListForOrder(ctx, f.orderID(), nil)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, enums.PaymentMethodCash, rows[0].PaymentMethod)
}

func TestConfirmAfterCancelFailsWithoutCapture(t *testing.T) {
	f := newFixture(t, gateway.NewLogGateway(nil, true), "22.40")
	ctx := context.Background()

	pending, err := f.svc.ProcessPayment(ctx, ProcessInput{
		OrderID:  f.orderID(),
		Amount:   decimal.RequireFromString("22.40"),
		Method:   "CARD",
		SourceID: strPtr("cnon:three-ds"),
	})
	require.NoError(t, err)
	require.Equal(t, enums.PaymentStatusProcessing, pending.Payment.Status)

	f.orders.order.Status = enums.OrderStatusCancelled

	confirmed, err := f.svc.ConfirmPaymentIntent(ctx, ConfirmInput{IntentID: *pending.Payment.PaymentIntentID})
	require.NoError(t, err)
	assert.Equal(t, enums.PaymentStatusFailed, confirmed.Payment.Status)
	require.NotNil(t, confirmed.Payment.FailureReason)
	assert.Equal(t, "Order was cancelled", *confirmed.Payment.FailureReason)
	assert.Zero(t, f.orders.paidCalls)
	assert.Equal(t, enums.OrderPaymentUnpaid, f.orders.order.PaymentStatus)
	assert.EqualValues(t, 1, countRows(t, f.conn, &models.OutboxEvent{}, "event_type = ?", enums.EventPaymentFailed))
}

func TestCaptureReportedAfterCancelStaysRefundable(t *testing.T) {
	gw := gateway.NewLogGateway(nil, true)
	f := newFixture(t, gw, "22.40")
	ctx := context.Background()

	pending, err := f.svc.ProcessPayment(ctx, ProcessInput{
		OrderID:  f.orderID(),
		Amount:   decimal.RequireFromString("22.40"),
		Method:   "CARD",
		SourceID: strPtr("cnon:three-ds"),
	})
	require.NoError(t, err)
	intentID := *pending.Payment.PaymentIntentID

	// customer finishes the challenge at the processor while staff cancel the order
	_, err = gw.ConfirmIntent(ctx, intentID, "")
	require.NoError(t, err)
	f.orders.order.Status = enums.OrderStatusCancelled

	reconciled, err := f.svc.ReconcileGatewayEvent(ctx, intentID)
	require.NoError(t, err)
	assert.Equal(t, enums.PaymentStatusCompleted, reconciled.Payment.Status)
	assert.Equal(t, 1, f.orders.paidCalls)
	assert.Equal(t, enums.OrderPaymentUnpaid, f.orders.order.PaymentStatus)
	assert.Zero(t, countRows(t, f.conn, &models.OutboxEvent{}, "event_type = ?", enums.EventPaymentFailed))

	refunded, err := f.svc.CreateRefund(ctx, RefundInput{PaymentID: reconciled.Payment.ID, Reason: strPtr("order cancelled")})
	require.NoError(t, err)
	assert.Equal(t, enums.PaymentStatusRefunded, refunded.Status)
	assert.Equal(t, 1, f.orders.refundedCalls)
	assert.Equal(t, enums.OrderPaymentUnpaid, f.orders.order.PaymentStatus)
}

func TestProcessCardScopesClientIdempotencyKey(t *testing.T) {
	var sent []string
	gw := stubGateway{createFn: func(params gateway.IntentParams) (*gateway.Intent, error) {
		sent = append(sent, params.IdempotencyKey)
		return &gateway.Intent{ID: fmt.Sprintf("pay_%d", len(sent)), Status: gateway.IntentSucceeded, AmountCents: params.AmountCents}, nil
	}}
	raw := strings.Repeat("b7e1c0de-", 12)

	first := newFixture(t, gw, "12.00")
	paid, err := first.svc.ProcessPayment(context.Background(), ProcessInput{
		OrderID:        first.orderID(),
		Amount:         decimal.RequireFromString("12.00"),
		Method:         "CARD",
		SourceID:       strPtr("cnon:ok"),
		IdempotencyKey: strPtr(raw),
	})
	require.NoError(t, err)

	second := newFixture(t, gw, "12.00")
	_, err = second.svc.ProcessPayment(context.Background(), ProcessInput{
		OrderID:        second.orderID(),
		Amount:         decimal.RequireFromString("12.00"),
		Method:         "CARD",
		SourceID:       strPtr("cnon:ok"),
		IdempotencyKey: strPtr(raw),
	})
	require.NoError(t, err)

	require.Len(t, sent, 2)
	for _, key := range sent {
		assert.LessOrEqual(t, len(key), gateway.MaxIdempotencyKeyLen)
		assert.NotEqual(t, raw, key)
	}
	assert.NotEqual(t, sent[0], sent[1])
	assert.Equal(t, gateway.ClientIdempotencyKey(first.orderID(), raw), sent[0])
	require.NotNil(t, paid.Payment.IdempotencyKey)
	assert.Equal(t, sent[0], *paid.Payment.IdempotencyKey)
}
