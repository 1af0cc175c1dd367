package payments

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/angelmondragon/dishdash-backend/internal/gateway"
	"github.com/angelmondragon/dishdash-backend/internal/orders"
	"github.com/angelmondragon/dishdash-backend/pkg/db/models"
	"github.com/angelmondragon/dishdash-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/dishdash-backend/pkg/errors"
	"github.com/angelmondragon/dishdash-backend/pkg/logger"
	"github.com/angelmondragon/dishdash-backend/pkg/metrics"
	"github.com/angelmondragon/dishdash-backend/pkg/outbox"
	"github.com/angelmondragon/dishdash-backend/pkg/outbox/payloads"
)

var amountTolerance = decimal.RequireFromString("0.01")

// Service orchestrates payment attempts against orders.
type Service interface {
	ProcessPayment(ctx context.Context, input ProcessInput) (*ProcessResult, error)
	ConfirmPaymentIntent(ctx context.Context, input ConfirmInput) (*ProcessResult, error)
	CreateRefund(ctx context.Context, input RefundInput) (*models.Payment, error)
	ListForOrder(ctx context.Context, orderID uuid.UUID, actor *orders.Actor) ([]models.Payment, error)
	Get(ctx context.Context, paymentID uuid.UUID) (*models.Payment, error)
	ReconcileGatewayEvent(ctx context.Context, intentID string) (*ProcessResult, error)
}

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type outboxPublisher interface {
	Emit(ctx context.Context, tx *gorm.DB, event outbox.DomainEvent) error
}

// orderSettler is the slice of the order orchestrator payments depend on.
type orderSettler interface {
	Get(ctx context.Context, orderID uuid.UUID, actor *orders.Actor) (*models.Order, error)
	MarkPaid(ctx context.Context, tx *gorm.DB, input orders.MarkPaidInput) (*orders.MarkPaidResult, error)
	MarkRefunded(ctx context.Context, tx *gorm.DB, orderID uuid.UUID) error
}

type customerEnsurer interface {
	EnsureCustomer(ctx context.Context, params gateway.CustomerParams) (string, error)
}

type ServiceParams struct {
	Repo      Repository
	Tx        txRunner
	Outbox    outboxPublisher
	Orders    orderSettler
	Methods   *Registry
	Customers customerEnsurer
	Currency  string
	Metrics   *metrics.PaymentMetrics
	Logger    *logger.Logger
	Now       func() time.Time
}

type service struct {
	repo      Repository
	tx        txRunner
	outbox    outboxPublisher
	orders    orderSettler
	methods   *Registry
	customers customerEnsurer
	currency  string
	metrics   *metrics.PaymentMetrics
	logg      *logger.Logger
	now       func() time.Time
}

func NewService(params ServiceParams) (Service, error) {
	switch {
	case params.Repo == nil:
		return nil, fmt.Errorf("payments repository required")
	case params.Tx == nil:
		return nil, fmt.Errorf("transaction runner required")
	case params.Outbox == nil:
		return nil, fmt.Errorf("outbox publisher required")
	case params.Orders == nil:
		return nil, fmt.Errorf("order service required")
	case params.Methods == nil:
		return nil, fmt.Errorf("payment method registry required")
	}
	now := params.Now
	if now == nil {
		now = func() time.Time { return time.Now().UTC() }
	}
	currency := strings.ToUpper(strings.TrimSpace(params.Currency))
	if currency == "" {
		currency = "USD"
	}
	return &service{
		repo:      params.Repo,
		tx:        params.Tx,
		outbox:    params.Outbox,
		orders:    params.Orders,
		methods:   params.Methods,
		customers: params.Customers,
		currency:  currency,
		metrics:   params.Metrics,
		logg:      params.Logger,
		now:       now,
	}, nil
}

func (s *service) ProcessPayment(ctx context.Context, input ProcessInput) (*ProcessResult, error) {
	if input.OrderID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "order id required")
	}
	if !input.Amount.IsPositive() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "amount must be positive")
	}
	handler, err := s.methods.Resolve(input.Method)
	if err != nil {
		return nil, err
	}
	method := handler.Method()

	order, err := s.orders.Get(ctx, input.OrderID, input.Actor)
	if err != nil {
		return nil, err
	}
	if order.PaymentStatus != enums.OrderPaymentUnpaid {
		return nil, pkgerrors.New(pkgerrors.CodeBusinessRule, "Order already paid")
	}
	if order.Status == enums.OrderStatusCancelled {
		return nil, pkgerrors.New(pkgerrors.CodeBusinessRule, "Cannot pay for a cancelled order")
	}
	if input.Amount.Sub(order.Total).Abs().GreaterThan(amountTolerance) {
		return nil, pkgerrors.New(pkgerrors.CodeBusinessRule, "Payment amount does not match order total").
			WithDetails(map[string]any{"expected": order.Total.StringFixed(2)})
	}

	req := AuthorizeRequest{
		Order:    order,
		Amount:   order.Total,
		Currency: s.currency,
		SourceID: deref(input.SourceID),
	}
	if key := strings.TrimSpace(deref(input.IdempotencyKey)); key != "" {
		req.IdempotencyKey = gateway.ClientIdempotencyKey(order.ID, key)
	}
	if method.UsesGateway() {
		req.CustomerID = s.ensureCustomer(ctx, order)
	}

	auth, err := handler.Authorize(ctx, req)
	if err != nil {
		outcome := "ERROR"
		if errors.Is(err, gateway.ErrOutcomeUnknown) {
			outcome = "UNKNOWN"
			s.warn(ctx, order.ID, "gateway outcome unknown; retry reuses the same idempotency key")
		}
		s.metrics.IncOutcome(string(method), outcome)
		return nil, err
	}

	var payment *models.Payment
	err = s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		stored, err := s.upsert(ctx, tx, order, method, auth)
		if err != nil {
			return err
		}
		payment = stored

		switch payment.Status {
		case enums.PaymentStatusCompleted:
			changed, err := s.settleOrder(ctx, tx, payment)
			if err != nil {
				return err
			}
			if !changed && method == enums.PaymentMethodCash {
				return pkgerrors.New(pkgerrors.CodeBusinessRule, "Order already paid")
			}
		case enums.PaymentStatusFailed:
			return s.emitFailed(ctx, tx, payment)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.metrics.IncOutcome(string(method), string(payment.Status))

	if payment.Status == enums.PaymentStatusFailed {
		return nil, pkgerrors.New(pkgerrors.CodeBusinessRule, deref(payment.FailureReason)).
			WithDetails(map[string]any{"payment_id": payment.ID.String()})
	}
	return s.result(ctx, payment)
}

// upsert records the authorization, reusing the row for a replayed idempotency key.
func (s *service) upsert(ctx context.Context, tx *gorm.DB, order *models.Order, method enums.PaymentMethod, auth *Authorization) (*models.Payment, error) {
	repo := s.repo.WithTx(tx)
	now := s.now()

	if auth.IdempotencyKey != nil {
		existing, err := repo.FindByIdempotencyKey(ctx, *auth.IdempotencyKey)
		switch {
		case err == nil:
			if existing.OrderID != order.ID {
				return nil, pkgerrors.New(pkgerrors.CodeIdempotency, "idempotency key already used for another order")
			}
			if existing.Status != enums.PaymentStatusProcessing {
				return existing, nil
			}
			if _, err := repo.Transition(ctx, existing.ID, enums.PaymentStatusProcessing, authorizationUpdates(auth, now)); err != nil {
				return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "update payment")
			}
			reloaded, err := repo.FindByID(ctx, existing.ID)
			if err != nil {
				return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "reload payment")
			}
			return reloaded, nil
		case !errors.Is(err, gorm.ErrRecordNotFound):
			return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load payment by idempotency key")
		}
	}

	payment := &models.Payment{
		ID:              uuid.New(),
		OrderID:         order.ID,
		Amount:          order.Total,
		Status:          auth.Status,
		PaymentMethod:   method,
		PaymentIntentID: auth.IntentID,
		IdempotencyKey:  auth.IdempotencyKey,
		FailureReason:   auth.FailureReason,
		RequiresAction:  auth.RequiresAction,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	if err := repo.Create(ctx, payment); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create payment")
	}
	return payment, nil
}

func authorizationUpdates(auth *Authorization, now time.Time) map[string]any {
	updates := map[string]any{
		"status":          auth.Status,
		"requires_action": auth.RequiresAction,
		"updated_at":      now,
	}
	if auth.IntentID != nil {
		updates["payment_intent_id"] = *auth.IntentID
	}
	if auth.FailureReason != nil {
		updates["failure_reason"] = *auth.FailureReason
	}
	return updates
}

func (s *service) ConfirmPaymentIntent(ctx context.Context, input ConfirmInput) (*ProcessResult, error) {
	intentID := strings.TrimSpace(input.IntentID)
	if intentID == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "payment intent id is required")
	}
	payment, err := s.findByIntent(ctx, intentID)
	if err != nil {
		return nil, err
	}
	if payment.Status != enums.PaymentStatusProcessing {
		return s.result(ctx, payment)
	}
	order, err := s.orders.Get(ctx, payment.OrderID, nil)
	if err != nil {
		return nil, err
	}
	if order.Status == enums.OrderStatusCancelled {
		reason := reasonOrderCancelled
		return s.applyAuthorization(ctx, payment, &Authorization{Status: enums.PaymentStatusFailed, FailureReason: &reason})
	}
	handler, err := s.methods.ForMethod(payment.PaymentMethod)
	if err != nil {
		return nil, err
	}
	auth, err := handler.Confirm(ctx, payment, deref(input.PaymentMethodID))
	if err != nil {
		return nil, err
	}
	return s.applyAuthorization(ctx, payment, auth)
}

func (s *service) ReconcileGatewayEvent(ctx context.Context, intentID string) (*ProcessResult, error) {
	payment, err := s.findByIntent(ctx, strings.TrimSpace(intentID))
	if err != nil {
		return nil, err
	}
	if payment.Status != enums.PaymentStatusProcessing {
		return s.result(ctx, payment)
	}
	handler, err := s.methods.ForMethod(payment.PaymentMethod)
	if err != nil {
		return nil, err
	}
	auth, err := handler.Retrieve(ctx, payment)
	if err != nil {
		return nil, err
	}
	return s.applyAuthorization(ctx, payment, auth)
}

// applyAuthorization settles a PROCESSING payment. Only the caller that wins the
// guarded update runs the order side effects.
func (s *service) applyAuthorization(ctx context.Context, payment *models.Payment, auth *Authorization) (*ProcessResult, error) {
	changed := false
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		ok, err := s.repo.WithTx(tx).Transition(ctx, payment.ID, enums.PaymentStatusProcessing, authorizationUpdates(auth, s.now()))
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "update payment status")
		}
		if !ok {
			return nil
		}
		changed = true
		payment.Status = auth.Status
		payment.FailureReason = auth.FailureReason

		switch auth.Status {
		case enums.PaymentStatusCompleted:
			_, err := s.settleOrder(ctx, tx, payment)
			return err
		case enums.PaymentStatusFailed:
			return s.emitFailed(ctx, tx, payment)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	if changed && auth.Status != enums.PaymentStatusProcessing {
		s.metrics.IncOutcome(string(payment.PaymentMethod), string(auth.Status))
	}

	reloaded, err := s.repo.FindByID(ctx, payment.ID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "reload payment")
	}
	return s.result(ctx, reloaded)
}

// settleOrder marks the order paid for a completed payment. A gateway charge
// that lands after the order was cancelled stays COMPLETED so staff can refund it.
func (s *service) settleOrder(ctx context.Context, tx *gorm.DB, payment *models.Payment) (bool, error) {
	result, err := s.orders.MarkPaid(ctx, tx, orders.MarkPaidInput{
		OrderID:   payment.OrderID,
		PaymentID: payment.ID,
		Method:    payment.PaymentMethod,
		Amount:    payment.Amount,
	})
	if errors.Is(err, orders.ErrCancelled) && payment.PaymentMethod.UsesGateway() {
		s.warn(ctx, payment.OrderID, "card payment captured after the order was cancelled; refund required")
		return false, nil
	}
	if err != nil {
		return false, err
	}
	if !result.Changed && payment.PaymentMethod.UsesGateway() {
		s.warn(ctx, payment.OrderID, "card payment settled an order that was already paid")
	}
	return result.Changed, nil
}

func (s *service) CreateRefund(ctx context.Context, input RefundInput) (*models.Payment, error) {
	if input.PaymentID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "payment id required")
	}
	payment, err := s.Get(ctx, input.PaymentID)
	if err != nil {
		return nil, err
	}
	if !payment.PaymentMethod.UsesGateway() {
		return nil, pkgerrors.New(pkgerrors.CodeBusinessRule, reasonRefundCardOnly)
	}
	switch payment.Status {
	case enums.PaymentStatusCompleted:
	case enums.PaymentStatusRefunded:
		return nil, pkgerrors.New(pkgerrors.CodeBusinessRule, "Payment already refunded")
	default:
		return nil, pkgerrors.New(pkgerrors.CodeBusinessRule, "Only completed payments can be refunded")
	}

	amount := payment.Amount
	if input.Amount != nil {
		if !input.Amount.IsPositive() {
			return nil, pkgerrors.New(pkgerrors.CodeValidation, "refund amount must be positive")
		}
		if input.Amount.GreaterThan(payment.Amount) {
			return nil, pkgerrors.New(pkgerrors.CodeBusinessRule, "Refund amount exceeds payment amount")
		}
		amount = *input.Amount
	}

	handler, err := s.methods.ForMethod(payment.PaymentMethod)
	if err != nil {
		return nil, err
	}
	outcome, err := handler.Refund(ctx, payment, amount, deref(input.Reason))
	if err != nil {
		s.metrics.IncRefund(string(payment.PaymentMethod), "FAILED")
		return nil, err
	}
	refunded := outcome.Amount
	if !refunded.IsPositive() {
		refunded = amount
	}

	err = s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		now := s.now()
		ok, err := s.repo.WithTx(tx).Transition(ctx, payment.ID, enums.PaymentStatusCompleted, map[string]any{
			"status":          enums.PaymentStatusRefunded,
			"refund_id":       outcome.RefundID,
			"refunded_amount": refunded,
			"updated_at":      now,
		})
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "mark payment refunded")
		}
		if !ok {
			return pkgerrors.New(pkgerrors.CodeStateConflict, "payment changed while refunding")
		}
		if err := s.orders.MarkRefunded(ctx, tx, payment.OrderID); err != nil {
			return err
		}
		return s.outbox.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventPaymentRefunded,
			AggregateType: enums.AggregatePayment,
			AggregateID:   payment.ID,
			OccurredAt:    now,
			Data: payloads.PaymentRefundedEvent{
				OrderID:   payment.OrderID,
				PaymentID: payment.ID,
				RefundID:  outcome.RefundID,
				Amount:    refunded,
			},
		})
	})
	if err != nil {
		return nil, err
	}
	s.metrics.IncRefund(string(payment.PaymentMethod), string(enums.PaymentStatusRefunded))
	return s.Get(ctx, payment.ID)
}

func (s *service) ListForOrder(ctx context.Context, orderID uuid.UUID, actor *orders.Actor) ([]models.Payment, error) {
	if _, err := s.orders.Get(ctx, orderID, actor); err != nil {
		return nil, err
	}
	rows, err := s.repo.ListByOrder(ctx, orderID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list payments")
	}
	return rows, nil
}

func (s *service) Get(ctx context.Context, paymentID uuid.UUID) (*models.Payment, error) {
	payment, err := s.repo.FindByID(ctx, paymentID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "Payment not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load payment")
	}
	return payment, nil
}

func (s *service) findByIntent(ctx context.Context, intentID string) (*models.Payment, error) {
	if intentID == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "payment intent id is required")
	}
	payment, err := s.repo.FindByIntentID(ctx, intentID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "Payment record not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load payment")
	}
	return payment, nil
}

func (s *service) result(ctx context.Context, payment *models.Payment) (*ProcessResult, error) {
	order, err := s.orders.Get(ctx, payment.OrderID, nil)
	if err != nil {
		return nil, err
	}
	return &ProcessResult{
		Payment:        payment,
		Order:          order,
		RequiresAction: payment.Status == enums.PaymentStatusProcessing && payment.RequiresAction,
	}, nil
}

func (s *service) emitFailed(ctx context.Context, tx *gorm.DB, payment *models.Payment) error {
	return s.outbox.Emit(ctx, tx, outbox.DomainEvent{
		EventType:     enums.EventPaymentFailed,
		AggregateType: enums.AggregatePayment,
		AggregateID:   payment.ID,
		Data: payloads.PaymentFailedEvent{
			OrderID:   payment.OrderID,
			PaymentID: payment.ID,
			Reason:    deref(payment.FailureReason),
		},
	})
}

// ensureCustomer attaches a processor customer for signed-in users; failures only cost the link.
func (s *service) ensureCustomer(ctx context.Context, order *models.Order) string {
	if s.customers == nil || order.UserID == nil || order.CustomerEmail == nil {
		return ""
	}
	id, err := s.customers.EnsureCustomer(ctx, gateway.CustomerParams{
		UserID: *order.UserID,
		Email:  *order.CustomerEmail,
		Name:   order.CustomerName,
		Phone:  deref(order.CustomerPhone),
	})
	if err != nil {
		if s.logg != nil {
			s.logg.Error(s.logg.WithOrderID(ctx, order.ID.String()), "ensure gateway customer failed", err)
		}
		return ""
	}
	return id
}

func (s *service) warn(ctx context.Context, orderID uuid.UUID, msg string) {
	if s.logg == nil {
		return
	}
	s.logg.Warn(s.logg.WithOrderID(ctx, orderID.String()), msg)
}

func deref(v *string) string {
	if v == nil {
		return ""
	}
	return strings.TrimSpace(*v)
}
