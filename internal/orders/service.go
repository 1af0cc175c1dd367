package orders

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/angelmondragon/dishdash-backend/internal/catalog"
	"github.com/angelmondragon/dishdash-backend/internal/coupons"
	"github.com/angelmondragon/dishdash-backend/internal/giftcards"
	"github.com/angelmondragon/dishdash-backend/internal/loyalty"
	"github.com/angelmondragon/dishdash-backend/internal/settings"
	"github.com/angelmondragon/dishdash-backend/pkg/db/models"
	"github.com/angelmondragon/dishdash-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/dishdash-backend/pkg/errors"
	"github.com/angelmondragon/dishdash-backend/pkg/logger"
	"github.com/angelmondragon/dishdash-backend/pkg/outbox"
	"github.com/angelmondragon/dishdash-backend/pkg/outbox/payloads"
	"github.com/angelmondragon/dishdash-backend/pkg/pagination"
	"github.com/angelmondragon/dishdash-backend/pkg/types"
)

const maxItemQuantity = 99

// ErrCancelled is in the chain of errors returned when a payment tries to
// settle an order that was already cancelled.
var ErrCancelled = errors.New("order cancelled")

// Service owns checkout and the order lifecycle.
type Service interface {
	Create(ctx context.Context, input CreateOrderInput) (*models.Order, error)
	Get(ctx context.Context, orderID uuid.UUID, actor *Actor) (*models.Order, error)
	ListForUser(ctx context.Context, userID uuid.UUID, params pagination.Params) (*OrderList, error)
	UpdateStatus(ctx context.Context, input UpdateStatusInput) (*models.Order, error)
	Cancel(ctx context.Context, input CancelInput) (*models.Order, error)
	MarkPaid(ctx context.Context, tx *gorm.DB, input MarkPaidInput) (*MarkPaidResult, error)
	MarkRefunded(ctx context.Context, tx *gorm.DB, orderID uuid.UUID) error
	ApplyDeliveryCascade(ctx context.Context, tx *gorm.DB, orderID uuid.UUID, to enums.OrderStatus) error
}

type ServiceParams struct {
	Repo      Repository
	Tx        txRunner
	Outbox    outboxPublisher
	Catalog   catalog.Lookup
	Settings  settings.Provider
	Coupons   coupons.Service
	GiftCards giftcards.Service
	Loyalty   loyalty.Service
	Logger    *logger.Logger
	Now       func() time.Time
}

type service struct {
	repo      Repository
	tx        txRunner
	outbox    outboxPublisher
	catalog   catalog.Lookup
	settings  settings.Provider
	coupons   coupons.Service
	giftcards giftcards.Service
	loyalty   loyalty.Service
	logg      *logger.Logger
	now       func() time.Time
}

// NewService builds the order orchestrator with the required dependencies.
func NewService(params ServiceParams) (Service, error) {
	switch {
	case params.Repo == nil:
		return nil, fmt.Errorf("orders repository required")
	case params.Tx == nil:
		return nil, fmt.Errorf("transaction runner required")
	case params.Outbox == nil:
		return nil, fmt.Errorf("outbox publisher required")
	case params.Catalog == nil:
		return nil, fmt.Errorf("catalog lookup required")
	case params.Settings == nil:
		return nil, fmt.Errorf("settings provider required")
	case params.Coupons == nil:
		return nil, fmt.Errorf("coupon service required")
	case params.GiftCards == nil:
		return nil, fmt.Errorf("gift card service required")
	case params.Loyalty == nil:
		return nil, fmt.Errorf("loyalty service required")
	}
	now := params.Now
	if now == nil {
		now = func() time.Time { return time.Now().UTC() }
	}
	return &service{
		repo:      params.Repo,
		tx:        params.Tx,
		outbox:    params.Outbox,
		catalog:   params.Catalog,
		settings:  params.Settings,
		coupons:   params.Coupons,
		giftcards: params.GiftCards,
		loyalty:   params.Loyalty,
		logg:      params.Logger,
		now:       now,
	}, nil
}

// quote is the priced checkout computed before anything is written.
type quote struct {
	items          []models.OrderItem
	subtotal       decimal.Decimal
	tax            decimal.Decimal
	deliveryFee    decimal.Decimal
	tip            decimal.Decimal
	couponID       *uuid.UUID
	couponDiscount decimal.Decimal
	giftCardID     *uuid.UUID
	giftCardAmount decimal.Decimal
	loyaltyPoints  int64
	loyaltyValue   decimal.Decimal
}

func (q quote) discount() decimal.Decimal {
	return q.couponDiscount.Add(q.loyaltyValue)
}

func (q quote) total() decimal.Decimal {
	total := q.subtotal.Add(q.tax).Add(q.deliveryFee).Add(q.tip).Sub(q.discount()).Sub(q.giftCardAmount)
	if total.IsNegative() {
		return decimal.Zero
	}
	return total
}

func (s *service) Create(ctx context.Context, input CreateOrderInput) (*models.Order, error) {
	if err := validateCreate(&input); err != nil {
		return nil, err
	}

	cfg, err := s.settings.Get(ctx)
	if err != nil {
		return nil, err
	}

	q, err := s.priceItems(ctx, input.Items)
	if err != nil {
		return nil, err
	}
	q.tax = q.subtotal.Mul(cfg.TaxRate).Round(2)
	q.deliveryFee = decimal.Zero
	if input.Type == enums.OrderTypeDelivery {
		q.deliveryFee = cfg.DeliveryFee
	}
	q.tip = input.Tip.Round(2)

	if q.subtotal.LessThan(cfg.MinOrderAmount) {
		return nil, pkgerrors.New(pkgerrors.CodeBusinessRule,
			fmt.Sprintf("Minimum order amount is %s", cfg.MinOrderAmount.StringFixed(2)))
	}

	if err := s.applyCoupon(ctx, input, &q); err != nil {
		return nil, err
	}
	if err := s.applyGiftCard(ctx, input, &q); err != nil {
		return nil, err
	}
	if err := s.applyLoyalty(ctx, input, &q); err != nil {
		return nil, err
	}

	now := s.now()
	order := &models.Order{
		ID:                    uuid.New(),
		UserID:                input.UserID,
		CustomerName:          strings.TrimSpace(input.CustomerName),
		CustomerEmail:         input.CustomerEmail,
		CustomerPhone:         input.CustomerPhone,
		DeliveryAddress:       input.DeliveryAddress,
		Type:                  input.Type,
		Status:                enums.OrderStatusPending,
		PaymentStatus:         enums.OrderPaymentUnpaid,
		Subtotal:              q.subtotal,
		Tax:                   q.tax,
		DeliveryFee:           q.deliveryFee,
		Tip:                   q.tip,
		Discount:              q.discount(),
		Total:                 q.total(),
		CouponID:              q.couponID,
		CouponDiscount:        q.couponDiscount,
		GiftCardID:            q.giftCardID,
		GiftCardAmount:        q.giftCardAmount,
		LoyaltyPointsRedeemed: q.loyaltyPoints,
		LoyaltyDiscount:       q.loyaltyValue,
		Notes:                 input.Notes,
		CreatedAt:             now,
		UpdatedAt:             now,
	}
	for i := range q.items {
		q.items[i].OrderID = order.ID
		q.items[i].CreatedAt = now
	}

	err = s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		if err := repo.CreateOrder(ctx, order); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create order")
		}
		if err := repo.CreateOrderItems(ctx, q.items); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create order items")
		}
		// order_number comes from a database sequence.
		stored, err := repo.FindOrder(ctx, order.ID)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "reload order")
		}
		order.OrderNumber = stored.OrderNumber

		if q.couponID != nil {
			if err := s.coupons.RecordUsage(ctx, tx, coupons.RecordUsageInput{
				CouponID: *q.couponID,
				UserID:   input.UserID,
				OrderID:  order.ID,
				Discount: q.couponDiscount,
			}); err != nil {
				return err
			}
		}
		if q.giftCardID != nil {
			if _, err := s.giftcards.Use(ctx, tx, giftcards.UseInput{
				GiftCardID: q.giftCardID,
				Amount:     q.giftCardAmount,
				OrderID:    &order.ID,
			}); err != nil {
				return err
			}
		}
		if q.loyaltyPoints > 0 {
			if _, err := s.loyalty.Redeem(ctx, tx, loyalty.RedeemInput{
				UserID:  *input.UserID,
				Points:  q.loyaltyPoints,
				OrderID: &order.ID,
			}); err != nil {
				return err
			}
		}

		if err := s.outbox.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventOrderCreated,
			AggregateType: enums.AggregateOrder,
			AggregateID:   order.ID,
			Actor:         userActor(input.UserID),
			Data: payloads.OrderCreatedEvent{
				OrderID:     order.ID,
				OrderNumber: order.OrderNumber,
				UserID:      order.UserID,
				Type:        order.Type,
				Total:       order.Total,
				Discount:    order.Discount,
				CouponID:    order.CouponID,
				GiftCardID:  order.GiftCardID,
			},
		}); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "emit order created")
		}

		// Fully covered by gift card or discounts: nothing left to charge.
		if order.Total.IsZero() {
			if _, _, err := s.markPaid(ctx, tx, order, MarkPaidInput{OrderID: order.ID, Amount: decimal.Zero}); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	created, err := s.repo.FindOrderWithItems(ctx, order.ID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "reload order")
	}
	s.logInfo(ctx, order.ID, "order created")
	return created, nil
}

func validateCreate(input *CreateOrderInput) error {
	if strings.TrimSpace(input.CustomerName) == "" {
		return pkgerrors.New(pkgerrors.CodeValidation, "customer name is required")
	}
	if !input.Type.IsValid() {
		return pkgerrors.New(pkgerrors.CodeValidation, "invalid order type")
	}
	if len(input.Items) == 0 {
		return pkgerrors.New(pkgerrors.CodeValidation, "order must contain at least one item")
	}
	for _, item := range input.Items {
		if item.MenuItemID == uuid.Nil {
			return pkgerrors.New(pkgerrors.CodeValidation, "menu item id is required")
		}
		if item.Quantity < 1 || item.Quantity > maxItemQuantity {
			return pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("quantity must be between 1 and %d", maxItemQuantity))
		}
	}
	if input.Tip.IsNegative() {
		return pkgerrors.New(pkgerrors.CodeValidation, "tip cannot be negative")
	}
	if input.LoyaltyPoints < 0 {
		return pkgerrors.New(pkgerrors.CodeValidation, "loyalty points cannot be negative")
	}
	if input.GiftCardAmount != nil && !input.GiftCardAmount.IsPositive() {
		return pkgerrors.New(pkgerrors.CodeValidation, "gift card amount must be positive")
	}
	if input.Type == enums.OrderTypeDelivery {
		if input.DeliveryAddress == nil {
			return pkgerrors.New(pkgerrors.CodeValidation, "delivery address is required for delivery orders")
		}
		normalized := input.DeliveryAddress.Normalize()
		if err := normalized.Validate(); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid delivery address")
		}
		input.DeliveryAddress = &normalized
	} else {
		input.DeliveryAddress = nil
	}
	return nil
}

// priceItems snapshots catalog prices; client-sent prices are never read.
func (s *service) priceItems(ctx context.Context, lines []ItemInput) (quote, error) {
	menuIDs := make([]uuid.UUID, 0, len(lines))
	var optionIDs []uuid.UUID
	for _, line := range lines {
		menuIDs = append(menuIDs, line.MenuItemID)
		optionIDs = append(optionIDs, line.ModifierIDs...)
	}
	menu, err := s.catalog.FindMenuItems(ctx, menuIDs)
	if err != nil {
		return quote{}, err
	}
	options, err := s.catalog.FindModifierOptions(ctx, optionIDs)
	if err != nil {
		return quote{}, err
	}

	q := quote{subtotal: decimal.Zero}
	for _, line := range lines {
		item, ok := menu[line.MenuItemID]
		if !ok {
			return quote{}, pkgerrors.New(pkgerrors.CodeNotFound, fmt.Sprintf("Menu item %s not found", line.MenuItemID))
		}
		if !item.IsAvailable {
			return quote{}, pkgerrors.New(pkgerrors.CodeBusinessRule, fmt.Sprintf("%s is currently unavailable", item.Name))
		}

		mods := make(types.ModifierSnapshots, 0, len(line.ModifierIDs))
		for _, optionID := range line.ModifierIDs {
			option, ok := options[optionID]
			if !ok || option.MenuItemID != item.ID {
				return quote{}, pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("invalid modifier %s for %s", optionID, item.Name))
			}
			if !option.IsAvailable {
				return quote{}, pkgerrors.New(pkgerrors.CodeBusinessRule, fmt.Sprintf("%s is currently unavailable", option.Name))
			}
			mods = append(mods, types.ModifierSnapshot{
				OptionID:  option.ID,
				GroupName: option.GroupName,
				Name:      option.Name,
				Price:     option.Price,
			})
		}

		lineTotal := item.Price.Add(mods.Total()).Mul(decimal.NewFromInt(int64(line.Quantity)))
		q.items = append(q.items, models.OrderItem{
			ID:         uuid.New(),
			MenuItemID: item.ID,
			Name:       item.Name,
			UnitPrice:  item.Price,
			Quantity:   line.Quantity,
			Modifiers:  mods,
			LineTotal:  lineTotal,
			Notes:      line.Notes,
		})
		q.subtotal = q.subtotal.Add(lineTotal)
	}
	return q, nil
}

func (s *service) applyCoupon(ctx context.Context, input CreateOrderInput, q *quote) error {
	if input.CouponCode == nil || strings.TrimSpace(*input.CouponCode) == "" {
		return nil
	}
	result, err := s.coupons.Validate(ctx, coupons.ValidateInput{
		Code:        *input.CouponCode,
		UserID:      input.UserID,
		Subtotal:    q.subtotal,
		DeliveryFee: q.deliveryFee,
	})
	if err != nil {
		return err
	}
	if !result.Valid {
		return pkgerrors.New(pkgerrors.CodeBusinessRule, result.Reason)
	}
	if !result.Discount.Supported {
		return pkgerrors.New(pkgerrors.CodeBusinessRule,
			fmt.Sprintf("Coupon type %s is not supported at checkout", result.Coupon.Type))
	}
	q.couponID = &result.Coupon.ID
	q.couponDiscount = result.Discount.Amount
	return nil
}

func (s *service) applyGiftCard(ctx context.Context, input CreateOrderInput, q *quote) error {
	if input.GiftCardCode == nil || strings.TrimSpace(*input.GiftCardCode) == "" {
		return nil
	}
	result, err := s.giftcards.Validate(ctx, *input.GiftCardCode, input.GiftCardPIN)
	if err != nil {
		return err
	}
	if !result.Valid {
		return pkgerrors.New(pkgerrors.CodeBusinessRule, result.Reason)
	}

	remaining := q.total()
	amount := decimal.Min(result.Balance, remaining)
	if input.GiftCardAmount != nil {
		if input.GiftCardAmount.GreaterThan(result.Balance) {
			return pkgerrors.New(pkgerrors.CodeBusinessRule, "Insufficient balance")
		}
		amount = decimal.Min(*input.GiftCardAmount, remaining)
	}
	if !amount.IsPositive() {
		return nil
	}
	q.giftCardID = &result.GiftCard.ID
	q.giftCardAmount = amount.Round(2)
	return nil
}

func (s *service) applyLoyalty(ctx context.Context, input CreateOrderInput, q *quote) error {
	if input.LoyaltyPoints == 0 {
		return nil
	}
	if input.UserID == nil || *input.UserID == uuid.Nil {
		return pkgerrors.New(pkgerrors.CodeBusinessRule, "Loyalty points require a signed-in customer")
	}
	redemption, err := s.loyalty.ValidateRedemption(ctx, *input.UserID, input.LoyaltyPoints)
	if err != nil {
		return err
	}
	if redemption.Value.GreaterThan(q.total()) {
		return pkgerrors.New(pkgerrors.CodeBusinessRule, "Loyalty redemption exceeds the order total")
	}
	q.loyaltyPoints = redemption.Points
	q.loyaltyValue = redemption.Value
	return nil
}

func (s *service) Get(ctx context.Context, orderID uuid.UUID, actor *Actor) (*models.Order, error) {
	if orderID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "order id required")
	}
	order, err := s.repo.FindOrderWithItems(ctx, orderID)
	if err != nil {
		return nil, mapFindError(err)
	}
	if err := authorizeOwner(order, actor); err != nil {
		return nil, err
	}
	return order, nil
}

func (s *service) ListForUser(ctx context.Context, userID uuid.UUID, params pagination.Params) (*OrderList, error) {
	if userID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "user identity missing")
	}
	cursor, err := pagination.ParseCursor(params.Cursor)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid cursor")
	}
	rows, next, err := s.repo.ListUserOrders(ctx, userID, params.Limit, cursor)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list orders")
	}
	list := &OrderList{Orders: make([]OrderDTO, 0, len(rows))}
	for _, row := range rows {
		list.Orders = append(list.Orders, NewOrderDTO(row))
	}
	if next != nil {
		list.Cursor = next.Encode()
	}
	return list, nil
}

func (s *service) UpdateStatus(ctx context.Context, input UpdateStatusInput) (*models.Order, error) {
	if input.OrderID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "order id required")
	}
	to := enums.OrderStatus(strings.ToUpper(strings.TrimSpace(input.Status)))
	if !to.IsValid() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "invalid target status")
	}
	if to == enums.OrderStatusCancelled {
		return s.Cancel(ctx, CancelInput{OrderID: input.OrderID, Reason: input.Reason, Actor: input.Actor})
	}

	var order *models.Order
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		loaded, err := s.repo.WithTx(tx).FindOrder(ctx, input.OrderID)
		if err != nil {
			return mapFindError(err)
		}
		if err := s.transition(ctx, tx, loaded, to, reasonText(input.Reason), input.Actor); err != nil {
			return err
		}
		order = loaded
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.logInfo(ctx, order.ID, "order status updated")
	return order, nil
}

func (s *service) Cancel(ctx context.Context, input CancelInput) (*models.Order, error) {
	if input.OrderID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "order id required")
	}

	var order *models.Order
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		loaded, err := repo.FindOrder(ctx, input.OrderID)
		if err != nil {
			return mapFindError(err)
		}
		if err := authorizeOwner(loaded, input.Actor); err != nil {
			return err
		}

		if err := s.checkCancellable(ctx, repo, loaded); err != nil {
			return err
		}

		reason := reasonText(input.Reason)
		if err := s.transition(ctx, tx, loaded, enums.OrderStatusCancelled, reason, input.Actor); err != nil {
			return err
		}

		if loaded.GiftCardID != nil && loaded.GiftCardAmount.IsPositive() {
			if _, err := s.giftcards.Refund(ctx, tx, giftcards.RefundInput{
				GiftCardID: *loaded.GiftCardID,
				Amount:     loaded.GiftCardAmount,
				OrderID:    &loaded.ID,
			}); err != nil {
				return err
			}
		}
		if loaded.LoyaltyPointsRedeemed > 0 && loaded.UserID != nil {
			if _, err := s.loyalty.Adjust(ctx, tx, loyalty.AdjustInput{
				UserID:      *loaded.UserID,
				Points:      loaded.LoyaltyPointsRedeemed,
				Description: fmt.Sprintf("Restored %d points from cancelled order #%d", loaded.LoyaltyPointsRedeemed, loaded.OrderNumber),
				OrderID:     &loaded.ID,
			}); err != nil {
				return err
			}
		}
		if loaded.UserID != nil && loaded.PaymentStatus != enums.OrderPaymentUnpaid {
			if _, err := s.loyalty.ReverseEarn(ctx, tx, *loaded.UserID, loaded.ID); err != nil {
				return err
			}
		}
		order = loaded
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.logInfo(ctx, order.ID, "order cancelled")
	return order, nil
}

// checkCancellable refuses orders whose card money is in flight or still held.
// Card charges are refunded first; the refund moves payment_status to REFUNDED.
func (s *service) checkCancellable(ctx context.Context, repo Repository, order *models.Order) error {
	pending, err := repo.PaymentsInStatus(ctx, order.ID, enums.PaymentStatusProcessing)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load order payments")
	}
	if len(pending) > 0 {
		return pkgerrors.New(pkgerrors.CodeBusinessRule, "Order has a payment awaiting confirmation")
	}
	if order.PaymentStatus != enums.OrderPaymentPaid {
		return nil
	}
	settled, err := repo.PaymentsInStatus(ctx, order.ID, enums.PaymentStatusCompleted)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load order payments")
	}
	for _, payment := range settled {
		if payment.PaymentMethod.UsesGateway() {
			return pkgerrors.New(pkgerrors.CodeBusinessRule, "Refund the card payment before cancelling the order")
		}
	}
	return nil
}

func (s *service) MarkPaid(ctx context.Context, tx *gorm.DB, input MarkPaidInput) (*MarkPaidResult, error) {
	if tx == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "transaction required")
	}
	order, err := s.repo.WithTx(tx).FindOrder(ctx, input.OrderID)
	if err != nil {
		return nil, mapFindError(err)
	}
	updated, changed, err := s.markPaid(ctx, tx, order, input)
	if err != nil {
		return nil, err
	}
	return &MarkPaidResult{Order: updated, Changed: changed}, nil
}

// markPaid flips UNPAID -> PAID, confirms a pending order and credits loyalty.
// A lost guard means another caller already settled the order, or that it was
// cancelled, which is reported as ErrCancelled.
func (s *service) markPaid(ctx context.Context, tx *gorm.DB, order *models.Order, input MarkPaidInput) (*models.Order, bool, error) {
	repo := s.repo.WithTx(tx)
	now := s.now()
	ok, err := repo.SettlePayment(ctx, order.ID, now)
	if err != nil {
		return nil, false, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "mark order paid")
	}
	if !ok {
		current, err := repo.FindOrder(ctx, order.ID)
		if err != nil {
			return nil, false, mapFindError(err)
		}
		if current.Status == enums.OrderStatusCancelled && current.PaymentStatus == enums.OrderPaymentUnpaid {
			return nil, false, pkgerrors.Wrap(pkgerrors.CodeStateConflict, ErrCancelled, "Order was cancelled before the payment settled")
		}
		return current, false, nil
	}
	order.PaymentStatus = enums.OrderPaymentPaid

	if order.Status == enums.OrderStatusPending {
		if err := s.transition(ctx, tx, order, enums.OrderStatusConfirmed, "payment received", nil); err != nil {
			return nil, false, err
		}
	}

	if order.UserID != nil {
		if _, err := s.loyalty.Earn(ctx, tx, loyalty.EarnInput{
			UserID:     *order.UserID,
			OrderID:    order.ID,
			OrderTotal: order.Total,
		}); err != nil {
			return nil, false, err
		}
	}

	if err := s.outbox.Emit(ctx, tx, outbox.DomainEvent{
		EventType:     enums.EventOrderPaid,
		AggregateType: enums.AggregateOrder,
		AggregateID:   order.ID,
		OccurredAt:    now,
		Data: payloads.OrderPaidEvent{
			OrderID:   order.ID,
			PaymentID: input.PaymentID,
			Method:    input.Method,
			Amount:    input.Amount,
			PaidAt:    now,
		},
	}); err != nil {
		return nil, false, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "emit order paid")
	}
	return order, true, nil
}

func (s *service) MarkRefunded(ctx context.Context, tx *gorm.DB, orderID uuid.UUID) error {
	if tx == nil {
		return pkgerrors.New(pkgerrors.CodeInternal, "transaction required")
	}
	ok, err := s.repo.WithTx(tx).TransitionPaymentStatus(ctx, orderID, enums.OrderPaymentPaid, enums.OrderPaymentRefunded, s.now())
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "mark order refunded")
	}
	if !ok {
		order, err := s.repo.WithTx(tx).FindOrder(ctx, orderID)
		if err != nil {
			return mapFindError(err)
		}
		switch {
		case order.PaymentStatus == enums.OrderPaymentRefunded:
		case order.Status == enums.OrderStatusCancelled && order.PaymentStatus == enums.OrderPaymentUnpaid:
			// a charge captured after cancellation never settled the order
		default:
			return pkgerrors.New(pkgerrors.CodeStateConflict, "order is not paid")
		}
	}
	return nil
}

func (s *service) ApplyDeliveryCascade(ctx context.Context, tx *gorm.DB, orderID uuid.UUID, to enums.OrderStatus) error {
	if tx == nil {
		return pkgerrors.New(pkgerrors.CodeInternal, "transaction required")
	}
	if to != enums.OrderStatusOutForDelivery && to != enums.OrderStatusDelivered {
		return pkgerrors.New(pkgerrors.CodeValidation, "invalid delivery cascade target")
	}
	order, err := s.repo.WithTx(tx).FindOrder(ctx, orderID)
	if err != nil {
		return mapFindError(err)
	}
	if order.Status == to {
		return nil
	}
	return s.transition(ctx, tx, order, to, "", nil)
}

// transition applies one guarded state machine edge and queues its event.
func (s *service) transition(ctx context.Context, tx *gorm.DB, order *models.Order, to enums.OrderStatus, reason string, actor *Actor) error {
	now := s.now()
	updates, err := planTransition(order, to, now)
	if err != nil {
		return err
	}
	if to == enums.OrderStatusCancelled && reason != "" {
		updates["cancel_reason"] = reason
	}
	from := order.Status
	ok, err := s.repo.WithTx(tx).TransitionStatus(ctx, order.ID, from, updates)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "update order status")
	}
	if !ok {
		return pkgerrors.New(pkgerrors.CodeStateConflict, "order status changed concurrently")
	}
	applyStamps(order, to, now)
	if to == enums.OrderStatusCancelled && reason != "" {
		order.CancelReason = &reason
	}

	var ref *outbox.ActorRef
	if actor != nil {
		ref = &outbox.ActorRef{UserID: actor.UserID, Role: actor.Role}
	}
	err = s.outbox.Emit(ctx, tx, outbox.DomainEvent{
		EventType:     enums.EventOrderStatusChanged,
		AggregateType: enums.AggregateOrder,
		AggregateID:   order.ID,
		Actor:         ref,
		OccurredAt:    now,
		Data: payloads.OrderStatusChangedEvent{
			OrderID:   order.ID,
			UserID:    order.UserID,
			From:      from,
			To:        to,
			Reason:    reason,
			ChangedAt: now,
		},
	})
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "emit order status changed")
	}
	return nil
}

func authorizeOwner(order *models.Order, actor *Actor) error {
	if actor == nil || actor.Staff {
		return nil
	}
	if order.UserID == nil || *order.UserID != actor.UserID {
		return pkgerrors.New(pkgerrors.CodeForbidden, "order does not belong to user")
	}
	return nil
}

func mapFindError(err error) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return pkgerrors.New(pkgerrors.CodeNotFound, "Order not found")
	}
	return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load order")
}

func userActor(userID *uuid.UUID) *outbox.ActorRef {
	if userID == nil || *userID == uuid.Nil {
		return nil
	}
	return &outbox.ActorRef{UserID: *userID, Role: "customer"}
}

func reasonText(reason *string) string {
	if reason == nil {
		return ""
	}
	return strings.TrimSpace(*reason)
}

func (s *service) logInfo(ctx context.Context, orderID uuid.UUID, msg string) {
	if s.logg == nil {
		return
	}
	s.logg.Info(s.logg.WithOrderID(ctx, orderID.String()), msg)
}
