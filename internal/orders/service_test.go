package orders

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/angelmondragon/dishdash-backend/internal/catalog"
	"github.com/angelmondragon/dishdash-backend/internal/coupons"
	"github.com/angelmondragon/dishdash-backend/internal/dbtest"
	"github.com/angelmondragon/dishdash-backend/internal/giftcards"
	"github.com/angelmondragon/dishdash-backend/internal/loyalty"
	"github.com/angelmondragon/dishdash-backend/internal/settings"
	dbpkg "github.com/angelmondragon/dishdash-backend/pkg/db"
	"github.com/angelmondragon/dishdash-backend/pkg/db/models"
	"github.com/angelmondragon/dishdash-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/dishdash-backend/pkg/errors"
	"github.com/angelmondragon/dishdash-backend/pkg/outbox"
	"github.com/angelmondragon/dishdash-backend/pkg/pagination"
	"github.com/angelmondragon/dishdash-backend/pkg/types"
)

type harness struct {
	svc  Service
	conn *gorm.DB
	tx   *dbpkg.Client
}

func testSettings() settings.Static {
	return settings.Static{Settings: models.RestaurantSettings{
		ID:              1,
		TaxRate:         decimal.RequireFromString("0.08"),
		MinOrderAmount:  decimal.RequireFromString("10.00"),
		DeliveryFee:     decimal.RequireFromString("4.99"),
		LoyaltyEnabled:  true,
		PointsPerDollar: decimal.RequireFromString("0.5"),
		PointsForFree:   100,
		Currency:        "USD",
	}}
}

// tickingClock advances one second per call so rows get distinct created_at values.
func tickingClock() func() time.Time {
	current := time.Date(2026, 5, 1, 18, 0, 0, 0, time.UTC)
	return func() time.Time {
		current = current.Add(time.Second)
		return current
	}
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	conn := dbtest.Open(t)
	clock := tickingClock()
	provider := testSettings()

	couponSvc, err := coupons.NewService(coupons.ServiceParams{Repo: coupons.NewRepository(conn), Now: clock})
	require.NoError(t, err)
	giftSvc, err := giftcards.NewService(giftcards.ServiceParams{Repo: giftcards.NewRepository(conn), Now: clock})
	require.NoError(t, err)
	loyaltySvc, err := loyalty.NewService(loyalty.ServiceParams{Repo: loyalty.NewRepository(conn), Settings: provider, Now: clock})
	require.NoError(t, err)

	client := dbpkg.Wrap(conn)
	svc, err := NewService(ServiceParams{
		Repo:      NewRepository(conn),
		Tx:        client,
		Outbox:    outbox.NewService(outbox.NewRepository(conn), nil),
		Catalog:   catalog.NewRepository(conn),
		Settings:  provider,
		Coupons:   couponSvc,
		GiftCards: giftSvc,
		Loyalty:   loyaltySvc,
		Now:       clock,
	})
	require.NoError(t, err)
	return &harness{svc: svc, conn: conn, tx: client}
}

func seedMenuItem(t *testing.T, conn *gorm.DB, name, price string) models.MenuItem {
	t.Helper()
	item := models.MenuItem{ID: uuid.New(), Name: name, Price: decimal.RequireFromString(price), IsAvailable: true}
	require.NoError(t, conn.Create(&item).Error)
	return item
}

func seedModifier(t *testing.T, conn *gorm.DB, item models.MenuItem, name, price string) models.ModifierOption {
	t.Helper()
	option := models.ModifierOption{
		ID:          uuid.New(),
		MenuItemID:  item.ID,
		GroupName:   "Extras",
		Name:        name,
		Price:       decimal.RequireFromString(price),
		IsAvailable: true,
	}
	require.NoError(t, conn.Create(&option).Error)
	return option
}

func seedCoupon(t *testing.T, conn *gorm.DB, code string, kind enums.CouponType, value string, maxDiscount *string) models.Coupon {
	t.Helper()
	coupon := models.Coupon{
		ID:            uuid.New(),
		Code:          code,
		Type:          kind,
		DiscountValue: decimal.RequireFromString(value),
		Status:        enums.CouponStatusActive,
	}
	if maxDiscount != nil {
		capped := decimal.RequireFromString(*maxDiscount)
		coupon.MaxDiscountAmount = &capped
	}
	require.NoError(t, conn.Create(&coupon).Error)
	return coupon
}

func seedGiftCard(t *testing.T, conn *gorm.DB, code, balance string) models.GiftCard {
	t.Helper()
	amount := decimal.RequireFromString(balance)
	card := models.GiftCard{
		ID:              uuid.New(),
		Code:            code,
		OriginalBalance: amount,
		CurrentBalance:  amount,
		Status:          enums.GiftCardStatusActive,
	}
	require.NoError(t, conn.Create(&card).Error)
	return card
}

func seedLoyalty(t *testing.T, conn *gorm.DB, userID uuid.UUID, points int64) {
	t.Helper()
	account := models.LoyaltyAccount{
		ID:             uuid.New(),
		UserID:         userID,
		Points:         points,
		LifetimePoints: points,
		Tier:           enums.LoyaltyTierBronze,
	}
	require.NoError(t, conn.Create(&account).Error)
}

func pickupInput(userID *uuid.UUID, items ...ItemInput) CreateOrderInput {
	return CreateOrderInput{
		UserID:       userID,
		CustomerName: "Sam Rivera",
		Type:         enums.OrderTypePickup,
		Items:        items,
	}
}

func strPtr(v string) *string { return &v }

func requireMoney(t *testing.T, want string, got decimal.Decimal) {
	t.Helper()
	require.Truef(t, decimal.RequireFromString(want).Equal(got), "expected %s, got %s", want, got.StringFixed(2))
}

func requireCode(t *testing.T, err error, code pkgerrors.Code) *pkgerrors.Error {
	t.Helper()
	typed := pkgerrors.As(err)
	require.NotNilf(t, typed, "expected typed error, got %v", err)
	require.Equal(t, code, typed.Code())
	return typed
}

func countEvents(t *testing.T, conn *gorm.DB, eventType enums.OutboxEventType) int64 {
	t.Helper()
	var count int64
	require.NoError(t, conn.Model(&models.OutboxEvent{}).Where("event_type = ?", eventType).Count(&count).Error)
	return count
}

func TestCreateSnapshotsCatalogPrices(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	burger := seedMenuItem(t, h.conn, "Smash Burger", "12.00")
	bacon := seedModifier(t, h.conn, burger, "Bacon", "1.50")
	userID := uuid.New()

	order, err := h.svc.Create(ctx, CreateOrderInput{
		UserID:       &userID,
		CustomerName: "Sam Rivera",
		Type:         enums.OrderTypeDelivery,
		DeliveryAddress: &types.Address{
			Line1:      "12 Market St",
			City:       "Austin",
			State:      "TX",
			PostalCode: "78701",
			Country:    "US",
		},
		Items: []ItemInput{{MenuItemID: burger.ID, Quantity: 2, ModifierIDs: []uuid.UUID{bacon.ID}}},
		Tip:   decimal.RequireFromString("3.00"),
	})
	require.NoError(t, err)

	requireMoney(t, "27.00", order.Subtotal)
	requireMoney(t, "2.16", order.Tax)
	requireMoney(t, "4.99", order.DeliveryFee)
	requireMoney(t, "37.15", order.Total)
	assert.Equal(t, enums.OrderStatusPending, order.Status)
	assert.Equal(t, enums.OrderPaymentUnpaid, order.PaymentStatus)
	require.Len(t, order.Items, 1)
	requireMoney(t, "12.00", order.Items[0].UnitPrice)
	requireMoney(t, "27.00", order.Items[0].LineTotal)
	require.Len(t, order.Items[0].Modifiers, 1)
	assert.Equal(t, "Bacon", order.Items[0].Modifiers[0].Name)
	assert.EqualValues(t, 1, countEvents(t, h.conn, enums.EventOrderCreated))
}

func TestCreateRejectsInvalidInput(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	item := seedMenuItem(t, h.conn, "Fries", "11.00")

	_, err := h.svc.Create(ctx, pickupInput(nil))
	requireCode(t, err, pkgerrors.CodeValidation)

	_, err = h.svc.Create(ctx, pickupInput(nil, ItemInput{MenuItemID: item.ID, Quantity: 0}))
	requireCode(t, err, pkgerrors.CodeValidation)

	delivery := pickupInput(nil, ItemInput{MenuItemID: item.ID, Quantity: 1})
	delivery.Type = enums.OrderTypeDelivery
	_, err = h.svc.Create(ctx, delivery)
	requireCode(t, err, pkgerrors.CodeValidation)

	_, err = h.svc.Create(ctx, pickupInput(nil, ItemInput{MenuItemID: uuid.New(), Quantity: 1}))
	requireCode(t, err, pkgerrors.CodeNotFound)
}

func TestCreateEnforcesMinimumOrder(t *testing.T) {
	h := newHarness(t)
	item := seedMenuItem(t, h.conn, "Side Salad", "6.00")

	_, err := h.svc.Create(context.Background(), pickupInput(nil, ItemInput{MenuItemID: item.ID, Quantity: 1}))
	typed := requireCode(t, err, pkgerrors.CodeBusinessRule)
	assert.Equal(t, "Minimum order amount is 10.00", typed.Message())

	var count int64
	require.NoError(t, h.conn.Model(&models.Order{}).Count(&count).Error)
	assert.Zero(t, count)
}

func TestCreateRejectsUnavailableItem(t *testing.T) {
	h := newHarness(t)
	item := seedMenuItem(t, h.conn, "Seasonal Pie", "14.00")
	require.NoError(t, h.conn.Model(&models.MenuItem{}).Where("id = ?", item.ID).Update("is_available", false).Error)

	_, err := h.svc.Create(context.Background(), pickupInput(nil, ItemInput{MenuItemID: item.ID, Quantity: 1}))
	requireCode(t, err, pkgerrors.CodeBusinessRule)
}

func TestCreateAppliesCappedPercentageCoupon(t *testing.T) {
	h := newHarness(t)
	item := seedMenuItem(t, h.conn, "Family Platter", "40.00")
	coupon := seedCoupon(t, h.conn, "TENOFF", enums.CouponTypePercentage, "10", strPtr("5.00"))
	userID := uuid.New()

	input := pickupInput(&userID, ItemInput{MenuItemID: item.ID, Quantity: 2})
	input.CouponCode = strPtr("tenoff")
	order, err := h.svc.Create(context.Background(), input)
	require.NoError(t, err)

	requireMoney(t, "5.00", order.CouponDiscount)
	requireMoney(t, "5.00", order.Discount)
	// 80.00 + 6.40 tax - 5.00
	requireMoney(t, "81.40", order.Total)

	var stored models.Coupon
	require.NoError(t, h.conn.First(&stored, "id = ?", coupon.ID).Error)
	assert.Equal(t, 1, stored.UsageCount)

	var usages int64
	require.NoError(t, h.conn.Model(&models.CouponUsage{}).Where("order_id = ?", order.ID).Count(&usages).Error)
	assert.EqualValues(t, 1, usages)
}

func TestCreateRejectsUnsupportedCouponType(t *testing.T) {
	h := newHarness(t)
	item := seedMenuItem(t, h.conn, "Tacos", "15.00")
	seedCoupon(t, h.conn, "BOGO", enums.CouponTypeBuyXGetY, "1", nil)

	input := pickupInput(nil, ItemInput{MenuItemID: item.ID, Quantity: 2})
	input.CouponCode = strPtr("BOGO")
	_, err := h.svc.Create(context.Background(), input)
	requireCode(t, err, pkgerrors.CodeBusinessRule)
}

func TestCreateRejectsInvalidCoupon(t *testing.T) {
	h := newHarness(t)
	item := seedMenuItem(t, h.conn, "Tacos", "15.00")

	input := pickupInput(nil, ItemInput{MenuItemID: item.ID, Quantity: 1})
	input.CouponCode = strPtr("NOPE")
	_, err := h.svc.Create(context.Background(), input)
	typed := requireCode(t, err, pkgerrors.CodeBusinessRule)
	assert.Equal(t, "Invalid coupon code", typed.Message())
}

func TestCreateAndCancelRestoresGiftCardAndLoyalty(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	item := seedMenuItem(t, h.conn, "Ramen", "20.00")
	card := seedGiftCard(t, h.conn, "GIFT-0001", "10.00")
	userID := uuid.New()
	seedLoyalty(t, h.conn, userID, 250)

	input := pickupInput(&userID, ItemInput{MenuItemID: item.ID, Quantity: 1})
	input.GiftCardCode = strPtr(card.Code)
	input.LoyaltyPoints = 200
	order, err := h.svc.Create(ctx, input)
	require.NoError(t, err)

	requireMoney(t, "10.00", order.GiftCardAmount)
	requireMoney(t, "2.00", order.LoyaltyDiscount)
	// 20.00 + 1.60 tax - 2.00 loyalty - 10.00 gift card
	requireMoney(t, "9.60", order.Total)

	var spent models.GiftCard
	require.NoError(t, h.conn.First(&spent, "id = ?", card.ID).Error)
	requireMoney(t, "0", spent.CurrentBalance)
	assert.Equal(t, enums.GiftCardStatusUsed, spent.Status)

	var account models.LoyaltyAccount
	require.NoError(t, h.conn.First(&account, "user_id = ?", userID).Error)
	assert.EqualValues(t, 50, account.Points)

	cancelled, err := h.svc.Cancel(ctx, CancelInput{OrderID: order.ID, Reason: strPtr("changed my mind"), Actor: &Actor{UserID: userID, Role: "customer"}})
	require.NoError(t, err)
	assert.Equal(t, enums.OrderStatusCancelled, cancelled.Status)
	require.NotNil(t, cancelled.CancelReason)

	var restored models.GiftCard
	require.NoError(t, h.conn.First(&restored, "id = ?", card.ID).Error)
	requireMoney(t, "10.00", restored.CurrentBalance)
	assert.Equal(t, enums.GiftCardStatusActive, restored.Status)

	require.NoError(t, h.conn.First(&account, "user_id = ?", userID).Error)
	assert.EqualValues(t, 250, account.Points)
	assert.EqualValues(t, 250, account.LifetimePoints)
}

func TestCreateFullyCoveredOrderIsPaid(t *testing.T) {
	h := newHarness(t)
	item := seedMenuItem(t, h.conn, "Pho", "20.00")
	card := seedGiftCard(t, h.conn, "GIFT-0002", "50.00")

	input := pickupInput(nil, ItemInput{MenuItemID: item.ID, Quantity: 1})
	input.GiftCardCode = strPtr(card.Code)
	order, err := h.svc.Create(context.Background(), input)
	require.NoError(t, err)

	requireMoney(t, "0", order.Total)
	requireMoney(t, "21.60", order.GiftCardAmount)
	assert.Equal(t, enums.OrderPaymentPaid, order.PaymentStatus)
	assert.Equal(t, enums.OrderStatusConfirmed, order.Status)
	assert.NotNil(t, order.ConfirmedAt)
	assert.EqualValues(t, 1, countEvents(t, h.conn, enums.EventOrderPaid))
}

func TestCancelPendingStampsCancelledAt(t *testing.T) {
	h := newHarness(t)
	item := seedMenuItem(t, h.conn, "Curry", "18.00")
	order, err := h.svc.Create(context.Background(), pickupInput(nil, ItemInput{MenuItemID: item.ID, Quantity: 1}))
	require.NoError(t, err)

	cancelled, err := h.svc.Cancel(context.Background(), CancelInput{OrderID: order.ID, Actor: &Actor{Staff: true, Role: "staff"}})
	require.NoError(t, err)
	require.NotNil(t, cancelled.CancelledAt)

	var stored models.Order
	require.NoError(t, h.conn.First(&stored, "id = ?", order.ID).Error)
	assert.Equal(t, enums.OrderStatusCancelled, stored.Status)
	assert.NotNil(t, stored.CancelledAt)
	assert.EqualValues(t, 1, countEvents(t, h.conn, enums.EventOrderStatusChanged))
}

func TestCancelReadyOrderRejected(t *testing.T) {
	h := newHarness(t)
	item := seedMenuItem(t, h.conn, "Curry", "18.00")
	order, err := h.svc.Create(context.Background(), pickupInput(nil, ItemInput{MenuItemID: item.ID, Quantity: 1}))
	require.NoError(t, err)
	require.NoError(t, h.conn.Model(&models.Order{}).Where("id = ?", order.ID).Update("status", enums.OrderStatusReady).Error)

	_, err = h.svc.Cancel(context.Background(), CancelInput{OrderID: order.ID})
	typed := requireCode(t, err, pkgerrors.CodeBusinessRule)
	assert.Equal(t, "Order cannot be cancelled once READY", typed.Message())
}

func TestCancelRequiresOwnership(t *testing.T) {
	h := newHarness(t)
	item := seedMenuItem(t, h.conn, "Curry", "18.00")
	owner := uuid.New()
	order, err := h.svc.Create(context.Background(), pickupInput(&owner, ItemInput{MenuItemID: item.ID, Quantity: 1}))
	require.NoError(t, err)

	_, err = h.svc.Cancel(context.Background(), CancelInput{OrderID: order.ID, Actor: &Actor{UserID: uuid.New(), Role: "customer"}})
	requireCode(t, err, pkgerrors.CodeForbidden)

	_, err = h.svc.Get(context.Background(), order.ID, &Actor{UserID: uuid.New(), Role: "customer"})
	requireCode(t, err, pkgerrors.CodeForbidden)
}

func TestUpdateStatusWalksPickupLifecycle(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	item := seedMenuItem(t, h.conn, "Burrito", "13.00")
	order, err := h.svc.Create(ctx, pickupInput(nil, ItemInput{MenuItemID: item.ID, Quantity: 1}))
	require.NoError(t, err)

	for _, status := range []string{"CONFIRMED", "preparing", "READY", "DELIVERED"} {
		_, err := h.svc.UpdateStatus(ctx, UpdateStatusInput{OrderID: order.ID, Status: status})
		require.NoError(t, err, status)
	}

	var stored models.Order
	require.NoError(t, h.conn.First(&stored, "id = ?", order.ID).Error)
	assert.Equal(t, enums.OrderStatusDelivered, stored.Status)
	assert.NotNil(t, stored.ConfirmedAt)
	assert.NotNil(t, stored.PreparingAt)
	assert.NotNil(t, stored.ReadyAt)
	assert.NotNil(t, stored.DeliveredAt)
	assert.NotNil(t, stored.ActualDeliveryTime)
	assert.EqualValues(t, 4, countEvents(t, h.conn, enums.EventOrderStatusChanged))

	_, err = h.svc.UpdateStatus(ctx, UpdateStatusInput{OrderID: order.ID, Status: "PREPARING"})
	requireCode(t, err, pkgerrors.CodeBusinessRule)

	_, err = h.svc.UpdateStatus(ctx, UpdateStatusInput{OrderID: order.ID, Status: "LOST"})
	requireCode(t, err, pkgerrors.CodeValidation)
}

func TestMarkPaidIsIdempotent(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	item := seedMenuItem(t, h.conn, "Poke Bowl", "20.00")
	userID := uuid.New()
	order, err := h.svc.Create(ctx, pickupInput(&userID, ItemInput{MenuItemID: item.ID, Quantity: 1}))
	require.NoError(t, err)

	paymentID := uuid.New()
	markPaid := func() *MarkPaidResult {
		var result *MarkPaidResult
		require.NoError(t, h.tx.WithTx(ctx, func(tx *gorm.DB) error {
			var err error
			result, err = h.svc.MarkPaid(ctx, tx, MarkPaidInput{
				OrderID:   order.ID,
				PaymentID: paymentID,
				Method:    enums.PaymentMethodCash,
				Amount:    order.Total,
			})
			return err
		}))
		return result
	}

	first := markPaid()
	assert.True(t, first.Changed)
	assert.Equal(t, enums.OrderStatusConfirmed, first.Order.Status)

	second := markPaid()
	assert.False(t, second.Changed)
	assert.EqualValues(t, 1, countEvents(t, h.conn, enums.EventOrderPaid))

	// floor(21.60 * 0.5)
	var account models.LoyaltyAccount
	require.NoError(t, h.conn.First(&account, "user_id = ?", userID).Error)
	assert.EqualValues(t, 10, account.Points)

	require.NoError(t, h.tx.WithTx(ctx, func(tx *gorm.DB) error {
		return h.svc.MarkRefunded(ctx, tx, order.ID)
	}))
	var stored models.Order
	require.NoError(t, h.conn.First(&stored, "id = ?", order.ID).Error)
	assert.Equal(t, enums.OrderPaymentRefunded, stored.PaymentStatus)
}

func TestApplyDeliveryCascade(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	item := seedMenuItem(t, h.conn, "Pizza", "22.00")
	input := pickupInput(nil, ItemInput{MenuItemID: item.ID, Quantity: 1})
	input.Type = enums.OrderTypeDelivery
	input.DeliveryAddress = &types.Address{Line1: "1 Main St", City: "Austin", State: "TX", PostalCode: "78701", Country: "US"}
	order, err := h.svc.Create(ctx, input)
	require.NoError(t, err)
	require.NoError(t, h.conn.Model(&models.Order{}).Where("id = ?", order.ID).Update("status", enums.OrderStatusReady).Error)

	for _, to := range []enums.OrderStatus{enums.OrderStatusOutForDelivery, enums.OrderStatusDelivered} {
		require.NoError(t, h.tx.WithTx(ctx, func(tx *gorm.DB) error {
			return h.svc.ApplyDeliveryCascade(ctx, tx, order.ID, to)
		}))
	}

	var stored models.Order
	require.NoError(t, h.conn.First(&stored, "id = ?", order.ID).Error)
	assert.Equal(t, enums.OrderStatusDelivered, stored.Status)
	assert.NotNil(t, stored.OutForDeliveryAt)
}

func TestListForUserPaginates(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	item := seedMenuItem(t, h.conn, "Dumplings", "12.00")
	userID := uuid.New()
	for i := 0; i < 3; i++ {
		_, err := h.svc.Create(ctx, pickupInput(&userID, ItemInput{MenuItemID: item.ID, Quantity: 1}))
		require.NoError(t, err)
	}
	_, err := h.svc.Create(ctx, pickupInput(nil, ItemInput{MenuItemID: item.ID, Quantity: 1}))
	require.NoError(t, err)

	first, err := h.svc.ListForUser(ctx, userID, pagination.Params{Limit: 2})
	require.NoError(t, err)
	require.Len(t, first.Orders, 2)
	require.NotEmpty(t, first.Cursor)

	second, err := h.svc.ListForUser(ctx, userID, pagination.Params{Limit: 2, Cursor: first.Cursor})
	require.NoError(t, err)
	require.Len(t, second.Orders, 1)
	assert.Empty(t, second.Cursor)
	assert.NotEqual(t, first.Orders[1].ID, second.Orders[0].ID)
	assert.True(t, first.Orders[0].CreatedAt.After(second.Orders[0].CreatedAt))
}

func seedPayment(t *testing.T, conn *gorm.DB, order *models.Order, method enums.PaymentMethod, status enums.PaymentStatus) models.Payment {
	t.Helper()
	payment := models.Payment{
		ID:            uuid.New(),
		OrderID:       order.ID,
		Amount:        order.Total,
		Status:        status,
		PaymentMethod: method,
		CreatedAt:     time.Date(2026, 5, 1, 18, 30, 0, 0, time.UTC),
	}
	require.NoError(t, conn.Create(&payment).Error)
	return payment
}

func markPaidInTx(h *harness, order *models.Order, method enums.PaymentMethod) (*MarkPaidResult, error) {
	ctx := context.Background()
	var result *MarkPaidResult
	err := h.tx.WithTx(ctx, func(tx *gorm.DB) error {
		var err error
		result, err = h.svc.MarkPaid(ctx, tx, MarkPaidInput{
			OrderID:   order.ID,
			PaymentID: uuid.New(),
			Method:    method,
			Amount:    order.Total,
		})
		return err
	})
	return result, err
}

func TestMarkPaidAfterCancelIsRejected(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	item := seedMenuItem(t, h.conn, "Bibimbap", "20.00")
	userID := uuid.New()
	order, err := h.svc.Create(ctx, pickupInput(&userID, ItemInput{MenuItemID: item.ID, Quantity: 1}))
	require.NoError(t, err)

	_, err = h.svc.Cancel(ctx, CancelInput{OrderID: order.ID, Actor: &Actor{UserID: userID, Role: "customer"}})
	require.NoError(t, err)

	_, err = markPaidInTx(h, order, enums.PaymentMethodCard)
	requireCode(t, err, pkgerrors.CodeStateConflict)
	assert.ErrorIs(t, err, ErrCancelled)

	var stored models.Order
	require.NoError(t, h.conn.First(&stored, "id = ?", order.ID).Error)
	assert.Equal(t, enums.OrderStatusCancelled, stored.Status)
	assert.Equal(t, enums.OrderPaymentUnpaid, stored.PaymentStatus)
	assert.Zero(t, countEvents(t, h.conn, enums.EventOrderPaid))

	var earned int64
	require.NoError(t, h.conn.Model(&models.LoyaltyTransaction{}).
		Where("order_id = ? AND type = ?", order.ID, enums.LoyaltyTxnEarned).Count(&earned).Error)
	assert.Zero(t, earned)

	// a charge captured after cancellation can still be refunded
	require.NoError(t, h.tx.WithTx(ctx, func(tx *gorm.DB) error {
		return h.svc.MarkRefunded(ctx, tx, order.ID)
	}))
}

func TestCancelRejectsPaymentAwaitingConfirmation(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	item := seedMenuItem(t, h.conn, "Tonkatsu", "16.00")
	userID := uuid.New()
	order, err := h.svc.Create(ctx, pickupInput(&userID, ItemInput{MenuItemID: item.ID, Quantity: 1}))
	require.NoError(t, err)
	seedPayment(t, h.conn, order, enums.PaymentMethodCard, enums.PaymentStatusProcessing)

	_, err = h.svc.Cancel(ctx, CancelInput{OrderID: order.ID, Actor: &Actor{UserID: userID, Role: "customer"}})
	typed := requireCode(t, err, pkgerrors.CodeBusinessRule)
	assert.Equal(t, "Order has a payment awaiting confirmation", typed.Message())

	var stored models.Order
	require.NoError(t, h.conn.First(&stored, "id = ?", order.ID).Error)
	assert.Equal(t, enums.OrderStatusPending, stored.Status)
}

func TestCancelPaidCardOrderRequiresRefundAndReversesEarnedPoints(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	item := seedMenuItem(t, h.conn, "Katsu Curry", "20.00")
	userID := uuid.New()
	order, err := h.svc.Create(ctx, pickupInput(&userID, ItemInput{MenuItemID: item.ID, Quantity: 1}))
	require.NoError(t, err)

	_, err = markPaidInTx(h, order, enums.PaymentMethodCard)
	require.NoError(t, err)
	payment := seedPayment(t, h.conn, order, enums.PaymentMethodCard, enums.PaymentStatusCompleted)

	staff := &Actor{Staff: true, Role: "staff"}
	_, err = h.svc.Cancel(ctx, CancelInput{OrderID: order.ID, Actor: staff})
	typed := requireCode(t, err, pkgerrors.CodeBusinessRule)
	assert.Equal(t, "Refund the card payment before cancelling the order", typed.Message())

	require.NoError(t, h.tx.WithTx(ctx, func(tx *gorm.DB) error {
		if err := tx.Model(&models.Payment{}).Where("id = ?", payment.ID).Update("status", enums.PaymentStatusRefunded).Error; err != nil {
			return err
		}
		return h.svc.MarkRefunded(ctx, tx, order.ID)
	}))

	cancelled, err := h.svc.Cancel(ctx, CancelInput{OrderID: order.ID, Actor: staff})
	require.NoError(t, err)
	assert.Equal(t, enums.OrderStatusCancelled, cancelled.Status)

	// floor(21.60 * 0.5) earned on payment, taken back on cancel
	var account models.LoyaltyAccount
	require.NoError(t, h.conn.First(&account, "user_id = ?", userID).Error)
	assert.Zero(t, account.Points)
	assert.EqualValues(t, 10, account.LifetimePoints)

	var reversal models.LoyaltyTransaction
	require.NoError(t, h.conn.Where("order_id = ? AND type = ?", order.ID, enums.LoyaltyTxnAdjusted).First(&reversal).Error)
	assert.EqualValues(t, -10, reversal.Points)
}

func TestCancelPaidCashOrderIsAllowed(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	item := seedMenuItem(t, h.conn, "Gyoza", "12.00")
	order, err := h.svc.Create(ctx, pickupInput(nil, ItemInput{MenuItemID: item.ID, Quantity: 1}))
	require.NoError(t, err)

	_, err = markPaidInTx(h, order, enums.PaymentMethodCash)
	require.NoError(t, err)
	seedPayment(t, h.conn, order, enums.PaymentMethodCash, enums.PaymentStatusCompleted)

	cancelled, err := h.svc.Cancel(ctx, CancelInput{OrderID: order.ID, Actor: &Actor{Staff: true, Role: "staff"}})
	require.NoError(t, err)
	assert.Equal(t, enums.OrderStatusCancelled, cancelled.Status)
}

func TestUpdateStatusRejectsUnknownTarget(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	item := seedMenuItem(t, h.conn, "Udon", "14.00")
	order, err := h.svc.Create(ctx, pickupInput(nil, ItemInput{MenuItemID: item.ID, Quantity: 1}))
	require.NoError(t, err)

	_, err = h.svc.UpdateStatus(ctx, UpdateStatusInput{OrderID: order.ID, Status: "shipped"})
	typed := requireCode(t, err, pkgerrors.CodeValidation)
	assert.Equal(t, "invalid target status", typed.Message())

	var stored models.Order
	require.NoError(t, h.conn.First(&stored, "id = ?", order.ID).Error)
	assert.Equal(t, enums.OrderStatusPending, stored.Status)
}
