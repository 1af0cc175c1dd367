package notifications

import (
	"context"
	"errors"
	"io"
	"sort"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/angelmondragon/dishdash-backend/internal/dbtest"
	"github.com/angelmondragon/dishdash-backend/internal/orders"
	"github.com/angelmondragon/dishdash-backend/pkg/db/models"
	"github.com/angelmondragon/dishdash-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/dishdash-backend/pkg/errors"
	"github.com/angelmondragon/dishdash-backend/pkg/logger"
)

type stubOrders map[uuid.UUID]*models.Order

func (s stubOrders) Get(_ context.Context, orderID uuid.UUID, _ *orders.Actor) (*models.Order, error) {
	order, ok := s[orderID]
	if !ok {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "Order not found")
	}
	return order, nil
}

type recordingTransport struct {
	mu       sync.Mutex
	sent     []Message
	failFor  enums.NotificationChannel
	attempts int
}

func (r *recordingTransport) Send(_ context.Context, msg Message) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.attempts++
	if msg.Channel == r.failFor {
		return errors.New("provider unavailable")
	}
	r.sent = append(r.sent, msg)
	return nil
}

func (r *recordingTransport) channels() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, 0, len(r.sent))
	for _, msg := range r.sent {
		out = append(out, string(msg.Channel))
	}
	sort.Strings(out)
	return out
}

func testLogger() *logger.Logger {
	return logger.New(logger.Options{ServiceName: "test", Output: io.Discard})
}

func strPtr(v string) *string { return &v }

func newDispatcher(t *testing.T, orderMap stubOrders, transport Transport) (*Dispatcher, *Repository) {
	t.Helper()
	repo := NewRepository(dbtest.Open(t))
	d, err := NewDispatcher(DispatcherParams{
		Repo:      repo,
		Orders:    orderMap,
		Transport: transport,
		Logger:    testLogger(),
	})
	require.NoError(t, err)
	return d, repo
}

func customerOrder(email, phone *string) *models.Order {
	userID := uuid.New()
	return &models.Order{
		ID:            uuid.New(),
		OrderNumber:   1007,
		UserID:        &userID,
		CustomerName:  "Sam Rivera",
		CustomerEmail: email,
		CustomerPhone: phone,
		Status:        enums.OrderStatusConfirmed,
	}
}

func TestDispatchFansOutToAvailableChannels(t *testing.T) {
	order := customerOrder(strPtr("sam@example.com"), nil)
	transport := &recordingTransport{}
	d, repo := newDispatcher(t, stubOrders{order.ID: order}, transport)

	err := d.Dispatch(context.Background(), Event{Type: enums.NotificationTypeOrderConfirmed, OrderID: order.ID, Status: enums.OrderStatusConfirmed})
	require.NoError(t, err)

	assert.Equal(t, []string{"email", "push"}, transport.channels())
	for _, msg := range transport.sent {
		assert.Equal(t, "Order confirmed", msg.Subject)
		assert.Contains(t, msg.Body, "#1007")
		if msg.Channel == enums.NotificationChannelEmail {
			assert.Equal(t, "sam@example.com", msg.Address)
		}
	}

	rows, _, err := repo.Page(context.Background(), feedFilter{UserID: *order.UserID}, 0, nil)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, enums.NotificationTypeOrderConfirmed, rows[0].Type)
	assert.Equal(t, []string{"email", "push"}, []string(rows[0].Channels))
}

func TestDispatchSwallowsChannelFailures(t *testing.T) {
	order := customerOrder(strPtr("sam@example.com"), strPtr("+15550100"))
	transport := &recordingTransport{failFor: enums.NotificationChannelSMS}
	d, _ := newDispatcher(t, stubOrders{order.ID: order}, transport)

	err := d.Dispatch(context.Background(), Event{Type: enums.NotificationTypeOrderStatusChanged, OrderID: order.ID, Status: enums.OrderStatusOutForDelivery})
	require.NoError(t, err)
	assert.Equal(t, 3, transport.attempts)
	assert.Equal(t, []string{"email", "push"}, transport.channels())
	assert.Contains(t, transport.sent[0].Body, "out for delivery")
}

func TestDispatchSkipsGuestOrders(t *testing.T) {
	order := customerOrder(strPtr("guest@example.com"), nil)
	order.UserID = nil
	transport := &recordingTransport{}
	d, _ := newDispatcher(t, stubOrders{order.ID: order}, transport)

	require.NoError(t, d.Dispatch(context.Background(), Event{Type: enums.NotificationTypeOrderConfirmed, OrderID: order.ID}))
	assert.Zero(t, transport.attempts)
}

func TestDispatchSkipsWhenNoChannelReachable(t *testing.T) {
	order := customerOrder(nil, nil)
	transport := &recordingTransport{}
	repo := NewRepository(dbtest.Open(t))
	d, err := NewDispatcher(DispatcherParams{
		Repo:      repo,
		Orders:    stubOrders{order.ID: order},
		Transport: transport,
		Channels:  ParseChannels([]string{"EMAIL", " sms ", "fax"}),
	})
	require.NoError(t, err)

	require.NoError(t, d.Dispatch(context.Background(), Event{Type: enums.NotificationTypeOrderConfirmed, OrderID: order.ID}))
	assert.Zero(t, transport.attempts)
	rows, _, err := repo.Page(context.Background(), feedFilter{UserID: *order.UserID}, 0, nil)
	require.NoError(t, err)
	assert.Empty(t, rows)
}

func TestDispatchUnknownOrder(t *testing.T) {
	d, _ := newDispatcher(t, stubOrders{}, &recordingTransport{})
	err := d.Dispatch(context.Background(), Event{Type: enums.NotificationTypeOrderConfirmed, OrderID: uuid.New()})
	require.Error(t, err)
}
