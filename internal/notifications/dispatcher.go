package notifications

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"
	"golang.org/x/sync/errgroup"

	"github.com/angelmondragon/dishdash-backend/internal/orders"
	"github.com/angelmondragon/dishdash-backend/pkg/db/models"
	"github.com/angelmondragon/dishdash-backend/pkg/enums"
	"github.com/angelmondragon/dishdash-backend/pkg/logger"
)

// Event is a domain occurrence worth telling the customer about.
type Event struct {
	Type     enums.NotificationType
	OrderID  uuid.UUID
	Status   enums.OrderStatus
	DriverID *uuid.UUID
	Amount   string
}

type orderReader interface {
	Get(ctx context.Context, orderID uuid.UUID, actor *orders.Actor) (*models.Order, error)
}

type feedWriter interface {
	Create(ctx context.Context, notification *models.Notification) error
}

type DispatcherParams struct {
	Repo      feedWriter
	Orders    orderReader
	Transport Transport
	Channels  []enums.NotificationChannel
	Logger    *logger.Logger
	Now       func() time.Time
}

// Dispatcher persists a feed entry and fans the message out to every channel
// the customer can be reached on.
type Dispatcher struct {
	repo      feedWriter
	orders    orderReader
	transport Transport
	channels  []enums.NotificationChannel
	logg      *logger.Logger
	now       func() time.Time
}

func NewDispatcher(params DispatcherParams) (*Dispatcher, error) {
	if params.Repo == nil {
		return nil, fmt.Errorf("notifications repository required")
	}
	if params.Orders == nil {
		return nil, fmt.Errorf("order reader required")
	}
	if params.Transport == nil {
		return nil, fmt.Errorf("notification transport required")
	}
	channels := params.Channels
	if len(channels) == 0 {
		channels = []enums.NotificationChannel{
			enums.NotificationChannelEmail,
			enums.NotificationChannelSMS,
			enums.NotificationChannelPush,
		}
	}
	now := params.Now
	if now == nil {
		now = func() time.Time { return time.Now().UTC() }
	}
	return &Dispatcher{
		repo:      params.Repo,
		orders:    params.Orders,
		transport: params.Transport,
		channels:  channels,
		logg:      params.Logger,
		now:       now,
	}, nil
}

// ParseChannels converts configured channel names, skipping unknown entries.
func ParseChannels(raw []string) []enums.NotificationChannel {
	out := make([]enums.NotificationChannel, 0, len(raw))
	for _, name := range raw {
		channel := enums.NotificationChannel(strings.ToLower(strings.TrimSpace(name)))
		if channel.IsValid() {
			out = append(out, channel)
		}
	}
	return out
}

// Dispatch returns an error only when the order cannot be loaded or the feed
// row cannot be written. Channel delivery failures are logged.
func (d *Dispatcher) Dispatch(ctx context.Context, event Event) error {
	order, err := d.orders.Get(ctx, event.OrderID, nil)
	if err != nil {
		return err
	}
	if order.UserID == nil {
		d.debug(ctx, order, "guest order has no notification recipient")
		return nil
	}
	addresses := d.addresses(order)
	if len(addresses) == 0 {
		d.debug(ctx, order, "no contact channel available")
		return nil
	}

	title, body := compose(event, order)
	channels := make(pq.StringArray, 0, len(addresses))
	for _, channel := range d.channels {
		if _, ok := addresses[channel]; ok {
			channels = append(channels, string(channel))
		}
	}
	link := fmt.Sprintf("/orders/%s", order.ID)
	orderID := order.ID
	notification := &models.Notification{
		ID:        uuid.New(),
		UserID:    *order.UserID,
		OrderID:   &orderID,
		Type:      event.Type,
		Title:     title,
		Message:   body,
		Channels:  channels,
		Link:      &link,
		CreatedAt: d.now(),
	}
	if err := d.repo.Create(ctx, notification); err != nil {
		return fmt.Errorf("store notification: %w", err)
	}

	var g errgroup.Group
	for _, name := range channels {
		channel := enums.NotificationChannel(name)
		msg := Message{
			Channel: channel,
			Address: addresses[channel],
			Subject: title,
			Body:    body,
			Metadata: map[string]string{
				"notification_id": notification.ID.String(),
				"order_id":        order.ID.String(),
				"type":            string(event.Type),
			},
		}
		g.Go(func() error {
			if err := d.transport.Send(ctx, msg); err != nil && d.logg != nil {
				d.logg.Error(d.logg.WithFields(ctx, map[string]any{
					"order_id": order.ID.String(),
					"channel":  string(channel),
				}), "notification channel failed", err)
			}
			return nil
		})
	}
	_ = g.Wait()
	return nil
}

func (d *Dispatcher) addresses(order *models.Order) map[enums.NotificationChannel]string {
	out := map[enums.NotificationChannel]string{}
	for _, channel := range d.channels {
		switch channel {
		case enums.NotificationChannelEmail:
			if order.CustomerEmail != nil && strings.TrimSpace(*order.CustomerEmail) != "" {
				out[channel] = strings.TrimSpace(*order.CustomerEmail)
			}
		case enums.NotificationChannelSMS:
			if order.CustomerPhone != nil && strings.TrimSpace(*order.CustomerPhone) != "" {
				out[channel] = strings.TrimSpace(*order.CustomerPhone)
			}
		case enums.NotificationChannelPush:
			if order.UserID != nil {
				out[channel] = order.UserID.String()
			}
		}
	}
	return out
}

func compose(event Event, order *models.Order) (string, string) {
	number := fmt.Sprintf("#%d", order.OrderNumber)
	switch event.Type {
	case enums.NotificationTypeOrderConfirmed:
		return "Order confirmed", fmt.Sprintf("Thanks %s, order %s is confirmed and headed to the kitchen.", order.CustomerName, number)
	case enums.NotificationTypeDriverAssigned:
		return "Driver assigned", fmt.Sprintf("A driver has been assigned to order %s.", number)
	case enums.NotificationTypePaymentRefunded:
		if event.Amount != "" {
			return "Refund issued", fmt.Sprintf("We refunded %s for order %s.", event.Amount, number)
		}
		return "Refund issued", fmt.Sprintf("Your payment for order %s was refunded.", number)
	default:
		return "Order update", fmt.Sprintf("Order %s is now %s.", number, statusLabel(event.Status))
	}
}

func statusLabel(status enums.OrderStatus) string {
	if status == "" {
		return "updated"
	}
	return strings.ToLower(strings.ReplaceAll(string(status), "_", " "))
}

func (d *Dispatcher) debug(ctx context.Context, order *models.Order, msg string) {
	if d.logg == nil {
		return
	}
	d.logg.Debug(d.logg.WithOrderID(ctx, order.ID.String()), msg)
}
