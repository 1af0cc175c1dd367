package orders

import (
	"fmt"
	"time"

	"github.com/angelmondragon/dishdash-backend/pkg/db/models"
	"github.com/angelmondragon/dishdash-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/dishdash-backend/pkg/errors"
)

// transition describes one edge of the order state machine.
type transition struct {
	// orderType restricts the edge to one fulfilment type when set.
	orderType enums.OrderType
	stamps    []string
}

var transitions = map[enums.OrderStatus]map[enums.OrderStatus]transition{
	enums.OrderStatusPending: {
		enums.OrderStatusConfirmed: {stamps: []string{"confirmed_at"}},
		enums.OrderStatusCancelled: {stamps: []string{"cancelled_at"}},
	},
	enums.OrderStatusConfirmed: {
		enums.OrderStatusPreparing: {stamps: []string{"preparing_at"}},
		enums.OrderStatusCancelled: {stamps: []string{"cancelled_at"}},
	},
	enums.OrderStatusPreparing: {
		enums.OrderStatusReady:     {stamps: []string{"ready_at"}},
		enums.OrderStatusCancelled: {stamps: []string{"cancelled_at"}},
	},
	enums.OrderStatusReady: {
		enums.OrderStatusOutForDelivery: {orderType: enums.OrderTypeDelivery, stamps: []string{"out_for_delivery_at"}},
		enums.OrderStatusDelivered:      {orderType: enums.OrderTypePickup, stamps: []string{"delivered_at", "actual_delivery_time"}},
	},
	enums.OrderStatusOutForDelivery: {
		enums.OrderStatusDelivered: {stamps: []string{"delivered_at", "actual_delivery_time"}},
	},
}

// planTransition validates from -> to for the order and returns the column updates to apply.
func planTransition(order *models.Order, to enums.OrderStatus, now time.Time) (map[string]any, error) {
	if !to.IsValid() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "invalid target status")
	}
	from := order.Status
	if from.IsTerminal() {
		return nil, pkgerrors.New(pkgerrors.CodeBusinessRule, fmt.Sprintf("Order is already %s", from))
	}
	edge, ok := transitions[from][to]
	if !ok {
		if to == enums.OrderStatusCancelled {
			return nil, pkgerrors.New(pkgerrors.CodeBusinessRule, fmt.Sprintf("Order cannot be cancelled once %s", from))
		}
		return nil, pkgerrors.New(pkgerrors.CodeBusinessRule, fmt.Sprintf("Cannot change order status from %s to %s", from, to))
	}
	if edge.orderType != "" && edge.orderType != order.Type {
		switch edge.orderType {
		case enums.OrderTypeDelivery:
			return nil, pkgerrors.New(pkgerrors.CodeBusinessRule, "Pickup orders cannot go out for delivery")
		default:
			return nil, pkgerrors.New(pkgerrors.CodeBusinessRule, "Delivery orders must go out for delivery before they are delivered")
		}
	}

	updates := map[string]any{
		"status":     to,
		"updated_at": now,
	}
	for _, column := range edge.stamps {
		updates[column] = now
	}
	return updates, nil
}

// applyStamps mirrors a successful transition onto the in-memory order.
func applyStamps(order *models.Order, to enums.OrderStatus, now time.Time) {
	order.Status = to
	order.UpdatedAt = now
	switch to {
	case enums.OrderStatusConfirmed:
		order.ConfirmedAt = &now
	case enums.OrderStatusPreparing:
		order.PreparingAt = &now
	case enums.OrderStatusReady:
		order.ReadyAt = &now
	case enums.OrderStatusOutForDelivery:
		order.OutForDeliveryAt = &now
	case enums.OrderStatusDelivered:
		order.DeliveredAt = &now
		order.ActualDeliveryTime = &now
	case enums.OrderStatusCancelled:
		order.CancelledAt = &now
	}
}
