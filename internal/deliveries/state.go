package deliveries

import (
	"fmt"
	"time"

	"github.com/angelmondragon/dishdash-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/dishdash-backend/pkg/errors"
)

// driverEdges lists the transitions a driver may perform. PENDING → ASSIGNED
// belongs to dispatch and is handled by Assign.
var driverEdges = map[enums.DeliveryStatus]map[enums.DeliveryStatus]string{
	enums.DeliveryStatusAssigned: {
		enums.DeliveryStatusAccepted: "accepted_at",
	},
	enums.DeliveryStatusAccepted: {
		enums.DeliveryStatusInTransit: "actual_pickup_time",
		enums.DeliveryStatusFailed:    "",
	},
	enums.DeliveryStatusInTransit: {
		enums.DeliveryStatusDelivered: "actual_delivery_time",
		enums.DeliveryStatusFailed:    "",
	},
}

// trackableStatuses accept driver location pings.
var trackableStatuses = []enums.DeliveryStatus{
	enums.DeliveryStatusAssigned,
	enums.DeliveryStatusAccepted,
	enums.DeliveryStatusInTransit,
}

func planDriverTransition(from, to enums.DeliveryStatus, now time.Time) (map[string]any, error) {
	edges, ok := driverEdges[from]
	if !ok {
		return nil, invalidTransition(from, to)
	}
	stamp, ok := edges[to]
	if !ok {
		return nil, invalidTransition(from, to)
	}
	updates := map[string]any{
		"status":     to,
		"updated_at": now,
	}
	if stamp != "" {
		updates[stamp] = now
	}
	return updates, nil
}

func invalidTransition(from, to enums.DeliveryStatus) error {
	return pkgerrors.New(pkgerrors.CodeStateConflict, fmt.Sprintf("Cannot transition delivery from %s to %s", from, to))
}

func isTrackable(status enums.DeliveryStatus) bool {
	for _, s := range trackableStatuses {
		if s == status {
			return true
		}
	}
	return false
}
