package deliveries

import (
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/dishdash-backend/pkg/db/models"
)

type CreateInput struct {
	OrderID               uuid.UUID
	EstimatedPickupTime   *time.Time
	EstimatedDeliveryTime *time.Time
}

type LocationInput struct {
	DeliveryID uuid.UUID
	DriverID   uuid.UUID
	Latitude   float64
	Longitude  float64
}

type DeliveryDTO struct {
	ID                      uuid.UUID  `json:"id"`
	OrderID                 uuid.UUID  `json:"order_id"`
	Status                  string     `json:"status"`
	DriverID                *uuid.UUID `json:"driver_id,omitempty"`
	DriverLatitude          *float64   `json:"driver_latitude,omitempty"`
	DriverLongitude         *float64   `json:"driver_longitude,omitempty"`
	DriverLocationUpdatedAt *time.Time `json:"driver_location_updated_at,omitempty"`
	EstimatedPickupTime     *time.Time `json:"estimated_pickup_time,omitempty"`
	EstimatedDeliveryTime   *time.Time `json:"estimated_delivery_time,omitempty"`
	ActualPickupTime        *time.Time `json:"actual_pickup_time,omitempty"`
	ActualDeliveryTime      *time.Time `json:"actual_delivery_time,omitempty"`
	AssignedAt              *time.Time `json:"assigned_at,omitempty"`
	AcceptedAt              *time.Time `json:"accepted_at,omitempty"`
	FailureReason           *string    `json:"failure_reason,omitempty"`
	CreatedAt               time.Time  `json:"created_at"`
	UpdatedAt               time.Time  `json:"updated_at"`
}

func NewDeliveryDTO(d models.Delivery) DeliveryDTO {
	return DeliveryDTO{
		ID:                      d.ID,
		OrderID:                 d.OrderID,
		Status:                  string(d.Status),
		DriverID:                d.DriverID,
		DriverLatitude:          d.DriverLatitude,
		DriverLongitude:         d.DriverLongitude,
		DriverLocationUpdatedAt: d.DriverLocationUpdatedAt,
		EstimatedPickupTime:     d.EstimatedPickupTime,
		EstimatedDeliveryTime:   d.EstimatedDeliveryTime,
		ActualPickupTime:        d.ActualPickupTime,
		ActualDeliveryTime:      d.ActualDeliveryTime,
		AssignedAt:              d.AssignedAt,
		AcceptedAt:              d.AcceptedAt,
		FailureReason:           d.FailureReason,
		CreatedAt:               d.CreatedAt,
		UpdatedAt:               d.UpdatedAt,
	}
}
