package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/dishdash-backend/pkg/enums"
)

// Delivery tracks the courier leg of a DELIVERY order.
type Delivery struct {
	ID                      uuid.UUID            `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	OrderID                 uuid.UUID            `gorm:"column:order_id;type:uuid;not null"`
	Status                  enums.DeliveryStatus `gorm:"column:status;type:text;not null;default:'PENDING'"`
	DriverID                *uuid.UUID           `gorm:"column:driver_id;type:uuid"`
	DriverLatitude          *float64             `gorm:"column:driver_latitude"`
	DriverLongitude         *float64             `gorm:"column:driver_longitude"`
	DriverLocationUpdatedAt *time.Time           `gorm:"column:driver_location_updated_at"`
	EstimatedPickupTime     *time.Time           `gorm:"column:estimated_pickup_time"`
	EstimatedDeliveryTime   *time.Time           `gorm:"column:estimated_delivery_time"`
	ActualPickupTime        *time.Time           `gorm:"column:actual_pickup_time"`
	ActualDeliveryTime      *time.Time           `gorm:"column:actual_delivery_time"`
	AssignedAt              *time.Time           `gorm:"column:assigned_at"`
	AcceptedAt              *time.Time           `gorm:"column:accepted_at"`
	FailureReason           *string              `gorm:"column:failure_reason"`
	CreatedAt               time.Time            `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt               time.Time            `gorm:"column:updated_at;autoUpdateTime"`
}
