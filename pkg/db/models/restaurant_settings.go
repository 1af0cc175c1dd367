package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// RestaurantSettings is a singleton row (id = 1).
type RestaurantSettings struct {
	ID              int             `gorm:"column:id;primaryKey"`
	TaxRate         decimal.Decimal `gorm:"column:tax_rate;type:numeric(6,4);not null"`
	MinOrderAmount  decimal.Decimal `gorm:"column:min_order_amount;type:numeric(12,2);not null"`
	DeliveryFee     decimal.Decimal `gorm:"column:delivery_fee;type:numeric(12,2);not null"`
	LoyaltyEnabled  bool            `gorm:"column:loyalty_enabled;not null;default:true"`
	PointsPerDollar decimal.Decimal `gorm:"column:points_per_dollar;type:numeric(6,2);not null"`
	PointsForFree   int64           `gorm:"column:points_for_free;not null"`
	Currency        string          `gorm:"column:currency;not null;default:'USD'"`
	UpdatedAt       time.Time       `gorm:"column:updated_at;autoUpdateTime"`
}

func (RestaurantSettings) TableName() string { return "restaurant_settings" }
