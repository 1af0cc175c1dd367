package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/angelmondragon/dishdash-backend/pkg/enums"
)

type Coupon struct {
	ID                uuid.UUID          `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	Code              string             `gorm:"column:code;not null"`
	Type              enums.CouponType   `gorm:"column:type;type:text;not null"`
	DiscountValue     decimal.Decimal    `gorm:"column:discount_value;type:numeric(12,2);not null"`
	MaxDiscountAmount *decimal.Decimal   `gorm:"column:max_discount_amount;type:numeric(12,2)"`
	MinOrderAmount    *decimal.Decimal   `gorm:"column:min_order_amount;type:numeric(12,2)"`
	ValidFrom         *time.Time         `gorm:"column:valid_from"`
	ValidUntil        *time.Time         `gorm:"column:valid_until"`
	UsageLimit        *int               `gorm:"column:usage_limit"`
	UsageLimitPerUser *int               `gorm:"column:usage_limit_per_user"`
	UsageCount        int                `gorm:"column:usage_count;not null;default:0"`
	Status            enums.CouponStatus `gorm:"column:status;type:text;not null;default:'ACTIVE'"`
	Description       *string            `gorm:"column:description"`
	CreatedAt         time.Time          `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt         time.Time          `gorm:"column:updated_at;autoUpdateTime"`
}

// CouponUsage is an append-only record of one redemption.
type CouponUsage struct {
	ID             uuid.UUID       `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	CouponID       uuid.UUID       `gorm:"column:coupon_id;type:uuid;not null"`
	UserID         *uuid.UUID      `gorm:"column:user_id;type:uuid"`
	OrderID        uuid.UUID       `gorm:"column:order_id;type:uuid;not null"`
	DiscountAmount decimal.Decimal `gorm:"column:discount_amount;type:numeric(12,2);not null"`
	CreatedAt      time.Time       `gorm:"column:created_at;autoCreateTime"`
}
