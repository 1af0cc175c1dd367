package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/dishdash-backend/pkg/enums"
	"github.com/angelmondragon/dishdash-backend/pkg/pagination"
)

type LoyaltyAccount struct {
	ID             uuid.UUID         `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	UserID         uuid.UUID         `gorm:"column:user_id;type:uuid;not null"`
	Points         int64             `gorm:"column:points;not null;default:0"`
	LifetimePoints int64             `gorm:"column:lifetime_points;not null;default:0"`
	Tier           enums.LoyaltyTier `gorm:"column:tier;type:text;not null;default:'BRONZE'"`
	CreatedAt      time.Time         `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt      time.Time         `gorm:"column:updated_at;autoUpdateTime"`
}

// LoyaltyTransaction points are signed.
type LoyaltyTransaction struct {
	ID          uuid.UUID                    `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	AccountID   uuid.UUID                    `gorm:"column:account_id;type:uuid;not null"`
	OrderID     *uuid.UUID                   `gorm:"column:order_id;type:uuid"`
	Type        enums.LoyaltyTransactionType `gorm:"column:type;type:text;not null"`
	Points      int64                        `gorm:"column:points;not null"`
	Description string                       `gorm:"column:description;not null"`
	CreatedAt   time.Time                    `gorm:"column:created_at;autoCreateTime"`
}

func (l LoyaltyTransaction) PageKey() pagination.Cursor {
	return pagination.Cursor{CreatedAt: l.CreatedAt, ID: l.ID}
}
