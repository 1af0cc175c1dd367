package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/angelmondragon/dishdash-backend/pkg/enums"
)

type GiftCard struct {
	ID              uuid.UUID            `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	Code            string               `gorm:"column:code;not null"`
	PINHash         *string              `gorm:"column:pin_hash"`
	OriginalBalance decimal.Decimal      `gorm:"column:original_balance;type:numeric(12,2);not null"`
	CurrentBalance  decimal.Decimal      `gorm:"column:current_balance;type:numeric(12,2);not null"`
	Status          enums.GiftCardStatus `gorm:"column:status;type:text;not null;default:'ACTIVE'"`
	ExpiresAt       *time.Time           `gorm:"column:expires_at"`
	PurchaserEmail  *string              `gorm:"column:purchaser_email"`
	CreatedAt       time.Time            `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt       time.Time            `gorm:"column:updated_at;autoUpdateTime"`
}

// GiftCardTransaction amounts are signed: usage negative, refund positive.
type GiftCardTransaction struct {
	ID           uuid.UUID                     `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	GiftCardID   uuid.UUID                     `gorm:"column:gift_card_id;type:uuid;not null"`
	OrderID      *uuid.UUID                    `gorm:"column:order_id;type:uuid"`
	Type         enums.GiftCardTransactionType `gorm:"column:type;type:text;not null"`
	Amount       decimal.Decimal               `gorm:"column:amount;type:numeric(12,2);not null"`
	BalanceAfter decimal.Decimal               `gorm:"column:balance_after;type:numeric(12,2);not null"`
	CreatedAt    time.Time                     `gorm:"column:created_at;autoCreateTime"`
}
