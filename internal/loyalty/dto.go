package loyalty

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/angelmondragon/dishdash-backend/pkg/db/models"
)

type EarnInput struct {
	UserID     uuid.UUID
	OrderID    uuid.UUID
	OrderTotal decimal.Decimal
}

// EarnResult reports Earned=false when the program is disabled or the order
// is too small to earn anything.
type EarnResult struct {
	Points int64
	Earned bool
	Tier   string
}

type RedeemInput struct {
	UserID  uuid.UUID
	Points  int64
	OrderID *uuid.UUID
}

type RedeemResult struct {
	Points          int64
	Value           decimal.Decimal
	RemainingPoints int64
}

type RedemptionQuote struct {
	Points    int64
	Value     decimal.Decimal
	Available int64
}

type AdjustInput struct {
	UserID          uuid.UUID
	Points          int64
	Description     string
	OrderID         *uuid.UUID
	AffectsLifetime bool
}

type AccountDTO struct {
	UserID          uuid.UUID       `json:"user_id"`
	Points          int64           `json:"points"`
	LifetimePoints  int64           `json:"lifetime_points"`
	Tier            string          `json:"tier"`
	PointsForFree   int64           `json:"points_for_free"`
	RedeemableValue decimal.Decimal `json:"redeemable_value"`
}

type TransactionDTO struct {
	ID          uuid.UUID  `json:"id"`
	OrderID     *uuid.UUID `json:"order_id,omitempty"`
	Type        string     `json:"type"`
	Points      int64      `json:"points"`
	Description string     `json:"description"`
	CreatedAt   time.Time  `json:"created_at"`
}

type TransactionPage struct {
	Items  []TransactionDTO `json:"items"`
	Cursor string           `json:"cursor"`
}

func newTransactionDTO(txn models.LoyaltyTransaction) TransactionDTO {
	return TransactionDTO{
		ID:          txn.ID,
		OrderID:     txn.OrderID,
		Type:        string(txn.Type),
		Points:      txn.Points,
		Description: txn.Description,
		CreatedAt:   txn.CreatedAt,
	}
}
