package cron

import (
	"context"
	"fmt"
	"time"

	"github.com/angelmondragon/dishdash-backend/pkg/logger"
)

const (
	CouponExpiryJobName   = "coupon-expiry"
	GiftCardExpiryJobName = "gift-card-expiry"
)

// expirySweeper flips elapsed ledger records to EXPIRED and reports how many changed.
type expirySweeper interface {
	ExpireStale(ctx context.Context, now time.Time) (int64, error)
}

type ExpiryJobParams struct {
	Name    string
	Logger  *logger.Logger
	Sweeper expirySweeper
}

// NewExpiryJob expires coupons or gift cards whose validity window closed
// without anyone trying to redeem them.
func NewExpiryJob(params ExpiryJobParams) (Job, error) {
	if params.Sweeper == nil {
		return nil, fmt.Errorf("sweeper required")
	}
	return newSweepJob(params.Name, params.Logger, 0, params.Sweeper.ExpireStale)
}
