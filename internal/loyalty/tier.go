package loyalty

import (
	"github.com/shopspring/decimal"

	"github.com/angelmondragon/dishdash-backend/pkg/db/models"
	"github.com/angelmondragon/dishdash-backend/pkg/enums"
)

const (
	silverThreshold   = 1000
	goldThreshold     = 5000
	platinumThreshold = 10000
)

// TierFor maps lifetime points onto a tier. It depends on nothing else.
func TierFor(lifetimePoints int64) enums.LoyaltyTier {
	switch {
	case lifetimePoints < silverThreshold:
		return enums.LoyaltyTierBronze
	case lifetimePoints < goldThreshold:
		return enums.LoyaltyTierSilver
	case lifetimePoints < platinumThreshold:
		return enums.LoyaltyTierGold
	default:
		return enums.LoyaltyTierPlatinum
	}
}

// CalculateEarn returns floor(orderTotal * points_per_dollar).
func CalculateEarn(orderTotal decimal.Decimal, settings models.RestaurantSettings) int64 {
	if !orderTotal.IsPositive() || !settings.PointsPerDollar.IsPositive() {
		return 0
	}
	return orderTotal.Mul(settings.PointsPerDollar).Floor().IntPart()
}

// RedemptionValue converts points to a dollar discount rounded to cents.
func RedemptionValue(points int64, settings models.RestaurantSettings) decimal.Decimal {
	if points <= 0 || settings.PointsForFree <= 0 {
		return decimal.Zero
	}
	return decimal.NewFromInt(points).Div(decimal.NewFromInt(settings.PointsForFree)).Round(2)
}
