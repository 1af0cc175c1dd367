package loyalty

import (
	"testing"

	"github.com/shopspring/decimal"

	"github.com/angelmondragon/dishdash-backend/pkg/db/models"
	"github.com/angelmondragon/dishdash-backend/pkg/enums"
)

func TestTierFor(t *testing.T) {
	t.Parallel()

	cases := []struct {
		points int64
		want   enums.LoyaltyTier
	}{
		{0, enums.LoyaltyTierBronze},
		{999, enums.LoyaltyTierBronze},
		{1000, enums.LoyaltyTierSilver},
		{4999, enums.LoyaltyTierSilver},
		{5000, enums.LoyaltyTierGold},
		{9999, enums.LoyaltyTierGold},
		{10000, enums.LoyaltyTierPlatinum},
		{250000, enums.LoyaltyTierPlatinum},
	}
	for _, tc := range cases {
		if got := TierFor(tc.points); got != tc.want {
			t.Fatalf("TierFor(%d) = %s, want %s", tc.points, got, tc.want)
		}
		if again := TierFor(tc.points); again != TierFor(tc.points) {
			t.Fatalf("TierFor(%d) is not stable", tc.points)
		}
	}
}

func TestCalculateEarnFloors(t *testing.T) {
	t.Parallel()

	cfg := models.RestaurantSettings{PointsPerDollar: decimal.RequireFromString("0.5")}
	if got := CalculateEarn(decimal.RequireFromString("45.99"), cfg); got != 22 {
		t.Fatalf("expected 22 points, got %d", got)
	}
	if got := CalculateEarn(decimal.RequireFromString("1.99"), cfg); got != 0 {
		t.Fatalf("expected 0 points, got %d", got)
	}
	if got := CalculateEarn(decimal.Zero, cfg); got != 0 {
		t.Fatalf("expected 0 points for empty order, got %d", got)
	}
}

func TestRedemptionValue(t *testing.T) {
	t.Parallel()

	cfg := models.RestaurantSettings{PointsForFree: 100}
	if got := RedemptionValue(250, cfg); !got.Equal(decimal.RequireFromString("2.50")) {
		t.Fatalf("expected 2.50, got %s", got)
	}
	if got := RedemptionValue(333, models.RestaurantSettings{PointsForFree: 300}); !got.Equal(decimal.RequireFromString("1.11")) {
		t.Fatalf("expected 1.11, got %s", got)
	}
}
