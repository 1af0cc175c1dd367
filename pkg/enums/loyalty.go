package enums

import "fmt"

// LoyaltyTier is derived from lifetime points.
type LoyaltyTier string

const (
	LoyaltyTierBronze   LoyaltyTier = "BRONZE"
	LoyaltyTierSilver   LoyaltyTier = "SILVER"
	LoyaltyTierGold     LoyaltyTier = "GOLD"
	LoyaltyTierPlatinum LoyaltyTier = "PLATINUM"
)

var validLoyaltyTiers = []LoyaltyTier{
	LoyaltyTierBronze,
	LoyaltyTierSilver,
	LoyaltyTierGold,
	LoyaltyTierPlatinum,
}

// String implements fmt.Stringer.
func (l LoyaltyTier) String() string {
	return string(l)
}

// IsValid reports whether the value is a known LoyaltyTier.
func (l LoyaltyTier) IsValid() bool {
	for _, candidate := range validLoyaltyTiers {
		if candidate == l {
			return true
		}
	}
	return false
}

// ParseLoyaltyTier converts raw input into a LoyaltyTier.
func ParseLoyaltyTier(value string) (LoyaltyTier, error) {
	for _, candidate := range validLoyaltyTiers {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid loyalty tier %q", value)
}

// LoyaltyTransactionType labels loyalty ledger rows.
type LoyaltyTransactionType string

const (
	LoyaltyTxnEarned   LoyaltyTransactionType = "EARNED"
	LoyaltyTxnRedeemed LoyaltyTransactionType = "REDEEMED"
	LoyaltyTxnExpired  LoyaltyTransactionType = "EXPIRED"
	LoyaltyTxnAdjusted LoyaltyTransactionType = "ADJUSTED"
)

var validLoyaltyTransactionTypes = []LoyaltyTransactionType{
	LoyaltyTxnEarned,
	LoyaltyTxnRedeemed,
	LoyaltyTxnExpired,
	LoyaltyTxnAdjusted,
}

// String implements fmt.Stringer.
func (l LoyaltyTransactionType) String() string {
	return string(l)
}

// IsValid reports whether the value is a known LoyaltyTransactionType.
func (l LoyaltyTransactionType) IsValid() bool {
	for _, candidate := range validLoyaltyTransactionTypes {
		if candidate == l {
			return true
		}
	}
	return false
}

// ParseLoyaltyTransactionType converts raw input into a LoyaltyTransactionType.
func ParseLoyaltyTransactionType(value string) (LoyaltyTransactionType, error) {
	for _, candidate := range validLoyaltyTransactionTypes {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid loyalty transaction type %q", value)
}
