package enums

import "fmt"

// GiftCardStatus is the redeemability state of a gift card.
type GiftCardStatus string

const (
	GiftCardStatusActive  GiftCardStatus = "ACTIVE"
	GiftCardStatusUsed    GiftCardStatus = "USED"
	GiftCardStatusExpired GiftCardStatus = "EXPIRED"
)

var validGiftCardStatuses = []GiftCardStatus{
	GiftCardStatusActive,
	GiftCardStatusUsed,
	GiftCardStatusExpired,
}

// String implements fmt.Stringer.
func (g GiftCardStatus) String() string {
	return string(g)
}

// IsValid reports whether the value is a known GiftCardStatus.
func (g GiftCardStatus) IsValid() bool {
	for _, candidate := range validGiftCardStatuses {
		if candidate == g {
			return true
		}
	}
	return false
}

// ParseGiftCardStatus converts raw input into a GiftCardStatus.
func ParseGiftCardStatus(value string) (GiftCardStatus, error) {
	for _, candidate := range validGiftCardStatuses {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid gift card status %q", value)
}

// GiftCardTransactionType labels gift card ledger rows.
type GiftCardTransactionType string

const (
	GiftCardTxnUsage  GiftCardTransactionType = "USAGE"
	GiftCardTxnRefund GiftCardTransactionType = "REFUND"
)

var validGiftCardTransactionTypes = []GiftCardTransactionType{
	GiftCardTxnUsage,
	GiftCardTxnRefund,
}

// String implements fmt.Stringer.
func (g GiftCardTransactionType) String() string {
	return string(g)
}

// IsValid reports whether the value is a known GiftCardTransactionType.
func (g GiftCardTransactionType) IsValid() bool {
	for _, candidate := range validGiftCardTransactionTypes {
		if candidate == g {
			return true
		}
	}
	return false
}

// ParseGiftCardTransactionType converts raw input into a GiftCardTransactionType.
func ParseGiftCardTransactionType(value string) (GiftCardTransactionType, error) {
	for _, candidate := range validGiftCardTransactionTypes {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid gift card transaction type %q", value)
}
