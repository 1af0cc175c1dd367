package types

import (
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// ModifierSnapshot freezes a chosen modifier option at checkout time.
type ModifierSnapshot struct {
	OptionID  uuid.UUID       `json:"option_id"`
	GroupName string          `json:"group_name,omitempty"`
	Name      string          `json:"name"`
	Price     decimal.Decimal `json:"price"`
}

type ModifierSnapshots []ModifierSnapshot

// Total sums the snapshot prices.
func (m ModifierSnapshots) Total() decimal.Decimal {
	total := decimal.Zero
	for _, mod := range m {
		total = total.Add(mod.Price)
	}
	return total
}
