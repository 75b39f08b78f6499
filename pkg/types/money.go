package types

import (
	"fmt"

	"github.com/shopspring/decimal"
)

var centsPerUnit = decimal.NewFromInt(100)

// ToMinorUnits converts a decimal major-unit amount ("12.34") into integer
// cents, Stripe's wire convention. Fractional cents are rejected rather than
// rounded: the gateway must never charge an amount the shopper did not see.
func ToMinorUnits(amount decimal.Decimal) (int64, error) {
	cents := amount.Mul(centsPerUnit)
	if !cents.IsInteger() {
		return 0, fmt.Errorf("amount %s has sub-cent precision", amount.String())
	}
	return cents.IntPart(), nil
}

// FromMinorUnits converts integer cents back into a major-unit decimal.
func FromMinorUnits(cents int64) decimal.Decimal {
	return decimal.NewFromInt(cents).Div(centsPerUnit)
}

// ParseMinorUnits parses a decimal string and converts it to cents.
func ParseMinorUnits(raw string) (int64, error) {
	amount, err := decimal.NewFromString(raw)
	if err != nil {
		return 0, fmt.Errorf("invalid amount %q: %w", raw, err)
	}
	if amount.IsNegative() {
		return 0, fmt.Errorf("amount %q is negative", raw)
	}
	return ToMinorUnits(amount)
}
