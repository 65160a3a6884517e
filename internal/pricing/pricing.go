// Package pricing implements the carcass-bound discount rules for
// core-exchange sales. All monetary math uses decimals; percentages are
// expressed on a 0-100 scale.
package pricing

import (
	"github.com/shopspring/decimal"

	"github.com/recore-erp/recore-erp/internal/shared"
)

var hundred = decimal.NewFromInt(100)

// MaxDiscountPercent returns the percentage at which the discount on
// unitPrice equals carcassValue, clamped to [0,100].
func MaxDiscountPercent(unitPrice, carcassValue decimal.Decimal) (decimal.Decimal, error) {
	if unitPrice.Sign() <= 0 {
		return decimal.Zero, shared.ErrInvalidPrice
	}
	pct := carcassValue.Div(unitPrice).Mul(hundred)
	if pct.Sign() < 0 {
		return decimal.Zero, nil
	}
	if pct.GreaterThan(hundred) {
		return hundred, nil
	}
	return pct, nil
}

// DiscountValue returns the monetary value of a percentage discount.
func DiscountValue(unitPrice, percent decimal.Decimal) decimal.Decimal {
	return unitPrice.Mul(percent).Div(hundred)
}

// FinalPrice returns the unit price after the discount is applied.
func FinalPrice(unitPrice, percent decimal.Decimal) decimal.Decimal {
	return unitPrice.Sub(DiscountValue(unitPrice, percent))
}

// RetainedRevenue is the margin kept when the discount granted is below
// the full carcass value.
func RetainedRevenue(carcassValue, discountValue decimal.Decimal) decimal.Decimal {
	return carcassValue.Sub(discountValue)
}

// ValidateDiscount reports whether the discount stays within the carcass
// value budget.
func ValidateDiscount(unitPrice, percent, carcassValue decimal.Decimal) bool {
	return !DiscountValue(unitPrice, percent).GreaterThan(carcassValue)
}

// ClampDiscount lowers percent to the maximum the carcass value allows.
// The second return reports whether clamping happened; callers must
// surface that to the user rather than fail the sale.
func ClampDiscount(unitPrice, percent, carcassValue decimal.Decimal) (decimal.Decimal, bool, error) {
	max, err := MaxDiscountPercent(unitPrice, carcassValue)
	if err != nil {
		return decimal.Zero, false, err
	}
	if percent.GreaterThan(max) {
		return max, true, nil
	}
	return percent, false, nil
}
