// Package money converts cart prices into integer minor currency units.
package money

import (
	"errors"
	"math"

	"github.com/shopspring/decimal"
)

var (
	hundred  = decimal.NewFromInt(100)
	maxMinor = decimal.NewFromInt(math.MaxInt64)
	minMinor = decimal.NewFromInt(math.MinInt64)
)

// ErrOutOfRange means the amount does not fit in int64 minor units.
var ErrOutOfRange = errors.New("amount out of range")

// Line is one priced cart line.
type Line struct {
	Price    float64
	Quantity int
}

// LineTotal returns price × quantity without float drift.
func LineTotal(price float64, qty int) decimal.Decimal {
	return decimal.NewFromFloat(price).Mul(decimal.NewFromInt(int64(qty)))
}

// CartTotal sums all lines in major units.
func CartTotal(lines []Line) decimal.Decimal {
	total := decimal.Zero
	for _, l := range lines {
		total = total.Add(LineTotal(l.Price, l.Quantity))
	}
	return total
}

// MinorUnits returns round(total × 100). Halves round away from zero.
func MinorUnits(total decimal.Decimal) (int64, error) {
	minor := total.Mul(hundred).Round(0)
	if minor.GreaterThan(maxMinor) || minor.LessThan(minMinor) {
		return 0, ErrOutOfRange
	}
	return minor.IntPart(), nil
}

// CartMinorUnits is MinorUnits(CartTotal(lines)).
func CartMinorUnits(lines []Line) (int64, error) {
	return MinorUnits(CartTotal(lines))
}

// FromMinor converts minor units back to a major-unit decimal.
func FromMinor(minor int64) decimal.Decimal {
	return decimal.New(minor, -2)
}
