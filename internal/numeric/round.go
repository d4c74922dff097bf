// Package numeric holds the arithmetic shared by the scoring stages:
// rounding to a number of decimal digits, unit-weight parsing and the
// percentile / z-score grade bands.
package numeric

import (
	"math"

	"github.com/shopspring/decimal"
)

// settleDigits is the decimal precision a float is settled at before it is
// rounded, so arithmetic residue such as 0.29*100 == 28.999999999999996
// reads as 29. Scores carry far fewer digits than this.
const settleDigits = 9

// settle converts x to its shortest decimal form at settleDigits places.
func settle(x float64) decimal.Decimal {
	return decimal.NewFromFloat(x).Round(settleDigits)
}

func places(digits int) int32 {
	if digits < 0 {
		return 0
	}
	return int32(digits)
}

func finite(x float64) bool {
	return !math.IsNaN(x) && !math.IsInf(x, 0)
}

// Round rounds half away from zero to digits decimal places, so
// Round(1.005, 2) is 1.01.
func Round(x float64, digits int) float64 {
	if !finite(x) {
		return x
	}
	return settle(x).Round(places(digits)).InexactFloat64()
}

// CeilToDigits rounds up to digits decimal places. A value already on the
// grid stays where it is.
func CeilToDigits(x float64, digits int) float64 {
	if !finite(x) {
		return x
	}
	return settle(x).RoundCeil(places(digits)).InexactFloat64()
}

// FloorToDigits rounds down to digits decimal places.
func FloorToDigits(x float64, digits int) float64 {
	if !finite(x) {
		return x
	}
	return settle(x).RoundFloor(places(digits)).InexactFloat64()
}

// Mode selects one of the rounding functions.
type Mode string

const (
	HalfUp Mode = "half-up"
	Ceil   Mode = "ceil"
	Floor  Mode = "floor"
)

// Valid reports whether m names a rounding function.
func (m Mode) Valid() bool {
	switch m {
	case HalfUp, Ceil, Floor:
		return true
	}
	return false
}

// Apply rounds x with the selected mode.
func (m Mode) Apply(x float64, digits int) float64 {
	switch m {
	case Ceil:
		return CeilToDigits(x, digits)
	case Floor:
		return FloorToDigits(x, digits)
	default:
		return Round(x, digits)
	}
}
