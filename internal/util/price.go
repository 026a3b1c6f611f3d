// Package util provides common utility functions for price calculations.
package util

import (
	"math"

	"github.com/shopspring/decimal"
)

// tickOp applies op to x/tick in decimal space so binary float error
// (1.235 stored as 1.23499...) cannot flip a tie.
func tickOp(x, tick float64, op func(decimal.Decimal) decimal.Decimal) float64 {
	if math.IsNaN(x) || math.IsInf(x, 0) {
		return x
	}
	tick = math.Abs(tick)
	if tick == 0 || math.IsNaN(tick) {
		return x
	}
	t := decimal.NewFromFloat(tick)
	q := decimal.NewFromFloat(x).Div(t)
	return op(q).Mul(t).InexactFloat64()
}

// RoundToTick rounds x to the nearest tick increment, ties away from zero.
// For example, with tick=0.01, 1.235 becomes 1.24.
func RoundToTick(x, tick float64) float64 {
	return tickOp(x, tick, func(d decimal.Decimal) decimal.Decimal { return d.Round(0) })
}

// FloorToTick rounds x down to a tick increment.
func FloorToTick(x, tick float64) float64 {
	return tickOp(x, tick, decimal.Decimal.Floor)
}

// CeilToTick rounds x up to a tick increment.
func CeilToTick(x, tick float64) float64 {
	return tickOp(x, tick, decimal.Decimal.Ceil)
}

// PercentChange returns (to-from)/from*100, or 0 when from is zero.
func PercentChange(from, to float64) float64 {
	if from == 0 {
		return 0
	}
	return (to - from) / from * 100
}

// Clamp limits x to [lo, hi].
func Clamp(x, lo, hi float64) float64 {
	return math.Max(lo, math.Min(hi, x))
}
