// Package util provides common utility functions for price calculations.
package util

import "github.com/shopspring/decimal"

// RoundToIncrement rounds x to the nearest multiple of increment.
// Exact halves go to the even multiple, so 50050 with increment 100 becomes
// 50000 and 50150 becomes 50200. Decimal arithmetic avoids float artifacts
// such as 500.49999 when dividing by the increment.
func RoundToIncrement(x, increment float64) float64 {
	if increment <= 0 {
		return x
	}
	inc := decimal.NewFromFloat(increment)
	steps := decimal.NewFromFloat(x).Div(inc).RoundBank(0)
	v, _ := steps.Mul(inc).Float64()
	return v
}
