package utils

import "github.com/shopspring/decimal"

// Round2 rounds x half away from zero to 2 decimal places.
func Round2(x float64) float64 {
	return decimal.NewFromFloat(x).Round(2).InexactFloat64()
}

// SumRound2 adds amounts in decimal space and rounds the result, so stored
// rollups (paid totals, purchase totals) do not drift with float addition.
func SumRound2(amounts ...float64) float64 {
	sum := decimal.Zero
	for _, a := range amounts {
		sum = sum.Add(decimal.NewFromFloat(a))
	}
	return sum.Round(2).InexactFloat64()
}
