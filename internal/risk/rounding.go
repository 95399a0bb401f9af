package risk

import "github.com/shopspring/decimal"

// RoundShares truncates a share quantity to 2 decimals, toward zero, so a
// fund never orders more than the sizing step allowed.
func RoundShares(shares float64) float64 {
	v, _ := decimal.NewFromFloat(shares).Truncate(2).Float64()
	return v
}

// BuyLimit applies the slippage allowance to a reference price and rounds the
// result up to 4 decimals. The multiply runs in decimal so float noise in the
// product cannot push the rounded price an extra tick up.
func BuyLimit(ref, slippage float64) float64 {
	v, _ := decimal.NewFromFloat(ref).
		Mul(decimal.NewFromFloat(1 + slippage)).
		RoundCeil(4).
		Float64()
	return v
}

// SellLimit applies the slippage allowance downward and rounds to 4 decimals,
// toward zero.
func SellLimit(ref, slippage float64) float64 {
	v, _ := decimal.NewFromFloat(ref).
		Mul(decimal.NewFromFloat(1 - slippage)).
		RoundFloor(4).
		Float64()
	return v
}
