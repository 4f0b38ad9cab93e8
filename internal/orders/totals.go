package orders

import "github.com/shopspring/decimal"

// DefaultTaxRate is 5%.
var DefaultTaxRate = decimal.RequireFromString("0.05")

// Batas ini menjaga subtotal satu order tetap jauh di bawah int64.
const (
	MaxPriceCents int64 = 10_000_000_000
	MaxLineQty          = 100_000
	MaxCartLines        = 100
)

type Totals struct {
	Subtotal int64
	Tax      int64
	Shipping int64
	Total    int64
}

// ComputeTotals sums the lines and applies rate to the subtotal, rounding the
// tax half away from zero to whole cents.
func ComputeTotals(lines []LineItem, rate decimal.Decimal, shipping int64) Totals {
	var sub int64
	for _, l := range lines {
		sub += l.UnitPriceCents * int64(l.Qty)
	}
	tax := decimal.NewFromInt(sub).Mul(rate).Round(0).IntPart()
	return Totals{Subtotal: sub, Tax: tax, Shipping: shipping, Total: sub + tax + shipping}
}
