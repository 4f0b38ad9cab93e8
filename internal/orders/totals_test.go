package orders

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
)

func TestComputeTotalsRoundsTaxHalfUp(t *testing.T) {
	cases := []struct {
		name     string
		lines    []LineItem
		shipping int64
		want     Totals
	}{
		{"whole", []LineItem{{UnitPriceCents: 250, Qty: 4}}, 0, Totals{1000, 50, 0, 1050}},
		{"half rounds up", []LineItem{{UnitPriceCents: 1250, Qty: 1}}, 0, Totals{1250, 63, 0, 1313}},
		{"below half", []LineItem{{UnitPriceCents: 1249, Qty: 1}}, 0, Totals{1249, 62, 0, 1311}},
		{"several lines", []LineItem{{UnitPriceCents: 199, Qty: 3}, {UnitPriceCents: 1005, Qty: 2}}, 500, Totals{2607, 130, 500, 3237}},
		{"empty", nil, 0, Totals{}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := ComputeTotals(tc.lines, DefaultTaxRate, tc.shipping)
			assert.Equal(t, tc.want, got)
			assert.Equal(t, got.Subtotal+got.Tax+got.Shipping, got.Total)
		})
	}
}

func TestComputeTotalsCustomRate(t *testing.T) {
	got := ComputeTotals([]LineItem{{UnitPriceCents: 1000, Qty: 1}}, decimal.RequireFromString("0.11"), 0)
	assert.Equal(t, int64(110), got.Tax)
}
