package pricing_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/evoqwell/evoqsite/internal/pricing"
)

func TestComputeSubtotalAndShipping(t *testing.T) {
	totals, err := pricing.Compute([]pricing.Line{
		{SKU: "oil-30", UnitPriceCents: 2999, Quantity: 2},
		{SKU: "balm-50", UnitPriceCents: 4500, Quantity: 1},
	}, 1000, nil)
	require.NoError(t, err)
	require.Equal(t, int64(10498), totals.SubtotalCents)
	require.Equal(t, int64(0), totals.DiscountCents)
	require.Equal(t, int64(1000), totals.ShippingCents)
	require.Equal(t, int64(11498), totals.TotalCents)
}

func TestComputeEmptyCartCarriesNoShipping(t *testing.T) {
	totals, err := pricing.Compute(nil, 1000, nil)
	require.NoError(t, err)
	require.Equal(t, int64(0), totals.SubtotalCents)
	require.Equal(t, int64(0), totals.ShippingCents)
	require.Equal(t, int64(0), totals.TotalCents)
}

func TestComputeStackedPromosUseBaseSubtotal(t *testing.T) {
	// 20% and $15 on a $100 subtotal stack to $35, not 15% of $80.
	totals, err := pricing.Compute(
		[]pricing.Line{{SKU: "oil-30", UnitPriceCents: 10000, Quantity: 1}},
		1000,
		[]pricing.Promo{
			{Code: "SAVE20", Kind: pricing.KindPercentage, PercentBps: 2000},
			{Code: "TAKE15", Kind: pricing.KindFixed, AmountCents: 1500},
		},
	)
	require.NoError(t, err)
	require.Equal(t, int64(3500), totals.DiscountCents)
	require.Equal(t, int64(10000-3500+1000), totals.TotalCents)
	require.Len(t, totals.Discounts, 2)
	require.Equal(t, int64(2000), totals.Discounts[0].AmountCents)
	require.Equal(t, int64(1500), totals.Discounts[1].AmountCents)
}

func TestComputeAggregateDiscountClampedToSubtotal(t *testing.T) {
	// Three $40 codes against $100: each fits individually, the sum is
	// clamped to the full subtotal.
	totals, err := pricing.Compute(
		[]pricing.Line{{SKU: "oil-30", UnitPriceCents: 10000, Quantity: 1}},
		1000,
		[]pricing.Promo{
			{Code: "A", Kind: pricing.KindFixed, AmountCents: 4000},
			{Code: "B", Kind: pricing.KindFixed, AmountCents: 4000},
			{Code: "C", Kind: pricing.KindFixed, AmountCents: 4000},
		},
	)
	require.NoError(t, err)
	require.Equal(t, int64(10000), totals.DiscountCents)
	require.Equal(t, int64(1000), totals.TotalCents)
}

func TestComputeSingleFixedCappedAtSubtotal(t *testing.T) {
	totals, err := pricing.Compute(
		[]pricing.Line{{SKU: "oil-30", UnitPriceCents: 500, Quantity: 1}},
		1000,
		[]pricing.Promo{{Code: "BIG", Kind: pricing.KindFixed, AmountCents: 2500}},
	)
	require.NoError(t, err)
	require.Equal(t, int64(500), totals.DiscountCents)
	require.Equal(t, int64(500), totals.Discounts[0].AmountCents)
	require.Equal(t, int64(1000), totals.TotalCents)
}

func TestComputePercentageRoundsHalfAwayFromZero(t *testing.T) {
	// 12.5% of $0.50 (50 cents) is 6.25 cents -> rounds to 6.
	totals, err := pricing.Compute(
		[]pricing.Line{{SKU: "x", UnitPriceCents: 50, Quantity: 1}},
		0,
		[]pricing.Promo{{Code: "P", Kind: pricing.KindPercentage, PercentBps: 1250}},
	)
	require.NoError(t, err)
	require.Equal(t, int64(6), totals.DiscountCents)

	// 10% of 25 cents is exactly 2.5 -> rounds up to 3.
	totals, err = pricing.Compute(
		[]pricing.Line{{SKU: "x", UnitPriceCents: 25, Quantity: 1}},
		0,
		[]pricing.Promo{{Code: "P", Kind: pricing.KindPercentage, PercentBps: 1000}},
	)
	require.NoError(t, err)
	require.Equal(t, int64(3), totals.DiscountCents)
}

func TestComputeInvariantsHold(t *testing.T) {
	cases := []struct {
		lines    []pricing.Line
		shipping int64
		promos   []pricing.Promo
	}{
		{nil, 1000, nil},
		{[]pricing.Line{{UnitPriceCents: 1, Quantity: 1}}, 0, []pricing.Promo{{Code: "P", Kind: pricing.KindPercentage, PercentBps: 10000}}},
		{[]pricing.Line{{UnitPriceCents: 999, Quantity: 3}}, 1000, []pricing.Promo{
			{Code: "A", Kind: pricing.KindPercentage, PercentBps: 3333},
			{Code: "B", Kind: pricing.KindFixed, AmountCents: 100000},
		}},
	}
	for _, tc := range cases {
		totals, err := pricing.Compute(tc.lines, tc.shipping, tc.promos)
		require.NoError(t, err)
		require.GreaterOrEqual(t, totals.DiscountCents, int64(0))
		require.LessOrEqual(t, totals.DiscountCents, totals.SubtotalCents)
		require.Equal(t, totals.SubtotalCents-totals.DiscountCents+totals.ShippingCents, totals.TotalCents)
		require.GreaterOrEqual(t, totals.TotalCents, int64(0))
	}
}

func TestComputeIsDeterministic(t *testing.T) {
	lines := []pricing.Line{{SKU: "oil-30", UnitPriceCents: 2999, Quantity: 2}}
	promos := []pricing.Promo{{Code: "SAVE10", Kind: pricing.KindPercentage, PercentBps: 1000}}
	first, err := pricing.Compute(lines, 1000, promos)
	require.NoError(t, err)
	second, err := pricing.Compute(lines, 1000, promos)
	require.NoError(t, err)
	require.Equal(t, first, second)
}

func TestComputeRejectsNegativeInputs(t *testing.T) {
	var violation *pricing.ContractViolationError

	_, err := pricing.Compute([]pricing.Line{{UnitPriceCents: -1, Quantity: 1}}, 0, nil)
	require.ErrorAs(t, err, &violation)
	require.Equal(t, "unitPriceCents", violation.Field)

	_, err = pricing.Compute([]pricing.Line{{UnitPriceCents: 100, Quantity: -2}}, 0, nil)
	require.ErrorAs(t, err, &violation)
	require.Equal(t, "quantity", violation.Field)

	_, err = pricing.Compute([]pricing.Line{{UnitPriceCents: 100, Quantity: 1}}, 0,
		[]pricing.Promo{{Code: "N", Kind: pricing.KindFixed, AmountCents: -5}})
	require.ErrorAs(t, err, &violation)

	_, err = pricing.Compute(nil, -1, nil)
	require.ErrorAs(t, err, &violation)
}

func TestComputeUnknownKind(t *testing.T) {
	_, err := pricing.Compute(
		[]pricing.Line{{UnitPriceCents: 100, Quantity: 1}},
		0,
		[]pricing.Promo{{Code: "X", Kind: pricing.Kind("bogus")}},
	)
	require.Error(t, err)
}

func TestToDisplay(t *testing.T) {
	totals, err := pricing.Compute(
		[]pricing.Line{{SKU: "oil-30", UnitPriceCents: 10000, Quantity: 1}},
		1000,
		[]pricing.Promo{{Code: "SAVE20", Kind: pricing.KindPercentage, PercentBps: 2000}},
	)
	require.NoError(t, err)
	display := totals.ToDisplay()
	require.Equal(t, "100.00", display.Subtotal)
	require.Equal(t, "20.00", display.Discount)
	require.Equal(t, "10.00", display.Shipping)
	require.Equal(t, "90.00", display.Total)
}
