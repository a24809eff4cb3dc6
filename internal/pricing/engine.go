// Package pricing computes order totals from a resolved cart snapshot. It is
// the single source of truth for subtotal, discount stacking, shipping, and
// grand total: both the quote preview and the authoritative checkout path go
// through Compute so the two can never drift.
package pricing

import (
	"fmt"

	"github.com/evoqwell/evoqsite/internal/money"
)

// Kind identifies how a promo discount is calculated.
type Kind string

const (
	// KindPercentage discounts a percentage of the base subtotal.
	KindPercentage Kind = "percentage"
	// KindFixed discounts a fixed amount in cents.
	KindFixed Kind = "fixed"
)

// Line is a cart line already resolved against the catalog. Quantities for
// the same SKU are aggregated before reaching the engine.
type Line struct {
	SKU            string
	Name           string
	UnitPriceCents int64
	Quantity       int64
}

// Promo is a promo code already resolved and known to be active. Percentage
// values are carried in basis points so all math stays integral.
type Promo struct {
	Code        string
	Kind        Kind
	PercentBps  int32
	AmountCents int64
}

// DiscountLine records the amount a single promo contributed.
type DiscountLine struct {
	Code        string `json:"code"`
	Kind        Kind   `json:"kind"`
	AmountCents int64  `json:"amountCents"`
}

// Totals aggregates the computed order amounts. The construction invariant
// TotalCents == SubtotalCents - DiscountCents + ShippingCents always holds,
// and 0 <= DiscountCents <= SubtotalCents.
type Totals struct {
	SubtotalCents int64
	DiscountCents int64
	ShippingCents int64
	TotalCents    int64
	Discounts     []DiscountLine
}

// ContractViolationError reports inputs that no validated caller can
// produce: a negative price, quantity, or discount value. It signals a bug
// upstream, not a user-correctable condition.
type ContractViolationError struct {
	Field string
	Value int64
}

func (e *ContractViolationError) Error() string {
	return fmt.Sprintf("pricing: contract violation: %s is negative (%d)", e.Field, e.Value)
}

// Compute prices a resolved cart. Each promo discount is calculated
// independently against the base subtotal and then summed: a 20%-off code
// and a $15-off code on a $100 subtotal yield $35, never 15% of $80. The
// summed discount is clamped to the subtotal. Shipping is a flat rate that
// drops to zero for an empty cart.
func Compute(lines []Line, shippingCents int64, promos []Promo) (Totals, error) {
	if shippingCents < 0 {
		return Totals{}, &ContractViolationError{Field: "shippingCents", Value: shippingCents}
	}

	var subtotal int64
	for _, line := range lines {
		if line.Quantity < 0 {
			return Totals{}, &ContractViolationError{Field: "quantity", Value: line.Quantity}
		}
		if line.UnitPriceCents < 0 {
			return Totals{}, &ContractViolationError{Field: "unitPriceCents", Value: line.UnitPriceCents}
		}
		subtotal += line.UnitPriceCents * line.Quantity
	}

	shipping := shippingCents
	if subtotal == 0 {
		shipping = 0
	}

	discounts := make([]DiscountLine, 0, len(promos))
	var totalDiscount int64
	for _, promo := range promos {
		amount, err := discountFor(subtotal, promo)
		if err != nil {
			return Totals{}, err
		}
		discounts = append(discounts, DiscountLine{Code: promo.Code, Kind: promo.Kind, AmountCents: amount})
		totalDiscount += amount
	}

	// Individual fixed caps do not prevent several codes from summing past
	// the subtotal, so the aggregate is clamped separately.
	if totalDiscount > subtotal {
		totalDiscount = subtotal
	}

	return Totals{
		SubtotalCents: subtotal,
		DiscountCents: totalDiscount,
		ShippingCents: shipping,
		TotalCents:    subtotal - totalDiscount + shipping,
		Discounts:     discounts,
	}, nil
}

// discountFor computes one promo's discount against the base subtotal.
func discountFor(subtotal int64, promo Promo) (int64, error) {
	switch promo.Kind {
	case KindPercentage:
		if promo.PercentBps < 0 {
			return 0, &ContractViolationError{Field: "percentBps", Value: int64(promo.PercentBps)}
		}
		// Round half away from zero; operands are non-negative here.
		return (subtotal*int64(promo.PercentBps) + 5000) / 10000, nil
	case KindFixed:
		if promo.AmountCents < 0 {
			return 0, &ContractViolationError{Field: "amountCents", Value: promo.AmountCents}
		}
		// A single fixed discount cannot exceed the subtotal on its own.
		if promo.AmountCents > subtotal {
			return subtotal, nil
		}
		return promo.AmountCents, nil
	default:
		return 0, fmt.Errorf("pricing: unknown discount kind %q", promo.Kind)
	}
}

// DisplayTotals is the two-decimal representation used at the API boundary.
type DisplayTotals struct {
	Subtotal string `json:"subtotal"`
	Discount string `json:"discount"`
	Shipping string `json:"shipping"`
	Total    string `json:"total"`
}

// ToDisplay converts the totals to fixed two-decimal strings. Conversion
// happens only here, never mid-computation.
func (t Totals) ToDisplay() DisplayTotals {
	return DisplayTotals{
		Subtotal: money.FormatDollars(t.SubtotalCents),
		Discount: money.FormatDollars(t.DiscountCents),
		Shipping: money.FormatDollars(t.ShippingCents),
		Total:    money.FormatDollars(t.TotalCents),
	}
}
