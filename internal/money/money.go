// Package money handles conversion between internal minor-unit amounts and
// the decimal representations used at the API boundary. Every computation in
// the storefront happens in integer cents; decimal dollars exist only in
// request payloads and display fields.
package money

import (
	"fmt"
	"math"
)

// FormatDollars renders cents as a fixed two-decimal dollar string, e.g.
// 1050 -> "10.50". Negative amounts keep their sign.
func FormatDollars(cents int64) string {
	sign := ""
	if cents < 0 {
		sign = "-"
		cents = -cents
	}
	return fmt.Sprintf("%s%d.%02d", sign, cents/100, cents%100)
}

// PercentToBps converts a decimal percentage (e.g. 12.5) into basis points
// (1250). Percentages are stored in basis points so discount math stays in
// integer arithmetic.
func PercentToBps(value float64) (int32, error) {
	if math.IsNaN(value) || math.IsInf(value, 0) {
		return 0, fmt.Errorf("invalid percentage: %v", value)
	}
	bps := math.Round(value * 100)
	if bps > math.MaxInt32 || bps < math.MinInt32 {
		return 0, fmt.Errorf("percentage out of range: %v", value)
	}
	return int32(bps), nil
}

// BpsToPercent renders basis points as a decimal percentage for API output.
func BpsToPercent(bps int32) float64 {
	return float64(bps) / 100
}
