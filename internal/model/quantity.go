package model

import (
	"strconv"
	"strings"
)

// FormatQuantity renders qty with at most the given decimal digits,
// truncating instead of rounding. Exchanges reject quantities finer
// than the instrument step, and rounding up can exceed the available
// balance, so the formatted value is never above the raw one.
func FormatQuantity(qty float64, decimals int) string {
	if decimals < 0 {
		decimals = 0
	}
	s := strconv.FormatFloat(qty, 'f', -1, 64)
	dot := strings.IndexByte(s, '.')
	if dot < 0 {
		return s
	}
	if decimals == 0 {
		return s[:dot]
	}
	frac := s[dot+1:]
	if len(frac) > decimals {
		frac = frac[:decimals]
	}
	return s[:dot+1] + frac
}

// FloorQuantity floors qty to the given decimal digits.
func FloorQuantity(qty float64, decimals int) float64 {
	v, err := strconv.ParseFloat(FormatQuantity(qty, decimals), 64)
	if err != nil {
		return 0
	}
	return v
}
