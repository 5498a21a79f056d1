package crawler

import (
	"math"
	"regexp"
	"strconv"
	"strings"
)

var priceStrip = regexp.MustCompile(`[^\d.,]`)

// ParsePrice extracts a number from a price label in Indonesian notation,
// where "." groups thousands and "," marks decimals. It returns nil when
// nothing parses.
func ParsePrice(text string) *float64 {
	clean := priceStrip.ReplaceAllString(text, "")
	clean = strings.ReplaceAll(clean, ".", "")
	clean = strings.ReplaceAll(clean, ",", ".")
	if clean == "" {
		return nil
	}
	v, err := strconv.ParseFloat(clean, 64)
	if err != nil || math.IsNaN(v) || math.IsInf(v, 0) {
		return nil
	}
	return &v
}

// ParseCurrency maps the marker in a price label to an ISO code.
func ParseCurrency(text string) string {
	upper := strings.ToUpper(text)
	switch {
	case upper == "":
		return DefaultCurrency
	case strings.Contains(upper, "RP"), strings.Contains(upper, "RUPIAH"):
		return "IDR"
	case strings.Contains(upper, "$"), strings.Contains(upper, "USD"):
		return "USD"
	case strings.Contains(upper, "€"), strings.Contains(upper, "EUR"):
		return "EUR"
	default:
		return DefaultCurrency
	}
}

// HasCurrencyMarker reports whether text looks like a rupiah price with digits.
func HasCurrencyMarker(text string) bool {
	return strings.Contains(strings.ToLower(text), "rp") && strings.ContainsAny(text, "0123456789")
}
