// Package extract pulls the price out of a record's detail view.
package extract

import (
	"regexp"
	"strings"
)

// Currency is the glyph every extracted price carries.
const Currency = "₹"

// pricePattern matches the first number in the text, with an optional
// "Approx" prefix and currency glyph.
var pricePattern = regexp.MustCompile(`(?i)(?:approx\.?\s*)?₹?\s*(\d+(?:,\d+)*)`)

// ParsePrice returns the first number in text as "₹<digits>" with thousands
// separators removed.
func ParsePrice(text string) (string, bool) {
	m := pricePattern.FindStringSubmatch(text)
	if m == nil {
		return "", false
	}
	return Currency + strings.ReplaceAll(m[1], ",", ""), true
}
