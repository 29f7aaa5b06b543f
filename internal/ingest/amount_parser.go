package ingest

import (
	"regexp"
	"strings"
)

// amountRegex matches a currency-prefixed monetary span: symbol, digits with
// optional comma/decimal separators, and an optional magnitude word. The
// value is kept as free text; it is display data, not arithmetic data.
var amountRegex = regexp.MustCompile(
	`(?i)(?:£|\$|€|GBP\s?|USD\s?|EUR\s?)\s?\d[\d,]*(?:\.\d+)?(?:\s?(?:million|billion|thousand|[mk]\b|bn\b))?`)

// ExtractAmount returns the first currency-prefixed monetary span found in
// the text, or "" when none is present.
func ExtractAmount(text string) string {
	m := amountRegex.FindString(text)
	return strings.TrimSpace(m)
}
