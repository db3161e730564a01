// CLAUDE:SUMMARY Local-authority name normalisation (lowercase + strip accents) used for tolerant filtering.
package geocode

import (
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// NormalizeName lowercases, trims and strips accents (e.g. "Ynys Môn " -> "ynys mon").
func NormalizeName(s string) string {
	// Chain is stateful: one per call.
	stripAccents := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	result, _, _ := transform.String(stripAccents, strings.ToLower(strings.TrimSpace(s)))
	return result
}
