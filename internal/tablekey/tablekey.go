// Package tablekey provides the single table-name normalization function
// shared by the mapper's group-by and look-up sites. Client-submitted table
// names carry cosmetic full-width/half-width and casing variation that must
// collapse to the same key on both the aggregation side and the lookup
// side, or two table views of the same game silently diverge — this
// package exists so there is exactly one normalization path to call from
// either site.
package tablekey

import (
	"strings"

	"golang.org/x/text/unicode/norm"
	"golang.org/x/text/width"
)

// unknownVariants collapse to a single synthetic bucket. The operator's
// client emits several spellings for a table with no parsed name.
var unknownVariants = map[string]struct{}{
	"unknown":       {},
	"unnamed":       {},
	"unnamed table": {},
	"":              {},
	"n/a":           {},
}

// unknownBucket is the canonical key every unknown-variant maps to.
const unknownBucket = "\x00unknown"

// Normalize folds width (fullwidth/halfwidth), applies NFKC normalization,
// trims surrounding whitespace, lower-cases, and collapses known synthetic
// "unknown table" spellings into a single bucket. Both the mapper's
// aggregation group-by key and its later look-up key must run through this
// function so that a hand grouped under one spelling is found under the
// same spelling.
func Normalize(tableName string) string {
	folded := width.Fold.String(tableName)
	folded = norm.NFKC.String(folded)
	trimmed := strings.TrimSpace(folded)
	lower := strings.ToLower(trimmed)
	lower = strings.Join(strings.Fields(lower), " ")
	if _, ok := unknownVariants[lower]; ok {
		return unknownBucket
	}
	return lower
}
