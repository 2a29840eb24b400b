// Package rewrite replaces anonymized player identifiers in hand-history
// text with the real screen names resolved by the mapper, and detects any
// identifier left behind afterward.
package rewrite

import (
	"fmt"
	"regexp"
)

// rule is one ordered substitution. pattern must contain exactly the
// literal "%s" placeholder where the escaped anonId is substituted in, and
// two capturing groups bracketing it — group 1 is everything kept before
// the anonId, group 2 everything kept after. Replacement always uses the
// explicit ${1}/${2} form; a bare $1 followed by a name that starts with a
// digit would otherwise be parsed as part of a longer (nonexistent) group
// name and silently swallow or corrupt the output.
type rule struct {
	name    string
	pattern string
}

var rules = []rule{
	{"seat_declaration", `(Seat \d+: )%s( \(\$[\d,.]+ in chips\))`},
	{"small_blind_post", `(?m)(^)%s(: posts small blind \$[\d,.]+)`},
	{"big_blind_post", `(?m)(^)%s(: posts big blind \$[\d,.]+)`},
	{"action_all_in", `(?m)(^)%s(: (?:bets|calls|raises) \$[\d,.]+(?: to \$[\d,.]+)? and is all-in)`},
	{"action_with_amount", `(?m)(^)%s(: (?:bets|calls|raises) \$[\d,.]+(?: to \$[\d,.]+)?)`},
	{"action_without_amount", `(?m)(^)%s(: (?:folds|checks))`},
	{"dealt_no_cards", `(?m)(Dealt to )%s($)`},
	{"dealt_with_cards", `(Dealt to )%s( \[.+?\])`},
	{"pot_collection", `(?m)(^)%s( collected \$[\d,.]+ from pot)`},
	{"showdown_show", `(?m)(^)%s(: shows \[.+?\])`},
	{"muck", `(?m)(^)%s(: mucks hand)`},
	{"does_not_show", `(?m)(^)%s(: doesn't show hand)`},
	{"summary_line", `(?m)(Seat \d+: )%s( \(.+?\))$`},
	{"uncalled_bet_return", `(Uncalled bet \(\$[\d,.]+\) returned to )%s()`},
}

// Rewrite applies every rule, for every anonId in mapping, to handText in
// order, returning the rewritten text. Rules are applied most-specific
// first so a general "<anonId>:" prefix rule never swallows a token that a
// more specific rule should have claimed.
func Rewrite(handText string, mapping map[string]string) string {
	out := handText
	for _, r := range rules {
		for anonID, realName := range mapping {
			re := regexp.MustCompile(fmt.Sprintf(r.pattern, regexp.QuoteMeta(anonID)))
			out = re.ReplaceAllString(out, "${1}"+realName+"${2}")
		}
	}
	return out
}

var (
	residualLineStart = regexp.MustCompile(`(?m)^([a-f0-9]{6,8}):`)
	residualAfterSeat = regexp.MustCompile(`Seat \d+: ([a-f0-9]{6,8})`)
)

// ResidualAnonIDs scans output text for anon-ID-shaped tokens still sitting
// in a player-position context: at the start of a line followed by a
// colon, or immediately after "Seat N: ". Restricting to those two
// contexts keeps timestamps, card pairs, and hand IDs from being
// mis-flagged as unresolved identifiers.
func ResidualAnonIDs(out string) []string {
	seen := make(map[string]bool)
	var result []string
	for _, re := range []*regexp.Regexp{residualLineStart, residualAfterSeat} {
		for _, m := range re.FindAllStringSubmatch(out, -1) {
			id := m[1]
			if !seen[id] {
				seen[id] = true
				result = append(result, id)
			}
		}
	}
	return result
}
