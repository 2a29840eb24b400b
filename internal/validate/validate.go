// Package validate checks a rewritten hand-history file against its
// original text for the invariants that rewriting must never break.
package validate

import (
	"fmt"
	"regexp"
	"strings"

	"go.uber.org/multierr"

	"github.com/riverbend/handmask/internal/rewrite"
)

// Check names identify one validator check each, for log correlation.
const (
	CheckHeroMentionCount  = "hero_mention_count"
	CheckLineCountDrift    = "line_count_drift"
	CheckHandIDUnchanged   = "hand_id_unchanged"
	CheckTimestampUnchanged = "timestamp_unchanged"
	CheckNoDoubledCurrency = "no_doubled_currency"
	CheckSummaryPresent    = "summary_present"
	CheckTableNameUnchanged = "table_name_unchanged"
	CheckSeatCountUnchanged = "seat_count_unchanged"
	CheckChipTokenCountUnchanged = "chip_token_count_unchanged"
	CheckNoResidualAnonIDs = "no_residual_anon_ids"
)

// CheckResult is one check's outcome.
type CheckResult struct {
	Name     string
	Passed   bool
	Critical bool
	Detail   string
}

// Report is the outcome of validating one rewritten file. Clean means both
// critical checks passed: failure of either the Hero-mention-count check or
// the residual-anon-ID check means the file is not clean. The other eight
// checks are reported for diagnostics and do not affect Clean.
type Report struct {
	Checks      []CheckResult
	Clean       bool
	Results     map[string]bool
	Diagnostics error // every failed check, aggregated; nil if all passed
}

var (
	handIDLine        = regexp.MustCompile(`(?m)^(RC|OM|TM|HD|SG|MT|TT)\d+:`)
	timestampRe       = regexp.MustCompile(`\d{4}/\d{2}/\d{2} \d{2}:\d{2}:\d{2} ET`)
	tableNameRe       = regexp.MustCompile(`(?m)^Table '(.+?)'`)
	chipTokenRe       = regexp.MustCompile(`\$[\d,]+(?:\.\d+)?`)
	seatLineRe        = regexp.MustCompile(`(?m)^Seat \d+: `)
	summaryLineRe     = regexp.MustCompile(`(?m)^\*\*\* SUMMARY \*\*\*`)
	doubledCurrencyRe = regexp.MustCompile(`\${2,}`)
)

// Validate compares original (pre-rewrite) text against rewritten output
// text and runs all ten checks. heroRealName is the name Hero was rewritten
// to, or "" if Hero was never in the mapping (the literal token "Hero" is
// then expected to still be present unchanged).
func Validate(original, rewritten, heroRealName string) Report {
	var checks []CheckResult

	expectedHeroToken := "Hero"
	if heroRealName != "" {
		expectedHeroToken = heroRealName
	}
	heroBefore := strings.Count(original, "Hero")
	heroAfter := strings.Count(rewritten, expectedHeroToken)
	checks = append(checks, CheckResult{
		Name: CheckHeroMentionCount, Critical: true,
		Passed: heroBefore == heroAfter,
		Detail: "every Hero mention must map 1:1 onto the resolved token in the output",
	})

	lineDrift := abs(len(strings.Split(original, "\n")) - len(strings.Split(rewritten, "\n")))
	checks = append(checks, CheckResult{
		Name: CheckLineCountDrift, Passed: lineDrift <= 2,
		Detail: "line count must not drift by more than 2",
	})

	checks = append(checks, CheckResult{
		Name: CheckHandIDUnchanged, Passed: firstMatch(handIDLine, original) == firstMatch(handIDLine, rewritten),
		Detail: "hand ID header must be byte-identical",
	})

	checks = append(checks, CheckResult{
		Name: CheckTimestampUnchanged, Passed: firstMatch(timestampRe, original) == firstMatch(timestampRe, rewritten),
		Detail: "timestamp must be byte-identical",
	})

	checks = append(checks, CheckResult{
		Name: CheckNoDoubledCurrency, Passed: !doubledCurrencyRe.MatchString(rewritten),
		Detail: "no doubled currency symbol introduced by rewriting",
	})

	checks = append(checks, CheckResult{
		Name: CheckSummaryPresent, Passed: summaryLineRe.MatchString(rewritten),
		Detail: "summary section must be present",
	})

	checks = append(checks, CheckResult{
		Name: CheckTableNameUnchanged, Passed: firstMatch(tableNameRe, original) == firstMatch(tableNameRe, rewritten),
		Detail: "table name token must be unchanged",
	})

	checks = append(checks, CheckResult{
		Name: CheckSeatCountUnchanged, Passed: len(seatLineRe.FindAllString(original, -1)) == len(seatLineRe.FindAllString(rewritten, -1)),
		Detail: "seat count must be unchanged",
	})

	checks = append(checks, CheckResult{
		Name: CheckChipTokenCountUnchanged, Passed: len(chipTokenRe.FindAllString(original, -1)) == len(chipTokenRe.FindAllString(rewritten, -1)),
		Detail: "chip-amount token count must be unchanged",
	})

	residuals := rewrite.ResidualAnonIDs(rewritten)
	checks = append(checks, CheckResult{
		Name: CheckNoResidualAnonIDs, Critical: true, Passed: len(residuals) == 0,
		Detail: "no anonymized ID may remain in player-position context",
	})

	results := make(map[string]bool, len(checks))
	clean := true
	var diagnostics error
	for _, c := range checks {
		results[c.Name] = c.Passed
		if c.Critical && !c.Passed {
			clean = false
		}
		if !c.Passed {
			diagnostics = multierr.Append(diagnostics, fmt.Errorf("%s: %s", c.Name, c.Detail))
		}
	}

	return Report{Checks: checks, Clean: clean, Results: results, Diagnostics: diagnostics}
}

func firstMatch(re *regexp.Regexp, text string) string {
	return re.FindString(text)
}

func abs(n int) int {
	if n < 0 {
		return -n
	}
	return n
}
