// Package matcher binds each screenshot to at most one hand. Identity
// matches (hand ID, filename) are tried first and score 100 outright; a
// weighted scored fallback covers everything else. Every candidate, identity
// or scored, still has to clear the three acceptance gates before it is
// accepted — a hand ID match on a screenshot with the wrong player count is
// still rejected.
package matcher

import (
	"log/slog"
	"sort"
	"strings"

	"github.com/riverbend/handmask/internal/config"
	"github.com/riverbend/handmask/internal/handmodel"
)

// Gate names used in Rejection.Gate, for log correlation.
const (
	GatePlayerCount    = "player_count"
	GateHeroStack      = "hero_stack"
	GateStackAlignment = "stack_alignment"
	GateNoCandidate    = "no_candidate"
)

// Rejection records why a candidate screenshot/hand pairing did not become a
// HandMatch.
type Rejection struct {
	HandID       string
	ScreenshotID string
	Source       handmodel.MatchSource
	Gate         string
	Reason       string
}

// scoreWeights, summing to 100 per the documented criteria table.
const (
	weightHeroCards    = 40.0
	weightBoardCards   = 30.0
	weightHeroSeatPos  = 15.0
	weightTimestamp    = 10.0
	weightPlayerOverlap = 3.0
	weightHeroStack    = 2.0
)

const timestampWindowSeconds = 60.0

// Match binds screenshots to hands. Screenshots are walked in sorted
// ScreenshotID order so that re-running over the same input set is
// idempotent regardless of OCR completion order.
func Match(hands []handmodel.Hand, screenshots []handmodel.Screenshot, cfg config.Config) ([]handmodel.HandMatch, []Rejection) {
	sorted := make([]handmodel.Screenshot, len(screenshots))
	copy(sorted, screenshots)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].ScreenshotID < sorted[j].ScreenshotID })

	handByID := make(map[string]int, len(hands)) // normalized hand ID -> index
	for i, h := range hands {
		handByID[normalizeHandID(h.HandID, cfg.HandIDPrefixStripSet)] = i
	}

	matchedHand := make(map[int]bool, len(hands))
	var matches []handmodel.HandMatch
	var rejections []Rejection

	for _, shot := range sorted {
		handIdx, source, ok := identifyCandidate(shot, hands, handByID, cfg)
		if !ok {
			handIdx, ok = scoredCandidate(shot, hands, matchedHand, cfg)
			source = handmodel.MatchSourceScored
		}
		if !ok {
			continue
		}
		if matchedHand[handIdx] {
			rejections = append(rejections, Rejection{
				HandID: hands[handIdx].HandID, ScreenshotID: shot.ScreenshotID,
				Source: source, Gate: GateNoCandidate, Reason: "hand already has a matched screenshot",
			})
			continue
		}

		hand := hands[handIdx]
		if gate, reason, passed := AcceptanceGates(hand, shot, cfg); !passed {
			slog.Warn("matcher: candidate rejected", "hand", hand.HandID, "screenshot", shot.ScreenshotID, "gate", gate, "reason", reason)
			rejections = append(rejections, Rejection{HandID: hand.HandID, ScreenshotID: shot.ScreenshotID, Source: source, Gate: gate, Reason: reason})
			continue
		}

		score := 100.0
		if source == handmodel.MatchSourceScored {
			score = scoreCandidate(hand, shot)
		}
		matchedHand[handIdx] = true
		matches = append(matches, handmodel.HandMatch{
			HandID: hand.HandID, ScreenshotID: shot.ScreenshotID, Source: source, Score: score,
		})
	}

	return matches, rejections
}

func identifyCandidate(shot handmodel.Screenshot, hands []handmodel.Hand, handByID map[string]int, cfg config.Config) (int, handmodel.MatchSource, bool) {
	if shot.OCR1 != nil && shot.OCR1.HandID != "" {
		norm := normalizeHandID(shot.OCR1.HandID, cfg.HandIDPrefixStripSet)
		if idx, ok := handByID[norm]; ok {
			return idx, handmodel.MatchSourceHandID, true
		}
	}
	for i, h := range hands {
		norm := normalizeHandID(h.HandID, cfg.HandIDPrefixStripSet)
		if strings.Contains(shot.ScreenshotID, h.HandID) || strings.Contains(shot.ScreenshotID, norm) {
			return i, handmodel.MatchSourceFilename, true
		}
	}
	return 0, "", false
}

func scoredCandidate(shot handmodel.Screenshot, hands []handmodel.Hand, matchedHand map[int]bool, cfg config.Config) (int, bool) {
	best := -1
	bestScore := -1.0
	for i, h := range hands {
		if matchedHand[i] {
			continue
		}
		s := scoreCandidate(h, shot)
		if s >= cfg.ScoredMatchThreshold && s > bestScore {
			best = i
			bestScore = s
		}
	}
	return best, best >= 0
}

func scoreCandidate(hand handmodel.Hand, shot handmodel.Screenshot) float64 {
	if shot.OCR1 == nil {
		return 0
	}
	score := 0.0
	score += weightHeroCards * cardSetMatch(hand.HeroCards, shot.OCR1.HeroCards)
	score += weightBoardCards * boardPrefixMatch(hand.BoardCards, shot.OCR1.BoardCards)
	score += weightHeroSeatPos * heroSeatConsistency(hand, shot)
	score += weightTimestamp * timestampProximity(hand, shot)
	score += weightPlayerOverlap * 0 // player names are unknown pre-match; see DESIGN.md
	score += weightHeroStack * heroStackProximity(hand, shot)
	return score
}

func cardSetMatch(handCards, shotCards []string) float64 {
	if len(handCards) == 0 || len(shotCards) == 0 || len(handCards) != len(shotCards) {
		return 0
	}
	seen := make(map[string]bool, len(handCards))
	for _, c := range handCards {
		seen[c] = true
	}
	for _, c := range shotCards {
		if !seen[c] {
			return 0
		}
	}
	return 1
}

func boardPrefixMatch(handBoard, shotBoard []string) float64 {
	if len(shotBoard) == 0 {
		return 0
	}
	if len(shotBoard) > len(handBoard) {
		return 0
	}
	for i, c := range shotBoard {
		if handBoard[i] != c {
			return 0
		}
	}
	return 1
}

func heroSeatConsistency(hand handmodel.Hand, shot handmodel.Screenshot) float64 {
	if shot.OCR2 == nil || len(shot.OCR2.Players) == 0 {
		if _, ok := hand.HeroSeat(); ok {
			return 0.5 // hero exists in the hand, but we have no visual layout yet to compare
		}
		return 0
	}
	_, ok := hand.HeroSeat()
	if !ok {
		return 0
	}
	return 1
}

func timestampProximity(hand handmodel.Hand, shot handmodel.Screenshot) float64 {
	if hand.Timestamp.IsZero() || shot.CapturedAt.IsZero() {
		return 0
	}
	delta := hand.Timestamp.Sub(shot.CapturedAt).Seconds()
	if delta < 0 {
		delta = -delta
	}
	if delta > timestampWindowSeconds {
		return 0
	}
	return 1 - delta/timestampWindowSeconds
}

func heroStackProximity(hand handmodel.Hand, shot handmodel.Screenshot) float64 {
	heroSeat, ok := hand.HeroSeat()
	if !ok || shot.OCR1 == nil || shot.OCR1.HeroStack == 0 || heroSeat.StartingStack == 0 {
		return 0
	}
	if withinRatio(float64(shot.OCR1.HeroStack), float64(heroSeat.StartingStack), 0.25) {
		return 1
	}
	return 0
}

func withinRatio(a, b, ratio float64) bool {
	if b == 0 {
		return false
	}
	diff := a - b
	if diff < 0 {
		diff = -diff
	}
	return diff/b <= ratio
}

// AcceptanceGates applies the three checks that every candidate, including
// identity matches, must clear. The player-count and stack checks operate
// on phase-2 OCR data, which does not exist yet at initial match time —
// Match calls this once per candidate and a nil OCR2 passes provisionally;
// the orchestrator calls it again for every provisional match once phase 2
// completes, to pull back anything that now fails a gate.
func AcceptanceGates(hand handmodel.Hand, shot handmodel.Screenshot, cfg config.Config) (gate, reason string, passed bool) {
	if shot.OCR2 == nil {
		return "", "", true
	}

	if len(shot.OCR2.Players) != len(hand.Seats) {
		return GatePlayerCount, "screenshot player count does not equal hand seat count", false
	}

	heroSeat, ok := hand.HeroSeat()
	if ok && len(shot.OCR2.Stacks) > 0 {
		heroStack := shot.OCR2.Stacks[0] // position 0 is always Hero
		if heroStack != 0 && heroSeat.StartingStack != 0 && !withinRatio(float64(heroStack), float64(heroSeat.StartingStack), cfg.StackToleranceHero) {
			return GateHeroStack, "hero stack outside tolerance", false
		}
	}

	if !stackAlignmentOK(hand, shot, cfg.StackToleranceGeneral, cfg.StackAlignmentRatio) {
		return GateStackAlignment, "insufficient fraction of screenshot stacks align with hand seats", false
	}

	return "", "", true
}

func stackAlignmentOK(hand handmodel.Hand, shot handmodel.Screenshot, tolerance, requiredRatio float64) bool {
	if len(shot.OCR2.Stacks) == 0 {
		return true
	}
	aligned := 0
	for _, stack := range shot.OCR2.Stacks {
		if stack == 0 {
			continue
		}
		for _, seat := range hand.Seats {
			if seat.StartingStack != 0 && withinRatio(float64(stack), float64(seat.StartingStack), tolerance) {
				aligned++
				break
			}
		}
	}
	return float64(aligned)/float64(len(shot.OCR2.Stacks)) >= requiredRatio
}

func normalizeHandID(handID string, prefixes []string) string {
	return handmodel.NormalizedHandID(handID, prefixes)
}
