package handparse

import (
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/riverbend/handmask/internal/handmodel"
)

// Anomaly records a hand-shaped block that could not be parsed. The file as
// a whole is not failed for this; a file only fails when nothing in it
// parses at all.
type Anomaly struct {
	BlockIndex int
	Reason     string
}

// ParseResult is the outcome of parsing one hand-history file.
type ParseResult struct {
	Hands     []handmodel.Hand
	Anomalies []Anomaly
}

// Parse splits input into hand blocks (delimited by blank lines, each
// starting with the vendor header) and parses each independently. It fails
// the whole file with ErrMalformed only if not a single hand ID or Hero seat
// was found anywhere in the input.
func Parse(input string) (ParseResult, error) {
	blocks := splitBlocks(input)

	var result ParseResult
	anyHandID := false
	anyHero := false

	for i, block := range blocks {
		if strings.TrimSpace(block) == "" {
			continue
		}
		hand, ok, reason := parseBlock(block)
		if !ok {
			if reason != "" {
				result.Anomalies = append(result.Anomalies, Anomaly{BlockIndex: i, Reason: reason})
				slog.Warn("handparse: skipping malformed hand", "block", i, "reason", reason)
			}
			continue
		}
		anyHandID = true
		if _, hasHero := hand.HeroSeat(); hasHero {
			anyHero = true
		}
		result.Hands = append(result.Hands, hand)
	}

	if !anyHandID || !anyHero {
		return ParseResult{}, ErrMalformed
	}
	return result, nil
}

// splitBlocks divides the input into candidate hand blocks on blank lines.
// Leading newlines left on a block by a run of several blank lines are
// stripped so the header stays on the block's first line, and blocks that
// are whitespace only are dropped.
func splitBlocks(input string) []string {
	normalized := strings.ReplaceAll(input, "\r\n", "\n")
	rawBlocks := strings.Split(normalized, "\n\n")
	blocks := make([]string, 0, len(rawBlocks))
	for _, b := range rawBlocks {
		b = strings.TrimLeft(b, "\n")
		if strings.TrimSpace(b) != "" {
			blocks = append(blocks, b)
		}
	}
	return blocks
}

// parseBlock parses a single hand block. ok is false if the block could not
// be parsed as a hand; reason is empty when the block was simply blank
// (nothing to warn about).
func parseBlock(block string) (handmodel.Hand, bool, string) {
	lines := strings.Split(block, "\n")
	if len(lines) == 0 {
		return handmodel.Hand{}, false, ""
	}

	m := reHeader.FindStringSubmatch(lines[0])
	if m == nil {
		return handmodel.Hand{}, false, "missing or unrecognized header line"
	}
	idMatch := reHandID.FindStringSubmatch(lines[0])
	if idMatch == nil {
		return handmodel.Hand{}, false, "missing hand ID in header"
	}

	ts, err := time.Parse(timeLayout, m[5])
	if err != nil {
		return handmodel.Hand{}, false, "unparseable timestamp: " + err.Error()
	}

	hand := handmodel.Hand{
		HandID:    idMatch[1],
		Timestamp: ts,
		RawText:   block,
	}
	sb, _ := strconv.ParseFloat(m[2], 64)
	bb, _ := strconv.ParseFloat(m[3], 64)
	hand.Stakes = handmodel.Stakes{
		SmallBlind: int(sb),
		BigBlind:   int(bb),
		Currency:   m[4],
	}

	buttonFromSummary := 0
	sbPostSeat := 0
	bbPostSeat := 0

	for _, line := range lines[1:] {
		line = strings.TrimRight(line, "\r")

		if tm := reTable.FindStringSubmatch(line); tm != nil {
			hand.TableName = tm[1]
			if tm[2] != "" {
				if n, err := strconv.Atoi(tm[2]); err == nil {
					buttonFromSummary = n
				}
			}
			continue
		}

		if sm := reSeat.FindStringSubmatch(line); sm != nil {
			seatNum, _ := strconv.Atoi(sm[1])
			stack, _ := strconv.ParseFloat(sm[3], 64)
			hand.Seats = append(hand.Seats, handmodel.Seat{
				SeatNumber:    seatNum,
				AnonID:        sm[2],
				StartingStack: int(stack),
			})
			continue
		}

		if reSBPost.MatchString(line) {
			anon := reSBPost.FindStringSubmatch(line)[1]
			if seat, ok := seatForAnon(hand.Seats, anon); ok {
				sbPostSeat = seat
			}
			continue
		}

		if reBBPost.MatchString(line) {
			anon := reBBPost.FindStringSubmatch(line)[1]
			if seat, ok := seatForAnon(hand.Seats, anon); ok {
				bbPostSeat = seat
			}
			continue
		}

		if dm := reDealt.FindStringSubmatch(line); dm != nil {
			if dm[1] == "Hero" {
				hand.HeroCards = parseCardTokens(dm[2])
			}
			continue
		}

		if sm := reStreet.FindStringSubmatch(line); sm != nil {
			hand.BoardCards = append(hand.BoardCards, parseCardTokens(sm[1])...)
			continue
		}

		// Summary-line seat position markers double as a button fallback
		// when the header's "Seat #N is the button" marker was absent.
		if strings.Contains(line, "(button)") {
			if sm := reSeat.FindStringSubmatch(line); sm == nil {
				if n, ok := summarySeatNumber(line); ok {
					buttonFromSummary = n
				}
			}
		}
	}

	if len(hand.Seats) == 0 {
		return handmodel.Hand{}, false, "no seats found"
	}
	if _, ok := hand.HeroSeat(); !ok {
		return handmodel.Hand{}, false, "no Hero seat found"
	}

	hand.Roles = handmodel.Roles{
		ButtonSeat:     buttonFromSummary,
		SmallBlindSeat: sbPostSeat,
		BigBlindSeat:   bbPostSeat,
	}
	// Three-handed play: the button may also post the small blind. The
	// parser records both roles on the same seat when the text says so,
	// rather than preferring one over the other.

	return hand, true, ""
}

// parseCardTokens splits a space-separated card list like "Ah Kd" into
// individual tokens.
func parseCardTokens(s string) []string {
	return strings.Fields(s)
}

func seatForAnon(seats []handmodel.Seat, anon string) (int, bool) {
	for _, s := range seats {
		if s.AnonID == anon {
			return s.SeatNumber, true
		}
	}
	return 0, false
}

// summarySeatNumber extracts the leading seat number from a summary line
// like "Seat 3: Hero (button) collected ($13)".
func summarySeatNumber(line string) (int, bool) {
	const prefix = "Seat "
	if !strings.HasPrefix(line, prefix) {
		return 0, false
	}
	rest := line[len(prefix):]
	end := strings.IndexByte(rest, ':')
	if end < 0 {
		return 0, false
	}
	n, err := strconv.Atoi(strings.TrimSpace(rest[:end]))
	if err != nil {
		return 0, false
	}
	return n, true
}
