// Package mapper derives anonId -> realName mappings for a matched hand and
// aggregates them across every hand grouped by table.
package mapper

import (
	"log/slog"
	"sort"

	"github.com/riverbend/handmask/internal/handmodel"
	"github.com/riverbend/handmask/internal/tablekey"
)

// MapHand derives the per-hand anonId->realName mapping for one matched
// hand/screenshot pair. Role-based mapping is tried first; rotation is
// used when fewer than two of the three roles are known, or when none of
// the known roles lands on a seat of the hand. Where both strategies name
// an anon ID differently, the role-based name is kept and a WARN names
// both. Returns ok=false if neither strategy produces a usable mapping, or
// if a duplicate-name guard discards it.
func MapHand(hand handmodel.Hand, ocr2 handmodel.OCR2Result) (mapping map[string]string, rolesPopulated int, ok bool) {
	rolesPopulated = ocr2.RolesPopulated()

	if m, found := roleBasedMapping(hand, ocr2); found {
		if hasDuplicateNames(m) {
			slog.Error("mapper: duplicate real name in role-based mapping, discarding", "hand", hand.HandID)
			return nil, rolesPopulated, false
		}
		rot := rotationMapping(hand, ocr2)
		for anonID, name := range m {
			if alt, found := rot[anonID]; found && alt != name {
				slog.Warn("mapper: role-based and rotation mappings disagree, keeping role-based",
					"hand", hand.HandID, "anonId", anonID, "role_based", name, "rotation", alt)
			}
		}
		return m, rolesPopulated, true
	}

	m := rotationMapping(hand, ocr2)
	if len(m) == 0 {
		return nil, rolesPopulated, false
	}
	if hasDuplicateNames(m) {
		slog.Error("mapper: duplicate real name in rotation mapping, discarding", "hand", hand.HandID)
		return nil, rolesPopulated, false
	}
	return m, rolesPopulated, true
}

// roleBasedMapping requires at least two of the three role fields known. If
// exactly the dealer is known, small/big blind are derived clockwise over
// the visual player ordering before the two-of-three check.
func roleBasedMapping(hand handmodel.Hand, ocr2 handmodel.OCR2Result) (map[string]string, bool) {
	dealer, sb, bb := ocr2.DealerPlayer, ocr2.SmallBlindPlayer, ocr2.BigBlindPlayer
	populated := ocr2.RolesPopulated()

	if populated == 1 && dealer != "" && len(ocr2.Players) > 0 {
		if idx := indexOf(ocr2.Players, dealer); idx >= 0 {
			n := len(ocr2.Players)
			sb = ocr2.Players[(idx+1)%n]
			bb = ocr2.Players[(idx+2)%n]
			populated = 3
		}
	}
	if populated < 2 {
		return nil, false
	}

	mapping := make(map[string]string, 3)
	if dealer != "" {
		if seat, found := seatBySeatNumber(hand.Seats, hand.Roles.ButtonSeat); found {
			mapping[seat.AnonID] = dealer
		}
	}
	if sb != "" {
		if seat, found := seatBySeatNumber(hand.Seats, hand.Roles.SmallBlindSeat); found {
			mapping[seat.AnonID] = sb
		}
	}
	if bb != "" {
		if seat, found := seatBySeatNumber(hand.Seats, hand.Roles.BigBlindSeat); found {
			mapping[seat.AnonID] = bb
		}
	}
	if len(mapping) == 0 {
		return nil, false
	}
	return mapping, true
}

// rotationMapping locates Hero's real seat and walks the visual player
// ordering (position 0 = Hero, counter-clockwise from there) back onto real
// seat numbers, extracting a name for every visible player regardless of
// whether they hold a role in this hand.
func rotationMapping(hand handmodel.Hand, ocr2 handmodel.OCR2Result) map[string]string {
	heroSeat, ok := hand.HeroSeat()
	n := len(hand.Seats)
	if !ok || n == 0 {
		return nil
	}

	mapping := make(map[string]string, n)
	for v, name := range ocr2.Players {
		if name == "" {
			continue
		}
		realSeatNum := wrapSeat(heroSeat.SeatNumber, v, n)
		if seat, found := seatBySeatNumber(hand.Seats, realSeatNum); found {
			mapping[seat.AnonID] = name
		}
	}
	return mapping
}

// wrapSeat computes the real 1-based seat number at visual offset v
// (0-indexed, 0 = Hero) counter-clockwise from heroSeatNum, wrapping modulo
// n occupied seats.
func wrapSeat(heroSeatNum, v, n int) int {
	raw := heroSeatNum - v
	for raw < 1 {
		raw += n
	}
	for raw > n {
		raw -= n
	}
	return raw
}

func seatBySeatNumber(seats []handmodel.Seat, seatNumber int) (handmodel.Seat, bool) {
	if seatNumber == 0 {
		return handmodel.Seat{}, false
	}
	for _, s := range seats {
		if s.SeatNumber == seatNumber {
			return s, true
		}
	}
	return handmodel.Seat{}, false
}

func indexOf(names []string, target string) int {
	for i, n := range names {
		if n == target {
			return i
		}
	}
	return -1
}

func hasDuplicateNames(mapping map[string]string) bool {
	seen := make(map[string]bool, len(mapping))
	for _, name := range mapping {
		if seen[name] {
			return true
		}
		seen[name] = true
	}
	return false
}

// HandMappingResult is one hand's successfully derived mapping, ready for
// table-wide aggregation.
type HandMappingResult struct {
	TableName      string
	ScreenshotID   string // used only to break aggregation ties deterministically
	Mapping        map[string]string
	RolesPopulated int
}

// Aggregate unions per-hand mappings into one TableMapping per normalized
// table name. On a conflicting value for the same anonId, the mapping with
// more roles populated wins; ties are broken by first-seen order, where
// results are walked in ascending ScreenshotID order for determinism.
// tablekey.Normalize is the only normalization function used here, for both
// the grouping key and (by the caller, at lookup time) the matching key.
func Aggregate(results []HandMappingResult) (map[string]handmodel.TableMapping, []handmodel.MappingConflict) {
	sorted := make([]HandMappingResult, len(results))
	copy(sorted, results)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].ScreenshotID < sorted[j].ScreenshotID })

	type winner struct {
		name           string
		rolesPopulated int
	}

	displayName := make(map[string]string)      // normalized key -> first-seen display table name
	winners := make(map[string]map[string]winner) // normalized key -> anonId -> winner
	var conflicts []handmodel.MappingConflict

	for _, r := range sorted {
		key := tablekey.Normalize(r.TableName)
		if _, ok := displayName[key]; !ok {
			displayName[key] = r.TableName
		}
		table, ok := winners[key]
		if !ok {
			table = make(map[string]winner)
			winners[key] = table
		}
		for anonID, name := range r.Mapping {
			cur, exists := table[anonID]
			if !exists {
				table[anonID] = winner{name: name, rolesPopulated: r.RolesPopulated}
				continue
			}
			if cur.name == name {
				continue
			}
			if r.RolesPopulated > cur.rolesPopulated {
				slog.Warn("mapper: aggregation conflict, preferring more-roles-populated mapping",
					"table", displayName[key], "anonId", anonID, "kept", name, "discarded", cur.name)
				conflicts = append(conflicts, handmodel.MappingConflict{
					TableName: displayName[key], AnonID: anonID, Kept: name, Discarded: cur.name, Reason: "more_roles_populated",
				})
				table[anonID] = winner{name: name, rolesPopulated: r.RolesPopulated}
			} else {
				slog.Warn("mapper: aggregation conflict, keeping first-seen mapping",
					"table", displayName[key], "anonId", anonID, "kept", cur.name, "discarded", name)
				conflicts = append(conflicts, handmodel.MappingConflict{
					TableName: displayName[key], AnonID: anonID, Kept: cur.name, Discarded: name, Reason: "first_seen_tiebreak",
				})
			}
		}
	}

	out := make(map[string]handmodel.TableMapping, len(winners))
	for key, table := range winners {
		names := make(map[string]string, len(table))
		for anonID, w := range table {
			names[anonID] = w.name
		}
		out[key] = handmodel.TableMapping{TableName: displayName[key], Names: names}
	}
	return out, conflicts
}
