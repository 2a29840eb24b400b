package mapper

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/riverbend/handmask/internal/handmodel"
	"github.com/riverbend/handmask/internal/tablekey"
)

func threeHandedHand() handmodel.Hand {
	return handmodel.Hand{
		HandID:    "RC1001",
		TableName: "Table  One",
		Seats: []handmodel.Seat{
			{SeatNumber: 1, AnonID: "e3efcaed"},
			{SeatNumber: 2, AnonID: "5641b4a0"},
			{SeatNumber: 3, AnonID: handmodel.HeroID},
		},
		Roles: handmodel.Roles{ButtonSeat: 3, SmallBlindSeat: 1, BigBlindSeat: 2},
	}
}

func TestMapHand_RoleBasedAllThreeKnown(t *testing.T) {
	hand := threeHandedHand()
	ocr2 := handmodel.OCR2Result{
		Players:          []string{"TuichAAreko", "v1[nn]1", "Gyodong22"},
		DealerPlayer:     "TuichAAreko",
		SmallBlindPlayer: "Gyodong22",
		BigBlindPlayer:   "v1[nn]1",
	}

	mapping, roles, ok := MapHand(hand, ocr2)
	require.True(t, ok)
	require.Equal(t, 3, roles)
	require.Equal(t, "TuichAAreko", mapping[handmodel.HeroID])
	require.Equal(t, "Gyodong22", mapping["e3efcaed"])
	require.Equal(t, "v1[nn]1", mapping["5641b4a0"])
}

func TestMapHand_DealerOnlyDerivesClockwise(t *testing.T) {
	hand := threeHandedHand()
	ocr2 := handmodel.OCR2Result{
		Players:      []string{"TuichAAreko", "v1[nn]1", "Gyodong22"},
		DealerPlayer: "TuichAAreko", // index 0
	}

	mapping, _, ok := MapHand(hand, ocr2)
	require.True(t, ok)
	// dealer=idx0 -> ButtonSeat 3 (Hero); SB=idx1 -> SmallBlindSeat 1 (e3efcaed);
	// BB=idx2 -> BigBlindSeat 2 (5641b4a0).
	require.Equal(t, "TuichAAreko", mapping[handmodel.HeroID])
	require.Equal(t, "v1[nn]1", mapping["e3efcaed"])
	require.Equal(t, "Gyodong22", mapping["5641b4a0"])
}

func TestMapHand_FallsBackToRotationWithOneRole(t *testing.T) {
	hand := threeHandedHand()
	// Only dealer known AND dealer name absent from Players, so derivation
	// cannot locate an index -> falls through to rotation.
	ocr2 := handmodel.OCR2Result{
		Players:      []string{"TuichAAreko", "v1[nn]1", "Gyodong22"},
		DealerPlayer: "SomeoneNotVisible",
	}

	mapping, _, ok := MapHand(hand, ocr2)
	require.True(t, ok)
	require.Equal(t, "TuichAAreko", mapping[handmodel.HeroID]) // position 0 = Hero
	require.Equal(t, "Gyodong22", mapping["e3efcaed"])          // seat 1 = hero-2 wrap
	require.Equal(t, "v1[nn]1", mapping["5641b4a0"])            // seat 2 = hero-1 wrap
}

func TestMapHand_DuplicateNameDiscardsMapping(t *testing.T) {
	hand := threeHandedHand()
	ocr2 := handmodel.OCR2Result{
		Players:          []string{"Same", "Same", "Same"},
		DealerPlayer:     "Same",
		SmallBlindPlayer: "Same",
		BigBlindPlayer:   "Same",
	}

	mapping, _, ok := MapHand(hand, ocr2)
	require.False(t, ok)
	require.Nil(t, mapping)
}

func TestAggregate_UnionsAcrossHandsAtSameTable(t *testing.T) {
	results := []HandMappingResult{
		{TableName: "Table One", ScreenshotID: "a", Mapping: map[string]string{handmodel.HeroID: "Alice"}, RolesPopulated: 3},
		{TableName: "Table One", ScreenshotID: "b", Mapping: map[string]string{"e3efcaed": "Bob"}, RolesPopulated: 2},
	}
	out, conflicts := Aggregate(results)
	require.Empty(t, conflicts)
	key := tablekey.Normalize("Table One")
	require.Equal(t, "Alice", out[key].Names[handmodel.HeroID])
	require.Equal(t, "Bob", out[key].Names["e3efcaed"])
}

func TestAggregate_ConflictPrefersMoreRolesPopulated(t *testing.T) {
	results := []HandMappingResult{
		{TableName: "Table One", ScreenshotID: "a", Mapping: map[string]string{handmodel.HeroID: "Weak"}, RolesPopulated: 1},
		{TableName: "Table One", ScreenshotID: "b", Mapping: map[string]string{handmodel.HeroID: "Strong"}, RolesPopulated: 3},
	}
	out, conflicts := Aggregate(results)
	require.Len(t, conflicts, 1)
	key := tablekey.Normalize("Table One")
	require.Equal(t, "Strong", out[key].Names[handmodel.HeroID])
}

func TestAggregate_ConflictTieBreaksFirstSeen(t *testing.T) {
	results := []HandMappingResult{
		{TableName: "Table One", ScreenshotID: "a", Mapping: map[string]string{handmodel.HeroID: "First"}, RolesPopulated: 2},
		{TableName: "Table One", ScreenshotID: "b", Mapping: map[string]string{handmodel.HeroID: "Second"}, RolesPopulated: 2},
	}
	out, conflicts := Aggregate(results)
	require.Len(t, conflicts, 1)
	key := tablekey.Normalize("Table One")
	require.Equal(t, "First", out[key].Names[handmodel.HeroID])
}

// TestAggregate_NormalizationKeyEqualityAcrossGroupAndLookup guards the
// defect class where a hand is grouped under one table-name spelling but a
// caller looks it up under a cosmetically different one.
func TestAggregate_NormalizationKeyEqualityAcrossGroupAndLookup(t *testing.T) {
	results := []HandMappingResult{
		{TableName: "  Ｔａｂｌｅ　Ｏｎｅ  ", ScreenshotID: "a", Mapping: map[string]string{handmodel.HeroID: "Alice"}},
	}
	out, _ := Aggregate(results)

	groupKey := tablekey.Normalize("  Ｔａｂｌｅ　Ｏｎｅ  ")
	lookupKey := tablekey.Normalize("table one")
	require.Equal(t, groupKey, lookupKey)
	require.Contains(t, out, lookupKey)
	require.Equal(t, "Alice", out[lookupKey].Names[handmodel.HeroID])
}
