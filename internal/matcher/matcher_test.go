package matcher

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/riverbend/handmask/internal/config"
	"github.com/riverbend/handmask/internal/handmodel"
)

func testConfig() config.Config {
	return config.Default()
}

func TestMatch_IdentityByHandID(t *testing.T) {
	hand := handmodel.Hand{
		HandID: "RC1001",
		Seats: []handmodel.Seat{
			{SeatNumber: 1, AnonID: "e3efcaed", StartingStack: 200},
			{SeatNumber: 2, AnonID: "5641b4a0", StartingStack: 200},
			{SeatNumber: 3, AnonID: handmodel.HeroID, StartingStack: 200},
		},
	}
	shot := handmodel.Screenshot{
		ScreenshotID: "shot-1",
		OCR1:         &handmodel.OCR1Result{HandID: "RC1001"},
	}

	matches, rejections := Match([]handmodel.Hand{hand}, []handmodel.Screenshot{shot}, testConfig())
	require.Empty(t, rejections)
	require.Len(t, matches, 1)
	require.Equal(t, handmodel.MatchSourceHandID, matches[0].Source)
	require.Equal(t, 100.0, matches[0].Score)
}

func TestMatch_IdentityStripsPrefix(t *testing.T) {
	hand := handmodel.Hand{HandID: "RC1001", Seats: []handmodel.Seat{{SeatNumber: 1, AnonID: handmodel.HeroID}}}

	// A different prefix over the same numeric suffix still identifies the
	// same hand once both sides are stripped.
	shot := handmodel.Screenshot{ScreenshotID: "s1", OCR1: &handmodel.OCR1Result{HandID: "OM1001"}}
	matches, _ := Match([]handmodel.Hand{hand}, []handmodel.Screenshot{shot}, testConfig())
	require.Len(t, matches, 1)
	require.Equal(t, handmodel.MatchSourceHandID, matches[0].Source)
}

func TestMatch_IdentityByFilename(t *testing.T) {
	hand := handmodel.Hand{HandID: "RC1001", Seats: []handmodel.Seat{{SeatNumber: 1, AnonID: handmodel.HeroID}}}
	shot := handmodel.Screenshot{ScreenshotID: "capture_RC1001_2024.png"}

	matches, rejections := Match([]handmodel.Hand{hand}, []handmodel.Screenshot{shot}, testConfig())
	require.Empty(t, rejections)
	require.Len(t, matches, 1)
	require.Equal(t, handmodel.MatchSourceFilename, matches[0].Source)
}

func TestMatch_AcceptanceGateRejectsOnPlayerCount(t *testing.T) {
	hand := handmodel.Hand{
		HandID: "RC1001",
		Seats: []handmodel.Seat{
			{SeatNumber: 1, AnonID: handmodel.HeroID, StartingStack: 200},
			{SeatNumber: 2, AnonID: "5641b4a0", StartingStack: 200},
		},
	}
	shot := handmodel.Screenshot{
		ScreenshotID: "s1",
		OCR1:         &handmodel.OCR1Result{HandID: "RC1001"},
		OCR2: &handmodel.OCR2Result{
			Players: []string{"Hero", "A", "B"}, // 3 players, hand has 2 seats
			Stacks:  []int{200, 200, 200},
		},
	}

	matches, rejections := Match([]handmodel.Hand{hand}, []handmodel.Screenshot{shot}, testConfig())
	require.Empty(t, matches)
	require.Len(t, rejections, 1)
	require.Equal(t, GatePlayerCount, rejections[0].Gate)
}

func TestMatch_AcceptanceGateRejectsOnHeroStack(t *testing.T) {
	hand := handmodel.Hand{
		HandID: "RC1001",
		Seats: []handmodel.Seat{
			{SeatNumber: 1, AnonID: handmodel.HeroID, StartingStack: 200},
			{SeatNumber: 2, AnonID: "5641b4a0", StartingStack: 200},
		},
	}
	shot := handmodel.Screenshot{
		ScreenshotID: "s1",
		OCR1:         &handmodel.OCR1Result{HandID: "RC1001"},
		OCR2: &handmodel.OCR2Result{
			Players: []string{"Hero", "A"},
			Stacks:  []int{500, 200}, // Hero stack wildly off hand's 200
		},
	}

	matches, rejections := Match([]handmodel.Hand{hand}, []handmodel.Screenshot{shot}, testConfig())
	require.Empty(t, matches)
	require.Len(t, rejections, 1)
	require.Equal(t, GateHeroStack, rejections[0].Gate)
}

func TestMatch_ScoredFallbackAboveThreshold(t *testing.T) {
	now := time.Date(2024, 1, 15, 10, 30, 0, 0, time.UTC)
	hand := handmodel.Hand{
		HandID:     "RC1002",
		Timestamp:  now,
		HeroCards:  []string{"Ah", "Kd"},
		BoardCards: []string{"2h", "7c", "9s"},
		Seats: []handmodel.Seat{
			{SeatNumber: 1, AnonID: handmodel.HeroID, StartingStack: 200},
			{SeatNumber: 2, AnonID: "5641b4a0", StartingStack: 200},
		},
	}
	shot := handmodel.Screenshot{
		ScreenshotID: "unrelated-name",
		CapturedAt:   now.Add(5 * time.Second),
		OCR1: &handmodel.OCR1Result{
			HandID:     "", // no hand ID read at all
			HeroCards:  []string{"Kd", "Ah"},
			BoardCards: []string{"2h", "7c", "9s"},
			HeroStack:  200,
		},
	}

	matches, rejections := Match([]handmodel.Hand{hand}, []handmodel.Screenshot{shot}, testConfig())
	require.Empty(t, rejections)
	require.Len(t, matches, 1)
	require.Equal(t, handmodel.MatchSourceScored, matches[0].Source)
	require.GreaterOrEqual(t, matches[0].Score, 70.0)
}

func TestMatch_ScoredFallbackBelowThresholdYieldsNoMatch(t *testing.T) {
	hand := handmodel.Hand{
		HandID: "RC1003",
		Seats: []handmodel.Seat{
			{SeatNumber: 1, AnonID: handmodel.HeroID, StartingStack: 200},
		},
	}
	shot := handmodel.Screenshot{
		ScreenshotID: "no-relation",
		OCR1:         &handmodel.OCR1Result{},
	}

	matches, _ := Match([]handmodel.Hand{hand}, []handmodel.Screenshot{shot}, testConfig())
	require.Empty(t, matches)
}

func TestMatch_UniquenessOneScreenshotPerHand(t *testing.T) {
	hand := handmodel.Hand{HandID: "RC1001", Seats: []handmodel.Seat{{SeatNumber: 1, AnonID: handmodel.HeroID}}}
	shot1 := handmodel.Screenshot{ScreenshotID: "a", OCR1: &handmodel.OCR1Result{HandID: "RC1001"}}
	shot2 := handmodel.Screenshot{ScreenshotID: "b", OCR1: &handmodel.OCR1Result{HandID: "RC1001"}}

	matches, rejections := Match([]handmodel.Hand{hand}, []handmodel.Screenshot{shot1, shot2}, testConfig())
	require.Len(t, matches, 1)
	require.Equal(t, "a", matches[0].ScreenshotID) // sorted order: "a" wins
	require.Len(t, rejections, 1)
	require.Equal(t, "b", rejections[0].ScreenshotID)
}

func TestMatch_DeterministicAcrossRuns(t *testing.T) {
	hands := []handmodel.Hand{
		{HandID: "RC1001", Seats: []handmodel.Seat{{SeatNumber: 1, AnonID: handmodel.HeroID}}},
		{HandID: "RC1002", Seats: []handmodel.Seat{{SeatNumber: 1, AnonID: handmodel.HeroID}}},
	}
	shots := []handmodel.Screenshot{
		{ScreenshotID: "z", OCR1: &handmodel.OCR1Result{HandID: "RC1002"}},
		{ScreenshotID: "a", OCR1: &handmodel.OCR1Result{HandID: "RC1001"}},
	}

	m1, _ := Match(hands, shots, testConfig())
	m2, _ := Match(hands, shots, testConfig())
	require.Equal(t, m1, m2)
	require.Len(t, m1, 2)
}
