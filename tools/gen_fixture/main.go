// gen_fixture generates synthetic hand-history text files paired with a
// vision fixture manifest, for driving integration tests and local demos of
// the de-anonymization pipeline without a real vision backend.
//
// Each generated "table" gets a consistent anon-ID-to-real-name mapping
// across all its hands (mirroring how the same players sit at a table
// across many hands), and one fixtures.json entry per hand recording the
// screenshot payload a vision client would have produced for it — ready to
// feed straight into vision.MockClient.SetHandID / SetPlayers.
//
// Usage:
//
//	go run ./tools/gen_fixture [flags]
//
// Flags:
//
//	--out-dir          where to write generated files (default: "./testdata/generated")
//	--files             number of hand-history files to generate (default: 10)
//	--hands-per-file    hands per file (default: 3)
//	--tables            number of distinct table names to draw from (default: 4)
//	--seed              random seed; 0 = use current time (default: 0)
//	--start-date        base date for generated timestamps, YYYY-MM-DD (default: 2025-01-01)
package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"math/rand"
	"os"
	"path/filepath"
	"strings"
	"time"
)

var handIDPrefixes = []string{"RC", "OM", "TM", "HD", "SG", "MT", "TT"}

var tableNames = []string{
	"Azure Room 4", "Crimson Felt 7", "Jade Table 2", "Obsidian Lounge 1",
	"Copper Deck 9", "Ivory Hall 3", "Slate Pit 6", "Amber Row 5",
}

var realNamePool = []string{
	"RiverRat88", "QuietShark", "MidnightBluff", "StackAttack", "ChipWhisperer",
	"GrindTilDawn", "PocketRockets", "FoldEquity", "ThreeBetTom", "LoosePassive",
	"RangeReader", "TiltProof", "ValueTownVic", "ButtonSteal", "CalledDownKay",
}

// fixtureEntry is one vision fixture: the screenshot a vision client would
// have OCR'd, and the payload it would have returned for it.
type fixtureEntry struct {
	ImageRef         string   `json:"image_ref"`
	HandID           string   `json:"hand_id"`
	Players          []string `json:"players"`
	Stacks           []int    `json:"stacks"`
	DealerPlayer     string   `json:"dealer_player"`
	SmallBlindPlayer string   `json:"small_blind_player"`
	BigBlindPlayer   string   `json:"big_blind_player"`
}

// tableSeat is one seat at a generated table: a stable anon ID (as it
// appears in hand-history text) mapped to a stable real name (as a vision
// client would read it off a screenshot).
type tableSeat struct {
	AnonID   string
	RealName string
	Stack    int
}

func randomAnonID(rng *rand.Rand) string {
	const hex = "0123456789abcdef"
	n := 6 + rng.Intn(3) // 6-8 hex chars, matching handparse's anon ID shape
	b := make([]byte, n)
	for i := range b {
		b[i] = hex[rng.Intn(len(hex))]
	}
	return string(b)
}

// buildTableSeats assigns a fixed anon-ID/real-name/stack triple per seat
// for the lifetime of one generated table, seats 1..n with Hero occupying
// seatCount (the last seat), matching the fixed layout handparse's own
// tests and the sample hand in internal/pipeline's tests both use.
func buildTableSeats(seatCount int, rng *rand.Rand) []tableSeat {
	seats := make([]tableSeat, seatCount)
	usedNames := make(map[string]bool, seatCount)
	for i := 0; i < seatCount-1; i++ {
		name := realNamePool[rng.Intn(len(realNamePool))]
		for usedNames[name] {
			name = realNamePool[rng.Intn(len(realNamePool))]
		}
		usedNames[name] = true
		seats[i] = tableSeat{
			AnonID:   randomAnonID(rng),
			RealName: name,
			Stack:    200,
		}
	}
	seats[seatCount-1] = tableSeat{AnonID: "Hero", RealName: "HeroReal", Stack: 200}
	return seats
}

// writeHand renders one hand-history block using the fixed seat list,
// rotating the button/blinds by handIndex, and returns the rendered text
// plus the fixture entry a vision client would produce for its matching
// screenshot.
func writeHand(handID string, ts time.Time, tableName string, seats []tableSeat, handIndex int, rng *rand.Rand) (string, fixtureEntry) {
	n := len(seats)
	button := handIndex % n
	sb := (button + 1) % n
	bb := (button + 2) % n

	var b strings.Builder
	fmt.Fprintf(&b, "%s: Hold'em No Limit ($1/$2 USD) - %s ET\n", handID, ts.Format("2006/01/02 15:04:05"))
	fmt.Fprintf(&b, "Table '%s' %d-max Seat #%d is the button\n", tableName, n, button+1)
	for i, s := range seats {
		fmt.Fprintf(&b, "Seat %d: %s ($%d in chips)\n", i+1, s.AnonID, s.Stack)
	}
	fmt.Fprintf(&b, "%s: posts small blind $1\n", seats[sb].AnonID)
	fmt.Fprintf(&b, "%s: posts big blind $2\n", seats[bb].AnonID)
	b.WriteString("*** HOLE CARDS ***\n")
	fmt.Fprintf(&b, "Dealt to Hero [%s]\n", randomHoleCards(rng))

	// One simple betting line keeps the block well inside handparse's
	// accepted shape without needing full street-by-street simulation.
	winner := button
	fmt.Fprintf(&b, "%s: raises $4 to $6\n", seats[winner].AnonID)
	for i, s := range seats {
		if i == winner {
			continue
		}
		fmt.Fprintf(&b, "%s: folds\n", s.AnonID)
	}

	b.WriteString("*** SUMMARY ***\n")
	b.WriteString("Total pot $13 | Rake $0\n")
	for i, s := range seats {
		switch i {
		case winner:
			fmt.Fprintf(&b, "Seat %d: %s collected ($13)\n", i+1, s.AnonID)
		case sb:
			fmt.Fprintf(&b, "Seat %d: %s (small blind) folded before Flop\n", i+1, s.AnonID)
		case bb:
			fmt.Fprintf(&b, "Seat %d: %s (big blind) folded before Flop\n", i+1, s.AnonID)
		default:
			fmt.Fprintf(&b, "Seat %d: %s folded before Flop\n", i+1, s.AnonID)
		}
	}

	names := make([]string, n)
	stacks := make([]int, n)
	// Visual order, as a vision client reports it: position 0 is Hero (the
	// last seat), then counter-clockwise back through the lower seats.
	for v := 0; v < n; v++ {
		s := seats[n-1-v]
		names[v] = s.RealName
		stacks[v] = s.Stack
	}
	entry := fixtureEntry{
		HandID:           handID,
		Players:          names,
		Stacks:           stacks,
		DealerPlayer:     seats[button].RealName,
		SmallBlindPlayer: seats[sb].RealName,
		BigBlindPlayer:   seats[bb].RealName,
	}
	return b.String(), entry
}

var holeRanks = []string{"2", "3", "4", "5", "6", "7", "8", "9", "10", "J", "Q", "K", "A"}
var holeSuits = []string{"h", "d", "c", "s"}

func randomHoleCards(rng *rand.Rand) string {
	c1 := holeRanks[rng.Intn(len(holeRanks))] + holeSuits[rng.Intn(len(holeSuits))]
	c2 := holeRanks[rng.Intn(len(holeRanks))] + holeSuits[rng.Intn(len(holeSuits))]
	return c1 + " " + c2
}

func main() {
	outDir := flag.String("out-dir", "testdata/generated", "output directory")
	fileCount := flag.Int("files", 10, "number of hand-history files to generate")
	handsPerFile := flag.Int("hands-per-file", 3, "hands per generated file")
	tableCount := flag.Int("tables", 4, "number of distinct table names to draw from")
	seed := flag.Int64("seed", 0, "random seed (0 = use current Unix time)")
	startDate := flag.String("start-date", "2025-01-01", "base date for timestamps, YYYY-MM-DD")
	flag.Parse()

	if *fileCount < 1 {
		fmt.Fprintln(os.Stderr, "error: --files must be >= 1")
		os.Exit(1)
	}
	if *handsPerFile < 1 {
		fmt.Fprintln(os.Stderr, "error: --hands-per-file must be >= 1")
		os.Exit(1)
	}
	if *tableCount < 1 || *tableCount > len(tableNames) {
		fmt.Fprintf(os.Stderr, "error: --tables must be between 1 and %d\n", len(tableNames))
		os.Exit(1)
	}

	actualSeed := *seed
	if actualSeed == 0 {
		actualSeed = time.Now().UnixNano()
	}
	rng := rand.New(rand.NewSource(actualSeed))
	fmt.Printf("seed: %d\n", actualSeed)

	baseTime, err := time.Parse("2006-01-02", *startDate)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: invalid --start-date %q: %v\n", *startDate, err)
		os.Exit(1)
	}

	if err := os.MkdirAll(*outDir, 0o755); err != nil {
		fmt.Fprintf(os.Stderr, "error: cannot create output dir %q: %v\n", *outDir, err)
		os.Exit(1)
	}

	// One seat layout per table name, shared across every file that draws
	// that table, so a real player keeps the same anon ID across hands the
	// way a real session would.
	tables := make(map[string][]tableSeat, *tableCount)
	chosenTables := tableNames[:*tableCount]
	for _, name := range chosenTables {
		seatCount := 3 + rng.Intn(4) // 3-6 seats
		tables[name] = buildTableSeats(seatCount, rng)
	}

	var fixtures []fixtureEntry
	t := baseTime
	handSeq := 1

	for f := 0; f < *fileCount; f++ {
		tableName := chosenTables[rng.Intn(len(chosenTables))]
		seats := tables[tableName]

		var fileText strings.Builder
		for h := 0; h < *handsPerFile; h++ {
			prefix := handIDPrefixes[rng.Intn(len(handIDPrefixes))]
			handID := fmt.Sprintf("%s%04d", prefix, handSeq)
			handSeq++

			t = t.Add(time.Duration(30+rng.Intn(90)) * time.Second)
			handText, entry := writeHand(handID, t, tableName, seats, h, rng)
			entry.ImageRef = fmt.Sprintf("shot-%s.png", handID)
			fixtures = append(fixtures, entry)

			if h > 0 {
				fileText.WriteString("\n\n")
			}
			fileText.WriteString(handText)
		}

		fname := fmt.Sprintf("hands_%s_%03d.txt", strings.ReplaceAll(strings.ToLower(tableName), " ", "_"), f+1)
		outPath := filepath.Join(*outDir, fname)
		if err := os.WriteFile(outPath, []byte(fileText.String()), 0o644); err != nil {
			fmt.Fprintf(os.Stderr, "error writing %s: %v\n", fname, err)
			os.Exit(1)
		}
		fmt.Printf("[%3d/%d] %s  (%d hands, table %q)\n", f+1, *fileCount, fname, *handsPerFile, tableName)
	}

	fixturePath := filepath.Join(*outDir, "fixtures.json")
	data, err := json.MarshalIndent(fixtures, "", "  ")
	if err != nil {
		fmt.Fprintf(os.Stderr, "error marshaling fixtures: %v\n", err)
		os.Exit(1)
	}
	if err := os.WriteFile(fixturePath, data, 0o644); err != nil {
		fmt.Fprintf(os.Stderr, "error writing %s: %v\n", fixturePath, err)
		os.Exit(1)
	}

	fmt.Printf("\ndone — %d files and %d fixture entries written to %s\n", *fileCount, len(fixtures), *outDir)
}
