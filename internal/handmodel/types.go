// Package handmodel holds the shared data-model types passed between the
// parser, vision, matcher, mapper, rewrite, validate, packager, jobstore and
// pipeline packages. Keeping them in one leaf package avoids import cycles
// between components that all need to see, e.g., Hand and Screenshot.
package handmodel

import "time"

// MatchSource records which matching strategy produced a HandMatch.
type MatchSource string

const (
	MatchSourceHandID   MatchSource = "HAND_ID"
	MatchSourceFilename MatchSource = "FILENAME"
	MatchSourceScored   MatchSource = "SCORED"
)

// JobStatus is the lifecycle state of a Job.
type JobStatus string

const (
	JobPending      JobStatus = "PENDING"
	JobInitialized  JobStatus = "INITIALIZED"
	JobProcessing   JobStatus = "PROCESSING"
	JobCompleted    JobStatus = "COMPLETED"
	JobFailed       JobStatus = "FAILED"
)

// HeroID is the literal anon-ID token the operator's client uses for the
// local viewer's own seat. It is never a hex string.
const HeroID = "Hero"

// Seat is one occupied position at the table as recorded in a hand's header.
type Seat struct {
	SeatNumber    int
	AnonID        string
	StartingStack int
}

// Roles names the three seats that matter for role-based mapping. A seat
// number of 0 means "absent" (valid seat numbers are 1-based).
type Roles struct {
	ButtonSeat     int
	SmallBlindSeat int
	BigBlindSeat   int
}

// Stakes is the small-blind/big-blind pair plus currency unit.
type Stakes struct {
	SmallBlind int
	BigBlind   int
	Currency   string
}

// Hand is one parsed poker hand.
type Hand struct {
	HandID     string // e.g. "RC1001"
	TableName  string
	Stakes     Stakes
	Seats      []Seat
	Roles      Roles
	HeroCards  []string // Hero's two hole cards, e.g. ["Ah", "Kd"]; nil if not dealt
	BoardCards []string // community cards in deal order, as far as RawText shows them
	RawText    string
	Timestamp  time.Time
}

// NormalizedHandID strips any known operator prefix from HandID, returning
// the bare digit suffix used for matching. prefixes is the configured
// strip-set, checked in the order given; the first prefix that matches is
// the one stripped.
func NormalizedHandID(handID string, prefixes []string) string {
	for _, p := range prefixes {
		if len(handID) > len(p) && handID[:len(p)] == p {
			return handID[len(p):]
		}
	}
	return handID
}

// SeatByAnonID finds the seat holding anonID, if any.
func (h Hand) SeatByAnonID(anonID string) (Seat, bool) {
	for _, s := range h.Seats {
		if s.AnonID == anonID {
			return s, true
		}
	}
	return Seat{}, false
}

// HeroSeat returns the seat whose AnonID is the literal Hero token.
func (h Hand) HeroSeat() (Seat, bool) {
	return h.SeatByAnonID(HeroID)
}

// OCR1Result is the outcome of phase-1 extraction for one screenshot: the
// hand ID plus the handful of cheap visual features the matcher's scored
// fallback needs before it is known which hand (if any) this screenshot
// belongs to. Full player names stay in OCR2Result, gated behind a match,
// since those cost far more to extract per screenshot.
type OCR1Result struct {
	HandID     string
	HeroCards  []string // Hero's two hole cards if visible
	BoardCards []string // community cards visible at capture time
	HeroStack  int      // 0 if not legible
}

// OCR2Result is the outcome of phase-2 player extraction for one screenshot.
type OCR2Result struct {
	Players          []string // visual order, position 0 = Hero (always rendered at the bottom)
	Stacks           []int    // parallel to Players when visible, 0 = unknown
	DealerPlayer     string
	SmallBlindPlayer string
	BigBlindPlayer   string
	HeroCards        []string // Hero's two hole cards as read off the felt, if visible
	BoardCards       []string // community cards visible on the felt, in deal order
}

// RolesPopulated returns how many of the three role fields are non-empty.
func (o OCR2Result) RolesPopulated() int {
	n := 0
	if o.DealerPlayer != "" {
		n++
	}
	if o.SmallBlindPlayer != "" {
		n++
	}
	if o.BigBlindPlayer != "" {
		n++
	}
	return n
}

// Screenshot is one input image and its accumulated OCR state.
type Screenshot struct {
	ScreenshotID   string
	ImageRef       string
	CapturedAt     time.Time // intake-assigned capture time, e.g. file mtime
	OCR1           *OCR1Result
	OCR1RetryCount int
	OCR2           *OCR2Result
	MatchedHandID  string
	DiscardReason  string
}

// HandMatch binds one Hand to one Screenshot.
type HandMatch struct {
	HandID       string
	ScreenshotID string
	Source       MatchSource
	Score        float64 // 0-100, meaningful only when Source == MatchSourceScored
}

// TableMapping is the aggregated anonID->realName map for one table.
type TableMapping struct {
	TableName string
	Names     map[string]string
}

// MappingConflict records a precedence decision made during aggregation, for
// a WARN log entry on any conflict.
type MappingConflict struct {
	TableName  string
	AnonID     string
	Kept       string
	Discarded  string
	Reason     string
}

// LogEntry is one structured line in a Job's persisted log.
type LogEntry struct {
	Timestamp time.Time
	Level     string // DEBUG, INFO, WARN, ERROR, CRITICAL
	Message   string
	Extra     map[string]string
}

// FileOutcome is the per-table classification recorded for packaging.
type FileOutcome struct {
	TableName       string
	Clean           bool
	OutputFilename  string
	ResidualAnonIDs []string
}

// Statistics is the final per-job summary surfaced once a run completes.
type Statistics struct {
	HandsTotal         int
	HandsResolved      int
	HandsFallado       int
	ScreenshotsTotal   int
	ScreenshotsMatched int
	OCR1Retries        int
	OCR2SchemaErrors   int
	MappingConflicts   int
	MappingDuplicates  int
}

// Job is the durable record of one pipeline run.
type Job struct {
	JobID        string
	Status       JobStatus
	CreatedAt    time.Time
	UpdatedAt    time.Time
	OCRProcessed int
	OCRTotal     int
	Statistics   Statistics
	FailReason   string
}
