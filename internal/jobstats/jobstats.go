// Package jobstats accumulates per-job run statistics incrementally as the
// pipeline progresses, rather than re-deriving them from stored rows after
// the fact.
package jobstats

import "github.com/riverbend/handmask/internal/handmodel"

// Accumulator collects one job's Statistics incrementally. Feed the
// individual pipeline events as they happen, then call Compute for the
// current snapshot at any point — including mid-run, for progress
// reporting, not just at the terminal transition.
type Accumulator struct {
	s handmodel.Statistics
}

// New returns an empty Accumulator.
func New() *Accumulator {
	return &Accumulator{}
}

// FeedHandParsed records one hand successfully parsed out of an input file.
func (a *Accumulator) FeedHandParsed() {
	a.s.HandsTotal++
}

// FeedHandOutcome records one hand's final classification after packaging.
func (a *Accumulator) FeedHandOutcome(clean bool) {
	if clean {
		a.s.HandsResolved++
	} else {
		a.s.HandsFallado++
	}
}

// FeedScreenshotSeen records one screenshot entering the pipeline.
func (a *Accumulator) FeedScreenshotSeen() {
	a.s.ScreenshotsTotal++
}

// FeedScreenshotMatched records one screenshot successfully bound to a hand.
func (a *Accumulator) FeedScreenshotMatched() {
	a.s.ScreenshotsMatched++
}

// FeedOCR1Retry records one phase-1 OCR retry attempt.
func (a *Accumulator) FeedOCR1Retry() {
	a.s.OCR1Retries++
}

// FeedOCR2SchemaError records one phase-2 OCR payload discarded for
// failing schema validation.
func (a *Accumulator) FeedOCR2SchemaError() {
	a.s.OCR2SchemaErrors++
}

// FeedMappingConflict records one table-aggregation naming conflict.
func (a *Accumulator) FeedMappingConflict() {
	a.s.MappingConflicts++
}

// FeedMappingDuplicate records one hand whose mapping was discarded for
// mapping two anon IDs onto the same real name.
func (a *Accumulator) FeedMappingDuplicate() {
	a.s.MappingDuplicates++
}

// Compute returns the current accumulated Statistics snapshot.
func (a *Accumulator) Compute() handmodel.Statistics {
	return a.s
}
