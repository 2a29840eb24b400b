package jobstats

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestAccumulator_ComputeReflectsFedEvents(t *testing.T) {
	a := New()
	a.FeedHandParsed()
	a.FeedHandParsed()
	a.FeedHandOutcome(true)
	a.FeedHandOutcome(false)
	a.FeedScreenshotSeen()
	a.FeedScreenshotSeen()
	a.FeedScreenshotMatched()
	a.FeedOCR1Retry()
	a.FeedOCR2SchemaError()
	a.FeedMappingConflict()
	a.FeedMappingDuplicate()

	got := a.Compute()
	require.Equal(t, 2, got.HandsTotal)
	require.Equal(t, 1, got.HandsResolved)
	require.Equal(t, 1, got.HandsFallado)
	require.Equal(t, 2, got.ScreenshotsTotal)
	require.Equal(t, 1, got.ScreenshotsMatched)
	require.Equal(t, 1, got.OCR1Retries)
	require.Equal(t, 1, got.OCR2SchemaErrors)
	require.Equal(t, 1, got.MappingConflicts)
	require.Equal(t, 1, got.MappingDuplicates)
}

func TestAccumulator_ComputeIsReadableMidRun(t *testing.T) {
	a := New()
	a.FeedHandParsed()
	mid := a.Compute()
	require.Equal(t, 1, mid.HandsTotal)

	a.FeedHandParsed()
	after := a.Compute()
	require.Equal(t, 2, after.HandsTotal)
	require.Equal(t, 1, mid.HandsTotal, "earlier snapshot must not be mutated by later Feed calls")
}
