package ocrstage

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/riverbend/handmask/internal/config"
	"github.com/riverbend/handmask/internal/handmodel"
	"github.com/riverbend/handmask/internal/vision"
)

func TestRunPhase1_RetriesOnceOnTransient(t *testing.T) {
	mock := vision.NewMockClient()
	mock.SetError("img-1", vision.ErrTransient)

	cfg := config.Default()
	cfg.OCR1RetryDelayMs = 1
	stage := New(mock, cfg)

	shot := &handmodel.Screenshot{ScreenshotID: "s1", ImageRef: "img-1"}
	err := stage.RunPhase1(context.Background(), []*handmodel.Screenshot{shot}, nil)
	require.NoError(t, err)
	require.Nil(t, shot.OCR1)
	require.Equal(t, 1, shot.OCR1RetryCount)
	// Called once initially + once retry.
	require.Len(t, mock.Calls, 2)
}

func TestRunPhase1_SucceedsWithoutRetry(t *testing.T) {
	mock := vision.NewMockClient()
	mock.SetHandID("img-1", "RC1001")

	stage := New(mock, config.Default())
	shot := &handmodel.Screenshot{ScreenshotID: "s1", ImageRef: "img-1"}
	err := stage.RunPhase1(context.Background(), []*handmodel.Screenshot{shot}, nil)
	require.NoError(t, err)
	require.NotNil(t, shot.OCR1)
	require.Equal(t, "RC1001", shot.OCR1.HandID)
	require.Equal(t, 0, shot.OCR1RetryCount)
}

func TestRunPhase2_CostGateViolation(t *testing.T) {
	mock := vision.NewMockClient()
	stage := New(mock, config.Default())
	shot := &handmodel.Screenshot{ScreenshotID: "s1", ImageRef: "img-1"} // MatchedHandID empty
	err := stage.RunPhase2(context.Background(), []*handmodel.Screenshot{shot}, nil)
	require.ErrorIs(t, err, ErrCostGateViolation)
	require.Empty(t, mock.PlayersCalls)
}

func TestRunPhase2_SchemaInvalidDiscarded(t *testing.T) {
	mock := vision.NewMockClient()
	mock.SetPlayers("img-1", vision.PlayersPayload{
		Players:      []string{"Alice", "Bob"},
		DealerPlayer: "Carol", // not in Players -> invalid
	})
	stage := New(mock, config.Default())
	shot := &handmodel.Screenshot{ScreenshotID: "s1", ImageRef: "img-1", MatchedHandID: "RC1001"}
	err := stage.RunPhase2(context.Background(), []*handmodel.Screenshot{shot}, nil)
	require.NoError(t, err)
	require.Nil(t, shot.OCR2)
}

func TestRunPhase2_ValidPayload(t *testing.T) {
	mock := vision.NewMockClient()
	mock.SetPlayers("img-1", vision.PlayersPayload{
		Players:      []string{"Alice", "Bob"},
		DealerPlayer: "Alice",
	})
	stage := New(mock, config.Default())
	shot := &handmodel.Screenshot{ScreenshotID: "s1", ImageRef: "img-1", MatchedHandID: "RC1001"}
	err := stage.RunPhase2(context.Background(), []*handmodel.Screenshot{shot}, nil)
	require.NoError(t, err)
	require.NotNil(t, shot.OCR2)
	require.Equal(t, "Alice", shot.OCR2.DealerPlayer)
}

func TestRunPhase1_ProgressMonotonic(t *testing.T) {
	mock := vision.NewMockClient()
	shots := make([]*handmodel.Screenshot, 0, 20)
	for i := 0; i < 20; i++ {
		ref := "img"
		mock.SetHandID(ref, "RC1001")
		shots = append(shots, &handmodel.Screenshot{ScreenshotID: ref, ImageRef: ref})
	}
	stage := New(mock, config.Default())

	last := 0
	err := stage.RunPhase1(context.Background(), shots, func(processed, total int) {
		require.GreaterOrEqual(t, processed, last)
		last = processed
		require.Equal(t, 20, total)
	})
	require.NoError(t, err)
	require.Equal(t, 20, last)
}
