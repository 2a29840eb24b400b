package pipeline

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/riverbend/handmask/internal/config"
	"github.com/riverbend/handmask/internal/handmodel"
	"github.com/riverbend/handmask/internal/jobstore"
	"github.com/riverbend/handmask/internal/vision"
)

const sampleHand = `RC1001: Hold'em No Limit ($1/$2 USD) - 2024/01/15 10:30:00 ET
Table 'Azure Room 4' 6-max Seat #3 is the button
Seat 1: e3efcaed ($200 in chips)
Seat 2: 5641b4a0 ($200 in chips)
Seat 3: Hero ($200 in chips)
e3efcaed: posts small blind $1
5641b4a0: posts big blind $2
*** HOLE CARDS ***
Dealt to Hero [Ah Kd]
Hero: raises $4 to $6
e3efcaed: folds
5641b4a0: calls $4
*** SUMMARY ***
Total pot $13 | Rake $0
Seat 1: e3efcaed (small blind) folded before Flop
Seat 2: 5641b4a0 (big blind)
Seat 3: Hero (button) collected ($13)
`

func newTestOrchestrator(t *testing.T, visionClient vision.Client) (*Orchestrator, jobstore.Repository, string) {
	t.Helper()
	repo := jobstore.NewMemoryRepository()
	cfg := config.Default()
	outputDir := t.TempDir()
	return New(repo, visionClient, cfg, t.TempDir(), outputDir), repo, outputDir
}

func TestRun_HandIDMatchEndToEnd(t *testing.T) {
	mock := vision.NewMockClient()
	mock.SetHandID("shot-1.png", "RC1001")
	mock.SetPlayers("shot-1.png", vision.PlayersPayload{
		Players:          []string{"HeroReal", "AliceReal", "BobReal"},
		Stacks:           []int{200, 200, 200},
		DealerPlayer:     "HeroReal",
		SmallBlindPlayer: "AliceReal",
		BigBlindPlayer:   "BobReal",
	})

	orch, repo, outputDir := newTestOrchestrator(t, mock)
	captured := time.Date(2024, 1, 15, 10, 30, 20, 0, time.UTC)
	input := Input{
		Files: []InputFile{{Name: "log1.txt", Text: sampleHand}},
		Screenshots: []handmodel.Screenshot{
			{ScreenshotID: "shot-1", ImageRef: "shot-1.png", CapturedAt: captured},
		},
	}

	err := orch.Run(context.Background(), "job-1", input)
	require.NoError(t, err)

	job, err := repo.GetJob(context.Background(), "job-1")
	require.NoError(t, err)
	require.Equal(t, handmodel.JobCompleted, job.Status)
	require.Equal(t, 1, job.Statistics.HandsTotal)
	require.Equal(t, 1, job.Statistics.ScreenshotsTotal)
	require.Equal(t, 1, job.Statistics.ScreenshotsMatched)

	files, err := repo.ListFileOutcomes(context.Background(), "job-1")
	require.NoError(t, err)
	require.Len(t, files, 1)
	require.Equal(t, "Azure Room 4", files[0].TableName)

	shots, err := repo.ListScreenshotOutcomes(context.Background(), "job-1")
	require.NoError(t, err)
	require.Len(t, shots, 1)
	require.Equal(t, "RC1001", shots[0].MatchedHandID)

	if files[0].Clean {
		_, statErr := os.Stat(filepath.Join(outputDir, "job_job-1_resolved.zip"))
		require.NoError(t, statErr)
	} else {
		_, statErr := os.Stat(filepath.Join(outputDir, "job_job-1_fallado.zip"))
		require.NoError(t, statErr)
	}
}

func TestRun_NoScreenshotsStillProducesFalladoOutput(t *testing.T) {
	mock := vision.NewMockClient()
	orch, repo, _ := newTestOrchestrator(t, mock)

	input := Input{Files: []InputFile{{Name: "log1.txt", Text: sampleHand}}}
	err := orch.Run(context.Background(), "job-2", input)
	require.NoError(t, err)

	job, err := repo.GetJob(context.Background(), "job-2")
	require.NoError(t, err)
	require.Equal(t, handmodel.JobCompleted, job.Status)
	require.Equal(t, 1, job.Statistics.HandsTotal)
	require.Equal(t, 0, job.Statistics.HandsResolved)
	require.Equal(t, 1, job.Statistics.HandsFallado)

	files, err := repo.ListFileOutcomes(context.Background(), "job-2")
	require.NoError(t, err)
	require.Len(t, files, 1)
	require.False(t, files[0].Clean)
}

const secondHandNormalizationVariantTable = `RC1002: Hold'em No Limit ($1/$2 USD) - 2024/01/15 10:35:00 ET
Table 'azure   ROOM  4' 3-max Seat #1 is the button
Seat 1: e3efcaed ($194 in chips)
Seat 2: 5641b4a0 ($196 in chips)
Seat 3: Hero ($213 in chips)
5641b4a0: posts small blind $1
Hero: posts big blind $2
*** HOLE CARDS ***
Dealt to Hero [2c 2d]
e3efcaed: folds
5641b4a0: folds
*** SUMMARY ***
Total pot $3 | Rake $0
Seat 1: e3efcaed (button) folded before Flop
Seat 2: 5641b4a0 (small blind) folded before Flop
Seat 3: Hero (big blind) collected ($3)
`

func TestRun_NormalizationVariantTableNamesCollapseToOneOutput(t *testing.T) {
	mock := vision.NewMockClient()
	orch, repo, _ := newTestOrchestrator(t, mock)

	input := Input{Files: []InputFile{
		{Name: "log1.txt", Text: sampleHand},
		{Name: "log2.txt", Text: secondHandNormalizationVariantTable},
	}}
	err := orch.Run(context.Background(), "job-5", input)
	require.NoError(t, err)

	job, err := repo.GetJob(context.Background(), "job-5")
	require.NoError(t, err)
	require.Equal(t, handmodel.JobCompleted, job.Status)
	require.Equal(t, 2, job.Statistics.HandsTotal)

	files, err := repo.ListFileOutcomes(context.Background(), "job-5")
	require.NoError(t, err)
	require.Len(t, files, 1)
	require.Equal(t, "Azure Room 4", files[0].TableName)
}

func TestRun_UnparseableInputFailsTheJob(t *testing.T) {
	mock := vision.NewMockClient()
	orch, repo, _ := newTestOrchestrator(t, mock)

	input := Input{Files: []InputFile{{Name: "garbage.txt", Text: "not a hand history at all"}}}
	err := orch.Run(context.Background(), "job-3", input)
	require.Error(t, err)

	job, err := repo.GetJob(context.Background(), "job-3")
	require.NoError(t, err)
	require.Equal(t, handmodel.JobFailed, job.Status)
	require.NotEmpty(t, job.FailReason)
}

func TestRun_CancelledContextMarksJobCancelled(t *testing.T) {
	mock := vision.NewMockClient()
	orch, repo, _ := newTestOrchestrator(t, mock)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	input := Input{
		Files: []InputFile{{Name: "log1.txt", Text: sampleHand}},
		Screenshots: []handmodel.Screenshot{
			{ScreenshotID: "shot-1", ImageRef: "shot-1.png"},
		},
	}
	err := orch.Run(ctx, "job-4", input)
	require.Error(t, err)

	job, err := repo.GetJob(context.Background(), "job-4")
	require.NoError(t, err)
	require.Equal(t, handmodel.JobFailed, job.Status)
}
