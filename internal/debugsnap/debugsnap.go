// Package debugsnap writes the required post-mortem JSON artifact emitted
// on every job terminal transition: the job row, every per-table outcome,
// every per-screenshot outcome, aggregated statistics, and the full
// structured log, all in one file.
package debugsnap

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/google/uuid"

	"github.com/riverbend/handmask/internal/handmodel"
)

// Snapshot is the full contents of one debug artifact.
type Snapshot struct {
	SnapshotID   string                     `json:"snapshot_id"`
	GeneratedAt  time.Time                  `json:"generated_at"`
	Job          handmodel.Job              `json:"job"`
	Files        []handmodel.FileOutcome    `json:"files"`
	Screenshots  []handmodel.Screenshot     `json:"screenshots"`
	Statistics   handmodel.Statistics       `json:"statistics"`
	Log          []handmodel.LogEntry       `json:"log"`
	Truncated    bool                       `json:"truncated"` // true if the log buffer did not finish flushing before this snapshot
	HumanSummary string                     `json:"human_summary"`
}

// Build assembles a Snapshot from the orchestrator's terminal-transition
// state. archiveBytes is the combined size of the resolved+fallado
// archives (0 if packaging never ran, e.g. the job failed before that
// phase), used only for the human-readable summary line.
func Build(job handmodel.Job, files []handmodel.FileOutcome, screenshots []handmodel.Screenshot, log []handmodel.LogEntry, truncated bool, archiveBytes int64) Snapshot {
	now := time.Now().UTC()
	summary := fmt.Sprintf(
		"job %s %s: %d/%d hands resolved, %d/%d screenshots matched, archives %s, %s",
		job.JobID, job.Status,
		job.Statistics.HandsResolved, job.Statistics.HandsTotal,
		job.Statistics.ScreenshotsMatched, job.Statistics.ScreenshotsTotal,
		humanize.Bytes(uint64(archiveBytes)),
		humanize.RelTime(job.CreatedAt, now, "elapsed", "in the future"),
	)
	return Snapshot{
		SnapshotID:   uuid.NewString(),
		GeneratedAt:  now,
		Job:          job,
		Files:        files,
		Screenshots:  screenshots,
		Statistics:   job.Statistics,
		Log:          log,
		Truncated:    truncated,
		HumanSummary: summary,
	}
}

// Write marshals snap and writes it under dir as
// debug_job_<id>_<timestampUTC>.json, returning the path written.
func Write(dir string, snap Snapshot) (string, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("debugsnap: create dir %q: %w", dir, err)
	}

	name := fmt.Sprintf("debug_job_%s_%s.json", snap.Job.JobID, snap.GeneratedAt.Format("20060102T150405Z"))
	path := filepath.Join(dir, name)

	data, err := json.MarshalIndent(snap, "", "  ")
	if err != nil {
		return "", fmt.Errorf("debugsnap: marshal snapshot for job %q: %w", snap.Job.JobID, err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return "", fmt.Errorf("debugsnap: write %q: %w", path, err)
	}
	return path, nil
}
