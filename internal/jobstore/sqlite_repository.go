package jobstore

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	_ "modernc.org/sqlite"

	"github.com/riverbend/handmask/internal/handmodel"
)

// SQLiteRepository is a durable Repository backed by a single SQLite file,
// opened through the pure-Go modernc.org/sqlite driver so the binary needs
// no cgo toolchain to build.
type SQLiteRepository struct {
	db *sql.DB
}

// NewSQLiteRepository opens path (creating it if absent) and brings the
// schema up to date.
func NewSQLiteRepository(path string) (*SQLiteRepository, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db %q: %w", path, err)
	}
	db.SetMaxOpenConns(1) // modernc.org/sqlite serializes writers; avoid SQLITE_BUSY churn
	if _, err := db.Exec(`PRAGMA foreign_keys = ON`); err != nil {
		db.Close()
		return nil, fmt.Errorf("enable foreign keys: %w", err)
	}
	if err := runMigrations(db); err != nil {
		db.Close()
		return nil, err
	}
	return &SQLiteRepository{db: db}, nil
}

// Close releases the underlying database handle.
func (r *SQLiteRepository) Close() error {
	return r.db.Close()
}

func (r *SQLiteRepository) CreateJob(ctx context.Context, job handmodel.Job) error {
	statsJSON, err := json.Marshal(job.Statistics)
	if err != nil {
		return fmt.Errorf("marshal statistics: %w", err)
	}
	_, err = r.db.ExecContext(ctx, `
		INSERT INTO jobs (job_id, status, created_at, updated_at, ocr_processed, ocr_total, statistics_json, fail_reason)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		job.JobID, string(job.Status), job.CreatedAt.UTC().Format(time.RFC3339Nano), job.UpdatedAt.UTC().Format(time.RFC3339Nano),
		job.OCRProcessed, job.OCRTotal, string(statsJSON), job.FailReason)
	if err != nil {
		return fmt.Errorf("insert job %q: %w", job.JobID, err)
	}
	return nil
}

func (r *SQLiteRepository) GetJob(ctx context.Context, jobID string) (handmodel.Job, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT job_id, status, created_at, updated_at, ocr_processed, ocr_total, statistics_json, fail_reason
		FROM jobs WHERE job_id = ?`, jobID)
	job, err := scanJob(row)
	if err == sql.ErrNoRows {
		return handmodel.Job{}, ErrNotFound
	}
	if err != nil {
		return handmodel.Job{}, fmt.Errorf("get job %q: %w", jobID, err)
	}
	return job, nil
}

func (r *SQLiteRepository) ListJobs(ctx context.Context) ([]handmodel.Job, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT job_id, status, created_at, updated_at, ocr_processed, ocr_total, statistics_json, fail_reason
		FROM jobs ORDER BY job_id`)
	if err != nil {
		return nil, fmt.Errorf("list jobs: %w", err)
	}
	defer rows.Close()

	var out []handmodel.Job
	for rows.Next() {
		job, err := scanJob(rows)
		if err != nil {
			return nil, fmt.Errorf("scan job: %w", err)
		}
		out = append(out, job)
	}
	return out, rows.Err()
}

func (r *SQLiteRepository) UpdateJob(ctx context.Context, job handmodel.Job) error {
	statsJSON, err := json.Marshal(job.Statistics)
	if err != nil {
		return fmt.Errorf("marshal statistics: %w", err)
	}
	res, err := r.db.ExecContext(ctx, `
		UPDATE jobs SET status = ?, updated_at = ?, ocr_processed = ?, ocr_total = ?, statistics_json = ?, fail_reason = ?
		WHERE job_id = ?`,
		string(job.Status), job.UpdatedAt.UTC().Format(time.RFC3339Nano), job.OCRProcessed, job.OCRTotal, string(statsJSON), job.FailReason, job.JobID)
	if err != nil {
		return fmt.Errorf("update job %q: %w", job.JobID, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *SQLiteRepository) AppendLog(ctx context.Context, jobID string, entry handmodel.LogEntry) error {
	extraJSON, err := json.Marshal(entry.Extra)
	if err != nil {
		return fmt.Errorf("marshal log extra: %w", err)
	}
	_, err = r.db.ExecContext(ctx, `
		INSERT INTO job_logs (job_id, timestamp, level, message, extra_json) VALUES (?, ?, ?, ?, ?)`,
		jobID, entry.Timestamp.UTC().Format(time.RFC3339Nano), entry.Level, entry.Message, string(extraJSON))
	if err != nil {
		return fmt.Errorf("append log for job %q: %w", jobID, err)
	}
	return nil
}

func (r *SQLiteRepository) ListLogs(ctx context.Context, jobID string) ([]handmodel.LogEntry, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT timestamp, level, message, extra_json FROM job_logs WHERE job_id = ? ORDER BY id`, jobID)
	if err != nil {
		return nil, fmt.Errorf("list logs for job %q: %w", jobID, err)
	}
	defer rows.Close()

	var out []handmodel.LogEntry
	for rows.Next() {
		var ts, extraJSON string
		var entry handmodel.LogEntry
		if err := rows.Scan(&ts, &entry.Level, &entry.Message, &extraJSON); err != nil {
			return nil, fmt.Errorf("scan log: %w", err)
		}
		entry.Timestamp, err = time.Parse(time.RFC3339Nano, ts)
		if err != nil {
			return nil, fmt.Errorf("parse log timestamp: %w", err)
		}
		if err := json.Unmarshal([]byte(extraJSON), &entry.Extra); err != nil {
			return nil, fmt.Errorf("unmarshal log extra: %w", err)
		}
		out = append(out, entry)
	}
	return out, rows.Err()
}

func (r *SQLiteRepository) SaveScreenshotOutcome(ctx context.Context, jobID string, shot handmodel.Screenshot) error {
	ocr1JSON, err := nullableJSON(shot.OCR1)
	if err != nil {
		return fmt.Errorf("marshal ocr1: %w", err)
	}
	ocr2JSON, err := nullableJSON(shot.OCR2)
	if err != nil {
		return fmt.Errorf("marshal ocr2: %w", err)
	}
	_, err = r.db.ExecContext(ctx, `
		INSERT INTO job_screenshots (job_id, screenshot_id, image_ref, captured_at, ocr1_json, ocr1_retry_count, ocr2_json, matched_hand_id, discard_reason)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(job_id, screenshot_id) DO UPDATE SET
			image_ref = excluded.image_ref, captured_at = excluded.captured_at,
			ocr1_json = excluded.ocr1_json, ocr1_retry_count = excluded.ocr1_retry_count,
			ocr2_json = excluded.ocr2_json, matched_hand_id = excluded.matched_hand_id,
			discard_reason = excluded.discard_reason`,
		jobID, shot.ScreenshotID, shot.ImageRef, shot.CapturedAt.UTC().Format(time.RFC3339Nano),
		ocr1JSON, shot.OCR1RetryCount, ocr2JSON, shot.MatchedHandID, shot.DiscardReason)
	if err != nil {
		return fmt.Errorf("save screenshot outcome %q/%q: %w", jobID, shot.ScreenshotID, err)
	}
	return nil
}

func (r *SQLiteRepository) ListScreenshotOutcomes(ctx context.Context, jobID string) ([]handmodel.Screenshot, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT screenshot_id, image_ref, captured_at, ocr1_json, ocr1_retry_count, ocr2_json, matched_hand_id, discard_reason
		FROM job_screenshots WHERE job_id = ? ORDER BY screenshot_id`, jobID)
	if err != nil {
		return nil, fmt.Errorf("list screenshot outcomes for job %q: %w", jobID, err)
	}
	defer rows.Close()

	var out []handmodel.Screenshot
	for rows.Next() {
		var s handmodel.Screenshot
		var capturedAt string
		var ocr1JSON, ocr2JSON sql.NullString
		if err := rows.Scan(&s.ScreenshotID, &s.ImageRef, &capturedAt, &ocr1JSON, &s.OCR1RetryCount, &ocr2JSON, &s.MatchedHandID, &s.DiscardReason); err != nil {
			return nil, fmt.Errorf("scan screenshot outcome: %w", err)
		}
		s.CapturedAt, err = time.Parse(time.RFC3339Nano, capturedAt)
		if err != nil {
			return nil, fmt.Errorf("parse captured_at: %w", err)
		}
		if ocr1JSON.Valid {
			var o handmodel.OCR1Result
			if err := json.Unmarshal([]byte(ocr1JSON.String), &o); err != nil {
				return nil, fmt.Errorf("unmarshal ocr1: %w", err)
			}
			s.OCR1 = &o
		}
		if ocr2JSON.Valid {
			var o handmodel.OCR2Result
			if err := json.Unmarshal([]byte(ocr2JSON.String), &o); err != nil {
				return nil, fmt.Errorf("unmarshal ocr2: %w", err)
			}
			s.OCR2 = &o
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

func (r *SQLiteRepository) SaveFileOutcome(ctx context.Context, jobID string, outcome handmodel.FileOutcome) error {
	residualJSON, err := json.Marshal(outcome.ResidualAnonIDs)
	if err != nil {
		return fmt.Errorf("marshal residual anon ids: %w", err)
	}
	_, err = r.db.ExecContext(ctx, `
		INSERT INTO job_file_outcomes (job_id, table_name, clean, output_filename, residual_anon_ids)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(job_id, table_name) DO UPDATE SET
			clean = excluded.clean, output_filename = excluded.output_filename, residual_anon_ids = excluded.residual_anon_ids`,
		jobID, outcome.TableName, boolToInt(outcome.Clean), outcome.OutputFilename, string(residualJSON))
	if err != nil {
		return fmt.Errorf("save file outcome %q/%q: %w", jobID, outcome.TableName, err)
	}
	return nil
}

func (r *SQLiteRepository) ListFileOutcomes(ctx context.Context, jobID string) ([]handmodel.FileOutcome, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT table_name, clean, output_filename, residual_anon_ids FROM job_file_outcomes WHERE job_id = ? ORDER BY table_name`, jobID)
	if err != nil {
		return nil, fmt.Errorf("list file outcomes for job %q: %w", jobID, err)
	}
	defer rows.Close()

	var out []handmodel.FileOutcome
	for rows.Next() {
		var o handmodel.FileOutcome
		var clean int
		var residualJSON string
		if err := rows.Scan(&o.TableName, &clean, &o.OutputFilename, &residualJSON); err != nil {
			return nil, fmt.Errorf("scan file outcome: %w", err)
		}
		o.Clean = clean != 0
		if err := json.Unmarshal([]byte(residualJSON), &o.ResidualAnonIDs); err != nil {
			return nil, fmt.Errorf("unmarshal residual anon ids: %w", err)
		}
		out = append(out, o)
	}
	return out, rows.Err()
}

// BeginReprocess runs as a single transaction: the job row's status is reset
// and its screenshot/file-outcome rows are deleted together, or neither
// change lands.
func (r *SQLiteRepository) BeginReprocess(ctx context.Context, jobID string) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin reprocess tx: %w", err)
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx, `
		UPDATE jobs SET status = ?, fail_reason = '', statistics_json = '{}', updated_at = ?
		WHERE job_id = ?`, string(handmodel.JobProcessing), time.Now().UTC().Format(time.RFC3339Nano), jobID)
	if err != nil {
		return fmt.Errorf("reset job %q: %w", jobID, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if n == 0 {
		return ErrNotFound
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM job_screenshots WHERE job_id = ?`, jobID); err != nil {
		return fmt.Errorf("clear screenshots for job %q: %w", jobID, err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM job_file_outcomes WHERE job_id = ?`, jobID); err != nil {
		return fmt.Errorf("clear file outcomes for job %q: %w", jobID, err)
	}

	return tx.Commit()
}

func (r *SQLiteRepository) DeleteJob(ctx context.Context, jobID string) error {
	_, err := r.db.ExecContext(ctx, `DELETE FROM jobs WHERE job_id = ?`, jobID)
	if err != nil {
		return fmt.Errorf("delete job %q: %w", jobID, err)
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanJob(row rowScanner) (handmodel.Job, error) {
	var job handmodel.Job
	var status, createdAt, updatedAt, statsJSON string
	if err := row.Scan(&job.JobID, &status, &createdAt, &updatedAt, &job.OCRProcessed, &job.OCRTotal, &statsJSON, &job.FailReason); err != nil {
		return handmodel.Job{}, err
	}
	job.Status = handmodel.JobStatus(status)
	var err error
	job.CreatedAt, err = time.Parse(time.RFC3339Nano, createdAt)
	if err != nil {
		return handmodel.Job{}, fmt.Errorf("parse created_at: %w", err)
	}
	job.UpdatedAt, err = time.Parse(time.RFC3339Nano, updatedAt)
	if err != nil {
		return handmodel.Job{}, fmt.Errorf("parse updated_at: %w", err)
	}
	if err := json.Unmarshal([]byte(statsJSON), &job.Statistics); err != nil {
		return handmodel.Job{}, fmt.Errorf("unmarshal statistics: %w", err)
	}
	return job, nil
}

func nullableJSON(v any) (any, error) {
	switch val := v.(type) {
	case *handmodel.OCR1Result:
		if val == nil {
			return nil, nil
		}
	case *handmodel.OCR2Result:
		if val == nil {
			return nil, nil
		}
	}
	b, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	return string(b), nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
