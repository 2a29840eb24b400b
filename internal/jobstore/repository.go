// Package jobstore persists Job records, their per-screenshot outcomes, per-
// table file outcomes, and structured log entries across process restarts,
// and exposes the views the status API and debug snapshot need.
package jobstore

import (
	"context"
	"errors"
	"sort"
	"sync"

	"github.com/riverbend/handmask/internal/handmodel"
)

// ErrNotFound is returned when a lookup has no matching job.
var ErrNotFound = errors.New("jobstore: job not found")

// Repository is the storage contract the pipeline orchestrator and the
// status surface depend on. A job transition from a terminal state back to
// PROCESSING (re-process) must atomically clear prior screenshot and file
// outcomes while preserving the job row itself — BeginReprocess is the only
// place that invariant is allowed to be implemented.
type Repository interface {
	CreateJob(ctx context.Context, job handmodel.Job) error
	GetJob(ctx context.Context, jobID string) (handmodel.Job, error)
	ListJobs(ctx context.Context) ([]handmodel.Job, error)
	UpdateJob(ctx context.Context, job handmodel.Job) error

	AppendLog(ctx context.Context, jobID string, entry handmodel.LogEntry) error
	ListLogs(ctx context.Context, jobID string) ([]handmodel.LogEntry, error)

	SaveScreenshotOutcome(ctx context.Context, jobID string, shot handmodel.Screenshot) error
	ListScreenshotOutcomes(ctx context.Context, jobID string) ([]handmodel.Screenshot, error)

	SaveFileOutcome(ctx context.Context, jobID string, outcome handmodel.FileOutcome) error
	ListFileOutcomes(ctx context.Context, jobID string) ([]handmodel.FileOutcome, error)

	// BeginReprocess clears every screenshot and file outcome row recorded
	// for jobID and resets its status to PROCESSING, leaving CreatedAt and
	// JobID untouched. It is a no-op error if the job does not exist.
	BeginReprocess(ctx context.Context, jobID string) error

	DeleteJob(ctx context.Context, jobID string) error
}

// MemoryRepository is a mutex-guarded in-memory Repository, for tests and
// for single-process runs where durability across restarts is not required.
type MemoryRepository struct {
	mu        sync.RWMutex
	jobs      map[string]handmodel.Job
	logs      map[string][]handmodel.LogEntry
	shots     map[string][]handmodel.Screenshot
	outcomes  map[string][]handmodel.FileOutcome
}

// NewMemoryRepository returns an empty MemoryRepository.
func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{
		jobs:     make(map[string]handmodel.Job),
		logs:     make(map[string][]handmodel.LogEntry),
		shots:    make(map[string][]handmodel.Screenshot),
		outcomes: make(map[string][]handmodel.FileOutcome),
	}
}

func (r *MemoryRepository) CreateJob(_ context.Context, job handmodel.Job) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.jobs[job.JobID] = job
	return nil
}

func (r *MemoryRepository) GetJob(_ context.Context, jobID string) (handmodel.Job, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	job, ok := r.jobs[jobID]
	if !ok {
		return handmodel.Job{}, ErrNotFound
	}
	return job, nil
}

func (r *MemoryRepository) ListJobs(_ context.Context) ([]handmodel.Job, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]handmodel.Job, 0, len(r.jobs))
	for _, j := range r.jobs {
		out = append(out, j)
	}
	sort.Slice(out, func(i, k int) bool { return out[i].JobID < out[k].JobID })
	return out, nil
}

func (r *MemoryRepository) UpdateJob(_ context.Context, job handmodel.Job) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.jobs[job.JobID]; !ok {
		return ErrNotFound
	}
	r.jobs[job.JobID] = job
	return nil
}

func (r *MemoryRepository) AppendLog(_ context.Context, jobID string, entry handmodel.LogEntry) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.logs[jobID] = append(r.logs[jobID], entry)
	return nil
}

func (r *MemoryRepository) ListLogs(_ context.Context, jobID string) ([]handmodel.LogEntry, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]handmodel.LogEntry, len(r.logs[jobID]))
	copy(out, r.logs[jobID])
	return out, nil
}

func (r *MemoryRepository) SaveScreenshotOutcome(_ context.Context, jobID string, shot handmodel.Screenshot) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i, s := range r.shots[jobID] {
		if s.ScreenshotID == shot.ScreenshotID {
			r.shots[jobID][i] = shot
			return nil
		}
	}
	r.shots[jobID] = append(r.shots[jobID], shot)
	return nil
}

func (r *MemoryRepository) ListScreenshotOutcomes(_ context.Context, jobID string) ([]handmodel.Screenshot, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]handmodel.Screenshot, len(r.shots[jobID]))
	copy(out, r.shots[jobID])
	return out, nil
}

func (r *MemoryRepository) SaveFileOutcome(_ context.Context, jobID string, outcome handmodel.FileOutcome) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i, o := range r.outcomes[jobID] {
		if o.TableName == outcome.TableName {
			r.outcomes[jobID][i] = outcome
			return nil
		}
	}
	r.outcomes[jobID] = append(r.outcomes[jobID], outcome)
	return nil
}

func (r *MemoryRepository) ListFileOutcomes(_ context.Context, jobID string) ([]handmodel.FileOutcome, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]handmodel.FileOutcome, len(r.outcomes[jobID]))
	copy(out, r.outcomes[jobID])
	return out, nil
}

func (r *MemoryRepository) BeginReprocess(_ context.Context, jobID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	job, ok := r.jobs[jobID]
	if !ok {
		return ErrNotFound
	}
	delete(r.shots, jobID)
	delete(r.outcomes, jobID)
	job.Status = handmodel.JobProcessing
	job.FailReason = ""
	job.Statistics = handmodel.Statistics{}
	r.jobs[jobID] = job
	return nil
}

func (r *MemoryRepository) DeleteJob(_ context.Context, jobID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.jobs, jobID)
	delete(r.logs, jobID)
	delete(r.shots, jobID)
	delete(r.outcomes, jobID)
	return nil
}
