// Package pipeline wires the ten phases — Parse, OCR1, Match, Discard
// unmatched, OCR2, Map, Rewrite, Validate, Package, persist — into one
// orchestrator that runs them in strict order for a single job, with
// bounded parallel fan-out within a phase and a barrier between phases.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/davecgh/go-spew/spew"
	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/riverbend/handmask/internal/config"
	"github.com/riverbend/handmask/internal/debugsnap"
	"github.com/riverbend/handmask/internal/handmodel"
	"github.com/riverbend/handmask/internal/handparse"
	"github.com/riverbend/handmask/internal/jobstats"
	"github.com/riverbend/handmask/internal/jobstore"
	"github.com/riverbend/handmask/internal/mapper"
	"github.com/riverbend/handmask/internal/matcher"
	"github.com/riverbend/handmask/internal/ocrstage"
	"github.com/riverbend/handmask/internal/packager"
	"github.com/riverbend/handmask/internal/rewrite"
	"github.com/riverbend/handmask/internal/tablekey"
	"github.com/riverbend/handmask/internal/validate"
	"github.com/riverbend/handmask/internal/vision"
)

// ReasonCancelled is the FailReason recorded when a job's context is
// cancelled mid-run.
const ReasonCancelled = "CANCELLED"

// InputFile is one raw hand-history file as submitted to a job.
type InputFile struct {
	Name string
	Text string
}

// Input is everything one job run needs: the raw hand-history files and
// the screenshots to correlate them against. Screenshot.OCR1/OCR2 must be
// nil on input — the orchestrator populates them.
type Input struct {
	Files       []InputFile
	Screenshots []handmodel.Screenshot
}

// Orchestrator runs jobs against a Repository, a vision.Client, and a
// tuning Config. DebugDir is the well-known directory debug snapshots are
// written under; OutputDir is where the resolved/fallado archives land —
// there is no download endpoint in scope (no net/http server), so a
// finished archive on disk under OutputDir is the interface.
type Orchestrator struct {
	Repo      jobstore.Repository
	Vision    vision.Client
	Config    config.Config
	DebugDir  string
	OutputDir string
}

// New builds an Orchestrator.
func New(repo jobstore.Repository, visionClient vision.Client, cfg config.Config, debugDir, outputDir string) *Orchestrator {
	return &Orchestrator{Repo: repo, Vision: visionClient, Config: cfg, DebugDir: debugDir, OutputDir: outputDir}
}

type logBuffer struct {
	mu        sync.Mutex
	entries   []handmodel.LogEntry
	truncated bool
}

// add is safe for concurrent use — the per-table rewrite/validate fan-out
// in runPhases logs from multiple goroutines at once.
func (lb *logBuffer) add(level, msg string, extra map[string]string) {
	lb.mu.Lock()
	defer lb.mu.Unlock()
	lb.entries = append(lb.entries, handmodel.LogEntry{Timestamp: time.Now().UTC(), Level: level, Message: msg, Extra: extra})
}

// flush appends everything buffered to the repository and clears the
// buffer. A write failure sets truncated rather than panicking — a lost
// log page must never fail the job itself.
func (lb *logBuffer) flush(ctx context.Context, repo jobstore.Repository, jobID string) {
	lb.mu.Lock()
	entries := lb.entries
	lb.entries = nil
	lb.mu.Unlock()
	for _, e := range entries {
		if err := repo.AppendLog(ctx, jobID, e); err != nil {
			slog.Error("pipeline: log flush failed", "job", jobID, "error", err)
			lb.mu.Lock()
			lb.truncated = true
			lb.mu.Unlock()
			break
		}
	}
}

// Run executes every phase for jobID in order, persisting progress and
// results as it goes, and always emits a debug snapshot on the terminal
// transition (success, failure, or cancellation).
func (o *Orchestrator) Run(ctx context.Context, jobID string, input Input) error {
	now := time.Now().UTC()
	job := handmodel.Job{JobID: jobID, Status: handmodel.JobInitialized, CreatedAt: now, UpdatedAt: now}
	if err := o.Repo.CreateJob(ctx, job); err != nil {
		return fmt.Errorf("pipeline: create job %q: %w", jobID, err)
	}

	log := &logBuffer{}
	stats := jobstats.New()
	job.Status = handmodel.JobProcessing
	job.UpdatedAt = time.Now().UTC()
	if err := o.Repo.UpdateJob(ctx, job); err != nil {
		return fmt.Errorf("pipeline: mark job %q processing: %w", jobID, err)
	}

	finalErr := o.runPhases(ctx, jobID, input, &job, log, stats)

	job.UpdatedAt = time.Now().UTC()
	job.Statistics = stats.Compute()
	if finalErr != nil {
		job.Status = handmodel.JobFailed
		if errors.Is(finalErr, context.Canceled) {
			job.FailReason = ReasonCancelled
		} else {
			job.FailReason = finalErr.Error()
		}
		log.add("CRITICAL", "job failed", map[string]string{"error": finalErr.Error()})
	} else {
		job.Status = handmodel.JobCompleted
	}
	log.flush(ctx, o.Repo, jobID)
	if err := o.Repo.UpdateJob(ctx, job); err != nil {
		slog.Error("pipeline: final job update failed", "job", jobID, "error", err)
	}

	o.emitDebugSnapshot(ctx, jobID, job, log.truncated)

	return finalErr
}

func (o *Orchestrator) emitDebugSnapshot(ctx context.Context, jobID string, job handmodel.Job, truncated bool) {
	files, err := o.Repo.ListFileOutcomes(ctx, jobID)
	if err != nil {
		slog.Error("pipeline: list file outcomes for snapshot failed", "job", jobID, "error", err)
	}
	shots, err := o.Repo.ListScreenshotOutcomes(ctx, jobID)
	if err != nil {
		slog.Error("pipeline: list screenshot outcomes for snapshot failed", "job", jobID, "error", err)
	}
	logs, err := o.Repo.ListLogs(ctx, jobID)
	if err != nil {
		slog.Error("pipeline: list logs for snapshot failed", "job", jobID, "error", err)
	}

	var archiveBytes int64
	if o.OutputDir != "" {
		for _, kind := range []string{"resolved", "fallado"} {
			path := filepath.Join(o.OutputDir, fmt.Sprintf("job_%s_%s.zip", jobID, kind))
			if info, statErr := os.Stat(path); statErr == nil {
				archiveBytes += info.Size()
			}
		}
	}

	snap := debugsnap.Build(job, files, shots, logs, truncated, archiveBytes)
	if _, err := debugsnap.Write(o.DebugDir, snap); err != nil {
		slog.Error("pipeline: debug snapshot write failed", "job", jobID, "error", err)
	}
}

// runPhases runs Parse through Package in order, returning the first fatal
// error. Everything short of a fatal error (malformed hand, OCR failure,
// rejected match, validator failure) is handled as data per the error
// policy and does not abort the run.
func (o *Orchestrator) runPhases(ctx context.Context, jobID string, input Input, job *handmodel.Job, log *logBuffer, stats *jobstats.Accumulator) error {
	// Phase 1: Parse.
	hands, err := o.phaseParse(input.Files, log, stats)
	if err != nil {
		return err
	}
	log.flush(ctx, o.Repo, jobID)

	// Phase 2: OCR1 (includes its own fixed-delay retry internally, so
	// there is no separate "OCR1 retry" scheduling step here — a second
	// attempt already happens before Match ever sees the screenshot).
	shotPtrs := toPointers(input.Screenshots)
	stage := ocrstage.New(o.Vision, o.Config)
	job.OCRTotal = len(shotPtrs)
	onProgress := func(processed, total int) {
		job.OCRProcessed = processed
		_ = o.Repo.UpdateJob(ctx, *job)
	}
	if err := stage.RunPhase1(ctx, shotPtrs, onProgress); err != nil {
		return fmt.Errorf("pipeline: ocr phase 1: %w", err)
	}
	for _, s := range shotPtrs {
		stats.FeedScreenshotSeen()
		if s.OCR1RetryCount > 0 {
			stats.FeedOCR1Retry()
		}
	}
	log.flush(ctx, o.Repo, jobID)

	// Phase 3: Match.
	screenshots := fromPointers(shotPtrs)
	matches, rejections := matcher.Match(hands, screenshots, o.Config)
	for _, r := range rejections {
		log.add("WARN", "match rejected", map[string]string{
			"hand": r.HandID, "screenshot": r.ScreenshotID, "source": string(r.Source), "gate": r.Gate, "reason": r.Reason,
		})
	}
	byScreenshotID := indexScreenshotsByID(shotPtrs)
	for _, m := range matches {
		if shot, ok := byScreenshotID[m.ScreenshotID]; ok {
			shot.MatchedHandID = m.HandID
		}
	}

	// Phase 4: Discard unmatched — anything without a MatchedHandID never
	// reaches phase 2 OCR (the cost gate).
	var ocr2Targets []*handmodel.Screenshot
	for _, s := range shotPtrs {
		if s.MatchedHandID == "" {
			if s.DiscardReason == "" {
				s.DiscardReason = "no accepted match"
			}
			continue
		}
		ocr2Targets = append(ocr2Targets, s)
	}

	// Phase 5: OCR2, cost-gated to matched screenshots only.
	if len(ocr2Targets) > 0 {
		if err := stage.RunPhase2(ctx, ocr2Targets, nil); err != nil && !errors.Is(err, ocrstage.ErrCostGateViolation) {
			return fmt.Errorf("pipeline: ocr phase 2: %w", err)
		}
	}
	for _, s := range ocr2Targets {
		if s.OCR2 == nil {
			stats.FeedOCR2SchemaError()
			s.MatchedHandID = ""
			s.DiscardReason = "ocr2 schema invalid or failed"
		}
	}

	// Re-apply acceptance gates now that phase-2 data exists, pulling back
	// any provisional match that no longer qualifies.
	for _, s := range ocr2Targets {
		if s.MatchedHandID == "" {
			continue
		}
		hand, ok := handByID(hands, s.MatchedHandID)
		if !ok {
			continue
		}
		if gate, reason, passed := matcher.AcceptanceGates(hand, *s, o.Config); !passed {
			log.add("WARN", "match rejected after ocr2", map[string]string{
				"hand": hand.HandID, "screenshot": s.ScreenshotID, "gate": gate, "reason": reason,
			})
			s.MatchedHandID = ""
			s.DiscardReason = fmt.Sprintf("gate %s failed after ocr2: %s", gate, reason)
		}
	}
	for _, s := range ocr2Targets {
		if s.MatchedHandID != "" {
			stats.FeedScreenshotMatched()
		}
	}

	for _, s := range shotPtrs {
		if err := o.Repo.SaveScreenshotOutcome(ctx, jobID, *s); err != nil {
			return fmt.Errorf("pipeline: save screenshot outcome %q: %w", s.ScreenshotID, err)
		}
	}
	log.flush(ctx, o.Repo, jobID)

	// Phase 6: Map, per matched hand, then aggregate per table.
	var mappingResults []mapper.HandMappingResult
	for _, s := range shotPtrs {
		if s.MatchedHandID == "" || s.OCR2 == nil {
			continue
		}
		hand, ok := handByID(hands, s.MatchedHandID)
		if !ok {
			continue
		}
		mapping, rolesPopulated, ok := mapper.MapHand(hand, *s.OCR2)
		if !ok {
			stats.FeedMappingDuplicate()
			continue
		}
		mappingResults = append(mappingResults, mapper.HandMappingResult{
			TableName: hand.TableName, ScreenshotID: s.ScreenshotID, Mapping: mapping, RolesPopulated: rolesPopulated,
		})
	}
	tableMappings, conflicts := mapper.Aggregate(mappingResults)
	for range conflicts {
		stats.FeedMappingConflict()
	}

	// Phase 7-9: Rewrite, Validate, classify — fanned out per table with
	// errgroup, since tables are fully independent once mappings exist.
	// Grouped by the same normalized key mapper.Aggregate used, so two
	// hands whose table names only differ by width/case/whitespace still
	// land in one TableOutput rather than two.
	tableGroups := groupHandsByTable(hands)
	tableKeys := make([]string, 0, len(tableGroups))
	for key := range tableGroups {
		tableKeys = append(tableKeys, key)
	}
	sort.Strings(tableKeys)

	outputs := make([]packager.TableOutput, len(tableKeys))
	g, gctx := errgroup.WithContext(ctx)
	for i, key := range tableKeys {
		i, key := i, key
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			grp := tableGroups[key]
			outputs[i] = o.rewriteAndValidateTable(grp.CanonicalName, grp.Hands, tableMappings, stats, log)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return fmt.Errorf("pipeline: rewrite/validate: %w", err)
	}

	for range hands {
		stats.FeedHandParsed()
	}
	for i, out := range outputs {
		handsInTable := len(tableGroups[tableKeys[i]].Hands)
		for i := 0; i < handsInTable; i++ {
			stats.FeedHandOutcome(out.Clean)
		}
	}

	// Phase 10: Package.
	result, err := packager.Package(outputs)
	if err != nil {
		return fmt.Errorf("pipeline: package: %w", err)
	}
	for _, outcome := range result.Outcomes {
		if err := o.Repo.SaveFileOutcome(ctx, jobID, outcome); err != nil {
			return fmt.Errorf("pipeline: save file outcome %q: %w", outcome.TableName, err)
		}
	}
	if err := o.writeArchives(jobID, result, log); err != nil {
		return fmt.Errorf("pipeline: write archives: %w", err)
	}
	log.flush(ctx, o.Repo, jobID)

	return nil
}

// writeArchives lands the packager's two archives under OutputDir, skipping
// whichever of the two is empty (e.g. every table was clean, so there is no
// fallado archive). There is no download endpoint in scope, so the archive
// landing on disk under a well-known name is the whole interface.
func (o *Orchestrator) writeArchives(jobID string, result packager.Result, log *logBuffer) error {
	if o.OutputDir == "" {
		return nil
	}
	if err := os.MkdirAll(o.OutputDir, 0o755); err != nil {
		return fmt.Errorf("create output dir %q: %w", o.OutputDir, err)
	}
	if len(result.ResolvedArchive) > 0 {
		path := filepath.Join(o.OutputDir, fmt.Sprintf("job_%s_resolved.zip", jobID))
		if err := os.WriteFile(path, result.ResolvedArchive, 0o644); err != nil {
			return fmt.Errorf("write resolved archive %q: %w", path, err)
		}
		log.add("INFO", "resolved archive written", map[string]string{"path": path})
	}
	if len(result.FalladoArchive) > 0 {
		path := filepath.Join(o.OutputDir, fmt.Sprintf("job_%s_fallado.zip", jobID))
		if err := os.WriteFile(path, result.FalladoArchive, 0o644); err != nil {
			return fmt.Errorf("write fallado archive %q: %w", path, err)
		}
		log.add("INFO", "fallado archive written", map[string]string{"path": path})
	}
	return nil
}

func (o *Orchestrator) phaseParse(files []InputFile, log *logBuffer, stats *jobstats.Accumulator) ([]handmodel.Hand, error) {
	var hands []handmodel.Hand
	for _, f := range files {
		result, err := handparse.Parse(f.Text)
		if err != nil {
			return nil, fmt.Errorf("pipeline: parse %q: %w", f.Name, err)
		}
		for _, a := range result.Anomalies {
			log.add("WARN", "hand parse anomaly", map[string]string{"file": f.Name, "reason": a.Reason})
		}
		hands = append(hands, result.Hands...)
	}
	return hands, nil
}

// rewriteAndValidateTable rewrites every hand at one table using that
// table's aggregated mapping (if any), concatenates the table's original
// and rewritten text, and validates the result.
func (o *Orchestrator) rewriteAndValidateTable(tableName string, hands []handmodel.Hand, tableMappings map[string]handmodel.TableMapping, stats *jobstats.Accumulator, log *logBuffer) packager.TableOutput {
	key := tablekey.Normalize(tableName)
	mapping := tableMappings[key].Names

	var originalParts, rewrittenParts []string
	var residual []string
	heroRealName := ""
	if mapping != nil {
		heroRealName = mapping[handmodel.HeroID]
	}

	for _, h := range hands {
		originalParts = append(originalParts, h.RawText)
		rewritten := h.RawText
		if mapping != nil {
			rewritten = rewrite.Rewrite(h.RawText, mapping)
		}
		rewrittenParts = append(rewrittenParts, rewritten)
		residual = append(residual, rewrite.ResidualAnonIDs(rewritten)...)
	}

	original := strings.Join(originalParts, "\n\n")
	rewritten := strings.Join(rewrittenParts, "\n\n")
	report := validate.Validate(original, rewritten, heroRealName)
	if report.Diagnostics != nil {
		log.add("WARN", "table validation failed a check", map[string]string{
			"table": tableName, "error": report.Diagnostics.Error(),
		})
	}

	return packager.TableOutput{
		TableName:       tableName,
		Text:            rewritten,
		Clean:           report.Clean,
		Validated:       true,
		ResidualAnonIDs: dedupStrings(residual),
	}
}

func toPointers(shots []handmodel.Screenshot) []*handmodel.Screenshot {
	out := make([]*handmodel.Screenshot, len(shots))
	for i := range shots {
		s := shots[i]
		out[i] = &s
	}
	return out
}

func fromPointers(ptrs []*handmodel.Screenshot) []handmodel.Screenshot {
	out := make([]handmodel.Screenshot, len(ptrs))
	for i, p := range ptrs {
		out[i] = *p
	}
	return out
}

func indexScreenshotsByID(shots []*handmodel.Screenshot) map[string]*handmodel.Screenshot {
	m := make(map[string]*handmodel.Screenshot, len(shots))
	for _, s := range shots {
		m[s.ScreenshotID] = s
	}
	return m
}

func handByID(hands []handmodel.Hand, handID string) (handmodel.Hand, bool) {
	for _, h := range hands {
		if h.HandID == handID {
			return h, true
		}
	}
	return handmodel.Hand{}, false
}

// tableGroup accumulates every hand belonging to one normalized table key,
// keeping the first raw table name seen as the canonical display name —
// the same first-seen tie-break mapper.Aggregate uses for conflicts.
type tableGroup struct {
	CanonicalName string
	Hands         []handmodel.Hand
}

// groupHandsByTable buckets hands by tablekey.Normalize(h.TableName), the
// same key mapper.Aggregate groups mappings by, so a normalization-variant
// table name never produces a second, separate TableOutput.
func groupHandsByTable(hands []handmodel.Hand) map[string]*tableGroup {
	m := make(map[string]*tableGroup)
	for _, h := range hands {
		key := tablekey.Normalize(h.TableName)
		grp, ok := m[key]
		if !ok {
			grp = &tableGroup{CanonicalName: h.TableName}
			m[key] = grp
		}
		grp.Hands = append(grp.Hands, h)
	}
	return m
}

func dedupStrings(in []string) []string {
	if len(in) == 0 {
		return nil
	}
	seen := make(map[string]bool, len(in))
	out := make([]string, 0, len(in))
	for _, s := range in {
		if !seen[s] {
			seen[s] = true
			out = append(out, s)
		}
	}
	sort.Strings(out)
	return out
}

// recoverCritical is called by the orchestrator's entrypoint wrapper (see
// RunRecovering), the single catch-all boundary in the whole pipeline,
// with the value that wrapper recovered: the panic is logged CRITICAL with
// a spew.Sdump of the offending value, and the wrapper then converts it
// into a normal FAILED job rather than crashing the process.
func recoverCritical(jobID string, log *logBuffer, r any) {
	slog.Error("pipeline: unexpected panic recovered at orchestrator boundary", "job", jobID, "value", spew.Sdump(r))
	log.add("CRITICAL", "unexpected panic recovered", map[string]string{"value": spew.Sdump(r)})
}

// RunRecovering wraps Run with the single permitted catch-all boundary: an
// unexpected panic raised on the goroutine running Run is caught here,
// logged CRITICAL, and turned into a FAILED job instead of taking down the
// process. Panics inside ocrstage's per-screenshot worker goroutines are
// not caught here.
func (o *Orchestrator) RunRecovering(ctx context.Context, jobID string, input Input) (err error) {
	log := &logBuffer{}
	defer func() {
		if r := recover(); r != nil {
			recoverCritical(jobID, log, r)
			log.flush(ctx, o.Repo, jobID)
			job, getErr := o.Repo.GetJob(ctx, jobID)
			if getErr == nil {
				job.Status = handmodel.JobFailed
				job.FailReason = "internal error: " + uuid.NewString()
				_ = o.Repo.UpdateJob(ctx, job)
			}
			err = fmt.Errorf("pipeline: recovered panic in job %q", jobID)
		}
	}()
	return o.Run(ctx, jobID, input)
}
