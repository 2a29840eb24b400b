// Package ocrstage drives vision.Client over a batch of screenshots in two
// bounded-concurrency phases. Built on the same worker-pool shape as a
// channel + WaitGroup pool for parallel file parsing, generalized to a
// single semaphore shared across both OCR phases — a dual event-loop,
// one scheduler per phase, is exactly what this package refuses to
// repeat: both phases are plain sequential steps over the same
// semaphore.Weighted, never two separate schedulers.
package ocrstage

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/sethvargo/go-retry"
	"golang.org/x/sync/semaphore"

	"github.com/riverbend/handmask/internal/config"
	"github.com/riverbend/handmask/internal/handmodel"
	"github.com/riverbend/handmask/internal/vision"
)

// ErrCostGateViolation is returned if RunPhase2 is called with a screenshot
// that was never matched to a hand — a programmer error (the orchestrator
// must filter before calling), not a runtime condition. This gate must
// never be crossed: it would double OCR spend on unmatched screenshots.
var ErrCostGateViolation = errors.New("ocrstage: phase 2 invoked on unmatched screenshot")

// ErrSchema marks a phase-2 payload that failed structural validation.
var ErrSchema = errors.New("ocrstage: phase 2 payload failed schema validation")

// ProgressFunc is polled by the orchestrator or an external HTTP layer.
// Calls are serialized and strictly non-decreasing in processed.
type ProgressFunc func(processed, total int)

// Stage drives a vision.Client over a screenshot batch.
type Stage struct {
	client  vision.Client
	sem     *semaphore.Weighted
	cfg     config.Config
	backoff retry.Backoff
}

// New builds a Stage. The semaphore is sized by cfg.OCRConcurrency and is
// the single concurrency bound shared by both phases.
func New(client vision.Client, cfg config.Config) *Stage {
	b := retry.NewConstant(time.Duration(cfg.OCR1RetryDelayMs) * time.Millisecond)
	return &Stage{
		client:  client,
		sem:     semaphore.NewWeighted(int64(cfg.OCRConcurrency)),
		cfg:     cfg,
		backoff: b,
	}
}

// RunPhase1 extracts hand IDs for every screenshot.
func (s *Stage) RunPhase1(ctx context.Context, screenshots []*handmodel.Screenshot, onProgress ProgressFunc) error {
	var progressed int
	var progressMu sync.Mutex
	total := len(screenshots)
	report := func() {
		progressMu.Lock()
		defer progressMu.Unlock()
		progressed++
		if onProgress != nil {
			onProgress(progressed, total)
		}
	}

	var wg sync.WaitGroup
	for _, shot := range screenshots {
		shot := shot
		if err := s.sem.Acquire(ctx, 1); err != nil {
			wg.Wait()
			return err
		}
		wg.Add(1)
		go func() {
			defer s.sem.Release(1)
			defer wg.Done()
			defer report()
			s.runPhase1One(ctx, shot)
		}()
	}
	wg.Wait()
	return ctx.Err()
}

func (s *Stage) runPhase1One(ctx context.Context, shot *handmodel.Screenshot) {
	retries := 0
	attempts := 0
	var handID string
	b := retry.WithMaxRetries(uint64(s.cfg.OCR1MaxRetries), s.backoff)
	err := retry.Do(ctx, b, func(ctx context.Context) error {
		if attempts > 0 {
			retries++
		}
		attempts++
		id, callErr := s.client.ExtractHandID(ctx, shot.ImageRef)
		if callErr != nil {
			if errors.Is(callErr, vision.ErrTransient) || errors.Is(callErr, vision.ErrTimeout) {
				return retry.RetryableError(callErr)
			}
			return callErr
		}
		if id == "" {
			return retry.RetryableError(errors.New("ocrstage: empty hand ID"))
		}
		handID = id
		return nil
	})

	shot.OCR1RetryCount = retries
	if err != nil {
		slog.Warn("ocrstage: phase 1 failed", "screenshot", shot.ScreenshotID, "retries", retries, "error", err)
		shot.OCR1 = nil
		return
	}
	shot.OCR1 = &handmodel.OCR1Result{HandID: handID}
}

// RunPhase2 extracts player names/roles, but only for screenshots already
// anchored by a match, to avoid spending OCR budget on screenshots that
// will never be used. Callers must pre-filter; this is re-asserted here
// defensively.
func (s *Stage) RunPhase2(ctx context.Context, screenshots []*handmodel.Screenshot, onProgress ProgressFunc) error {
	for _, shot := range screenshots {
		if shot.MatchedHandID == "" {
			return ErrCostGateViolation
		}
	}

	var progressed int
	var progressMu sync.Mutex
	total := len(screenshots)
	report := func() {
		progressMu.Lock()
		defer progressMu.Unlock()
		progressed++
		if onProgress != nil {
			onProgress(progressed, total)
		}
	}

	var wg sync.WaitGroup
	for _, shot := range screenshots {
		shot := shot
		if err := s.sem.Acquire(ctx, 1); err != nil {
			wg.Wait()
			return err
		}
		wg.Add(1)
		go func() {
			defer s.sem.Release(1)
			defer wg.Done()
			defer report()
			s.runPhase2One(ctx, shot)
		}()
	}
	wg.Wait()
	return ctx.Err()
}

func (s *Stage) runPhase2One(ctx context.Context, shot *handmodel.Screenshot) {
	payload, err := s.client.ExtractPlayers(ctx, shot.ImageRef)
	if err != nil {
		slog.Warn("ocrstage: phase 2 failed", "screenshot", shot.ScreenshotID, "error", err)
		shot.OCR2 = nil
		return
	}

	if !validSchema(payload) {
		slog.Warn("ocrstage: phase 2 schema invalid", "screenshot", shot.ScreenshotID, "error", ErrSchema)
		shot.OCR2 = nil
		return
	}

	shot.OCR2 = &handmodel.OCR2Result{
		Players:          payload.Players,
		Stacks:           payload.Stacks,
		DealerPlayer:     payload.DealerPlayer,
		SmallBlindPlayer: payload.SmallBlindPlayer,
		BigBlindPlayer:   payload.BigBlindPlayer,
	}
}

// validSchema enforces the Screenshot invariant that a non-empty dealer
// player must also appear in the players list.
func validSchema(p vision.PlayersPayload) bool {
	if p.DealerPlayer == "" {
		return true
	}
	for _, name := range p.Players {
		if name == p.DealerPlayer {
			return true
		}
	}
	return false
}
