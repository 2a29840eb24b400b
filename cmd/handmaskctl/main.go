// Command handmaskctl is the CLI entrypoint: point it at a directory of
// hand-history text files and operator-client screenshots and it runs the
// de-anonymization pipeline, landing resolved/fallado archives and a debug
// snapshot on disk.
package main

import (
	"context"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"runtime"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/google/uuid"

	"github.com/riverbend/handmask/internal/applog"
	"github.com/riverbend/handmask/internal/config"
	"github.com/riverbend/handmask/internal/handmodel"
	"github.com/riverbend/handmask/internal/intake"
	"github.com/riverbend/handmask/internal/jobstore"
	"github.com/riverbend/handmask/internal/pipeline"
	"github.com/riverbend/handmask/internal/vision"
)

var (
	version   = "dev"
	commit    = "local"
	buildDate = "unknown"
)

// watchQuietPeriod is how long the watcher waits after the last observed
// file before it considers a batch complete and submits a job.
const watchQuietPeriod = 2 * time.Second

func main() {
	debugFlag := flag.Bool("debug", false, "enable debug logging")
	inputDir := flag.String("input", "", "directory of hand-history and screenshot files to process (required)")
	outputDir := flag.String("output", "", "directory to write resolved/fallado archives (defaults to the OS data directory)")
	debugDir := flag.String("debug-dir", "", "directory to write debug job snapshots (defaults to the OS data directory)")
	dbPath := flag.String("db", "", "path to a SQLite job store database (defaults to in-memory, lost on exit)")
	watch := flag.Bool("watch", false, "keep running, submitting a new job whenever input quiets down after new files arrive")
	visionEndpoint := flag.String("vision-endpoint", "", "base URL of the vision OCR service")
	visionAPIKey := flag.String("vision-api-key", os.Getenv("HANDMASK_VISION_API_KEY"), "API key for the vision OCR service (defaults to $HANDMASK_VISION_API_KEY)")
	flag.Parse()

	debug := *debugFlag || os.Getenv("HANDMASK_DEBUG") == "1"
	applog.Init(debug)

	slog.Info("starting", "version", version, "commit", commit, "buildDate", buildDate, "debug", debug)

	if *inputDir == "" {
		slog.Error("missing required -input directory")
		os.Exit(2)
	}
	if *outputDir == "" {
		*outputDir = resolveAppDir("archives")
	}
	if *debugDir == "" {
		*debugDir = resolveAppDir("debug")
	}

	repo := openRepository(*dbPath)
	visionClient, err := newVisionClient(*visionEndpoint, *visionAPIKey)
	if err != nil {
		slog.Error("vision client unavailable", "error", err)
		os.Exit(1)
	}

	orch := pipeline.New(repo, visionClient, config.Default(), *debugDir, *outputDir)

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if *watch {
		runWatch(ctx, orch, *inputDir)
		return
	}
	runOnce(ctx, orch, *inputDir)
}

// newVisionClient builds the OCR capability. An empty endpoint means no
// live vision service is configured, which is only useful for exercising
// the pipeline's non-OCR phases against a deterministic mock — every real
// screenshot will simply fail OCR1 and be discarded unmatched.
func newVisionClient(endpoint, apiKey string) (vision.Client, error) {
	if endpoint == "" {
		slog.Warn("no -vision-endpoint configured, running against a no-op mock vision client")
		return vision.NewMockClient(), nil
	}
	return vision.NewHTTPClient(endpoint, apiKey)
}

func openRepository(dbPath string) jobstore.Repository {
	if dbPath == "" {
		return jobstore.NewMemoryRepository()
	}
	repo, err := jobstore.NewSQLiteRepository(dbPath)
	if err != nil {
		slog.Warn("sqlite job store init failed, falling back to memory", "path", dbPath, "error", err)
		return jobstore.NewMemoryRepository()
	}
	slog.Info("job store", "path", dbPath)
	return repo
}

func runOnce(ctx context.Context, orch *pipeline.Orchestrator, dir string) {
	input, err := collectInput(dir)
	if err != nil {
		slog.Error("failed to read input directory", "dir", dir, "error", err)
		os.Exit(1)
	}
	if len(input.Files) == 0 {
		slog.Error("no hand-history files found", "dir", dir)
		os.Exit(1)
	}

	jobID := uuid.NewString()
	slog.Info("submitting job", "job", jobID, "hand_history_files", len(input.Files), "screenshots", len(input.Screenshots))
	if err := orch.Run(ctx, jobID, input); err != nil {
		slog.Error("job failed", "job", jobID, "error", err)
		os.Exit(1)
	}
	slog.Info("job completed", "job", jobID)
}

// runWatch tails dir indefinitely, accumulating files into a pending batch
// and submitting a job once watchQuietPeriod has passed with no new
// arrivals — a directory drop of N files gets processed as one job, not N.
func runWatch(ctx context.Context, orch *pipeline.Orchestrator, dir string) {
	var mu sync.Mutex
	pending := pipeline.Input{}
	var timer *time.Timer

	submit := func() {
		mu.Lock()
		batch := pending
		pending = pipeline.Input{}
		mu.Unlock()

		if len(batch.Files) == 0 {
			return
		}
		jobID := uuid.NewString()
		slog.Info("submitting job", "job", jobID, "hand_history_files", len(batch.Files), "screenshots", len(batch.Screenshots))
		if err := orch.Run(ctx, jobID, batch); err != nil {
			slog.Error("job failed", "job", jobID, "error", err)
			return
		}
		slog.Info("job completed", "job", jobID)
	}

	resetTimer := func() {
		if timer != nil {
			timer.Stop()
		}
		timer = time.AfterFunc(watchQuietPeriod, submit)
	}

	w, err := intake.NewDirWatcher(dir, intake.Config{
		HandHistoryExt: []string{".txt"},
		ScreenshotExt:  []string{".png", ".jpg", ".jpeg"},
		OnHandHistoryFile: func(path string) {
			mu.Lock()
			if f, err := readHandHistoryFile(path); err == nil {
				pending.Files = append(pending.Files, f)
			} else {
				slog.Warn("failed to read hand-history file", "path", path, "error", err)
			}
			mu.Unlock()
			resetTimer()
		},
		OnScreenshotFile: func(path string) {
			mu.Lock()
			pending.Screenshots = append(pending.Screenshots, newScreenshot(path))
			mu.Unlock()
			resetTimer()
		},
		OnError: func(err error) {
			slog.Error("watcher error", "error", err)
		},
	})
	if err != nil {
		slog.Error("failed to start watcher", "dir", dir, "error", err)
		os.Exit(1)
	}
	if err := w.Start(); err != nil {
		slog.Error("failed to start watcher", "dir", dir, "error", err)
		os.Exit(1)
	}
	defer w.Stop()

	slog.Info("watching for input", "dir", dir)
	<-ctx.Done()
	if timer != nil {
		timer.Stop()
	}
	submit()
	slog.Info("shutting down")
}

func collectInput(dir string) (pipeline.Input, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return pipeline.Input{}, err
	}

	var input pipeline.Input
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		path := filepath.Join(dir, e.Name())
		switch strings.ToLower(filepath.Ext(path)) {
		case ".txt":
			f, err := readHandHistoryFile(path)
			if err != nil {
				slog.Warn("failed to read hand-history file", "path", path, "error", err)
				continue
			}
			input.Files = append(input.Files, f)
		case ".png", ".jpg", ".jpeg":
			input.Screenshots = append(input.Screenshots, newScreenshot(path))
		}
	}
	return input, nil
}

func readHandHistoryFile(path string) (pipeline.InputFile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return pipeline.InputFile{}, err
	}
	return pipeline.InputFile{Name: filepath.Base(path), Text: string(data)}, nil
}

// newScreenshot builds a Screenshot stub from a file on disk. ScreenshotID
// is the bare filename (stable and human-readable in logs); CapturedAt
// falls back to the file's modification time when no better timestamp
// source exists, matching how the operator client itself names/writes
// screenshots at capture time.
func newScreenshot(path string) handmodel.Screenshot {
	capturedAt := time.Now().UTC()
	if info, err := os.Stat(path); err == nil {
		capturedAt = info.ModTime().UTC()
	}
	return handmodel.Screenshot{
		ScreenshotID: filepath.Base(path),
		ImageRef:     path,
		CapturedAt:   capturedAt,
	}
}

// resolveAppDir mirrors the OS-appropriate data directory convention, one
// subdirectory per artifact kind (archives, debug snapshots).
//
//	Linux:   $XDG_DATA_HOME/handmask/<kind> (defaults to ~/.local/share/handmask/<kind>)
//	Windows: %LOCALAPPDATA%\handmask\<kind>
//	macOS:   ~/Library/Application Support/handmask/<kind>
func resolveAppDir(kind string) string {
	const appName = "handmask"

	base := userDataDir()
	if base == "" {
		if home, err := os.UserHomeDir(); err == nil {
			base = filepath.Join(home, "."+appName)
		} else {
			base = "."
		}
	} else {
		base = filepath.Join(base, appName)
	}

	dir := filepath.Join(base, kind)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		slog.Warn("failed to create app directory, falling back to current directory", "dir", dir, "error", err)
		return filepath.Join(".", kind)
	}
	return dir
}

func userDataDir() string {
	switch runtime.GOOS {
	case "windows":
		if dir := os.Getenv("LOCALAPPDATA"); dir != "" {
			return dir
		}
		if profile := os.Getenv("USERPROFILE"); profile != "" {
			return filepath.Join(profile, "AppData", "Local")
		}
	case "darwin":
		if home, err := os.UserHomeDir(); err == nil {
			return filepath.Join(home, "Library", "Application Support")
		}
	default:
		if dir := os.Getenv("XDG_DATA_HOME"); dir != "" {
			return dir
		}
		if home, err := os.UserHomeDir(); err == nil {
			return filepath.Join(home, ".local", "share")
		}
	}
	return ""
}
