// Package intake watches a local "drop folder" for new hand-history text
// files and new screenshot images, for the CLI and for integration tests.
// It is a convenience on top of the orchestrator, not a pipeline
// dependency: the orchestrator takes file contents and screenshot
// references from its caller, and no pipeline package imports this one.
package intake

import (
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// Config wires the watcher's callbacks. OnHandHistoryFile fires once per
// newly created hand-history file; OnScreenshotFile fires once per newly
// created screenshot image. OnError fires on any fsnotify or filesystem
// error encountered while watching.
type Config struct {
	HandHistoryExt []string // e.g. []string{".txt"}
	ScreenshotExt  []string // e.g. []string{".png", ".jpg", ".jpeg"}

	OnHandHistoryFile func(path string)
	OnScreenshotFile  func(path string)
	OnError           func(err error)
}

// DirWatcher watches one directory (non-recursively) for new files,
// classifying each by extension and dispatching the matching callback.
type DirWatcher struct {
	dir     string
	cfg     Config
	watcher *fsnotify.Watcher
	done    chan struct{}

	mu       sync.Mutex
	seen     map[string]bool
	stopOnce sync.Once
}

// NewDirWatcher creates a watcher over dir. Call Start to begin watching.
func NewDirWatcher(dir string, cfg Config) (*DirWatcher, error) {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("create fsnotify watcher: %w", err)
	}
	return &DirWatcher{
		dir:  filepath.Clean(dir),
		cfg:  cfg,
		watcher: w,
		done: make(chan struct{}),
		seen: make(map[string]bool),
	}, nil
}

// Start begins watching. It first does a one-shot scan of dir's existing
// contents so files already present before the watcher started are not
// silently skipped, then watches for subsequent creates.
func (d *DirWatcher) Start() error {
	slog.Info("intake watcher starting", "dir", d.dir)
	if err := d.watcher.Add(d.dir); err != nil {
		return fmt.Errorf("watch directory %s: %w", d.dir, err)
	}

	matches, err := filepath.Glob(filepath.Join(d.dir, "*"))
	if err != nil {
		return fmt.Errorf("glob existing files in %s: %w", d.dir, err)
	}
	for _, m := range matches {
		d.dispatch(m)
	}

	go d.watchLoop()
	return nil
}

// Stop stops the watcher and releases its resources.
func (d *DirWatcher) Stop() {
	d.stopOnce.Do(func() {
		slog.Info("intake watcher stopped", "dir", d.dir)
		close(d.done)
		_ = d.watcher.Close()
	})
}

func (d *DirWatcher) watchLoop() {
	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-d.done:
			return
		case event, ok := <-d.watcher.Events:
			if !ok {
				return
			}
			if event.Has(fsnotify.Create) || event.Has(fsnotify.Write) {
				d.dispatch(event.Name)
			}
		case err, ok := <-d.watcher.Errors:
			if !ok {
				return
			}
			if d.cfg.OnError != nil {
				d.cfg.OnError(err)
			}
		case <-ticker.C:
			// Periodic re-glob as a fallback for filesystems/network mounts
			// where fsnotify create events are unreliable.
			matches, err := filepath.Glob(filepath.Join(d.dir, "*"))
			if err != nil {
				if d.cfg.OnError != nil {
					d.cfg.OnError(err)
				}
				continue
			}
			for _, m := range matches {
				d.dispatch(m)
			}
		}
	}
}

func (d *DirWatcher) dispatch(path string) {
	d.mu.Lock()
	if d.seen[path] {
		d.mu.Unlock()
		return
	}
	d.seen[path] = true
	d.mu.Unlock()

	ext := strings.ToLower(filepath.Ext(path))
	switch {
	case matchesExt(ext, d.cfg.HandHistoryExt):
		if d.cfg.OnHandHistoryFile != nil {
			d.cfg.OnHandHistoryFile(path)
		}
	case matchesExt(ext, d.cfg.ScreenshotExt):
		if d.cfg.OnScreenshotFile != nil {
			d.cfg.OnScreenshotFile(path)
		}
	}
}

func matchesExt(ext string, candidates []string) bool {
	for _, c := range candidates {
		if strings.ToLower(c) == ext {
			return true
		}
	}
	return false
}
