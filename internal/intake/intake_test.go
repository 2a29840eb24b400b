package intake

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestDirWatcher_ClassifiesExistingFilesOnStart(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "hand1.txt"), []byte("hand text"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "shot1.png"), []byte("png bytes"), 0o644))

	hands := make(chan string, 8)
	shots := make(chan string, 8)
	w, err := NewDirWatcher(dir, Config{
		HandHistoryExt:    []string{".txt"},
		ScreenshotExt:     []string{".png", ".jpg", ".jpeg"},
		OnHandHistoryFile: func(path string) { hands <- path },
		OnScreenshotFile:  func(path string) { shots <- path },
	})
	require.NoError(t, err)
	require.NoError(t, w.Start())
	t.Cleanup(w.Stop)

	select {
	case p := <-hands:
		require.Equal(t, filepath.Join(dir, "hand1.txt"), p)
	case <-time.After(3 * time.Second):
		t.Fatal("timed out waiting for hand-history file callback")
	}
	select {
	case p := <-shots:
		require.Equal(t, filepath.Join(dir, "shot1.png"), p)
	case <-time.After(3 * time.Second):
		t.Fatal("timed out waiting for screenshot file callback")
	}
}

func TestDirWatcher_DispatchesEachFileOnlyOnce(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "hand1.txt"), []byte("hand text"), 0o644))

	var count int
	done := make(chan struct{}, 1)
	w, err := NewDirWatcher(dir, Config{
		HandHistoryExt: []string{".txt"},
		OnHandHistoryFile: func(path string) {
			count++
			select {
			case done <- struct{}{}:
			default:
			}
		},
	})
	require.NoError(t, err)
	require.NoError(t, w.Start())
	t.Cleanup(w.Stop)

	select {
	case <-done:
	case <-time.After(3 * time.Second):
		t.Fatal("timed out waiting for initial dispatch")
	}

	// Give the 1s periodic re-glob fallback a chance to run and confirm it
	// does not redeliver the same file.
	time.Sleep(1500 * time.Millisecond)
	require.Equal(t, 1, count)
}

func TestDirWatcher_IgnoresUnrecognizedExtensions(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "readme.md"), []byte("notes"), 0o644))

	called := make(chan struct{}, 1)
	w, err := NewDirWatcher(dir, Config{
		HandHistoryExt:    []string{".txt"},
		ScreenshotExt:     []string{".png"},
		OnHandHistoryFile: func(string) { called <- struct{}{} },
		OnScreenshotFile:  func(string) { called <- struct{}{} },
	})
	require.NoError(t, err)
	require.NoError(t, w.Start())
	t.Cleanup(w.Stop)

	select {
	case <-called:
		t.Fatal("unrecognized extension must not trigger a callback")
	case <-time.After(1200 * time.Millisecond):
	}
}
