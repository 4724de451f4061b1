package config_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/MrWong99/amdetect/internal/config"
)

const (
	baseYAML = `
server:
  log_level: info
amd:
  greeting: 1500
`
	reloadedYAML = `
server:
  log_level: debug
amd:
  greeting: 2500
`
	brokenYAML = `
server:
  log_level: bananas
`
)

// reload is one onChange invocation.
type reload struct {
	old, new *config.Config
}

// watchFile writes content to a fresh amdetect.yaml and watches it with a
// short poll interval. Reloads are delivered on the returned channel.
func watchFile(t *testing.T, content string) (string, *config.Watcher, <-chan reload) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "amdetect.yaml")
	writeConfig(t, path, content)

	reloads := make(chan reload, 8)
	w, err := config.NewWatcher(path, func(old, new *config.Config) {
		reloads <- reload{old: old, new: new}
	}, config.WithInterval(50*time.Millisecond))
	if err != nil {
		t.Fatalf("NewWatcher: %v", err)
	}
	t.Cleanup(w.Stop)
	return path, w, reloads
}

func writeConfig(t *testing.T, path, content string) {
	t.Helper()
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write %s: %v", path, err)
	}
}

// bumpMtime moves the file's mtime forward so that a poll notices the file
// even on filesystems with coarse timestamps.
func bumpMtime(t *testing.T, path string) {
	t.Helper()
	later := time.Now().Add(2 * time.Second)
	if err := os.Chtimes(path, later, later); err != nil {
		t.Fatalf("chtimes: %v", err)
	}
}

func expectNoReload(t *testing.T, reloads <-chan reload) {
	t.Helper()
	select {
	case r := <-reloads:
		t.Fatalf("unexpected reload to log_level %q", r.new.Server.LogLevel)
	case <-time.After(300 * time.Millisecond):
	}
}

// awaitLogLevel waits for the reload that carries the given log level.
func awaitLogLevel(t *testing.T, reloads <-chan reload, level config.LogLevel) reload {
	t.Helper()
	timeout := time.After(2 * time.Second)
	for {
		select {
		case r := <-reloads:
			if r.new.Server.LogLevel == level {
				return r
			}
		case <-timeout:
			t.Fatalf("no reload to log_level %q within 2s", level)
		}
	}
}

func TestWatcher_InitialLoad(t *testing.T) {
	t.Parallel()
	_, w, _ := watchFile(t, baseYAML)

	cfg := w.Current()
	if cfg == nil {
		t.Fatal("Current() = nil after initial load")
	}
	if cfg.Server.LogLevel != config.LogInfo {
		t.Errorf("log_level = %q, want %q", cfg.Server.LogLevel, config.LogInfo)
	}
	if got := cfg.AMD.Greeting; got == nil || *got != 1500 {
		t.Errorf("amd.greeting = %v, want 1500", got)
	}
}

func TestWatcher_Reloads(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name  string
		apply func(t *testing.T, path string)
	}{
		{
			name: "in-place write",
			apply: func(t *testing.T, path string) {
				writeConfig(t, path, reloadedYAML)
				bumpMtime(t, path)
			},
		},
		{
			name: "atomic rename",
			apply: func(t *testing.T, path string) {
				tmp := filepath.Join(filepath.Dir(path), ".amdetect.yaml.tmp")
				writeConfig(t, tmp, reloadedYAML)
				bumpMtime(t, tmp)
				if err := os.Rename(tmp, path); err != nil {
					t.Fatalf("rename: %v", err)
				}
			},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			path, w, reloads := watchFile(t, baseYAML)
			initial := w.Current()
			tt.apply(t, path)

			r := awaitLogLevel(t, reloads, config.LogDebug)
			d := config.Diff(initial, r.new)
			if !d.LogLevelChanged || !d.AMDChanged {
				t.Errorf("Diff = %+v, want log level and amd changes", d)
			}
			if w.Current() != r.new {
				t.Error("Current() does not return the reloaded config")
			}
		})
	}
}

func TestWatcher_InvalidFileKeepsOldConfig(t *testing.T) {
	t.Parallel()
	path, w, reloads := watchFile(t, baseYAML)

	writeConfig(t, path, brokenYAML)
	bumpMtime(t, path)
	expectNoReload(t, reloads)

	if got := w.Current().Server.LogLevel; got != config.LogInfo {
		t.Errorf("Current() log_level = %q, want the previous %q", got, config.LogInfo)
	}

	// A later valid write is still picked up.
	writeConfig(t, path, reloadedYAML)
	bumpMtime(t, path)
	if r := awaitLogLevel(t, reloads, config.LogDebug); r.old.Server.LogLevel != config.LogInfo {
		t.Errorf("old log_level = %q, want %q", r.old.Server.LogLevel, config.LogInfo)
	}
}

func TestWatcher_UnchangedContent(t *testing.T) {
	t.Parallel()
	path, _, reloads := watchFile(t, baseYAML)

	bumpMtime(t, path)
	writeConfig(t, path, baseYAML)
	expectNoReload(t, reloads)
}

func TestWatcher_InitialLoadFails(t *testing.T) {
	t.Parallel()
	if _, err := config.NewWatcher("/nonexistent/amdetect.yaml", nil); err == nil {
		t.Fatal("NewWatcher on a missing file: want error")
	}

	path := filepath.Join(t.TempDir(), "amdetect.yaml")
	writeConfig(t, path, brokenYAML)
	if _, err := config.NewWatcher(path, nil); err == nil {
		t.Fatal("NewWatcher on an invalid file: want error")
	}
}

func TestWatcher_StopIsIdempotent(t *testing.T) {
	t.Parallel()
	path := filepath.Join(t.TempDir(), "amdetect.yaml")
	writeConfig(t, path, baseYAML)

	w, err := config.NewWatcher(path, nil, config.WithInterval(50*time.Millisecond))
	if err != nil {
		t.Fatalf("NewWatcher: %v", err)
	}
	for range 3 {
		w.Stop()
	}
}
