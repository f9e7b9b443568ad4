package runtimeconfig

import (
	"path/filepath"
	"testing"
	"time"
)

func TestLoad_MissingFileReturnsDefaults(t *testing.T) {
	cfg, err := Load(t.TempDir(), "")
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	want := DefaultConfig()
	if *cfg != *want {
		t.Fatalf("expected defaults %+v, got %+v", want, cfg)
	}
}

func TestSaveThenLoad_RoundTrips(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, FileName)

	cfg := DefaultConfig()
	cfg.Log.Level = "debug"
	cfg.Log.JSON = true
	cfg.Watchdog.StallDebounceMillis = 5
	cfg.Serve.Addr = "0.0.0.0:9000"

	if err := Save(cfg, path); err != nil {
		t.Fatalf("Save returned error: %v", err)
	}

	loaded, err := Load(dir, "")
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if *loaded != *cfg {
		t.Fatalf("expected %+v, got %+v", cfg, loaded)
	}
	if loaded.Watchdog.Debounce().Milliseconds() != 5 {
		t.Fatalf("expected 5ms debounce, got %v", loaded.Watchdog.Debounce())
	}
}

func TestResolvePath_DefaultsToFileNameInDir(t *testing.T) {
	dir := t.TempDir()
	if got, want := ResolvePath(dir, ""), filepath.Join(dir, FileName); got != want {
		t.Fatalf("expected %q, got %q", want, got)
	}
	if got := ResolvePath(dir, "/explicit/path.yaml"); got != "/explicit/path.yaml" {
		t.Fatalf("expected explicit override to win, got %q", got)
	}
}

func TestWatcher_ReloadsOnFileChange(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, FileName)

	cfg := DefaultConfig()
	if err := Save(cfg, path); err != nil {
		t.Fatalf("Save returned error: %v", err)
	}

	watcher, err := NewWatcher(path, nil)
	if err != nil {
		t.Fatalf("NewWatcher returned error: %v", err)
	}
	defer watcher.Close()

	reloaded := make(chan *Config, 1)
	stop := make(chan struct{})
	done := make(chan error, 1)
	go func() {
		done <- watcher.Watch(stop, 20*time.Millisecond, func(cfg *Config) {
			reloaded <- cfg
		})
	}()

	// Give the watcher's goroutine time to register with fsnotify before the
	// write it needs to observe.
	time.Sleep(50 * time.Millisecond)
	cfg.Watchdog.StallDebounceMillis = 42
	if err := Save(cfg, path); err != nil {
		t.Fatalf("Save returned error: %v", err)
	}

	select {
	case got := <-reloaded:
		if got.Watchdog.StallDebounceMillis != 42 {
			t.Fatalf("expected reloaded debounce 42, got %d", got.Watchdog.StallDebounceMillis)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("onReload was never invoked after the config file changed")
	}

	close(stop)
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("Watch returned error: %v", err)
		}
	case <-time.After(time.Second):
		t.Fatal("Watch did not return after stop was closed")
	}
}
