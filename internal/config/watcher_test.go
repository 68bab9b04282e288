package config

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

func newTestLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

func startWatcher(t *testing.T, path string, opts ...WatcherOption[Reloadable]) *Watcher[Reloadable] {
	t.Helper()
	opts = append([]WatcherOption[Reloadable]{WithDebounce[Reloadable](50 * time.Millisecond)}, opts...)
	w := NewConfigWatcher(path, LoadReloadable, newTestLogger(), opts...)
	if err := w.Start(); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() {
		if err := w.Stop(); err != nil {
			t.Errorf("watcher.Stop failed: %v", err)
		}
	})
	// Let the watcher settle before writing.
	time.Sleep(100 * time.Millisecond)
	return w
}

func TestConfigWatcher_BasicReload(t *testing.T) {
	path := writeConfig(t, "[logging]\nlevel = \"info\"\n")

	received := make(chan Reloadable, 1)
	w := startWatcher(t, path)
	w.OnReload(func(cfg Reloadable) {
		received <- cfg
	})

	content := "[logging]\nlevel = \"debug\"\ncapture = \"warn\"\n\n[capture]\nlog_severity = \"error\"\n"
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}

	select {
	case cfg := <-received:
		if cfg.Logging.Level != "debug" || cfg.Logging.Modules["capture"] != "warn" {
			t.Errorf("got logging %+v", cfg.Logging)
		}
		if cfg.CaptureLogSeverity != "error" {
			t.Errorf("CaptureLogSeverity = %q, want error", cfg.CaptureLogSeverity)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timeout waiting for config reload")
	}
}

func TestConfigWatcher_RenameOverFile(t *testing.T) {
	path := writeConfig(t, "[logging]\nlevel = \"info\"\n")

	received := make(chan Reloadable, 1)
	w := startWatcher(t, path)
	w.OnReload(func(cfg Reloadable) {
		received <- cfg
	})

	tmp := filepath.Join(filepath.Dir(path), ".config.toml.swp")
	if err := os.WriteFile(tmp, []byte("[logging]\nlevel = \"error\"\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := os.Rename(tmp, path); err != nil {
		t.Fatal(err)
	}

	select {
	case cfg := <-received:
		if cfg.Logging.Level != "error" {
			t.Errorf("Level = %q, want error", cfg.Logging.Level)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timeout waiting for reload after rename")
	}
}

func TestConfigWatcher_IgnoresSiblings(t *testing.T) {
	path := writeConfig(t, "[logging]\nlevel = \"info\"\n")

	var count atomic.Int32
	w := startWatcher(t, path)
	w.OnReload(func(Reloadable) { count.Add(1) })

	sibling := filepath.Join(filepath.Dir(path), "other.toml")
	if err := os.WriteFile(sibling, []byte("x = 1\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	time.Sleep(200 * time.Millisecond)

	if got := count.Load(); got != 0 {
		t.Errorf("expected no reload for sibling file, got %d", got)
	}
}

func TestConfigWatcher_Unsubscribe(t *testing.T) {
	path := writeConfig(t, "[logging]\nlevel = \"info\"\n")

	var count1, count2 atomic.Int32
	w := startWatcher(t, path)
	w.OnReload(func(Reloadable) { count1.Add(1) })
	unsub2 := w.OnReload(func(Reloadable) { count2.Add(1) })

	if err := os.WriteFile(path, []byte("[logging]\nlevel = \"warn\"\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	time.Sleep(200 * time.Millisecond)

	unsub2()

	if err := os.WriteFile(path, []byte("[logging]\nlevel = \"error\"\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	time.Sleep(200 * time.Millisecond)

	if got := count1.Load(); got != 2 {
		t.Errorf("handler1: expected 2 calls, got %d", got)
	}
	if got := count2.Load(); got != 1 {
		t.Errorf("handler2: expected 1 call, got %d", got)
	}
}

func TestConfigWatcher_ErrorHandler(t *testing.T) {
	path := writeConfig(t, "[logging]\nlevel = \"info\"\n")

	errorReceived := make(chan error, 1)
	configReceived := make(chan Reloadable, 1)

	w := startWatcher(t, path, WithErrorHandler[Reloadable](func(err error) {
		errorReceived <- err
	}))
	w.OnReload(func(cfg Reloadable) {
		configReceived <- cfg
	})

	if err := os.WriteFile(path, []byte("invalid toml [[["), 0o644); err != nil {
		t.Fatal(err)
	}

	select {
	case <-errorReceived:
	case <-configReceived:
		t.Fatal("config handler should not be called on error")
	case <-time.After(2 * time.Second):
		t.Fatal("timeout waiting for error handler")
	}
}

func TestConfigWatcher_Debounce(t *testing.T) {
	path := writeConfig(t, "[logging]\nlevel = \"info\"\n")

	var count atomic.Int32
	var last atomic.Value
	w := startWatcher(t, path, WithDebounce[Reloadable](200*time.Millisecond))
	w.OnReload(func(cfg Reloadable) {
		count.Add(1)
		last.Store(cfg.Logging.Modules["api"])
	})

	for i := 1; i <= 5; i++ {
		content := fmt.Appendf(nil, "[logging]\napi = \"level%d\"\n", i)
		if err := os.WriteFile(path, content, 0o644); err != nil {
			t.Fatal(err)
		}
		time.Sleep(50 * time.Millisecond)
	}
	time.Sleep(500 * time.Millisecond)

	if got := count.Load(); got != 1 {
		t.Errorf("expected 1 debounced call, got %d", got)
	}
	if got, _ := last.Load().(string); got != "level5" {
		t.Errorf("expected final value level5, got %q", got)
	}
}

func TestConfigWatcher_ThreadSafety(t *testing.T) {
	path := writeConfig(t, "[logging]\nlevel = \"info\"\n")
	w := startWatcher(t, path, WithDebounce[Reloadable](10*time.Millisecond))

	var wg sync.WaitGroup
	for range 100 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			unsub := w.OnReload(func(Reloadable) {})
			time.Sleep(time.Millisecond)
			unsub()
		}()
	}

	for i := range 10 {
		if err := os.WriteFile(path, fmt.Appendf(nil, "[logging]\napi = \"v%d\"\n", i), 0o644); err != nil {
			t.Fatal(err)
		}
		time.Sleep(20 * time.Millisecond)
	}

	wg.Wait()
}

func TestConfigWatcher_Stop(t *testing.T) {
	path := writeConfig(t, "[logging]\nlevel = \"info\"\n")

	var count atomic.Int32
	w := NewConfigWatcher(path, LoadReloadable, newTestLogger(), WithDebounce[Reloadable](50*time.Millisecond))
	w.OnReload(func(Reloadable) { count.Add(1) })

	if err := w.Start(); err != nil {
		t.Fatal(err)
	}
	time.Sleep(100 * time.Millisecond)

	if err := w.Stop(); err != nil {
		t.Fatal(err)
	}

	if err := os.WriteFile(path, []byte("[logging]\nlevel = \"debug\"\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	time.Sleep(200 * time.Millisecond)

	if got := count.Load(); got != 0 {
		t.Errorf("expected 0 calls after stop, got %d", got)
	}
}

func TestConfigWatcher_StopWithoutStart(t *testing.T) {
	w := NewConfigWatcher("/nonexistent/config.toml", LoadReloadable, newTestLogger())
	if err := w.Stop(); err != nil {
		t.Errorf("Stop without Start: %v", err)
	}
}
