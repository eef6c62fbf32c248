package configwatch

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"
)

// eventually polls fn every tick until it returns true or timeout elapses.
func eventually(t *testing.T, timeout, tick time.Duration, fn func() bool, msg string) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if fn() {
			return
		}
		time.Sleep(tick)
	}
	t.Error(msg)
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

func startWatch(t *testing.T, path string, reload ReloadFunc) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- Watch(ctx, path, 20*time.Millisecond, quietLogger(), reload) }()
	t.Cleanup(func() {
		cancel()
		if err := <-done; err != nil {
			t.Errorf("Watch returned %v", err)
		}
	})
	time.Sleep(100 * time.Millisecond)
}

func TestWatch_ReloadsOnWrite(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	_ = os.WriteFile(path, []byte("a: 1\n"), 0o644)

	var calls atomic.Int32
	startWatch(t, path, func() error {
		calls.Add(1)
		return nil
	})

	// A burst of writes collapses into one reload.
	for i := 0; i < 3; i++ {
		_ = os.WriteFile(path, []byte("a: 2\n"), 0o644)
	}
	eventually(t, 2*time.Second, 20*time.Millisecond, func() bool {
		return calls.Load() >= 1
	}, "reload not called after write")
	time.Sleep(100 * time.Millisecond)
	if n := calls.Load(); n != 1 {
		t.Errorf("reload called %d times, want 1", n)
	}
}

func TestWatch_FollowsRenameReplace(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	_ = os.WriteFile(path, []byte("a: 1\n"), 0o644)

	var calls atomic.Int32
	startWatch(t, path, func() error {
		calls.Add(1)
		return nil
	})

	tmp := filepath.Join(dir, "config.yaml.tmp")
	_ = os.WriteFile(tmp, []byte("a: 3\n"), 0o644)
	_ = os.Rename(tmp, path)

	eventually(t, 2*time.Second, 20*time.Millisecond, func() bool {
		return calls.Load() >= 1
	}, "reload not called after atomic replace")
}

func TestWatch_IgnoresOtherFiles(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	_ = os.WriteFile(path, []byte("a: 1\n"), 0o644)

	var calls atomic.Int32
	startWatch(t, path, func() error {
		calls.Add(1)
		return nil
	})

	_ = os.WriteFile(filepath.Join(dir, "other.yaml"), []byte("b: 1\n"), 0o644)
	time.Sleep(200 * time.Millisecond)
	if n := calls.Load(); n != 0 {
		t.Errorf("reload called %d times for an unrelated file", n)
	}
}

func TestWatch_RejectedReloadKeepsWatching(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	_ = os.WriteFile(path, []byte("a: 1\n"), 0o644)

	var calls atomic.Int32
	startWatch(t, path, func() error {
		if calls.Add(1) == 1 {
			return errors.New("invalid")
		}
		return nil
	})

	_ = os.WriteFile(path, []byte("broken"), 0o644)
	eventually(t, 2*time.Second, 20*time.Millisecond, func() bool {
		return calls.Load() == 1
	}, "first reload not attempted")

	_ = os.WriteFile(path, []byte("a: 4\n"), 0o644)
	eventually(t, 2*time.Second, 20*time.Millisecond, func() bool {
		return calls.Load() == 2
	}, "watcher stopped after a rejected reload")
}

func TestWatch_MissingDirectory(t *testing.T) {
	err := Watch(context.Background(), filepath.Join(t.TempDir(), "nope", "config.yaml"), 0, quietLogger(), func() error { return nil })
	if err == nil {
		t.Fatal("expected error for missing directory")
	}
}
