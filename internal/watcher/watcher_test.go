package watcher

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"
)

type recorder struct {
	mu    sync.Mutex
	paths []string
}

func (r *recorder) record(path string) {
	r.mu.Lock()
	r.paths = append(r.paths, path)
	r.mu.Unlock()
}

func (r *recorder) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.paths)
}

func TestWatcher_DebouncesWrites(t *testing.T) {
	dir := t.TempDir()
	target := filepath.Join(dir, "places.yaml")
	if err := writeFile(target, "v1"); err != nil {
		t.Fatal(err)
	}

	var rec recorder
	w := New([]string{target}, rec.record, WithDebounce(100*time.Millisecond))
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if err := w.Start(ctx); err != nil {
		t.Fatal(err)
	}
	defer w.Stop()

	for i := 0; i < 5; i++ {
		if err := writeFile(target, "v2"); err != nil {
			t.Fatal(err)
		}
		time.Sleep(10 * time.Millisecond)
	}
	time.Sleep(500 * time.Millisecond)

	if got := rec.count(); got != 1 {
		t.Errorf("expected one debounced callback, got %d", got)
	}
	rec.mu.Lock()
	defer rec.mu.Unlock()
	if len(rec.paths) == 1 && rec.paths[0] != filepath.Clean(target) {
		t.Errorf("callback path = %q, want %q", rec.paths[0], target)
	}
}

func TestWatcher_IgnoresSiblingFiles(t *testing.T) {
	dir := t.TempDir()
	target := filepath.Join(dir, "places.yaml")
	if err := writeFile(target, "v1"); err != nil {
		t.Fatal(err)
	}

	var rec recorder
	w := New([]string{target}, rec.record, WithDebounce(50*time.Millisecond))
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if err := w.Start(ctx); err != nil {
		t.Fatal(err)
	}
	defer w.Stop()

	if err := writeFile(filepath.Join(dir, "other.yaml"), "x"); err != nil {
		t.Fatal(err)
	}
	time.Sleep(300 * time.Millisecond)
	if got := rec.count(); got != 0 {
		t.Errorf("sibling write triggered %d callbacks", got)
	}
}

func TestWatcher_SeesReplacedFile(t *testing.T) {
	dir := t.TempDir()
	target := filepath.Join(dir, "places.yaml")
	if err := writeFile(target, "v1"); err != nil {
		t.Fatal(err)
	}

	var rec recorder
	w := New([]string{target}, rec.record, WithDebounce(50*time.Millisecond))
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if err := w.Start(ctx); err != nil {
		t.Fatal(err)
	}
	defer w.Stop()

	tmp := filepath.Join(dir, "places.yaml.tmp")
	if err := writeFile(tmp, "v2"); err != nil {
		t.Fatal(err)
	}
	if err := os.Rename(tmp, target); err != nil {
		t.Fatal(err)
	}
	time.Sleep(400 * time.Millisecond)
	if rec.count() < 1 {
		t.Error("expected a callback after an atomic replace")
	}
}

func TestWatcher_StopDropsPendingCallbacks(t *testing.T) {
	dir := t.TempDir()
	target := filepath.Join(dir, "places.yaml")
	if err := writeFile(target, "v1"); err != nil {
		t.Fatal(err)
	}

	var rec recorder
	w := New([]string{target}, rec.record, WithDebounce(300*time.Millisecond))
	if err := w.Start(context.Background()); err != nil {
		t.Fatal(err)
	}
	if err := writeFile(target, "v2"); err != nil {
		t.Fatal(err)
	}
	time.Sleep(50 * time.Millisecond)
	w.Stop()
	w.Stop()
	time.Sleep(400 * time.Millisecond)
	if got := rec.count(); got != 0 {
		t.Errorf("callback fired after Stop: %d", got)
	}
}

func TestWatcher_StartMissingDirectory(t *testing.T) {
	w := New([]string{filepath.Join(t.TempDir(), "missing", "places.yaml")}, nil)
	if err := w.Start(context.Background()); err == nil {
		w.Stop()
		t.Fatal("expected error for a file in a missing directory")
	}
}

func TestNew_CleansPaths(t *testing.T) {
	dir := t.TempDir()
	w := New([]string{filepath.Join(dir, "a.yaml"), filepath.Join(dir, ".", "a.yaml")}, nil)
	if len(w.files) != 1 {
		t.Errorf("files = %v, want one entry", w.files)
	}
}

func writeFile(path, content string) error {
	return os.WriteFile(path, []byte(content), 0600)
}
