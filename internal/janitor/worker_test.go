package janitor

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/kalambet/clauveo/internal/storage"
)

type inUseSet map[string]bool

func (s inUseSet) InUse(dir string) bool { return s[dir] }

func openTestStore(t *testing.T) *storage.Store {
	t.Helper()
	s, err := storage.Open(":memory:")
	if err != nil {
		t.Fatalf("Open(:memory:) failed: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func makeDir(t *testing.T, store *storage.Store, root, name string, created time.Time) string {
	t.Helper()
	p := filepath.Join(root, name)
	if err := os.MkdirAll(p, 0o700); err != nil {
		t.Fatal(err)
	}
	if err := store.RegisterScratchDir(storage.ScratchDir{Path: p, SessionID: "s", CreatedAt: created}); err != nil {
		t.Fatal(err)
	}
	return p
}

func TestRunOnce_RemovesOnlyStale(t *testing.T) {
	store := openTestStore(t)
	root := t.TempDir()
	now := time.Date(2026, 10, 16, 12, 0, 0, 0, time.UTC)

	stale := makeDir(t, store, root, "request-stale", now.Add(-time.Hour))
	fresh := makeDir(t, store, root, "request-fresh", now.Add(-time.Minute))
	busy := makeDir(t, store, root, "request-busy", now.Add(-time.Hour))

	w := NewWorker(store, inUseSet{busy: true}, time.Second, 10*time.Minute)
	w.now = func() time.Time { return now }

	n, err := w.RunOnce(context.Background())
	if err != nil {
		t.Fatalf("RunOnce: %v", err)
	}
	if n != 1 {
		t.Errorf("removed %d, want 1", n)
	}
	if _, err := os.Stat(stale); !os.IsNotExist(err) {
		t.Errorf("stale dir still exists: %v", err)
	}
	for _, p := range []string{fresh, busy} {
		if _, err := os.Stat(p); err != nil {
			t.Errorf("%s should survive: %v", p, err)
		}
	}

	left, err := store.ListScratchDirsBefore(now.Add(time.Hour))
	if err != nil {
		t.Fatal(err)
	}
	if len(left) != 2 {
		t.Errorf("registry has %d entries, want 2 (fresh and busy)", len(left))
	}
}

func TestRunOnce_AlreadyGoneIsReleased(t *testing.T) {
	store := openTestStore(t)
	now := time.Now()
	if err := store.RegisterScratchDir(storage.ScratchDir{
		Path:      filepath.Join(t.TempDir(), "never-created"),
		CreatedAt: now.Add(-time.Hour),
	}); err != nil {
		t.Fatal(err)
	}

	n, err := NewWorker(store, nil, 0, 0).RunOnce(context.Background())
	if err != nil {
		t.Fatalf("RunOnce: %v", err)
	}
	if n != 1 {
		t.Errorf("removed %d, want 1", n)
	}
}

type failingStore struct{}

func (failingStore) ListScratchDirsBefore(time.Time) ([]storage.ScratchDir, error) {
	return nil, errors.New("db closed")
}
func (failingStore) ReleaseScratchDir(string) error { return nil }

func TestRunOnce_StoreError(t *testing.T) {
	if _, err := NewWorker(failingStore{}, nil, 0, 0).RunOnce(context.Background()); err == nil {
		t.Error("expected error from failing store")
	}
}

func TestRun_StopsOnCancel(t *testing.T) {
	store := openTestStore(t)
	w := NewWorker(store, nil, 10*time.Millisecond, time.Minute)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		w.Run(ctx)
		close(done)
	}()

	time.Sleep(30 * time.Millisecond)
	cancel()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Run did not return after cancel")
	}
}
