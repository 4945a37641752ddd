// Package janitor removes scratch directories that outlived their request,
// typically because best-effort removal failed when the request finished.
package janitor

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/kalambet/clauveo/internal/storage"
)

// ScratchStore abstracts the scratch directory registry.
type ScratchStore interface {
	ListScratchDirsBefore(t time.Time) ([]storage.ScratchDir, error)
	ReleaseScratchDir(path string) error
}

// InUseChecker reports directories owned by requests that are still running.
type InUseChecker interface {
	InUse(dir string) bool
}

// Worker periodically sweeps registered scratch directories older than maxAge.
type Worker struct {
	store  ScratchStore
	inUse  InUseChecker
	poll   time.Duration
	maxAge time.Duration
	now    func() time.Time
	logger *slog.Logger
}

// NewWorker creates a Worker. inUse may be nil. If pollInterval is <= 0 it
// defaults to one minute; if maxAge is <= 0 it defaults to ten minutes.
func NewWorker(store ScratchStore, inUse InUseChecker, pollInterval, maxAge time.Duration) *Worker {
	if pollInterval <= 0 {
		pollInterval = time.Minute
	}
	if maxAge <= 0 {
		maxAge = 10 * time.Minute
	}
	return &Worker{
		store:  store,
		inUse:  inUse,
		poll:   pollInterval,
		maxAge: maxAge,
		now:    time.Now,
		logger: slog.Default(),
	}
}

// Run sweeps until ctx is cancelled.
func (w *Worker) Run(ctx context.Context) {
	for {
		if ctx.Err() != nil {
			return
		}

		if _, err := w.RunOnce(ctx); err != nil {
			w.logger.Error("janitor sweep failed", "error", err)
		}

		select {
		case <-ctx.Done():
			return
		case <-time.After(w.poll):
		}
	}
}

// RunOnce removes every stale registered directory and returns how many were
// removed. A directory that cannot be removed stays registered for the next
// sweep.
func (w *Worker) RunOnce(ctx context.Context) (int, error) {
	dirs, err := w.store.ListScratchDirsBefore(w.now().Add(-w.maxAge))
	if err != nil {
		return 0, fmt.Errorf("listing stale scratch directories: %w", err)
	}

	removed := 0
	for _, d := range dirs {
		if ctx.Err() != nil {
			return removed, ctx.Err()
		}
		if w.inUse != nil && w.inUse.InUse(d.Path) {
			continue
		}
		if err := os.RemoveAll(d.Path); err != nil {
			w.logger.Warn("failed to remove stale scratch directory", "path", d.Path, "error", err)
			continue
		}
		if err := w.store.ReleaseScratchDir(d.Path); err != nil {
			return removed, fmt.Errorf("releasing %s: %w", d.Path, err)
		}
		removed++
	}
	if removed > 0 {
		w.logger.Info("removed stale scratch directories", "count", removed)
	}
	return removed, nil
}
