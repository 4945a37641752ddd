// Package staging decodes base64 image blobs into files under a
// request-scoped scratch directory so they can be attached to an external
// process call.
package staging

import (
	"encoding/base64"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
)

const defaultConcurrency = 4

// ScratchDirError reports that a scratch directory could not be created or
// removed. It is fatal to the request that owns the directory.
type ScratchDirError struct {
	Op   string
	Path string
	Err  error
}

func (e *ScratchDirError) Error() string {
	return fmt.Sprintf("failed to %s scratch directory %s: %v", e.Op, e.Path, e.Err)
}

func (e *ScratchDirError) Unwrap() error { return e.Err }

// FrameDecodeError reports a single frame that could not be decoded or
// written. Stage logs and skips these; they never abort staging.
type FrameDecodeError struct {
	Index int
	Err   error
}

func (e *FrameDecodeError) Error() string {
	return fmt.Sprintf("frame %d: %v", e.Index+1, e.Err)
}

func (e *FrameDecodeError) Unwrap() error { return e.Err }

// Stager writes image blobs to disk.
type Stager struct {
	concurrency int
	logger      *slog.Logger
}

// NewStager creates a Stager that decodes up to concurrency frames at once.
// If concurrency is <= 0, it defaults to 4.
func NewStager(concurrency int) *Stager {
	if concurrency <= 0 {
		concurrency = defaultConcurrency
	}
	return &Stager{
		concurrency: concurrency,
		logger:      slog.Default(),
	}
}

// ScratchDir returns a fresh, never-reused directory path under root. The
// directory itself is created by Stage.
func ScratchDir(root string) string {
	return filepath.Join(root, "request-"+uuid.New().String())
}

// FrameName returns the staged file name for the zero-based input index.
func FrameName(index int) string {
	return fmt.Sprintf("frame_%d.jpg", index+1)
}

// Stage creates dir (and parents) and writes each blob to
// dir/frame_{index+1}.jpg. Blobs may be raw base64 or data URLs. Frames that
// fail to decode or write are logged and skipped, so the result may be
// shorter than blobs or empty. Input order is preserved. Only failure to
// create dir is returned as an error.
func (s *Stager) Stage(dir string, blobs []string) ([]string, error) {
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, &ScratchDirError{Op: "create", Path: dir, Err: err}
	}

	staged := make([]string, len(blobs))
	var g errgroup.Group
	g.SetLimit(s.concurrency)

	for i, blob := range blobs {
		g.Go(func() error {
			path := filepath.Join(dir, FrameName(i))
			if err := writeFrame(path, blob); err != nil {
				s.logger.Warn("skipping frame", "error", &FrameDecodeError{Index: i, Err: err}, "path", path)
				return nil
			}
			staged[i] = path
			return nil
		})
	}
	_ = g.Wait()

	paths := make([]string, 0, len(blobs))
	for _, p := range staged {
		if p != "" {
			paths = append(paths, p)
		}
	}
	s.logger.Debug("staged frames", "dir", dir, "received", len(blobs), "staged", len(paths))
	return paths, nil
}

func writeFrame(path, blob string) error {
	data, err := DecodeBlob(blob)
	if err != nil {
		return err
	}
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return fmt.Errorf("writing frame: %w", err)
	}
	return nil
}

// DecodeBlob strips an optional data-URL prefix (everything up to the first
// comma) and base64-decodes the remainder.
func DecodeBlob(blob string) ([]byte, error) {
	payload := blob
	if i := strings.IndexByte(blob, ','); i >= 0 {
		payload = blob[i+1:]
	}
	data, err := base64.StdEncoding.DecodeString(strings.TrimSpace(payload))
	if err != nil {
		return nil, fmt.Errorf("decoding base64: %w", err)
	}
	return data, nil
}
