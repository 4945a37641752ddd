// Package assistant turns a recording (message, transcript, frames, project
// path) into a single assistant call. Each call gets its own scratch
// directory, which is removed before the call returns.
package assistant

import (
	"fmt"
	"log/slog"
	"os"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/kalambet/clauveo/internal/bridge"
	"github.com/kalambet/clauveo/internal/session"
	"github.com/kalambet/clauveo/internal/staging"
	"github.com/kalambet/clauveo/internal/storage"
)

// Request is one send_to_assistant call.
type Request struct {
	Message string
	// Frames are base64 images or data URLs, in recording order.
	Frames     []string
	Transcript string
	// ProjectPath, when set, becomes the assistant's working directory.
	ProjectPath string
	// SessionID associates scratch directories and log entries with a
	// recording session. It may be empty.
	SessionID string
}

// InteractionRecorder persists the outcome of each call.
type InteractionRecorder interface {
	SaveInteraction(i storage.Interaction) error
}

// ScratchRegistry tracks scratch directories until they are confirmed gone.
type ScratchRegistry interface {
	RegisterScratchDir(d storage.ScratchDir) error
	ReleaseScratchDir(path string) error
	ListScratchDirs(sessionID string) ([]storage.ScratchDir, error)
}

// ErrorReporter is told about failed calls. session.Manager implements it.
type ErrorReporter interface {
	MarkError(message string) (session.RecordingSession, error)
}

// Options configures an Orchestrator. Recorder, Registry and Reporter are
// optional.
type Options struct {
	ScratchRoot string
	Concurrency int
	Recorder    InteractionRecorder
	Registry    ScratchRegistry
	Reporter    ErrorReporter
}

// Orchestrator runs assistant requests end to end. It never touches the
// session lock except through Reporter, after the call has finished.
type Orchestrator struct {
	bridge      bridge.Bridge
	stager      *staging.Stager
	scratchRoot string
	recorder    InteractionRecorder
	registry    ScratchRegistry
	reporter    ErrorReporter
	logger      *slog.Logger
	now         func() time.Time

	active sync.Map // scratch dir -> struct{}
}

// New creates an Orchestrator that sends requests through b.
func New(b bridge.Bridge, opts Options) *Orchestrator {
	root := opts.ScratchRoot
	if root == "" {
		root = os.TempDir()
	}
	return &Orchestrator{
		bridge:      b,
		stager:      staging.NewStager(opts.Concurrency),
		scratchRoot: root,
		recorder:    opts.Recorder,
		registry:    opts.Registry,
		reporter:    opts.Reporter,
		logger:      slog.Default(),
		now:         time.Now,
	}
}

// Available reports whether the assistant can be launched.
func (o *Orchestrator) Available() bool {
	return o.bridge.Available()
}

// Strategy names the bridge in use.
func (o *Orchestrator) Strategy() string {
	return o.bridge.Name()
}

// Send stages the frames, invokes the assistant and returns its reply. The
// scratch directory is removed on every return path, including a panic
// inside staging or the bridge, and removal failures are only logged.
func (o *Orchestrator) Send(req Request) (reply string, err error) {
	start := o.now()
	dir := staging.ScratchDir(o.scratchRoot)
	staged := 0

	o.active.Store(dir, struct{}{})
	defer func() {
		if r := recover(); r != nil {
			o.logger.Error("assistant request panicked", "panic", r, "dir", dir)
			reply, err = "", fmt.Errorf("internal error: %v", r)
		}
		o.removeScratch(dir)
		o.active.Delete(dir)
		o.record(req, staged, start, reply, err)
		if err != nil {
			o.reportFailure(err)
		}
	}()

	o.register(dir, req.SessionID)

	paths, err := o.stager.Stage(dir, req.Frames)
	if err != nil {
		return "", err
	}
	staged = len(paths)

	return o.bridge.Send(bridge.Request{
		Message:     ComposeMessage(req.Message, req.Transcript, staged),
		Attachments: paths,
		Dir:         req.ProjectPath,
	})
}

// InUse reports whether dir belongs to a request that is still running.
func (o *Orchestrator) InUse(dir string) bool {
	_, ok := o.active.Load(dir)
	return ok
}

// Cleanup removes any scratch directories still registered for sessionID.
// Removal failures are logged; the confirmation is returned regardless.
func (o *Orchestrator) Cleanup(sessionID string) (string, error) {
	if o.registry != nil {
		dirs, err := o.registry.ListScratchDirs(sessionID)
		if err != nil {
			o.logger.Warn("listing scratch directories", "session_id", sessionID, "error", err)
		}
		for _, d := range dirs {
			if o.InUse(d.Path) {
				continue
			}
			o.removeScratch(d.Path)
		}
	}
	return fmt.Sprintf("Cleaned up files for session: %s", sessionID), nil
}

func (o *Orchestrator) register(dir, sessionID string) {
	if o.registry == nil {
		return
	}
	if err := o.registry.RegisterScratchDir(storage.ScratchDir{Path: dir, SessionID: sessionID, CreatedAt: o.now()}); err != nil {
		o.logger.Warn("registering scratch directory", "dir", dir, "error", err)
	}
}

// removeScratch deletes dir and, once it is gone, drops it from the registry.
func (o *Orchestrator) removeScratch(dir string) {
	if err := staging.Remove(dir); err != nil {
		o.logger.Warn("failed to remove scratch directory", "error", err)
		return
	}
	if o.registry == nil {
		return
	}
	if err := o.registry.ReleaseScratchDir(dir); err != nil {
		o.logger.Warn("releasing scratch directory", "dir", dir, "error", err)
	}
}

func (o *Orchestrator) record(req Request, staged int, start time.Time, reply string, callErr error) {
	if o.recorder == nil {
		return
	}
	i := storage.Interaction{
		ID:             uuid.New().String(),
		CreatedAt:      start,
		SessionID:      req.SessionID,
		Message:        req.Message,
		Transcript:     req.Transcript,
		ProjectPath:    req.ProjectPath,
		FramesReceived: len(req.Frames),
		FramesStaged:   staged,
		Status:         storage.StatusCompleted,
		Response:       reply,
		DurationMS:     o.now().Sub(start).Milliseconds(),
	}
	if callErr != nil {
		i.Status = storage.StatusFailed
		i.Error = callErr.Error()
	}
	if err := o.recorder.SaveInteraction(i); err != nil {
		o.logger.Warn("recording interaction", "error", err)
	}
}

func (o *Orchestrator) reportFailure(callErr error) {
	if o.reporter == nil {
		return
	}
	if _, err := o.reporter.MarkError(callErr.Error()); err != nil {
		o.logger.Warn("marking session as failed", "error", err)
	}
}
