package session

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
)

// ErrLockUnavailable is returned once an operation has faulted while holding
// the session lock. The session can no longer be trusted and every later call
// fails with this error until the process restarts.
var ErrLockUnavailable = errors.New("session state unavailable")

// Clock abstracts time for testability.
type Clock interface {
	Now() time.Time
}

type realClock struct{}

func (realClock) Now() time.Time { return time.Now() }

// Manager owns the single per-process RecordingSession. All operations are
// serialized behind one mutex and return a snapshot copy of the session.
type Manager struct {
	clock  Clock
	logger *slog.Logger

	mu       sync.Mutex
	session  RecordingSession
	poisoned bool
}

// NewManager creates a Manager holding a fresh Idle session.
func NewManager() *Manager {
	return NewManagerWithClock(realClock{})
}

// NewManagerWithClock creates a Manager with a custom clock (for testing).
func NewManagerWithClock(clock Clock) *Manager {
	return &Manager{
		clock:  clock,
		logger: slog.Default(),
		session: RecordingSession{
			ID:     uuid.New().String(),
			Status: Idle(),
		},
	}
}

// Start moves the session to Recording from any state and stamps start_time.
// Calling Start twice simply resets the timestamp.
func (m *Manager) Start() (RecordingSession, error) {
	return m.update(func(s *RecordingSession) error {
		now := m.clock.Now().UTC()
		s.Status = Recording()
		s.StartTime = &now
		s.Duration = nil
		s.Metadata = nil
		return nil
	})
}

// Stop moves the session to Processing from any state. When a start time is
// known, the elapsed whole seconds are recorded as the duration.
func (m *Manager) Stop() (RecordingSession, error) {
	return m.update(func(s *RecordingSession) error {
		s.Status = Processing()
		s.Metadata = nil
		if s.StartTime != nil {
			elapsed := m.clock.Now().Sub(*s.StartTime)
			if elapsed < 0 {
				elapsed = 0
			}
			d := uint64(elapsed / time.Second)
			s.Duration = &d
		}
		return nil
	})
}

// Status returns a snapshot of the current session without mutating it.
func (m *Manager) Status() (RecordingSession, error) {
	return m.update(func(*RecordingSession) error { return nil })
}

// SubmitMetadata parses raw into RecordingMetadata and completes the session.
// On a parse failure the session is left unchanged and a
// *MetadataParseError is returned.
func (m *Manager) SubmitMetadata(raw []byte) (RecordingSession, error) {
	return m.update(func(s *RecordingSession) error {
		md, err := ParseMetadata(raw)
		if err != nil {
			return err
		}
		s.Metadata = &md
		s.Status = Completed()
		return nil
	})
}

// MarkError moves the session to Error(message) from any state.
func (m *Manager) MarkError(message string) (RecordingSession, error) {
	return m.update(func(s *RecordingSession) error {
		s.Status = Failed(message)
		s.Metadata = nil
		return nil
	})
}

// update runs fn with exclusive access to the session and returns a snapshot
// taken under the same lock. A panic inside fn poisons the manager.
func (m *Manager) update(fn func(s *RecordingSession) error) (snap RecordingSession, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.poisoned {
		return RecordingSession{}, ErrLockUnavailable
	}

	defer func() {
		if r := recover(); r != nil {
			m.poisoned = true
			m.logger.Error("session operation panicked; session state is now unavailable", "panic", r)
			snap, err = RecordingSession{}, fmt.Errorf("%w: %v", ErrLockUnavailable, r)
		}
	}()

	work := m.session.clone()
	if err := fn(&work); err != nil {
		return RecordingSession{}, err
	}
	m.session = work
	return m.session.clone(), nil
}
