package storage

import (
	"errors"
	"time"
)

// ErrNotFound is returned when a requested record does not exist.
var ErrNotFound = errors.New("not found")

// Interaction statuses.
const (
	StatusCompleted = "completed"
	StatusFailed    = "failed"
)

// Interaction is one send_to_assistant call and its outcome.
type Interaction struct {
	ID             string    `json:"id"`
	CreatedAt      time.Time `json:"created_at"`
	SessionID      string    `json:"session_id"`
	Message        string    `json:"message"`
	Transcript     string    `json:"transcript"`
	ProjectPath    string    `json:"project_path"`
	FramesReceived int       `json:"frames_received"`
	FramesStaged   int       `json:"frames_staged"`
	Status         string    `json:"status"`
	Response       string    `json:"response"`
	Error          string    `json:"error"`
	DurationMS     int64     `json:"duration_ms"`
}

// ScratchDir is a registered request scratch directory that has not been
// confirmed removed yet.
type ScratchDir struct {
	Path      string    `json:"path"`
	SessionID string    `json:"session_id"`
	CreatedAt time.Time `json:"created_at"`
}
