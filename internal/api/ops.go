package api

import (
	"encoding/json"
	"fmt"

	"github.com/kalambet/clauveo/internal/analysis"
	"github.com/kalambet/clauveo/internal/assistant"
	"github.com/kalambet/clauveo/internal/session"
	"github.com/kalambet/clauveo/internal/storage"
)

// SessionService is the recording session state machine.
type SessionService interface {
	Start() (session.RecordingSession, error)
	Stop() (session.RecordingSession, error)
	Status() (session.RecordingSession, error)
	SubmitMetadata(raw []byte) (session.RecordingSession, error)
	MarkError(message string) (session.RecordingSession, error)
}

// AssistantService sends recordings to the assistant CLI.
type AssistantService interface {
	Send(req assistant.Request) (string, error)
	Available() bool
	Strategy() string
	Cleanup(sessionID string) (string, error)
}

// InteractionStore is the interaction log.
type InteractionStore interface {
	ListInteractions(limit, offset int) ([]storage.Interaction, error)
	GetInteraction(id string) (storage.Interaction, error)
	DeleteInteraction(id string) error
}

// SendRequest is the body of POST /assistant/messages.
type SendRequest struct {
	Message     string   `json:"message"`
	Frames      []string `json:"frames"`
	Transcript  string   `json:"transcript"`
	ProjectPath string   `json:"project_path"`
	SessionID   string   `json:"session_id"`
}

// AnalyzeRequest is the body of POST /session/analyze.
type AnalyzeRequest struct {
	Transcript     string   `json:"transcript"`
	ScreenText     []string `json:"screen_text"`
	FramesAnalyzed uint32   `json:"frames_analyzed"`
}

// send fills in the session id from the current session when the caller
// left it out. A session lookup failure only loses that association.
func send(sessions SessionService, svc AssistantService, req SendRequest) (string, error) {
	sessionID := req.SessionID
	if sessionID == "" {
		if cur, err := sessions.Status(); err == nil {
			sessionID = cur.ID
		}
	}
	return svc.Send(assistant.Request{
		Message:     req.Message,
		Frames:      req.Frames,
		Transcript:  req.Transcript,
		ProjectPath: req.ProjectPath,
		SessionID:   sessionID,
	})
}

// analyze builds metadata for the current session and submits it through the
// same strict path as externally supplied metadata.
func analyze(sessions SessionService, analyzer analysis.Analyzer, req AnalyzeRequest) (session.RecordingSession, error) {
	cur, err := sessions.Status()
	if err != nil {
		return session.RecordingSession{}, err
	}

	in := analysis.Input{
		SessionID:      cur.ID,
		Transcript:     req.Transcript,
		ScreenText:     req.ScreenText,
		FramesAnalyzed: req.FramesAnalyzed,
	}
	if cur.Duration != nil {
		in.DurationSeconds = *cur.Duration
	}

	raw, err := json.Marshal(analyzer.Analyze(in))
	if err != nil {
		return session.RecordingSession{}, fmt.Errorf("encoding metadata: %w", err)
	}
	return sessions.SubmitMetadata(raw)
}
