package session

import (
	"encoding/json"
	"fmt"
	"slices"
	"time"
)

// State enumerates the recording lifecycle states.
type State string

const (
	StateIdle       State = "Idle"
	StateRecording  State = "Recording"
	StateProcessing State = "Processing"
	StateCompleted  State = "Completed"
	StateError      State = "Error"
)

// Status is a lifecycle state plus, for StateError, the failure message.
//
// On the wire it is encoded as a bare string for message-less states
// ("Idle") and as a single-key object for errors ({"Error":"boom"}).
type Status struct {
	State   State
	Message string
}

func Idle() Status { return Status{State: StateIdle} }
func Recording() Status { return Status{State: StateRecording} }
func Processing() Status { return Status{State: StateProcessing} }
func Completed() Status { return Status{State: StateCompleted} }
func Failed(message string) Status { return Status{State: StateError, Message: message} }

func (s Status) String() string {
	if s.State == StateError {
		return fmt.Sprintf("Error(%s)", s.Message)
	}
	return string(s.State)
}

func (s Status) MarshalJSON() ([]byte, error) {
	if s.State == StateError {
		return json.Marshal(map[string]string{string(StateError): s.Message})
	}
	return json.Marshal(string(s.State))
}

func (s *Status) UnmarshalJSON(data []byte) error {
	var name string
	if err := json.Unmarshal(data, &name); err == nil {
		switch State(name) {
		case StateIdle, StateRecording, StateProcessing, StateCompleted:
			*s = Status{State: State(name)}
			return nil
		}
		return fmt.Errorf("unknown recording status %q", name)
	}
	var tagged map[string]string
	if err := json.Unmarshal(data, &tagged); err != nil {
		return fmt.Errorf("decoding recording status: %w", err)
	}
	msg, ok := tagged[string(StateError)]
	if !ok || len(tagged) != 1 {
		return fmt.Errorf("unknown recording status %s", data)
	}
	*s = Failed(msg)
	return nil
}

// RecordingSession is a snapshot of the single per-process session.
type RecordingSession struct {
	ID        string             `json:"id"`
	Status    Status             `json:"status"`
	StartTime *time.Time         `json:"start_time"`
	Duration  *uint64            `json:"duration"`
	Metadata  *RecordingMetadata `json:"metadata"`
}

func (s RecordingSession) clone() RecordingSession {
	out := s
	if s.StartTime != nil {
		t := *s.StartTime
		out.StartTime = &t
	}
	if s.Duration != nil {
		d := *s.Duration
		out.Duration = &d
	}
	if s.Metadata != nil {
		m := s.Metadata.clone()
		out.Metadata = &m
	}
	return out
}

// RecordingMetadata is the analysis result attached to a completed session.
type RecordingMetadata struct {
	SessionID        string           `json:"session_id"`
	Timestamp        string           `json:"timestamp"`
	DurationSeconds  uint64           `json:"duration_seconds"`
	UserContext      UserContext      `json:"user_context"`
	VisualContext    VisualContext    `json:"visual_context"`
	TechnicalContext TechnicalContext `json:"technical_context"`
}

type UserContext struct {
	Transcript     string   `json:"transcript"`
	IntentKeywords []string `json:"intent_keywords"`
	UserEmotion    string   `json:"user_emotion"`
	RequestType    string   `json:"request_type"`
}

type VisualContext struct {
	FramesAnalyzed     uint32      `json:"frames_analyzed"`
	UIElementsDetected []UIElement `json:"ui_elements_detected"`
	ColorPalette       []string    `json:"color_palette"`
	LayoutAnalysis     string      `json:"layout_analysis"`
	TextContent        []string    `json:"text_content"`
}

// UIElement is one interactive element detected in a frame. Timestamp is the
// offset in seconds from the start of the recording.
type UIElement struct {
	ElementType string  `json:"element_type"`
	Text        string  `json:"text"`
	State       string  `json:"state"`
	Timestamp   float64 `json:"timestamp"`
}

type TechnicalContext struct {
	DetectedFramework string   `json:"detected_framework"`
	ErrorPatterns     []string `json:"error_patterns"`
	SuggestedFocus    []string `json:"suggested_focus"`
}

func (m RecordingMetadata) clone() RecordingMetadata {
	out := m
	out.UserContext.IntentKeywords = slices.Clone(m.UserContext.IntentKeywords)
	out.VisualContext.UIElementsDetected = slices.Clone(m.VisualContext.UIElementsDetected)
	out.VisualContext.ColorPalette = slices.Clone(m.VisualContext.ColorPalette)
	out.VisualContext.TextContent = slices.Clone(m.VisualContext.TextContent)
	out.TechnicalContext.ErrorPatterns = slices.Clone(m.TechnicalContext.ErrorPatterns)
	out.TechnicalContext.SuggestedFocus = slices.Clone(m.TechnicalContext.SuggestedFocus)
	return out
}
