// Package analysis produces RecordingMetadata for a finished recording.
//
// The Heuristic analyzer is a stand-in for real vision and speech analysis:
// it classifies the transcript and any recognized on-screen text with fixed
// keyword rules.
package analysis

import (
	"regexp"
	"slices"
	"strings"
	"time"

	"github.com/kalambet/clauveo/internal/session"
)

// Input is what is known about a recording when it is analyzed.
type Input struct {
	SessionID  string
	Transcript string
	// ScreenText is the recognized text of each frame, in frame order. Frames
	// are assumed to be one second apart.
	ScreenText []string
	// FramesAnalyzed defaults to len(ScreenText) when zero.
	FramesAnalyzed  uint32
	DurationSeconds uint64
}

// Analyzer turns a recording into metadata for session.Manager.SubmitMetadata.
type Analyzer interface {
	Analyze(in Input) session.RecordingMetadata
}

// DefaultPalette is reported until frames are actually color-sampled.
var DefaultPalette = []string{"#ffffff", "#000000", "#007bff", "#28a745", "#dc3545", "#ffc107"}

const defaultLayout = "web_application"

var (
	keywordRe = regexp.MustCompile(`\b(bug|error|fix|issue|problem|feature|enhancement|add|create|update|delete|improve)\b`)

	frustratedRe = regexp.MustCompile(`(?i)\b(frustrated|annoyed|stuck|broken|not working|failing)\b`)
	excitedRe    = regexp.MustCompile(`(?i)\b(excited|great|awesome|love|amazing)\b`)
	confusedRe   = regexp.MustCompile(`(?i)\b(confused|unclear|don't understand|not sure)\b`)

	bugFixRe      = regexp.MustCompile(`(?i)\b(bug|error|issue|problem|fix|broken|not working)\b`)
	featureRe     = regexp.MustCompile(`(?i)\b(feature|add|create|new|enhancement|improve)\b`)
	refactoringRe = regexp.MustCompile(`(?i)\b(refactor|optimize|clean|improve|better)\b`)
	questionRe    = regexp.MustCompile(`(?i)\b(question|help|how|what|why)\b`)
)

// Heuristic is the keyword-rule Analyzer.
type Heuristic struct {
	now func() time.Time
}

// NewHeuristic creates a Heuristic analyzer stamping metadata with the
// current time.
func NewHeuristic() *Heuristic {
	return &Heuristic{now: time.Now}
}

func (h *Heuristic) Analyze(in Input) session.RecordingMetadata {
	frames := in.FramesAnalyzed
	if frames == 0 {
		frames = uint32(len(in.ScreenText))
	}
	elements := UIElements(in.ScreenText)

	return session.RecordingMetadata{
		SessionID:       in.SessionID,
		Timestamp:       h.now().UTC().Format(time.RFC3339),
		DurationSeconds: in.DurationSeconds,
		UserContext: session.UserContext{
			Transcript:     in.Transcript,
			IntentKeywords: Keywords(in.Transcript),
			UserEmotion:    Emotion(in.Transcript),
			RequestType:    RequestType(in.Transcript),
		},
		VisualContext: session.VisualContext{
			FramesAnalyzed:     frames,
			UIElementsDetected: elements,
			ColorPalette:       slices.Clone(DefaultPalette),
			LayoutAnalysis:     defaultLayout,
			TextContent:        textContent(in.ScreenText),
		},
		TechnicalContext: session.TechnicalContext{
			DetectedFramework: Framework(in.ScreenText),
			ErrorPatterns:     ErrorPatterns(in.ScreenText, in.Transcript),
			SuggestedFocus:    SuggestedFocus(elements, in.Transcript),
		},
	}
}

// Keywords returns the distinct intent keywords in transcript, in order of
// first appearance.
func Keywords(transcript string) []string {
	out := []string{}
	for _, kw := range keywordRe.FindAllString(strings.ToLower(transcript), -1) {
		if !slices.Contains(out, kw) {
			out = append(out, kw)
		}
	}
	return out
}

// Emotion returns frustrated, excited, confused or neutral.
func Emotion(transcript string) string {
	switch {
	case frustratedRe.MatchString(transcript):
		return "frustrated"
	case excitedRe.MatchString(transcript):
		return "excited"
	case confusedRe.MatchString(transcript):
		return "confused"
	}
	return "neutral"
}

// RequestType returns bug_fix, feature_request, refactoring, question or
// general. Earlier categories win.
func RequestType(transcript string) string {
	switch {
	case bugFixRe.MatchString(transcript):
		return "bug_fix"
	case featureRe.MatchString(transcript):
		return "feature_request"
	case refactoringRe.MatchString(transcript):
		return "refactoring"
	case questionRe.MatchString(transcript):
		return "question"
	}
	return "general"
}

// UIElements detects buttons, error messages and forms in per-frame text.
// A single frame can yield more than one element.
func UIElements(screenText []string) []session.UIElement {
	out := []session.UIElement{}
	for i, text := range screenText {
		words := strings.Fields(strings.ToLower(text))
		ts := float64(i)
		if slices.Contains(words, "button") || slices.Contains(words, "click") {
			out = append(out, session.UIElement{ElementType: "button", Text: text, State: "clickable", Timestamp: ts})
		}
		if slices.Contains(words, "error") || slices.Contains(words, "warning") {
			out = append(out, session.UIElement{ElementType: "error_message", Text: text, State: "visible", Timestamp: ts})
		}
		if slices.Contains(words, "form") || slices.Contains(words, "input") {
			out = append(out, session.UIElement{ElementType: "form", Text: text, State: "editable", Timestamp: ts})
		}
	}
	return out
}

// Framework guesses the UI framework from on-screen text.
func Framework(screenText []string) string {
	all := strings.ToLower(strings.Join(screenText, " "))
	switch {
	case strings.Contains(all, "react") || strings.Contains(all, "jsx"):
		return "react"
	case strings.Contains(all, "vue"):
		return "vue"
	case strings.Contains(all, "angular"):
		return "angular"
	case strings.Contains(all, "svelte"):
		return "svelte"
	case strings.Contains(all, "next"):
		return "nextjs"
	}
	return "unknown"
}

// ErrorPatterns lists the error categories mentioned on screen or in the
// transcript.
func ErrorPatterns(screenText []string, transcript string) []string {
	all := strings.ToLower(strings.Join(append(slices.Clone(screenText), transcript), " "))
	rules := []struct {
		name  string
		terms []string
	}{
		{"undefined_null_reference", []string{"undefined", "null"}},
		{"missing_resource", []string{"404", "not found"}},
		{"validation_error", []string{"validation", "required"}},
		{"authentication_issue", []string{"login", "authentication"}},
		{"cors_issue", []string{"cors", "cross-origin"}},
	}
	out := []string{}
	for _, r := range rules {
		for _, term := range r.terms {
			if strings.Contains(all, term) {
				out = append(out, r.name)
				break
			}
		}
	}
	return out
}

// SuggestedFocus maps detected elements and transcript mentions to areas of
// code worth looking at first.
func SuggestedFocus(elements []session.UIElement, transcript string) []string {
	has := func(kind string) bool {
		return slices.ContainsFunc(elements, func(e session.UIElement) bool { return e.ElementType == kind })
	}
	lower := strings.ToLower(transcript)

	out := []string{}
	if has("form") {
		out = append(out, "form_handling")
	}
	if has("button") {
		out = append(out, "event_handling")
	}
	if has("error_message") {
		out = append(out, "error_handling")
	}
	if strings.Contains(lower, "api") {
		out = append(out, "api_integration")
	}
	if strings.Contains(lower, "style") || strings.Contains(lower, "css") {
		out = append(out, "styling")
	}
	return out
}

// textContent is the distinct words longer than two characters across all
// frames, in order of first appearance.
func textContent(screenText []string) []string {
	out := []string{}
	seen := make(map[string]bool)
	for _, text := range screenText {
		for _, w := range strings.Fields(text) {
			if len(w) <= 2 || seen[w] {
				continue
			}
			seen[w] = true
			out = append(out, w)
		}
	}
	return out
}
