package session

import (
	"encoding/json"
	"fmt"
)

// MetadataParseError reports structured metadata that could not be decoded
// into a RecordingMetadata. The session is left untouched when it occurs.
type MetadataParseError struct {
	Err error
}

func (e *MetadataParseError) Error() string {
	return fmt.Sprintf("Failed to parse metadata: %v", e.Err)
}

func (e *MetadataParseError) Unwrap() error { return e.Err }

// Required keys per object. Every field of the metadata model is mandatory;
// unknown keys are ignored.
var (
	metadataKeys  = []string{"session_id", "timestamp", "duration_seconds", "user_context", "visual_context", "technical_context"}
	userKeys      = []string{"transcript", "intent_keywords", "user_emotion", "request_type"}
	visualKeys    = []string{"frames_analyzed", "ui_elements_detected", "color_palette", "layout_analysis", "text_content"}
	uiElementKeys = []string{"element_type", "text", "state", "timestamp"}
	technicalKeys = []string{"detected_framework", "error_patterns", "suggested_focus"}
)

// ParseMetadata decodes an untyped JSON value into RecordingMetadata.
func ParseMetadata(raw []byte) (RecordingMetadata, error) {
	top, err := requireKeys(raw, "metadata", metadataKeys)
	if err != nil {
		return RecordingMetadata{}, &MetadataParseError{Err: err}
	}
	nested := []struct {
		field string
		keys  []string
	}{
		{"user_context", userKeys},
		{"visual_context", visualKeys},
		{"technical_context", technicalKeys},
	}
	for _, n := range nested {
		obj, err := requireKeys(top[n.field], n.field, n.keys)
		if err != nil {
			return RecordingMetadata{}, &MetadataParseError{Err: err}
		}
		if n.field != "visual_context" {
			continue
		}
		var elems []json.RawMessage
		if err := json.Unmarshal(obj["ui_elements_detected"], &elems); err != nil {
			return RecordingMetadata{}, &MetadataParseError{Err: fmt.Errorf("ui_elements_detected: %w", err)}
		}
		for i, el := range elems {
			if _, err := requireKeys(el, fmt.Sprintf("ui_elements_detected[%d]", i), uiElementKeys); err != nil {
				return RecordingMetadata{}, &MetadataParseError{Err: err}
			}
		}
	}

	var md RecordingMetadata
	if err := json.Unmarshal(raw, &md); err != nil {
		return RecordingMetadata{}, &MetadataParseError{Err: err}
	}
	return md, nil
}

func requireKeys(raw json.RawMessage, path string, keys []string) (map[string]json.RawMessage, error) {
	var obj map[string]json.RawMessage
	if err := json.Unmarshal(raw, &obj); err != nil {
		return nil, fmt.Errorf("%s: expected an object: %w", path, err)
	}
	if obj == nil {
		return nil, fmt.Errorf("%s: expected an object, got null", path)
	}
	for _, k := range keys {
		v, ok := obj[k]
		if !ok {
			return nil, fmt.Errorf("%s: missing field `%s`", path, k)
		}
		if string(v) == "null" {
			return nil, fmt.Errorf("%s: field `%s` must not be null", path, k)
		}
	}
	return obj, nil
}
