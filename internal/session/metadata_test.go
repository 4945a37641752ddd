package session

import (
	"encoding/json"
	"errors"
	"strings"
	"testing"
)

// mutate decodes validMetadata, applies fn and re-encodes it.
func mutate(t *testing.T, fn func(m map[string]any)) []byte {
	t.Helper()
	var m map[string]any
	if err := json.Unmarshal([]byte(validMetadata), &m); err != nil {
		t.Fatal(err)
	}
	fn(m)
	b, err := json.Marshal(m)
	if err != nil {
		t.Fatal(err)
	}
	return b
}

func TestParseMetadata_Valid(t *testing.T) {
	md, err := ParseMetadata([]byte(validMetadata))
	if err != nil {
		t.Fatalf("ParseMetadata: %v", err)
	}
	if md.SessionID != "abc" || md.DurationSeconds != 12 {
		t.Errorf("unexpected top-level fields: %+v", md)
	}
	if md.VisualContext.FramesAnalyzed != 3 {
		t.Errorf("frames_analyzed = %d, want 3", md.VisualContext.FramesAnalyzed)
	}
	el := md.VisualContext.UIElementsDetected
	if len(el) != 1 || el[0].ElementType != "button" || el[0].Timestamp != 1.5 {
		t.Errorf("ui elements = %+v", el)
	}
}

func TestParseMetadata_UnknownFieldsIgnored(t *testing.T) {
	raw := mutate(t, func(m map[string]any) { m["extra"] = true })
	if _, err := ParseMetadata(raw); err != nil {
		t.Errorf("unknown field should be ignored, got %v", err)
	}
}

func TestParseMetadata_Invalid(t *testing.T) {
	cases := []struct {
		name string
		raw  []byte
		want string
	}{
		{
			name: "missing top-level",
			raw:  mutate(t, func(m map[string]any) { delete(m, "timestamp") }),
			want: "missing field `timestamp`",
		},
		{
			name: "missing nested",
			raw: mutate(t, func(m map[string]any) {
				delete(m["user_context"].(map[string]any), "request_type")
			}),
			want: "user_context: missing field `request_type`",
		},
		{
			name: "null field",
			raw: mutate(t, func(m map[string]any) {
				m["technical_context"].(map[string]any)["error_patterns"] = nil
			}),
			want: "must not be null",
		},
		{
			name: "ui element missing key",
			raw: mutate(t, func(m map[string]any) {
				vc := m["visual_context"].(map[string]any)
				vc["ui_elements_detected"] = []any{map[string]any{"element_type": "button"}}
			}),
			want: "ui_elements_detected[0]",
		},
		{
			name: "negative frame count",
			raw: mutate(t, func(m map[string]any) {
				m["visual_context"].(map[string]any)["frames_analyzed"] = -1
			}),
			want: "frames_analyzed",
		},
		{
			name: "wrong type",
			raw:  mutate(t, func(m map[string]any) { m["duration_seconds"] = "twelve" }),
			want: "duration_seconds",
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := ParseMetadata(tc.raw)
			var perr *MetadataParseError
			if !errors.As(err, &perr) {
				t.Fatalf("err = %v, want *MetadataParseError", err)
			}
			if !strings.Contains(err.Error(), tc.want) {
				t.Errorf("err = %q, want it to contain %q", err, tc.want)
			}
		})
	}
}
