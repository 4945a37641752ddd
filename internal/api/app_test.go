package api

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/kalambet/clauveo/internal/analysis"
	"github.com/kalambet/clauveo/internal/assistant"
	"github.com/kalambet/clauveo/internal/bridge"
	"github.com/kalambet/clauveo/internal/session"
	"github.com/kalambet/clauveo/internal/staging"
	"github.com/kalambet/clauveo/internal/storage"
)

const testToken = "test-token-12345"

// mockAssistant implements AssistantService.
type mockAssistant struct {
	mu        sync.Mutex
	requests  []assistant.Request
	reply     string
	err       error
	available bool
	cleaned   []string
}

func (m *mockAssistant) Send(req assistant.Request) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.requests = append(m.requests, req)
	return m.reply, m.err
}

func (m *mockAssistant) Available() bool  { return m.available }
func (m *mockAssistant) Strategy() string { return "native" }

func (m *mockAssistant) Cleanup(sessionID string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.cleaned = append(m.cleaned, sessionID)
	return "Cleaned up files for session: " + sessionID, nil
}

type testApp struct {
	handler   http.Handler
	sessions  *session.Manager
	assistant *mockAssistant
	store     *storage.Store
}

func setupApp(t *testing.T) *testApp {
	t.Helper()
	store, err := storage.Open(":memory:")
	if err != nil {
		t.Fatalf("Open(:memory:) failed: %v", err)
	}
	t.Cleanup(func() { store.Close() })

	app := &testApp{
		sessions:  session.NewManager(),
		assistant: &mockAssistant{reply: "done", available: true},
		store:     store,
	}
	app.handler = NewAppHandler(AppDeps{
		Sessions:     app.sessions,
		Assistant:    app.assistant,
		Analyzer:     analysis.NewHeuristic(),
		Interactions: store,
		Token:        testToken,
	})
	return app
}

func (a *testApp) do(t *testing.T, method, url, body string) *httptest.ResponseRecorder {
	t.Helper()
	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, url, reader)
	req.Header.Set("Authorization", "Bearer "+testToken)
	rr := httptest.NewRecorder()
	a.handler.ServeHTTP(rr, req)
	return rr
}

func decodeSession(t *testing.T, rr *httptest.ResponseRecorder) session.RecordingSession {
	t.Helper()
	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", rr.Code, rr.Body.String())
	}
	var s session.RecordingSession
	if err := json.NewDecoder(rr.Body).Decode(&s); err != nil {
		t.Fatalf("decoding session: %v", err)
	}
	return s
}

type errorBody struct {
	Error struct {
		Message string `json:"message"`
		Type    string `json:"type"`
	} `json:"error"`
}

func decodeError(t *testing.T, rr *httptest.ResponseRecorder) errorBody {
	t.Helper()
	var e errorBody
	if err := json.NewDecoder(rr.Body).Decode(&e); err != nil {
		t.Fatalf("decoding error body: %v", err)
	}
	return e
}

func TestHealthNoAuth(t *testing.T) {
	app := setupApp(t)
	rr := httptest.NewRecorder()
	app.handler.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/health", nil))
	if rr.Code != http.StatusOK {
		t.Errorf("status = %d, want 200", rr.Code)
	}
}

func TestAuthRequired(t *testing.T) {
	app := setupApp(t)
	for _, tc := range []struct{ header string }{{""}, {"Bearer wrong"}, {"Basic " + testToken}} {
		req := httptest.NewRequest(http.MethodGet, "/session", nil)
		if tc.header != "" {
			req.Header.Set("Authorization", tc.header)
		}
		rr := httptest.NewRecorder()
		app.handler.ServeHTTP(rr, req)
		if rr.Code != http.StatusUnauthorized {
			t.Errorf("header %q: status = %d, want 401", tc.header, rr.Code)
		}
	}
}

func TestSessionLifecycle(t *testing.T) {
	app := setupApp(t)

	s := decodeSession(t, app.do(t, http.MethodGet, "/session", ""))
	if s.Status != session.Idle() {
		t.Fatalf("initial status = %v", s.Status)
	}

	s = decodeSession(t, app.do(t, http.MethodPost, "/session/start", ""))
	if s.Status != session.Recording() || s.StartTime == nil {
		t.Errorf("after start: %+v", s)
	}

	s = decodeSession(t, app.do(t, http.MethodPost, "/session/stop", ""))
	if s.Status != session.Processing() {
		t.Errorf("after stop: %v", s.Status)
	}

	s = decodeSession(t, app.do(t, http.MethodPost, "/session/analyze",
		`{"transcript":"the save button is broken","screen_text":["Save button","Error saving"]}`))
	if s.Status != session.Completed() || s.Metadata == nil {
		t.Fatalf("after analyze: %+v", s)
	}
	if s.Metadata.SessionID != s.ID {
		t.Errorf("metadata session_id = %q, want %q", s.Metadata.SessionID, s.ID)
	}
	if s.Metadata.UserContext.RequestType != "bug_fix" || s.Metadata.VisualContext.FramesAnalyzed != 2 {
		t.Errorf("metadata = %+v", s.Metadata)
	}

	s = decodeSession(t, app.do(t, http.MethodPost, "/session/error", `{"message":"assistant crashed"}`))
	if s.Status != session.Failed("assistant crashed") || s.Metadata != nil {
		t.Errorf("after error: %+v", s)
	}
}

func TestSessionStatusWireFormat(t *testing.T) {
	app := setupApp(t)
	app.do(t, http.MethodPost, "/session/error", `{"message":"boom"}`)

	rr := app.do(t, http.MethodGet, "/session", "")
	var raw map[string]json.RawMessage
	if err := json.NewDecoder(rr.Body).Decode(&raw); err != nil {
		t.Fatal(err)
	}
	if got := string(raw["status"]); got != `{"Error":"boom"}` {
		t.Errorf("status = %s", got)
	}
	if got := string(raw["metadata"]); got != "null" {
		t.Errorf("metadata = %s, want null", got)
	}
}

func TestSubmitMetadata_Malformed(t *testing.T) {
	app := setupApp(t)
	app.do(t, http.MethodPost, "/session/stop", "")

	rr := app.do(t, http.MethodPost, "/session/metadata", `{"session_id":"x"}`)
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rr.Code)
	}
	e := decodeError(t, rr)
	if e.Error.Type != "invalid_request_error" || !strings.HasPrefix(e.Error.Message, "Failed to parse metadata:") {
		t.Errorf("error = %+v", e)
	}

	s := decodeSession(t, app.do(t, http.MethodGet, "/session", ""))
	if s.Status != session.Processing() {
		t.Errorf("status changed to %v after malformed metadata", s.Status)
	}
}

func TestMarkError_RequiresMessage(t *testing.T) {
	app := setupApp(t)
	if rr := app.do(t, http.MethodPost, "/session/error", `{"message":"  "}`); rr.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", rr.Code)
	}
}

func TestSend(t *testing.T) {
	app := setupApp(t)
	cur := decodeSession(t, app.do(t, http.MethodGet, "/session", ""))

	rr := app.do(t, http.MethodPost, "/assistant/messages",
		`{"message":"why?","frames":["AAAA"],"transcript":"it fails","project_path":"/work"}`)
	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", rr.Code, rr.Body.String())
	}
	var resp map[string]string
	json.NewDecoder(rr.Body).Decode(&resp)
	if resp["response"] != "done" {
		t.Errorf("response = %q", resp["response"])
	}

	got := app.assistant.requests[0]
	if got.Message != "why?" || got.Transcript != "it fails" || got.ProjectPath != "/work" || len(got.Frames) != 1 {
		t.Errorf("request = %+v", got)
	}
	if got.SessionID != cur.ID {
		t.Errorf("SessionID = %q, want current session %q", got.SessionID, cur.ID)
	}
}

func TestSend_Validation(t *testing.T) {
	app := setupApp(t)
	for _, body := range []string{`not json`, `{"frames":[]}`} {
		if rr := app.do(t, http.MethodPost, "/assistant/messages", body); rr.Code != http.StatusBadRequest {
			t.Errorf("body %q: status = %d, want 400", body, rr.Code)
		}
	}
	if len(app.assistant.requests) != 0 {
		t.Error("assistant should not be called for invalid requests")
	}
}

func TestErrorMapping(t *testing.T) {
	cases := []struct {
		err      error
		code     int
		wantType string
	}{
		{&bridge.SpawnError{Command: "claude", Err: io.EOF}, http.StatusBadGateway, "spawn_error"},
		{&bridge.ExitError{Code: 2, Stderr: "bad flag"}, http.StatusBadGateway, "process_error"},
		{&staging.ScratchDirError{Op: "create", Path: "/x", Err: io.EOF}, http.StatusInternalServerError, "scratch_error"},
		{session.ErrLockUnavailable, http.StatusServiceUnavailable, "lock_unavailable"},
		{&session.MetadataParseError{Err: io.EOF}, http.StatusBadRequest, "invalid_request_error"},
		{storage.ErrNotFound, http.StatusNotFound, "not_found"},
		{io.ErrUnexpectedEOF, http.StatusInternalServerError, "api_error"},
	}
	for _, tc := range cases {
		app := setupApp(t)
		app.assistant.err = tc.err

		rr := app.do(t, http.MethodPost, "/assistant/messages", `{"message":"m"}`)
		if rr.Code != tc.code {
			t.Errorf("%T: status = %d, want %d", tc.err, rr.Code, tc.code)
		}
		e := decodeError(t, rr)
		if e.Error.Type != tc.wantType {
			t.Errorf("%T: type = %q, want %q", tc.err, e.Error.Type, tc.wantType)
		}
		if e.Error.Message != tc.err.Error() {
			t.Errorf("%T: message = %q, want %q", tc.err, e.Error.Message, tc.err.Error())
		}
	}
}

func TestAvailable(t *testing.T) {
	app := setupApp(t)
	app.assistant.available = false

	rr := app.do(t, http.MethodGet, "/assistant/available", "")
	var resp struct {
		Available bool   `json:"available"`
		Strategy  string `json:"strategy"`
	}
	if err := json.NewDecoder(rr.Body).Decode(&resp); err != nil {
		t.Fatal(err)
	}
	if resp.Available || resp.Strategy != "native" {
		t.Errorf("resp = %+v", resp)
	}
}

func TestCleanup(t *testing.T) {
	app := setupApp(t)

	rr := app.do(t, http.MethodDelete, "/sessions/abc-123/files", "")
	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d", rr.Code)
	}
	var resp map[string]string
	json.NewDecoder(rr.Body).Decode(&resp)
	if resp["message"] != "Cleaned up files for session: abc-123" {
		t.Errorf("message = %q", resp["message"])
	}
	if len(app.assistant.cleaned) != 1 || app.assistant.cleaned[0] != "abc-123" {
		t.Errorf("cleaned = %v", app.assistant.cleaned)
	}
}

func TestInteractions(t *testing.T) {
	app := setupApp(t)
	base := time.Date(2026, 10, 16, 9, 0, 0, 0, time.UTC)
	for i, id := range []string{"a", "b", "c"} {
		if err := app.store.SaveInteraction(storage.Interaction{ID: id, CreatedAt: base.Add(time.Duration(i) * time.Minute), Message: "m-" + id}); err != nil {
			t.Fatal(err)
		}
	}

	rr := app.do(t, http.MethodGet, "/interactions?limit=2", "")
	var list []storage.Interaction
	if err := json.NewDecoder(rr.Body).Decode(&list); err != nil {
		t.Fatal(err)
	}
	if len(list) != 2 || list[0].ID != "c" {
		t.Errorf("list = %+v", list)
	}

	rr = app.do(t, http.MethodGet, "/interactions/b", "")
	var one storage.Interaction
	json.NewDecoder(rr.Body).Decode(&one)
	if one.Message != "m-b" {
		t.Errorf("get = %+v", one)
	}

	if rr := app.do(t, http.MethodDelete, "/interactions/b", ""); rr.Code != http.StatusOK {
		t.Errorf("delete status = %d", rr.Code)
	}
	if rr := app.do(t, http.MethodGet, "/interactions/b", ""); rr.Code != http.StatusNotFound {
		t.Errorf("get after delete status = %d, want 404", rr.Code)
	}
	if rr := app.do(t, http.MethodDelete, "/interactions/b", ""); rr.Code != http.StatusNotFound {
		t.Errorf("second delete status = %d, want 404", rr.Code)
	}
}

func TestInteractions_EmptyList(t *testing.T) {
	app := setupApp(t)
	rr := app.do(t, http.MethodGet, "/interactions", "")
	if body := strings.TrimSpace(rr.Body.String()); body != "[]" {
		t.Errorf("body = %s, want []", body)
	}
}
