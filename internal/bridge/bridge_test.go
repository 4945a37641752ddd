package bridge

import (
	"errors"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"testing"
)

// writeAssistant installs a fake assistant CLI named "assistant" in a fresh
// directory and returns that directory.
func writeAssistant(t *testing.T, body string) string {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("fake assistant is a POSIX shell script")
	}
	dir := t.TempDir()
	script := "#!/bin/sh\n" + body + "\n"
	if err := os.WriteFile(filepath.Join(dir, "assistant"), []byte(script), 0o755); err != nil {
		t.Fatal(err)
	}
	return dir
}

const echoArgs = `if [ "$1" = "--version" ]; then echo 1.0.0; exit 0; fi
printf '%s\n' "$@"`

func TestNativeSend_PassesArguments(t *testing.T) {
	dir := writeAssistant(t, echoArgs)
	b := NewNative("assistant", []string{dir})

	out, err := b.Send(Request{
		Message:     "fix the button",
		Attachments: []string{"/tmp/a/frame_1.jpg", "/tmp/a/frame_2.jpg"},
	})
	if err != nil {
		t.Fatalf("Send: %v", err)
	}
	want := "chat\nfix the button\n--attach\n/tmp/a/frame_1.jpg\n--attach\n/tmp/a/frame_2.jpg\n"
	if out != want {
		t.Errorf("out = %q, want %q", out, want)
	}
}

func TestNativeSend_NoAttachments(t *testing.T) {
	dir := writeAssistant(t, echoArgs)
	out, err := NewNative("assistant", []string{dir}).Send(Request{Message: "hi"})
	if err != nil {
		t.Fatalf("Send: %v", err)
	}
	if out != "chat\nhi\n" {
		t.Errorf("out = %q", out)
	}
}

func TestNativeSend_WorkingDirectory(t *testing.T) {
	dir := writeAssistant(t, "pwd")
	project := t.TempDir()

	out, err := NewNative("assistant", []string{dir}).Send(Request{Message: "x", Dir: project})
	if err != nil {
		t.Fatalf("Send: %v", err)
	}
	got, _ := filepath.EvalSymlinks(strings.TrimSpace(out))
	want, _ := filepath.EvalSymlinks(project)
	if got != want {
		t.Errorf("child ran in %q, want %q", got, want)
	}
}

func TestNativeSend_MissingWorkingDirectory(t *testing.T) {
	dir := writeAssistant(t, echoArgs)
	_, err := NewNative("assistant", []string{dir}).Send(Request{
		Message: "x",
		Dir:     filepath.Join(t.TempDir(), "gone"),
	})
	var spawnErr *SpawnError
	if !errors.As(err, &spawnErr) {
		t.Fatalf("err = %v, want *SpawnError", err)
	}
}

func TestNativeSend_ExitError(t *testing.T) {
	dir := writeAssistant(t, `echo "rate limited" >&2; exit 3`)

	_, err := NewNative("assistant", []string{dir}).Send(Request{Message: "x"})
	var exitErr *ExitError
	if !errors.As(err, &exitErr) {
		t.Fatalf("err = %v, want *ExitError", err)
	}
	if exitErr.Code != 3 {
		t.Errorf("Code = %d, want 3", exitErr.Code)
	}
	if exitErr.Stderr != "rate limited\n" {
		t.Errorf("Stderr = %q", exitErr.Stderr)
	}
	if !strings.Contains(err.Error(), "rate limited") {
		t.Errorf("error text %q should carry stderr", err)
	}
}

func TestNativeSend_NotFound(t *testing.T) {
	t.Setenv("PATH", t.TempDir())

	_, err := NewNative("no-such-assistant", nil).Send(Request{Message: "x"})
	var spawnErr *SpawnError
	if !errors.As(err, &spawnErr) {
		t.Fatalf("err = %v, want *SpawnError", err)
	}
	if !strings.Contains(err.Error(), "search_paths") {
		t.Errorf("error %q should point at assistant.search_paths", err)
	}
}

func TestNativeSend_InvalidUTF8Replaced(t *testing.T) {
	dir := writeAssistant(t, `printf 'ok\377done'`)

	out, err := NewNative("assistant", []string{dir}).Send(Request{Message: "x"})
	if err != nil {
		t.Fatalf("Send: %v", err)
	}
	if out != "ok\uFFFDdone" {
		t.Errorf("out = %q", out)
	}
}

func TestNativeSend_SearchPathsInChildEnv(t *testing.T) {
	dir := writeAssistant(t, `echo "$PATH"`)
	t.Setenv("PATH", "/usr/bin:/bin")

	out, err := NewNative("assistant", []string{dir}).Send(Request{Message: "x"})
	if err != nil {
		t.Fatalf("Send: %v", err)
	}
	want := dir + string(os.PathListSeparator) + "/usr/bin:/bin"
	if strings.TrimSpace(out) != want {
		t.Errorf("child PATH = %q, want %q", strings.TrimSpace(out), want)
	}
}

func TestNativeSend_HomeRelativeSearchPath(t *testing.T) {
	dir := writeAssistant(t, echoArgs)
	home := filepath.Dir(dir)
	t.Setenv("HOME", home)

	b := NewNative("assistant", []string{"~/" + filepath.Base(dir)})
	if _, err := b.Send(Request{Message: "x"}); err != nil {
		t.Fatalf("Send via ~/ search path: %v", err)
	}
}

func TestNativeAvailable(t *testing.T) {
	dir := writeAssistant(t, echoArgs)
	if !NewNative("assistant", []string{dir}).Available() {
		t.Error("expected assistant to be available")
	}

	broken := writeAssistant(t, "exit 1")
	if NewNative("assistant", []string{broken}).Available() {
		t.Error("assistant failing --version should be unavailable")
	}

	t.Setenv("PATH", t.TempDir())
	if NewNative("missing", nil).Available() {
		t.Error("missing binary should be unavailable")
	}
}

// TestShellSend runs the shell strategy with "env" as the compatibility
// prefix, which exercises the generated sh script end to end.
func TestShellSend(t *testing.T) {
	dir := writeAssistant(t, echoArgs)

	b := NewShell("env", "assistant", []string{dir})
	out, err := b.Send(Request{
		Message:     "it's broken",
		Attachments: []string{`C:\Users\dev\scratch\frame_1.jpg`},
	})
	if err != nil {
		t.Fatalf("Send: %v", err)
	}
	want := "chat\nit's broken\n--attach\n/mnt/c/Users/dev/scratch/frame_1.jpg\n"
	if out != want {
		t.Errorf("out = %q, want %q", out, want)
	}
	if !b.Available() {
		t.Error("expected shell assistant to be available")
	}
}

func TestShellSend_MissingPrefix(t *testing.T) {
	_, err := NewShell("definitely-not-a-shell -e", "assistant", nil).Send(Request{Message: "x"})
	var spawnErr *SpawnError
	if !errors.As(err, &spawnErr) {
		t.Fatalf("err = %v, want *SpawnError", err)
	}
}

func TestShellScript(t *testing.T) {
	s := NewShell("wsl -e", "claude", []string{"~/.claude/local", "/usr/local/bin", `D:\tools`, "it's"})
	want := `PATH="$HOME"'/.claude/local':'/usr/local/bin':'/mnt/d/tools':'it'\''s':"$PATH"; export PATH; exec "$0" "$@"`
	if got := s.script(); got != want {
		t.Errorf("script =\n%s\nwant\n%s", got, want)
	}

	if got := NewShell("wsl -e", "claude", nil).script(); got != `exec "$0" "$@"` {
		t.Errorf("script without search paths = %s", got)
	}
}

func TestGuestPath(t *testing.T) {
	cases := map[string]string{
		`C:\Users\dev\a.jpg`: "/mnt/c/Users/dev/a.jpg",
		`d:/data/b.jpg`:      "/mnt/d/data/b.jpg",
		`E:`:                 "/mnt/e",
		"/tmp/c.jpg":         "/tmp/c.jpg",
		"relative/d.jpg":     "relative/d.jpg",
		"1:/odd":             "1:/odd",
	}
	for in, want := range cases {
		if got := GuestPath(in); got != want {
			t.Errorf("GuestPath(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestDetect(t *testing.T) {
	cases := []struct {
		mode, goos string
		want       string
	}{
		{"auto", "darwin", "native"},
		{"auto", "linux", "native"},
		{"auto", "windows", "shell"},
		{"", "windows", "shell"},
		{"native", "windows", "native"},
		{"shell", "linux", "shell"},
	}
	for _, tc := range cases {
		b, err := Detect(DetectConfig{Mode: tc.mode, GOOS: tc.goos, Binary: "claude", Shell: "wsl -e"})
		if err != nil {
			t.Fatalf("Detect(%q, %q): %v", tc.mode, tc.goos, err)
		}
		if b.Name() != tc.want {
			t.Errorf("Detect(%q, %q) = %s, want %s", tc.mode, tc.goos, b.Name(), tc.want)
		}
	}

	if _, err := Detect(DetectConfig{Mode: "docker"}); !errors.Is(err, ErrUnsupportedMode) {
		t.Errorf("err = %v, want ErrUnsupportedMode", err)
	}
}
