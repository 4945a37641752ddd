// Package bridge invokes the external assistant CLI as a subprocess and
// returns its standard output.
package bridge

import (
	"bytes"
	"errors"
	"fmt"
	"log/slog"
	"os/exec"
	"strings"
)

// Request is a single message for the assistant CLI.
type Request struct {
	Message string
	// Attachments are absolute file paths passed with --attach, in order.
	Attachments []string
	// Dir is the working directory for the child process. Empty means the
	// daemon's own working directory.
	Dir string
}

// Bridge sends a message to the assistant CLI and waits for its reply.
// Implementations differ in how the process is launched (directly or
// through a compatibility shell).
type Bridge interface {
	// Send runs the assistant with the request and returns its stdout.
	Send(req Request) (string, error)

	// Available reports whether the assistant can be launched at all.
	Available() bool

	// Name identifies the strategy ("native" or "shell").
	Name() string
}

// SpawnError means the assistant process could not be started.
type SpawnError struct {
	Command string
	Err     error
}

func (e *SpawnError) Error() string {
	return fmt.Sprintf("failed to run %s: %v (verify the assistant CLI is installed and that its directory is listed in assistant.search_paths)", e.Command, e.Err)
}

func (e *SpawnError) Unwrap() error { return e.Err }

// ExitError means the assistant ran but exited with a non-zero status.
// Stderr is the process's standard error, verbatim.
type ExitError struct {
	Code   int
	Stderr string
}

func (e *ExitError) Error() string {
	msg := strings.TrimSpace(e.Stderr)
	if msg == "" {
		return fmt.Sprintf("assistant exited with status %d", e.Code)
	}
	return fmt.Sprintf("assistant exited with status %d: %s", e.Code, msg)
}

// chatArgs builds the argument vector for a chat invocation. guest maps a
// host attachment path to the path the child process sees.
func chatArgs(req Request, guest func(string) string) []string {
	args := make([]string, 0, 2+2*len(req.Attachments))
	args = append(args, "chat", req.Message)
	for _, p := range req.Attachments {
		args = append(args, "--attach", guest(p))
	}
	return args
}

func run(logger *slog.Logger, name string, args, env []string, dir string) (string, error) {
	cmd := exec.Command(name, args...)
	cmd.Env = env
	cmd.Dir = dir

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	logger.Debug("invoking assistant", "command", name, "args", len(args), "dir", dir)
	if err := cmd.Run(); err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			logger.Warn("assistant exited with error", "command", name, "code", exitErr.ExitCode())
			return "", &ExitError{Code: exitErr.ExitCode(), Stderr: decodeOutput(stderr.Bytes())}
		}
		logger.Warn("assistant failed to start", "command", name, "error", err)
		return "", &SpawnError{Command: name, Err: err}
	}
	return decodeOutput(stdout.Bytes()), nil
}

// decodeOutput converts process output to a string, replacing invalid UTF-8
// sequences with U+FFFD.
func decodeOutput(b []byte) string {
	return strings.ToValidUTF8(string(b), "\uFFFD")
}
