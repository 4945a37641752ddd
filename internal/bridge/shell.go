package bridge

import (
	"errors"
	"log/slog"
	"os"
	"os/exec"
	"strings"
)

// Shell launches the assistant inside a compatibility shell such as WSL. The
// shell prefix (e.g. "wsl -e") runs a POSIX sh that prepends the search paths
// to the guest PATH and then execs the assistant with the chat arguments.
type Shell struct {
	prefix      []string
	binary      string
	searchPaths []string
	logger      *slog.Logger
}

// NewShell creates a Shell bridge. prefix is the command that enters the
// compatibility layer, split on whitespace.
func NewShell(prefix, binary string, searchPaths []string) *Shell {
	return &Shell{
		prefix:      strings.Fields(prefix),
		binary:      binary,
		searchPaths: searchPaths,
		logger:      slog.Default(),
	}
}

func (s *Shell) Name() string { return "shell" }

func (s *Shell) Send(req Request) (string, error) {
	return s.invoke(chatArgs(req, GuestPath), req.Dir)
}

func (s *Shell) Available() bool {
	_, err := s.invoke([]string{"--version"}, "")
	return err == nil
}

func (s *Shell) invoke(assistantArgs []string, dir string) (string, error) {
	if len(s.prefix) == 0 {
		return "", &SpawnError{Command: "shell", Err: errors.New("assistant.shell is empty")}
	}
	shellPath, err := exec.LookPath(s.prefix[0])
	if err != nil {
		return "", &SpawnError{Command: s.prefix[0], Err: err}
	}

	args := make([]string, 0, len(s.prefix)+4+len(assistantArgs))
	args = append(args, s.prefix[1:]...)
	args = append(args, "sh", "-c", s.script(), s.binary)
	args = append(args, assistantArgs...)
	return run(s.logger, shellPath, args, os.Environ(), dir)
}

// script is the sh program run inside the guest. The assistant binary and
// its arguments arrive as $0 and $@ so they are never re-parsed by the shell.
func (s *Shell) script() string {
	var dirs []string
	for _, p := range s.searchPaths {
		if p == "" {
			continue
		}
		if strings.HasPrefix(p, "~/") {
			dirs = append(dirs, `"$HOME"`+shellQuote(p[1:]))
			continue
		}
		dirs = append(dirs, shellQuote(GuestPath(p)))
	}
	if len(dirs) == 0 {
		return `exec "$0" "$@"`
	}
	return `PATH=` + strings.Join(dirs, ":") + `:"$PATH"; export PATH; exec "$0" "$@"`
}

// GuestPath maps a Windows drive path (C:\Users\x) to its mount under the
// compatibility layer (/mnt/c/Users/x). Other paths are returned unchanged.
func GuestPath(p string) string {
	if len(p) < 2 || p[1] != ':' || !isDriveLetter(p[0]) {
		return p
	}
	rest := strings.ReplaceAll(p[2:], `\`, "/")
	if rest != "" && !strings.HasPrefix(rest, "/") {
		rest = "/" + rest
	}
	return "/mnt/" + strings.ToLower(p[:1]) + rest
}

func isDriveLetter(c byte) bool {
	return ('a' <= c && c <= 'z') || ('A' <= c && c <= 'Z')
}

func shellQuote(s string) string {
	return "'" + strings.ReplaceAll(s, "'", `'\''`) + "'"
}
