package bridge

import (
	"fmt"
	"log/slog"
	"os"
)

// Native launches the assistant binary directly on the host.
type Native struct {
	binary      string
	searchPaths []string
	logger      *slog.Logger
}

// NewNative creates a Native bridge. searchPaths are prepended to PATH both
// when resolving binary and in the child's environment.
func NewNative(binary string, searchPaths []string) *Native {
	return &Native{
		binary:      binary,
		searchPaths: searchPaths,
		logger:      slog.Default(),
	}
}

func (n *Native) Name() string { return "native" }

func (n *Native) Send(req Request) (string, error) {
	path, env, err := n.resolve()
	if err != nil {
		return "", err
	}
	if req.Dir != "" {
		if info, statErr := os.Stat(req.Dir); statErr != nil || !info.IsDir() {
			return "", &SpawnError{Command: path, Err: fmt.Errorf("working directory %s is not accessible", req.Dir)}
		}
	}
	return run(n.logger, path, chatArgs(req, func(p string) string { return p }), env, req.Dir)
}

func (n *Native) Available() bool {
	path, env, err := n.resolve()
	if err != nil {
		return false
	}
	_, err = run(n.logger, path, []string{"--version"}, env, "")
	return err == nil
}

func (n *Native) resolve() (string, []string, error) {
	home, _ := os.UserHomeDir()
	pathList := augmentPath(n.searchPaths, os.Getenv("PATH"), home)
	bin, err := lookPath(n.binary, pathList)
	if err != nil {
		return "", nil, &SpawnError{Command: n.binary, Err: err}
	}
	return bin, setEnv(os.Environ(), "PATH", pathList), nil
}
