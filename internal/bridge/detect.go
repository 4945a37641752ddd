package bridge

import (
	"errors"
	"fmt"
	"runtime"
)

// ErrUnsupportedMode is returned by Detect for an unknown mode.
var ErrUnsupportedMode = errors.New("unsupported assistant mode")

// DetectConfig holds parameters for bridge selection.
type DetectConfig struct {
	// Mode is "auto", "native" or "shell".
	Mode        string
	Binary      string
	Shell       string
	SearchPaths []string
	// GOOS overrides runtime.GOOS; used by tests.
	GOOS string
}

// Detect returns the bridge for cfg.Mode. In auto mode Windows hosts go
// through the compatibility shell and everything else runs natively.
func Detect(cfg DetectConfig) (Bridge, error) {
	goos := cfg.GOOS
	if goos == "" {
		goos = runtime.GOOS
	}
	mode := cfg.Mode
	if mode == "" || mode == "auto" {
		mode = "native"
		if goos == "windows" {
			mode = "shell"
		}
	}
	switch mode {
	case "native":
		return NewNative(cfg.Binary, cfg.SearchPaths), nil
	case "shell":
		return NewShell(cfg.Shell, cfg.Binary, cfg.SearchPaths), nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedMode, cfg.Mode)
	}
}
