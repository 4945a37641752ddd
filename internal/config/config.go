package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

type Config struct {
	Server    ServerConfig
	Assistant AssistantConfig
	Staging   StagingConfig
	Storage   StorageConfig
	Session   SessionConfig
	Janitor   JanitorConfig
	Log       LogConfig
}

type ServerConfig struct {
	Port     int
	MaxConns int
	// CORSOrigins are the browser origins allowed to call the API, e.g. the
	// desktop frontend's webview.
	CORSOrigins []string
}

// AssistantConfig controls how the external assistant CLI is invoked.
type AssistantConfig struct {
	Binary string
	// Mode is one of "auto", "native" or "shell".
	Mode string
	// Shell is the compatibility-layer command prefix, e.g. "wsl -e".
	Shell string
	// SearchPaths are prepended to PATH before the binary is resolved.
	SearchPaths []string
}

type StagingConfig struct {
	ScratchRoot string
	Concurrency int
}

type StorageConfig struct {
	DataDir string
}

type SessionConfig struct {
	MarkErrorOnFailure bool
}

type JanitorConfig struct {
	Interval string
	MaxAge   string
}

type LogConfig struct {
	Level string
}

func defaults() Config {
	return Config{
		Server: ServerConfig{
			Port:        4100,
			MaxConns:    32,
			CORSOrigins: []string{"http://localhost:1420", "tauri://localhost", "http://tauri.localhost"},
		},
		Assistant: AssistantConfig{
			Binary:      "claude",
			Mode:        "auto",
			Shell:       "wsl -e",
			SearchPaths: defaultSearchPaths(),
		},
		Staging: StagingConfig{
			ScratchRoot: filepath.Join(os.TempDir(), "clauveo"),
			Concurrency: 4,
		},
		Storage: StorageConfig{
			DataDir: ":memory:",
		},
		Session: SessionConfig{
			MarkErrorOnFailure: true,
		},
		Janitor: JanitorConfig{
			Interval: "1m",
			MaxAge:   "10m",
		},
		Log: LogConfig{
			Level: "info",
		},
	}
}

// defaultSearchPaths lists the usual install locations of the assistant CLI.
// A leading "~/" is expanded against the home directory of whoever runs the
// assistant, so no account-specific path is ever baked in.
func defaultSearchPaths() []string {
	return []string{"~/.claude/local", "~/.local/bin", "/usr/local/bin", "/opt/homebrew/bin"}
}

// Load reads configuration from the platform-native backend and environment
// variables.
//
// On macOS the backend is UserDefaults (domain: com.clauveo.app).
// On Linux and Windows the backend is a JSON file at
// $XDG_CONFIG_HOME/clauveo/config.json.
//
// Environment variables (CLAUVEO_*) override backend values on all platforms.
func Load() (Config, error) {
	return loadWith(newPlatformBackend())
}

func loadWith(b ConfigBackend) (Config, error) {
	cfg := defaults()

	if err := applyBackend(&cfg, b); err != nil {
		return Config{}, err
	}

	applyEnvOverrides(&cfg)

	if err := validate(cfg); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func validate(cfg Config) error {
	switch cfg.Assistant.Mode {
	case "auto", "native", "shell":
	default:
		return fmt.Errorf("invalid config: assistant.mode must be one of auto, native, shell (got %q)", cfg.Assistant.Mode)
	}
	if cfg.Server.Port <= 0 || cfg.Server.Port > 65535 {
		return fmt.Errorf("invalid config: server.port %d out of range", cfg.Server.Port)
	}
	if strings.TrimSpace(cfg.Assistant.Binary) == "" {
		return fmt.Errorf("invalid config: assistant.binary is empty")
	}
	return nil
}

// splitPathList splits a PATH-style list, dropping empty entries.
func splitPathList(s string) []string {
	var out []string
	for _, p := range filepath.SplitList(s) {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}
