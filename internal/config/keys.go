package config

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
)

type keyType int

const (
	kString keyType = iota
	kInt
	kBool
	kList
)

type keySpec struct {
	key     string
	typ     keyType
	env     string
	sep     string // kList item separator; empty means os.PathListSeparator
	secret  bool
	apply   func(cfg *Config, v any)
	extract func(cfg Config) any
}

var specs = []keySpec{
	{
		key: "server.port", typ: kInt, env: "CLAUVEO_SERVER_PORT",
		apply:   func(cfg *Config, v any) { cfg.Server.Port = v.(int) },
		extract: func(cfg Config) any { return cfg.Server.Port },
	},
	{
		key: "server.max_conns", typ: kInt, env: "CLAUVEO_SERVER_MAX_CONNS",
		apply:   func(cfg *Config, v any) { cfg.Server.MaxConns = v.(int) },
		extract: func(cfg Config) any { return cfg.Server.MaxConns },
	},
	{
		key: "server.cors_origins", typ: kList, env: "CLAUVEO_SERVER_CORS_ORIGINS", sep: ",",
		apply:   func(cfg *Config, v any) { cfg.Server.CORSOrigins = v.([]string) },
		extract: func(cfg Config) any { return strings.Join(cfg.Server.CORSOrigins, ",") },
	},
	{
		key: "assistant.binary", typ: kString, env: "CLAUVEO_ASSISTANT_BINARY",
		apply:   func(cfg *Config, v any) { cfg.Assistant.Binary = v.(string) },
		extract: func(cfg Config) any { return cfg.Assistant.Binary },
	},
	{
		key: "assistant.mode", typ: kString, env: "CLAUVEO_ASSISTANT_MODE",
		apply:   func(cfg *Config, v any) { cfg.Assistant.Mode = strings.ToLower(v.(string)) },
		extract: func(cfg Config) any { return cfg.Assistant.Mode },
	},
	{
		key: "assistant.shell", typ: kString, env: "CLAUVEO_ASSISTANT_SHELL",
		apply:   func(cfg *Config, v any) { cfg.Assistant.Shell = v.(string) },
		extract: func(cfg Config) any { return cfg.Assistant.Shell },
	},
	{
		key: "assistant.search_paths", typ: kList, env: "CLAUVEO_ASSISTANT_SEARCH_PATHS",
		apply:   func(cfg *Config, v any) { cfg.Assistant.SearchPaths = v.([]string) },
		extract: func(cfg Config) any { return strings.Join(cfg.Assistant.SearchPaths, string(os.PathListSeparator)) },
	},
	{
		key: "staging.scratch_root", typ: kString, env: "CLAUVEO_STAGING_SCRATCH_ROOT",
		apply:   func(cfg *Config, v any) { cfg.Staging.ScratchRoot = v.(string) },
		extract: func(cfg Config) any { return cfg.Staging.ScratchRoot },
	},
	{
		key: "staging.concurrency", typ: kInt, env: "CLAUVEO_STAGING_CONCURRENCY",
		apply:   func(cfg *Config, v any) { cfg.Staging.Concurrency = v.(int) },
		extract: func(cfg Config) any { return cfg.Staging.Concurrency },
	},
	{
		key: "storage.data_dir", typ: kString, env: "CLAUVEO_STORAGE_DATA_DIR",
		apply:   func(cfg *Config, v any) { cfg.Storage.DataDir = v.(string) },
		extract: func(cfg Config) any { return cfg.Storage.DataDir },
	},
	{
		key: "session.mark_error_on_failure", typ: kBool, env: "CLAUVEO_SESSION_MARK_ERROR_ON_FAILURE",
		apply:   func(cfg *Config, v any) { cfg.Session.MarkErrorOnFailure = v.(bool) },
		extract: func(cfg Config) any { return cfg.Session.MarkErrorOnFailure },
	},
	{
		key: "janitor.interval", typ: kString, env: "CLAUVEO_JANITOR_INTERVAL",
		apply:   func(cfg *Config, v any) { cfg.Janitor.Interval = v.(string) },
		extract: func(cfg Config) any { return cfg.Janitor.Interval },
	},
	{
		key: "janitor.max_age", typ: kString, env: "CLAUVEO_JANITOR_MAX_AGE",
		apply:   func(cfg *Config, v any) { cfg.Janitor.MaxAge = v.(string) },
		extract: func(cfg Config) any { return cfg.Janitor.MaxAge },
	},
	{
		key: "log.level", typ: kString, env: "CLAUVEO_LOG_LEVEL",
		apply:   func(cfg *Config, v any) { cfg.Log.Level = v.(string) },
		extract: func(cfg Config) any { return cfg.Log.Level },
	},
	{
		key: "api.token", typ: kString, env: "CLAUVEO_API_TOKEN",
		secret:  true,
		apply:   func(cfg *Config, v any) {},
		extract: func(cfg Config) any { return "" },
	},
}

func applyBackend(cfg *Config, b ConfigBackend) error {
	for _, s := range specs {
		if s.secret {
			continue
		}
		switch s.typ {
		case kString:
			v, ok, err := b.GetString(s.key)
			if err != nil {
				return fmt.Errorf("reading %s: %w", s.key, err)
			}
			if ok {
				s.apply(cfg, v)
			}
		case kList:
			v, ok, err := b.GetList(s.key)
			if err != nil {
				return fmt.Errorf("reading %s: %w", s.key, err)
			}
			if ok {
				var items []string
				for _, item := range v {
					items = append(items, s.splitList(item)...)
				}
				s.apply(cfg, items)
			}
		case kInt:
			v, ok, err := b.GetInt(s.key)
			if err != nil {
				return fmt.Errorf("reading %s: %w", s.key, err)
			}
			if ok {
				s.apply(cfg, v)
			}
		case kBool:
			v, ok, err := b.GetBool(s.key)
			if err != nil {
				slog.Warn("invalid boolean in config, using default", "key", s.key, "error", err)
				continue
			}
			if ok {
				s.apply(cfg, v)
			}
		}
	}
	return nil
}

func applyEnvOverrides(cfg *Config) {
	for _, s := range specs {
		if s.env == "" || s.secret {
			continue
		}
		raw := os.Getenv(s.env)
		if raw == "" {
			continue
		}
		switch s.typ {
		case kString:
			s.apply(cfg, raw)
		case kList:
			s.apply(cfg, s.splitList(raw))
		case kInt:
			if i, err := strconv.Atoi(raw); err == nil {
				s.apply(cfg, i)
			} else {
				slog.Warn("invalid integer in environment, using default", "env", s.env, "value", raw, "error", err)
			}
		case kBool:
			if b, err := strconv.ParseBool(raw); err == nil {
				s.apply(cfg, b)
			} else {
				slog.Warn("invalid boolean in environment, using default", "env", s.env, "value", raw, "error", err)
			}
		}
	}
}

func (s keySpec) splitList(raw string) []string {
	if s.sep == "" {
		return splitPathList(raw)
	}
	var out []string
	for _, item := range strings.Split(raw, s.sep) {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}
