//go:build !darwin

package config

import (
	"errors"
	"os"
	"path/filepath"
	"runtime"
	"testing"
)

func TestFileBackendRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "clauveo", "config.json")
	b := newFileBackend(path)

	if err := b.SetInt("server.port", 4200); err != nil {
		t.Fatal(err)
	}
	if err := b.SetBool("session.mark_error_on_failure", false); err != nil {
		t.Fatal(err)
	}
	if err := b.SetList("assistant.search_paths", []string{"~/.local/bin", "/opt/bin"}); err != nil {
		t.Fatal(err)
	}

	// Reload from disk so values go through JSON decoding.
	b = newFileBackend(path)

	if v, ok, err := b.GetInt("server.port"); err != nil || !ok || v != 4200 {
		t.Errorf("GetInt = %d, %v, %v", v, ok, err)
	}
	if v, ok, err := b.GetBool("session.mark_error_on_failure"); err != nil || !ok || v {
		t.Errorf("GetBool = %v, %v, %v", v, ok, err)
	}
	v, ok, err := b.GetList("assistant.search_paths")
	if err != nil || !ok || len(v) != 2 || v[0] != "~/.local/bin" {
		t.Errorf("GetList = %v, %v, %v", v, ok, err)
	}

	info, err := os.Stat(path)
	if err != nil {
		t.Fatal(err)
	}
	if runtime.GOOS != "windows" && info.Mode().Perm() != 0o600 {
		t.Errorf("config file mode = %v, want 0600", info.Mode().Perm())
	}
}

func TestFileBackendLenientTypes(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	raw := `{
		"server.port": "4300",
		"session.mark_error_on_failure": "true",
		"assistant.search_paths": "/a` + string(os.PathListSeparator) + `/b",
		"staging.concurrency": 1.5,
		"janitor.max_age": ["x", 3]
	}`
	if err := os.WriteFile(path, []byte(raw), 0o600); err != nil {
		t.Fatal(err)
	}
	b := newFileBackend(path)

	if v, _, err := b.GetInt("server.port"); err != nil || v != 4300 {
		t.Errorf("string port: %d, %v", v, err)
	}
	if v, _, err := b.GetBool("session.mark_error_on_failure"); err != nil || !v {
		t.Errorf("string bool: %v, %v", v, err)
	}
	if v, _, err := b.GetList("assistant.search_paths"); err != nil || len(v) != 1 {
		t.Errorf("plain string should come back as one item: %v, %v", v, err)
	}
	if _, _, err := b.GetInt("staging.concurrency"); err == nil {
		t.Error("expected error for fractional integer")
	}
	if _, _, err := b.GetList("janitor.max_age"); err == nil {
		t.Error("expected error for non-string list item")
	}
}

func TestFileBackendCorruptFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	if err := os.WriteFile(path, []byte("{not json"), 0o600); err != nil {
		t.Fatal(err)
	}
	b := newFileBackend(path)
	if _, ok, _ := b.GetString("server.port"); ok {
		t.Error("corrupt file should behave as empty")
	}
	if err := b.SetString("assistant.binary", "claude"); err != nil {
		t.Fatalf("SetString after corrupt load: %v", err)
	}
}

func TestKeychainFile(t *testing.T) {
	t.Setenv("XDG_DATA_HOME", t.TempDir())

	if _, err := keychainGet("clauveo", "api_token"); !errors.Is(err, ErrSecretNotFound) {
		t.Errorf("err = %v, want ErrSecretNotFound before anything is stored", err)
	}
	if err := keychainSet("clauveo", "api_token", "s3cret"); err != nil {
		t.Fatalf("keychainSet: %v", err)
	}
	got, err := keychainGet("clauveo", "api_token")
	if err != nil {
		t.Fatalf("keychainGet: %v", err)
	}
	if string(got) != "s3cret" {
		t.Errorf("secret = %q", got)
	}
	if _, err := keychainGet("clauveo", "other"); !errors.Is(err, ErrSecretNotFound) {
		t.Errorf("err = %v, want ErrSecretNotFound for unknown account", err)
	}
}
