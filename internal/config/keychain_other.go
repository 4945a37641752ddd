//go:build !darwin

package config

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"runtime"
)

// secrets.json maps service -> account -> secret.
func secretsFilePath() string {
	dir := os.Getenv("XDG_DATA_HOME")
	if dir == "" {
		if home, err := os.UserHomeDir(); err == nil {
			dir = filepath.Join(home, ".local", "share")
		} else {
			dir = "."
		}
	}
	return filepath.Join(dir, "clauveo", "secrets.json")
}

func readSecrets(p string) (map[string]map[string]string, error) {
	data, err := os.ReadFile(p)
	if err != nil {
		return nil, err
	}
	if runtime.GOOS != "windows" {
		if info, err := os.Stat(p); err == nil && info.Mode().Perm()&0o077 != 0 {
			slog.Warn("secrets file is readable by other users", "path", p, "mode", info.Mode().Perm())
		}
	}
	var secrets map[string]map[string]string
	if err := json.Unmarshal(data, &secrets); err != nil {
		return nil, fmt.Errorf("parsing secrets file: %w", err)
	}
	return secrets, nil
}

func keychainGet(service, account string) ([]byte, error) {
	secrets, err := readSecrets(secretsFilePath())
	if os.IsNotExist(err) {
		return nil, ErrSecretNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("keychain not available: %w", err)
	}
	val, ok := secrets[service][account]
	if !ok {
		return nil, ErrSecretNotFound
	}
	return []byte(val), nil
}

func keychainSet(service, account, value string) error {
	p := secretsFilePath()

	secrets, err := readSecrets(p)
	if err != nil && !os.IsNotExist(err) {
		slog.Warn("replacing unreadable secrets file", "path", p, "error", err)
	}
	if secrets == nil {
		secrets = make(map[string]map[string]string)
	}
	if secrets[service] == nil {
		secrets[service] = make(map[string]string)
	}
	secrets[service][account] = value

	out, err := json.MarshalIndent(secrets, "", "  ")
	if err != nil {
		return err
	}
	return writeFileAtomic(p, out, 0o600)
}
