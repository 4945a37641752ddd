//go:build darwin

package config

import (
	"errors"
	"fmt"
	"os/exec"
	"strconv"
	"strings"
)

const defaultsDomain = "com.clauveo.app"

type darwinBackend struct {
	domain string
}

func newPlatformBackend() ConfigBackend {
	return &darwinBackend{domain: defaultsDomain}
}

// read returns the `defaults read` output for key. A missing key exits 1.
func (b *darwinBackend) read(key string) (string, bool, error) {
	cmd := exec.Command("defaults", "read", b.domain, key)
	out, err := cmd.CombinedOutput()
	s := strings.TrimSpace(string(out))
	if err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) && exitErr.ExitCode() == 1 {
			return "", false, nil
		}
		return "", false, fmt.Errorf("reading default for key '%s': %w, output: %s", key, err, s)
	}
	return s, true, nil
}

func (b *darwinBackend) write(key string, args ...string) error {
	argv := append([]string{"write", b.domain, key}, args...)
	if out, err := exec.Command("defaults", argv...).CombinedOutput(); err != nil {
		return fmt.Errorf("writing default for key '%s': %w, output: %s", key, err, strings.TrimSpace(string(out)))
	}
	return nil
}

func (b *darwinBackend) GetString(key string) (string, bool, error) {
	return b.read(key)
}

func (b *darwinBackend) GetInt(key string) (int, bool, error) {
	s, ok, err := b.read(key)
	if !ok || err != nil {
		return 0, ok, err
	}
	i, err := strconv.Atoi(s)
	if err != nil {
		return 0, true, fmt.Errorf("invalid integer for %s: %w", key, err)
	}
	return i, true, nil
}

// GetBool accepts both `-bool` values (printed as 1/0) and strings such as
// "true" written by hand.
func (b *darwinBackend) GetBool(key string) (bool, bool, error) {
	s, ok, err := b.read(key)
	if !ok || err != nil {
		return false, ok, err
	}
	v, err := strconv.ParseBool(strings.ToLower(s))
	if err != nil {
		return false, true, fmt.Errorf("invalid boolean for %s: %w", key, err)
	}
	return v, true, nil
}

// GetList accepts an `-array` value. A plain string comes back as a single
// item for the caller to split.
func (b *darwinBackend) GetList(key string) ([]string, bool, error) {
	s, ok, err := b.read(key)
	if !ok || err != nil {
		return nil, ok, err
	}
	if strings.HasPrefix(s, "(") {
		return parsePlistArray(s), true, nil
	}
	return []string{s}, true, nil
}

func (b *darwinBackend) SetString(key, val string) error {
	return b.write(key, "-string", val)
}

func (b *darwinBackend) SetInt(key string, val int) error {
	return b.write(key, "-int", strconv.Itoa(val))
}

func (b *darwinBackend) SetBool(key string, val bool) error {
	return b.write(key, "-bool", strconv.FormatBool(val))
}

func (b *darwinBackend) SetList(key string, val []string) error {
	return b.write(key, append([]string{"-array"}, val...)...)
}

func (b *darwinBackend) Delete(key string) error {
	return exec.Command("defaults", "delete", b.domain, key).Run()
}

// parsePlistArray parses the old-style plist array printed by `defaults read`:
//
//	(
//	    "/opt/homebrew/bin",
//	    "~/.local/bin"
//	)
func parsePlistArray(s string) []string {
	s = strings.TrimSpace(s)
	s = strings.TrimPrefix(s, "(")
	s = strings.TrimSuffix(s, ")")

	var out []string
	for _, line := range strings.Split(s, "\n") {
		item := strings.TrimSpace(line)
		item = strings.TrimSuffix(item, ",")
		if unq, err := strconv.Unquote(item); err == nil {
			item = unq
		}
		if item != "" {
			out = append(out, item)
		}
	}
	return out
}
