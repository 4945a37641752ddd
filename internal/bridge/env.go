package bridge

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"
)

// augmentPath returns a PATH list with extra prepended to current. Entries
// beginning with "~/" are expanded against home.
func augmentPath(extra []string, current, home string) string {
	dirs := make([]string, 0, len(extra)+1)
	for _, p := range extra {
		if p == "" {
			continue
		}
		dirs = append(dirs, expandHome(p, home))
	}
	if current != "" {
		dirs = append(dirs, current)
	}
	return strings.Join(dirs, string(os.PathListSeparator))
}

func expandHome(p, home string) string {
	if home != "" && strings.HasPrefix(p, "~/") {
		return filepath.Join(home, p[2:])
	}
	return p
}

// setEnv returns a copy of environ with key set to value.
func setEnv(environ []string, key, value string) []string {
	out := make([]string, 0, len(environ)+1)
	for _, kv := range environ {
		k, _, _ := strings.Cut(kv, "=")
		if envKeyEqual(k, key) {
			continue
		}
		out = append(out, kv)
	}
	return append(out, key+"="+value)
}

func envKeyEqual(a, b string) bool {
	if runtime.GOOS == "windows" {
		return strings.EqualFold(a, b)
	}
	return a == b
}

var errNotFound = errors.New("executable file not found in search path")

// lookPath resolves name against an explicit PATH list rather than the
// daemon's own PATH, so search paths take effect before the process starts.
func lookPath(name, pathList string) (string, error) {
	if strings.ContainsRune(name, filepath.Separator) || strings.ContainsRune(name, '/') {
		if isExecutable(name) {
			return name, nil
		}
		return "", fmt.Errorf("%s: %w", name, errNotFound)
	}
	for _, dir := range filepath.SplitList(pathList) {
		if dir == "" {
			continue
		}
		for _, candidate := range executableNames(name) {
			p := filepath.Join(dir, candidate)
			if isExecutable(p) {
				return p, nil
			}
		}
	}
	return "", fmt.Errorf("%s: %w", name, errNotFound)
}

func executableNames(name string) []string {
	if runtime.GOOS != "windows" || filepath.Ext(name) != "" {
		return []string{name}
	}
	return []string{name + ".exe", name + ".cmd", name + ".bat", name}
}

func isExecutable(path string) bool {
	info, err := os.Stat(path)
	if err != nil || info.IsDir() {
		return false
	}
	if runtime.GOOS == "windows" {
		return true
	}
	return info.Mode()&0o111 != 0
}
