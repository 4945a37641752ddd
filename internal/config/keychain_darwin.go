//go:build darwin

package config

import (
	"errors"
	"fmt"
	"os/exec"
)

// errSecItemNotFound is the exit status of `security` for a missing item.
const errSecItemNotFound = 44

func keychainGet(service, account string) ([]byte, error) {
	out, err := exec.Command(
		"security", "find-generic-password",
		"-s", service,
		"-a", account,
		"-w",
	).Output()
	if err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) && exitErr.ExitCode() == errSecItemNotFound {
			return nil, ErrSecretNotFound
		}
		return nil, fmt.Errorf("reading keychain item: %w", err)
	}
	return out, nil
}

func keychainSet(service, account, value string) error {
	out, err := exec.Command(
		"security", "add-generic-password",
		"-U",
		"-l", "clauveo API token",
		"-s", service,
		"-a", account,
		"-w", value,
	).CombinedOutput()
	if err != nil {
		return fmt.Errorf("writing keychain item: %w, output: %s", err, out)
	}
	return nil
}
