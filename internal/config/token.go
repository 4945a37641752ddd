package config

import (
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"strings"
)

const (
	tokenService = "clauveo"
	tokenAccount = "api_token"
)

// ErrSecretNotFound is returned by a Keychain when no secret is stored for
// the service and account.
var ErrSecretNotFound = errors.New("secret not found")

// Keychain abstracts the platform secret store.
type Keychain interface {
	Get(service, account string) (string, error)
	Set(service, account, value string) error
}

type platformKeychain struct{}

// NewKeychain returns the secret store for the current platform: the macOS
// Keychain via the security CLI, or a 0600 JSON file under
// $XDG_DATA_HOME/clauveo elsewhere.
func NewKeychain() Keychain {
	return platformKeychain{}
}

func (platformKeychain) Get(service, account string) (string, error) {
	out, err := keychainGet(service, account)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(string(out)), nil
}

func (platformKeychain) Set(service, account, value string) error {
	return keychainSet(service, account, value)
}

// GetAPIToken returns the bearer token guarding the local API. The
// CLAUVEO_API_TOKEN environment variable wins; otherwise the token is read
// from the keychain, and generated and stored there on first use. Any
// keychain error other than ErrSecretNotFound is returned so an unreadable
// store never causes the existing token to be replaced.
func GetAPIToken(kc Keychain) (string, error) {
	if tok := os.Getenv("CLAUVEO_API_TOKEN"); tok != "" {
		return tok, nil
	}
	tok, err := kc.Get(tokenService, tokenAccount)
	switch {
	case err == nil && tok != "":
		return tok, nil
	case err != nil && !errors.Is(err, ErrSecretNotFound):
		return "", fmt.Errorf("reading API token: %w", err)
	}

	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("generating API token: %w", err)
	}
	tok = hex.EncodeToString(buf)
	if err := kc.Set(tokenService, tokenAccount, tok); err != nil {
		return "", fmt.Errorf("storing API token: %w", err)
	}
	return tok, nil
}
