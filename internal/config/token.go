package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
)

// EnsureToken returns the bearer token for the local gateway, generating and
// persisting one on first use. The token lives next to the other credential
// files so only the local user can read it.
func EnsureToken(dataDir string) (string, error) {
	path := filepath.Join(dataDir, "gateway_token")

	token, err := ReadToken(dataDir)
	if err == nil && token != "" {
		return token, nil
	}
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return "", err
	}

	token = uuid.NewString()
	if err := os.MkdirAll(dataDir, 0o755); err != nil {
		return "", fmt.Errorf("creating data directory: %w", err)
	}
	if err := os.WriteFile(path, []byte(token+"\n"), 0o600); err != nil {
		return "", fmt.Errorf("writing %s: %w", path, err)
	}
	return token, nil
}

// ReadToken reads the persisted gateway token. os.ErrNotExist is returned
// when no token was generated yet.
func ReadToken(dataDir string) (string, error) {
	data, err := os.ReadFile(filepath.Join(dataDir, "gateway_token"))
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(string(data)), nil
}
