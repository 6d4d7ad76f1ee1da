package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
)

// APIKeys maps a provider key (e.g. "allium", "arkham") to its credential.
// Credential validation and rotation are out of scope; the set only passes
// through the IPC boundary into the worker environment.
type APIKeys map[string]string

// Keystore persists the API key set as a single JSON file in the private
// application-data directory. Every save overwrites the file wholesale;
// there are no partial updates or merge semantics.
type Keystore struct {
	path string
}

func NewKeystore(dataDir string) *Keystore {
	return &Keystore{path: filepath.Join(dataDir, "api_keys.json")}
}

// Load reads the key set. A missing file is an empty set, not an error.
func (k *Keystore) Load() (APIKeys, error) {
	data, err := os.ReadFile(k.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return APIKeys{}, nil
		}
		return nil, fmt.Errorf("reading %s: %w", k.path, err)
	}

	var keys APIKeys
	if err := json.Unmarshal(data, &keys); err != nil {
		return nil, fmt.Errorf("parsing %s: %w", k.path, err)
	}
	if keys == nil {
		keys = APIKeys{}
	}
	return keys, nil
}

// Save replaces the stored key set. The file is written 0600: it holds
// credentials.
func (k *Keystore) Save(keys APIKeys) error {
	if err := os.MkdirAll(filepath.Dir(k.path), 0o755); err != nil {
		return fmt.Errorf("creating data directory: %w", err)
	}

	data, err := json.MarshalIndent(keys, "", "  ")
	if err != nil {
		return fmt.Errorf("marshalling keys: %w", err)
	}
	if err := os.WriteFile(k.path, data, 0o600); err != nil {
		return fmt.Errorf("writing %s: %w", k.path, err)
	}
	return nil
}

// Providers lists the stored provider names in stable order.
func (keys APIKeys) Providers() []string {
	names := make([]string, 0, len(keys))
	for name := range keys {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
