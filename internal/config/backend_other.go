//go:build !darwin

package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
)

func xdgDir(env string, fallback ...string) string {
	if dir := os.Getenv(env); dir != "" {
		return dir
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(append([]string{home}, fallback...)...)
}

func defaultDataDir() string {
	dir := xdgDir("XDG_DATA_HOME", ".local", "share")
	if dir == "" {
		return "aether-data"
	}
	return filepath.Join(dir, "aether")
}

func apiKeyHint() string {
	return " or " + secretsFilePath()
}

func configFilePath() string {
	dir := xdgDir("XDG_CONFIG_HOME", ".config")
	if dir == "" {
		dir = "."
	}
	return filepath.Join(dir, "aether", "config.json")
}

// fileBackend is a flat JSON object. Hand-edited files may hold numbers
// and booleans; values written by aether are always strings.
type fileBackend struct {
	path string
}

func newPlatformBackend() Backend {
	return fileBackend{path: configFilePath()}
}

func (b fileBackend) read() (map[string]any, error) {
	data := make(map[string]any)
	raw, err := os.ReadFile(b.path)
	if errors.Is(err, fs.ErrNotExist) {
		return data, nil
	}
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal(raw, &data); err != nil {
		return nil, fmt.Errorf("parsing %s: %w", b.path, err)
	}
	return data, nil
}

func (b fileBackend) write(data map[string]any) error {
	if err := os.MkdirAll(filepath.Dir(b.path), 0o700); err != nil {
		return fmt.Errorf("creating config dir: %w", err)
	}
	out, err := json.MarshalIndent(data, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(b.path, out, 0o600)
}

func (b fileBackend) Get(key string) (string, bool, error) {
	data, err := b.read()
	if err != nil {
		return "", false, err
	}
	v, ok := data[key]
	if !ok || v == nil {
		return "", false, nil
	}
	switch val := v.(type) {
	case string:
		return val, true, nil
	case float64:
		return strconv.FormatFloat(val, 'f', -1, 64), true, nil
	case bool:
		return strconv.FormatBool(val), true, nil
	}
	return "", true, fmt.Errorf("%s: unsupported value %v in %s", key, v, b.path)
}

func (b fileBackend) Set(key, val string) error {
	data, err := b.read()
	if err != nil {
		return err
	}
	data[key] = val
	return b.write(data)
}

func (b fileBackend) Delete(key string) error {
	data, err := b.read()
	if err != nil {
		return err
	}
	if _, ok := data[key]; !ok {
		return nil
	}
	delete(data, key)
	return b.write(data)
}
