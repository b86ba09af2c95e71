// v0
// internal/dataset/artifact.go
package dataset

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
)

// Encode renders stats as indented JSON with a trailing newline. The output
// is stable for equal inputs.
func Encode(stats *Stats) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetIndent("", "  ")
	enc.SetEscapeHTML(false)
	if err := enc.Encode(stats); err != nil {
		return nil, fmt.Errorf("encode stats: %w", err)
	}
	return buf.Bytes(), nil
}

// Write validates and atomically replaces the artifact at path.
func Write(path string, stats *Stats) error {
	if err := stats.Validate(); err != nil {
		return err
	}
	data, err := Encode(stats)
	if err != nil {
		return err
	}
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create stats dir: %w", err)
	}
	tmp, err := os.CreateTemp(dir, ".stats-*.json")
	if err != nil {
		return fmt.Errorf("create temp stats: %w", err)
	}
	defer os.Remove(tmp.Name())
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("write temp stats: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close temp stats: %w", err)
	}
	if err := os.Chmod(tmp.Name(), 0o644); err != nil {
		return fmt.Errorf("chmod temp stats: %w", err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("replace stats: %w", err)
	}
	return nil
}

// Decode parses and validates an artifact.
func Decode(data []byte) (*Stats, error) {
	var s Stats
	if err := json.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidStats, err)
	}
	if err := s.Validate(); err != nil {
		return nil, err
	}
	return &s, nil
}

// Load reads the artifact at path.
func Load(path string) (*Stats, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read stats %s: %w", path, err)
	}
	return Decode(data)
}
