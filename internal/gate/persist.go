package gate

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// ErrWeightsNotFound is returned when the weights file is missing.
var ErrWeightsNotFound = errors.New("gate weights file not found")

// LoadParameters reads a weights snapshot from disk.
func LoadParameters(path string) (*Parameters, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return nil, errors.New("weights path is empty")
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, ErrWeightsNotFound
		}
		return nil, fmt.Errorf("read gate weights: %w", err)
	}

	var p Parameters
	if err := json.Unmarshal(data, &p); err != nil {
		return nil, fmt.Errorf("decode gate weights: %w", err)
	}
	if err := p.validate(); err != nil {
		return nil, fmt.Errorf("validate gate weights: %w", err)
	}
	return &p, nil
}

// SaveParameters writes a weights snapshot atomically: the snapshot is
// written to a temp file in the target directory and renamed into place,
// so a concurrent reader sees either the old file or the new one.
func SaveParameters(path string, p *Parameters) error {
	path = strings.TrimSpace(path)
	if path == "" {
		return errors.New("weights path is empty")
	}
	if err := p.validate(); err != nil {
		return err
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create weights dir: %w", err)
	}

	data, err := json.Marshal(p)
	if err != nil {
		return fmt.Errorf("encode gate weights: %w", err)
	}

	tmpFile, err := os.CreateTemp(dir, filepath.Base(path)+".tmp-*")
	if err != nil {
		return fmt.Errorf("create temp weights file: %w", err)
	}
	defer os.Remove(tmpFile.Name())

	if _, err := tmpFile.Write(data); err != nil {
		tmpFile.Close()
		return fmt.Errorf("write temp weights file: %w", err)
	}
	if err := tmpFile.Chmod(0o644); err != nil {
		tmpFile.Close()
		return fmt.Errorf("chmod temp weights file: %w", err)
	}
	if err := tmpFile.Close(); err != nil {
		return fmt.Errorf("close temp weights file: %w", err)
	}

	if err := os.Rename(tmpFile.Name(), path); err != nil {
		return fmt.Errorf("replace weights file: %w", err)
	}
	return nil
}
