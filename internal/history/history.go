// Package history saves and restores a conversation so a chat can be resumed later.
package history

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/erg0nix/chorus/internal/core"
)

// File is the on-disk form of a saved conversation. The persona prompt is never part of it.
type File struct {
	Persona  string         `yaml:"persona"`
	Model    string         `yaml:"model,omitempty"`
	SavedAt  time.Time      `yaml:"saved_at"`
	Messages []core.Message `yaml:"messages"`
}

func Save(path string, persona, model string, messages []core.Message) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}

	data, err := yaml.Marshal(File{
		Persona:  persona,
		Model:    model,
		SavedAt:  time.Now().UTC(),
		Messages: messages,
	})
	if err != nil {
		return err
	}

	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o640); err != nil {
		return err
	}
	return os.Rename(tmp, path)
}

// Load reads a saved conversation. A missing file is not an error: ok is false and the caller
// starts fresh.
func Load(path string) (f File, ok bool, err error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return File{}, false, nil
	}
	if err != nil {
		return File{}, false, err
	}

	if err := yaml.Unmarshal(data, &f); err != nil {
		return File{}, false, fmt.Errorf("parse %s: %w", path, err)
	}

	for i, m := range f.Messages {
		if !m.Role.Valid() {
			return File{}, false, fmt.Errorf("%s: message %d has invalid role %q", path, i, m.Role)
		}
	}

	return f, true, nil
}
