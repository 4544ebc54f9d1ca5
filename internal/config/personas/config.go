// Package personas reads and seeds the on-disk persona catalog: one directory per persona
// holding a config.toml and a prompt.md.
package personas

import (
	"os"

	"github.com/erg0nix/chorus/internal/core"
	"github.com/pelletier/go-toml/v2"
)

const (
	ConfigFile = "config.toml"
	PromptFile = "prompt.md"
)

// PersonaConfig is the fully resolved persona, ready for a session.
type PersonaConfig struct {
	ID           string
	DisplayName  string
	Description  string
	SystemPrompt string
	Model        string
	Voice        string
	Enrichment   bool
	Options      core.Options
}

// PersonaTOML is the on-disk form of config.toml.
type PersonaTOML struct {
	Name        string       `toml:"name"`
	Description string       `toml:"description"`
	Model       string       `toml:"model"`
	Voice       string       `toml:"voice"`
	Enrichment  bool         `toml:"enrichment"`
	Options     core.Options `toml:"options"`
}

// LoadTOML reads a persona config file, returning nil if the file does not exist.
func LoadTOML(path string) (*PersonaTOML, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}

	var cfg PersonaTOML
	if err := toml.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// LoadPrompt reads a system prompt file, returning an empty string if the file does not exist.
func LoadPrompt(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return "", nil
		}
		return "", err
	}

	return string(data), nil
}
