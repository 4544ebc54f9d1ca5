// Package persona resolves persona ids against the on-disk catalog.
package persona

import (
	"os"
	"path/filepath"
	"sort"
	"strings"

	personaConfig "github.com/erg0nix/chorus/internal/config/personas"
)

type Registry struct {
	PersonasDir string
}

func NewRegistry(personasDir string) *Registry {
	return &Registry{PersonasDir: personasDir}
}

type Summary struct {
	ID          string
	DisplayName string
	Description string
	HasPrompt   bool
	HasConfig   bool
}

func (r *Registry) List() ([]Summary, error) {
	entries, err := os.ReadDir(r.PersonasDir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}

	var summaries []Summary
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}

		id := entry.Name()
		configPath, promptPath := r.paths(id)

		hasConfig := fileExists(configPath)
		hasPrompt := fileExists(promptPath)

		if !hasConfig && !hasPrompt {
			continue
		}

		summary := Summary{ID: id, DisplayName: id, HasPrompt: hasPrompt, HasConfig: hasConfig}
		if hasConfig {
			cfg, err := personaConfig.LoadTOML(configPath)
			if err == nil && cfg != nil {
				if cfg.Name != "" {
					summary.DisplayName = cfg.Name
				}
				summary.Description = cfg.Description
			}
		}

		summaries = append(summaries, summary)
	}

	return summaries, nil
}

func (r *Registry) Load(id string) (*personaConfig.PersonaConfig, error) {
	configPath, promptPath := r.paths(id)

	hasConfig := fileExists(configPath)
	hasPrompt := fileExists(promptPath)

	if !hasConfig && !hasPrompt {
		available, _ := r.List()
		var ids []string
		for _, s := range available {
			ids = append(ids, s.ID)
		}
		return nil, &NotFoundError{ID: id, Available: ids}
	}

	cfg := &personaConfig.PersonaConfig{ID: id, DisplayName: id}

	if hasConfig {
		tomlCfg, err := personaConfig.LoadTOML(configPath)
		if err != nil {
			return nil, &ConfigError{ID: id, Err: err}
		}
		if tomlCfg != nil {
			if tomlCfg.Name != "" {
				cfg.DisplayName = tomlCfg.Name
			}
			cfg.Description = tomlCfg.Description
			cfg.Model = tomlCfg.Model
			cfg.Voice = tomlCfg.Voice
			cfg.Enrichment = tomlCfg.Enrichment
			cfg.Options = tomlCfg.Options
		}
	}

	if hasPrompt {
		prompt, err := personaConfig.LoadPrompt(promptPath)
		if err != nil {
			return nil, &ConfigError{ID: id, Err: err}
		}
		cfg.SystemPrompt = strings.TrimSpace(prompt)
	}

	if err := personaConfig.Validate(cfg); err != nil {
		return nil, &ConfigError{ID: id, Err: err}
	}

	return cfg, nil
}

func (r *Registry) Exists(id string) bool {
	configPath, promptPath := r.paths(id)
	return fileExists(configPath) || fileExists(promptPath)
}

// LoadCatalog reads every persona once. The result is read-only and safe to share.
func (r *Registry) LoadCatalog() (*Catalog, error) {
	summaries, err := r.List()
	if err != nil {
		return nil, err
	}

	catalog := &Catalog{byID: make(map[string]personaConfig.PersonaConfig, len(summaries))}
	for _, s := range summaries {
		cfg, err := r.Load(s.ID)
		if err != nil {
			return nil, err
		}
		catalog.byID[s.ID] = *cfg
		catalog.order = append(catalog.order, s.ID)
	}
	sort.Strings(catalog.order)

	return catalog, nil
}

func (r *Registry) paths(id string) (configPath, promptPath string) {
	personaDir := filepath.Join(r.PersonasDir, id)
	return filepath.Join(personaDir, personaConfig.ConfigFile), filepath.Join(personaDir, personaConfig.PromptFile)
}

func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

type NotFoundError struct {
	ID        string
	Available []string
}

func (e *NotFoundError) Error() string {
	msg := "persona not found: " + e.ID
	if len(e.Available) > 0 {
		msg += "; available: " + strings.Join(e.Available, ", ")
	}
	return msg
}

type ConfigError struct {
	ID  string
	Err error
}

func (e *ConfigError) Error() string {
	return "invalid config for persona " + e.ID + ": " + e.Err.Error()
}

func (e *ConfigError) Unwrap() error {
	return e.Err
}
