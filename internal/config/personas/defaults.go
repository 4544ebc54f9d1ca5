package personas

import (
	"os"
	"path/filepath"
)

// DefaultPersonaID is used when a caller does not pick a persona.
const DefaultPersonaID = "sage"

const sageConfig = `name = "Sage"
description = "Calm explainer, short paragraphs"
voice = "de-DE-KatjaNeural"

[options]
temperature = 0.6
num_ctx = 4096
`

const skepticConfig = `name = "Skeptic"
description = "Questions assumptions and weak evidence"
voice = "de-DE-ConradNeural"

[options]
temperature = 0.8
top_p = 0.9
num_ctx = 4096
`

const poetConfig = `name = "Poet"
description = "Answers in verse"
voice = "de-DE-AmalaNeural"

[options]
temperature = 1.1
repeat_penalty = 1.15
num_ctx = 2048
`

const historianConfig = `name = "Historian"
description = "Puts answers in historical context, uses the knowledge service"
voice = "de-DE-BerndNeural"
enrichment = true

[options]
temperature = 0.4
num_ctx = 8192
`

type bundledPersona struct {
	id     string
	config string
	prompt string
}

var bundledPersonas = []bundledPersona{
	{id: DefaultPersonaID, config: sageConfig, prompt: SagePrompt},
	{id: "skeptic", config: skepticConfig, prompt: SkepticPrompt},
	{id: "poet", config: poetConfig, prompt: PoetPrompt},
	{id: "historian", config: historianConfig, prompt: HistorianPrompt},
}

// BundledIDs lists the personas EnsureDefaults seeds, in catalog order.
func BundledIDs() []string {
	ids := make([]string, 0, len(bundledPersonas))
	for _, p := range bundledPersonas {
		ids = append(ids, p.id)
	}
	return ids
}

// EnsureDefaults creates the bundled personas under personasDir unless a directory with the
// same id already exists.
func EnsureDefaults(personasDir string) error {
	for _, p := range bundledPersonas {
		if err := ensurePersona(personasDir, p); err != nil {
			return err
		}
	}
	return nil
}

func ensurePersona(personasDir string, p bundledPersona) error {
	personaDir := filepath.Join(personasDir, p.id)

	if _, err := os.Stat(personaDir); err == nil {
		return nil
	}

	if err := os.MkdirAll(personaDir, 0o755); err != nil {
		return err
	}

	if err := os.WriteFile(filepath.Join(personaDir, ConfigFile), []byte(p.config), 0o644); err != nil {
		return err
	}

	return os.WriteFile(filepath.Join(personaDir, PromptFile), []byte(p.prompt), 0o644)
}
