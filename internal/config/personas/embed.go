package personas

import (
	_ "embed"
)

//go:embed prompts/sage.md
var SagePrompt string

//go:embed prompts/skeptic.md
var SkepticPrompt string

//go:embed prompts/poet.md
var PoetPrompt string

// HistorianPrompt is the only bundled persona with knowledge enrichment switched on.
//
//go:embed prompts/historian.md
var HistorianPrompt string
