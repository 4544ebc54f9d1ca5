package cli

import (
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	personaConfig "github.com/erg0nix/chorus/internal/config/personas"
	"github.com/erg0nix/chorus/internal/persona"
)

func newPersonasCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "personas",
		Short: "List available personas",
		Args:  cobra.NoArgs,
		RunE:  runPersonasCmd,
	}
}

func runPersonasCmd(cmd *cobra.Command, _ []string) error {
	a, err := newApp(cmd)
	if err != nil {
		return err
	}

	if err := personaConfig.EnsureDefaults(a.Config.PersonasDir); err != nil {
		slog.Warn("failed to ensure default personas", "error", err)
	}

	registry := persona.NewRegistry(a.Config.PersonasDir)
	summaries, err := registry.List()
	if err != nil {
		return fmt.Errorf("list personas: %w", err)
	}

	out := cmd.OutOrStdout()
	if len(summaries) == 0 {
		fmt.Fprintln(out, styleDim.Render("No personas found."))
		fmt.Fprintln(out, "Create one by adding a directory to "+stylePersona.Render(a.Config.PersonasDir))
		return nil
	}

	fmt.Fprintln(out, personasTable(summaries, a.Config.DefaultPersona))
	return nil
}

func personasTable(summaries []persona.Summary, defaultID string) string {
	t := newTable("ID", "NAME", "DESCRIPTION", "PROMPT", "CONFIG")

	for _, p := range summaries {
		id := p.ID
		if id == defaultID {
			id = styleSuccess.Render(id + " *")
		}
		prompt := styleDim.Render("-")
		if p.HasPrompt {
			prompt = styleSuccess.Render("✓")
		}
		config := styleDim.Render("-")
		if p.HasConfig {
			config = styleSuccess.Render("✓")
		}
		t.Row(id, p.DisplayName, p.Description, prompt, config)
	}

	return t.Render()
}
