package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	personaConfig "github.com/erg0nix/chorus/internal/config/personas"
)

func newInitCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "init",
		Short: "Write the default config and seed the bundled personas",
		Args:  cobra.NoArgs,
		RunE:  runInitCmd,
	}
}

func runInitCmd(cmd *cobra.Command, _ []string) error {
	a, err := newApp(cmd)
	if err != nil {
		return err
	}

	if err := personaConfig.EnsureDefaults(a.Config.PersonasDir); err != nil {
		return fmt.Errorf("seed personas: %w", err)
	}

	if a.Config.Audit.Enabled {
		if err := os.MkdirAll(a.Config.Audit.Directory, 0o755); err != nil {
			return fmt.Errorf("create audit dir: %w", err)
		}
	}

	configPath := a.ConfigPath
	if configPath == "" {
		configPath = defaultConfigPath()
	}

	out := cmd.OutOrStdout()
	fmt.Fprintln(out, styleSuccess.Render("config")+"    "+configPath)
	fmt.Fprintln(out, styleSuccess.Render("personas")+"  "+a.Config.PersonasDir)
	if a.Config.Audit.Enabled {
		fmt.Fprintln(out, styleSuccess.Render("audit")+"     "+a.Config.Audit.Directory)
	}
	fmt.Fprintln(out, styleDim.Render("try: chorus ask \"What is patience?\""))
	return nil
}
