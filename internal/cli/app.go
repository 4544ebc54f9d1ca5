package cli

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/erg0nix/chorus/internal/app"
	"github.com/erg0nix/chorus/internal/config"
)

// App is the per-invocation CLI state: the loaded config and the persona chosen on the
// command line.
type App struct {
	Config     config.Config
	ConfigPath string
	Persona    string
}

func newApp(cmd *cobra.Command) (*App, error) {
	configPath, _ := cmd.Flags().GetString("config")
	personaOverride, _ := cmd.Flags().GetString("persona")

	cfg, err := loadConfig(configPath)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}

	persona := personaOverride
	if persona == "" {
		persona = cfg.DefaultPersona
	}

	return &App{Config: cfg, ConfigPath: configPath, Persona: persona}, nil
}

// services builds the local pipeline. Logs go to stderr so they never mix with replies.
func (a *App) services(cmd *cobra.Command) (*app.Services, error) {
	level := slog.LevelWarn
	if verbose, _ := cmd.Flags().GetBool("verbose"); verbose {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)

	return app.NewServices(a.Config, logger)
}
