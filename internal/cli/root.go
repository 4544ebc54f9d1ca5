// Package cli implements the Cobra command tree for the chorus CLI.
package cli

import (
	"fmt"
	"net"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/erg0nix/chorus/internal/app"
	"github.com/erg0nix/chorus/internal/config"
)

func NewRootCommand() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:           "chorus",
		Short:         "Talk to a chorus of personas",
		SilenceErrors: true,
		SilenceUsage:  true,
	}

	rootCmd.PersistentFlags().StringP("config", "c", "", "path to config file")
	rootCmd.PersistentFlags().StringP("persona", "p", "", "persona to talk to (default from config)")
	rootCmd.PersistentFlags().BoolP("verbose", "v", false, "log pipeline details to stderr")

	rootCmd.AddCommand(newAskCmd())
	rootCmd.AddCommand(newChatCmd())
	rootCmd.AddCommand(newBroadcastCmd())
	rootCmd.AddCommand(newPersonasCmd())
	rootCmd.AddCommand(newTranscriptsCmd())
	rootCmd.AddCommand(newServeCmd())
	rootCmd.AddCommand(newStopCmd())
	rootCmd.AddCommand(newPsCmd())
	rootCmd.AddCommand(newInitCmd())

	return rootCmd
}

func defaultConfigPath() string {
	return filepath.Join(config.Default().DataDir, "config.toml")
}

func loadConfig(path string) (config.Config, error) {
	configPath := path
	if configPath == "" {
		configPath = defaultConfigPath()
	}
	return config.LoadOrCreate(configPath)
}

// clientAddrFromBind turns a listen address into one a local client can dial.
func clientAddrFromBind(bind string) string {
	host, port, err := netSplitHostPort(bind)
	if err != nil || port == "" {
		return bind
	}

	if host == "" || host == "0.0.0.0" || host == "::" {
		return "127.0.0.1:" + port
	}
	return bind
}

func netSplitHostPort(addr string) (string, string, error) {
	if strings.HasPrefix(addr, ":") {
		return "", strings.TrimPrefix(addr, ":"), nil
	}

	host, port, err := net.SplitHostPort(addr)
	if err != nil {
		return "", "", err
	}
	return host, port, nil
}

func alreadyRunning(dataDir string) bool {
	return app.ReadPID(app.PIDFile(dataDir)) != 0
}

// startServer re-executes the binary as "serve --foreground", detached and logging to
// <data_dir>/server.log.
func startServer(cfg config.Config, configPath string, mutate ...func(*exec.Cmd)) error {
	if alreadyRunning(cfg.DataDir) {
		fmt.Println(styleDim.Render("server already running at " + clientAddrFromBind(cfg.HTTPBind)))
		return nil
	}

	serverCmd := exec.Command(os.Args[0], "serve", "--foreground")
	if configPath != "" {
		serverCmd.Args = append(serverCmd.Args, "--config", configPath)
	}
	for _, fn := range mutate {
		fn(serverCmd)
	}

	logFile := filepath.Join(cfg.DataDir, "server.log")
	if err := os.MkdirAll(cfg.DataDir, 0o755); err != nil {
		return fmt.Errorf("start server: create data dir: %w", err)
	}

	out, err := os.OpenFile(logFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return fmt.Errorf("start server: open log: %w", err)
	}
	defer out.Close()

	serverCmd.Stdout = out
	serverCmd.Stderr = out

	if err := serverCmd.Start(); err != nil {
		return fmt.Errorf("start server: %w", err)
	}

	fmt.Println(
		styleSuccess.Render("started server") + " " +
			stylePID.Render(fmt.Sprintf("pid %d", serverCmd.Process.Pid)))
	return nil
}
