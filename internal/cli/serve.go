package cli

import (
	"os/exec"

	"github.com/spf13/cobra"

	"github.com/erg0nix/chorus/internal/app"
)

func newServeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the chorus HTTP and gRPC server",
		Args:  cobra.NoArgs,
		RunE:  runServeCmd,
	}

	cmd.Flags().Bool("foreground", false, "run server in foreground")
	cmd.Flags().String("http", "", "HTTP bind address (overrides config)")
	cmd.Flags().String("grpc", "", "gRPC bind address (overrides config)")

	return cmd
}

func runServeCmd(cmd *cobra.Command, _ []string) error {
	a, err := newApp(cmd)
	if err != nil {
		return err
	}
	foreground, _ := cmd.Flags().GetBool("foreground")
	httpBind, _ := cmd.Flags().GetString("http")
	grpcBind, _ := cmd.Flags().GetString("grpc")

	cfg := a.Config
	if httpBind != "" {
		cfg.HTTPBind = httpBind
	}
	if grpcBind != "" {
		cfg.GRPCBind = grpcBind
	}

	if foreground {
		return app.RunServer(cmd.Context(), cfg)
	}

	return startServer(cfg, a.ConfigPath, func(c *exec.Cmd) {
		if httpBind != "" {
			c.Args = append(c.Args, "--http", httpBind)
		}
		if grpcBind != "" {
			c.Args = append(c.Args, "--grpc", grpcBind)
		}
	})
}
