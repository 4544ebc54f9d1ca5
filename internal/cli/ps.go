package cli

import (
	"context"
	"fmt"
	"net"
	"net/url"
	"time"

	"github.com/charmbracelet/lipgloss/table"
	"github.com/spf13/cobra"

	"github.com/erg0nix/chorus/internal/app"
	"github.com/erg0nix/chorus/internal/config"
	"github.com/erg0nix/chorus/internal/server"
)

func newPsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "ps",
		Short: "Show the server and the services it depends on",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := newApp(cmd)
			if err != nil {
				return err
			}

			t := newTable("NAME", "STATUS", "PID", "ENDPOINT")

			addServerRow(cmd.Context(), t, a.Config)
			addEndpointRow(t, "backend ("+a.Config.Backend.Kind+")", a.Config.Backend.Endpoint)
			if a.Config.Knowledge.Enabled {
				addEndpointRow(t, "knowledge", a.Config.Knowledge.Endpoint)
			}
			if a.Config.Knowledge.Enabled && a.Config.Knowledge.Cache == config.CacheRedis {
				addEndpointRow(t, "redis", "tcp://"+a.Config.Knowledge.RedisAddr)
			}

			fmt.Fprintln(cmd.OutOrStdout(), t.Render())
			return nil
		},
	}
}

func addServerRow(ctx context.Context, t *table.Table, cfg config.Config) {
	endpoint := fmt.Sprintf("http %s  grpc %s", clientAddrFromBind(cfg.HTTPBind), clientAddrFromBind(cfg.GRPCBind))

	pid := app.ReadPID(app.PIDFile(cfg.DataDir))
	if pid == 0 {
		t.Row("chorus", styleError.Render("stopped"), "-", endpoint)
		return
	}

	status := styleWarning.Render("starting")
	if client, err := server.Dial(clientAddrFromBind(cfg.GRPCBind)); err == nil {
		defer client.Close()
		ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
		defer cancel()
		if client.Healthy(ctx) {
			status = styleSuccess.Render("running")
		}
	}

	t.Row("chorus", status, fmt.Sprintf("%d", pid), endpoint)
}

// addEndpointRow reports whether anything accepts TCP connections at the endpoint's host.
func addEndpointRow(t *table.Table, name, endpoint string) {
	status := styleSuccess.Render("reachable")
	if !reachable(endpoint) {
		status = styleError.Render("unreachable")
	}
	t.Row(name, status, "-", endpoint)
}

func reachable(endpoint string) bool {
	u, err := url.Parse(endpoint)
	if err != nil || u.Host == "" {
		return false
	}

	host := u.Host
	if u.Port() == "" {
		port := "80"
		if u.Scheme == "https" {
			port = "443"
		}
		host = net.JoinHostPort(u.Hostname(), port)
	}

	conn, err := net.DialTimeout("tcp", host, 2*time.Second)
	if err != nil {
		return false
	}
	conn.Close()
	return true
}
