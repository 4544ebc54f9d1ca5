package cli

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/erg0nix/chorus/internal/app"
)

func newStopCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "stop",
		Short: "Stop the chorus server",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := newApp(cmd)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			pid, err := app.StopServer(app.PIDFile(a.Config.DataDir), 5*time.Second)
			switch {
			case err != nil:
				fmt.Fprintln(out, styledError("chorus server: "+err.Error()))
			case pid == 0:
				fmt.Fprintln(out, styleDim.Render("chorus server not running"))
			default:
				fmt.Fprintln(out, styleSuccess.Render("stopped chorus server")+" "+stylePID.Render(fmt.Sprintf("pid %d", pid)))
			}
			return nil
		},
	}
}
