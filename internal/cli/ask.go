package cli

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/erg0nix/chorus/internal/server"
	"github.com/erg0nix/chorus/internal/session"
)

func newAskCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "ask <question>",
		Short: "Ask a persona a single question",
		Args:  cobra.MinimumNArgs(1),
		RunE:  runAskCmd,
	}

	cmd.Flags().String("remote", "", "stream the reply from a chorus server's gRPC address")
	cmd.Flags().Bool("markdown", false, "render the reply as markdown once it is complete")
	cmd.Flags().Bool("stats", false, "print the context window usage after the reply")

	return cmd
}

func runAskCmd(cmd *cobra.Command, args []string) error {
	a, err := newApp(cmd)
	if err != nil {
		return err
	}
	remote, _ := cmd.Flags().GetString("remote")
	markdown, _ := cmd.Flags().GetBool("markdown")
	stats, _ := cmd.Flags().GetBool("stats")

	question := strings.TrimSpace(strings.Join(args, " "))
	out := cmd.OutOrStdout()
	printer := newFragmentPrinter(out, markdown)

	if question == "" {
		fmt.Fprintln(out, session.EmptyQuestionMessage)
		return nil
	}

	if remote != "" {
		return askRemote(cmd.Context(), printer, remote, question, a.Persona)
	}

	services, err := a.services(cmd)
	if err != nil {
		return err
	}
	defer services.Close()

	s, err := services.Sessions.Get(a.Persona)
	if err != nil {
		return err
	}

	for fragment := range s.Stream(cmd.Context(), question) {
		printer.Print(fragment)
	}
	printer.Finish()

	printHint(out, s.LastTurn())
	if stats {
		fmt.Fprintln(out, formatSnapshot(s.Snapshot()))
	}
	return nil
}

func askRemote(ctx context.Context, printer *fragmentPrinter, addr, question, persona string) error {
	client, err := server.Dial(clientAddrFromBind(addr))
	if err != nil {
		return fmt.Errorf("connect to %s: %w", addr, err)
	}
	defer client.Close()

	for fragment, err := range client.Stream(ctx, question, persona) {
		if err != nil {
			printer.Finish()
			return fmt.Errorf("remote: %w", err)
		}
		printer.Print(fragment)
	}
	printer.Finish()
	return nil
}

// printHint shows what knowledge enrichment found, if it ran.
func printHint(out io.Writer, turn session.TurnInfo) {
	if turn.Enrichment.Hint == "" {
		return
	}
	fmt.Fprintln(out, styleHint.Render(turn.Enrichment.Hint))
}
