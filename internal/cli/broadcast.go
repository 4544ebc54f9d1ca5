package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/erg0nix/chorus/internal/ensemble"
	"github.com/erg0nix/chorus/internal/session"
)

func newBroadcastCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "broadcast <question>",
		Short: "Ask every persona the same question, one after another",
		Args:  cobra.MinimumNArgs(1),
		RunE:  runBroadcastCmd,
	}

	cmd.Flags().StringSlice("personas", nil, "personas to ask, in order (default all)")
	cmd.Flags().Bool("table", false, "print a summary table instead of streaming each reply")

	return cmd
}

func runBroadcastCmd(cmd *cobra.Command, args []string) error {
	a, err := newApp(cmd)
	if err != nil {
		return err
	}
	personaIDs, _ := cmd.Flags().GetStringSlice("personas")
	asTable, _ := cmd.Flags().GetBool("table")

	question := strings.TrimSpace(strings.Join(args, " "))
	out := cmd.OutOrStdout()
	if question == "" {
		fmt.Fprintln(out, session.EmptyQuestionMessage)
		return nil
	}

	services, err := a.services(cmd)
	if err != nil {
		return err
	}
	defer services.Close()

	var onFragment ensemble.FragmentFunc
	if !asTable {
		printer := newFragmentPrinter(out, false)
		current := ""
		onFragment = func(personaID string, f session.Fragment) {
			if personaID != current {
				if current != "" {
					printer.Finish()
					fmt.Fprintln(out)
				}
				current = personaID
				fmt.Fprintln(out, stylePersona.Render(personaID))
			}
			printer.Print(f)
		}
		defer printer.Finish()
	}

	results, err := services.Ensemble.Broadcast(cmd.Context(), question, personaIDs, onFragment)
	if err != nil {
		return err
	}

	if asTable {
		fmt.Fprintln(out, broadcastTable(results))
	}
	return nil
}

func broadcastTable(results []ensemble.Result) string {
	t := newTable("PERSONA", "REPLY").Width(terminalWidth())
	for _, r := range results {
		t.Row(r.PersonaID, renderFragment(session.Fragment{Text: strings.TrimSpace(r.Reply), Kind: r.Kind}))
	}
	return t.Render()
}
