package cli

import (
	"fmt"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"github.com/erg0nix/chorus/internal/audit"
	"github.com/erg0nix/chorus/internal/core"
)

func newTranscriptsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "transcripts",
		Short: "Browse audit transcripts",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := newApp(cmd)
			if err != nil {
				return err
			}

			store := &audit.Transcripts{Dir: a.Config.Audit.Directory}
			infos, err := store.List()
			if err != nil {
				return fmt.Errorf("list transcripts: %w", err)
			}

			out := cmd.OutOrStdout()
			if len(infos) == 0 {
				fmt.Fprintln(out, styleDim.Render("No transcripts in "+store.Dir))
				return nil
			}

			t := newTable("PERSONA", "SESSION", "ENTRIES", "MODIFIED")
			for _, info := range infos {
				t.Row(info.PersonaID, string(info.SessionID), strconv.Itoa(info.Entries), info.ModifiedAt.Local().Format(time.DateTime))
			}
			fmt.Fprintln(out, t.Render())
			return nil
		},
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "show <persona> <session>",
		Short: "Print a transcript",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(cmd)
			if err != nil {
				return err
			}

			store := &audit.Transcripts{Dir: a.Config.Audit.Directory}
			info, err := store.Get(args[0], core.SessionID(args[1]))
			if err != nil {
				return err
			}

			entries, err := audit.ReadFile(info.Path)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			for _, e := range entries {
				header := styleDim.Render(e.Timestamp.Local().Format(time.DateTime)) + " " + stylePersona.Render(string(e.Role))
				fmt.Fprintln(out, header)
				fmt.Fprintln(out, e.Content)
				fmt.Fprintln(out)
			}
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "rm <persona> <session>",
		Short: "Delete a transcript",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(cmd)
			if err != nil {
				return err
			}

			store := &audit.Transcripts{Dir: a.Config.Audit.Directory}
			if err := store.Delete(args[0], core.SessionID(args[1])); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), styleSuccess.Render("deleted "+args[1]))
			return nil
		},
	})

	return cmd
}
