package cli

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/erg0nix/chorus/internal/history"
	"github.com/erg0nix/chorus/internal/session"
)

const chatHelp = `/persona <id>  switch persona
/reset         forget this persona's conversation
/ctx           show context window usage
/help          show this help
/quit          leave`

func newChatCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "chat",
		Short: "Talk to a persona interactively",
		Args:  cobra.NoArgs,
		RunE:  runChatCmd,
	}

	cmd.Flags().String("history", "", "load the conversation from this YAML file and save it after every answer")
	cmd.Flags().Bool("markdown", false, "render replies as markdown")

	return cmd
}

func runChatCmd(cmd *cobra.Command, _ []string) error {
	a, err := newApp(cmd)
	if err != nil {
		return err
	}
	historyPath, _ := cmd.Flags().GetString("history")
	markdown, _ := cmd.Flags().GetBool("markdown")

	services, err := a.services(cmd)
	if err != nil {
		return err
	}
	defer services.Close()

	c := &chat{
		sessions:    services.Sessions,
		persona:     a.Persona,
		historyPath: historyPath,
		markdown:    markdown,
	}

	fd := int(os.Stdin.Fd())
	if term.IsTerminal(fd) {
		t := term.NewTerminal(struct {
			io.Reader
			io.Writer
		}{os.Stdin, os.Stdout}, "")
		c.out = t
		c.lines = &terminalLines{t: t, fd: fd}
	} else {
		c.out = cmd.OutOrStdout()
		c.lines = scannerLines{bufio.NewScanner(cmd.InOrStdin())}
	}

	return c.run(cmd.Context())
}

type lineReader interface {
	ReadLine(prompt string) (string, error)
}

type scannerLines struct {
	scanner *bufio.Scanner
}

func (l scannerLines) ReadLine(string) (string, error) {
	if l.scanner.Scan() {
		return l.scanner.Text(), nil
	}
	if err := l.scanner.Err(); err != nil {
		return "", err
	}
	return "", io.EOF
}

// terminalLines reads with line editing, switching the terminal to raw mode only while a line
// is being typed.
type terminalLines struct {
	t  *term.Terminal
	fd int
}

func (l *terminalLines) ReadLine(prompt string) (string, error) {
	oldState, err := term.MakeRaw(l.fd)
	if err != nil {
		return "", err
	}

	if width, height, err := term.GetSize(l.fd); err == nil {
		_ = l.t.SetSize(width, height)
	}
	l.t.SetPrompt(prompt)

	line, err := l.t.ReadLine()
	if restoreErr := term.Restore(l.fd, oldState); restoreErr != nil && err == nil {
		err = restoreErr
	}
	return line, err
}

type chat struct {
	sessions    *session.Manager
	persona     string
	historyPath string
	markdown    bool

	out   io.Writer
	lines lineReader
}

func (c *chat) run(ctx context.Context) error {
	s, err := c.sessions.Get(c.persona)
	if err != nil {
		return err
	}

	if err := c.restore(s); err != nil {
		return err
	}

	fmt.Fprintln(c.out, styleDim.Render("talking to ")+stylePersona.Render(c.persona)+styleDim.Render(", /help for commands"))

	for {
		line, err := c.lines.ReadLine(stylePrompt.Render(c.persona+"> "))
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return err
		}

		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}

		if strings.HasPrefix(line, "/") {
			quit, err := c.command(line)
			if err != nil {
				fmt.Fprintln(c.out, styledError(err.Error()))
			}
			if quit {
				return nil
			}
			continue
		}

		if err := c.turn(ctx, line); err != nil {
			return err
		}
	}
}

func (c *chat) turn(ctx context.Context, question string) error {
	s, err := c.sessions.Get(c.persona)
	if err != nil {
		return err
	}

	printer := newFragmentPrinter(c.out, c.markdown)
	for fragment := range s.Stream(ctx, question) {
		printer.Print(fragment)
	}
	printer.Finish()
	printHint(c.out, s.LastTurn())

	if c.historyPath != "" && s.LastTurn().Outcome == session.OutcomeCompleted {
		if err := history.Save(c.historyPath, s.PersonaID(), s.Model(), s.History()); err != nil {
			fmt.Fprintln(c.out, styledError("could not save history", err.Error()))
		}
	}
	return nil
}

func (c *chat) command(line string) (quit bool, err error) {
	fields := strings.Fields(line)

	switch fields[0] {
	case "/quit", "/exit":
		return true, nil

	case "/help":
		fmt.Fprintln(c.out, styleDim.Render(chatHelp))

	case "/reset":
		if err := c.sessions.Reset(c.persona); err != nil {
			return false, err
		}
		fmt.Fprintln(c.out, styleDim.Render("conversation with "+c.persona+" cleared"))

	case "/ctx":
		s, err := c.sessions.Get(c.persona)
		if err != nil {
			return false, err
		}
		fmt.Fprintln(c.out, formatSnapshot(s.Snapshot()))

	case "/persona":
		if len(fields) != 2 {
			return false, errors.New("usage: /persona <id>")
		}
		if _, err := c.sessions.Get(fields[1]); err != nil {
			return false, err
		}
		c.persona = fields[1]
		fmt.Fprintln(c.out, styleDim.Render("talking to ")+stylePersona.Render(c.persona))

	default:
		return false, fmt.Errorf("unknown command %s", fields[0])
	}

	return false, nil
}

// restore loads a saved conversation into s when one exists for the same persona.
func (c *chat) restore(s *session.Session) error {
	if c.historyPath == "" {
		return nil
	}

	f, ok, err := history.Load(c.historyPath)
	if err != nil {
		return fmt.Errorf("load history: %w", err)
	}
	if !ok {
		return nil
	}

	if f.Persona != s.PersonaID() {
		fmt.Fprintln(c.out, styleWarning.Render(fmt.Sprintf(
			"history in %s belongs to %s, starting fresh", c.historyPath, f.Persona)))
		return nil
	}

	if err := s.Restore(f.Messages); err != nil {
		return fmt.Errorf("load history: %w", err)
	}
	fmt.Fprintln(c.out, styleDim.Render(fmt.Sprintf("resumed %d messages from %s", len(f.Messages), c.historyPath)))
	return nil
}
