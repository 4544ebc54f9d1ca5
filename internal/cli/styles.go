package cli

import (
	"fmt"
	"os"

	"github.com/charmbracelet/glamour"
	"github.com/charmbracelet/glamour/ansi"
	glamourstyles "github.com/charmbracelet/glamour/styles"
	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	"github.com/muesli/termenv"
	"golang.org/x/term"

	"github.com/erg0nix/chorus/internal/core"
	"github.com/erg0nix/chorus/internal/session"
)

var (
	colorPrimary = lipgloss.Color("#7C71F9")
	colorSuccess = lipgloss.Color("#34D399")
	colorError   = lipgloss.Color("#F87171")
	colorWarning = lipgloss.Color("#FBBF24")
	colorDim     = lipgloss.Color("#6B7280")
	colorAccent  = lipgloss.Color("#60A5FA")
)

var (
	styleDim     = lipgloss.NewStyle().Foreground(colorDim)
	styleError   = lipgloss.NewStyle().Foreground(colorError)
	styleSuccess = lipgloss.NewStyle().Foreground(colorSuccess)
	styleWarning = lipgloss.NewStyle().Foreground(colorWarning)

	stylePersona = lipgloss.NewStyle().Bold(true).Foreground(colorAccent)
	styleHint    = lipgloss.NewStyle().Faint(true).Italic(true)
	stylePrompt  = lipgloss.NewStyle().Bold(true).Foreground(colorPrimary)

	styleTableHeader = lipgloss.NewStyle().Bold(true).Foreground(colorPrimary)

	stylePID = lipgloss.NewStyle().Foreground(colorAccent)
)

var fragmentKindStyles = map[session.FragmentKind]lipgloss.Style{
	session.FragmentRejected:  styleWarning,
	session.FragmentModerated: styleWarning,
	session.FragmentFailed:    styleError,
}

// renderFragment styles terminal fragments so refusals and failures stand out from the reply.
func renderFragment(f session.Fragment) string {
	if s, ok := fragmentKindStyles[f.Kind]; ok {
		return s.Render(f.Text)
	}
	return f.Text
}

func newTable(headers ...string) *table.Table {
	return table.New().
		Headers(headers...).
		BorderTop(false).
		BorderBottom(false).
		BorderLeft(false).
		BorderRight(false).
		BorderColumn(false).
		BorderHeader(true).
		Border(lipgloss.NormalBorder()).
		StyleFunc(func(row, col int) lipgloss.Style {
			if row == table.HeaderRow {
				return styleTableHeader
			}
			return lipgloss.NewStyle().PaddingRight(2)
		})
}

func styledError(msg string, hints ...string) string {
	out := styleError.Render(msg)
	for _, h := range hints {
		out += "\n  " + styleDim.Render(h)
	}
	return out
}

func compactStyle() ansi.StyleConfig {
	var style ansi.StyleConfig
	if termenv.HasDarkBackground() {
		style = glamourstyles.DarkStyleConfig
	} else {
		style = glamourstyles.LightStyleConfig
	}

	zero := uint(0)
	style.Document.Margin = &zero
	style.Document.BlockPrefix = ""
	style.Document.BlockSuffix = ""
	return style
}

func terminalWidth() int {
	width, _, err := term.GetSize(int(os.Stdout.Fd()))
	if err != nil || width <= 0 {
		return 80
	}
	return width
}

func newMarkdownRenderer() *glamour.TermRenderer {
	r, err := glamour.NewTermRenderer(
		glamour.WithStyles(compactStyle()),
		glamour.WithWordWrap(terminalWidth()),
	)
	if err != nil {
		return nil
	}
	return r
}

// renderMarkdown falls back to the plain text when no renderer is available.
func renderMarkdown(r *glamour.TermRenderer, text string) string {
	if r == nil {
		return text
	}
	rendered, err := r.Render(text)
	if err != nil {
		return text
	}
	return rendered
}

func formatSnapshot(snap core.ContextSnapshot) string {
	if snap.ContextSize == 0 {
		return styleDim.Render(fmt.Sprintf("ctx ~%d tokens, %d messages", snap.EstimatedTokens, snap.Messages))
	}

	pct := snap.EstimatedTokens * 100 / snap.ContextSize

	pctStyle := styleDim
	switch {
	case pct > 95:
		pctStyle = styleError
	case snap.NearLimit:
		pctStyle = styleWarning
	}

	return styleDim.Render("ctx") + " " +
		fmt.Sprintf("~%d/%d ", snap.EstimatedTokens, snap.ContextSize) +
		pctStyle.Render(fmt.Sprintf("%d%%", pct)) + "  " +
		styleDim.Render(fmt.Sprintf("target:%d msgs:%d", snap.Target, snap.Messages))
}
