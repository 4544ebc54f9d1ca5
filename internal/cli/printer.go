package cli

import (
	"fmt"
	"io"
	"strings"

	"github.com/charmbracelet/glamour"

	"github.com/erg0nix/chorus/internal/session"
)

// fragmentPrinter writes a reply as it streams in. In markdown mode text is held until the
// turn ends and then rendered as a whole.
type fragmentPrinter struct {
	out      io.Writer
	renderer *glamour.TermRenderer
	markdown bool

	buf   strings.Builder
	wrote bool
}

func newFragmentPrinter(out io.Writer, markdown bool) *fragmentPrinter {
	p := &fragmentPrinter{out: out, markdown: markdown}
	if markdown {
		p.renderer = newMarkdownRenderer()
	}
	return p
}

func (p *fragmentPrinter) Print(f session.Fragment) {
	if p.markdown && !f.Terminal() {
		p.buf.WriteString(f.Text)
		return
	}

	if f.Terminal() {
		p.flush()
		if p.wrote {
			fmt.Fprintln(p.out)
		}
	}

	fmt.Fprint(p.out, renderFragment(f))
	p.wrote = true
}

// Finish ends the reply with a newline.
func (p *fragmentPrinter) Finish() {
	p.flush()
	if p.wrote {
		fmt.Fprintln(p.out)
	}
	p.wrote = false
}

func (p *fragmentPrinter) flush() {
	if p.buf.Len() == 0 {
		return
	}
	fmt.Fprint(p.out, strings.TrimRight(renderMarkdown(p.renderer, p.buf.String()), "\n"))
	p.buf.Reset()
	p.wrote = true
}
