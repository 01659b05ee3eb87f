// Package output renders the user-facing per-task lines and diffs. It is
// deliberately thin: modules compute diffs and results, the interpreter
// decides what happened, and this package only formats.
package output

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/fatih/color"

	"github.com/rashlabs/rash/pkg/engine"
)

const bannerWidth = 80

// Formatter writes task lines in the configured style.
type Formatter struct {
	style engine.OutputStyle
	diff  bool
	w     io.Writer

	ok      *color.Color
	changed *color.Color
	failed  *color.Color
	skipped *color.Color
	ignored *color.Color
	dim     *color.Color
}

// New builds a formatter writing to stdout.
func New(style engine.OutputStyle, diff bool) *Formatter {
	return NewWriter(style, diff, os.Stdout)
}

// NewWriter builds a formatter writing to w.
func NewWriter(style engine.OutputStyle, diff bool, w io.Writer) *Formatter {
	return &Formatter{
		style:   style,
		diff:    diff,
		w:       w,
		ok:      color.New(color.FgGreen),
		changed: color.New(color.FgYellow),
		failed:  color.New(color.FgRed),
		skipped: color.New(color.FgCyan),
		ignored: color.New(color.FgBlue),
		dim:     color.New(color.Faint),
	}
}

// TaskBanner prints the task separator line.
func (f *Formatter) TaskBanner(name string) {
	if f.style == engine.OutputRaw {
		return
	}
	header := fmt.Sprintf("TASK [%s] ", name)
	pad := 0
	if len(header) < bannerWidth {
		pad = bannerWidth - len(header)
	}
	fmt.Fprintln(f.w, header+strings.Repeat("*", pad))
}

// Ok prints a no-change result line.
func (f *Formatter) Ok(output string) {
	f.result(f.ok, "ok", output)
}

// Changed prints a change-producing result line.
func (f *Formatter) Changed(output string) {
	f.result(f.changed, "changed", output)
}

// Skipped prints a skip line.
func (f *Formatter) Skipped(reason string) {
	if f.style == engine.OutputRaw {
		return
	}
	f.skipped.Fprintln(f.w, "skipped: "+reason)
}

// Failed prints a failure line.
func (f *Formatter) Failed(err error) {
	if f.style == engine.OutputRaw {
		fmt.Fprintln(f.w, err.Error())
		return
	}
	f.failed.Fprintln(f.w, "failed: "+err.Error())
}

// Ignored prints an ignored-failure line.
func (f *Formatter) Ignored(err error) {
	if f.style == engine.OutputRaw {
		return
	}
	f.ignored.Fprintln(f.w, "[ignoring error] "+err.Error())
}

// Diff prints a unified diff when --diff is on. Added lines are green,
// removed lines red, everything else dim.
func (f *Formatter) Diff(text string) {
	if !f.diff || text == "" {
		return
	}
	for _, line := range strings.Split(strings.TrimRight(text, "\n"), "\n") {
		switch {
		case strings.HasPrefix(line, "+"):
			f.ok.Fprintln(f.w, line)
		case strings.HasPrefix(line, "-"):
			f.failed.Fprintln(f.w, line)
		default:
			f.dim.Fprintln(f.w, line)
		}
	}
}

// Help prints the doc block verbatim.
func (f *Formatter) Help(doc string) {
	fmt.Fprint(f.w, doc)
	if !strings.HasSuffix(doc, "\n") {
		fmt.Fprintln(f.w)
	}
}

func (f *Formatter) result(c *color.Color, status, output string) {
	if f.style == engine.OutputRaw {
		if output != "" {
			fmt.Fprintln(f.w, output)
		}
		return
	}
	line := status + ":"
	if output != "" {
		line += " " + output
	}
	c.Fprintln(f.w, line)
}
