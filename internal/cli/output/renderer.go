// Package output renders CLI results in text, markdown, or JSON form.
// Commands decide WHAT to print; the Renderer decides HOW, based on the
// requested mode and whether stdout is a terminal.
package output

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"golang.org/x/term"
)

// Mode selects the output format.
type Mode string

const (
	// ModeAuto picks text on a TTY and markdown otherwise.
	ModeAuto     Mode = "auto"
	ModeText     Mode = "text"
	ModeMarkdown Mode = "markdown"
	ModeJSON     Mode = "json"
)

// Modes lists the accepted --output values for flag completion.
var Modes = []string{string(ModeAuto), string(ModeText), string(ModeMarkdown), string(ModeJSON)}

// Renderer writes command output in the effective mode. It is safe to share
// across the commands of one invocation but not across goroutines.
type Renderer struct {
	out    io.Writer
	errOut io.Writer
	mode   Mode
	isTTY  bool
	styles *Styles
}

// NewRenderer creates a renderer, detecting TTY state from out.
func NewRenderer(out, errOut io.Writer, mode Mode) *Renderer {
	return NewRendererWithTTY(out, errOut, detectTTY(out), mode)
}

// NewRendererWithTTY creates a renderer with an explicit TTY state. Tests
// use it to pin the effective mode regardless of where output goes.
func NewRendererWithTTY(out, errOut io.Writer, isTTY bool, mode Mode) *Renderer {
	r := &Renderer{
		out:    out,
		errOut: errOut,
		mode:   normalizeMode(mode),
		isTTY:  isTTY,
	}
	r.styles = newStyles(r.EffectiveMode() == ModeText && isTTY)
	return r
}

func detectTTY(w io.Writer) bool {
	f, ok := w.(*os.File)
	if !ok {
		return false
	}
	return term.IsTerminal(int(f.Fd()))
}

func normalizeMode(m Mode) Mode {
	switch Mode(strings.ToLower(strings.TrimSpace(string(m)))) {
	case ModeText:
		return ModeText
	case ModeMarkdown, "md":
		return ModeMarkdown
	case ModeJSON:
		return ModeJSON
	default:
		return ModeAuto
	}
}

// EffectiveMode resolves ModeAuto: text on a TTY, markdown when piped.
func (r *Renderer) EffectiveMode() Mode {
	if r.mode != ModeAuto {
		return r.mode
	}
	if r.isTTY {
		return ModeText
	}
	return ModeMarkdown
}

// IsTTY reports whether stdout was detected (or declared) as a terminal.
func (r *Renderer) IsTTY() bool {
	return r.isTTY
}

// Writer returns the stdout writer, for encoders that stream directly.
func (r *Renderer) Writer() io.Writer {
	return r.out
}

// ErrWriter returns the stderr writer.
func (r *Renderer) ErrWriter() io.Writer {
	return r.errOut
}

// Styles returns the style set matching the effective mode. Styles are
// no-ops outside colored text mode, so rendered strings stay ANSI-free in
// markdown and JSON output.
func (r *Renderer) Styles() *Styles {
	return r.styles
}

// Println writes a line to stdout.
func (r *Renderer) Println(a ...any) {
	_, _ = fmt.Fprintln(r.out, a...)
}

// Printf writes formatted output to stdout.
func (r *Renderer) Printf(format string, a ...any) {
	_, _ = fmt.Fprintf(r.out, format, a...)
}

// Header prints a section header: styled in text mode, hash-prefixed in
// markdown mode.
func (r *Renderer) Header(level int, text string) {
	if r.EffectiveMode() == ModeText {
		style := r.styles.Header2
		if level <= 1 {
			style = r.styles.Header1
		}
		_, _ = fmt.Fprintln(r.out, style.Render(text))
		return
	}
	_, _ = fmt.Fprintln(r.out, FormatHeader(level, text))
	_, _ = fmt.Fprintln(r.out)
}

// Success prints a confirmation line.
func (r *Renderer) Success(msg string) {
	_, _ = fmt.Fprintln(r.out, r.styles.Success.Render(okMark+" "+msg))
}

// Warning prints a warning line to stderr.
func (r *Renderer) Warning(msg string) {
	_, _ = fmt.Fprintln(r.errOut, r.styles.Warning.Render(warnMark+" "+msg))
}

// Error prints an error line to stderr.
func (r *Renderer) Error(msg string) {
	_, _ = fmt.Fprintln(r.errOut, r.styles.Error.Render(failMark+" "+msg))
}

// Muted prints a low-emphasis line.
func (r *Renderer) Muted(msg string) {
	_, _ = fmt.Fprintln(r.out, r.styles.Muted.Render(msg))
}

// StatusLine prints one per-item progress line, e.g. during imports:
//
//	✓ Object 140 (tier 10 medium)
func (r *Renderer) StatusLine(name, status, detail string) {
	mark := r.styles.Muted.Render("-")
	switch status {
	case "success", "added", "updated":
		mark = r.styles.Success.Render(okMark)
	case "error", "failed":
		mark = r.styles.Error.Render(failMark)
	case "warning", "skipped", "ignored":
		mark = r.styles.Warning.Render(warnMark)
	}
	if detail != "" {
		detail = " " + r.styles.Muted.Render("("+detail+")")
	}
	_, _ = fmt.Fprintf(r.out, "  %s %s%s\n", mark, name, detail)
}

// JSON writes v to stdout as indented JSON.
func (r *Renderer) JSON(v any) error {
	enc := json.NewEncoder(r.out)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

const (
	okMark   = "✓"
	failMark = "✗"
	warnMark = "!"
)
