// Package output formats CLI output. Icons and progress bars are used only
// when writing to a terminal; pipes get plain, stable text.
package output

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/mattn/go-isatty"

	rxerrors "github.com/Aman-CERP/recidx/internal/errors"
)

// Writer provides formatted output for the CLI.
type Writer struct {
	out      io.Writer
	terminal bool
}

// New creates a Writer, detecting whether out is a terminal.
func New(out io.Writer) *Writer {
	return &Writer{out: out, terminal: IsTerminal(out)}
}

// NewPlain creates a Writer that never uses terminal decorations.
func NewPlain(out io.Writer) *Writer {
	return &Writer{out: out}
}

// IsTerminal reports whether w is an interactive terminal.
func IsTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	if !ok {
		return false
	}
	return isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
}

// Terminal reports whether decorations are enabled.
func (w *Writer) Terminal() bool {
	return w.terminal
}

// Status prints a message with an icon on terminals, or a plain prefix.
// Errors from writing are intentionally ignored for console output.
func (w *Writer) Status(icon, prefix, msg string) {
	switch {
	case w.terminal && icon != "":
		_, _ = fmt.Fprintf(w.out, "%s %s\n", icon, msg)
	case prefix != "":
		_, _ = fmt.Fprintf(w.out, "%s: %s\n", prefix, msg)
	default:
		_, _ = fmt.Fprintln(w.out, msg)
	}
}

// Success prints a success message.
func (w *Writer) Success(msg string) {
	w.Status("✅", "", msg)
}

// Successf prints a formatted success message.
func (w *Writer) Successf(format string, args ...any) {
	w.Success(fmt.Sprintf(format, args...))
}

// Warning prints a warning message.
func (w *Writer) Warning(msg string) {
	w.Status("⚠️ ", "warning", msg)
}

// Warningf prints a formatted warning message.
func (w *Writer) Warningf(format string, args ...any) {
	w.Warning(fmt.Sprintf(format, args...))
}

// Error prints an error message.
func (w *Writer) Error(msg string) {
	w.Status("❌", "error", msg)
}

// Errorf prints a formatted error message.
func (w *Writer) Errorf(format string, args ...any) {
	w.Error(fmt.Sprintf(format, args...))
}

// Failure prints err, followed by its suggestion when it is a coded error.
func (w *Writer) Failure(err error) {
	w.Error(err.Error())
	var rxErr *rxerrors.RecidxError
	if errors.As(err, &rxErr) && rxErr.Suggestion != "" {
		_, _ = fmt.Fprintf(w.out, "   %s\n", rxErr.Suggestion)
	}
}

// JSON writes v as indented JSON.
func (w *Writer) JSON(v any) error {
	enc := json.NewEncoder(w.out)
	enc.SetIndent("", "  ")
	enc.SetEscapeHTML(false)
	return enc.Encode(v)
}

// KeyValue prints aligned key/value pairs. pairs alternate key, value.
func (w *Writer) KeyValue(pairs ...string) {
	tw := tabwriter.NewWriter(w.out, 0, 4, 2, ' ', 0)
	for i := 0; i+1 < len(pairs); i += 2 {
		_, _ = fmt.Fprintf(tw, "%s:\t%s\n", pairs[i], pairs[i+1])
	}
	_ = tw.Flush()
}

// Table prints rows under a header line, columns aligned.
func (w *Writer) Table(header []string, rows [][]string) {
	tw := tabwriter.NewWriter(w.out, 0, 4, 2, ' ', 0)
	_, _ = fmt.Fprintln(tw, strings.Join(header, "\t"))
	for _, row := range rows {
		_, _ = fmt.Fprintln(tw, strings.Join(row, "\t"))
	}
	_ = tw.Flush()
}

// Newline prints an empty line.
func (w *Writer) Newline() {
	_, _ = fmt.Fprintln(w.out)
}

// Progress redraws a progress bar in place. It prints nothing unless the
// writer is a terminal.
func (w *Writer) Progress(current, total int, msg string) {
	if !w.terminal || total <= 0 {
		return
	}
	pct := float64(current) / float64(total) * 100
	_, _ = fmt.Fprintf(w.out, "\r[%s] %.0f%% %s", renderProgressBar(current, total, 30), pct, msg)
	if current >= total {
		_, _ = fmt.Fprintln(w.out)
	}
}

// renderProgressBar creates a text progress bar.
func renderProgressBar(current, total, width int) string {
	if total <= 0 {
		return strings.Repeat("░", width)
	}
	filled := int(float64(current) / float64(total) * float64(width))
	filled = max(0, min(filled, width))
	return strings.Repeat("█", filled) + strings.Repeat("░", width-filled)
}
