// Package output provides consistent CLI output formatting with colors on
// terminals and plain text everywhere else.
package output

import (
	"fmt"
	"io"
	"sort"
	"strings"
)

// Writer provides formatted output for CLI.
type Writer struct {
	out    io.Writer
	styles Styles
	color  bool
}

// New creates a Writer that colors its output only when out is a terminal
// and NO_COLOR is unset.
func New(out io.Writer) *Writer {
	return NewWithColor(out, ColorEnabled(out))
}

// NewWithColor creates a Writer with explicit color control.
func NewWithColor(out io.Writer, color bool) *Writer {
	return &Writer{
		out:    out,
		styles: GetStyles(!color),
		color:  color,
	}
}

// Color reports whether the writer emits styled output.
func (w *Writer) Color() bool {
	return w.color
}

// Status prints a status message with an icon.
// Errors from writing are intentionally ignored for console output.
func (w *Writer) Status(icon, msg string) {
	if icon != "" {
		_, _ = fmt.Fprintf(w.out, "%s %s\n", icon, msg)
	} else {
		_, _ = fmt.Fprintf(w.out, "   %s\n", msg)
	}
}

// Statusf prints a formatted status message with an icon.
func (w *Writer) Statusf(icon, format string, args ...any) {
	w.Status(icon, fmt.Sprintf(format, args...))
}

// Header prints a bold section header.
func (w *Writer) Header(msg string) {
	_, _ = fmt.Fprintln(w.out, w.styles.Header.Render(msg))
}

// Success prints a success message.
func (w *Writer) Success(msg string) {
	w.Status(w.styles.Success.Render("ok"), msg)
}

// Successf prints a formatted success message.
func (w *Writer) Successf(format string, args ...any) {
	w.Success(fmt.Sprintf(format, args...))
}

// Warning prints a warning message.
func (w *Writer) Warning(msg string) {
	w.Status(w.styles.Warning.Render("warn"), msg)
}

// Warningf prints a formatted warning message.
func (w *Writer) Warningf(format string, args ...any) {
	w.Warning(fmt.Sprintf(format, args...))
}

// Error prints an error message.
func (w *Writer) Error(msg string) {
	w.Status(w.styles.Error.Render("error"), msg)
}

// Errorf prints a formatted error message.
func (w *Writer) Errorf(format string, args ...any) {
	w.Error(fmt.Sprintf(format, args...))
}

// Path prints a changed path on its own line. Paths are never styled so
// the output stays pipeable into xargs and friends.
func (w *Writer) Path(path string) {
	_, _ = fmt.Fprintln(w.out, path)
}

// Verdict prints a path with an accepted or ignored label, aligned for
// `treewatch check`.
func (w *Writer) Verdict(path string, ignored bool) {
	label := w.styles.Success.Render("accepted")
	pad := "  "
	if ignored {
		label = w.styles.Dim.Render("ignored")
		pad = "   "
	}
	_, _ = fmt.Fprintf(w.out, "%s%s%s\n", label, pad, w.styles.Path.Render(path))
}

// KeyValues prints an aligned, key-sorted table.
func (w *Writer) KeyValues(kv map[string]string) {
	keys := make([]string, 0, len(kv))
	width := 0
	for k := range kv {
		keys = append(keys, k)
		if len(k) > width {
			width = len(k)
		}
	}
	sort.Strings(keys)

	for _, k := range keys {
		label := w.styles.Label.Render(k + ":")
		_, _ = fmt.Fprintf(w.out, "  %s%s %s\n", label, strings.Repeat(" ", width-len(k)), kv[k])
	}
}

// Code prints a code block with indentation.
func (w *Writer) Code(content string) {
	_, _ = fmt.Fprintln(w.out)
	for _, line := range strings.Split(content, "\n") {
		_, _ = fmt.Fprintf(w.out, "  %s\n", line)
	}
	_, _ = fmt.Fprintln(w.out)
}

// Newline prints an empty line.
func (w *Writer) Newline() {
	_, _ = fmt.Fprintln(w.out)
}
