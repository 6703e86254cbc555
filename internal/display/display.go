// Package display renders CLI output: status lines, aligned tables, and
// byte/time formatting. Color is applied through fatih/color, which already
// degrades to plain text on non-terminals and under NO_COLOR.
package display

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/fatih/color"
)

// Service writes formatted output to a single destination.
type Service struct {
	out     io.Writer
	success *color.Color
	warning *color.Color
	failure *color.Color
	info    *color.Color
	header  *color.Color
}

// NewService creates a display service writing to stdout.
func NewService() *Service {
	return NewServiceWithWriter(os.Stdout)
}

// NewServiceWithWriter creates a display service writing to w. Tests pass a
// buffer here.
func NewServiceWithWriter(w io.Writer) *Service {
	return &Service{
		out:     w,
		success: color.New(color.FgGreen),
		warning: color.New(color.FgYellow),
		failure: color.New(color.FgRed),
		info:    color.New(color.FgCyan),
		header:  color.New(color.Bold),
	}
}

// Success prints a green status line.
func (s *Service) Success(format string, args ...interface{}) {
	fmt.Fprintln(s.out, s.success.Sprintf(format, args...))
}

// Warning prints a yellow status line.
func (s *Service) Warning(format string, args ...interface{}) {
	fmt.Fprintln(s.out, s.warning.Sprintf(format, args...))
}

// Error prints a red status line.
func (s *Service) Error(format string, args ...interface{}) {
	fmt.Fprintln(s.out, s.failure.Sprintf(format, args...))
}

// Info prints a cyan status line.
func (s *Service) Info(format string, args ...interface{}) {
	fmt.Fprintln(s.out, s.info.Sprintf(format, args...))
}

// Plain prints an uncolored line.
func (s *Service) Plain(format string, args ...interface{}) {
	fmt.Fprintf(s.out, format+"\n", args...)
}

// Outcome colors an outcome string by its meaning: Success green, anything
// else red, empty rendered as a dash.
func (s *Service) Outcome(outcome string) string {
	switch outcome {
	case "":
		return "-"
	case "Success":
		return s.success.Sprint(outcome)
	default:
		return s.failure.Sprint(outcome)
	}
}

// PrintTable renders rows under a bold header with columns padded to the
// widest cell. Color escape sequences in cells would break the width
// calculation, so callers colorize only whole pre-measured cells via Outcome.
func (s *Service) PrintTable(headers []string, rows [][]string) {
	widths := make([]int, len(headers))
	for i, h := range headers {
		widths[i] = len(h)
	}
	for _, row := range rows {
		for i, cell := range row {
			if i < len(widths) && visibleLen(cell) > widths[i] {
				widths[i] = visibleLen(cell)
			}
		}
	}

	headerCells := make([]string, len(headers))
	for i, h := range headers {
		headerCells[i] = s.header.Sprint(pad(h, widths[i]))
	}
	fmt.Fprintln(s.out, strings.Join(headerCells, "  "))

	separator := make([]string, len(headers))
	for i := range headers {
		separator[i] = strings.Repeat("-", widths[i])
	}
	fmt.Fprintln(s.out, strings.Join(separator, "  "))

	for _, row := range rows {
		cells := make([]string, len(row))
		for i, cell := range row {
			if i < len(widths) {
				cells[i] = cell + strings.Repeat(" ", widths[i]-visibleLen(cell))
			} else {
				cells[i] = cell
			}
		}
		fmt.Fprintln(s.out, strings.TrimRight(strings.Join(cells, "  "), " "))
	}
}

func pad(s string, width int) string {
	if len(s) >= width {
		return s
	}
	return s + strings.Repeat(" ", width-len(s))
}

// visibleLen measures cell width ignoring ANSI color sequences.
func visibleLen(s string) int {
	n := 0
	inEscape := false
	for _, r := range s {
		switch {
		case inEscape:
			if r == 'm' {
				inEscape = false
			}
		case r == '\x1b':
			inEscape = true
		default:
			n++
		}
	}
	return n
}

// FormatBytes renders a byte count in human-readable binary units.
func FormatBytes(bytes int64) string {
	const unit = 1024
	if bytes < unit {
		return fmt.Sprintf("%d B", bytes)
	}
	div, exp := int64(unit), 0
	for n := bytes / unit; n >= unit; n /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %cB", float64(bytes)/float64(div), "KMGTPE"[exp])
}
