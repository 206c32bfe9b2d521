// Package logging builds the structured logger and the status printer used
// for the one-line-per-action progress output.
package logging

import (
	"fmt"
	"io"
	"sync"

	"github.com/charmbracelet/lipgloss"
)

const statusTag = "s3_sync"

// Status prints human-readable progress lines, each prefixed with a
// right-aligned tag. Colors are only emitted when the writer is a terminal.
// It is safe for concurrent use.
type Status struct {
	mu      sync.Mutex
	w       io.Writer
	verbose bool

	tag  lipgloss.Style
	warn lipgloss.Style
	fail lipgloss.Style
}

// NewStatus returns a Status writing to w. Verbose enables Debug lines.
func NewStatus(w io.Writer, verbose bool) *Status {
	r := lipgloss.NewRenderer(w)
	return &Status{
		w:       w,
		verbose: verbose,
		tag:     r.NewStyle().Width(12).Align(lipgloss.Right).Foreground(lipgloss.Color("2")),
		warn:    r.NewStyle().Foreground(lipgloss.Color("3")),
		fail:    r.NewStyle().Foreground(lipgloss.Color("1")),
	}
}

// Say prints a regular status line.
func (s *Status) Say(format string, args ...any) {
	s.line(fmt.Sprintf(format, args...))
}

// Debug prints a status line only in verbose mode.
func (s *Status) Debug(format string, args ...any) {
	if !s.verbose {
		return
	}
	s.line(fmt.Sprintf(format, args...))
}

// Warn prints a status line with a highlighted label.
func (s *Status) Warn(label, format string, args ...any) {
	s.line(s.warn.Render(label) + " " + fmt.Sprintf(format, args...))
}

// Fail prints an error status line with a highlighted label.
func (s *Status) Fail(label, format string, args ...any) {
	s.line(s.fail.Render(label) + " " + fmt.Sprintf(format, args...))
}

// DryRun prints what would have happened.
func (s *Status) DryRun(format string, args ...any) {
	s.Warn("DRY RUN:", format, args...)
}

func (s *Status) line(msg string) {
	if s == nil || s.w == nil {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	fmt.Fprintf(s.w, "%s  %s\n", s.tag.Render(statusTag), msg)
}
