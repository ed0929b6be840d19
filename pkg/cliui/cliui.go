// Package cliui provides reusable terminal UI helpers (styles, spinners, step
// indicators) for recall CLI commands.
package cliui

import (
	"fmt"
	"io"
	"sync"
	"time"

	"charm.land/lipgloss/v2"
)

var (
	SuccessMark  = lipgloss.NewStyle().Foreground(lipgloss.Color("82")).Render("✓")
	FailMark     = lipgloss.NewStyle().Foreground(lipgloss.Color("196")).Render("✗")
	WarnMark     = lipgloss.NewStyle().Foreground(lipgloss.Color("214")).Render("!")
	StepStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("245"))
	spinnerStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("82"))

	HeaderStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("252")).Bold(true)
	KeyStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("245"))
	ValueStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("252"))
	DimStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("241"))
	RankStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("82")).Bold(true)
	ScoreStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("245"))
	IDStyle      = lipgloss.NewStyle().Foreground(lipgloss.Color("39"))
	PhraseStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("82"))
	PreviewStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("252"))
	WarnStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("214"))
)

var spinnerFrames = []string{"⣾", "⣽", "⣻", "⢿", "⡿", "⣟", "⣯", "⣷"}

// Step prints an animated spinner while fn runs, then replaces it with
// a ✓ or ✗ checkmark and elapsed time.
func Step(w io.Writer, msg string, fn func() error) error {
	done := make(chan struct{})
	stopped := make(chan struct{})
	var mu sync.Mutex

	go func() {
		defer close(stopped)
		frame := 0
		ticker := time.NewTicker(80 * time.Millisecond)
		defer ticker.Stop()

		for {
			mu.Lock()
			fmt.Fprintf(w, "\r  %s %s",
				spinnerStyle.Render(spinnerFrames[frame%len(spinnerFrames)]),
				msg,
			)
			mu.Unlock()

			select {
			case <-done:
				return
			case <-ticker.C:
				frame++
			}
		}
	}()

	start := time.Now()
	err := fn()
	elapsed := time.Since(start)

	close(done)
	<-stopped

	mu.Lock()
	fmt.Fprintf(w, "\r  %s %s %s\n",
		Mark(err),
		msg,
		StepStyle.Render(fmt.Sprintf("(%s)", FormatDuration(elapsed))),
	)
	mu.Unlock()

	return err
}

// Mark returns a ✓ for nil errors or ✗ for non-nil errors.
func Mark(err error) string {
	if err != nil {
		return FailMark
	}
	return SuccessMark
}

// FormatDuration formats a duration for display (e.g. "12ms" or "3.2s").
func FormatDuration(d time.Duration) string {
	if d < time.Second {
		return fmt.Sprintf("%dms", d.Milliseconds())
	}
	return fmt.Sprintf("%.1fs", d.Seconds())
}

// KeyValue prints an aligned "key  value" line.
func KeyValue(w io.Writer, width int, key, value string) {
	if value == "" {
		fmt.Fprintf(w, "  %s  %s\n", KeyStyle.Render(fmt.Sprintf("%-*s", width, key)), DimStyle.Render("<not set>"))
		return
	}
	fmt.Fprintf(w, "  %s  %s\n", KeyStyle.Render(fmt.Sprintf("%-*s", width, key)), ValueStyle.Render(value))
}
