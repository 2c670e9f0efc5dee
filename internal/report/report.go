// Package report renders command results for the console. Color handling is
// delegated to fatih/color, which already disables itself for non-TTY output
// and honors NO_COLOR.
package report

import (
	"fmt"
	"io"
	"time"

	"github.com/fatih/color"
)

var (
	okColor   = color.New(color.FgGreen)
	warnColor = color.New(color.FgYellow)
	failColor = color.New(color.FgRed)
	boldColor = color.New(color.Bold)
	dimColor  = color.New(color.Faint)
)

// Printer writes formatted output to a single destination
type Printer struct {
	out io.Writer
}

// NewPrinter creates a printer bound to out
func NewPrinter(out io.Writer) *Printer {
	return &Printer{out: out}
}

// Heading prints a bold section heading
func (p *Printer) Heading(text string) {
	fmt.Fprintf(p.out, "%s\n", boldColor.Sprint(text))
}

// Check prints one doctor-style check row
func (p *Printer) Check(ok bool, name, detail string) {
	glyph := okColor.Sprint("✓")
	if !ok {
		glyph = failColor.Sprint("✗")
	}
	fmt.Fprintf(p.out, "  %s %-18s %s\n", glyph, name, detail)
}

// CheckWarn prints a check row that passed with a caveat
func (p *Printer) CheckWarn(name, detail string) {
	fmt.Fprintf(p.out, "  %s %-18s %s\n", warnColor.Sprint("!"), name, detail)
}

// Warnf prints a yellow warning line
func (p *Printer) Warnf(format string, a ...any) {
	fmt.Fprintf(p.out, "%s\n", warnColor.Sprintf("warning: "+format, a...))
}

// Errorf prints a red error line
func (p *Printer) Errorf(format string, a ...any) {
	fmt.Fprintf(p.out, "%s\n", failColor.Sprintf("error: "+format, a...))
}

// Successf prints a green confirmation line
func (p *Printer) Successf(format string, a ...any) {
	fmt.Fprintf(p.out, "%s\n", okColor.Sprintf(format, a...))
}

// Dimf prints a de-emphasized line
func (p *Printer) Dimf(format string, a ...any) {
	fmt.Fprintf(p.out, "%s\n", dimColor.Sprintf(format, a...))
}

// RunSummary prints the trailing summary after an assistant run. Session id
// and log path lines are omitted when unknown.
func (p *Printer) RunSummary(elapsed time.Duration, exitCode int, sessionID, logPath string) {
	p.Dimf("run complete in %s (exit %d)", formatElapsed(elapsed), exitCode)
	if sessionID != "" {
		p.Dimf("session id: %s", sessionID)
	}
	if logPath != "" {
		p.Dimf("log: %s", logPath)
	}
}

// LogEntry prints one row of a rally log listing
func (p *Printer) LogEntry(modified time.Time, rally int, topic, path string) {
	fmt.Fprintf(p.out, "  %s  rally %-2d  %s\n",
		dimColor.Sprint(modified.Format("2006-01-02 15:04")), rally, boldColor.Sprint(topic))
	fmt.Fprintf(p.out, "      %s\n", dimColor.Sprint(path))
}

func formatElapsed(d time.Duration) string {
	if d < time.Minute {
		return d.Round(100 * time.Millisecond).String()
	}
	return d.Round(time.Second).String()
}
