// Package tui renders download progress and run summaries for the terminal.
//
// Output is line oriented so it can be piped to a file; styling is dropped
// automatically by lipgloss when the destination is not a terminal.
package tui

import (
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/charmbracelet/bubbles/progress"
	"github.com/charmbracelet/lipgloss"
	"github.com/handiism/gallery-fetch/internal/download"
)

// Styles for terminal output
var (
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("#FF6B6B")).
			MarginBottom(1)

	successStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#95E1A3"))

	errorStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#FF6B6B"))

	warningStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#FFE66D"))

	infoStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#A8DADC"))

	dimStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#6C757D"))

	boxStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("#4ECDC4")).
			Padding(1, 2)
)

// Printer writes progress events and summaries to Out.
//
// Event is safe for concurrent use; download workers report through it.
type Printer struct {
	Out     io.Writer
	Verbose bool

	mu  sync.Mutex
	bar progress.Model
}

// NewPrinter creates a Printer writing to out.
func NewPrinter(out io.Writer, verbose bool) *Printer {
	return &Printer{
		Out:     out,
		Verbose: verbose,
		bar:     progress.New(progress.WithDefaultGradient(), progress.WithWidth(40)),
	}
}

// Title prints the program banner.
func (p *Printer) Title(text string) {
	p.write(titleStyle.Render(text))
}

// Event prints a progress event. Verbose events are dropped unless the
// Printer is verbose.
func (p *Printer) Event(event download.ProgressEvent) {
	if event.Level == download.LevelVerbose && !p.Verbose {
		return
	}
	p.write(FormatEvent(event))
}

// Progress prints a progress bar for done of total files.
func (p *Printer) Progress(done, total int32, received int64) {
	var percent float64
	if total > 0 {
		percent = float64(done) / float64(total)
	}
	p.write(p.bar.ViewAs(percent) + " " + infoStyle.Render(fmt.Sprintf(
		"Files: %d/%d | Downloaded: %.2f MB",
		done,
		total,
		float64(received)/1024/1024,
	)))
}

// Summary prints the boxed end-of-run report.
func (p *Printer) Summary(summary download.Summary, received int64) {
	p.write(FormatSummary(summary, received))
}

func (p *Printer) write(line string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	fmt.Fprintln(p.Out, line)
}

// FormatEvent renders a single event with a level marker.
func FormatEvent(event download.ProgressEvent) string {
	var style lipgloss.Style
	prefix := "•"
	switch event.Level {
	case download.LevelError:
		style = errorStyle
		prefix = "✗"
	case download.LevelWarning:
		style = warningStyle
		prefix = "!"
	case download.LevelSuccess:
		style = successStyle
		prefix = "✓"
	case download.LevelInfo:
		style = infoStyle
		prefix = "›"
	default:
		style = dimStyle
	}
	return style.Render(prefix + " " + event.Message)
}

// FormatSummary renders the run summary, listing every task that is still
// failing.
func FormatSummary(summary download.Summary, received int64) string {
	var b strings.Builder

	title := successStyle.Render("✨ Download Complete!")
	if len(summary.Failed) > 0 {
		title = errorStyle.Render("Download finished with failures")
	}

	b.WriteString(boxStyle.Render(fmt.Sprintf(
		"%s\n\n"+
			"Passes: %d\n"+
			"Succeeded: %d\n"+
			"Failed: %d\n"+
			"Size: %.2f MB",
		title,
		summary.Passes,
		len(summary.Succeeded),
		len(summary.Failed),
		float64(received)/1024/1024,
	)))

	for _, f := range summary.Failed {
		b.WriteString("\n")
		b.WriteString(errorStyle.Render(fmt.Sprintf("✗ %s: %v", f.Task, f.Err)))
	}

	return b.String()
}
