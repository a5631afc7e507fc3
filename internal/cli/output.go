// Package cli holds terminal output helpers for feedctl.
package cli

import (
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"text/tabwriter"
	"time"

	"github.com/R3E-Network/ledgerfeed/internal/social"
)

// Color codes for terminal output.
const (
	ColorReset  = "\033[0m"
	ColorRed    = "\033[31m"
	ColorGreen  = "\033[32m"
	ColorYellow = "\033[33m"
	ColorCyan   = "\033[36m"
	ColorBold   = "\033[1m"
)

// Printer writes status lines, coloring them when the output is a terminal.
type Printer struct {
	out   io.Writer
	color bool
}

// NewPrinter creates a Printer on w.
func NewPrinter(w io.Writer) *Printer {
	return &Printer{out: w, color: isTerminal(w)}
}

func (p *Printer) line(mark, color, message string) {
	if p.color {
		fmt.Fprintf(p.out, "%s%s%s %s\n", color, mark, ColorReset, message)
		return
	}
	fmt.Fprintf(p.out, "%s %s\n", mark, message)
}

// Success prints a success line.
func (p *Printer) Success(message string) { p.line("✓", ColorGreen, message) }

// Error prints an error line.
func (p *Printer) Error(message string) { p.line("✗", ColorRed, message) }

// Warning prints a warning line.
func (p *Printer) Warning(message string) { p.line("!", ColorYellow, message) }

// Feed prints items as a table, newest first as given.
func (p *Printer) Feed(items []social.FeedItem) {
	if len(items) == 0 {
		fmt.Fprintln(p.out, "(no posts)")
		return
	}
	tw := tabwriter.NewWriter(p.out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "TIME\tAUTHOR\t#\tTEXT")
	for _, it := range items {
		when := time.Unix(it.Timestamp, 0).UTC().Format(time.RFC3339)
		author := it.AuthorName
		if author == "" {
			author = it.Author.String()
		}
		text := strings.ReplaceAll(it.Text, "\n", " ")
		if it.Pending {
			text += " (pending)"
		}
		fmt.Fprintf(tw, "%s\t%s\t%d\t%s\n", when, author, it.Index, text)
	}
	_ = tw.Flush()
}

// Spinner shows activity while a submission waits for confirmation.
type Spinner struct {
	frames  []string
	current int
	prefix  string
	mu      sync.Mutex
	writer  io.Writer
	active  bool
	done    chan struct{}
	start   time.Time
}

// NewSpinner creates a spinner on w. It stays silent when w is not a terminal.
func NewSpinner(w io.Writer, prefix string) *Spinner {
	return &Spinner{
		frames: []string{"⠋", "⠙", "⠹", "⠸", "⠼", "⠴", "⠦", "⠧", "⠇", "⠏"},
		prefix: prefix,
		writer: w,
		done:   make(chan struct{}),
	}
}

// Start begins animating.
func (s *Spinner) Start() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.active || !isTerminal(s.writer) {
		return
	}
	s.active = true
	s.start = time.Now()

	go func() {
		ticker := time.NewTicker(100 * time.Millisecond)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				s.mu.Lock()
				if s.active {
					fmt.Fprintf(s.writer, "\r%s%s%s %s %s", ColorCyan, s.frames[s.current], ColorReset, s.prefix, formatDuration(time.Since(s.start)))
					s.current = (s.current + 1) % len(s.frames)
				}
				s.mu.Unlock()
			case <-s.done:
				return
			}
		}
	}()
}

// Stop clears the spinner line.
func (s *Spinner) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.active {
		return
	}
	s.active = false
	close(s.done)
	fmt.Fprint(s.writer, "\r"+strings.Repeat(" ", 80)+"\r")
}

func isTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	if !ok {
		return false
	}
	info, err := f.Stat()
	if err != nil {
		return false
	}
	return info.Mode()&os.ModeCharDevice != 0
}

func formatDuration(d time.Duration) string {
	if d < time.Second {
		return "< 1s"
	}
	if d < time.Minute {
		return fmt.Sprintf("%ds", int(d.Seconds()))
	}
	return fmt.Sprintf("%dm%ds", int(d.Minutes()), int(d.Seconds())%60)
}
