package output

import (
	"fmt"
	"io"
	"strings"
	"sync"
)

// ProgressBar draws a percentage bar. It satisfies engine.Progress.
type ProgressBar struct {
	w       io.Writer
	title   string
	width   int
	mu      sync.Mutex
	percent float64
	done    bool
}

// NewProgressBar creates a progress bar writing to w.
func NewProgressBar(w io.Writer, title string) *ProgressBar {
	return &ProgressBar{w: w, title: title, width: 40}
}

// Report sets the completed percentage (0 to 100) and redraws.
func (p *ProgressBar) Report(percent float64) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.done {
		return
	}
	switch {
	case percent < 0:
		percent = 0
	case percent > 100:
		percent = 100
	}
	p.percent = percent
	p.render()
}

// Finish ends the line. Later reports are ignored.
func (p *ProgressBar) Finish() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.done {
		return
	}
	p.done = true
	fmt.Fprintln(p.w)
}

// Percent returns the last reported percentage.
func (p *ProgressBar) Percent() float64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.percent
}

func (p *ProgressBar) render() {
	filled := int(float64(p.width) * p.percent / 100)
	bar := strings.Repeat("█", filled) + strings.Repeat("░", p.width-filled)
	fmt.Fprintf(p.w, "\r%s [%s] %3.0f%%", p.title, bar, p.percent)
}

// FormatBytes formats a byte count for humans.
func FormatBytes(b int64) string {
	const unit = 1024
	if b < unit {
		return fmt.Sprintf("%d B", b)
	}
	div, exp := int64(unit), 0
	for n := b / unit; n >= unit; n /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %cB", float64(b)/float64(div), "KMGTPE"[exp])
}
