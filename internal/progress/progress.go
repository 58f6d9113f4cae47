// Package progress draws a one-line progress bar for batch runs.
package progress

import (
	"fmt"
	"io"
	"strings"
	"sync"
	"time"
)

const (
	barWidth       = 40
	renderInterval = 100 * time.Millisecond
)

// Bar tracks completed and failed exchanges out of a known total.
type Bar struct {
	mu          sync.Mutex
	total       int
	done        int
	failed      int
	description string
	output      io.Writer
	startTime   time.Time
	lastRender  time.Time
	now         func() time.Time
}

// New creates a bar writing to w. A nil w disables output.
func New(w io.Writer, total int, description string) *Bar {
	return &Bar{
		total:       total,
		description: description,
		output:      w,
		startTime:   time.Now(),
		now:         time.Now,
	}
}

// Done records one finished exchange.
func (b *Bar) Done(ok bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.done++
	if !ok {
		b.failed++
	}
	b.render(false)
}

// Finish draws the final state and ends the line.
func (b *Bar) Finish() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.output == nil {
		return
	}
	b.render(true)
	fmt.Fprint(b.output, "\n")
}

// render redraws at most every renderInterval unless forced or complete.
func (b *Bar) render(force bool) {
	if b.output == nil {
		return
	}
	now := b.now()
	if !force && b.done < b.total && now.Sub(b.lastRender) < renderInterval {
		return
	}
	b.lastRender = now
	fmt.Fprint(b.output, "\r"+b.line(now))
}

func (b *Bar) line(now time.Time) string {
	var percent float64
	if b.total > 0 {
		percent = float64(b.done) / float64(b.total) * 100
	}
	filled := int(float64(barWidth) * percent / 100)
	if filled > barWidth {
		filled = barWidth
	}
	bar := strings.Repeat("=", filled)
	if filled < barWidth {
		bar += ">" + strings.Repeat("-", barWidth-filled-1)
	}

	elapsed := now.Sub(b.startTime)
	var sb strings.Builder
	if b.description != "" {
		sb.WriteString(b.description + " ")
	}
	fmt.Fprintf(&sb, "[%s] %d/%d (%.1f%%)", bar, b.done, b.total, percent)
	if b.failed > 0 {
		fmt.Fprintf(&sb, " %d failed", b.failed)
	}
	fmt.Fprintf(&sb, " | %s", formatDuration(elapsed))
	if b.done > 0 && b.done < b.total {
		rate := float64(b.done) / elapsed.Seconds()
		if rate > 0 {
			eta := time.Duration(float64(b.total-b.done) / rate * float64(time.Second))
			fmt.Fprintf(&sb, " | ETA %s", formatDuration(eta))
		}
	}
	return sb.String()
}

func formatDuration(d time.Duration) string {
	if d < time.Second {
		return fmt.Sprintf("%dms", d.Milliseconds())
	}
	if d < time.Minute {
		return fmt.Sprintf("%.1fs", d.Seconds())
	}
	minutes := int(d.Minutes())
	seconds := int(d.Seconds()) % 60
	return fmt.Sprintf("%dm%ds", minutes, seconds)
}
