package progress

import (
	"fmt"
	"io"
	"strings"
	"time"
)

const barWidth = 30

// Bar tracks completed requests of a matrix run and redraws a single status
// line on its writer.
type Bar struct {
	total       int
	done        int
	failed      int
	startTime   time.Time
	lastUpdate  time.Time
	minInterval time.Duration
	output      io.Writer
	description string
	now         func() time.Time
}

// NewBar creates a bar for total steps. A nil writer disables output.
func NewBar(w io.Writer, total int, description string) *Bar {
	b := &Bar{
		total:       total,
		output:      w,
		description: description,
		minInterval: 100 * time.Millisecond,
		now:         time.Now,
	}
	b.startTime = b.now()
	return b
}

// Record counts one finished step.
func (b *Bar) Record(ok bool) {
	b.done++
	if !ok {
		b.failed++
	}
	b.render(false)
}

// Done returns completed and failed step counts.
func (b *Bar) Done() (done, failed int) {
	return b.done, b.failed
}

// Finish draws the final state and ends the line.
func (b *Bar) Finish() {
	if b.output == nil {
		return
	}
	b.render(true)
	fmt.Fprint(b.output, "\n")
}

func (b *Bar) render(force bool) {
	if b.output == nil {
		return
	}

	// Throttle redraws, but always draw the last step
	now := b.now()
	if !force && b.done < b.total && now.Sub(b.lastUpdate) < b.minInterval {
		return
	}
	b.lastUpdate = now

	fmt.Fprint(b.output, "\r"+b.line(now.Sub(b.startTime)))
}

func (b *Bar) line(elapsed time.Duration) string {
	filled := 0
	if b.total > 0 {
		filled = barWidth * b.done / b.total
	}
	if filled > barWidth {
		filled = barWidth
	}
	bar := strings.Repeat("=", filled)
	if filled < barWidth {
		bar += ">" + strings.Repeat("-", barWidth-filled-1)
	}

	s := fmt.Sprintf("[%s] %d/%d", bar, b.done, b.total)
	if b.description != "" {
		s = b.description + " " + s
	}
	if b.failed > 0 {
		s += fmt.Sprintf(" (%d failed)", b.failed)
	}
	return s + " | Elapsed: " + formatDuration(elapsed)
}

// formatDuration formats a duration in a human-readable way
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
