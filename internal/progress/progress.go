// Package progress renders the typing indicator shown while a question is
// being answered.
package progress

import (
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/efiadm/api-categorizer-aggr/internal/router"
)

// Display prints one status line per router phase, overwriting the previous
// one in place.
type Display struct {
	mu      sync.Mutex
	out     io.Writer
	started bool
	stopped bool

	startTime time.Time
	phase     router.Phase
	phases    int

	lastLine string
}

// New creates a display writing to w. A nil writer means stderr.
func New(w io.Writer) *Display {
	if w == nil {
		w = os.Stderr
	}
	return &Display{out: w}
}

// Start begins the display.
func (d *Display) Start() {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.started {
		return
	}

	d.started = true
	d.startTime = time.Now()
	d.phase = router.PhaseIdle
}

// Observe is a router.Observer.
func (d *Display) Observe(p router.Phase) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if !d.started || d.stopped {
		return
	}

	d.phase = p
	d.phases++

	line := fmt.Sprintf("\r%s %s (%s)", indicator(d.phases), label(p), formatDuration(time.Since(d.startTime)))

	// Clear previous line and print new one
	if len(line) < len(d.lastLine) {
		fmt.Fprint(d.out, "\r"+strings.Repeat(" ", len(d.lastLine)))
	}
	fmt.Fprint(d.out, line)
	d.lastLine = line
}

// Stop clears the indicator line.
func (d *Display) Stop() {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.stopped || !d.started {
		return
	}

	d.stopped = true
	if d.lastLine != "" {
		fmt.Fprint(d.out, "\r"+strings.Repeat(" ", len(d.lastLine))+"\r")
	}
}

// Phase returns the last observed phase.
func (d *Display) Phase() router.Phase {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.phase
}

func label(p router.Phase) string {
	switch p {
	case router.PhaseRouting:
		return "Finding relevant APIs..."
	case router.PhaseSynthesizing:
		return "Writing an answer..."
	case router.PhaseDone:
		return "Done"
	default:
		return "Waiting..."
	}
}

// indicator cycles the three typing dots.
func indicator(n int) string {
	dots := n % 3
	return "[" + strings.Repeat("•", dots+1) + strings.Repeat(" ", 2-dots) + "]"
}

// formatDuration formats a duration for display.
func formatDuration(d time.Duration) string {
	d = d.Round(100 * time.Millisecond)
	m := d / time.Minute
	d -= m * time.Minute

	if m > 0 {
		return fmt.Sprintf("%dm%04.1fs", m, d.Seconds())
	}
	return fmt.Sprintf("%.1fs", d.Seconds())
}
