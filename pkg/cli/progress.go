package cli

import (
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"time"
)

// ProgressReporter reports progress through a fixed number of items, each
// of which passes or fails.
type ProgressReporter interface {
	Start(total int)
	Step(ok bool)
	Finish()
	Error(err error)
}

// SimpleProgress redraws a single status line on every step.
type SimpleProgress struct {
	mu      sync.Mutex
	w       io.Writer
	unit    string
	total   int
	done    int
	failed  int
	started time.Time
	now     func() time.Time
}

const progressWidth = 30

// NewProgressReporter creates a reporter writing to w, stderr when nil, and
// naming items unit ("files", "records").
func NewProgressReporter(w io.Writer, unit string) ProgressReporter {
	if w == nil {
		w = os.Stderr
	}
	if unit == "" {
		unit = "items"
	}
	return &SimpleProgress{w: w, unit: unit, now: time.Now}
}

// Start resets the counters for total items.
func (p *SimpleProgress) Start(total int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.total, p.done, p.failed = total, 0, 0
	p.started = p.now()
	p.render()
}

// Step records one finished item. Steps beyond total are ignored.
func (p *SimpleProgress) Step(ok bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.done >= p.total {
		return
	}
	p.done++
	if !ok {
		p.failed++
	}
	p.render()
}

// Finish ends the status line with the elapsed time.
func (p *SimpleProgress) Finish() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.total <= 0 {
		return
	}
	p.render()
	fmt.Fprintf(p.w, " in %s\n", p.now().Sub(p.started).Round(time.Millisecond))
}

// Error ends the status line with err.
func (p *SimpleProgress) Error(err error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	fmt.Fprintf(p.w, "\n✗ Error: %v\n", err)
}

func (p *SimpleProgress) render() {
	if p.total <= 0 {
		return
	}
	filled := progressWidth * p.done / p.total
	bar := strings.Repeat("█", filled) + strings.Repeat("░", progressWidth-filled)
	fmt.Fprintf(p.w, "\r[%s] %d/%d %s", bar, p.done, p.total, p.unit)
	if p.failed > 0 {
		fmt.Fprintf(p.w, ", %d failed", p.failed)
	}
}
