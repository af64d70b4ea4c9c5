// Package observ times the highlighting pipeline stages for --timings:
// grammar loading, linking, theme loading, and line processing.
package observ

import (
	"fmt"
	"strings"
	"time"
)

// Timer collects completed pipeline stages in order.
type Timer struct {
	stages []stage
}

type stage struct {
	name  string
	start time.Time
	dur   time.Duration
	items int
	unit  string
}

// NewTimer returns an empty timer.
func NewTimer() *Timer { return &Timer{stages: make([]stage, 0, 8)} }

// Stage is a running measurement; finish it with Done.
type Stage struct {
	t   *Timer
	idx int
}

// Start begins timing a named stage.
func (t *Timer) Start(name string) Stage {
	t.stages = append(t.stages, stage{name: name, start: time.Now()})
	return Stage{t: t, idx: len(t.stages) - 1}
}

// Done records the stage duration and what it processed; unit names the
// items (e.g. "syntaxes", "lines"). Zero items hides the count.
func (s Stage) Done(items int, unit string) {
	if s.t == nil || s.idx < 0 || s.idx >= len(s.t.stages) {
		return
	}
	st := &s.t.stages[s.idx]
	st.dur = time.Since(st.start)
	st.items = items
	st.unit = unit
}

// Summary renders the collected stages with durations and throughput.
func (t *Timer) Summary() string {
	var sb strings.Builder
	sb.WriteString("timings:\n")
	var total time.Duration
	for _, st := range t.stages {
		total += st.dur
		ms := float64(st.dur) / float64(time.Millisecond)
		fmt.Fprintf(&sb, "  %-16s %8.2f ms", st.name, ms)
		if st.items > 0 {
			fmt.Fprintf(&sb, "  %d %s", st.items, st.unit)
			if secs := st.dur.Seconds(); secs > 0 {
				fmt.Fprintf(&sb, " (%.0f %s/s)", float64(st.items)/secs, st.unit)
			}
		}
		sb.WriteString("\n")
	}
	fmt.Fprintf(&sb, "  %-16s %8.2f ms\n", "total", float64(total)/float64(time.Millisecond))
	return sb.String()
}
