package vm

import (
	"fmt"
	"strings"
	"sync"
	"time"
)

// ---------------------------------------------------------------------------
// Timings: named-duration diagnostics
// ---------------------------------------------------------------------------

// TimingPair is one named duration in accumulation order.
type TimingPair struct {
	Name     string
	Duration time.Duration
}

// Timings accumulates named durations for profiling the pipeline. It is
// diagnostics only, never consulted for correctness.
type Timings struct {
	mu      sync.Mutex
	order   []string
	entries map[string]time.Duration
}

// NewTimings creates an empty accumulator.
func NewTimings() *Timings {
	return &Timings{entries: make(map[string]time.Duration)}
}

// Add accumulates a duration under the given name.
func (t *Timings) Add(name string, d time.Duration) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if _, ok := t.entries[name]; !ok {
		t.order = append(t.order, name)
	}
	t.entries[name] += d
}

// Measure returns a stop function that records the elapsed time under
// name when called.
func (t *Timings) Measure(name string) func() {
	start := time.Now()
	return func() { t.Add(name, time.Since(start)) }
}

// Pairs returns the accumulated (name, duration) pairs in first-seen
// order.
func (t *Timings) Pairs() []TimingPair {
	t.mu.Lock()
	defer t.mu.Unlock()
	pairs := make([]TimingPair, 0, len(t.order))
	for _, name := range t.order {
		pairs = append(pairs, TimingPair{Name: name, Duration: t.entries[name]})
	}
	return pairs
}

// Total returns the sum of all accumulated durations.
func (t *Timings) Total() time.Duration {
	t.mu.Lock()
	defer t.mu.Unlock()
	var total time.Duration
	for _, d := range t.entries {
		total += d
	}
	return total
}

// Report renders the accumulated timings as ordered "name: ms" lines
// plus a total.
func (t *Timings) Report() string {
	var sb strings.Builder
	for _, p := range t.Pairs() {
		fmt.Fprintf(&sb, "%-24s %8.3f ms\n", p.Name, float64(p.Duration.Microseconds())/1000)
	}
	fmt.Fprintf(&sb, "%-24s %8.3f ms\n", "total", float64(t.Total().Microseconds())/1000)
	return sb.String()
}
