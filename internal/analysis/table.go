package analysis

import "sync"

// Table is the signal frequency table of a single run. Increments are
// serialized by one mutex which is never held across I/O.
type Table struct {
	mu     sync.Mutex
	counts map[string]int
	sealed bool
}

// NewTable allocates an empty table.
func NewTable() *Table {
	return &Table{counts: make(map[string]int)}
}

// Increment sets the count of signal to 1 if absent, otherwise adds one.
// Empty signals are ignored. It returns false when nothing was recorded.
func (t *Table) Increment(signal string) bool {
	if signal == "" {
		return false
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.sealed {
		return false
	}
	t.counts[signal]++
	return true
}

// Reset clears every entry and reopens a sealed table. Callers must ensure no
// task of a previous run still references the table.
func (t *Table) Reset() {
	t.mu.Lock()
	defer t.mu.Unlock()
	clear(t.counts)
	t.sealed = false
}

// Seal stops the table from accepting further increments.
func (t *Table) Seal() {
	t.mu.Lock()
	t.sealed = true
	t.mu.Unlock()
}

// Sealed reports whether Seal has been called since the last Reset.
func (t *Table) Sealed() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.sealed
}

// Snapshot returns a point-in-time copy of the counts.
func (t *Table) Snapshot() map[string]int {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make(map[string]int, len(t.counts))
	for k, v := range t.counts {
		out[k] = v
	}
	return out
}

// Len returns the number of distinct signals recorded.
func (t *Table) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.counts)
}

// Tally buffers the contributions of one task before they are committed to
// the run's table. It is not safe for concurrent use.
type Tally struct {
	signals []string
}

// Increment records a contribution in the buffer.
func (b *Tally) Increment(signal string) bool {
	if signal == "" {
		return false
	}
	b.signals = append(b.signals, signal)
	return true
}

// Len returns the number of buffered contributions.
func (b *Tally) Len() int {
	return len(b.signals)
}

// CommitTo applies every buffered contribution to sink and returns how many
// were accepted.
func (b *Tally) CommitTo(sink Incrementer) int {
	accepted := 0
	for _, s := range b.signals {
		if sink.Increment(s) {
			accepted++
		}
	}
	return accepted
}
