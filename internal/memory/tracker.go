package memory

import (
	"sync"
)

// Probe reports usage not accounted for by reservations, such as decoder
// scratch space or a synthetic figure in tests.
type Probe func() uint64

// Tracker accounts reserved bytes against a budget. It is safe for
// concurrent use.
type Tracker struct {
	budget Budget
	probe  Probe

	mu       sync.Mutex
	reserved uint64
	peak     uint64
}

// NewTracker returns a tracker for budget. probe may be nil.
func NewTracker(budget Budget, probe Probe) *Tracker {
	return &Tracker{budget: budget.WithDefaults(), probe: probe}
}

// Budget returns the tracker's budget.
func (t *Tracker) Budget() Budget {
	return t.budget
}

// Reserve records n bytes in use.
func (t *Tracker) Reserve(n uint64) {
	t.mu.Lock()
	t.reserved += n
	t.peak = max(t.peak, t.reserved)
	t.mu.Unlock()
}

// Release returns n bytes. Releasing more than reserved saturates at zero.
func (t *Tracker) Release(n uint64) {
	t.mu.Lock()
	if n > t.reserved {
		t.reserved = 0
	} else {
		t.reserved -= n
	}
	t.mu.Unlock()
}

// Reserved returns bytes currently reserved.
func (t *Tracker) Reserved() uint64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.reserved
}

// Peak returns the highest reservation seen.
func (t *Tracker) Peak() uint64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.peak
}

// Usage returns reserved bytes plus the probe figure.
func (t *Tracker) Usage() uint64 {
	usage := t.Reserved()
	if t.probe != nil {
		usage += t.probe()
	}
	return usage
}

// Level classifies current usage.
func (t *Tracker) Level() Level {
	return t.budget.Classify(t.Usage())
}
