package export

import (
	"slices"
	"strings"
	"sync"

	"cutroom/internal/services"
)

// failureSet aggregates element failures across frames. Each frame attempt
// is independent, so repeats only raise the count.
type failureSet struct {
	mu      sync.Mutex
	byID    map[string]*FailedElement
	ordered []string
}

func newFailureSet() *failureSet {
	return &failureSet{byID: make(map[string]*FailedElement)}
}

// add records errs and returns the ones seen for the first time.
func (f *failureSet) add(errs ...*services.ElementError) []*services.ElementError {
	f.mu.Lock()
	defer f.mu.Unlock()
	var fresh []*services.ElementError
	for _, e := range errs {
		if e == nil {
			continue
		}
		id := strings.TrimSpace(e.ElementID)
		entry, ok := f.byID[id]
		if !ok {
			entry = &FailedElement{ElementID: id, Kind: e.Kind, FirstError: e.Error()}
			f.byID[id] = entry
			f.ordered = append(f.ordered, id)
			fresh = append(fresh, e)
		}
		entry.Failures++
	}
	return fresh
}

func (f *failureSet) snapshot() []FailedElement {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.ordered) == 0 {
		return nil
	}
	out := make([]FailedElement, 0, len(f.ordered))
	for _, id := range f.ordered {
		out = append(out, *f.byID[id])
	}
	slices.SortStableFunc(out, func(a, b FailedElement) int { return strings.Compare(a.ElementID, b.ElementID) })
	return out
}
