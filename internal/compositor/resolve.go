package compositor

import (
	"cmp"
	"slices"

	"cutroom/internal/timeline"
)

// Placement is one drawable element visible at a timestamp.
type Placement struct {
	TrackIndex int
	// Order is the element's position within its track.
	Order   int
	Element timeline.Element
}

// Resolve returns the drawable elements visible at t, bottom layer first.
// Muted tracks are still drawn.
func Resolve(tl *timeline.Timeline, t float64) []Placement {
	if tl == nil {
		return nil
	}
	var out []Placement
	for ti, track := range tl.Tracks {
		for ei, el := range track.Elements {
			if !el.Has(timeline.Drawable) || !el.VisibleAt(t) {
				continue
			}
			out = append(out, Placement{TrackIndex: ti, Order: ei, Element: el})
		}
	}
	slices.SortStableFunc(out, func(a, b Placement) int {
		if c := cmp.Compare(a.TrackIndex, b.TrackIndex); c != 0 {
			return c
		}
		return cmp.Compare(a.Order, b.Order)
	})
	return out
}
