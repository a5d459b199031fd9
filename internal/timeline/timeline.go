package timeline

import (
	"fmt"
	"math"
	"strings"

	"cutroom/internal/services"
)

// Track is an ordered lane of elements. Its index in the timeline is its
// z-order: track 0 is the bottom layer.
type Track struct {
	ID       string    `yaml:"id" json:"id"`
	Name     string    `yaml:"name" json:"name"`
	Muted    bool      `yaml:"muted" json:"muted"`
	Elements []Element `yaml:"elements" json:"elements"`
}

// Timeline is the read-only snapshot consumed by one export.
type Timeline struct {
	Tracks []Track `yaml:"tracks" json:"tracks"`
}

// Duration is the latest element end time, or zero for an empty timeline.
func (tl *Timeline) Duration() float64 {
	if tl == nil {
		return 0
	}
	var end float64
	for _, track := range tl.Tracks {
		for _, el := range track.Elements {
			end = max(end, el.EndTime())
		}
	}
	return end
}

// ElementCount returns the total number of elements across all tracks.
func (tl *Timeline) ElementCount() int {
	if tl == nil {
		return 0
	}
	n := 0
	for _, track := range tl.Tracks {
		n += len(track.Elements)
	}
	return n
}

// Overlap records two elements on the same track whose intervals intersect.
type Overlap struct {
	TrackIndex int
	First      string
	Second     string
}

func (o Overlap) String() string {
	return fmt.Sprintf("track %d: %s overlaps %s", o.TrackIndex, o.First, o.Second)
}

// Overlaps lists same-track overlaps. These are data anomalies: both
// elements are still rendered in creation order.
func (tl *Timeline) Overlaps() []Overlap {
	if tl == nil {
		return nil
	}
	var out []Overlap
	for ti, track := range tl.Tracks {
		for i := 0; i < len(track.Elements); i++ {
			a := track.Elements[i]
			if a.EffectiveDuration() == 0 {
				continue
			}
			for j := i + 1; j < len(track.Elements); j++ {
				b := track.Elements[j]
				if b.EffectiveDuration() == 0 {
					continue
				}
				if a.StartTime < b.EndTime() && b.StartTime < a.EndTime() {
					out = append(out, Overlap{TrackIndex: ti, First: a.ID, Second: b.ID})
				}
			}
		}
	}
	return out
}

// Validate checks structural invariants of the timeline: known kinds, unique
// element IDs, finite non-negative timing, and volume/pan ranges.
func (tl *Timeline) Validate() error {
	if tl == nil {
		return services.Wrap(services.ErrValidation, "initializing", "validate timeline", "timeline is nil", nil)
	}
	var issues []string
	seen := make(map[string]struct{}, tl.ElementCount())
	for ti, track := range tl.Tracks {
		for ei, el := range track.Elements {
			label := el.ID
			if strings.TrimSpace(label) == "" {
				issues = append(issues, fmt.Sprintf("track %d element %d has no id", ti, ei))
				label = fmt.Sprintf("track %d element %d", ti, ei)
			} else if _, dup := seen[el.ID]; dup {
				issues = append(issues, fmt.Sprintf("duplicate element id %q", el.ID))
			}
			seen[el.ID] = struct{}{}

			if !el.Kind.Valid() {
				issues = append(issues, fmt.Sprintf("%s: unknown kind %q", label, el.Kind))
			}
			for _, f := range []struct {
				name  string
				value float64
			}{
				{"start", el.StartTime},
				{"duration", el.Duration},
				{"trim_start", el.TrimStart},
				{"trim_end", el.TrimEnd},
				{"volume", el.Volume},
			} {
				if math.IsNaN(f.value) || math.IsInf(f.value, 0) || f.value < 0 {
					issues = append(issues, fmt.Sprintf("%s: %s must be a finite value >= 0", label, f.name))
				}
			}
			if el.Pan < -1 || el.Pan > 1 || math.IsNaN(el.Pan) {
				issues = append(issues, fmt.Sprintf("%s: pan must be between -1 and 1", label))
			}
			if el.Kind == KindText && (el.Text == nil || strings.TrimSpace(el.Text.Content) == "") {
				issues = append(issues, fmt.Sprintf("%s: text element has no content", label))
			}
			if (el.Kind == KindVideo || el.Kind == KindAudio || el.Kind == KindImage) && strings.TrimSpace(el.Source) == "" {
				issues = append(issues, fmt.Sprintf("%s: %s element has no source", label, el.Kind))
			}
		}
	}
	if len(issues) == 0 {
		return nil
	}
	return services.Wrap(services.ErrValidation, "initializing", "validate timeline", strings.Join(issues, "; "), nil)
}
