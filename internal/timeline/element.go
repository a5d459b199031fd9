package timeline

import "gopkg.in/yaml.v3"

// Kind identifies the variant of a timeline element.
type Kind string

const (
	KindVideo Kind = "video"
	KindAudio Kind = "audio"
	KindImage Kind = "image"
	KindText  Kind = "text"
)

// Capability is the set of pipeline stages an element participates in.
type Capability uint8

const (
	// Drawable elements contribute pixels to rendered frames.
	Drawable Capability = 1 << iota
	// Audible elements contribute samples to the mixed audio.
	Audible
)

// Capabilities returns the capability set of the kind. Unknown kinds have none.
func (k Kind) Capabilities() Capability {
	switch k {
	case KindVideo:
		return Drawable | Audible
	case KindAudio:
		return Audible
	case KindImage, KindText:
		return Drawable
	default:
		return 0
	}
}

// Valid reports whether k is a known element kind.
func (k Kind) Valid() bool {
	return k.Capabilities() != 0
}

// Transform positions a drawable element. X and Y offset the element centre
// from the canvas centre in output pixels. A zero Width or Height fits the
// element inside the canvas keeping its aspect ratio.
type Transform struct {
	X        float64 `yaml:"x" json:"x"`
	Y        float64 `yaml:"y" json:"y"`
	Width    float64 `yaml:"width" json:"width"`
	Height   float64 `yaml:"height" json:"height"`
	Opacity  float64 `yaml:"opacity" json:"opacity"`
	Rotation float64 `yaml:"rotation" json:"rotation"`
}

// TextStyle carries the content and styling of a text element.
type TextStyle struct {
	Content    string  `yaml:"content" json:"content"`
	FontSize   float64 `yaml:"font_size" json:"font_size"`
	Color      string  `yaml:"color" json:"color"`
	Background string  `yaml:"background" json:"background"`
	Align      string  `yaml:"align" json:"align"`
}

// Element is one visual or audio unit on a track. Times are in seconds.
type Element struct {
	ID        string     `yaml:"id" json:"id"`
	Name      string     `yaml:"name" json:"name"`
	Kind      Kind       `yaml:"kind" json:"kind"`
	Source    string     `yaml:"source" json:"source"`
	StartTime float64    `yaml:"start" json:"start"`
	Duration  float64    `yaml:"duration" json:"duration"`
	TrimStart float64    `yaml:"trim_start" json:"trim_start"`
	TrimEnd   float64    `yaml:"trim_end" json:"trim_end"`
	Volume    float64    `yaml:"volume" json:"volume"`
	Pan       float64    `yaml:"pan" json:"pan"`
	Muted     bool       `yaml:"muted" json:"muted"`
	Transform Transform  `yaml:"transform" json:"transform"`
	Text      *TextStyle `yaml:"text,omitempty" json:"text,omitempty"`
}

// NewElement returns an element with unit volume and full opacity.
func NewElement(id string, kind Kind, start, duration float64) Element {
	return Element{
		ID:        id,
		Kind:      kind,
		StartTime: start,
		Duration:  duration,
		Volume:    1,
		Transform: Transform{Opacity: 1},
	}
}

// UnmarshalYAML applies the unit volume and opacity defaults before decoding
// so omitted keys keep the element audible and visible.
func (e *Element) UnmarshalYAML(node *yaml.Node) error {
	type plain Element
	p := plain{Volume: 1, Transform: Transform{Opacity: 1}}
	if err := node.Decode(&p); err != nil {
		return err
	}
	*e = Element(p)
	return nil
}

// UnmarshalYAML defaults opacity to 1 when the key is omitted.
func (t *Transform) UnmarshalYAML(node *yaml.Node) error {
	type plain Transform
	p := plain{Opacity: 1}
	if err := node.Decode(&p); err != nil {
		return err
	}
	*t = Transform(p)
	return nil
}

// Has reports whether the element participates in the given capability.
func (e Element) Has(c Capability) bool {
	return e.Kind.Capabilities()&c == c
}

// EffectiveDuration is the visible length after trimming, never negative.
func (e Element) EffectiveDuration() float64 {
	return max(0, e.Duration-e.TrimStart-e.TrimEnd)
}

// EndTime is the exclusive end of the element on the timeline.
func (e Element) EndTime() float64 {
	return e.StartTime + e.EffectiveDuration()
}

// VisibleAt uses a half-open interval: an element ending at t is not visible at t.
func (e Element) VisibleAt(t float64) bool {
	return e.StartTime <= t && t < e.EndTime()
}

// SourceTime maps a timeline timestamp into the element's source media.
func (e Element) SourceTime(t float64) float64 {
	return t - e.StartTime + e.TrimStart
}
