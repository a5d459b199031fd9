package sink

import (
	"context"
	"fmt"
	"image"
	"math"

	"cutroom/internal/mixer"
	"cutroom/internal/services"
	"cutroom/internal/timeline"
)

// Spec is everything a sink needs to know about the stream it encodes.
type Spec struct {
	Format  timeline.Format
	Quality timeline.Quality
	Width   int
	Height  int
	FPS     float64
}

// SpecFromSettings copies the encoder-relevant fields of s.
func SpecFromSettings(s timeline.Settings) Spec {
	return Spec{Format: s.Format, Quality: s.Quality, Width: s.Width, Height: s.Height, FPS: s.FPS}
}

// Validate checks the fields every encoder depends on.
func (s Spec) Validate() error {
	switch {
	case s.Width <= 0 || s.Height <= 0:
		return fmt.Errorf("invalid frame size %dx%d", s.Width, s.Height)
	case s.FPS <= 0 || math.IsNaN(s.FPS) || math.IsInf(s.FPS, 0):
		return fmt.Errorf("invalid fps %v", s.FPS)
	case !s.Format.Valid():
		return fmt.Errorf("unsupported format %q", s.Format)
	}
	return nil
}

// Output is the result of a successful Stop. The caller owns Blob.
type Output struct {
	Blob     Blob
	MimeType string
	// Extras carries sink-specific artifacts, such as a sidecar audio file.
	Extras map[string]string
}

// Sink consumes ordered frames and one mixed audio stream and produces an
// encoded blob.
//
// Frames arrive with contiguous indices starting at zero. SetAudio is
// called at most once, before the first frame. Cleanup must be safe to call
// more than once and before Start.
type Sink interface {
	Start(ctx context.Context, spec Spec) error
	SetAudio(ctx context.Context, buf *mixer.Buffer) error
	PushFrame(ctx context.Context, frame *image.RGBA, index int) error
	Stop(ctx context.Context) (Output, error)
	Cleanup() error
}

// Factory builds a sink for a spec.
type Factory interface {
	New(spec Spec) (Sink, error)
}

// FactoryFunc adapts a function to Factory.
type FactoryFunc func(spec Spec) (Sink, error)

// New calls f.
func (f FactoryFunc) New(spec Spec) (Sink, error) { return f(spec) }

func encodingError(op string, err error) error {
	return services.Wrap(services.ErrEncoding, "sink", op, "", err)
}

func contractError(op, msg string) error {
	return services.Wrap(services.ErrEncoding, "sink", op, msg, nil)
}
