package sink

import (
	"context"
	"fmt"
	"image"
	"sync"

	"cutroom/internal/mixer"
)

// Guarded wraps a Sink and rejects calls that break the sink contract.
// Violations are encoding errors and never reach the wrapped sink.
type Guarded struct {
	inner Sink

	mu       sync.Mutex
	started  bool
	stopped  bool
	audioSet bool
	cleaned  bool
	next     int
}

// Guard wraps s. Guarding an already guarded sink returns it unchanged.
func Guard(s Sink) *Guarded {
	if g, ok := s.(*Guarded); ok {
		return g
	}
	return &Guarded{inner: s}
}

// Unwrap returns the wrapped sink.
func (g *Guarded) Unwrap() Sink { return g.inner }

// Start may be called once.
func (g *Guarded) Start(ctx context.Context, spec Spec) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	switch {
	case g.cleaned:
		return contractError("start", "sink already cleaned up")
	case g.started:
		return contractError("start", "sink already started")
	}
	if err := spec.Validate(); err != nil {
		return encodingError("start", err)
	}
	if err := g.inner.Start(ctx, spec); err != nil {
		return err
	}
	g.started = true
	return nil
}

// SetAudio may be called once, after Start and before the first frame.
func (g *Guarded) SetAudio(ctx context.Context, buf *mixer.Buffer) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if err := g.checkOpen("set audio"); err != nil {
		return err
	}
	switch {
	case g.audioSet:
		return contractError("set audio", "audio already set")
	case g.next > 0:
		return contractError("set audio", "audio must be set before the first frame")
	}
	if err := g.inner.SetAudio(ctx, buf); err != nil {
		return err
	}
	g.audioSet = true
	return nil
}

// PushFrame requires indices 0, 1, 2, ... with no gaps or repeats.
func (g *Guarded) PushFrame(ctx context.Context, frame *image.RGBA, index int) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if err := g.checkOpen("push frame"); err != nil {
		return err
	}
	if frame == nil {
		return contractError("push frame", fmt.Sprintf("frame %d is nil", index))
	}
	if index != g.next {
		return contractError("push frame", fmt.Sprintf("frame %d pushed out of order, expected %d", index, g.next))
	}
	if err := g.inner.PushFrame(ctx, frame, index); err != nil {
		return err
	}
	g.next++
	return nil
}

// Stop may be called once, after Start.
func (g *Guarded) Stop(ctx context.Context) (Output, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if err := g.checkOpen("stop"); err != nil {
		return Output{}, err
	}
	g.stopped = true
	return g.inner.Stop(ctx)
}

// Cleanup forwards the first call and ignores the rest.
func (g *Guarded) Cleanup() error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.cleaned {
		return nil
	}
	g.cleaned = true
	return g.inner.Cleanup()
}

// Pushed returns the number of frames accepted.
func (g *Guarded) Pushed() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.next
}

func (g *Guarded) checkOpen(op string) error {
	switch {
	case g.cleaned:
		return contractError(op, "sink already cleaned up")
	case !g.started:
		return contractError(op, "sink not started")
	case g.stopped:
		return contractError(op, "sink already stopped")
	}
	return nil
}

var _ Sink = (*Guarded)(nil)
