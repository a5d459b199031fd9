package sink

import (
	"fmt"
	"slices"
	"sync"

	"cutroom/internal/services"
	"cutroom/internal/timeline"
)

// Constructor builds an unstarted sink.
type Constructor func(spec Spec) (Sink, error)

// Registry maps formats to sink constructors. Every sink it returns is
// wrapped in a Guard.
type Registry struct {
	mu       sync.RWMutex
	byFormat map[timeline.Format]Constructor
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{byFormat: make(map[timeline.Format]Constructor)}
}

// DefaultRegistry wires mp4, mov and webm to ffmpeg and avi to the
// in-process MJPEG writer.
func DefaultRegistry(opts Options) *Registry {
	r := NewRegistry()
	ffmpeg := func(Spec) (Sink, error) { return NewFFmpegSink(opts), nil }
	r.Register(timeline.FormatMP4, ffmpeg)
	r.Register(timeline.FormatMOV, ffmpeg)
	r.Register(timeline.FormatWebM, ffmpeg)
	r.Register(timeline.FormatAVI, func(Spec) (Sink, error) { return NewMJPEGSink(opts), nil })
	return r
}

// Register binds format to ctor, replacing any previous binding.
func (r *Registry) Register(format timeline.Format, ctor Constructor) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.byFormat[format] = ctor
}

// Formats returns the registered formats in a stable order.
func (r *Registry) Formats() []timeline.Format {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]timeline.Format, 0, len(r.byFormat))
	for f := range r.byFormat {
		out = append(out, f)
	}
	slices.Sort(out)
	return out
}

// New builds a guarded sink for spec.Format.
func (r *Registry) New(spec Spec) (Sink, error) {
	r.mu.RLock()
	ctor, ok := r.byFormat[spec.Format]
	r.mu.RUnlock()
	if !ok {
		return nil, &services.CompatibilityError{Issues: []string{fmt.Sprintf("no encoder registered for format %q", spec.Format)}}
	}
	s, err := ctor(spec)
	if err != nil {
		return nil, services.Wrap(services.ErrEncoding, "sink", "create", string(spec.Format), err)
	}
	return Guard(s), nil
}

var _ Factory = (*Registry)(nil)
