package compositor

import (
	"context"
	"errors"
	"fmt"
	"image"
	"image/color"
	"image/draw"
	"log/slog"
	"sync"

	xdraw "golang.org/x/image/draw"

	"cutroom/internal/logging"
	"cutroom/internal/media"
	"cutroom/internal/services"
	"cutroom/internal/timeline"
)

// Options configure a Compositor.
type Options struct {
	Width, Height int
	// Background fills each frame before drawing. Nil means opaque black.
	Background color.Color
	Provider   media.Provider
	FontPath   string
	// Scaler resamples images to their placement. Nil selects bilinear.
	Scaler xdraw.Scaler
	Logger *slog.Logger
}

// FrameReport describes one rendered frame.
type FrameReport struct {
	FrameNumber int
	Timestamp   float64
	Drawn       int
	Failures    []*services.ElementError
}

// Compositor resolves and draws the visible elements of a timeline. It is
// owned by one export; RenderFrame is safe for concurrent use on distinct
// buffers.
type Compositor struct {
	tl       *timeline.Timeline
	width    int
	height   int
	bg       *image.Uniform
	provider media.Provider
	scaler   xdraw.Scaler
	text     *textRenderer
	logger   *slog.Logger

	mu       sync.Mutex
	handles  map[string]*handleEntry
	overlaps map[[2]string]struct{}
	closed   bool
}

// handleEntry serialises access to one element's media handle.
type handleEntry struct {
	mu       sync.Mutex
	handle   media.Handle
	failures int
}

// New returns a compositor for tl. An unreadable font falls back to the
// built-in face with a warning.
func New(tl *timeline.Timeline, opts Options) (*Compositor, error) {
	if opts.Width <= 0 || opts.Height <= 0 {
		return nil, fmt.Errorf("compositor: invalid canvas %dx%d", opts.Width, opts.Height)
	}
	if opts.Background == nil {
		opts.Background = color.Black
	}
	if opts.Scaler == nil {
		opts.Scaler = xdraw.BiLinear
	}
	logger := logging.NewComponentLogger(opts.Logger, "compositor")
	text, err := newTextRenderer(opts.FontPath)
	if err != nil {
		logging.WarnWithContext(logger, "font unavailable; using built-in face", "font_load_failed",
			logging.String("font_path", opts.FontPath),
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "check render.font_path points to a TrueType or OpenType file"),
			logging.String(logging.FieldImpact, "text renders in the fixed 7x13 face"),
		)
	}
	return &Compositor{
		tl:       tl,
		width:    opts.Width,
		height:   opts.Height,
		bg:       image.NewUniform(opts.Background),
		provider: opts.Provider,
		scaler:   opts.Scaler,
		text:     text,
		logger:   logger,
		handles:  make(map[string]*handleEntry),
		overlaps: make(map[[2]string]struct{}),
	}, nil
}

// Resolve returns the placements visible at t. Same-track overlaps are
// drawn but logged once per element pair.
func (c *Compositor) Resolve(t float64) []Placement {
	placements := Resolve(c.tl, t)
	for i := 1; i < len(placements); i++ {
		prev, cur := placements[i-1], placements[i]
		if prev.TrackIndex != cur.TrackIndex {
			continue
		}
		c.noteOverlap(cur.TrackIndex, prev.Element.ID, cur.Element.ID)
	}
	return placements
}

func (c *Compositor) noteOverlap(track int, first, second string) {
	key := [2]string{first, second}
	c.mu.Lock()
	_, seen := c.overlaps[key]
	if !seen {
		c.overlaps[key] = struct{}{}
	}
	c.mu.Unlock()
	if seen {
		return
	}
	logging.WarnWithContext(c.logger, "elements overlap on one track; drawing both", "track_overlap",
		logging.Int("track_index", track),
		logging.String("first_element", first),
		logging.String("second_element", second),
		logging.String(logging.FieldErrorHint, "move one element to another track or trim it"),
		logging.String(logging.FieldImpact, "the later element covers the earlier one"),
	)
}

// RenderFrame clears buf to the background and draws every placement of
// desc bottom-up. Element failures are reported, not returned; the only
// returned errors are cancellation and an unusable buffer.
func (c *Compositor) RenderFrame(ctx context.Context, desc timeline.FrameDescriptor, buf *image.RGBA) (FrameReport, error) {
	report := FrameReport{FrameNumber: desc.FrameNumber, Timestamp: desc.Timestamp}
	if buf == nil || buf.Bounds().Dx() != c.width || buf.Bounds().Dy() != c.height {
		return report, fmt.Errorf("render frame %d: buffer does not match %dx%d canvas", desc.FrameNumber, c.width, c.height)
	}
	draw.Draw(buf, buf.Bounds(), c.bg, image.Point{}, draw.Src)

	for _, p := range c.Resolve(desc.Timestamp) {
		if err := ctx.Err(); err != nil {
			return report, err
		}
		err := c.drawElement(ctx, buf, p.Element, desc.Timestamp)
		switch {
		case err == nil:
			report.Drawn++
		case ctx.Err() != nil:
			return report, ctx.Err()
		default:
			report.Failures = append(report.Failures, &services.ElementError{
				ElementID: p.Element.ID,
				Kind:      string(p.Element.Kind),
				Op:        "draw",
				Err:       err,
			})
		}
	}
	return report, nil
}

func (c *Compositor) drawElement(ctx context.Context, buf *image.RGBA, el timeline.Element, t float64) error {
	if el.Kind == timeline.KindText {
		return c.text.draw(buf, el)
	}
	if el.Transform.Opacity <= 0 {
		return nil
	}
	img, err := c.frame(ctx, el, el.SourceTime(t))
	if err != nil {
		return err
	}
	rect := place(buf.Bounds(), el.Transform, img.Bounds().Dx(), img.Bounds().Dy())
	drawScaled(buf, rect, img, el.Transform.Opacity, c.scaler)
	return nil
}

// frame fetches the element image at source time st. Handles are opened
// lazily and kept for the compositor's lifetime; failed opens are retried
// on the next frame.
func (c *Compositor) frame(ctx context.Context, el timeline.Element, st float64) (image.Image, error) {
	if c.provider == nil {
		return nil, errors.New("no media provider configured")
	}
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil, errors.New("compositor closed")
	}
	entry, ok := c.handles[el.ID]
	if !ok {
		entry = &handleEntry{}
		c.handles[el.ID] = entry
	}
	c.mu.Unlock()

	entry.mu.Lock()
	defer entry.mu.Unlock()
	if entry.handle == nil {
		h, err := c.provider.Open(ctx, el)
		if err != nil {
			c.noteFailure(entry, el, "open", err)
			return nil, err
		}
		entry.handle = h
	}
	img, err := entry.handle.Frame(ctx, st)
	if err != nil {
		c.noteFailure(entry, el, "seek", err)
		return nil, err
	}
	return img, nil
}

// noteFailure logs the first failure of an element at warn and the rest at
// debug. Callers hold entry.mu.
func (c *Compositor) noteFailure(entry *handleEntry, el timeline.Element, op string, err error) {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return
	}
	entry.failures++
	if entry.failures > 1 {
		c.logger.Debug("element draw failed again", logging.Element(el.ID), logging.String("op", op),
			logging.Int("failures", entry.failures), logging.Error(err))
		return
	}
	logging.WarnWithContext(c.logger, "element skipped for frame", "element_draw_failed",
		logging.Element(el.ID),
		logging.String("kind", string(el.Kind)),
		logging.String("op", op),
		logging.Error(err),
		logging.String(logging.FieldErrorHint, "check that the source exists and decodes"),
		logging.String(logging.FieldImpact, "element is missing from affected frames"),
	)
}

// Close releases every media handle and font face. It is safe to call more
// than once.
func (c *Compositor) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	handles := c.handles
	c.handles = nil
	c.mu.Unlock()

	var errs []error
	for id, entry := range handles {
		entry.mu.Lock()
		if entry.handle != nil {
			if err := entry.handle.Close(); err != nil {
				errs = append(errs, fmt.Errorf("close %s: %w", id, err))
			}
			entry.handle = nil
		}
		entry.mu.Unlock()
	}
	if err := c.text.close(); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}
