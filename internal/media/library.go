package media

import (
	"context"
	"errors"
	"image"
	"strings"
	"sync"

	"cutroom/internal/timeline"
)

// Library opens element sources from the local filesystem. Still images are
// decoded once per source and shared between handles; everything else is
// treated as video and seeked with ffmpeg.
type Library struct {
	FFmpegBinary string

	mu     sync.Mutex
	stills map[string]stillEntry
}

type stillEntry struct {
	img image.Image
	err error
}

// NewLibrary returns a Library that runs the given ffmpeg binary.
func NewLibrary(ffmpegBinary string) *Library {
	return &Library{FFmpegBinary: ffmpegBinary}
}

// Open returns a handle for a drawable element. Text elements have no
// source and are rendered by the compositor directly.
func (l *Library) Open(ctx context.Context, el timeline.Element) (Handle, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	source := strings.TrimSpace(el.Source)
	switch {
	case el.Kind == timeline.KindText:
		return nil, unsupported(el.ID, "open", errors.New("text elements have no media source"))
	case !el.Has(timeline.Drawable):
		return nil, unsupported(source, "open", errors.New("element is not drawable"))
	case source == "":
		return nil, corrupt(el.ID, "open", errors.New("empty source"))
	}

	if IsStill(source) {
		img, err := l.still(source)
		if err != nil {
			return nil, err
		}
		return NewStillHandle(img), nil
	}
	if el.Kind == timeline.KindImage {
		return nil, unsupported(source, "open image", errors.New("unrecognised image extension"))
	}

	binary := strings.TrimSpace(l.FFmpegBinary)
	if binary == "" {
		binary = "ffmpeg"
	}
	return newVideoHandle(binary, source)
}

func (l *Library) still(source string) (image.Image, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if entry, ok := l.stills[source]; ok {
		return entry.img, entry.err
	}
	img, err := DecodeStill(source)
	if l.stills == nil {
		l.stills = make(map[string]stillEntry)
	}
	l.stills[source] = stillEntry{img: img, err: err}
	return img, err
}

// Purge drops cached stills.
func (l *Library) Purge() {
	l.mu.Lock()
	l.stills = nil
	l.mu.Unlock()
}
