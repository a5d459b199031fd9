package media

import (
	"context"
	"errors"
	"fmt"
	"image"

	"cutroom/internal/services"
	"cutroom/internal/timeline"
)

var (
	// ErrUnsupported marks a source whose format cannot be decoded.
	ErrUnsupported = errors.New("unsupported media")
	// ErrCorrupt marks a source that was recognised but failed to decode.
	ErrCorrupt = errors.New("corrupt media")
)

// Provider opens drawable element sources.
type Provider interface {
	Open(ctx context.Context, el timeline.Element) (Handle, error)
}

// Handle is a seekable decoded source. Implementations need not be safe for
// concurrent use; callers serialise access per handle.
type Handle interface {
	// Frame returns the image at source time t in seconds.
	Frame(ctx context.Context, t float64) (image.Image, error)
	Close() error
}

// Error reports a failed decode or seek. It unwraps to both its cause
// (ErrUnsupported or ErrCorrupt) and services.ErrMediaLoad.
type Error struct {
	Source string
	Op     string
	Cause  error
	Err    error
}

func (e *Error) Error() string {
	msg := fmt.Sprintf("%s %s: %v", e.Op, e.Source, e.Cause)
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *Error) Unwrap() []error {
	errs := []error{services.ErrMediaLoad, e.Cause}
	if e.Err != nil {
		errs = append(errs, e.Err)
	}
	return errs
}

func unsupported(source, op string, err error) error {
	return &Error{Source: source, Op: op, Cause: ErrUnsupported, Err: err}
}

func corrupt(source, op string, err error) error {
	return &Error{Source: source, Op: op, Cause: ErrCorrupt, Err: err}
}
