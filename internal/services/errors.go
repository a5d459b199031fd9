package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

var (
	ErrValidation    = errors.New("validation error")
	ErrCompatibility = errors.New("compatibility error")
	ErrMediaLoad     = errors.New("media load error")
	ErrMemory        = errors.New("memory error")
	ErrEncoding      = errors.New("encoding error")
	ErrCancelled     = errors.New("export cancelled")
	ErrBusy          = errors.New("export already active")
)

// Kind is the stable machine-readable classification of an export failure.
type Kind string

const (
	KindValidation    Kind = "validation"
	KindCompatibility Kind = "compatibility"
	KindMediaLoad     Kind = "media_load"
	KindMemory        Kind = "memory"
	KindEncoding      Kind = "encoding"
	KindCancelled     Kind = "cancelled"
	KindBusy          Kind = "busy"
	KindInternal      Kind = "internal"
)

// Wrap builds an error message that includes stage context while tagging it with
// the provided marker for later classification. The marker should be one of the
// exported sentinel errors above.
func Wrap(marker error, stage, operation, message string, err error) error {
	detail := buildDetail(stage, operation, message)
	if marker == nil {
		marker = ErrEncoding
	}
	if err != nil {
		return fmt.Errorf("%w: %s: %w", marker, detail, err)
	}
	return fmt.Errorf("%w: %s", marker, detail)
}

// KindOf maps an error to its machine-readable kind. Context cancellation is
// reported as cancelled so callers never see a bare context error.
func KindOf(err error) Kind {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrCancelled), errors.Is(err, context.Canceled):
		return KindCancelled
	case errors.Is(err, ErrBusy):
		return KindBusy
	case errors.Is(err, ErrValidation):
		return KindValidation
	case errors.Is(err, ErrCompatibility):
		return KindCompatibility
	case errors.Is(err, ErrMemory):
		return KindMemory
	case errors.Is(err, ErrMediaLoad):
		return KindMediaLoad
	case errors.Is(err, ErrEncoding):
		return KindEncoding
	default:
		return KindInternal
	}
}

// Summary returns the user-facing explanation for a failure kind.
func Summary(err error) string {
	switch KindOf(err) {
	case "":
		return ""
	case KindValidation:
		return "The export settings or timeline are invalid. Check the duration and filename and try again."
	case KindCompatibility:
		return "This system is missing facilities required for export. Install the listed components and retry."
	case KindMediaLoad:
		return "A media file could not be decoded. Check the source files on the timeline."
	case KindMemory:
		return "Insufficient memory to complete the export. Try a lower quality or a shorter duration."
	case KindEncoding:
		return "The encoder failed while writing the output. Check the encoder installation and output location."
	case KindCancelled:
		return "The export was cancelled."
	case KindBusy:
		return "Another export is already running. Wait for it to finish or cancel it first."
	default:
		if msg := strings.TrimSpace(err.Error()); msg != "" {
			return msg
		}
		return "An unknown error occurred during export."
	}
}

// CompatibilityError lists the platform facilities that are missing.
type CompatibilityError struct {
	Issues []string
}

func (e *CompatibilityError) Error() string {
	if e == nil || len(e.Issues) == 0 {
		return ErrCompatibility.Error()
	}
	return fmt.Sprintf("%s: %s", ErrCompatibility.Error(), strings.Join(e.Issues, "; "))
}

func (e *CompatibilityError) Unwrap() error { return ErrCompatibility }

// ElementError records a failure attributable to a single timeline element.
// It is recovered locally: the element is skipped and the export continues.
type ElementError struct {
	ElementID string
	Kind      string
	Op        string
	Err       error
}

func (e *ElementError) Error() string {
	if e == nil {
		return ErrMediaLoad.Error()
	}
	parts := []string{ErrMediaLoad.Error()}
	if id := strings.TrimSpace(e.ElementID); id != "" {
		parts = append(parts, "element "+id)
	}
	if op := strings.TrimSpace(e.Op); op != "" {
		parts = append(parts, op)
	}
	msg := strings.Join(parts, ": ")
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *ElementError) Unwrap() []error {
	if e.Err == nil {
		return []error{ErrMediaLoad}
	}
	return []error{ErrMediaLoad, e.Err}
}

func buildDetail(stage, operation, message string) string {
	parts := make([]string, 0, 3)
	if stage = strings.TrimSpace(stage); stage != "" {
		parts = append(parts, stage)
	}
	if operation = strings.TrimSpace(operation); operation != "" {
		parts = append(parts, operation)
	}
	if message = strings.TrimSpace(message); message != "" {
		parts = append(parts, message)
	}
	if len(parts) == 0 {
		return "export failure"
	}
	return strings.Join(parts, ": ")
}
