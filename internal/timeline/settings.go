package timeline

import (
	"fmt"
	"math"
	"strings"

	"golang.org/x/text/unicode/norm"

	"cutroom/internal/services"
)

// Format is an output container.
type Format string

const (
	FormatMP4  Format = "mp4"
	FormatWebM Format = "webm"
	FormatMOV  Format = "mov"
	FormatAVI  Format = "avi"
)

// Formats lists every supported container.
var Formats = []Format{FormatMP4, FormatWebM, FormatMOV, FormatAVI}

// Valid reports whether f is a supported container.
func (f Format) Valid() bool {
	switch f {
	case FormatMP4, FormatWebM, FormatMOV, FormatAVI:
		return true
	default:
		return false
	}
}

// MimeType returns the media type of the encoded blob.
func (f Format) MimeType() string {
	switch f {
	case FormatMP4:
		return "video/mp4"
	case FormatWebM:
		return "video/webm"
	case FormatMOV:
		return "video/quicktime"
	case FormatAVI:
		return "video/x-msvideo"
	default:
		return "application/octet-stream"
	}
}

// Extension returns the file extension including the leading dot.
func (f Format) Extension() string {
	if !f.Valid() {
		return ""
	}
	return "." + string(f)
}

// Quality is an output size preset.
type Quality string

const (
	QualityLow    Quality = "low"
	QualityMedium Quality = "medium"
	QualityHigh   Quality = "high"
	QualityUltra  Quality = "ultra"
)

// Resolution returns the preset frame size.
func (q Quality) Resolution() (width, height int, ok bool) {
	switch q {
	case QualityLow:
		return 854, 480, true
	case QualityMedium:
		return 1280, 720, true
	case QualityHigh:
		return 1920, 1080, true
	case QualityUltra:
		return 3840, 2160, true
	default:
		return 0, 0, false
	}
}

// Valid reports whether q is a known preset.
func (q Quality) Valid() bool {
	_, _, ok := q.Resolution()
	return ok
}

// DefaultFPS is applied when settings omit a frame rate.
const DefaultFPS = 30

// Settings are the export parameters supplied at start.
type Settings struct {
	Width    int     `yaml:"width" json:"width"`
	Height   int     `yaml:"height" json:"height"`
	FPS      float64 `yaml:"fps" json:"fps"`
	Format   Format  `yaml:"format" json:"format"`
	Quality  Quality `yaml:"quality" json:"quality"`
	Filename string  `yaml:"filename" json:"filename"`
}

// WithDefaults fills zero-valued size from the quality preset, the frame
// rate with DefaultFPS, and normalizes the filename.
func (s Settings) WithDefaults() Settings {
	s.Format = Format(strings.ToLower(strings.TrimSpace(string(s.Format))))
	s.Quality = Quality(strings.ToLower(strings.TrimSpace(string(s.Quality))))
	if s.Format == "" {
		s.Format = FormatMP4
	}
	if s.Quality == "" {
		s.Quality = QualityHigh
	}
	if s.Width == 0 && s.Height == 0 {
		if w, h, ok := s.Quality.Resolution(); ok {
			s.Width, s.Height = w, h
		}
	}
	if s.FPS == 0 {
		s.FPS = DefaultFPS
	}
	s.Filename = NormalizeFilename(s.Filename)
	return s
}

const invalidFilenameChars = `<>:"/\|?*`

// NormalizeFilename trims whitespace and applies Unicode NFC so visually
// identical names compare equal.
func NormalizeFilename(name string) string {
	return norm.NFC.String(strings.TrimSpace(name))
}

// ValidFilename reports whether name is nonempty after trimming and free of
// path and reserved characters.
func ValidFilename(name string) bool {
	name = strings.TrimSpace(name)
	if name == "" || name == "." || name == ".." {
		return false
	}
	return !strings.ContainsAny(name, invalidFilenameChars)
}

// MaxDuration is the longest exportable timeline, in seconds. It keeps
// frame and sample counts well inside int range at any supported rate.
const MaxDuration = 24 * 60 * 60

// Validate checks the settings against the export duration. Every problem
// is reported in one ErrValidation error.
func (s Settings) Validate(duration float64) error {
	var issues []string
	if math.IsNaN(duration) || duration <= 0 {
		issues = append(issues, "timeline duration must be greater than zero")
	} else if duration > MaxDuration {
		issues = append(issues, fmt.Sprintf("timeline duration %gs exceeds the %ds limit", duration, int(MaxDuration)))
	}
	if s.Width <= 0 || s.Height <= 0 {
		issues = append(issues, fmt.Sprintf("invalid dimensions %dx%d", s.Width, s.Height))
	}
	if math.IsNaN(s.FPS) || math.IsInf(s.FPS, 0) || s.FPS <= 0 {
		issues = append(issues, "fps must be greater than zero")
	}
	if !s.Format.Valid() {
		issues = append(issues, fmt.Sprintf("unsupported format %q", s.Format))
	}
	if !s.Quality.Valid() {
		issues = append(issues, fmt.Sprintf("unsupported quality %q", s.Quality))
	}
	if strings.TrimSpace(s.Filename) == "" {
		issues = append(issues, "filename is required")
	} else if !ValidFilename(s.Filename) {
		issues = append(issues, fmt.Sprintf("filename %q contains invalid characters", s.Filename))
	}
	if len(issues) == 0 {
		return nil
	}
	return services.Wrap(services.ErrValidation, "initializing", "validate settings", strings.Join(issues, "; "), nil)
}
