package memory

import (
	"context"
	"fmt"
	"math"

	"github.com/shirou/gopsutil/v4/mem"

	"cutroom/internal/timeline"
)

const (
	// DefaultWarningRatio is the usage fraction that triggers frame eviction.
	DefaultWarningRatio = 0.85
	// DefaultCriticalRatio is the usage fraction that aborts an export.
	DefaultCriticalRatio = 0.95

	maxDerivedLimit      = 8 << 30
	fallbackDerivedLimit = 2 << 30
	bytesPerPixel        = 4
	bytesPerSample       = 4
)

// Level classifies usage against a budget.
type Level int

const (
	LevelOK Level = iota
	LevelWarning
	LevelCritical
)

func (l Level) String() string {
	switch l {
	case LevelOK:
		return "ok"
	case LevelWarning:
		return "warning"
	case LevelCritical:
		return "critical"
	default:
		return fmt.Sprintf("level(%d)", int(l))
	}
}

// Budget is the memory ceiling for one export.
type Budget struct {
	Limit         uint64
	WarningRatio  float64
	CriticalRatio float64
}

// WithDefaults fills unset ratios.
func (b Budget) WithDefaults() Budget {
	if b.WarningRatio <= 0 || b.WarningRatio >= 1 {
		b.WarningRatio = DefaultWarningRatio
	}
	if b.CriticalRatio <= b.WarningRatio || b.CriticalRatio > 1 {
		b.CriticalRatio = max(DefaultCriticalRatio, b.WarningRatio)
	}
	return b
}

// WarningBytes is the absolute warning threshold.
func (b Budget) WarningBytes() uint64 {
	return uint64(float64(b.Limit) * b.WarningRatio)
}

// CriticalBytes is the absolute critical threshold.
func (b Budget) CriticalBytes() uint64 {
	return uint64(float64(b.Limit) * b.CriticalRatio)
}

// Classify maps a usage figure to a level. A zero limit is unbounded.
func (b Budget) Classify(usage uint64) Level {
	if b.Limit == 0 {
		return LevelOK
	}
	switch {
	case usage >= b.CriticalBytes():
		return LevelCritical
	case usage >= b.WarningBytes():
		return LevelWarning
	default:
		return LevelOK
	}
}

// DefaultBudget derives a limit from half the host's available memory,
// capped at 8 GiB. When the host cannot be probed a 2 GiB limit is used.
func DefaultBudget(ctx context.Context) Budget {
	b := Budget{Limit: fallbackDerivedLimit}.WithDefaults()
	stats, err := mem.VirtualMemoryWithContext(ctx)
	if err != nil || stats == nil || stats.Available == 0 {
		return b
	}
	b.Limit = min(stats.Available/2, maxDerivedLimit)
	return b
}

// FrameBytes is the size of one RGBA frame buffer.
func FrameBytes(width, height int) uint64 {
	if width <= 0 || height <= 0 {
		return 0
	}
	return uint64(width) * uint64(height) * bytesPerPixel
}

// AudioBytes is the size of a float32 PCM buffer covering duration.
func AudioBytes(duration float64, sampleRate, channels int) uint64 {
	if duration <= 0 || sampleRate <= 0 || channels <= 0 {
		return 0
	}
	bytes := math.Ceil(duration*float64(sampleRate)) * float64(channels) * bytesPerSample
	if math.IsNaN(bytes) || bytes >= math.MaxUint64 {
		return math.MaxUint64
	}
	return uint64(bytes)
}

// Estimate predicts the peak footprint of an export: the pooled frame
// buffers for the render window plus the mixed audio.
func Estimate(s timeline.Settings, window int, duration float64, sampleRate, channels int) uint64 {
	if window < 1 {
		window = 1
	}
	frames := FrameBytes(s.Width, s.Height)
	if frames > 0 && uint64(window) > math.MaxUint64/frames {
		return math.MaxUint64
	}
	total := frames * uint64(window)
	audio := AudioBytes(duration, sampleRate, channels)
	if audio > math.MaxUint64-total {
		return math.MaxUint64
	}
	return total + audio
}
