package export

import (
	"log/slog"
	"sync"
	"sync/atomic"

	"cutroom/internal/logging"
)

// progressReporter clamps fractions to be non-decreasing and stops
// delivering once closed. Callbacks run one at a time.
type progressReporter struct {
	fn      ProgressFunc
	sampler *logging.ProgressSampler
	logger  *slog.Logger

	closed atomic.Bool
	mu     sync.Mutex
	last   float64
}

func newProgressReporter(fn ProgressFunc, logger *slog.Logger) *progressReporter {
	if logger == nil {
		logger = logging.NewNop()
	}
	return &progressReporter{fn: fn, sampler: logging.NewProgressSampler(0.05), logger: logger}
}

func (p *progressReporter) report(phase string, fraction float64, message string) {
	if p.closed.Load() {
		return
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed.Load() {
		return
	}
	fraction = min(max(fraction, p.last), 1)
	p.last = fraction
	if p.sampler.ShouldLog(fraction, phase) {
		p.logger.Info("export progress",
			logging.String(logging.FieldEventType, "progress"),
			logging.String(logging.FieldPhase, phase),
			logging.Float64("percent", fraction*100),
		)
	}
	if p.fn != nil {
		p.fn(fraction, message)
	}
}

// close is safe to call from inside a callback.
func (p *progressReporter) close() {
	p.closed.Store(true)
}
