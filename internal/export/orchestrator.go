package export

import (
	"context"
	"image/color"
	"log/slog"
	"runtime"
	"sync"

	"github.com/google/uuid"

	"cutroom/internal/logging"
	"cutroom/internal/media"
	"cutroom/internal/memory"
	"cutroom/internal/mixer"
	"cutroom/internal/preflight"
	"cutroom/internal/services"
	"cutroom/internal/sink"
	"cutroom/internal/timeline"
)

const (
	maxWorkers       = 8
	defaultMinWindow = 2
)

// Observer is told about every export that reaches a terminal state.
type Observer interface {
	ExportFinished(ctx context.Context, report Report)
}

// ObserverFunc adapts a function to Observer.
type ObserverFunc func(ctx context.Context, report Report)

func (f ObserverFunc) ExportFinished(ctx context.Context, report Report) { f(ctx, report) }

// Report is the terminal summary of one export.
type Report struct {
	ID       string
	State    State
	Err      error
	Result   *Result
	Metadata Metadata
}

// Dependencies are the collaborators of an orchestrator. Sinks is
// required. A nil Checker treats every format as supported and a nil
// Audio decoder exports silence.
type Dependencies struct {
	Media    media.Provider
	Audio    mixer.Decoder
	Sinks    sink.Factory
	Checker  preflight.Checker
	Observer Observer
	Logger   *slog.Logger
}

// Options tune rendering. Zero values select defaults.
type Options struct {
	// Workers is the render parallelism, min(GOMAXPROCS*2, 8) by default.
	Workers int
	// Window bounds frames in flight ahead of the next push, 2*Workers by
	// default.
	Window int
	// MinWindow is the window used under memory pressure.
	MinWindow  int
	SampleRate int
	Channels   int
	Background color.Color
	FontPath   string
	Budget     memory.Budget
	// Probe adds usage not covered by reservations, in bytes.
	Probe memory.Probe
}

func (o Options) withDefaults() Options {
	if o.Workers <= 0 {
		o.Workers = min(runtime.GOMAXPROCS(0)*2, maxWorkers)
	}
	if o.Window <= 0 {
		o.Window = o.Workers * 2
	}
	if o.MinWindow <= 0 {
		o.MinWindow = defaultMinWindow
	}
	o.MinWindow = min(o.MinWindow, o.Window)
	if o.SampleRate <= 0 {
		o.SampleRate = 48000
	}
	if o.Channels <= 0 {
		o.Channels = 2
	}
	if o.Background == nil {
		o.Background = color.Black
	}
	return o
}

// Orchestrator runs at most one export at a time. It is safe for
// concurrent use.
type Orchestrator struct {
	deps   Dependencies
	opts   Options
	logger *slog.Logger

	mu      sync.Mutex
	current *run
}

// New returns an idle orchestrator.
func New(deps Dependencies, opts Options) *Orchestrator {
	return &Orchestrator{
		deps:   deps,
		opts:   opts.withDefaults(),
		logger: logging.NewComponentLogger(deps.Logger, "export"),
	}
}

// Start begins an export and returns its job. It fails with ErrBusy while
// another export is active. Cancelling ctx cancels the export.
func (o *Orchestrator) Start(ctx context.Context, tl *timeline.Timeline, settings timeline.Settings, onProgress ProgressFunc) (*Job, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	o.mu.Lock()
	if o.current != nil {
		active := o.current.job.ID
		o.mu.Unlock()
		return nil, services.Wrap(services.ErrBusy, "idle", "start export", "export "+active+" is still running", nil)
	}
	id := uuid.NewString()
	ctx = services.WithExportID(ctx, id)
	runCtx, cancel := context.WithCancel(ctx)
	r := &run{
		o:        o,
		job:      newJob(id),
		ctx:      runCtx,
		cancel:   cancel,
		tl:       tl,
		settings: settings,
		logger:   logging.WithContext(ctx, o.logger),
		failures: newFailureSet(),
	}
	r.progress = newProgressReporter(onProgress, r.logger)
	o.current = r
	o.mu.Unlock()

	r.stopWatch = context.AfterFunc(ctx, func() { o.cancelRun(r) })
	r.transition(StateInitializing)
	go r.execute()
	return r.job, nil
}

// Export runs an export to completion.
func (o *Orchestrator) Export(ctx context.Context, tl *timeline.Timeline, settings timeline.Settings, onProgress ProgressFunc) (*Result, error) {
	job, err := o.Start(ctx, tl, settings, onProgress)
	if err != nil {
		return nil, err
	}
	<-job.Done()
	return job.result, job.err
}

// Cancel stops the active export. It is a no-op when idle or already
// cancelled. The job settles with ErrCancelled before Cancel returns and
// IsActive reports false; cleanup continues in the background.
func (o *Orchestrator) Cancel() {
	o.mu.Lock()
	r := o.current
	o.mu.Unlock()
	if r != nil {
		o.cancelRun(r)
	}
}

func (o *Orchestrator) cancelRun(r *run) {
	o.mu.Lock()
	if r.cancelRequested || r.finished {
		o.mu.Unlock()
		return
	}
	r.cancelRequested = true
	if o.current == r {
		o.current = nil
	}
	o.mu.Unlock()

	phase := r.job.State()
	r.progress.close()
	r.cancel()
	r.job.settle(StateCancelled, nil, cancelledError(phase))
	r.logger.Info("export cancelled",
		logging.String(logging.FieldEventType, "export_cancelled"),
		logging.String("from_state", phase.String()),
	)
}

// finish clears r as the active export. It reports whether a cancel
// request arrived first.
func (o *Orchestrator) finish(r *run) bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	r.finished = true
	if o.current == r {
		o.current = nil
	}
	return r.cancelRequested
}

// IsActive reports whether an export is in flight.
func (o *Orchestrator) IsActive() bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.current != nil
}

// State returns the phase of the active export, or StateIdle.
func (o *Orchestrator) State() State {
	o.mu.Lock()
	r := o.current
	o.mu.Unlock()
	if r == nil {
		return StateIdle
	}
	return r.job.State()
}

func cancelledError(phase State) error {
	return services.Wrap(services.ErrCancelled, phase.String(), "cancel", "export cancelled by caller", nil)
}
