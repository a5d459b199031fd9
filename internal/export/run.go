package export

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"runtime/debug"
	"sync"
	"time"

	"cutroom/internal/compositor"
	"cutroom/internal/logging"
	"cutroom/internal/memory"
	"cutroom/internal/mixer"
	"cutroom/internal/services"
	"cutroom/internal/sink"
	"cutroom/internal/timeline"
)

var newMixer = mixer.New

// run is one export. The orchestrator's mutex guards cancelRequested and
// finished; everything else belongs to the run goroutine.
type run struct {
	o         *Orchestrator
	job       *Job
	ctx       context.Context
	cancel    context.CancelFunc
	stopWatch func() bool
	logger    *slog.Logger
	progress  *progressReporter
	failures  *failureSet

	cancelRequested bool
	finished        bool

	tl       *timeline.Timeline
	settings timeline.Settings
	duration float64
	total    int
	window   int
	started  time.Time

	tracker    *memory.Tracker
	mix        *mixer.Mixer
	mixBytes   uint64
	sink       sink.Sink
	comp       *compositor.Compositor
	pool       *compositor.BufferPool
	stopLoop   func()
	pushed     int
	audio      int
	warningsMu sync.Mutex
	warnings   []string

	cleanupOnce sync.Once
}

func (r *run) execute() {
	r.started = time.Now()
	defer r.stopWatch()

	res, err := r.pipeline()
	interrupted := r.ctx.Err() != nil
	r.cleanup()

	cancelled := r.o.finish(r) || interrupted
	r.cancel()
	state := StateCompleted
	switch {
	case cancelled:
		state = StateCancelled
		discard(res, r.logger)
		res = nil
		err = cancelledError(r.job.State())
	case err != nil:
		state = StateFailed
		res = nil
	default:
		r.progress.report(StateFinalizing.String(), 1, "export complete")
	}
	meta := r.metadata()
	if res != nil {
		res.Metadata = meta
	}
	r.job.settle(state, res, err)
	r.logOutcome(state, err, meta)

	if obs := r.o.deps.Observer; obs != nil {
		obs.ExportFinished(context.WithoutCancel(r.ctx), Report{
			ID:       r.job.ID,
			State:    state,
			Err:      err,
			Result:   res,
			Metadata: meta,
		})
	}
}

// pipeline runs the export phases. A panic in any phase fails the run with
// an internal error so cleanup and settlement still happen.
func (r *run) pipeline() (res *Result, err error) {
	defer func() {
		if p := recover(); p != nil {
			res, err = nil, panicError(r.job.State(), p)
			logging.ErrorWithContext(r.logger, "export panicked", "export_panic",
				logging.Any("panic", p),
				logging.String("stack", string(debug.Stack())),
				logging.String(logging.FieldErrorHint, "report this failure with the log file attached"),
			)
		}
	}()
	res, err = r.initialize()
	if err == nil {
		err = r.render()
	}
	if err == nil {
		res, err = r.finalize()
	}
	return res, err
}

func panicError(state State, p any) error {
	return fmt.Errorf("%s: internal error: %v", state, p)
}

func (r *run) transition(s State) {
	prev := r.job.State()
	r.job.setState(s)
	if r.job.State() != s {
		return
	}
	r.logger.Info("export state changed",
		logging.String(logging.FieldEventType, "state_transition"),
		logging.String("from", prev.String()),
		logging.String("to", s.String()),
	)
}

// checkpoint reports cancellation observed at a suspension point.
func (r *run) checkpoint() error {
	if r.ctx.Err() != nil {
		return cancelledError(r.job.State())
	}
	return nil
}

func (r *run) warn(msg string) {
	r.warningsMu.Lock()
	r.warnings = append(r.warnings, msg)
	r.warningsMu.Unlock()
}

func (r *run) initialize() (*Result, error) {
	if r.tl == nil {
		return nil, services.Wrap(services.ErrValidation, "initializing", "validate timeline", "timeline is required", nil)
	}
	if err := r.tl.Validate(); err != nil {
		return nil, err
	}
	r.duration = r.tl.Duration()
	r.settings = r.settings.WithDefaults()
	if err := r.settings.Validate(r.duration); err != nil {
		return nil, err
	}
	r.total = timeline.TotalFrames(r.duration, r.settings.FPS)

	if checker := r.o.deps.Checker; checker != nil {
		compat := checker.CheckCapabilities(r.ctx, r.settings.Format)
		if err := r.checkpoint(); err != nil {
			return nil, err
		}
		if !compat.Supported {
			return nil, services.Wrap(services.ErrCompatibility, "initializing", "check capabilities", string(r.settings.Format), compat.Err())
		}
	}
	if r.o.deps.Sinks == nil {
		return nil, &services.CompatibilityError{Issues: []string{"no encoding sink configured"}}
	}

	if err := r.checkMemoryEstimate(); err != nil {
		return nil, err
	}
	if err := r.checkpoint(); err != nil {
		return nil, err
	}

	mixed, err := r.mixAudio()
	if err != nil {
		return nil, err
	}
	if err := r.checkpoint(); err != nil {
		return nil, err
	}

	if err := r.startSink(mixed); err != nil {
		return nil, err
	}
	if err := r.checkpoint(); err != nil {
		return nil, err
	}

	opts := r.o.opts
	comp, err := compositor.New(r.tl, compositor.Options{
		Width:      r.settings.Width,
		Height:     r.settings.Height,
		Background: opts.Background,
		Provider:   r.o.deps.Media,
		FontPath:   opts.FontPath,
		Logger:     r.logger,
	})
	if err != nil {
		return nil, services.Wrap(services.ErrValidation, "initializing", "create compositor", "", err)
	}
	r.comp = comp
	r.pool = compositor.NewBufferPool(r.settings.Width, r.settings.Height, r.window, r.tracker)
	return nil, nil
}

// checkMemoryEstimate sizes the render window against the budget. Over the
// warning threshold the export proceeds with the minimum window.
func (r *run) checkMemoryEstimate() error {
	opts := r.o.opts
	r.tracker = memory.NewTracker(opts.Budget, opts.Probe)
	budget := r.tracker.Budget()
	r.window = opts.Window

	external := r.tracker.Usage()
	estimate := memory.Estimate(r.settings, r.window, r.duration, opts.SampleRate, opts.Channels)
	switch budget.Classify(estimate + external) {
	case memory.LevelCritical:
		return services.Wrap(services.ErrMemory, "initializing", "estimate memory",
			fmt.Sprintf("estimated %d bytes exceeds critical threshold %d", estimate+external, budget.CriticalBytes()), nil)
	case memory.LevelWarning:
		r.window = opts.MinWindow
		reduced := memory.Estimate(r.settings, r.window, r.duration, opts.SampleRate, opts.Channels)
		if budget.Classify(reduced+external) == memory.LevelCritical {
			return services.Wrap(services.ErrMemory, "initializing", "estimate memory",
				fmt.Sprintf("estimated %d bytes exceeds critical threshold %d", reduced+external, budget.CriticalBytes()), nil)
		}
		msg := fmt.Sprintf("estimated memory %d bytes is above the warning threshold; rendering with a window of %d frames", estimate+external, r.window)
		r.warn(msg)
		logging.WarnWithContext(r.logger, "memory estimate near budget", "memory_pressure",
			logging.Uint64("estimate_bytes", estimate+external),
			logging.Uint64("warning_bytes", budget.WarningBytes()),
			logging.Int("window", r.window),
			logging.String(logging.FieldErrorHint, "lower the export quality or raise memory.budget_mb"),
			logging.String(logging.FieldImpact, "fewer frames render in parallel"),
		)
	}
	return nil
}

func (r *run) mixAudio() (*mixer.Buffer, error) {
	opts := r.o.opts
	r.mix = newMixer(mixer.Options{SampleRate: opts.SampleRate, Channels: opts.Channels, Logger: r.logger})
	if dec := r.o.deps.Audio; dec != nil {
		if err := r.mix.Load(r.ctx, r.tl, r.duration, dec); err != nil {
			return nil, err
		}
		r.failures.add(r.mix.Failures()...)
	}
	r.audio = r.mix.TrackCount()
	mixed, err := r.mix.MixTracks(r.duration, opts.SampleRate)
	if err != nil {
		return nil, services.Wrap(services.ErrEncoding, "initializing", "mix audio", "", err)
	}
	r.mixBytes = mixed.Bytes()
	r.tracker.Reserve(r.mixBytes)
	r.logger.Debug("audio mixed",
		logging.Int("tracks", r.audio),
		logging.Uint64("bytes", r.mixBytes),
	)
	return mixed, nil
}

func (r *run) startSink(mixed *mixer.Buffer) error {
	spec := sink.SpecFromSettings(r.settings)
	s, err := r.o.deps.Sinks.New(spec)
	if err != nil {
		if errors.Is(err, services.ErrCompatibility) {
			return err
		}
		return services.Wrap(services.ErrEncoding, "initializing", "create sink", string(spec.Format), err)
	}
	r.sink = sink.Guard(s)
	if err := r.sink.Start(r.ctx, spec); err != nil {
		return services.Wrap(services.ErrEncoding, "initializing", "start sink", "", err)
	}
	if err := r.sink.SetAudio(r.ctx, mixed); err != nil {
		return services.Wrap(services.ErrEncoding, "initializing", "set audio", "", err)
	}
	return nil
}

func (r *run) finalize() (*Result, error) {
	r.transition(StateFinalizing)
	if err := r.checkpoint(); err != nil {
		return nil, err
	}
	out, err := r.sink.Stop(r.ctx)
	if err != nil {
		return nil, services.Wrap(services.ErrEncoding, "finalizing", "stop sink", "", err)
	}
	return &Result{Blob: out.Blob, MimeType: out.MimeType, Extras: out.Extras}, nil
}

// cleanup releases run resources once, in a fixed order. Failures are
// logged and never replace the primary outcome.
func (r *run) cleanup() {
	r.cleanupOnce.Do(func() {
		if r.stopLoop != nil {
			r.stopLoop()
		}
		if r.sink != nil {
			if err := r.sink.Cleanup(); err != nil {
				r.cleanupFailed("sink", err)
			}
		}
		if r.mix != nil {
			r.mix.Dispose()
		}
		if r.tracker != nil && r.mixBytes > 0 {
			r.tracker.Release(r.mixBytes)
		}
		if r.pool != nil {
			r.pool.Release()
		}
		if r.comp != nil {
			if err := r.comp.Close(); err != nil {
				r.cleanupFailed("compositor", err)
			}
		}
	})
}

func (r *run) cleanupFailed(resource string, err error) {
	logging.WarnWithContext(r.logger, "export cleanup failed", "cleanup_failed",
		logging.String("resource", resource),
		logging.Error(err),
		logging.String(logging.FieldErrorHint, "remove leftover files under paths.work_dir"),
		logging.String(logging.FieldImpact, "temporary files may remain on disk"),
	)
}

func (r *run) metadata() Metadata {
	r.warningsMu.Lock()
	warnings := append([]string(nil), r.warnings...)
	r.warningsMu.Unlock()
	var peak uint64
	if r.tracker != nil {
		peak = r.tracker.Peak()
	}
	return Metadata{
		ExportID:       r.job.ID,
		Settings:       r.settings,
		Duration:       r.duration,
		TotalFrames:    r.total,
		FramesPushed:   r.pushed,
		AudioTracks:    r.audio,
		Workers:        r.o.opts.Workers,
		FailedElements: r.failures.snapshot(),
		Warnings:       warnings,
		PeakMemory:     peak,
		StartedAt:      r.started,
		Elapsed:        time.Since(r.started),
	}
}

func (r *run) logOutcome(state State, err error, meta Metadata) {
	attrs := []logging.Attr{
		logging.String(logging.FieldEventType, "export_finished"),
		logging.String("state", state.String()),
		logging.Int("frames_pushed", meta.FramesPushed),
		logging.Int("total_frames", meta.TotalFrames),
		logging.Int("failed_elements", len(meta.FailedElements)),
		logging.Duration("elapsed", meta.Elapsed),
	}
	switch state {
	case StateFailed:
		attrs = append(attrs,
			logging.String("error_kind", string(services.KindOf(err))),
			logging.Error(err),
			logging.String(logging.FieldErrorHint, services.Summary(err)),
		)
		logging.ErrorWithContext(r.logger, "export failed", "export_failed", attrs...)
	default:
		r.logger.Info("export finished", logging.Args(attrs...)...)
	}
}

// discard removes the files of a result nobody will receive.
func discard(res *Result, logger *slog.Logger) {
	if res == nil {
		return
	}
	var paths []string
	if fb, ok := res.Blob.(*sink.FileBlob); ok {
		paths = append(paths, fb.Path())
	}
	for _, p := range res.Extras {
		paths = append(paths, p)
	}
	for _, p := range paths {
		if err := os.Remove(p); err != nil && !errors.Is(err, os.ErrNotExist) {
			logger.Debug("discard result file failed", logging.String("path", p), logging.Error(err))
		}
	}
}
