package export

import (
	"context"
	"errors"
	"fmt"
	"image"
	"image/color"
	"image/draw"
	"slices"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"cutroom/internal/media"
	"cutroom/internal/memory"
	"cutroom/internal/mixer"
	"cutroom/internal/preflight"
	"cutroom/internal/services"
	"cutroom/internal/sink"
	"cutroom/internal/timeline"
)

type recordingSink struct {
	spec      sink.Spec
	startGate chan struct{}
	onPush    func(index int)
	failPush  func(index int) error

	stopEntered chan struct{}
	stopGate    chan struct{}
	stopErr     error

	mu       sync.Mutex
	starts   int
	audio    []*mixer.Buffer
	indices  []int
	stops    int
	cleanups int
}

func (s *recordingSink) Start(context.Context, sink.Spec) error {
	if s.startGate != nil {
		<-s.startGate
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.starts++
	return nil
}

func (s *recordingSink) SetAudio(_ context.Context, buf *mixer.Buffer) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.audio = append(s.audio, buf)
	return nil
}

func (s *recordingSink) PushFrame(_ context.Context, _ *image.RGBA, index int) error {
	if s.failPush != nil {
		if err := s.failPush(index); err != nil {
			return err
		}
	}
	s.mu.Lock()
	s.indices = append(s.indices, index)
	s.mu.Unlock()
	if s.onPush != nil {
		s.onPush(index)
	}
	return nil
}

func (s *recordingSink) Stop(context.Context) (sink.Output, error) {
	if s.stopEntered != nil {
		close(s.stopEntered)
	}
	if s.stopGate != nil {
		<-s.stopGate
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stops++
	if s.stopErr != nil {
		return sink.Output{}, s.stopErr
	}
	return sink.Output{Blob: sink.NewMemoryBlob([]byte("encoded")), MimeType: s.spec.Format.MimeType()}, nil
}

func (s *recordingSink) Cleanup() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cleanups++
	return nil
}

func (s *recordingSink) snapshot() (indices []int, stops, cleanups int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return slices.Clone(s.indices), s.stops, s.cleanups
}

type sinkRecorder struct {
	configure func(*recordingSink)

	mu    sync.Mutex
	sinks []*recordingSink
}

func (f *sinkRecorder) New(spec sink.Spec) (sink.Sink, error) {
	s := &recordingSink{spec: spec}
	if f.configure != nil {
		f.configure(s)
	}
	f.mu.Lock()
	f.sinks = append(f.sinks, s)
	f.mu.Unlock()
	return s, nil
}

func (f *sinkRecorder) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.sinks)
}

func (f *sinkRecorder) get(i int) *recordingSink {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.sinks[i]
}

type solidHandle struct{ img image.Image }

func (h solidHandle) Frame(context.Context, float64) (image.Image, error) { return h.img, nil }

func (solidHandle) Close() error { return nil }

type fakeProvider struct {
	failing map[string]bool
}

func (p fakeProvider) Open(_ context.Context, el timeline.Element) (media.Handle, error) {
	if p.failing[el.ID] {
		return nil, fmt.Errorf("%w: truncated stream", media.ErrCorrupt)
	}
	img := image.NewRGBA(image.Rect(0, 0, 4, 4))
	draw.Draw(img, img.Bounds(), image.NewUniform(color.RGBA{G: 200, A: 255}), image.Point{}, draw.Src)
	return solidHandle{img: img}, nil
}

type toneDecoder struct{}

func (toneDecoder) Decode(_ context.Context, source string, rate int) (*mixer.Buffer, error) {
	if source != "tone.wav" {
		return nil, mixer.ErrNoAudio
	}
	buf := mixer.NewBuffer(rate, 2, rate*10)
	for _, data := range buf.Channels {
		for i := range data {
			data[i] = 0.25
		}
	}
	return buf, nil
}

// blockingDecoder holds Decode until release closes, ignoring ctx.
type blockingDecoder struct {
	entered chan struct{}
	release chan struct{}
}

func (d blockingDecoder) Decode(context.Context, string, int) (*mixer.Buffer, error) {
	close(d.entered)
	<-d.release
	return nil, errors.New("decode interrupted")
}

type panickingProvider struct{}

func (panickingProvider) Open(context.Context, timeline.Element) (media.Handle, error) {
	panic("decoder state corrupted")
}

type progressLog struct {
	mu     sync.Mutex
	values []float64
}

func (p *progressLog) record(f float64, _ string) {
	p.mu.Lock()
	p.values = append(p.values, f)
	p.mu.Unlock()
}

func (p *progressLog) snapshot() []float64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return slices.Clone(p.values)
}

func videoTimeline(extra ...timeline.Element) *timeline.Timeline {
	clip := timeline.NewElement("clip", timeline.KindVideo, 0, 10)
	clip.Source = "clip.mp4"
	tl := &timeline.Timeline{Tracks: []timeline.Track{
		{ID: "main", Elements: []timeline.Element{clip}},
	}}
	if len(extra) > 0 {
		tl.Tracks = append(tl.Tracks, timeline.Track{ID: "overlay", Elements: extra})
	}
	return tl
}

func testSettings() timeline.Settings {
	return timeline.Settings{Width: 16, Height: 9, FPS: 30, Format: timeline.FormatMP4, Quality: timeline.QualityHigh, Filename: "out"}
}

func newTestOrchestrator(rec *sinkRecorder, mutate func(*Dependencies, *Options)) *Orchestrator {
	deps := Dependencies{Media: fakeProvider{}, Sinks: rec}
	opts := Options{Workers: 4, Window: 8}
	if mutate != nil {
		mutate(&deps, &opts)
	}
	return New(deps, opts)
}

func assertStrictlyIncreasing(t *testing.T, indices []int) {
	t.Helper()
	for i, idx := range indices {
		require.Equal(t, i, idx, "frame %d pushed out of order", i)
	}
}

func TestExportPushesEveryFrameInOrder(t *testing.T) {
	rec := &sinkRecorder{}
	o := newTestOrchestrator(rec, nil)
	progress := &progressLog{}

	res, err := o.Export(context.Background(), videoTimeline(), testSettings(), progress.record)
	require.NoError(t, err)
	require.NotNil(t, res)

	indices, stops, cleanups := rec.get(0).snapshot()
	assert.Len(t, indices, 300)
	assertStrictlyIncreasing(t, indices)
	assert.Equal(t, 1, stops)
	assert.Equal(t, 1, cleanups)

	assert.Equal(t, "video/mp4", res.MimeType)
	assert.Equal(t, int64(len("encoded")), res.Blob.Size())
	assert.Equal(t, 300, res.Metadata.TotalFrames)
	assert.Equal(t, 300, res.Metadata.FramesPushed)
	assert.Empty(t, res.Metadata.FailedElements)

	values := progress.snapshot()
	require.NotEmpty(t, values)
	assert.True(t, slices.IsSorted(values), "progress must be non-decreasing")
	assert.InDelta(t, 1.0/300, values[0], 1e-9)
	assert.Equal(t, 1.0, values[len(values)-1])

	assert.False(t, o.IsActive())
	assert.Equal(t, StateIdle, o.State())
}

func TestExportCorruptElementStillCompletes(t *testing.T) {
	rec := &sinkRecorder{}
	o := newTestOrchestrator(rec, func(d *Dependencies, _ *Options) {
		d.Media = fakeProvider{failing: map[string]bool{"bad": true}}
	})
	bad := timeline.NewElement("bad", timeline.KindImage, 3, 3)
	bad.Source = "broken.png"

	job, err := o.Start(context.Background(), videoTimeline(bad), testSettings(), nil)
	require.NoError(t, err)
	res, err := job.Wait(context.Background())
	require.NoError(t, err)
	assert.Equal(t, StateCompleted, job.State())

	indices, _, _ := rec.get(0).snapshot()
	assert.Len(t, indices, 300)
	require.Len(t, res.Metadata.FailedElements, 1)
	failed := res.Metadata.FailedElements[0]
	assert.Equal(t, "bad", failed.ElementID)
	assert.Equal(t, string(timeline.KindImage), failed.Kind)
	assert.Equal(t, 90, failed.Failures)
	assert.Contains(t, failed.FirstError, "truncated stream")
}

func TestExportRejectsZeroDuration(t *testing.T) {
	rec := &sinkRecorder{}
	o := newTestOrchestrator(rec, nil)

	_, err := o.Export(context.Background(), &timeline.Timeline{}, testSettings(), nil)
	require.ErrorIs(t, err, services.ErrValidation)
	assert.Equal(t, services.KindValidation, services.KindOf(err))
	assert.Zero(t, rec.count(), "no sink may be created for an invalid export")
}

func TestExportRejectsInvalidFilename(t *testing.T) {
	rec := &sinkRecorder{}
	o := newTestOrchestrator(rec, nil)
	settings := testSettings()
	settings.Filename = "  "

	_, err := o.Export(context.Background(), videoTimeline(), settings, nil)
	require.ErrorIs(t, err, services.ErrValidation)
}

func TestExportCompatibilityFailure(t *testing.T) {
	rec := &sinkRecorder{}
	o := newTestOrchestrator(rec, func(d *Dependencies, _ *Options) {
		d.Checker = preflight.CheckerFunc(func(context.Context, timeline.Format) preflight.Compatibility {
			return preflight.Compatibility{Issues: []string{"encoder libx264 not available"}}
		})
	})

	_, err := o.Export(context.Background(), videoTimeline(), testSettings(), nil)
	var compat *services.CompatibilityError
	require.ErrorAs(t, err, &compat)
	assert.Equal(t, []string{"encoder libx264 not available"}, compat.Issues)
	assert.Equal(t, services.KindCompatibility, services.KindOf(err))
	assert.Zero(t, rec.count())
}

func TestStartWhileActiveIsBusy(t *testing.T) {
	gate := make(chan struct{})
	rec := &sinkRecorder{configure: func(s *recordingSink) { s.startGate = gate }}
	o := newTestOrchestrator(rec, nil)

	job, err := o.Start(context.Background(), videoTimeline(), testSettings(), nil)
	require.NoError(t, err)

	second, err := o.Start(context.Background(), videoTimeline(), testSettings(), nil)
	assert.Nil(t, second)
	require.ErrorIs(t, err, services.ErrBusy)
	assert.True(t, o.IsActive())
	assert.Equal(t, StateInitializing, o.State())

	close(gate)
	_, err = job.Wait(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, rec.count())
}

func TestCancelSettlesImmediately(t *testing.T) {
	gate := make(chan struct{})
	rec := &sinkRecorder{configure: func(s *recordingSink) { s.startGate = gate }}
	o := newTestOrchestrator(rec, nil)

	job, err := o.Start(context.Background(), videoTimeline(), testSettings(), nil)
	require.NoError(t, err)
	require.Eventually(t, func() bool { return rec.count() == 1 }, time.Second, time.Millisecond)

	o.Cancel()
	select {
	case <-job.Done():
	default:
		t.Fatal("job must settle before Cancel returns")
	}
	_, err = job.Wait(context.Background())
	require.ErrorIs(t, err, services.ErrCancelled)
	assert.Equal(t, StateCancelled, job.State())
	assert.False(t, o.IsActive())
	assert.Equal(t, StateIdle, o.State())

	o.Cancel()
	assert.ErrorIs(t, job.Err(), services.ErrCancelled)

	close(gate)
	s := rec.get(0)
	require.Eventually(t, func() bool {
		_, _, cleanups := s.snapshot()
		return cleanups == 1
	}, time.Second, time.Millisecond)
	indices, stops, _ := s.snapshot()
	assert.Empty(t, indices)
	assert.Zero(t, stops)
}

func TestCancelWhenIdleIsNoop(t *testing.T) {
	o := newTestOrchestrator(&sinkRecorder{}, nil)
	o.Cancel()
	o.Cancel()
	assert.False(t, o.IsActive())
	assert.Equal(t, StateIdle, o.State())
}

func TestCancelDuringRenderingStopsProgress(t *testing.T) {
	var o *Orchestrator
	progress := &progressLog{}
	var atCancel atomic.Int64
	rec := &sinkRecorder{configure: func(s *recordingSink) {
		s.onPush = func(index int) {
			if index == 49 {
				o.Cancel()
				atCancel.Store(int64(len(progress.snapshot())))
			}
		}
	}}
	o = newTestOrchestrator(rec, nil)

	report := make(chan Report, 1)
	o.deps.Observer = ObserverFunc(func(_ context.Context, r Report) { report <- r })

	_, err := o.Export(context.Background(), videoTimeline(), testSettings(), progress.record)
	require.ErrorIs(t, err, services.ErrCancelled)

	final := <-report
	assert.Equal(t, StateCancelled, final.State)
	assert.Nil(t, final.Result)
	assert.Equal(t, 50, final.Metadata.FramesPushed)

	indices, stops, cleanups := rec.get(0).snapshot()
	assert.Len(t, indices, 50)
	assert.Zero(t, stops)
	assert.Equal(t, 1, cleanups)
	assert.Len(t, progress.snapshot(), int(atCancel.Load()), "no progress after cancel")
}

func TestCancelFromProgressCallback(t *testing.T) {
	var o *Orchestrator
	rec := &sinkRecorder{}
	o = newTestOrchestrator(rec, nil)

	_, err := o.Export(context.Background(), videoTimeline(), testSettings(), func(f float64, _ string) {
		if f >= 0.5 {
			o.Cancel()
		}
	})
	require.ErrorIs(t, err, services.ErrCancelled)
	assert.False(t, o.IsActive())
}

func TestParentContextCancelsExport(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	rec := &sinkRecorder{configure: func(s *recordingSink) {
		s.onPush = func(index int) {
			if index == 10 {
				cancel()
			}
		}
	}}
	o := newTestOrchestrator(rec, nil)

	_, err := o.Export(ctx, videoTimeline(), testSettings(), nil)
	require.ErrorIs(t, err, services.ErrCancelled)
	assert.Equal(t, services.KindCancelled, services.KindOf(err))
}

func TestMemoryCriticalDuringRendering(t *testing.T) {
	var pushed atomic.Int64
	var mixers []*mixer.Mixer
	restore := newMixer
	newMixer = func(opts mixer.Options) *mixer.Mixer {
		m := mixer.New(opts)
		mixers = append(mixers, m)
		return m
	}
	t.Cleanup(func() { newMixer = restore })

	const limit = 1 << 30
	rec := &sinkRecorder{configure: func(s *recordingSink) {
		s.onPush = func(int) { pushed.Add(1) }
	}}
	o := newTestOrchestrator(rec, func(_ *Dependencies, opts *Options) {
		opts.Budget = memory.Budget{Limit: limit}
		opts.Probe = func() uint64 {
			if pushed.Load() >= 100 {
				return limit
			}
			return 0
		}
	})

	_, err := o.Export(context.Background(), videoTimeline(), testSettings(), nil)
	require.ErrorIs(t, err, services.ErrMemory)
	assert.Equal(t, services.KindMemory, services.KindOf(err))

	indices, stops, cleanups := rec.get(0).snapshot()
	assert.Len(t, indices, 100)
	assert.Zero(t, stops)
	assert.Equal(t, 1, cleanups)
	require.Len(t, mixers, 1)
	assert.True(t, mixers[0].Disposed())
	assert.False(t, o.IsActive())
}

func TestMemoryWarningShrinksWindow(t *testing.T) {
	var pushed atomic.Int64
	const limit = 1 << 30
	rec := &sinkRecorder{configure: func(s *recordingSink) {
		s.onPush = func(int) { pushed.Add(1) }
	}}
	o := newTestOrchestrator(rec, func(_ *Dependencies, opts *Options) {
		opts.Budget = memory.Budget{Limit: limit}
		opts.Probe = func() uint64 {
			if pushed.Load() >= 20 {
				return limit * 9 / 10
			}
			return 0
		}
	})

	res, err := o.Export(context.Background(), videoTimeline(), testSettings(), nil)
	require.NoError(t, err)

	indices, _, _ := rec.get(0).snapshot()
	assert.Len(t, indices, 300)
	assertStrictlyIncreasing(t, indices)
	require.Len(t, res.Metadata.Warnings, 1)
	assert.Contains(t, res.Metadata.Warnings[0], "window reduced to 2 frames")
}

func TestMemoryEstimateOverBudgetFailsBeforeRendering(t *testing.T) {
	rec := &sinkRecorder{}
	o := newTestOrchestrator(rec, func(_ *Dependencies, opts *Options) {
		opts.Budget = memory.Budget{Limit: 1024}
	})

	_, err := o.Export(context.Background(), videoTimeline(), testSettings(), nil)
	require.ErrorIs(t, err, services.ErrMemory)
	assert.Zero(t, rec.count())
}

func TestAudioIsMixedOnceBeforeFrames(t *testing.T) {
	rec := &sinkRecorder{}
	o := newTestOrchestrator(rec, func(d *Dependencies, _ *Options) {
		d.Audio = toneDecoder{}
	})
	music := timeline.NewElement("music", timeline.KindAudio, 0, 10)
	music.Source = "tone.wav"
	tl := videoTimeline()
	tl.Tracks = append(tl.Tracks, timeline.Track{ID: "audio", Elements: []timeline.Element{music}})

	res, err := o.Export(context.Background(), tl, testSettings(), nil)
	require.NoError(t, err)
	assert.Equal(t, 1, res.Metadata.AudioTracks)

	s := rec.get(0)
	s.mu.Lock()
	defer s.mu.Unlock()
	require.Len(t, s.audio, 1)
	assert.Equal(t, 48000*10, s.audio[0].Len())
	assert.InDelta(t, 0.25, s.audio[0].Channels[0][1000], 1e-6)
	assert.InDelta(t, 0.25, s.audio[0].Channels[1][1000], 1e-6)
}

func TestSinkPushFailureFailsExport(t *testing.T) {
	rec := &sinkRecorder{configure: func(s *recordingSink) {
		s.failPush = func(index int) error {
			if index == 5 {
				return errors.New("disk full")
			}
			return nil
		}
	}}
	o := newTestOrchestrator(rec, nil)
	report := make(chan Report, 1)
	o.deps.Observer = ObserverFunc(func(_ context.Context, r Report) { report <- r })

	_, err := o.Export(context.Background(), videoTimeline(), testSettings(), nil)
	require.ErrorIs(t, err, services.ErrEncoding)
	assert.Contains(t, err.Error(), "disk full")

	final := <-report
	assert.Equal(t, StateFailed, final.State)
	assert.Equal(t, 5, final.Metadata.FramesPushed)
	_, stops, cleanups := rec.get(0).snapshot()
	assert.Zero(t, stops)
	assert.Equal(t, 1, cleanups)
}

func TestOrchestratorIsReusableAfterTerminalStates(t *testing.T) {
	rec := &sinkRecorder{}
	o := newTestOrchestrator(rec, nil)

	_, err := o.Export(context.Background(), &timeline.Timeline{}, testSettings(), nil)
	require.ErrorIs(t, err, services.ErrValidation)

	job, err := o.Start(context.Background(), videoTimeline(), testSettings(), nil)
	require.NoError(t, err)
	o.Cancel()
	_, err = job.Wait(context.Background())
	require.ErrorIs(t, err, services.ErrCancelled)

	res, err := o.Export(context.Background(), videoTimeline(), testSettings(), nil)
	require.NoError(t, err)
	assert.Equal(t, 300, res.Metadata.FramesPushed)
	assert.NotEqual(t, job.ID, res.Metadata.ExportID)
}

func TestWaitHonoursCallerContext(t *testing.T) {
	gate := make(chan struct{})
	rec := &sinkRecorder{configure: func(s *recordingSink) { s.startGate = gate }}
	o := newTestOrchestrator(rec, nil)

	job, err := o.Start(context.Background(), videoTimeline(), testSettings(), nil)
	require.NoError(t, err)
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	_, err = job.Wait(ctx)
	require.ErrorIs(t, err, context.DeadlineExceeded)
	assert.True(t, o.IsActive(), "an expired wait does not cancel the export")

	close(gate)
	_, err = job.Wait(context.Background())
	require.NoError(t, err)
}

func TestProgressReporterIsMonotonicAndClosable(t *testing.T) {
	log := &progressLog{}
	p := newProgressReporter(log.record, nil)
	p.report("rendering", 0.5, "")
	p.report("rendering", 0.25, "")
	p.report("rendering", 2, "")
	p.close()
	p.report("rendering", 1, "")
	assert.Equal(t, []float64{0.5, 0.5, 1}, log.snapshot())
}

func TestFailureSetAggregatesPerElement(t *testing.T) {
	f := newFailureSet()
	first := &services.ElementError{ElementID: "b", Kind: "image", Op: "draw", Err: errors.New("first")}
	fresh := f.add(first, &services.ElementError{ElementID: "a", Kind: "video", Op: "draw", Err: errors.New("x")})
	assert.Len(t, fresh, 2)
	assert.Empty(t, f.add(&services.ElementError{ElementID: "b", Kind: "image", Op: "draw", Err: errors.New("second")}))

	got := f.snapshot()
	require.Len(t, got, 2)
	assert.Equal(t, "a", got[0].ElementID)
	assert.Equal(t, 2, got[1].Failures)
	assert.Contains(t, got[1].FirstError, "first")
}

func TestStateNames(t *testing.T) {
	assert.Equal(t, "rendering", StateRendering.String())
	assert.True(t, StateCancelled.Terminal())
	assert.False(t, StateFinalizing.Terminal())
}

func waitClosed(t *testing.T, ch <-chan struct{}, what string) {
	t.Helper()
	select {
	case <-ch:
	case <-time.After(5 * time.Second):
		t.Fatalf("timed out waiting for %s", what)
	}
}

func TestCancelWinsOverLateStopError(t *testing.T) {
	entered := make(chan struct{})
	gate := make(chan struct{})
	rec := &sinkRecorder{configure: func(s *recordingSink) {
		s.stopEntered = entered
		s.stopGate = gate
		s.stopErr = errors.New("muxer crashed")
	}}
	o := newTestOrchestrator(rec, nil)
	report := make(chan Report, 1)
	o.deps.Observer = ObserverFunc(func(_ context.Context, r Report) { report <- r })

	job, err := o.Start(context.Background(), videoTimeline(), testSettings(), nil)
	require.NoError(t, err)
	waitClosed(t, entered, "sink stop")
	assert.Equal(t, StateFinalizing, job.State())

	o.Cancel()
	select {
	case <-job.Done():
	default:
		t.Fatal("job must settle before Cancel returns")
	}
	close(gate)

	final := <-report
	assert.Equal(t, StateCancelled, final.State)
	require.ErrorIs(t, final.Err, services.ErrCancelled)
	assert.NotContains(t, final.Err.Error(), "muxer crashed")
	assert.Nil(t, final.Result)

	_, err = job.Wait(context.Background())
	require.ErrorIs(t, err, services.ErrCancelled)
	assert.Equal(t, StateCancelled, job.State())
	_, stops, cleanups := rec.get(0).snapshot()
	assert.Equal(t, 1, stops)
	assert.Equal(t, 1, cleanups)
}

func TestCancelWinsOverLatePushError(t *testing.T) {
	entered := make(chan struct{})
	gate := make(chan struct{})
	rec := &sinkRecorder{configure: func(s *recordingSink) {
		s.failPush = func(index int) error {
			if index != 3 {
				return nil
			}
			close(entered)
			<-gate
			return errors.New("pipe closed")
		}
	}}
	o := newTestOrchestrator(rec, nil)
	report := make(chan Report, 1)
	o.deps.Observer = ObserverFunc(func(_ context.Context, r Report) { report <- r })

	job, err := o.Start(context.Background(), videoTimeline(), testSettings(), nil)
	require.NoError(t, err)
	waitClosed(t, entered, "frame push")

	o.Cancel()
	_, err = job.Wait(context.Background())
	require.ErrorIs(t, err, services.ErrCancelled)
	close(gate)

	final := <-report
	assert.Equal(t, StateCancelled, final.State)
	require.ErrorIs(t, final.Err, services.ErrCancelled)
	assert.NotErrorIs(t, final.Err, services.ErrEncoding)
	assert.Nil(t, final.Result)
	assert.Equal(t, 3, final.Metadata.FramesPushed)

	_, stops, cleanups := rec.get(0).snapshot()
	assert.Zero(t, stops)
	assert.Equal(t, 1, cleanups)
}

func TestCancelDuringAudioMixing(t *testing.T) {
	dec := blockingDecoder{entered: make(chan struct{}), release: make(chan struct{})}
	rec := &sinkRecorder{}
	o := newTestOrchestrator(rec, func(d *Dependencies, _ *Options) {
		d.Audio = dec
	})
	report := make(chan Report, 1)
	o.deps.Observer = ObserverFunc(func(_ context.Context, r Report) { report <- r })

	music := timeline.NewElement("music", timeline.KindAudio, 0, 10)
	music.Source = "slow.wav"
	tl := videoTimeline()
	tl.Tracks = append(tl.Tracks, timeline.Track{ID: "audio", Elements: []timeline.Element{music}})

	job, err := o.Start(context.Background(), tl, testSettings(), nil)
	require.NoError(t, err)
	waitClosed(t, dec.entered, "audio decode")
	assert.Equal(t, StateInitializing, job.State())

	o.Cancel()
	select {
	case <-job.Done():
	default:
		t.Fatal("job must settle while the decoder is still blocked")
	}
	_, err = job.Wait(context.Background())
	require.ErrorIs(t, err, services.ErrCancelled)
	assert.False(t, o.IsActive())

	close(dec.release)
	final := <-report
	assert.Equal(t, StateCancelled, final.State)
	assert.Zero(t, rec.count(), "no sink is created after a cancelled mix")
}

func TestRenderPanicFailsWithInternalError(t *testing.T) {
	rec := &sinkRecorder{}
	o := newTestOrchestrator(rec, func(d *Dependencies, _ *Options) {
		d.Media = panickingProvider{}
	})
	report := make(chan Report, 1)
	o.deps.Observer = ObserverFunc(func(_ context.Context, r Report) { report <- r })

	_, err := o.Export(context.Background(), videoTimeline(), testSettings(), nil)
	require.Error(t, err)
	assert.Equal(t, services.KindInternal, services.KindOf(err))
	assert.NotErrorIs(t, err, services.ErrCancelled)
	assert.Contains(t, err.Error(), "decoder state corrupted")

	final := <-report
	assert.Equal(t, StateFailed, final.State)
	assert.Nil(t, final.Result)

	indices, stops, cleanups := rec.get(0).snapshot()
	assert.Empty(t, indices)
	assert.Zero(t, stops)
	assert.Equal(t, 1, cleanups)
	assert.False(t, o.IsActive())
}

func TestPhasePanicSettlesFailed(t *testing.T) {
	restore := newMixer
	newMixer = func(mixer.Options) *mixer.Mixer { panic("mixer state corrupted") }
	t.Cleanup(func() { newMixer = restore })

	rec := &sinkRecorder{}
	o := newTestOrchestrator(rec, nil)
	report := make(chan Report, 1)
	o.deps.Observer = ObserverFunc(func(_ context.Context, r Report) { report <- r })

	job, err := o.Start(context.Background(), videoTimeline(), testSettings(), nil)
	require.NoError(t, err)
	_, err = job.Wait(context.Background())
	require.Error(t, err)
	assert.Equal(t, services.KindInternal, services.KindOf(err))
	assert.Contains(t, err.Error(), "mixer state corrupted")
	assert.Equal(t, StateFailed, job.State())

	final := <-report
	assert.Equal(t, StateFailed, final.State)
	assert.False(t, o.IsActive())
	assert.Zero(t, rec.count())

	res, err := o.Export(context.Background(), &timeline.Timeline{}, testSettings(), nil)
	assert.Nil(t, res)
	require.ErrorIs(t, err, services.ErrValidation, "the orchestrator accepts new exports after a panic")
}

func TestExportRejectsOverlongTimeline(t *testing.T) {
	rec := &sinkRecorder{}
	o := newTestOrchestrator(rec, func(_ *Dependencies, opts *Options) {
		opts.Budget = memory.Budget{Limit: 1 << 30}
	})
	still := timeline.NewElement("still", timeline.KindImage, 0, 1e15)
	still.Source = "poster.png"
	tl := &timeline.Timeline{Tracks: []timeline.Track{{ID: "main", Elements: []timeline.Element{still}}}}

	_, err := o.Export(context.Background(), tl, testSettings(), nil)
	require.ErrorIs(t, err, services.ErrValidation)
	assert.Contains(t, err.Error(), "exceeds the 86400s limit")
	assert.Zero(t, rec.count())
	assert.False(t, o.IsActive())
}
