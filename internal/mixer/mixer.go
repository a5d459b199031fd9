package mixer

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"slices"
	"sync"

	"cutroom/internal/logging"
	"cutroom/internal/services"
	"cutroom/internal/timeline"
)

// ErrNoAudio is returned by a Decoder for sources without an audio stream.
// Such elements are left out of the mix without being reported as failures.
var ErrNoAudio = errors.New("source has no audio stream")

// ErrDisposed is returned when a disposed mixer is used.
var ErrDisposed = errors.New("mixer disposed")

// maxMixSamples caps the per-channel length of a mixed buffer.
const maxMixSamples = 1 << 40

// Decoder decodes a source reference to PCM at the requested rate. The
// returned buffer may use a different rate; the mixer resamples it.
type Decoder interface {
	Decode(ctx context.Context, source string, sampleRate int) (*Buffer, error)
}

// TrackInfo places a decoded buffer on the timeline.
type TrackInfo struct {
	ElementID string
	Buffer    *Buffer
	// StartTime and EndTime bound the contribution on the timeline.
	StartTime float64
	EndTime   float64
	// SourceOffset is where playback starts inside Buffer, in seconds.
	SourceOffset float64
	Volume       float64
	Pan          float64
}

// Options configure a Mixer.
type Options struct {
	SampleRate int
	Channels   int
	Logger     *slog.Logger
}

// Mixer produces one pre-mixed buffer for a whole export. It is owned by a
// single export and discarded after Dispose.
type Mixer struct {
	sampleRate int
	channels   int
	logger     *slog.Logger

	mu       sync.Mutex
	tracks   []TrackInfo
	failures []*services.ElementError
	disposed bool
}

// New returns a mixer. Zero options select 48 kHz stereo.
func New(opts Options) *Mixer {
	if opts.SampleRate <= 0 {
		opts.SampleRate = 48000
	}
	if opts.Channels <= 0 {
		opts.Channels = 2
	}
	return &Mixer{
		sampleRate: opts.SampleRate,
		channels:   opts.Channels,
		logger:     logging.NewComponentLogger(opts.Logger, "mixer"),
	}
}

// SampleRate returns the mixer's target rate.
func (m *Mixer) SampleRate() int { return m.sampleRate }

// Channels returns the output channel count.
func (m *Mixer) Channels() int { return m.channels }

// AddTrack registers a decoded track.
func (m *Mixer) AddTrack(info TrackInfo) error {
	if info.Buffer == nil || info.Buffer.NumChannels() == 0 {
		return fmt.Errorf("add track %s: empty buffer", info.ElementID)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.disposed {
		return ErrDisposed
	}
	m.tracks = append(m.tracks, info)
	return nil
}

// Load discovers audible elements on unmuted tracks and decodes them. Only
// elements that can contribute inside [0, duration) are decoded, and each
// distinct source is decoded once. Decode failures are recorded and the
// element is skipped; only cancellation is returned as an error.
func (m *Mixer) Load(ctx context.Context, tl *timeline.Timeline, duration float64, dec Decoder) error {
	if tl == nil {
		return nil
	}
	type decoded struct {
		buf *Buffer
		err error
	}
	cache := make(map[string]decoded)

	for _, track := range tl.Tracks {
		if track.Muted {
			continue
		}
		for _, el := range track.Elements {
			if !contributes(el, duration) {
				continue
			}
			if err := ctx.Err(); err != nil {
				return services.Wrap(services.ErrCancelled, "initializing", "load audio", "", err)
			}

			entry, ok := cache[el.Source]
			if !ok {
				buf, err := dec.Decode(ctx, el.Source, m.sampleRate)
				if err == nil && (buf == nil || buf.NumChannels() == 0) {
					err = ErrNoAudio
				}
				if ctxErr := ctx.Err(); ctxErr != nil {
					return services.Wrap(services.ErrCancelled, "initializing", "load audio", "", ctxErr)
				}
				entry = decoded{buf: buf, err: err}
				cache[el.Source] = entry
			}

			switch {
			case errors.Is(entry.err, ErrNoAudio):
				m.logger.Debug("element has no audio; skipping", logging.Element(el.ID))
				continue
			case entry.err != nil:
				m.recordFailure(el, entry.err)
				continue
			}

			if err := m.AddTrack(TrackInfo{
				ElementID:    el.ID,
				Buffer:       entry.buf,
				StartTime:    el.StartTime,
				EndTime:      el.EndTime(),
				SourceOffset: el.TrimStart,
				Volume:       el.Volume,
				Pan:          el.Pan,
			}); err != nil {
				return err
			}
		}
	}
	return nil
}

func contributes(el timeline.Element, duration float64) bool {
	if !el.Has(timeline.Audible) || el.Muted || el.Volume == 0 {
		return false
	}
	if el.EffectiveDuration() <= 0 {
		return false
	}
	return el.StartTime < duration && el.EndTime() > 0
}

func (m *Mixer) recordFailure(el timeline.Element, err error) {
	failure := &services.ElementError{ElementID: el.ID, Kind: string(el.Kind), Op: "decode audio", Err: err}
	m.mu.Lock()
	m.failures = append(m.failures, failure)
	m.mu.Unlock()
	logging.WarnWithContext(m.logger, "audio decode failed; element left out of the mix", "audio_decode_failed",
		logging.Element(el.ID),
		logging.Error(err),
		logging.String(logging.FieldErrorHint, "check that the source file exists and has a readable audio stream"),
		logging.String(logging.FieldImpact, "element is silent in the export"),
	)
}

// Failures returns the per-element decode failures recorded by Load.
func (m *Mixer) Failures() []*services.ElementError {
	m.mu.Lock()
	defer m.mu.Unlock()
	return slices.Clone(m.failures)
}

// TrackCount returns the number of registered tracks.
func (m *Mixer) TrackCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.tracks)
}

// Bytes returns the memory held by decoded buffers. Buffers shared between
// tracks are counted once.
func (m *Mixer) Bytes() uint64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	seen := make(map[*Buffer]struct{}, len(m.tracks))
	var total uint64
	for _, tr := range m.tracks {
		if _, ok := seen[tr.Buffer]; ok {
			continue
		}
		seen[tr.Buffer] = struct{}{}
		total += tr.Buffer.Bytes()
	}
	return total
}

// MixTracks overlay-adds every track into a buffer of duration*sampleRate
// frames and hard-clamps the result to [-1, 1]. Tracks are summed in
// (start, element id) order so the result does not depend on the order
// they were added.
func (m *Mixer) MixTracks(duration float64, sampleRate int) (*Buffer, error) {
	if sampleRate <= 0 {
		return nil, fmt.Errorf("mix: invalid sample rate %d", sampleRate)
	}
	m.mu.Lock()
	if m.disposed {
		m.mu.Unlock()
		return nil, ErrDisposed
	}
	tracks := slices.Clone(m.tracks)
	m.mu.Unlock()

	slices.SortStableFunc(tracks, compareTracks)

	total := 0
	if duration > 0 || math.IsNaN(duration) {
		samples := math.Ceil(duration*float64(sampleRate) - 1e-9)
		if math.IsNaN(samples) || samples > maxMixSamples {
			return nil, fmt.Errorf("mix: %gs at %d Hz exceeds the mix buffer limit", duration, sampleRate)
		}
		total = int(samples)
	}
	acc := make([][]float64, m.channels)
	for ch := range acc {
		acc[ch] = make([]float64, total)
	}

	rate := float64(sampleRate)
	resampled := make(map[*Buffer]*Buffer)
	for _, tr := range tracks {
		src, ok := resampled[tr.Buffer]
		if !ok {
			src = Resample(tr.Buffer, sampleRate)
			resampled[tr.Buffer] = src
		}
		offset := int(math.Round(tr.StartTime * rate))
		srcStart := int(math.Round(tr.SourceOffset * rate))
		length := int(math.Round((tr.EndTime - tr.StartTime) * rate))
		srcLen := src.Len()

		gains := make([]float64, m.channels)
		for ch := range gains {
			gains[ch] = tr.Volume * panGain(ch, m.channels, tr.Pan)
		}

		for i := 0; i < length; i++ {
			o := offset + i
			if o < 0 {
				continue
			}
			s := srcStart + i
			if o >= total || s >= srcLen {
				break
			}
			if s < 0 {
				continue
			}
			for ch := range acc {
				acc[ch][o] += src.sample(ch, m.channels, s) * gains[ch]
			}
		}
	}

	out := NewBuffer(sampleRate, m.channels, total)
	for ch, data := range acc {
		dst := out.Channels[ch]
		for i, v := range data {
			dst[i] = float32(clamp(v))
		}
	}
	return out, nil
}

func compareTracks(a, b TrackInfo) int {
	if c := cmp.Compare(a.StartTime, b.StartTime); c != 0 {
		return c
	}
	if c := cmp.Compare(a.ElementID, b.ElementID); c != 0 {
		return c
	}
	if c := cmp.Compare(a.EndTime, b.EndTime); c != 0 {
		return c
	}
	if c := cmp.Compare(a.Volume, b.Volume); c != 0 {
		return c
	}
	return cmp.Compare(a.Pan, b.Pan)
}

// panGain implements the balance law: pan > 0 attenuates the left channel,
// pan < 0 attenuates the right. Mono output ignores pan.
func panGain(ch, channels int, pan float64) float64 {
	if channels == 1 {
		return 1
	}
	switch ch {
	case 0:
		return 1 - max(0, pan)
	case 1:
		return 1 + min(0, pan)
	default:
		return 1
	}
}

// Dispose releases all decoded buffers. It is safe to call more than once.
func (m *Mixer) Dispose() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.disposed {
		return
	}
	m.disposed = true
	m.tracks = nil
}

// Disposed reports whether Dispose has been called.
func (m *Mixer) Disposed() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.disposed
}
