package sink

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	"image/jpeg"
	"log/slog"
	"math"
	"os"
	"path/filepath"
	"sync"

	"github.com/icza/mjpeg"

	"cutroom/internal/logging"
	"cutroom/internal/mixer"
	"cutroom/internal/timeline"
)

// ExtraAudioSidecar names the Output.Extras entry holding the WAV written
// next to an MJPEG AVI.
const ExtraAudioSidecar = "audio_sidecar"

// MJPEGSink writes Motion-JPEG AVI files in-process. The AVI carries video
// only; mixed audio is written to a sidecar WAV.
type MJPEGSink struct {
	opts   Options
	logger *slog.Logger

	mu        sync.Mutex
	spec      Spec
	scratch   string
	output    string
	audioPath string
	writer    mjpeg.AviWriter
	buf       bytes.Buffer
}

// NewMJPEGSink returns an unstarted sink.
func NewMJPEGSink(opts Options) *MJPEGSink {
	return &MJPEGSink{opts: opts, logger: logging.NewComponentLogger(opts.Logger, "sink.mjpeg")}
}

func (s *MJPEGSink) Start(_ context.Context, spec Spec) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := os.MkdirAll(s.opts.workDir(), 0o755); err != nil {
		return encodingError("start", err)
	}
	scratch, err := os.MkdirTemp(s.opts.workDir(), "sink-*")
	if err != nil {
		return encodingError("start", err)
	}
	s.spec = spec
	s.scratch = scratch
	s.output = filepath.Join(scratch, "out.avi")

	fps := int32(max(1, math.Round(spec.FPS)))
	writer, err := mjpeg.New(s.output, int32(spec.Width), int32(spec.Height), fps)
	if err != nil {
		return encodingError("start", fmt.Errorf("create avi writer: %w", err))
	}
	s.writer = writer
	s.logger.Debug("mjpeg sink ready", logging.String("scratch", scratch), logging.Int("fps", int(fps)))
	return nil
}

func (s *MJPEGSink) SetAudio(_ context.Context, buf *mixer.Buffer) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if buf == nil || buf.Len() == 0 {
		return nil
	}
	path := filepath.Join(s.scratch, "audio.wav")
	if err := writeWAV(path, buf); err != nil {
		return encodingError("set audio", err)
	}
	s.audioPath = path
	return nil
}

func (s *MJPEGSink) PushFrame(ctx context.Context, frame *image.RGBA, index int) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.writer == nil {
		return encodingError("push frame", errors.New("writer closed"))
	}
	s.buf.Reset()
	if err := jpeg.Encode(&s.buf, frame, &jpeg.Options{Quality: jpegQuality(s.spec.Quality)}); err != nil {
		return encodingError("push frame", fmt.Errorf("encode frame %d: %w", index, err))
	}
	if err := s.writer.AddFrame(s.buf.Bytes()); err != nil {
		return encodingError("push frame", fmt.Errorf("add frame %d: %w", index, err))
	}
	return nil
}

func jpegQuality(q timeline.Quality) int {
	switch q {
	case timeline.QualityLow:
		return 60
	case timeline.QualityMedium:
		return 75
	case timeline.QualityUltra:
		return 95
	default:
		return 88
	}
}

func (s *MJPEGSink) Stop(_ context.Context) (Output, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.writer == nil {
		return Output{}, encodingError("stop", errors.New("writer closed"))
	}
	err := s.writer.Close()
	s.writer = nil
	if err != nil {
		return Output{}, encodingError("stop", fmt.Errorf("close avi: %w", err))
	}
	blob, err := finish(s.output, s.scratch, ".avi")
	if err != nil {
		return Output{}, encodingError("stop", err)
	}
	out := Output{Blob: blob, MimeType: timeline.FormatAVI.MimeType(), Extras: map[string]string{}}
	if s.audioPath != "" {
		sidecar := s.scratch + ".wav"
		if err := os.Rename(s.audioPath, sidecar); err != nil {
			return Output{}, encodingError("stop", fmt.Errorf("move audio sidecar: %w", err))
		}
		out.Extras[ExtraAudioSidecar] = sidecar
	}
	return out, nil
}

// Cleanup closes an open writer and removes the scratch directory.
func (s *MJPEGSink) Cleanup() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	var errs []error
	if s.writer != nil {
		if err := s.writer.Close(); err != nil {
			errs = append(errs, err)
		}
		s.writer = nil
	}
	if s.scratch != "" {
		if err := os.RemoveAll(s.scratch); err != nil {
			errs = append(errs, err)
		}
		s.scratch = ""
	}
	return errors.Join(errs...)
}

var _ Sink = (*MJPEGSink)(nil)
