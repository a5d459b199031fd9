package sink

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
	"sync"

	"cutroom/internal/logging"
	"cutroom/internal/mixer"
	"cutroom/internal/timeline"
)

var commandContext = exec.CommandContext

// Options configure the file-producing sinks.
type Options struct {
	FFmpegBinary string
	// WorkDir holds per-sink scratch directories and finished results.
	WorkDir string
	Logger  *slog.Logger
}

func (o Options) binary() string {
	if b := strings.TrimSpace(o.FFmpegBinary); b != "" {
		return b
	}
	return "ffmpeg"
}

func (o Options) workDir() string {
	if d := strings.TrimSpace(o.WorkDir); d != "" {
		return d
	}
	return os.TempDir()
}

// FFmpegSink streams raw RGBA frames to an ffmpeg process over stdin. The
// process starts on the first frame so the mixed audio, written to a WAV in
// the scratch directory, can be passed as a second input.
type FFmpegSink struct {
	opts   Options
	logger *slog.Logger

	mu        sync.Mutex
	spec      Spec
	scratch   string
	audioPath string
	output    string

	procCtx context.Context
	cancel  context.CancelFunc
	cmd     *exec.Cmd
	stdin   io.WriteCloser
	stderr  *bytes.Buffer
	waited  bool
}

// NewFFmpegSink returns an unstarted sink.
func NewFFmpegSink(opts Options) *FFmpegSink {
	return &FFmpegSink{opts: opts, logger: logging.NewComponentLogger(opts.Logger, "sink.ffmpeg")}
}

func (s *FFmpegSink) Start(_ context.Context, spec Spec) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, err := exec.LookPath(s.opts.binary()); err != nil {
		return encodingError("start", fmt.Errorf("ffmpeg binary %q not found", s.opts.binary()))
	}
	if err := os.MkdirAll(s.opts.workDir(), 0o755); err != nil {
		return encodingError("start", err)
	}
	scratch, err := os.MkdirTemp(s.opts.workDir(), "sink-*")
	if err != nil {
		return encodingError("start", err)
	}
	s.spec = spec
	s.scratch = scratch
	s.output = filepath.Join(scratch, "out"+spec.Format.Extension())
	s.procCtx, s.cancel = context.WithCancel(context.Background())
	s.logger.Debug("ffmpeg sink ready",
		logging.String("format", string(spec.Format)),
		logging.String("scratch", scratch),
	)
	return nil
}

func (s *FFmpegSink) SetAudio(_ context.Context, buf *mixer.Buffer) error {
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

func (s *FFmpegSink) PushFrame(ctx context.Context, frame *image.RGBA, index int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cmd == nil {
		if err := s.launch(); err != nil {
			return encodingError("push frame", err)
		}
	}
	stop := context.AfterFunc(ctx, s.cancel)
	defer stop()
	if err := writeRGBA(s.stdin, frame, s.spec.Width, s.spec.Height); err != nil {
		return encodingError("push frame", fmt.Errorf("frame %d: %w%s", index, err, s.stderrSuffix()))
	}
	return nil
}

func (s *FFmpegSink) launch() error {
	args := s.args()
	cmd := commandContext(s.procCtx, s.opts.binary(), args...) //nolint:gosec
	stdin, err := cmd.StdinPipe()
	if err != nil {
		return fmt.Errorf("stdin pipe: %w", err)
	}
	s.stderr = &bytes.Buffer{}
	cmd.Stderr = s.stderr
	if err := cmd.Start(); err != nil {
		return fmt.Errorf("start ffmpeg: %w", err)
	}
	s.cmd = cmd
	s.stdin = stdin
	s.logger.Info("encoder started",
		logging.String(logging.FieldEventType, "encoder_started"),
		logging.String("args", strings.Join(args, " ")),
	)
	return nil
}

func (s *FFmpegSink) args() []string {
	spec := s.spec
	args := []string{
		"-hide_banner", "-v", "error", "-y",
		"-f", "rawvideo",
		"-pix_fmt", "rgba",
		"-s", fmt.Sprintf("%dx%d", spec.Width, spec.Height),
		"-r", strconv.FormatFloat(spec.FPS, 'f', -1, 64),
		"-i", "pipe:0",
	}
	if s.audioPath != "" {
		args = append(args, "-i", s.audioPath, "-map", "0:v:0", "-map", "1:a:0")
	}
	args = append(args, codecArgs(spec, s.audioPath != "")...)
	return append(args, s.output)
}

// codecArgs selects codecs per container. CRF follows quality.
func codecArgs(spec Spec, audio bool) []string {
	crf := strconv.Itoa(crfFor(spec.Format, spec.Quality))
	var args []string
	switch spec.Format {
	case timeline.FormatWebM:
		args = []string{"-c:v", "libvpx-vp9", "-crf", crf, "-b:v", "0", "-row-mt", "1", "-pix_fmt", "yuv420p"}
		if audio {
			args = append(args, "-c:a", "libopus", "-b:a", "128k")
		}
	default:
		args = []string{"-c:v", "libx264", "-preset", "medium", "-crf", crf, "-pix_fmt", "yuv420p"}
		if spec.Format == timeline.FormatMP4 {
			args = append(args, "-movflags", "+faststart")
		}
		if audio {
			args = append(args, "-c:a", "aac", "-b:a", "192k")
		}
	}
	return args
}

func crfFor(format timeline.Format, quality timeline.Quality) int {
	vp9 := format == timeline.FormatWebM
	switch quality {
	case timeline.QualityLow:
		if vp9 {
			return 40
		}
		return 28
	case timeline.QualityMedium:
		if vp9 {
			return 34
		}
		return 23
	case timeline.QualityUltra:
		if vp9 {
			return 24
		}
		return 17
	default:
		if vp9 {
			return 31
		}
		return 20
	}
}

func (s *FFmpegSink) Stop(_ context.Context) (Output, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cmd == nil {
		return Output{}, encodingError("stop", errors.New("no frames were encoded"))
	}
	closeErr := s.stdin.Close()
	waitErr := s.cmd.Wait()
	s.waited = true
	if waitErr != nil {
		return Output{}, encodingError("stop", fmt.Errorf("ffmpeg exited: %w%s", waitErr, s.stderrSuffix()))
	}
	if closeErr != nil && !errors.Is(closeErr, os.ErrClosed) {
		return Output{}, encodingError("stop", closeErr)
	}
	blob, err := finish(s.output, s.scratch, s.spec.Format.Extension())
	if err != nil {
		return Output{}, encodingError("stop", err)
	}
	return Output{Blob: blob, MimeType: s.spec.Format.MimeType()}, nil
}

// Cleanup kills a running encoder and removes the scratch directory.
func (s *FFmpegSink) Cleanup() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cancel != nil {
		s.cancel()
	}
	if s.cmd != nil && !s.waited {
		if s.stdin != nil {
			_ = s.stdin.Close()
		}
		_ = s.cmd.Wait()
		s.waited = true
	}
	if s.scratch == "" {
		return nil
	}
	err := os.RemoveAll(s.scratch)
	s.scratch = ""
	return err
}

func (s *FFmpegSink) stderrSuffix() string {
	if s.stderr == nil {
		return ""
	}
	if msg := strings.TrimSpace(s.stderr.String()); msg != "" {
		return ": " + msg
	}
	return ""
}

// writeRGBA writes the visible w×h pixels of frame tightly packed.
func writeRGBA(w io.Writer, frame *image.RGBA, width, height int) error {
	b := frame.Bounds()
	if b.Dx() != width || b.Dy() != height {
		return fmt.Errorf("frame is %dx%d, encoder expects %dx%d", b.Dx(), b.Dy(), width, height)
	}
	row := width * 4
	if frame.Stride == row && b.Min == (image.Point{}) {
		_, err := w.Write(frame.Pix[:row*height])
		return err
	}
	for y := 0; y < height; y++ {
		off := frame.PixOffset(b.Min.X, b.Min.Y+y)
		if _, err := w.Write(frame.Pix[off : off+row]); err != nil {
			return err
		}
	}
	return nil
}

func writeWAV(path string, buf *mixer.Buffer) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := mixer.EncodeWAV(f, buf); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

// finish moves a finished artifact out of scratch so it outlives Cleanup.
func finish(artifact, scratch, ext string) (*FileBlob, error) {
	dest := scratch + ext
	if err := os.Rename(artifact, dest); err != nil {
		return nil, fmt.Errorf("move result: %w", err)
	}
	return NewFileBlob(dest)
}

var _ Sink = (*FFmpegSink)(nil)
