package media

import (
	"bytes"
	"context"
	"encoding/binary"
	"fmt"
	"math"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"

	"cutroom/internal/media/ffprobe"
	"cutroom/internal/mixer"
)

// AudioDecoder decodes element sources to PCM for the mixer.
type AudioDecoder struct {
	FFmpegBinary  string
	FFprobeBinary string
	// Channels is the channel count requested from ffmpeg. Zero means stereo.
	Channels int
}

// Decode implements mixer.Decoder. WAV files are decoded in-process; other
// containers are probed for an audio stream and piped through ffmpeg as
// interleaved 32-bit float.
func (d AudioDecoder) Decode(ctx context.Context, source string, sampleRate int) (*mixer.Buffer, error) {
	if strings.EqualFold(filepath.Ext(source), ".wav") {
		return decodeWAVFile(source)
	}
	if IsStill(source) {
		return nil, mixer.ErrNoAudio
	}
	if _, err := os.Stat(source); err != nil {
		return nil, corrupt(source, "open audio", err)
	}

	ffmpegBin := strings.TrimSpace(d.FFmpegBinary)
	if ffmpegBin == "" {
		ffmpegBin = "ffmpeg"
	}
	if _, err := exec.LookPath(ffmpegBin); err != nil {
		return nil, unsupported(source, "decode audio", fmt.Errorf("ffmpeg binary %q not found", ffmpegBin))
	}

	probe, err := ffprobe.Inspect(ctx, d.FFprobeBinary, source)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		return nil, corrupt(source, "probe audio", err)
	}
	if !probe.HasAudio() {
		return nil, mixer.ErrNoAudio
	}

	channels := d.Channels
	if channels <= 0 {
		channels = 2
	}
	args := []string{
		"-hide_banner",
		"-v", "error",
		"-i", source,
		"-vn",
		"-f", "f32le",
		"-acodec", "pcm_f32le",
		"-ac", strconv.Itoa(channels),
		"-ar", strconv.Itoa(sampleRate),
		"-",
	}
	cmd := exec.CommandContext(ctx, ffmpegBin, args...) //nolint:gosec
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		return nil, corrupt(source, "decode audio", commandError(err, stderr.String()))
	}

	raw := stdout.Bytes()
	samples := make([]float32, len(raw)/4)
	for i := range samples {
		samples[i] = math.Float32frombits(binary.LittleEndian.Uint32(raw[i*4:]))
	}
	return mixer.FromInterleaved(samples, sampleRate, channels), nil
}

func decodeWAVFile(source string) (*mixer.Buffer, error) {
	f, err := os.Open(source)
	if err != nil {
		return nil, corrupt(source, "open audio", err)
	}
	defer f.Close()
	buf, err := mixer.DecodeWAV(f)
	if err != nil {
		return nil, corrupt(source, "decode wav", err)
	}
	return buf, nil
}
