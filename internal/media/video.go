package media

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	"image/png"
	"math"
	"os"
	"os/exec"
	"strconv"
	"strings"
)

// seekTolerance is the distance below which a repeated seek reuses the
// previously decoded frame.
const seekTolerance = 1e-6

// videoHandle extracts single frames with ffmpeg.
type videoHandle struct {
	binary string
	source string

	lastTime  float64
	lastFrame image.Image
}

func newVideoHandle(binary, source string) (*videoHandle, error) {
	if _, err := exec.LookPath(binary); err != nil {
		return nil, unsupported(source, "open video", fmt.Errorf("ffmpeg binary %q not found", binary))
	}
	if _, err := os.Stat(source); err != nil {
		return nil, corrupt(source, "open video", err)
	}
	return &videoHandle{binary: binary, source: source, lastTime: math.NaN()}, nil
}

func (h *videoHandle) Frame(ctx context.Context, t float64) (image.Image, error) {
	if t < 0 {
		t = 0
	}
	if h.lastFrame != nil && math.Abs(t-h.lastTime) < seekTolerance {
		return h.lastFrame, nil
	}

	args := []string{
		"-hide_banner",
		"-v", "error",
		"-ss", strconv.FormatFloat(t, 'f', 6, 64),
		"-i", h.source,
		"-frames:v", "1",
		"-f", "image2pipe",
		"-c:v", "png",
		"-",
	}
	cmd := exec.CommandContext(ctx, h.binary, args...) //nolint:gosec
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		return nil, corrupt(h.source, "seek video", commandError(err, stderr.String()))
	}
	if stdout.Len() == 0 {
		return nil, corrupt(h.source, "seek video", errors.New("no frame at requested time"))
	}
	img, err := png.Decode(&stdout)
	if err != nil {
		return nil, corrupt(h.source, "decode video frame", err)
	}
	h.lastTime = t
	h.lastFrame = img
	return img, nil
}

func (h *videoHandle) Close() error {
	h.lastFrame = nil
	return nil
}

func commandError(err error, stderr string) error {
	stderr = strings.TrimSpace(stderr)
	if stderr == "" {
		return err
	}
	return fmt.Errorf("%w: %s", err, stderr)
}
