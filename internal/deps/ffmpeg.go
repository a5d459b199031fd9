package deps

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strings"

	"cutroom/internal/timeline"
)

var commandContext = exec.CommandContext

// FFmpegRequirements lists the binaries media decoding and encoding use.
func FFmpegRequirements(ffmpegBinary, ffprobeBinary string) []Requirement {
	return []Requirement{
		{
			Name:        "FFmpeg",
			Command:     defaultString(ffmpegBinary, "ffmpeg"),
			Description: "Required for video seeking, audio decoding and mp4/mov/webm encoding",
		},
		{
			Name:        "FFprobe",
			Command:     defaultString(ffprobeBinary, "ffprobe"),
			Description: "Required to detect audio streams in video sources",
		},
	}
}

// RequiredEncoders returns the ffmpeg encoders a format needs. Formats
// encoded in-process need none.
func RequiredEncoders(format timeline.Format) []string {
	switch format {
	case timeline.FormatMP4, timeline.FormatMOV:
		return []string{"libx264", "aac"}
	case timeline.FormatWebM:
		return []string{"libvpx-vp9", "libopus"}
	default:
		return nil
	}
}

// ListEncoders runs "ffmpeg -encoders" and returns the encoder names.
func ListEncoders(ctx context.Context, binary string) (map[string]bool, error) {
	binary = defaultString(binary, "ffmpeg")
	cmd := commandContext(ctx, binary, "-hide_banner", "-encoders") //nolint:gosec
	output, err := cmd.Output()
	if err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			return nil, fmt.Errorf("list encoders: %w: %s", err, strings.TrimSpace(string(exitErr.Stderr)))
		}
		return nil, fmt.Errorf("list encoders: %w", err)
	}
	return ParseEncoders(output), nil
}

// ParseEncoders extracts encoder names from "ffmpeg -encoders" output.
// Entries follow the "------" separator as "<flags> <name> <description>".
func ParseEncoders(output []byte) map[string]bool {
	encoders := make(map[string]bool)
	scanner := bufio.NewScanner(bytes.NewReader(output))
	listing := false
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if !listing {
			listing = strings.HasPrefix(line, "---")
			continue
		}
		fields := strings.Fields(line)
		if len(fields) < 2 || len(fields[0]) != 6 {
			continue
		}
		encoders[fields[1]] = true
	}
	return encoders
}

func defaultString(value, fallback string) string {
	if v := strings.TrimSpace(value); v != "" {
		return v
	}
	return fallback
}
