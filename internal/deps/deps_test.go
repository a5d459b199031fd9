package deps

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"testing"

	"cutroom/internal/timeline"
)

const sampleEncoders = `Encoders:
 V..... = Video
 A..... = Audio
 ------
 V....D libx264              libx264 H.264 / AVC / MPEG-4 AVC (codec h264)
 V....D libvpx-vp9           libvpx VP9 (codec vp9)
 A....D aac                  AAC (Advanced Audio Coding)
`

func TestCheckBinaries(t *testing.T) {
	binDir := t.TempDir()
	present := filepath.Join(binDir, executableName("present"))
	script := []byte("#!/bin/sh\nexit 0\n")
	if err := os.WriteFile(present, script, 0o755); err != nil {
		t.Fatalf("write stub: %v", err)
	}
	reqs := []Requirement{
		{Name: "Present", Command: present},
		{Name: "Missing", Command: "clearly-not-present-binary"},
		{Name: "Optional", Command: "another-missing-binary", Optional: true},
		{Name: "Blank", Command: "  "},
	}

	results := CheckBinaries(reqs)
	if len(results) != len(reqs) {
		t.Fatalf("expected %d results, got %d", len(reqs), len(results))
	}
	if !results[0].Available || results[0].Path == "" {
		t.Fatalf("expected first requirement to resolve, got %#v", results[0])
	}
	if results[0].Detail != "" {
		t.Fatalf("unexpected detail for available dependency: %s", results[0].Detail)
	}
	if results[1].Available || results[1].Detail == "" {
		t.Fatalf("expected missing binary to be unavailable with detail, got %#v", results[1])
	}
	if results[1].Command != "clearly-not-present-binary" {
		t.Fatalf("unexpected command recorded: %s", results[1].Command)
	}
	if results[3].Detail != "command not configured" {
		t.Fatalf("expected blank command detail, got %q", results[3].Detail)
	}

	missing := Missing(results)
	if len(missing) != 2 {
		t.Fatalf("expected optional requirement to be excluded from missing, got %#v", missing)
	}
}

func TestFFmpegRequirementsDefaults(t *testing.T) {
	reqs := FFmpegRequirements("", " /opt/ffprobe ")
	if reqs[0].Command != "ffmpeg" {
		t.Fatalf("expected default ffmpeg command, got %q", reqs[0].Command)
	}
	if reqs[1].Command != "/opt/ffprobe" {
		t.Fatalf("expected trimmed ffprobe override, got %q", reqs[1].Command)
	}
}

func TestRequiredEncoders(t *testing.T) {
	tests := []struct {
		format timeline.Format
		want   int
	}{
		{timeline.FormatMP4, 2},
		{timeline.FormatMOV, 2},
		{timeline.FormatWebM, 2},
		{timeline.FormatAVI, 0},
	}
	for _, tt := range tests {
		if got := len(RequiredEncoders(tt.format)); got != tt.want {
			t.Fatalf("%s: expected %d encoders, got %d", tt.format, tt.want, got)
		}
	}
}

func TestParseEncoders(t *testing.T) {
	encoders := ParseEncoders([]byte(sampleEncoders))
	for _, name := range []string{"libx264", "libvpx-vp9", "aac"} {
		if !encoders[name] {
			t.Fatalf("expected %s in %v", name, encoders)
		}
	}
	if encoders["="] || encoders["Video"] {
		t.Fatalf("legend lines must not be parsed as encoders: %v", encoders)
	}
	if encoders["libopus"] {
		t.Fatal("unexpected libopus")
	}
}

func TestListEncoders(t *testing.T) {
	setHelperCommand(t, "encoders")
	encoders, err := ListEncoders(context.Background(), "")
	if err != nil {
		t.Fatalf("ListEncoders returned error: %v", err)
	}
	if !encoders["aac"] {
		t.Fatalf("expected aac encoder, got %v", encoders)
	}
}

func TestListEncodersFailure(t *testing.T) {
	setHelperCommand(t, "failure")
	if _, err := ListEncoders(context.Background(), "ffmpeg"); err == nil {
		t.Fatal("expected error when ffmpeg fails")
	}
}

func setHelperCommand(t *testing.T, mode string) {
	t.Helper()
	original := commandContext
	commandContext = func(ctx context.Context, name string, args ...string) *exec.Cmd {
		cmd := exec.CommandContext(ctx, os.Args[0], "-test.run=TestHelperProcess")
		cmd.Env = append(os.Environ(), "GO_WANT_HELPER_PROCESS=1", fmt.Sprintf("FFMPEG_HELPER_MODE=%s", mode))
		return cmd
	}
	t.Cleanup(func() {
		commandContext = original
	})
}

func TestHelperProcess(t *testing.T) {
	if os.Getenv("GO_WANT_HELPER_PROCESS") != "1" {
		return
	}
	switch os.Getenv("FFMPEG_HELPER_MODE") {
	case "encoders":
		fmt.Print(sampleEncoders)
		os.Exit(0)
	case "failure":
		fmt.Fprintln(os.Stderr, "unrecognized option")
		os.Exit(1)
	default:
		os.Exit(0)
	}
}

func executableName(base string) string {
	if runtime.GOOS == "windows" {
		return base + ".exe"
	}
	return base
}
