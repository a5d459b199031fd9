package ffprobe

import (
	"math"
	"testing"
)

const sample = `{
  "streams": [
    {"index": 0, "codec_type": "video", "codec_name": "h264", "width": 1920, "height": 1080, "avg_frame_rate": "30000/1001", "duration": "9.97"},
    {"index": 1, "codec_type": "audio", "codec_name": "aac", "sample_rate": "48000", "channels": 2, "duration": "10.01"}
  ],
  "format": {"filename": "clip.mp4", "duration": "10.010000", "format_name": "mov,mp4,m4a,3gp,3g2,mj2"}
}`

func TestParseAndHelpers(t *testing.T) {
	result, err := Parse([]byte(sample))
	if err != nil {
		t.Fatalf("Parse returned error: %v", err)
	}
	video, ok := result.Video()
	if !ok || video.Width != 1920 || video.Height != 1080 {
		t.Fatalf("unexpected video stream: %+v %v", video, ok)
	}
	if fps := video.FramesPerSecond(); math.Abs(fps-29.97) > 0.01 {
		t.Fatalf("unexpected fps: %v", fps)
	}
	if !result.HasAudio() {
		t.Fatal("expected audio stream")
	}
	if result.DurationSeconds() != 10.01 {
		t.Fatalf("unexpected duration: %v", result.DurationSeconds())
	}
}

func TestDurationFallsBackToStreams(t *testing.T) {
	result := Result{Streams: []Stream{{Duration: "3.5"}, {Duration: "4.25"}}}
	if result.DurationSeconds() != 4.25 {
		t.Fatalf("expected longest stream duration, got %v", result.DurationSeconds())
	}
	if result.HasAudio() {
		t.Fatal("expected no audio stream")
	}
	if _, ok := result.Video(); ok {
		t.Fatal("expected no video stream")
	}
}

func TestFramesPerSecond(t *testing.T) {
	tests := []struct {
		rate string
		want float64
	}{
		{"25/1", 25},
		{"24", 24},
		{"0/0", 0},
		{"", 0},
		{"abc/1", 0},
	}
	for _, tt := range tests {
		if got := (Stream{FrameRate: tt.rate}).FramesPerSecond(); got != tt.want {
			t.Fatalf("FramesPerSecond(%q) = %v, want %v", tt.rate, got, tt.want)
		}
	}
}

func TestMalformedValues(t *testing.T) {
	result := Result{Format: Format{Duration: "bad"}}
	if !math.IsNaN(result.DurationSeconds()) {
		t.Fatalf("expected NaN duration, got %v", result.DurationSeconds())
	}
	if _, err := Parse([]byte("{")); err == nil {
		t.Fatal("expected parse error")
	}
}
