package logging

import "testing"

func TestNewProgressSampler(t *testing.T) {
	tests := []struct {
		name       string
		bucketSize float64
		wantSize   float64
	}{
		{"default bucket size for zero", 0, 0.05},
		{"default bucket size for negative", -1, 0.05},
		{"default bucket size above one", 5, 0.05},
		{"custom bucket size", 0.1, 0.1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := NewProgressSampler(tt.bucketSize)
			if s.bucketSize != tt.wantSize {
				t.Errorf("bucketSize = %v, want %v", s.bucketSize, tt.wantSize)
			}
			if s.lastBucket != -1 {
				t.Errorf("lastBucket = %d, want -1", s.lastBucket)
			}
		})
	}
}

func TestProgressSampler_NilSampler(t *testing.T) {
	var s *ProgressSampler
	if !s.ShouldLog(0.5, "rendering") {
		t.Error("ShouldLog on nil sampler should always return true")
	}
	s.Reset()
}

func TestProgressSampler_PhaseChange(t *testing.T) {
	s := NewProgressSampler(0.05)

	if !s.ShouldLog(0, "rendering") {
		t.Error("first phase should log")
	}
	if s.ShouldLog(0, "rendering") {
		t.Error("same phase and fraction should not log again")
	}
	if !s.ShouldLog(0, "finalizing") {
		t.Error("different phase should log")
	}
	if s.lastPhase != "finalizing" {
		t.Errorf("lastPhase = %q, want finalizing", s.lastPhase)
	}
}

func TestProgressSampler_TrimsPhase(t *testing.T) {
	s := NewProgressSampler(0.05)
	s.ShouldLog(0, "  rendering  ")
	if s.lastPhase != "rendering" {
		t.Errorf("lastPhase = %q, want rendering", s.lastPhase)
	}
}

func TestProgressSampler_Buckets(t *testing.T) {
	s := NewProgressSampler(0.05)
	steps := []struct {
		fraction float64
		want     bool
	}{
		{0, true},
		{0.03, false},
		{0.05, true},
		{0.07, false},
		{0.15, true},
		{1, true},
		{1.2, false},
	}
	for _, step := range steps {
		if got := s.ShouldLog(step.fraction, "rendering"); got != step.want {
			t.Errorf("ShouldLog(%v) = %v, want %v", step.fraction, got, step.want)
		}
	}
}

func TestProgressSampler_NegativeFraction(t *testing.T) {
	s := NewProgressSampler(0.05)
	if !s.ShouldLog(-1, "initializing") {
		t.Error("first call should log on phase change")
	}
	if s.ShouldLog(-1, "initializing") {
		t.Error("unknown fraction should not trigger bucket logging")
	}
}

func TestProgressSampler_Reset(t *testing.T) {
	s := NewProgressSampler(0.05)
	s.ShouldLog(0.5, "rendering")
	s.Reset()
	if s.lastPhase != "" || s.lastBucket != -1 {
		t.Fatalf("state not cleared: %q %d", s.lastPhase, s.lastBucket)
	}
	if !s.ShouldLog(0.5, "rendering") {
		t.Error("should log after reset")
	}
}
