package logging

import "strings"

// ProgressSampler suppresses repetitive progress logs while preserving signal
// when the phase changes or the completed fraction crosses a bucket.
type ProgressSampler struct {
	bucketSize float64
	lastPhase  string
	lastBucket int
}

// NewProgressSampler constructs a sampler that emits when the fraction
// crosses bucket boundaries (default 0.05) or when the phase changes.
func NewProgressSampler(bucketSize float64) *ProgressSampler {
	if bucketSize <= 0 || bucketSize > 1 {
		bucketSize = 0.05
	}
	return &ProgressSampler{bucketSize: bucketSize, lastBucket: -1}
}

// ShouldLog reports whether a progress event should be logged. Fraction is
// in [0,1]; negative means unknown.
func (s *ProgressSampler) ShouldLog(fraction float64, phase string) bool {
	if s == nil {
		return true
	}
	phase = strings.TrimSpace(phase)
	emit := false
	if phase != "" && phase != s.lastPhase {
		s.lastPhase = phase
		s.lastBucket = -1
		emit = true
	}
	if fraction >= 0 {
		if fraction > 1 {
			fraction = 1
		}
		// Small epsilon so 0.15/0.05 lands in bucket 3, not 2.
		bucket := int(fraction/s.bucketSize + 1e-9)
		if bucket > s.lastBucket {
			s.lastBucket = bucket
			emit = true
		}
	}
	return emit
}

// Reset clears the sampler state before a new export starts.
func (s *ProgressSampler) Reset() {
	if s == nil {
		return
	}
	s.lastPhase = ""
	s.lastBucket = -1
}
