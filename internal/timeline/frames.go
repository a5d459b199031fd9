package timeline

import "math"

// frameEpsilon absorbs float error in duration*fps so 10s at 30fps is 300
// frames rather than 301.
const frameEpsilon = 1e-9

// FrameDescriptor identifies one output frame.
type FrameDescriptor struct {
	FrameNumber int
	Timestamp   float64
}

// TotalFrames returns ceil(duration*fps), or zero for non-positive inputs.
// Counts beyond int range saturate at math.MaxInt.
func TotalFrames(duration, fps float64) int {
	if duration <= 0 || fps <= 0 || math.IsNaN(duration) || math.IsNaN(fps) {
		return 0
	}
	n := math.Ceil(duration*fps - frameEpsilon)
	if n >= math.MaxInt {
		return math.MaxInt
	}
	return int(n)
}

// Frame returns the descriptor of frame n at the given rate.
func Frame(n int, fps float64) FrameDescriptor {
	return FrameDescriptor{FrameNumber: n, Timestamp: float64(n) / fps}
}
