package export

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"cutroom/internal/sink"
	"cutroom/internal/timeline"
)

// Result is a finished export. The caller owns it; the orchestrator keeps no
// reference once the job settles.
type Result struct {
	Blob     sink.Blob
	MimeType string
	Metadata Metadata
	// Extras carries sink-specific artifacts such as an audio sidecar.
	Extras map[string]string
}

// FailedElement aggregates per-frame media failures of one element.
type FailedElement struct {
	ElementID  string `json:"element_id"`
	Kind       string `json:"kind"`
	Failures   int    `json:"failures"`
	FirstError string `json:"first_error"`
}

// Metadata describes an export run, successful or not.
type Metadata struct {
	ExportID       string            `json:"export_id"`
	Settings       timeline.Settings `json:"settings"`
	Duration       float64           `json:"duration"`
	TotalFrames    int               `json:"total_frames"`
	FramesPushed   int               `json:"frames_pushed"`
	AudioTracks    int               `json:"audio_tracks"`
	Workers        int               `json:"workers"`
	FailedElements []FailedElement   `json:"failed_elements,omitempty"`
	Warnings       []string          `json:"warnings,omitempty"`
	PeakMemory     uint64            `json:"peak_memory"`
	StartedAt      time.Time         `json:"started_at"`
	Elapsed        time.Duration     `json:"elapsed"`
}

// ProgressFunc receives fractions in [0, 1], non-decreasing within one
// export.
type ProgressFunc func(fraction float64, message string)

// Job is the future of one export.
type Job struct {
	ID string

	state  atomic.Int32
	done   chan struct{}
	once   sync.Once
	result *Result
	err    error
}

func newJob(id string) *Job {
	j := &Job{ID: id, done: make(chan struct{})}
	j.state.Store(int32(StateInitializing))
	return j
}

// Done is closed once the job settles.
func (j *Job) Done() <-chan struct{} { return j.done }

// State returns the job's current phase. After Done it is terminal.
func (j *Job) State() State { return State(j.state.Load()) }

// Wait blocks until the job settles or ctx ends. An expired ctx only stops
// waiting; use Orchestrator.Cancel to stop the export.
func (j *Job) Wait(ctx context.Context) (*Result, error) {
	select {
	case <-j.done:
		return j.result, j.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Err returns the settled error, or nil while the job is running.
func (j *Job) Err() error {
	select {
	case <-j.done:
		return j.err
	default:
		return nil
	}
}

func (j *Job) setState(s State) {
	for {
		cur := State(j.state.Load())
		if cur.Terminal() {
			return
		}
		if j.state.CompareAndSwap(int32(cur), int32(s)) {
			return
		}
	}
}

// settle resolves the job once. Later calls report false.
func (j *Job) settle(state State, res *Result, err error) bool {
	settled := false
	j.once.Do(func() {
		j.setState(state)
		j.result = res
		j.err = err
		close(j.done)
		settled = true
	})
	return settled
}
