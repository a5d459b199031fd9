// Package sink defines the encoder contract the export pipeline pushes
// frames into, and the ffmpeg and MJPEG encoders behind it.
//
// Sinks built by a Registry are wrapped in a Guard that turns contract
// violations into encoding errors: one Start, contiguous frame indices from
// zero, at most one SetAudio before the first frame, one Stop, and an
// idempotent Cleanup that is safe before Start.
//
// Finished results are moved out of the sink's scratch directory before
// Stop returns, so Cleanup never removes a blob the caller owns.
package sink
