// Package ffprobe provides a typed wrapper around ffprobe JSON output.
//
// Inspect runs ffprobe and returns a Result whose helpers expose the first
// video and audio streams, the container duration, and parsed frame rates.
package ffprobe
