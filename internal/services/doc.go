// Package services defines shared utilities consumed by the export pipeline
// and its external collaborators.
//
// Key responsibilities:
//   - Context helpers that stamp export IDs and orchestrator phases for
//     logging.
//   - Structured error markers plus the Wrap helper that translate failures
//     into stable kinds (validation, compatibility, media_load, memory,
//     encoding, cancelled, busy) with a human-readable summary.
//   - Error types for failures that carry structure: missing platform
//     facilities and per-element media failures.
//
// Use these helpers when wiring new pipeline components so failure
// classification stays uniform from the sink up to the CLI.
package services
