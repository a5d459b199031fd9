// Package logging assembles structured slog loggers and formatting helpers used
// across cutroom.
//
// It owns the console and JSON handlers, centralizes level and output
// plumbing, and exposes context-aware helpers so orchestrator code can tag
// log lines with export IDs and phases. A no-op logger is provided for tests
// and for library callers that do not supply one.
package logging
