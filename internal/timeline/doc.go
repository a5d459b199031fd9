// Package timeline defines the read-only data model an export consumes:
// tracks of video, audio, image, and text elements with trims and timing,
// plus the export settings and frame arithmetic shared by the compositor,
// mixer, and orchestrator.
package timeline
