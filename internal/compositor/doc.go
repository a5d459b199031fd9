// Package compositor resolves which elements are visible at a timestamp and
// draws them onto pooled RGBA frame buffers.
//
// Visibility is half-open, [start, end), so the frame at a cut point shows
// only the incoming element. Placements are drawn bottom-up by track index,
// then by position within the track. A failed draw skips that element for
// that frame only and is reported in the FrameReport.
package compositor
