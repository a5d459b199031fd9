// Package media opens element sources for drawing and decodes them for
// mixing.
//
// Still images (png, jpeg, gif, webp) are decoded in-process and cached per
// source. Everything else is treated as video: each seek runs ffmpeg for a
// single PNG frame. Audio decoding reads WAV directly and pipes other
// containers through ffmpeg as interleaved float32 at the mixer rate.
//
// Every failure is a *Error unwrapping to ErrUnsupported or ErrCorrupt and
// to services.ErrMediaLoad, so callers can treat it as a local,
// per-element failure.
package media
