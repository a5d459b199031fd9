// Package deps resolves the external binaries cutroom shells out to and
// lists the encoders an ffmpeg build provides.
package deps
