// Package main hosts the cutroom CLI entrypoint and command graph.
//
// The Cobra command tree loads configuration and project files, runs the
// platform checks, drives an export with live progress, and reads the
// export history. Rendering, mixing, and encoding live in the internal
// packages; commands here only wire them together and present results.
package main
