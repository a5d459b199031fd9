// Package config loads, normalizes, and validates cutroom configuration data.
//
// It supplies repository defaults, expands user paths (including tilde
// shortcuts), reads TOML files, and honours the CUTROOM_FFMPEG environment
// override. The Config type centralizes the export defaults, render pool,
// memory budget, and encoder binaries the CLI needs.
//
// Always obtain settings through this package so downstream code receives
// sanitized paths, canonical log formats, and clear validation errors.
package config
