package config

import (
	"errors"
	"fmt"
	"slices"

	"cutroom/internal/timeline"
)

var (
	supportedFormats   = []string{"mp4", "webm", "mov", "avi"}
	supportedQualities = []string{"low", "medium", "high", "ultra"}
	supportedLogLevels = []string{"debug", "info", "warn", "warning", "error"}
)

// Validate ensures the configuration is usable.
func (c *Config) Validate() error {
	if err := c.validateExport(); err != nil {
		return err
	}
	if err := c.validateRender(); err != nil {
		return err
	}
	if err := c.validateAudio(); err != nil {
		return err
	}
	if err := c.validateMemory(); err != nil {
		return err
	}
	if err := c.validateLogging(); err != nil {
		return err
	}
	return nil
}

func (c *Config) validateExport() error {
	if !slices.Contains(supportedFormats, c.Export.Format) {
		return fmt.Errorf("export.format %q is not supported (expected one of %v)", c.Export.Format, supportedFormats)
	}
	if !slices.Contains(supportedQualities, c.Export.Quality) {
		return fmt.Errorf("export.quality %q is not supported (expected one of %v)", c.Export.Quality, supportedQualities)
	}
	if c.Export.FPS <= 0 || c.Export.FPS > maxExportFPS {
		return fmt.Errorf("export.fps must be between 0 and %d", maxExportFPS)
	}
	if c.Export.Width < 0 || c.Export.Height < 0 {
		return errors.New("export.width and export.height must be >= 0")
	}
	if (c.Export.Width == 0) != (c.Export.Height == 0) {
		return errors.New("export.width and export.height must be set together")
	}
	if c.Export.Width > maxExportDimension || c.Export.Height > maxExportDimension {
		return fmt.Errorf("export dimensions must not exceed %d", maxExportDimension)
	}
	if c.Export.Width%2 != 0 || c.Export.Height%2 != 0 {
		return errors.New("export.width and export.height must be even")
	}
	return nil
}

func (c *Config) validateRender() error {
	if c.Render.Workers < 0 || c.Render.Workers > maxRenderWorkers {
		return fmt.Errorf("render.workers must be between 0 and %d", maxRenderWorkers)
	}
	if c.Render.MinWindow < 1 {
		return errors.New("render.min_window must be positive")
	}
	if _, err := timeline.ParseHexColor(c.Render.Background); err != nil {
		return fmt.Errorf("render.background: %w", err)
	}
	return nil
}

func (c *Config) validateAudio() error {
	if c.Audio.SampleRate < minSampleRate || c.Audio.SampleRate > maxSampleRate {
		return fmt.Errorf("audio.sample_rate must be between %d and %d", minSampleRate, maxSampleRate)
	}
	if c.Audio.Channels < 1 || c.Audio.Channels > maxAudioChannels {
		return fmt.Errorf("audio.channels must be 1 or %d", maxAudioChannels)
	}
	return nil
}

func (c *Config) validateMemory() error {
	if c.Memory.BudgetMB < 0 {
		return errors.New("memory.budget_mb must be >= 0")
	}
	if c.Memory.WarningRatio <= 0 || c.Memory.WarningRatio >= 1 {
		return errors.New("memory.warning_ratio must be between 0 and 1")
	}
	if c.Memory.CriticalRatio <= c.Memory.WarningRatio || c.Memory.CriticalRatio > 1 {
		return errors.New("memory.critical_ratio must be greater than memory.warning_ratio and at most 1")
	}
	return nil
}

func (c *Config) validateLogging() error {
	switch c.Logging.Format {
	case "console", "json":
	default:
		return fmt.Errorf("logging.format %q is not supported (expected console or json)", c.Logging.Format)
	}
	if !slices.Contains(supportedLogLevels, c.Logging.Level) {
		return fmt.Errorf("logging.level %q is not supported", c.Logging.Level)
	}
	return nil
}
