package config

import (
	"fmt"
	"os"
	"strings"
)

func (c *Config) normalize() error {
	if err := c.normalizePaths(); err != nil {
		return err
	}
	c.normalizeExport()
	if err := c.normalizeRender(); err != nil {
		return err
	}
	c.normalizeAudio()
	c.normalizeMemory()
	c.normalizeFFmpeg()
	c.normalizeLogging()
	return nil
}

func (c *Config) normalizePaths() error {
	var err error
	if strings.TrimSpace(c.Paths.OutputDir) == "" {
		c.Paths.OutputDir = defaultOutputDir
	}
	if c.Paths.OutputDir, err = expandPath(c.Paths.OutputDir); err != nil {
		return fmt.Errorf("paths.output_dir: %w", err)
	}
	if strings.TrimSpace(c.Paths.WorkDir) == "" {
		c.Paths.WorkDir = defaultWorkDir()
	}
	if c.Paths.WorkDir, err = expandPath(c.Paths.WorkDir); err != nil {
		return fmt.Errorf("paths.work_dir: %w", err)
	}
	if c.Paths.LogDir, err = expandPath(strings.TrimSpace(c.Paths.LogDir)); err != nil {
		return fmt.Errorf("paths.log_dir: %w", err)
	}
	if c.Paths.HistoryPath, err = expandPath(strings.TrimSpace(c.Paths.HistoryPath)); err != nil {
		return fmt.Errorf("paths.history_path: %w", err)
	}
	return nil
}

func (c *Config) normalizeExport() {
	c.Export.Format = strings.ToLower(strings.TrimSpace(c.Export.Format))
	if c.Export.Format == "" {
		c.Export.Format = defaultExportFormat
	}
	c.Export.Quality = strings.ToLower(strings.TrimSpace(c.Export.Quality))
	if c.Export.Quality == "" {
		c.Export.Quality = defaultExportQuality
	}
	if c.Export.FPS == 0 {
		c.Export.FPS = defaultExportFPS
	}
}

func (c *Config) normalizeRender() error {
	if c.Render.MinWindow == 0 {
		c.Render.MinWindow = defaultMinWindow
	}
	c.Render.Background = strings.ToLower(strings.TrimSpace(c.Render.Background))
	if c.Render.Background == "" {
		c.Render.Background = defaultBackground
	}
	if !strings.HasPrefix(c.Render.Background, "#") {
		c.Render.Background = "#" + c.Render.Background
	}
	var err error
	if c.Render.FontPath, err = expandPath(strings.TrimSpace(c.Render.FontPath)); err != nil {
		return fmt.Errorf("render.font_path: %w", err)
	}
	return nil
}

func (c *Config) normalizeAudio() {
	if c.Audio.SampleRate == 0 {
		c.Audio.SampleRate = defaultSampleRate
	}
	if c.Audio.Channels == 0 {
		c.Audio.Channels = defaultChannels
	}
}

func (c *Config) normalizeMemory() {
	if c.Memory.WarningRatio == 0 {
		c.Memory.WarningRatio = defaultWarningRatio
	}
	if c.Memory.CriticalRatio == 0 {
		c.Memory.CriticalRatio = defaultCriticalRatio
	}
}

func (c *Config) normalizeFFmpeg() {
	if value, ok := os.LookupEnv("CUTROOM_FFMPEG"); ok && strings.TrimSpace(value) != "" {
		c.FFmpeg.Binary = value
	}
	c.FFmpeg.Binary = strings.TrimSpace(c.FFmpeg.Binary)
	if c.FFmpeg.Binary == "" {
		c.FFmpeg.Binary = defaultFFmpegBinary
	}
	c.FFmpeg.FFprobeBinary = strings.TrimSpace(c.FFmpeg.FFprobeBinary)
	if c.FFmpeg.FFprobeBinary == "" {
		c.FFmpeg.FFprobeBinary = defaultFFprobeBinary
	}
}

func (c *Config) normalizeLogging() {
	c.Logging.Format = strings.ToLower(strings.TrimSpace(c.Logging.Format))
	if c.Logging.Format == "" {
		c.Logging.Format = defaultLogFormat
	}
	c.Logging.Level = strings.ToLower(strings.TrimSpace(c.Logging.Level))
	if c.Logging.Level == "" {
		c.Logging.Level = defaultLogLevel
	}
}
