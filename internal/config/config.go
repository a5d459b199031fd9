package config

import (
	_ "embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/pelletier/go-toml/v2"
)

//go:embed sample_config.toml
var sampleConfig string

// Paths contains directory and file locations.
type Paths struct {
	OutputDir   string `toml:"output_dir"`
	WorkDir     string `toml:"work_dir"`
	LogDir      string `toml:"log_dir"`
	HistoryPath string `toml:"history_path"`
}

// Export contains the default export settings applied when a project file
// or command-line flag does not override them.
type Export struct {
	Format  string  `toml:"format"`
	Quality string  `toml:"quality"`
	FPS     float64 `toml:"fps"`
	// Width and Height override the quality preset when both are positive.
	Width  int `toml:"width"`
	Height int `toml:"height"`
}

// Render contains frame rendering settings.
type Render struct {
	// Workers is the render pool size. Zero selects min(GOMAXPROCS*2, 8).
	Workers int `toml:"workers"`
	// MinWindow is the reorder window kept under memory pressure.
	MinWindow  int    `toml:"min_window"`
	FontPath   string `toml:"font_path"`
	Background string `toml:"background"`
}

// Audio contains mixer output settings.
type Audio struct {
	SampleRate int `toml:"sample_rate"`
	Channels   int `toml:"channels"`
}

// Memory contains the export memory budget.
type Memory struct {
	// BudgetMB of zero derives the budget from available system memory.
	BudgetMB      int     `toml:"budget_mb"`
	WarningRatio  float64 `toml:"warning_ratio"`
	CriticalRatio float64 `toml:"critical_ratio"`
}

// FFmpeg contains encoder and decoder binary locations.
type FFmpeg struct {
	Binary        string `toml:"binary"`
	FFprobeBinary string `toml:"ffprobe_binary"`
}

// Logging contains configuration for log output.
type Logging struct {
	Format string `toml:"format"`
	Level  string `toml:"level"`
}

// Config encapsulates all configuration values for cutroom.
//
// Configuration sections by subsystem:
//   - Paths: output, scratch, log, and history locations
//   - Export: default format, quality, and frame rate
//   - Render: worker pool size, memory-pressure window, text font, background
//   - Audio: mixer sample rate and channel count
//   - Memory: budget and warning/critical ratios
//   - FFmpeg: encoder binaries
//   - Logging: log format and level
type Config struct {
	Paths   Paths   `toml:"paths"`
	Export  Export  `toml:"export"`
	Render  Render  `toml:"render"`
	Audio   Audio   `toml:"audio"`
	Memory  Memory  `toml:"memory"`
	FFmpeg  FFmpeg  `toml:"ffmpeg"`
	Logging Logging `toml:"logging"`
}

// DefaultConfigPath returns the absolute path to the default configuration file location.
func DefaultConfigPath() (string, error) {
	return expandPath(defaultConfigPath)
}

// Load locates, parses, and validates a configuration file. The returned config has all
// path fields expanded and normalized.
func Load(path string) (*Config, string, bool, error) {
	cfg := Default()

	resolvedPath, exists, err := resolveConfigPath(path)
	if err != nil {
		return nil, "", false, err
	}

	if exists {
		file, err := os.Open(resolvedPath)
		if err != nil {
			return nil, "", false, fmt.Errorf("open config: %w", err)
		}
		defer file.Close()

		decoder := toml.NewDecoder(file)
		if err := decoder.Decode(&cfg); err != nil {
			return nil, "", false, fmt.Errorf("parse config: %w", err)
		}
	}

	if err := cfg.normalize(); err != nil {
		return nil, "", false, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, "", false, err
	}

	return &cfg, resolvedPath, exists, nil
}

func resolveConfigPath(path string) (string, bool, error) {
	if path != "" {
		expanded, err := expandPath(path)
		if err != nil {
			return "", false, err
		}
		_, err = os.Stat(expanded)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return expanded, false, nil
			}
			return "", false, fmt.Errorf("stat config: %w", err)
		}
		return expanded, true, nil
	}

	defaultPath, err := expandPath(defaultConfigPath)
	if err != nil {
		return "", false, err
	}

	projectPath, err := filepath.Abs("cutroom.toml")
	if err != nil {
		return "", false, err
	}

	if info, err := os.Stat(defaultPath); err == nil && !info.IsDir() {
		return defaultPath, true, nil
	}
	if info, err := os.Stat(projectPath); err == nil && !info.IsDir() {
		return projectPath, true, nil
	}

	return defaultPath, false, nil
}

// EnsureDirectories creates the output, scratch, and log directories.
func (c *Config) EnsureDirectories() error {
	dirs := []string{c.Paths.OutputDir, c.Paths.WorkDir, c.Paths.LogDir}
	if c.Paths.HistoryPath != "" {
		dirs = append(dirs, filepath.Dir(c.Paths.HistoryPath))
	}
	for _, dir := range dirs {
		if strings.TrimSpace(dir) == "" {
			continue
		}
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create directory %q: %w", dir, err)
		}
	}
	return nil
}

// FFmpegBinary returns the ffmpeg executable used for encoding and seeking.
func (c *Config) FFmpegBinary() string {
	if c == nil || strings.TrimSpace(c.FFmpeg.Binary) == "" {
		return defaultFFmpegBinary
	}
	return c.FFmpeg.Binary
}

// FFprobeBinary returns the ffprobe executable used for media inspection.
func (c *Config) FFprobeBinary() string {
	if c == nil || strings.TrimSpace(c.FFmpeg.FFprobeBinary) == "" {
		return defaultFFprobeBinary
	}
	return c.FFmpeg.FFprobeBinary
}

// MemoryBudgetBytes returns the configured budget in bytes, or zero when the
// budget should be derived from the host.
func (c *Config) MemoryBudgetBytes() uint64 {
	if c == nil || c.Memory.BudgetMB <= 0 {
		return 0
	}
	return uint64(c.Memory.BudgetMB) << 20
}

func expandPath(pathValue string) (string, error) {
	if pathValue == "" {
		return pathValue, nil
	}
	if strings.HasPrefix(pathValue, "~") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolve home directory: %w", err)
		}
		if pathValue == "~" {
			pathValue = home
		} else if len(pathValue) > 1 && (pathValue[1] == '/' || pathValue[1] == '\\') {
			pathValue = filepath.Join(home, pathValue[2:])
		}
	}
	cleaned := filepath.Clean(pathValue)
	absolute, err := filepath.Abs(cleaned)
	if err != nil {
		return "", fmt.Errorf("resolve absolute path for %q: %w", cleaned, err)
	}
	return absolute, nil
}

// ExpandPath exposes the repository path expansion rules for other packages.
func ExpandPath(pathValue string) (string, error) {
	return expandPath(pathValue)
}

func defaultWorkDir() string {
	if base, ok := os.LookupEnv("XDG_CACHE_HOME"); ok && strings.TrimSpace(base) != "" {
		return filepath.Join(base, "cutroom", "work")
	}
	return "~/.cache/cutroom/work"
}

// CreateSample writes a sample configuration file to the specified location.
func CreateSample(path string) error {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create config directory: %w", err)
		}
	}

	if err := os.WriteFile(path, []byte(sampleConfig), 0o644); err != nil {
		return fmt.Errorf("write sample config: %w", err)
	}
	return nil
}
