package config

const (
	defaultConfigPath    = "~/.config/cutroom/config.toml"
	defaultOutputDir     = "~/Videos/cutroom"
	defaultLogDir        = "~/.local/share/cutroom/logs"
	defaultHistoryPath   = "~/.local/share/cutroom/history.db"
	defaultExportFormat  = "mp4"
	defaultExportQuality = "high"
	defaultExportFPS     = 30
	defaultMinWindow     = 2
	defaultBackground    = "#000000"
	defaultSampleRate    = 48000
	defaultChannels      = 2
	defaultWarningRatio  = 0.85
	defaultCriticalRatio = 0.95
	defaultFFmpegBinary  = "ffmpeg"
	defaultFFprobeBinary = "ffprobe"
	defaultLogFormat     = "console"
	defaultLogLevel      = "info"
	maxRenderWorkers     = 64
	maxAudioChannels     = 2
	minSampleRate        = 8000
	maxSampleRate        = 192000
	maxExportFPS         = 240
	maxExportDimension   = 8192
)

// Default returns a Config populated with repository defaults.
func Default() Config {
	return Config{
		Paths: Paths{
			OutputDir:   defaultOutputDir,
			WorkDir:     defaultWorkDir(),
			LogDir:      defaultLogDir,
			HistoryPath: defaultHistoryPath,
		},
		Export: Export{
			Format:  defaultExportFormat,
			Quality: defaultExportQuality,
			FPS:     defaultExportFPS,
		},
		Render: Render{
			MinWindow:  defaultMinWindow,
			Background: defaultBackground,
		},
		Audio: Audio{
			SampleRate: defaultSampleRate,
			Channels:   defaultChannels,
		},
		Memory: Memory{
			WarningRatio:  defaultWarningRatio,
			CriticalRatio: defaultCriticalRatio,
		},
		FFmpeg: FFmpeg{
			Binary:        defaultFFmpegBinary,
			FFprobeBinary: defaultFFprobeBinary,
		},
		Logging: Logging{
			Format: defaultLogFormat,
			Level:  defaultLogLevel,
		},
	}
}
