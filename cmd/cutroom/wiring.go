package main

import (
	"context"
	"fmt"
	"log/slog"

	"cutroom/internal/config"
	"cutroom/internal/export"
	"cutroom/internal/media"
	"cutroom/internal/memory"
	"cutroom/internal/preflight"
	"cutroom/internal/sink"
	"cutroom/internal/timeline"
)

// newOrchestrator wires the platform collaborators described by cfg.
func newOrchestrator(ctx context.Context, cfg *config.Config, logger *slog.Logger, observer export.Observer) (*export.Orchestrator, error) {
	bg, err := timeline.ParseHexColor(cfg.Render.Background)
	if err != nil {
		return nil, fmt.Errorf("render.background: %w", err)
	}

	deps := export.Dependencies{
		Media: media.NewLibrary(cfg.FFmpegBinary()),
		Audio: &media.AudioDecoder{
			FFmpegBinary:  cfg.FFmpegBinary(),
			FFprobeBinary: cfg.FFprobeBinary(),
			Channels:      cfg.Audio.Channels,
		},
		Sinks: sink.DefaultRegistry(sink.Options{
			FFmpegBinary: cfg.FFmpegBinary(),
			WorkDir:      cfg.Paths.WorkDir,
			Logger:       logger,
		}),
		Checker:  preflight.NewSystemChecker(cfg),
		Observer: observer,
		Logger:   logger,
	}
	opts := export.Options{
		Workers:    cfg.Render.Workers,
		MinWindow:  cfg.Render.MinWindow,
		SampleRate: cfg.Audio.SampleRate,
		Channels:   cfg.Audio.Channels,
		Background: bg,
		FontPath:   cfg.Render.FontPath,
		Budget:     memoryBudget(ctx, cfg),
	}
	return export.New(deps, opts), nil
}

func memoryBudget(ctx context.Context, cfg *config.Config) memory.Budget {
	budget := memory.Budget{Limit: cfg.MemoryBudgetBytes()}
	if budget.Limit == 0 {
		budget = memory.DefaultBudget(ctx)
	}
	budget.WarningRatio = cfg.Memory.WarningRatio
	budget.CriticalRatio = cfg.Memory.CriticalRatio
	return budget.WithDefaults()
}
