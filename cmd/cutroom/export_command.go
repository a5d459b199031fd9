package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/gofrs/flock"
	"github.com/spf13/cobra"

	"cutroom/internal/config"
	"cutroom/internal/export"
	"cutroom/internal/history"
	"cutroom/internal/services"
	"cutroom/internal/sink"
	"cutroom/internal/timeline"
)

type exportFlags struct {
	outputDir string
	format    string
	quality   string
	fps       float64
	width     int
	height    int
	filename  string
}

func newExportCommand(ctx *commandContext) *cobra.Command {
	var flags exportFlags

	cmd := &cobra.Command{
		Use:   "export PROJECT",
		Short: "Render a project file to a video",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runExport(cmd, ctx, args[0], flags)
		},
	}

	cmd.Flags().StringVarP(&flags.outputDir, "output", "o", "", "Output directory (defaults to paths.output_dir)")
	cmd.Flags().StringVar(&flags.format, "format", "", "Container format: mp4, webm, mov, or avi")
	cmd.Flags().StringVar(&flags.quality, "quality", "", "Quality preset: low, medium, high, or ultra")
	cmd.Flags().Float64Var(&flags.fps, "fps", 0, "Frames per second")
	cmd.Flags().IntVar(&flags.width, "width", 0, "Output width in pixels (requires --height)")
	cmd.Flags().IntVar(&flags.height, "height", 0, "Output height in pixels (requires --width)")
	cmd.Flags().StringVar(&flags.filename, "filename", "", "Output file name without extension")
	return cmd
}

func runExport(cmd *cobra.Command, ctx *commandContext, projectPath string, flags exportFlags) error {
	cfg, err := ctx.ensureConfig()
	if err != nil {
		return err
	}
	logger, err := ctx.ensureLogger()
	if err != nil {
		return err
	}

	project, err := timeline.LoadProject(projectPath)
	if err != nil {
		return err
	}
	settings := resolveSettings(cfg, project.Settings, flags, projectPath).WithDefaults()
	if !timeline.ValidFilename(settings.Filename) {
		return services.Wrap(services.ErrValidation, "initializing", "validate settings",
			fmt.Sprintf("filename %q contains invalid characters", settings.Filename), nil)
	}

	outputDir := strings.TrimSpace(flags.outputDir)
	if outputDir == "" {
		outputDir = cfg.Paths.OutputDir
	}
	if outputDir, err = config.ExpandPath(outputDir); err != nil {
		return fmt.Errorf("resolve output directory: %w", err)
	}
	if err := os.MkdirAll(outputDir, 0o755); err != nil {
		return fmt.Errorf("create output directory: %w", err)
	}
	dest := filepath.Join(outputDir, settings.Filename+settings.Format.Extension())

	lock := flock.New(dest + ".lock")
	locked, err := lock.TryLock()
	if err != nil {
		return fmt.Errorf("lock output: %w", err)
	}
	if !locked {
		return fmt.Errorf("another cutroom process is writing %s", dest)
	}
	defer func() {
		_ = lock.Unlock()
		_ = os.Remove(lock.Path())
	}()

	var store *history.Store
	if path := strings.TrimSpace(cfg.Paths.HistoryPath); path != "" {
		if store, err = history.Open(path); err != nil {
			return fmt.Errorf("open history: %w", err)
		}
		defer store.Close()
	}
	recorder := newHistoryRecorder(store, dest, logger)

	runCtx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	orch, err := newOrchestrator(runCtx, cfg, logger, recorder)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	printer := newProgressPrinter(cmd.ErrOrStderr())
	fmt.Fprintf(out, "Exporting %s to %s (%dx%d @ %g fps)\n", projectPath, dest, settings.Width, settings.Height, settings.FPS)
	res, err := orch.Export(runCtx, &project.Timeline, settings, printer.update)
	printer.finish()
	if !errors.Is(err, services.ErrBusy) {
		recorder.wait(5 * time.Second)
	}
	if err != nil {
		fmt.Fprintf(cmd.ErrOrStderr(), "Export %s: %s\n", services.KindOf(err), services.Summary(err))
		return err
	}

	if err := persistResult(res, dest); err != nil {
		recordPersistFailure(cmd.Context(), recorder, res, dest, err)
		return err
	}
	printSummary(out, res, dest)
	return nil
}

// resolveSettings layers flags over the project over config defaults. An
// explicit size needs both dimensions.
func resolveSettings(cfg *config.Config, project timeline.Settings, flags exportFlags, projectPath string) timeline.Settings {
	s := timeline.Settings{
		Format:  timeline.Format(cfg.Export.Format),
		Quality: timeline.Quality(cfg.Export.Quality),
		FPS:     cfg.Export.FPS,
	}
	if cfg.Export.Width > 0 && cfg.Export.Height > 0 {
		s.Width, s.Height = cfg.Export.Width, cfg.Export.Height
	}
	overlay := func(format, quality string, fps float64, width, height int, filename string) {
		if strings.TrimSpace(format) != "" {
			s.Format = timeline.Format(format)
		}
		if strings.TrimSpace(quality) != "" {
			s.Quality = timeline.Quality(quality)
			s.Width, s.Height = 0, 0
		}
		if fps > 0 {
			s.FPS = fps
		}
		if width > 0 && height > 0 {
			s.Width, s.Height = width, height
		}
		if strings.TrimSpace(filename) != "" {
			s.Filename = filename
		}
	}
	overlay(string(project.Format), string(project.Quality), project.FPS, project.Width, project.Height, project.Filename)
	overlay(flags.format, flags.quality, flags.fps, flags.width, flags.height, flags.filename)
	if strings.TrimSpace(s.Filename) == "" {
		base := filepath.Base(projectPath)
		s.Filename = strings.TrimSuffix(base, filepath.Ext(base))
	}
	return s
}

func persistResult(res *export.Result, dest string) error {
	if err := sink.Persist(res.Blob, dest); err != nil {
		return services.Wrap(services.ErrEncoding, "persist", "write output", dest, err)
	}
	if sidecar, ok := res.Extras[sink.ExtraAudioSidecar]; ok {
		target := strings.TrimSuffix(dest, filepath.Ext(dest)) + ".wav"
		blob, err := sink.NewFileBlob(sidecar)
		if err != nil {
			return services.Wrap(services.ErrEncoding, "persist", "write audio sidecar", target, err)
		}
		if err := sink.Persist(blob, target); err != nil {
			return services.Wrap(services.ErrEncoding, "persist", "write audio sidecar", target, err)
		}
		res.Extras[sink.ExtraAudioSidecar] = target
	}
	return nil
}

// recordPersistFailure replaces the completed history entry with a failed
// one when the output could not be written.
func recordPersistFailure(ctx context.Context, recorder *historyRecorder, res *export.Result, dest string, cause error) {
	entry := entryFromReport(export.Report{
		ID:       res.Metadata.ExportID,
		State:    export.StateFailed,
		Err:      cause,
		Metadata: res.Metadata,
	}, dest)
	recorder.record(context.WithoutCancel(ctx), entry)
}

func printSummary(out io.Writer, res *export.Result, dest string) {
	meta := res.Metadata
	fmt.Fprintf(out, "Exported %s (%s, %d frames, %s)\n", dest, res.MimeType, meta.FramesPushed, meta.Elapsed.Round(10*time.Millisecond))
	if sidecar, ok := res.Extras[sink.ExtraAudioSidecar]; ok {
		fmt.Fprintf(out, "Audio written to %s\n", sidecar)
	}
	for _, w := range meta.Warnings {
		fmt.Fprintf(out, "Warning: %s\n", w)
	}
	if len(meta.FailedElements) == 0 {
		return
	}
	rows := make([][]string, 0, len(meta.FailedElements))
	for _, f := range meta.FailedElements {
		rows = append(rows, []string{f.ElementID, f.Kind, fmt.Sprintf("%d", f.Failures), f.FirstError})
	}
	fmt.Fprintln(out, "Some elements could not be drawn:")
	fmt.Fprintln(out, renderTable([]string{"Element", "Kind", "Frames", "First error"}, rows,
		[]columnAlignment{alignLeft, alignLeft, alignRight, alignLeft}))
}
