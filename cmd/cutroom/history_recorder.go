package main

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"cutroom/internal/export"
	"cutroom/internal/history"
	"cutroom/internal/logging"
	"cutroom/internal/services"
)

// historyRecorder writes every finished export to the history store. The
// observer runs after the job settles, so callers wait on it before closing
// the store.
type historyRecorder struct {
	store      *history.Store
	outputPath string
	logger     *slog.Logger

	once sync.Once
	done chan struct{}
}

func newHistoryRecorder(store *history.Store, outputPath string, logger *slog.Logger) *historyRecorder {
	return &historyRecorder{store: store, outputPath: outputPath, logger: logger, done: make(chan struct{})}
}

func (h *historyRecorder) ExportFinished(ctx context.Context, report export.Report) {
	defer h.once.Do(func() { close(h.done) })
	h.record(ctx, entryFromReport(report, h.outputPath))
}

// record writes entry, replacing any earlier entry with the same id. Write
// failures are logged and otherwise ignored.
func (h *historyRecorder) record(ctx context.Context, entry history.Entry) {
	if h.store == nil {
		return
	}
	if err := h.store.Record(ctx, entry); err != nil {
		logging.WarnWithContext(h.logger, "history record failed", "history_write_failed",
			logging.String(logging.FieldExportID, entry.ID),
			logging.String("status", string(entry.Status)),
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "check paths.history_path is writable"),
			logging.String(logging.FieldImpact, "export is missing from cutroom history"),
		)
	}
}

// wait blocks until ExportFinished returns or timeout elapses.
func (h *historyRecorder) wait(timeout time.Duration) {
	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case <-h.done:
	case <-timer.C:
	}
}

func entryFromReport(report export.Report, outputPath string) history.Entry {
	meta := report.Metadata
	entry := history.Entry{
		ID:             report.ID,
		Filename:       meta.Settings.Filename,
		Format:         string(meta.Settings.Format),
		Quality:        string(meta.Settings.Quality),
		Width:          meta.Settings.Width,
		Height:         meta.Settings.Height,
		FPS:            meta.Settings.FPS,
		Duration:       meta.Duration,
		FramesPushed:   meta.FramesPushed,
		TotalFrames:    meta.TotalFrames,
		FailedElements: len(meta.FailedElements),
		StartedAt:      meta.StartedAt,
		FinishedAt:     meta.StartedAt.Add(meta.Elapsed),
	}
	if entry.StartedAt.IsZero() {
		entry.StartedAt = time.Now()
		entry.FinishedAt = entry.StartedAt
	}
	switch report.State {
	case export.StateCompleted:
		entry.Status = history.StatusCompleted
		entry.OutputPath = outputPath
		if res := report.Result; res != nil {
			entry.MimeType = res.MimeType
			if res.Blob != nil {
				entry.SizeBytes = res.Blob.Size()
			}
		}
	case export.StateCancelled:
		entry.Status = history.StatusCancelled
		entry.ErrorKind = string(services.KindCancelled)
	default:
		entry.Status = history.StatusFailed
		entry.ErrorKind = string(services.KindOf(report.Err))
		if report.Err != nil {
			entry.ErrorMessage = report.Err.Error()
		}
	}
	return entry
}
