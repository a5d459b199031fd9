package history

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"
)

// Status is the terminal state an export finished in.
type Status string

const (
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
	StatusCancelled Status = "cancelled"
)

// Entry is one finished export.
type Entry struct {
	ID             string
	Filename       string
	Format         string
	Quality        string
	Width          int
	Height         int
	FPS            float64
	Duration       float64
	Status         Status
	ErrorKind      string
	ErrorMessage   string
	FramesPushed   int
	TotalFrames    int
	FailedElements int
	OutputPath     string
	MimeType       string
	SizeBytes      int64
	StartedAt      time.Time
	FinishedAt     time.Time
}

// Elapsed returns the wall time the export took.
func (e Entry) Elapsed() time.Duration {
	if e.FinishedAt.Before(e.StartedAt) {
		return 0
	}
	return e.FinishedAt.Sub(e.StartedAt)
}

// Store persists export history in SQLite.
type Store struct {
	db   *sql.DB
	path string
}

const (
	sqliteBusyCode          = 5
	busyRetryAttempts       = 5
	busyRetryInitialBackoff = 10 * time.Millisecond
	busyRetryMaxBackoff     = 200 * time.Millisecond
)

func isSQLiteBusy(err error) bool {
	if err == nil {
		return false
	}
	var coder interface{ Code() int }
	if errors.As(err, &coder) && coder.Code() == sqliteBusyCode {
		return true
	}
	msg := err.Error()
	return strings.Contains(msg, "SQLITE_BUSY") || strings.Contains(msg, "database is locked")
}

func retryOnBusy(ctx context.Context, op func() error) error {
	delay := busyRetryInitialBackoff
	var lastErr error
	for attempt := 0; attempt < busyRetryAttempts; attempt++ {
		lastErr = op()
		if lastErr == nil {
			return nil
		}
		if !isSQLiteBusy(lastErr) || attempt == busyRetryAttempts-1 {
			break
		}
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return ctx.Err()
		}
		if next := delay * 2; next <= busyRetryMaxBackoff {
			delay = next
		}
	}
	return lastErr
}

// Open creates or opens the history database at path.
func Open(path string) (*Store, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return nil, errors.New("history path required")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create history directory: %w", err)
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout = 5000",
	}
	for _, pragma := range pragmas {
		if _, execErr := db.Exec(pragma); execErr != nil {
			_ = db.Close()
			return nil, fmt.Errorf("apply pragma %q: %w", pragma, execErr)
		}
	}

	store := &Store{db: db, path: path}
	if err := store.initSchema(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}
	return store, nil
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// Path returns the database file.
func (s *Store) Path() string { return s.path }

// Record inserts or replaces an entry keyed by ID.
func (s *Store) Record(ctx context.Context, e Entry) error {
	if strings.TrimSpace(e.ID) == "" {
		return errors.New("record history: empty export id")
	}
	if e.FinishedAt.IsZero() {
		e.FinishedAt = time.Now()
	}
	if e.StartedAt.IsZero() {
		e.StartedAt = e.FinishedAt
	}
	return retryOnBusy(ctx, func() error {
		_, err := s.db.ExecContext(ctx,
			`INSERT OR REPLACE INTO exports (
                id, filename, format, quality, width, height, fps, duration_seconds,
                status, error_kind, error_message, frames_pushed, total_frames,
                failed_elements, output_path, mime_type, size_bytes, started_at, finished_at
            ) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			e.ID, e.Filename, e.Format, e.Quality, e.Width, e.Height, e.FPS, e.Duration,
			string(e.Status), nullableString(e.ErrorKind), nullableString(e.ErrorMessage),
			e.FramesPushed, e.TotalFrames, e.FailedElements,
			nullableString(e.OutputPath), nullableString(e.MimeType), e.SizeBytes,
			e.StartedAt.UTC().Format(time.RFC3339Nano), e.FinishedAt.UTC().Format(time.RFC3339Nano),
		)
		if err != nil {
			return fmt.Errorf("insert export %s: %w", e.ID, err)
		}
		return nil
	})
}

// List returns the most recent entries, newest first. A non-positive limit
// returns everything.
func (s *Store) List(ctx context.Context, limit int) ([]Entry, error) {
	query := `SELECT id, filename, format, quality, width, height, fps, duration_seconds,
            status, error_kind, error_message, frames_pushed, total_frames,
            failed_elements, output_path, mime_type, size_bytes, started_at, finished_at
        FROM exports ORDER BY finished_at DESC, id`
	args := []any{}
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}

	var entries []Entry
	err := retryOnBusy(ctx, func() error {
		entries = entries[:0]
		rows, err := s.db.QueryContext(ctx, query, args...)
		if err != nil {
			return fmt.Errorf("list exports: %w", err)
		}
		defer rows.Close()
		for rows.Next() {
			e, err := scanEntry(rows)
			if err != nil {
				return err
			}
			entries = append(entries, e)
		}
		return rows.Err()
	})
	if err != nil {
		return nil, err
	}
	return entries, nil
}

func scanEntry(rows *sql.Rows) (Entry, error) {
	var (
		e                                  Entry
		status, started, finished          string
		errorKind, errorMessage, out, mime sql.NullString
	)
	if err := rows.Scan(
		&e.ID, &e.Filename, &e.Format, &e.Quality, &e.Width, &e.Height, &e.FPS, &e.Duration,
		&status, &errorKind, &errorMessage, &e.FramesPushed, &e.TotalFrames,
		&e.FailedElements, &out, &mime, &e.SizeBytes, &started, &finished,
	); err != nil {
		return Entry{}, fmt.Errorf("scan export: %w", err)
	}
	e.Status = Status(status)
	e.ErrorKind = errorKind.String
	e.ErrorMessage = errorMessage.String
	e.OutputPath = out.String
	e.MimeType = mime.String
	e.StartedAt = parseTime(started)
	e.FinishedAt = parseTime(finished)
	return e, nil
}

func parseTime(value string) time.Time {
	t, err := time.Parse(time.RFC3339Nano, value)
	if err != nil {
		return time.Time{}
	}
	return t
}

func nullableString(value string) any {
	if strings.TrimSpace(value) == "" {
		return nil
	}
	return value
}
