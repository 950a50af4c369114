package percolate

import (
	"context"
	"log/slog"
	"os"
	"time"

	"github.com/hupe1980/percolate/mapper"
)

// Logger wraps slog.Logger with percolator-specific helpers.
// This provides structured logging with consistent field names.
type Logger struct {
	*slog.Logger
}

// NewLogger creates a new Logger with the given handler.
// If handler is nil, uses default text handler to stderr.
func NewLogger(handler slog.Handler) *Logger {
	if handler == nil {
		handler = slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
			Level: slog.LevelInfo,
		})
	}
	return &Logger{
		Logger: slog.New(handler),
	}
}

// NewJSONLogger creates a Logger that outputs JSON-formatted logs.
func NewJSONLogger(level slog.Level) *Logger {
	return NewLogger(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{
		Level: level,
	}))
}

// NewTextLogger creates a Logger that outputs human-readable text logs.
func NewTextLogger(level slog.Level) *Logger {
	return NewLogger(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: level,
	}))
}

// NoopLogger creates a Logger that discards all log output.
func NoopLogger() *Logger {
	return NewLogger(slog.DiscardHandler)
}

// WithID adds an id field to the logger.
func (l *Logger) WithID(id string) *Logger {
	return &Logger{
		Logger: l.Logger.With("id", id),
	}
}

// LogRegister logs the registration of a stored query.
func (l *Logger) LogRegister(ctx context.Context, id string, tags []mapper.ExtractionResult, err error) {
	if err != nil {
		l.WarnContext(ctx, "register rejected",
			"id", id,
			"error", err,
		)
		return
	}
	l.DebugContext(ctx, "register completed",
		"id", id,
		"extraction_result", tags,
	)
}

// LogBatchRegister logs a batch registration.
func (l *Logger) LogBatchRegister(ctx context.Context, count, failed int) {
	if failed > 0 {
		l.WarnContext(ctx, "batch register completed with failures",
			"total", count,
			"failed", failed,
			"success", count-failed,
		)
		return
	}
	l.InfoContext(ctx, "batch register completed",
		"count", count,
	)
}

// LogDelete logs a delete operation.
func (l *Logger) LogDelete(ctx context.Context, id string, err error) {
	if err != nil {
		l.DebugContext(ctx, "delete failed",
			"id", id,
			"error", err,
		)
		return
	}
	l.DebugContext(ctx, "delete completed",
		"id", id,
	)
}

// LogPercolate logs a percolation request.
func (l *Logger) LogPercolate(ctx context.Context, docs int, res *Result, elapsed time.Duration, err error) {
	if err != nil {
		l.ErrorContext(ctx, "percolate failed",
			"docs", docs,
			"error", err,
		)
		return
	}
	l.DebugContext(ctx, "percolate completed",
		"docs", docs,
		"mode", res.Mode.String(),
		"candidates", res.Candidates,
		"evaluated", res.Evaluated,
		"matches", len(res.Matches),
		"failures", len(res.Failures),
		"elapsed", elapsed,
	)
}

// LogSnapshot logs a snapshot operation.
func (l *Logger) LogSnapshot(ctx context.Context, name string, count int, err error) {
	if err != nil {
		l.ErrorContext(ctx, "snapshot failed",
			"name", name,
			"error", err,
		)
		return
	}
	l.InfoContext(ctx, "snapshot saved",
		"name", name,
		"count", count,
	)
}

// LogRestore logs a restore operation.
func (l *Logger) LogRestore(ctx context.Context, name string, count int, err error) {
	if err != nil {
		l.ErrorContext(ctx, "restore failed",
			"name", name,
			"error", err,
		)
		return
	}
	l.InfoContext(ctx, "restore completed",
		"name", name,
		"count", count,
	)
}
