package konkord

import (
	"context"
	"log/slog"
	"os"
)

// Logger wraps slog.Logger with konkord-specific context.
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
// level sets the minimum log level (e.g., slog.LevelDebug, slog.LevelInfo).
func NewJSONLogger(level slog.Level) *Logger {
	handler := slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{
		Level: level,
	})
	return &Logger{
		Logger: slog.New(handler),
	}
}

// NewTextLogger creates a Logger that outputs human-readable text logs.
func NewTextLogger(level slog.Level) *Logger {
	handler := slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: level,
	})
	return &Logger{
		Logger: slog.New(handler),
	}
}

// NoopLogger creates a Logger that discards all log output.
// Use this to disable logging entirely.
func NoopLogger() *Logger {
	handler := slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: slog.Level(1000), // Unreachable level
	})
	return &Logger{
		Logger: slog.New(handler),
	}
}

// WithFile adds a source-file field to the logger.
func (l *Logger) WithFile(fileID string) *Logger {
	return &Logger{
		Logger: l.Logger.With("file", fileID),
	}
}

// WithLemma adds a lemma field to the logger.
func (l *Logger) WithLemma(lemma string) *Logger {
	return &Logger{
		Logger: l.Logger.With("lemma", lemma),
	}
}

// LogIngest logs an ingestion operation.
func (l *Logger) LogIngest(ctx context.Context, fileID string, segments int, err error) {
	if err != nil {
		l.ErrorContext(ctx, "ingestion failed",
			"file", fileID,
			"error", err,
		)
	} else {
		l.InfoContext(ctx, "ingestion completed",
			"file", fileID,
			"segments", segments,
		)
	}
}

// LogRebuild logs a concordance rebuild.
func (l *Logger) LogRebuild(ctx context.Context, lemmas int, err error) {
	if err != nil {
		l.ErrorContext(ctx, "concordance rebuild failed",
			"error", err,
		)
	} else {
		l.InfoContext(ctx, "concordance rebuilt",
			"lemmas", lemmas,
		)
	}
}

// LogLookup logs a concordance lookup.
func (l *Logger) LogLookup(ctx context.Context, lemma string, occurrences int, err error) {
	if err != nil {
		l.DebugContext(ctx, "lookup failed",
			"lemma", lemma,
			"error", err,
		)
	} else {
		l.DebugContext(ctx, "lookup completed",
			"lemma", lemma,
			"occurrences", occurrences,
		)
	}
}

// LogBackup logs a backup operation.
func (l *Logger) LogBackup(ctx context.Context, err error) {
	if err != nil {
		l.WarnContext(ctx, "backup failed",
			"error", err,
		)
	} else {
		l.InfoContext(ctx, "backup completed")
	}
}
