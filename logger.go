package seqcomp

import (
	"context"
	"log/slog"
	"os"
)

// Logger wraps slog.Logger with seqcomp-specific context.
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

// WithShard adds a shard field to the logger.
func (l *Logger) WithShard(shard int) *Logger {
	return &Logger{
		Logger: l.Logger.With("shard", shard),
	}
}

// WithPath adds a path field to the logger.
func (l *Logger) WithPath(path string) *Logger {
	return &Logger{
		Logger: l.Logger.With("path", path),
	}
}

// WithShape adds the slice dimensions and element type to the logger.
func (l *Logger) WithShape(dims []int, dtype string) *Logger {
	return &Logger{
		Logger: l.Logger.With("dims", dims, "dtype", dtype),
	}
}

// LogAppend logs an append operation.
func (l *Logger) LogAppend(ctx context.Context, shard, index int, err error) {
	if err != nil {
		l.ErrorContext(ctx, "append failed",
			"shard", shard,
			"error", err,
		)
	} else {
		l.DebugContext(ctx, "append completed",
			"shard", shard,
			"index", index,
		)
	}
}

// LogGet logs a read of one slice.
func (l *Logger) LogGet(ctx context.Context, index int, err error) {
	if err != nil {
		l.ErrorContext(ctx, "get failed",
			"index", index,
			"error", err,
		)
	} else {
		l.DebugContext(ctx, "get completed",
			"index", index,
		)
	}
}

// LogGetMany logs a batch read.
func (l *Logger) LogGetMany(ctx context.Context, count int, err error) {
	if err != nil {
		l.ErrorContext(ctx, "get many failed",
			"count", count,
			"error", err,
		)
	} else {
		l.DebugContext(ctx, "get many completed",
			"count", count,
		)
	}
}

// LogSave logs a save operation.
func (l *Logger) LogSave(ctx context.Context, path string, count int, err error) {
	if err != nil {
		l.ErrorContext(ctx, "save failed",
			"path", path,
			"error", err,
		)
	} else {
		l.InfoContext(ctx, "sequence saved",
			"path", path,
			"count", count,
		)
	}
}

// LogLoad logs a load operation.
func (l *Logger) LogLoad(ctx context.Context, path string, count int, err error) {
	if err != nil {
		l.ErrorContext(ctx, "load failed",
			"path", path,
			"error", err,
		)
	} else {
		l.InfoContext(ctx, "sequence loaded",
			"path", path,
			"count", count,
		)
	}
}

// LogClose logs the release of a sequence.
func (l *Logger) LogClose(ctx context.Context, count int, totalSize int64, err error) {
	if err != nil {
		l.ErrorContext(ctx, "close failed",
			"count", count,
			"error", err,
		)
	} else {
		l.DebugContext(ctx, "sequence closed",
			"count", count,
			"total_size", totalSize,
		)
	}
}

// LogExport logs an export or import of a saved sequence.
func (l *Logger) LogExport(ctx context.Context, op, name string, files int, err error) {
	if err != nil {
		l.ErrorContext(ctx, op+" failed",
			"name", name,
			"error", err,
		)
	} else {
		l.InfoContext(ctx, op+" completed",
			"name", name,
			"files", files,
		)
	}
}
