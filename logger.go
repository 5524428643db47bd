package linkdb

import (
	"context"
	"log/slog"
	"os"
)

// Logger wraps slog.Logger with linkdb-specific context.
// All helpers use the same field names: dir, gid, page, bytes, error.
type Logger struct {
	*slog.Logger
}

// NewLogger returns a Logger writing to handler, or to an info-level text
// handler on stderr when handler is nil.
func NewLogger(handler slog.Handler) *Logger {
	if handler == nil {
		handler = slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelInfo})
	}
	return &Logger{Logger: slog.New(handler)}
}

// NewJSONLogger logs JSON lines to stderr at level and above.
func NewJSONLogger(level slog.Level) *Logger {
	return NewLogger(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
}

// NewTextLogger logs key=value lines to stderr at level and above.
func NewTextLogger(level slog.Level) *Logger {
	return NewLogger(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
}

// NoopLogger drops every record.
func NoopLogger() *Logger {
	return NewLogger(slog.DiscardHandler)
}

// WithDir adds the database directory to the logger.
func (l *Logger) WithDir(dir string) *Logger {
	return &Logger{Logger: l.Logger.With("dir", dir)}
}

// LogOpen logs an open or create of a database.
func (l *Logger) LogOpen(ctx context.Context, created bool, pages, links int, err error) {
	if err != nil {
		l.ErrorContext(ctx, "open failed",
			"created", created,
			"error", err,
		)
		return
	}
	l.InfoContext(ctx, "database opened",
		"created", created,
		"pages", pages,
		"links", links,
	)
}

// LogSave logs a save pass.
func (l *Logger) LogSave(ctx context.Context, pages, flushed int, err error) {
	if err != nil {
		l.ErrorContext(ctx, "save failed",
			"pages", pages,
			"flushed", flushed,
			"error", err,
		)
		return
	}
	l.InfoContext(ctx, "save completed",
		"pages", pages,
		"flushed", flushed,
	)
}

// LogClose logs a close.
func (l *Logger) LogClose(ctx context.Context, err error) {
	if err != nil {
		l.ErrorContext(ctx, "close failed", "error", err)
		return
	}
	l.InfoContext(ctx, "database closed")
}

// LogEvict logs a single eviction.
func (l *Logger) LogEvict(ctx context.Context, gid int64, bytes int64, err error) {
	if err != nil {
		l.ErrorContext(ctx, "eviction failed",
			"gid", gid,
			"error", err,
		)
		return
	}
	l.DebugContext(ctx, "link evicted",
		"gid", gid,
		"bytes", bytes,
	)
}

// LogOverBudget logs a sweep that could not get under the memory budget.
func (l *Logger) LogOverBudget(ctx context.Context, current, budget, incoming int64, pinned int) {
	l.WarnContext(ctx, "memory budget exceeded, nothing evictable",
		"bytes", current,
		"budget", budget,
		"incoming", incoming,
		"pinned", pinned,
	)
}

// LogRemove logs a link removal.
func (l *Logger) LogRemove(ctx context.Context, gid int64, err error) {
	if err != nil {
		l.ErrorContext(ctx, "remove failed",
			"gid", gid,
			"error", err,
		)
		return
	}
	l.DebugContext(ctx, "link removed", "gid", gid)
}

// LogBackup logs a backup.
func (l *Logger) LogBackup(ctx context.Context, target string, bytes int64, err error) {
	if err != nil {
		l.ErrorContext(ctx, "backup failed",
			"target", target,
			"error", err,
		)
		return
	}
	l.InfoContext(ctx, "backup written",
		"target", target,
		"bytes", bytes,
	)
}
