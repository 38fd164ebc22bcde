// Package logging provides structured logging for pidx.
//
// It wraps log/slog with a process-wide logger, component loggers and
// context-carried query and batch IDs. Output goes to stderr so the CLI can
// print identifiers and digits on stdout.
//
//	logging.Init(slog.LevelInfo, false)
//	log := logging.Component("digits")
//	log.Info("block computed", "algorithm", "chudnovsky", "precision", 10000)
//	logging.WithContext(ctx).Warn("query truncated", "depth", depth)
package logging

import (
	"context"
	"io"
	"log/slog"
	"os"
	"slices"
	"strings"
	"sync/atomic"
)

var current atomic.Pointer[slog.Logger]

// Init installs a text or JSON handler on stderr at the given level.
// Debug level also records the source position.
func Init(level slog.Level, jsonFormat bool) {
	InitWithHandler(newHandler(os.Stderr, level, jsonFormat))
}

// InitWithHandler installs a custom handler, typically a buffer in tests.
func InitWithHandler(handler slog.Handler) {
	l := slog.New(handler)
	current.Store(l)
	slog.SetDefault(l)
}

func newHandler(w io.Writer, level slog.Level, jsonFormat bool) slog.Handler {
	opts := &slog.HandlerOptions{Level: level, AddSource: level <= slog.LevelDebug}
	if jsonFormat {
		return slog.NewJSONHandler(w, opts)
	}
	return slog.NewTextHandler(w, opts)
}

// logger returns the installed logger, installing the info-level text
// default on first use.
func logger() *slog.Logger {
	if l := current.Load(); l != nil {
		return l
	}
	l := slog.New(newHandler(os.Stderr, slog.LevelInfo, false))
	if current.CompareAndSwap(nil, l) {
		return l
	}
	return current.Load()
}

// ParseLevel converts a config level name to a slog.Level.
// Unknown names map to info.
func ParseLevel(name string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	}
	return slog.LevelInfo
}

// Component returns a logger tagged with component=name. It resolves the
// installed handler on every record, so package-level component loggers
// follow a later Init.
func Component(name string) *slog.Logger {
	return slog.New(&deferredHandler{}).With("component", name)
}

// deferredHandler replays its attrs and groups onto the current handler.
type deferredHandler struct {
	apply []func(slog.Handler) slog.Handler
}

func (h *deferredHandler) resolve() slog.Handler {
	base := logger().Handler()
	for _, f := range h.apply {
		base = f(base)
	}
	return base
}

func (h *deferredHandler) Enabled(ctx context.Context, level slog.Level) bool {
	return logger().Handler().Enabled(ctx, level)
}

func (h *deferredHandler) Handle(ctx context.Context, r slog.Record) error {
	return h.resolve().Handle(ctx, r)
}

func (h *deferredHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return h.with(func(b slog.Handler) slog.Handler { return b.WithAttrs(attrs) })
}

func (h *deferredHandler) WithGroup(name string) slog.Handler {
	return h.with(func(b slog.Handler) slog.Handler { return b.WithGroup(name) })
}

func (h *deferredHandler) with(f func(slog.Handler) slog.Handler) *deferredHandler {
	return &deferredHandler{apply: append(slices.Clip(h.apply), f)}
}

type ctxKey uint8

const (
	queryIDKey ctxKey = iota
	batchIDKey
)

// ContextWithQueryID tags ctx with a query ID picked up by WithContext.
func ContextWithQueryID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, queryIDKey, id)
}

// ContextWithBatchID tags ctx with a batch ID picked up by WithContext.
func ContextWithBatchID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, batchIDKey, id)
}

// WithContext returns the logger with any query and batch IDs carried by ctx.
func WithContext(ctx context.Context) *slog.Logger {
	l := logger()
	if id, ok := ctx.Value(queryIDKey).(string); ok {
		l = l.With("query_id", id)
	}
	if id, ok := ctx.Value(batchIDKey).(string); ok {
		l = l.With("batch_id", id)
	}
	return l
}

// Info logs at info level on the process logger.
func Info(msg string, args ...any) { logger().Info(msg, args...) }

// Error logs at error level on the process logger.
func Error(msg string, args ...any) { logger().Error(msg, args...) }
