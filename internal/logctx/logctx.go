package logctx

import (
	"context"
	"log/slog"
)

type contextKey string

const (
	loggerKey contextKey = "logger"
	runKey    contextKey = "run"
)

// Run identifies the installer run a record belongs to.
type Run struct {
	ID     string
	Bundle string
}

// WithLogger returns a new context with the provided slog.Logger.
func WithLogger(ctx context.Context, logger *slog.Logger) context.Context {
	return context.WithValue(ctx, loggerKey, logger)
}

// LoggerFromContext retrieves the slog.Logger from the context, or returns slog.Default() if not found.
func LoggerFromContext(ctx context.Context) *slog.Logger {
	if l, ok := ctx.Value(loggerKey).(*slog.Logger); ok && l != nil {
		return l
	}

	return slog.Default()
}

// WithRun tags ctx with a run. Records logged with ctx carry run_id and bundle.
func WithRun(ctx context.Context, id, bundle string) context.Context {
	return context.WithValue(ctx, runKey, Run{ID: id, Bundle: bundle})
}

// RunFromContext returns the run set by WithRun.
func RunFromContext(ctx context.Context) (Run, bool) {
	r, ok := ctx.Value(runKey).(Run)

	return r, ok
}
