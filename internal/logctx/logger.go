package logctx

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	slogmulti "github.com/samber/slog-multi"
)

// Options describes the log sinks.
type Options struct {
	Level  slog.Level
	Format string // "json" or "text"
	// Writers receive every record. The first one is normally stderr.
	Writers []io.Writer
}

// NewLogger fans records out to every writer and tags them with the run and trace ids.
func NewLogger(opts Options) *slog.Logger {
	handlerOpts := &slog.HandlerOptions{Level: opts.Level}

	handlers := make([]slog.Handler, 0, len(opts.Writers))
	for _, w := range opts.Writers {
		if strings.EqualFold(opts.Format, "text") {
			handlers = append(handlers, slog.NewTextHandler(w, handlerOpts))
		} else {
			handlers = append(handlers, slog.NewJSONHandler(w, handlerOpts))
		}
	}

	if len(handlers) == 0 {
		handlers = append(handlers, slog.NewJSONHandler(os.Stderr, handlerOpts))
	}

	return slog.New(NewContextHandler(slogmulti.Fanout(handlers...)))
}

// OpenRunLog creates dir and a new timestamped log file inside it.
func OpenRunLog(dir, prefix string, now time.Time) (*os.File, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create log directory: %w", err)
	}

	name := fmt.Sprintf("%s_%s.log", prefix, now.Format("20060102-150405"))

	f, err := os.OpenFile(filepath.Join(dir, name), os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, fmt.Errorf("failed to open log file: %w", err)
	}

	return f, nil
}

// LatestRunLog returns the most recent log file created by OpenRunLog, or ""
// when there is none.
func LatestRunLog(dir, prefix string) (string, error) {
	matches, err := filepath.Glob(filepath.Join(dir, prefix+"_*.log"))
	if err != nil {
		return "", fmt.Errorf("failed to list log files: %w", err)
	}

	latest := ""
	for _, m := range matches {
		// Timestamps sort lexically.
		if m > latest {
			latest = m
		}
	}

	return latest, nil
}
