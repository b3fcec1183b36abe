package main

import (
	"context"
	"database/sql"
	"fmt"
	"io"
	"log/slog"
	"os"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/maxedout/modelfetch/internal/catalog"
	"github.com/maxedout/modelfetch/internal/config"
	"github.com/maxedout/modelfetch/internal/fetch"
	"github.com/maxedout/modelfetch/internal/install"
	"github.com/maxedout/modelfetch/internal/logctx"
	"github.com/maxedout/modelfetch/internal/notifier"
	"github.com/maxedout/modelfetch/internal/progress"
	"github.com/maxedout/modelfetch/internal/storage/sqlite"
	"github.com/maxedout/modelfetch/internal/telemetry"
)

const logPrefix = "modelfetch"

// app wires the components shared by the commands.
type app struct {
	cfg       *config.Config
	logger    *slog.Logger
	logFile   *os.File
	telemetry *telemetry.Telemetry
	catalog   *catalog.Catalog
	client    *fetch.Client
	reporter  *progress.Reporter
	engine    *fetch.Engine
	db        *sql.DB
	history   *sqlite.InstrumentedRunRepository
	installer *install.Installer
}

// newApp builds every component. When runLog is set, logs and progress lines
// are also written to a new timestamped file in the log directory.
func newApp(ctx context.Context, cfg *config.Config, stdout io.Writer, runLog bool) (*app, error) {
	a := &app{cfg: cfg}

	writers := []io.Writer{os.Stderr}

	if runLog {
		f, err := logctx.OpenRunLog(cfg.LogDir, logPrefix, time.Now())
		if err != nil {
			return nil, err
		}

		a.logFile = f
		writers = append(writers, f)
	}

	a.logger = logctx.NewLogger(logctx.Options{Level: cfg.SlogLevel(), Format: cfg.LogFormat, Writers: writers})
	slog.SetDefault(a.logger)

	tel, err := telemetry.New(ctx, telemetry.Config{
		Enabled:        cfg.Telemetry.Enabled,
		ServiceName:    cfg.Telemetry.ServiceName,
		ServiceVersion: version,
		OTLPEndpoint:   cfg.Telemetry.OTLPEndpoint,
	})
	if err != nil {
		a.Close(ctx)

		return nil, fmt.Errorf("failed to initialize telemetry: %w", err)
	}

	a.telemetry = tel

	a.catalog = catalog.Builtin(cfg.IncludeSchnell)
	if cfg.CatalogFile != "" {
		if err := a.catalog.LoadFile(cfg.CatalogFile); err != nil {
			a.Close(ctx)

			return nil, err
		}
	}

	a.reporter = progress.New(stdout)
	if a.logFile != nil {
		a.reporter.AddSink(a.logFile, false)
	}

	a.client = fetch.NewClient(cfg.ClientConfig())
	a.engine = fetch.NewEngine(a.client, cfg.EngineOptions(), a.reporter, tel)

	a.db, err = sqlite.InitDB(ctx, cfg.DBPath)
	if err != nil {
		a.Close(ctx)

		return nil, fmt.Errorf("failed to open history database: %w", err)
	}

	a.history = sqlite.NewInstrumentedRunRepository(a.db, tel)

	opts := []install.Option{
		install.WithReporter(a.reporter),
		install.WithHistory(a.history),
		install.WithTelemetry(tel),
	}

	if cfg.DiscordWebhookURL != "" {
		opts = append(opts, install.WithNotifier(notifier.NewDiscordNotifier(cfg.DiscordWebhookURL)))
	}

	a.installer = install.New(install.Config{
		BaseURL:         cfg.BaseURL,
		ReachabilityURL: cfg.ReachabilityURL,
		ModelDir:        cfg.ModelDir,
		MarkerDir:       cfg.MarkerDir,
	}, a.catalog, a.engine, a.client, opts...)

	if limit := a.engine.Options().TestCap; limit > 0 {
		a.logger.Warn("test mode enabled: transfers stop early and nothing is promoted", "cap", humanize.IBytes(uint64(limit)))
	}

	return a, nil
}

// context carries the app logger.
func (a *app) context(ctx context.Context) context.Context {
	return logctx.WithLogger(ctx, a.logger)
}

func (a *app) Close(ctx context.Context) {
	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancel()

	if err := a.telemetry.Shutdown(shutdownCtx); err != nil && a.logger != nil {
		a.logger.Warn("failed to shut down telemetry", "err", err)
	}

	if a.db != nil {
		a.db.Close()
	}

	if a.logFile != nil {
		_ = a.logFile.Sync()
		a.logFile.Close()
	}
}
