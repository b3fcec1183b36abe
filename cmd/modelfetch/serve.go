package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/maxedout/modelfetch/internal/cleanup"
	"github.com/maxedout/modelfetch/internal/config"
	"github.com/maxedout/modelfetch/internal/http/rest"
	"github.com/maxedout/modelfetch/internal/logctx"
	"github.com/maxedout/modelfetch/internal/telemetry"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

func newServeCommand(cc *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Serve bundle status and download triggers over HTTP",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := cc.ensureConfig()
			if err != nil {
				return err
			}

			a, err := newApp(cmd.Context(), cfg, cmd.OutOrStdout(), true)
			if err != nil {
				return err
			}
			defer a.Close(cmd.Context())

			return serve(a.context(cmd.Context()), a)
		},
	}
}

func serve(ctx context.Context, a *app) error {
	logger := logctx.LoggerFromContext(ctx)
	cfg := a.cfg

	server := setupServer(ctx, a)

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		logger.Info("Initializing API support", "host", cfg.Web.BindAddress)

		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server error: %w", err)
		}

		return nil
	})

	g.Go(func() error {
		<-gctx.Done()

		logger.Info("start shutdown")

		// Give outstanding requests a deadline for completion.
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(gctx), cfg.Web.ShutdownTimeout)
		defer cancel()

		if err := server.Shutdown(shutdownCtx); err != nil {
			logger.Error("failed to gracefully shutdown the server", "err", err)

			if err = server.Close(); err != nil {
				return fmt.Errorf("could not stop server gracefully: %w", err)
			}
		}

		// Background installs share ctx and stop with it.
		a.installer.Wait()

		return nil
	})

	g.Go(func() error {
		runCleanup(gctx, cfg)

		return nil
	})

	return g.Wait()
}

// setupServer prepares the handlers and services to create the http rest server.
// Installs triggered over HTTP run under ctx.
func setupServer(ctx context.Context, a *app) *http.Server {
	cfg := a.cfg

	status := rest.NewStatusHandler(ctx, a.catalog, a.installer, a.history, rest.StatusConfig{
		MarkerDir: cfg.MarkerDir,
		LogDir:    cfg.LogDir,
		LogPrefix: logPrefix,
	})

	r := chi.NewRouter()
	r.Use(
		telemetry.RequestID,
		telemetry.WithLogger(ctx),
		telemetry.HTTPLogging,
		telemetry.NewHTTPMiddleware(a.telemetry).Middleware,
	)
	r.Handle("/metrics", a.telemetry.Handler())
	r.Mount("/", status.Routes())

	return &http.Server{
		Addr:         cfg.Web.BindAddress,
		ReadTimeout:  cfg.Web.ReadTimeout,
		WriteTimeout: cfg.Web.WriteTimeout,
		IdleTimeout:  cfg.Web.IdleTimeout,
		Handler:      r,
		BaseContext: func(net.Listener) context.Context {
			return ctx
		},
	}
}

func runCleanup(ctx context.Context, cfg *config.Config) {
	logger := logctx.LoggerFromContext(ctx)

	ticker := time.NewTicker(cfg.CleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			logger.Info("cleanup loop shutting down")

			return
		case <-ticker.C:
			if _, err := cleanup.DeleteStalePartials(ctx, cfg.ModelDir, cfg.Engine.PartialSuffix, cfg.PartialRetention); err != nil && ctx.Err() == nil {
				logger.Error("failed to delete stale partial files", "err", err)
			}
		}
	}
}
