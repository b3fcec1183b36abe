package rest

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"os"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/maxedout/modelfetch/internal/catalog"
	"github.com/maxedout/modelfetch/internal/install"
	"github.com/maxedout/modelfetch/internal/logctx"
	"github.com/maxedout/modelfetch/internal/progress"
	"github.com/maxedout/modelfetch/internal/storage"
)

// Installer starts bundle installs in the background.
type Installer interface {
	Start(ctx context.Context, bundle string) (string, error)
	Running(bundle string) (string, bool)
}

// History reads past runs.
type History interface {
	LatestRun(ctx context.Context, bundle string) (storage.RunRecord, error)
}

// StatusConfig locates markers and run logs.
type StatusConfig struct {
	MarkerDir string
	LogDir    string
	LogPrefix string
}

type StatusHandler struct {
	runCtx    context.Context
	catalog   *catalog.Catalog
	installer Installer
	history   History
	cfg       StatusConfig
}

// NewStatusHandler creates the handler. Downloads triggered over HTTP run
// under runCtx rather than the request context. history may be nil.
func NewStatusHandler(runCtx context.Context, c *catalog.Catalog, installer Installer, history History, cfg StatusConfig) *StatusHandler {
	return &StatusHandler{
		runCtx:    runCtx,
		catalog:   c,
		installer: installer,
		history:   history,
		cfg:       cfg,
	}
}

func (h *StatusHandler) Routes() http.Handler {
	r := chi.NewRouter()

	r.Get("/healthz", h.HandleHealth)
	r.Get("/bundles", h.HandleBundles)
	r.Get("/bundles/{bundle}/status", h.HandleStatus)
	r.Post("/bundles/{bundle}/download", h.HandleDownload)

	return r
}

type bundleResponse struct {
	Name  string `json:"name"`
	Files int    `json:"files"`
}

type runResponse struct {
	ID         string     `json:"id"`
	Status     string     `json:"status"`
	StartedAt  time.Time  `json:"started_at"`
	FinishedAt *time.Time `json:"finished_at,omitempty"`
	Satisfied  int        `json:"satisfied"`
	Verified   int        `json:"verified"`
	Sampled    int        `json:"sampled"`
	Failed     int        `json:"failed"`
}

type statusResponse struct {
	Bundle   string       `json:"bundle"`
	Complete bool         `json:"complete"`
	Running  bool         `json:"running"`
	RunID    string       `json:"run_id,omitempty"`
	Overall  string       `json:"overall,omitempty"`
	Progress string       `json:"progress,omitempty"`
	LastRun  *runResponse `json:"last_run,omitempty"`
}

func (h *StatusHandler) HandleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (h *StatusHandler) HandleBundles(w http.ResponseWriter, _ *http.Request) {
	names := h.catalog.Names()
	out := make([]bundleResponse, 0, len(names))

	for _, name := range names {
		list, err := h.catalog.Bundle(name)
		if err != nil {
			continue
		}

		out = append(out, bundleResponse{Name: name, Files: len(list)})
	}

	writeJSON(w, http.StatusOK, out)
}

// HandleStatus reports the marker, the running flag, the last queue and
// progress lines of the latest run log, and the latest recorded run.
func (h *StatusHandler) HandleStatus(w http.ResponseWriter, r *http.Request) {
	logger := logctx.LoggerFromContext(r.Context())
	bundle := chi.URLParam(r, "bundle")

	if _, err := h.catalog.Bundle(bundle); err != nil {
		writeError(w, http.StatusNotFound, err)

		return
	}

	resp := statusResponse{Bundle: bundle}

	if _, err := os.Stat(install.MarkerPath(h.cfg.MarkerDir, bundle)); err == nil {
		resp.Complete = true
	}

	resp.RunID, resp.Running = h.installer.Running(bundle)

	if logPath, err := logctx.LatestRunLog(h.cfg.LogDir, h.cfg.LogPrefix); err != nil {
		logger.Warn("failed to find run log", "err", err)
	} else if logPath != "" {
		if resp.Overall, err = progress.LastLine(logPath, progress.OverallPrefix); err != nil {
			logger.Warn("failed to read run log", "log", logPath, "err", err)
		}

		if resp.Progress, err = progress.LastLine(logPath, progress.ProgressPrefix); err != nil {
			logger.Warn("failed to read run log", "log", logPath, "err", err)
		}
	}

	if h.history != nil {
		run, err := h.history.LatestRun(r.Context(), bundle)

		switch {
		case err == nil:
			resp.LastRun = toRunResponse(run)
		case !errors.Is(err, storage.ErrNotFound):
			logger.Warn("failed to load latest run", "bundle", bundle, "err", err)
		}
	}

	writeJSON(w, http.StatusOK, resp)
}

// HandleDownload starts an install of the bundle in the background.
func (h *StatusHandler) HandleDownload(w http.ResponseWriter, r *http.Request) {
	logger := logctx.LoggerFromContext(r.Context())
	bundle := chi.URLParam(r, "bundle")

	runID, err := h.installer.Start(h.runCtx, bundle)

	switch {
	case errors.Is(err, catalog.ErrNotFound):
		writeError(w, http.StatusNotFound, err)
	case errors.Is(err, install.ErrAlreadyRunning):
		writeError(w, http.StatusConflict, err)
	case err != nil:
		logger.Error("failed to start install", "bundle", bundle, "err", err)
		writeError(w, http.StatusInternalServerError, err)
	default:
		logger.Info("install started", "bundle", bundle, "run_id", runID)
		writeJSON(w, http.StatusAccepted, map[string]string{"bundle": bundle, "run_id": runID})
	}
}

func toRunResponse(run storage.RunRecord) *runResponse {
	out := &runResponse{
		ID:        run.ID,
		Status:    run.Status,
		StartedAt: run.StartedAt,
		Satisfied: run.Satisfied,
		Verified:  run.Verified,
		Sampled:   run.Sampled,
		Failed:    run.Failed,
	}

	if !run.FinishedAt.IsZero() {
		finished := run.FinishedAt
		out.FinishedAt = &finished
	}

	return out
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, map[string]string{"error": err.Error()})
}
