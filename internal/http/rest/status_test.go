package rest

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/maxedout/modelfetch/internal/catalog"
	"github.com/maxedout/modelfetch/internal/install"
	"github.com/maxedout/modelfetch/internal/storage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeInstaller struct {
	running map[string]string
	started []string
}

func (f *fakeInstaller) Start(_ context.Context, bundle string) (string, error) {
	if bundle == "missing" {
		return "", fmt.Errorf("bundle %q: %w", bundle, catalog.ErrNotFound)
	}

	if _, ok := f.running[bundle]; ok {
		return "", install.ErrAlreadyRunning
	}

	f.started = append(f.started, bundle)

	return "run-42", nil
}

func (f *fakeInstaller) Running(bundle string) (string, bool) {
	id, ok := f.running[bundle]

	return id, ok
}

type fakeHistory map[string]storage.RunRecord

func (f fakeHistory) LatestRun(_ context.Context, bundle string) (storage.RunRecord, error) {
	run, ok := f[bundle]
	if !ok {
		return storage.RunRecord{}, storage.ErrNotFound
	}

	return run, nil
}

func newTestHandler(t *testing.T, inst *fakeInstaller, history History) (http.Handler, StatusConfig) {
	t.Helper()

	cfg := StatusConfig{MarkerDir: t.TempDir(), LogDir: t.TempDir(), LogPrefix: "modelfetch"}

	return NewStatusHandler(context.Background(), catalog.Builtin(false), inst, history, cfg).Routes(), cfg
}

func do(t *testing.T, h http.Handler, method, path string) *httptest.ResponseRecorder {
	t.Helper()

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(method, path, nil))

	return rec
}

func TestHealthAndBundles(t *testing.T) {
	h, _ := newTestHandler(t, &fakeInstaller{}, nil)

	rec := do(t, h, http.MethodGet, "/healthz")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok"}`, rec.Body.String())

	rec = do(t, h, http.MethodGet, "/bundles")
	require.Equal(t, http.StatusOK, rec.Code)

	var bundles []bundleResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &bundles))
	assert.Contains(t, bundles, bundleResponse{Name: "upscale", Files: 2})
	assert.Contains(t, bundles, bundleResponse{Name: "small", Files: 3})
}

func TestStatusReportsMarkerProgressAndHistory(t *testing.T) {
	finished := time.Date(2025, 3, 1, 11, 0, 0, 0, time.UTC)
	history := fakeHistory{"core": {
		ID: "run-1", Bundle: "core", Status: storage.RunCompleted,
		StartedAt: finished.Add(-time.Hour), FinishedAt: finished, Verified: 9,
	}}

	inst := &fakeInstaller{running: map[string]string{"core": "run-2"}}
	h, cfg := newTestHandler(t, inst, history)

	require.NoError(t, os.WriteFile(install.MarkerPath(cfg.MarkerDir, "core"), nil, 0o644))

	log := "{\"msg\":\"starting\"}\n" +
		"OVERALL:: [1/9] now processing t5xxl_fp16.safetensors\n" +
		"PROGRESS:: t5xxl_fp16.safetensors 10.0% (1 GiB / 9 GiB)\r" +
		"PROGRESS:: t5xxl_fp16.safetensors 20.0% (2 GiB / 9 GiB)\r"
	require.NoError(t, os.WriteFile(filepath.Join(cfg.LogDir, "modelfetch_20250301-100000.log"), []byte(log), 0o644))

	rec := do(t, h, http.MethodGet, "/bundles/core/status")
	require.Equal(t, http.StatusOK, rec.Code)

	var resp statusResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))

	assert.True(t, resp.Complete)
	assert.True(t, resp.Running)
	assert.Equal(t, "run-2", resp.RunID)
	assert.Equal(t, "OVERALL:: [1/9] now processing t5xxl_fp16.safetensors", resp.Overall)
	assert.Equal(t, "PROGRESS:: t5xxl_fp16.safetensors 20.0% (2 GiB / 9 GiB)", resp.Progress)
	require.NotNil(t, resp.LastRun)
	assert.Equal(t, "run-1", resp.LastRun.ID)
	assert.Equal(t, 9, resp.LastRun.Verified)
	require.NotNil(t, resp.LastRun.FinishedAt)
	assert.True(t, resp.LastRun.FinishedAt.Equal(finished))
}

func TestStatusWithoutHistoryOrLogs(t *testing.T) {
	h, _ := newTestHandler(t, &fakeInstaller{}, fakeHistory{})

	rec := do(t, h, http.MethodGet, "/bundles/redux/status")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"bundle":"redux","complete":false,"running":false}`, rec.Body.String())
}

func TestStatusUnknownBundle(t *testing.T) {
	h, _ := newTestHandler(t, &fakeInstaller{}, nil)

	rec := do(t, h, http.MethodGet, "/bundles/nope/status")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestDownloadTrigger(t *testing.T) {
	tests := []struct {
		name   string
		bundle string
		want   int
	}{
		{name: "accepted", bundle: "pulid", want: http.StatusAccepted},
		{name: "already running", bundle: "core", want: http.StatusConflict},
		{name: "unknown bundle", bundle: "missing", want: http.StatusNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			inst := &fakeInstaller{running: map[string]string{"core": "run-1"}}
			h, _ := newTestHandler(t, inst, nil)

			rec := do(t, h, http.MethodPost, "/bundles/"+tt.bundle+"/download")
			assert.Equal(t, tt.want, rec.Code)
			assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))

			if tt.want == http.StatusAccepted {
				assert.JSONEq(t, `{"bundle":"pulid","run_id":"run-42"}`, rec.Body.String())
				assert.Equal(t, []string{"pulid"}, inst.started)
			}
		})
	}
}

func TestDownloadRequiresPost(t *testing.T) {
	h, _ := newTestHandler(t, &fakeInstaller{}, nil)

	rec := do(t, h, http.MethodGet, "/bundles/core/download")
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}
