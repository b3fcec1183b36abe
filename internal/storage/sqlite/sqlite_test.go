package sqlite

import (
	"context"
	"errors"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/maxedout/modelfetch/internal/artifact"
	"github.com/maxedout/modelfetch/internal/storage"
	"github.com/maxedout/modelfetch/internal/telemetry"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newRepo(t *testing.T, tel *telemetry.Telemetry) *InstrumentedRunRepository {
	t.Helper()

	db, err := InitDB(context.Background(), filepath.Join(t.TempDir(), "state", "modelfetch.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	return NewInstrumentedRunRepository(db, tel)
}

func TestRunLifecycle(t *testing.T) {
	ctx := context.Background()
	repo := newRepo(t, nil)

	started := time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC)
	require.NoError(t, repo.StartRun(ctx, "run-1", "core", started))

	run, err := repo.LatestRun(ctx, "core")
	require.NoError(t, err)
	assert.Equal(t, "run-1", run.ID)
	assert.Equal(t, storage.RunRunning, run.Status)
	assert.True(t, run.StartedAt.Equal(started))
	assert.True(t, run.FinishedAt.IsZero())

	d := artifact.Descriptor{RemotePath: "Flux1/vae/ae.safetensors", LocalPath: "/models/vae/ae.safetensors", Fingerprint: strings.Repeat("a", 64)}

	require.NoError(t, repo.RecordArtifact(ctx, "run-1", artifact.Report{
		Descriptor: d, State: artifact.StateVerified, Attempts: 1, Bytes: 1024, Duration: 1500 * time.Millisecond,
	}))
	require.NoError(t, repo.RecordArtifact(ctx, "run-1", artifact.Report{
		Descriptor: d, State: artifact.StateFailed, Attempts: 3, Err: errors.New("fingerprint mismatch"),
	}))

	finished := started.Add(time.Hour)
	require.NoError(t, repo.FinishRun(ctx, storage.RunRecord{
		ID: "run-1", Status: storage.RunFailed, FinishedAt: finished, Verified: 1, Failed: 1,
	}))

	run, err = repo.LatestRun(ctx, "core")
	require.NoError(t, err)
	assert.Equal(t, storage.RunFailed, run.Status)
	assert.True(t, run.FinishedAt.Equal(finished))
	assert.Equal(t, 1, run.Verified)
	assert.Equal(t, 1, run.Failed)

	records, err := repo.GetArtifacts(ctx, "run-1")
	require.NoError(t, err)
	require.Len(t, records, 2)
	assert.Equal(t, "ae.safetensors", records[0].Name)
	assert.Equal(t, "verified", records[0].State)
	assert.Equal(t, 1500*time.Millisecond, records[0].Duration)
	assert.Empty(t, records[0].Error)
	assert.Equal(t, "fingerprint mismatch", records[1].Error)
	assert.False(t, records[1].RecordedAt.IsZero())
}

func TestLatestRunPicksNewest(t *testing.T) {
	ctx := context.Background()
	repo := newRepo(t, nil)

	base := time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC)
	require.NoError(t, repo.StartRun(ctx, "old", "small", base))
	require.NoError(t, repo.StartRun(ctx, "new", "small", base.Add(time.Minute)))
	require.NoError(t, repo.StartRun(ctx, "other", "core", base.Add(time.Hour)))

	run, err := repo.LatestRun(ctx, "small")
	require.NoError(t, err)
	assert.Equal(t, "new", run.ID)
}

func TestNotFound(t *testing.T) {
	ctx := context.Background()
	repo := newRepo(t, nil)

	_, err := repo.LatestRun(ctx, "core")
	require.ErrorIs(t, err, storage.ErrNotFound)

	err = repo.FinishRun(ctx, storage.RunRecord{ID: "missing", Status: storage.RunCompleted, FinishedAt: time.Now()})
	require.ErrorIs(t, err, storage.ErrNotFound)

	records, err := repo.GetArtifacts(ctx, "missing")
	require.NoError(t, err)
	assert.Empty(t, records)
}

func TestInstrumentedWithTelemetry(t *testing.T) {
	tel, err := telemetry.New(context.Background(), telemetry.Config{Enabled: true, ServiceName: "modelfetch-test"})
	require.NoError(t, err)
	t.Cleanup(func() { tel.Shutdown(context.Background()) })

	repo := newRepo(t, tel)
	require.NoError(t, repo.StartRun(context.Background(), "run-1", "redux", time.Now()))

	_, err = repo.LatestRun(context.Background(), "redux")
	require.NoError(t, err)
}
