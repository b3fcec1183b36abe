package queue

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/maxedout/modelfetch/internal/artifact"
	"github.com/maxedout/modelfetch/internal/fetch"
	"github.com/maxedout/modelfetch/internal/progress"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeDownloader struct {
	outcomes map[string]artifact.State
	calls    []string
	cancelOn string
	cancel   context.CancelFunc
}

func (f *fakeDownloader) Download(ctx context.Context, d artifact.Descriptor) (artifact.Report, error) {
	f.calls = append(f.calls, d.Name())

	if d.Name() == f.cancelOn {
		f.cancel()

		return artifact.Report{Descriptor: d, State: artifact.StateFailed, Err: ctx.Err()}, ctx.Err()
	}

	state := f.outcomes[d.Name()]
	report := artifact.Report{Descriptor: d, State: state, Attempts: 1}

	if state == artifact.StateFailed {
		report.Attempts = 3
		report.Err = &artifact.ExhaustedError{RemotePath: d.RemotePath, LocalPath: d.LocalPath, Attempts: 3, Last: errors.New("boom")}
	}

	return report, nil
}

type memRecorder struct {
	runIDs  []string
	reports []artifact.Report
}

func (m *memRecorder) RecordArtifact(_ context.Context, runID string, report artifact.Report) error {
	m.runIDs = append(m.runIDs, runID)
	m.reports = append(m.reports, report)

	return nil
}

func descriptors(names ...string) []artifact.Descriptor {
	list := make([]artifact.Descriptor, 0, len(names))
	for _, n := range names {
		list = append(list, artifact.Descriptor{RemotePath: "r/" + n, LocalPath: "/models/" + n, Fingerprint: strings.Repeat("a", 64)})
	}

	return list
}

func TestRunnerContinuesPastFailures(t *testing.T) {
	dl := &fakeDownloader{outcomes: map[string]artifact.State{
		"a.bin": artifact.StateVerified,
		"b.bin": artifact.StateFailed,
		"c.bin": artifact.StateSatisfied,
	}}

	var console bytes.Buffer

	reporter := progress.New()
	reporter.AddSink(&console, false)

	rec := &memRecorder{}
	runner := NewRunner(dl, reporter, WithRecorder(rec), WithRunID("run-1"))

	batch, err := runner.Run(context.Background(), descriptors("a.bin", "b.bin", "c.bin"))
	require.NoError(t, err)

	assert.Equal(t, []string{"a.bin", "b.bin", "c.bin"}, dl.calls)
	assert.Equal(t, "run-1", batch.RunID)
	assert.Equal(t, 1, batch.Verified)
	assert.Equal(t, 1, batch.Satisfied)
	assert.Equal(t, 1, batch.Failed())
	assert.False(t, batch.Interrupted)
	require.Len(t, batch.Failures, 1)
	assert.Equal(t, "r/b.bin", batch.Failures[0].Descriptor.RemotePath)

	var exhausted *artifact.ExhaustedError
	require.ErrorAs(t, batch.Err(), &exhausted)

	assert.Equal(t, []string{"run-1", "run-1", "run-1"}, rec.runIDs)
	assert.Contains(t, console.String(), "OVERALL:: [1/3] now processing a.bin\n")
	assert.Contains(t, console.String(), "OVERALL:: [3/3] now processing c.bin\n")
}

func TestRunnerStopsOnCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	dl := &fakeDownloader{
		outcomes: map[string]artifact.State{"a.bin": artifact.StateVerified},
		cancelOn: "b.bin",
		cancel:   cancel,
	}

	batch, err := NewRunner(dl, nil).Run(ctx, descriptors("a.bin", "b.bin", "c.bin"))
	require.ErrorIs(t, err, context.Canceled)

	assert.True(t, batch.Interrupted)
	assert.Equal(t, []string{"a.bin", "b.bin"}, dl.calls)
	assert.Len(t, batch.Reports, 1)
	assert.Empty(t, batch.Failures)
	assert.NoError(t, batch.Err())
}

func TestRunnerEmptyList(t *testing.T) {
	batch, err := NewRunner(&fakeDownloader{}, nil).Run(context.Background(), nil)
	require.NoError(t, err)
	assert.Zero(t, batch.Failed())
	assert.NotEmpty(t, batch.RunID)
	assert.NoError(t, batch.Err())
}

// TestRunnerWithEngine runs a real engine against a store where one of the
// three artifacts is corrupt: the batch must still complete the others.
func TestRunnerWithEngine(t *testing.T) {
	files := map[string][]byte{
		"/a.bin": bytes.Repeat([]byte("a"), 3000),
		"/b.bin": bytes.Repeat([]byte("b"), 3000),
		"/c.bin": bytes.Repeat([]byte("c"), 3000),
	}

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		data, ok := files[r.URL.Path]
		if !ok {
			http.NotFound(w, r)

			return
		}

		if r.URL.Path == "/b.bin" {
			data = bytes.Repeat([]byte("x"), 3000)
		}

		http.ServeContent(w, r, "blob", time.Time{}, bytes.NewReader(data))
	}))
	defer srv.Close()

	dir := t.TempDir()
	list := make([]artifact.Descriptor, 0, 3)

	for _, name := range []string{"a.bin", "b.bin", "c.bin"} {
		sum := sha256.Sum256(files["/"+name])
		list = append(list, artifact.Descriptor{
			RemotePath:  name,
			LocalPath:   filepath.Join(dir, "models", name),
			Fingerprint: hex.EncodeToString(sum[:]),
		})
	}

	client := fetch.NewClient(fetch.ClientConfig{BaseURL: srv.URL, Timeout: 5 * time.Second})
	engine := fetch.NewEngine(client, fetch.Options{BackoffBase: 0}, nil, nil)

	batch, err := NewRunner(engine, nil).Run(context.Background(), list)
	require.NoError(t, err)

	assert.Equal(t, 2, batch.Verified)
	require.Equal(t, 1, batch.Failed())
	assert.Equal(t, "b.bin", batch.Failures[0].Descriptor.RemotePath)

	assert.FileExists(t, list[0].LocalPath)
	assert.FileExists(t, list[2].LocalPath)

	_, statErr := os.Stat(list[1].LocalPath)
	assert.True(t, os.IsNotExist(statErr))
}
