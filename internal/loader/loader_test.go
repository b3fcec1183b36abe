package loader

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/maxedout/modelfetch/internal/artifact"
	"github.com/maxedout/modelfetch/internal/catalog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type slowDownloader struct {
	calls  atomic.Int32
	active atomic.Int32
	peak   atomic.Int32
	delay  time.Duration
	state  artifact.State
	err    error
}

func (s *slowDownloader) Download(_ context.Context, d artifact.Descriptor) (artifact.Report, error) {
	s.calls.Add(1)

	n := s.active.Add(1)
	defer s.active.Add(-1)

	for {
		peak := s.peak.Load()
		if n <= peak || s.peak.CompareAndSwap(peak, n) {
			break
		}
	}

	time.Sleep(s.delay)

	return artifact.Report{Descriptor: d, State: s.state, Attempts: 1, Err: s.err}, nil
}

func TestEnsureResolvesUnderModelDir(t *testing.T) {
	dir := t.TempDir()
	dl := &slowDownloader{state: artifact.StateVerified}

	path, err := New(catalog.Builtin(false), dl, dir).Ensure(context.Background(), "flux1-dev-fp8.safetensors")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "diffusion_models", "flux1-dev-fp8.safetensors"), path)
	assert.Equal(t, int32(1), dl.calls.Load())
}

func TestEnsureCollapsesConcurrentCalls(t *testing.T) {
	dl := &slowDownloader{state: artifact.StateSatisfied, delay: 100 * time.Millisecond}
	l := New(catalog.Builtin(false), dl, t.TempDir())

	var wg sync.WaitGroup

	paths := make([]string, 5)

	for i := range paths {
		wg.Add(1)

		go func() {
			defer wg.Done()

			p, err := l.Ensure(context.Background(), "ae.safetensors")
			assert.NoError(t, err)

			paths[i] = p
		}()
	}

	wg.Wait()

	assert.Equal(t, int32(1), dl.calls.Load())

	for _, p := range paths {
		assert.Equal(t, paths[0], p)
	}
}

func TestEnsureSerializesDifferentArtifacts(t *testing.T) {
	dl := &slowDownloader{state: artifact.StateVerified, delay: 200 * time.Millisecond}
	l := New(catalog.Builtin(false), dl, t.TempDir())

	var wg sync.WaitGroup

	for _, name := range []string{"ae.safetensors", "clip_l.safetensors"} {
		wg.Add(1)

		go func() {
			defer wg.Done()

			_, err := l.Ensure(context.Background(), name)
			assert.NoError(t, err)
		}()
	}

	wg.Wait()

	assert.Equal(t, int32(2), dl.calls.Load())
	assert.Equal(t, int32(1), dl.peak.Load())
}

func TestEnsureRejectsHeadersAndUnknownNames(t *testing.T) {
	l := New(catalog.Builtin(false), &slowDownloader{}, t.TempDir())

	_, err := l.Ensure(context.Background(), catalog.HeaderFP16)
	require.ErrorIs(t, err, catalog.ErrSectionHeader)

	_, err = l.Ensure(context.Background(), "nope.safetensors")
	require.ErrorIs(t, err, catalog.ErrNotFound)
}

func TestEnsureReportsFailure(t *testing.T) {
	cause := &artifact.ExhaustedError{RemotePath: "r", LocalPath: "l", Attempts: 3, Last: errors.New("boom")}
	l := New(catalog.Builtin(false), &slowDownloader{state: artifact.StateFailed, err: cause}, t.TempDir())

	_, err := l.Ensure(context.Background(), "ae.safetensors")

	var exhausted *artifact.ExhaustedError
	require.ErrorAs(t, err, &exhausted)
}

func TestEnsureSampledIsNotUsable(t *testing.T) {
	l := New(catalog.Builtin(false), &slowDownloader{state: artifact.StateSampled}, t.TempDir())

	_, err := l.Ensure(context.Background(), "ae.safetensors")
	require.Error(t, err)
}

func TestChoices(t *testing.T) {
	choices := New(catalog.Builtin(false), &slowDownloader{}, t.TempDir()).Choices()
	require.NotEmpty(t, choices)
	assert.Equal(t, catalog.HeaderFP8, choices[0].Label)
}
