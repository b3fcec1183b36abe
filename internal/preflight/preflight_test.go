package preflight

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/maxedout/modelfetch/internal/fetch"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type reacherFunc func(ctx context.Context, rawURL string) error

func (f reacherFunc) Reachable(ctx context.Context, rawURL string) error { return f(ctx, rawURL) }

func TestCheckBaseURL(t *testing.T) {
	tests := []struct {
		raw    string
		passed bool
	}{
		{"https://huggingface.co/MaxedOut/resolve/main", true},
		{"http://localhost:8080", true},
		{"ftp://example.com/models", false},
		{"/relative/path", false},
		{"https://", false},
		{"://broken", false},
	}

	for _, tt := range tests {
		t.Run(tt.raw, func(t *testing.T) {
			assert.Equal(t, tt.passed, CheckBaseURL(tt.raw).Passed)
		})
	}
}

func TestCheckDirectoryAccess(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "models", "nested")

	r := CheckDirectoryAccess("Model directory", dir)
	assert.True(t, r.Passed, r.Detail)
	assert.DirExists(t, dir)

	file := filepath.Join(t.TempDir(), "file")
	require.NoError(t, os.WriteFile(file, nil, 0o644))

	r = CheckDirectoryAccess("Model directory", file)
	assert.False(t, r.Passed)

	assert.False(t, CheckDirectoryAccess("Model directory", "").Passed)
}

func TestRunWithStore(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodHead, r.Method)
		w.WriteHeader(http.StatusForbidden)
	}))
	defer srv.Close()

	client := fetch.NewClient(fetch.ClientConfig{BaseURL: srv.URL, Timeout: 5 * time.Second})

	results, err := Run(context.Background(), Config{
		BaseURL:         srv.URL,
		ReachabilityURL: srv.URL,
		ModelDir:        t.TempDir(),
	}, client)
	require.NoError(t, err)
	require.Len(t, results, 3)

	for _, r := range results {
		assert.True(t, r.Passed, r.Name)
	}
}

func TestRunFailsFatally(t *testing.T) {
	unreachable := reacherFunc(func(context.Context, string) error { return errors.New("dial tcp: connection refused") })

	results, err := Run(context.Background(), Config{
		BaseURL:         "https://store.example.com",
		ReachabilityURL: "https://store.example.com",
		ModelDir:        t.TempDir(),
	}, unreachable)
	require.ErrorIs(t, err, ErrFatal)
	assert.Contains(t, err.Error(), "connection refused")
	assert.False(t, results[1].Passed)
	assert.True(t, results[2].Passed)
}
