package storage

import (
	"context"
	"errors"
	"time"

	"github.com/maxedout/modelfetch/internal/artifact"
)

// ErrNotFound is returned when no run matches a query.
var ErrNotFound = errors.New("record not found")

// Run status values.
const (
	RunRunning     = "running"
	RunCompleted   = "completed"
	RunFailed      = "failed"
	RunInterrupted = "interrupted"
)

// RunRecord represents one installer run over a bundle.
type RunRecord struct {
	ID         string
	Bundle     string
	Status     string
	StartedAt  time.Time
	FinishedAt time.Time
	Satisfied  int
	Verified   int
	Sampled    int
	Failed     int
}

// ArtifactRecord represents the outcome of one artifact inside a run.
type ArtifactRecord struct {
	RunID      string
	Name       string
	RemotePath string
	LocalPath  string
	State      string
	Attempts   int
	Bytes      int64
	Duration   time.Duration
	Error      string
	RecordedAt time.Time
}

type RunReadRepository interface {
	LatestRun(ctx context.Context, bundle string) (RunRecord, error)
	GetArtifacts(ctx context.Context, runID string) ([]ArtifactRecord, error)
}

type RunWriteRepository interface {
	StartRun(ctx context.Context, runID, bundle string, at time.Time) error
	FinishRun(ctx context.Context, run RunRecord) error
	RecordArtifact(ctx context.Context, runID string, report artifact.Report) error
}
