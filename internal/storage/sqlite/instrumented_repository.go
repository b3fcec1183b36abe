package sqlite

import (
	"context"
	"database/sql"
	"time"

	"github.com/maxedout/modelfetch/internal/artifact"
	"github.com/maxedout/modelfetch/internal/storage"
	"github.com/maxedout/modelfetch/internal/telemetry"
)

// InstrumentedRunRepository wraps the run repositories with telemetry.
type InstrumentedRunRepository struct {
	read      *RunReadRepository
	write     *RunWriteRepository
	telemetry *telemetry.Telemetry
}

// NewInstrumentedRunRepository creates a new instrumented run repository. tel may be nil.
func NewInstrumentedRunRepository(dbConn *sql.DB, tel *telemetry.Telemetry) *InstrumentedRunRepository {
	return &InstrumentedRunRepository{
		read:      NewRunReadRepository(dbConn),
		write:     NewRunWriteRepository(dbConn),
		telemetry: tel,
	}
}

// StartRun inserts a running run with telemetry.
func (r *InstrumentedRunRepository) StartRun(ctx context.Context, runID, bundle string, at time.Time) error {
	return r.telemetry.InstrumentDBOperation(ctx, "start_run", func(ctx context.Context) error {
		return r.write.StartRun(ctx, runID, bundle, at)
	})
}

// FinishRun closes a run with telemetry.
func (r *InstrumentedRunRepository) FinishRun(ctx context.Context, run storage.RunRecord) error {
	return r.telemetry.InstrumentDBOperation(ctx, "finish_run", func(ctx context.Context) error {
		return r.write.FinishRun(ctx, run)
	})
}

// RecordArtifact stores an artifact outcome with telemetry.
func (r *InstrumentedRunRepository) RecordArtifact(ctx context.Context, runID string, report artifact.Report) error {
	return r.telemetry.InstrumentDBOperation(ctx, "record_artifact", func(ctx context.Context) error {
		return r.write.RecordArtifact(ctx, runID, report)
	})
}

// LatestRun retrieves the latest run of a bundle with telemetry.
func (r *InstrumentedRunRepository) LatestRun(ctx context.Context, bundle string) (storage.RunRecord, error) {
	var result storage.RunRecord

	err := r.telemetry.InstrumentDBOperation(ctx, "latest_run", func(ctx context.Context) error {
		var err error

		result, err = r.read.LatestRun(ctx, bundle)

		return err
	})

	return result, err
}

// GetArtifacts retrieves the artifacts of a run with telemetry.
func (r *InstrumentedRunRepository) GetArtifacts(ctx context.Context, runID string) ([]storage.ArtifactRecord, error) {
	var result []storage.ArtifactRecord

	err := r.telemetry.InstrumentDBOperation(ctx, "get_artifacts", func(ctx context.Context) error {
		var err error

		result, err = r.read.GetArtifacts(ctx, runID)

		return err
	})

	return result, err
}
