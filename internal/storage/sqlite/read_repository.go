package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/maxedout/modelfetch/internal/storage"
)

type RunReadRepository struct {
	db *sql.DB
}

func NewRunReadRepository(dbConn *sql.DB) *RunReadRepository {
	return &RunReadRepository{db: dbConn}
}

// LatestRun returns the most recently started run of bundle.
func (r *RunReadRepository) LatestRun(ctx context.Context, bundle string) (storage.RunRecord, error) {
	var (
		run               storage.RunRecord
		started, finished sql.NullString
	)

	err := r.db.QueryRowContext(ctx,
		`SELECT
			id,
			bundle,
			status,
			started_at,
			finished_at,
			satisfied,
			verified,
			sampled,
			failed
		FROM runs
		WHERE bundle = ?
		ORDER BY started_at DESC
		LIMIT 1`, bundle,
	).Scan(&run.ID, &run.Bundle, &run.Status, &started, &finished, &run.Satisfied, &run.Verified, &run.Sampled, &run.Failed)
	if errors.Is(err, sql.ErrNoRows) {
		return storage.RunRecord{}, fmt.Errorf("bundle %s: %w", bundle, storage.ErrNotFound)
	}

	if err != nil {
		return storage.RunRecord{}, err
	}

	if run.StartedAt, err = parseTime(started); err != nil {
		return storage.RunRecord{}, err
	}

	if run.FinishedAt, err = parseTime(finished); err != nil {
		return storage.RunRecord{}, err
	}

	return run, nil
}

// GetArtifacts returns the artifact outcomes of a run in the order they were recorded.
func (r *RunReadRepository) GetArtifacts(ctx context.Context, runID string) ([]storage.ArtifactRecord, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT run_id, name, remote_path, local_path, state, attempts, bytes, duration_ms, error, recorded_at
		FROM artifacts
		WHERE run_id = ?
		ORDER BY id`, runID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var records []storage.ArtifactRecord

	for rows.Next() {
		var (
			record     storage.ArtifactRecord
			durationMS int64
			errText    sql.NullString
			recorded   sql.NullString
		)

		if err := rows.Scan(&record.RunID, &record.Name, &record.RemotePath, &record.LocalPath, &record.State,
			&record.Attempts, &record.Bytes, &durationMS, &errText, &recorded); err != nil {
			return nil, err
		}

		record.Duration = time.Duration(durationMS) * time.Millisecond
		record.Error = errText.String

		if record.RecordedAt, err = parseTime(recorded); err != nil {
			return nil, err
		}

		records = append(records, record)
	}

	return records, rows.Err()
}
