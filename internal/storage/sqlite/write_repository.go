package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/maxedout/modelfetch/internal/artifact"
	"github.com/maxedout/modelfetch/internal/storage"
)

// RunWriteRepository implements storage.RunWriteRepository
// and stores run history in SQLite.
type RunWriteRepository struct {
	db  *sql.DB
	now func() time.Time
}

func NewRunWriteRepository(db *sql.DB) *RunWriteRepository {
	return &RunWriteRepository{db: db, now: time.Now}
}

func (r *RunWriteRepository) StartRun(ctx context.Context, runID, bundle string, at time.Time) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO runs (id, bundle, status, started_at) VALUES (?, ?, ?, ?)`,
		runID, bundle, storage.RunRunning, formatTime(at),
	)

	return err
}

// FinishRun stores the final status and tallies of a run started with StartRun.
func (r *RunWriteRepository) FinishRun(ctx context.Context, run storage.RunRecord) error {
	res, err := r.db.ExecContext(ctx,
		`UPDATE runs SET status = ?, finished_at = ?, satisfied = ?, verified = ?, sampled = ?, failed = ?
		WHERE id = ?`,
		run.Status, formatTime(run.FinishedAt), run.Satisfied, run.Verified, run.Sampled, run.Failed, run.ID,
	)
	if err != nil {
		return err
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}

	if affected == 0 {
		return fmt.Errorf("run %s: %w", run.ID, storage.ErrNotFound)
	}

	return nil
}

// RecordArtifact appends the outcome of one artifact to a run.
func (r *RunWriteRepository) RecordArtifact(ctx context.Context, runID string, report artifact.Report) error {
	var errText sql.NullString
	if report.Err != nil {
		errText = sql.NullString{String: report.Err.Error(), Valid: true}
	}

	_, err := r.db.ExecContext(ctx,
		`INSERT INTO artifacts (run_id, name, remote_path, local_path, state, attempts, bytes, duration_ms, error, recorded_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		runID,
		report.Descriptor.Name(),
		report.Descriptor.RemotePath,
		report.Descriptor.LocalPath,
		string(report.State),
		report.Attempts,
		report.Bytes,
		report.Duration.Milliseconds(),
		errText,
		formatTime(r.now()),
	)

	return err
}

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

func parseTime(s sql.NullString) (time.Time, error) {
	if !s.Valid || s.String == "" {
		return time.Time{}, nil
	}

	return time.Parse(time.RFC3339Nano, s.String)
}
