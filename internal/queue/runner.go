package queue

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/hashicorp/go-multierror"
	"github.com/maxedout/modelfetch/internal/artifact"
	"github.com/maxedout/modelfetch/internal/logctx"
	"github.com/maxedout/modelfetch/internal/progress"
)

// Downloader fetches a single artifact. The error is non-nil only on
// cancellation.
type Downloader interface {
	Download(ctx context.Context, d artifact.Descriptor) (artifact.Report, error)
}

// Recorder persists per-artifact outcomes.
type Recorder interface {
	RecordArtifact(ctx context.Context, runID string, report artifact.Report) error
}

// BatchReport summarizes one pass over an artifact list.
type BatchReport struct {
	RunID       string
	StartedAt   time.Time
	FinishedAt  time.Time
	Reports     []artifact.Report
	Failures    []artifact.Report
	Satisfied   int
	Verified    int
	Sampled     int
	Interrupted bool
}

// Failed is the number of artifacts that exhausted their attempts.
func (b BatchReport) Failed() int {
	return len(b.Failures)
}

// Err aggregates the failure errors, or returns nil when there are none.
func (b BatchReport) Err() error {
	var result *multierror.Error

	for _, f := range b.Failures {
		result = multierror.Append(result, f.Err)
	}

	return result.ErrorOrNil()
}

// Runner processes artifacts one at a time, in order.
type Runner struct {
	downloader Downloader
	reporter   *progress.Reporter
	recorder   Recorder
	newID      func() string
	now        func() time.Time
}

// Option configures a Runner.
type Option func(*Runner)

// WithRecorder persists every report through rec.
func WithRecorder(rec Recorder) Option {
	return func(r *Runner) { r.recorder = rec }
}

// WithRunID fixes the run id instead of generating one.
func WithRunID(id string) Option {
	return func(r *Runner) { r.newID = func() string { return id } }
}

// NewRunner creates a Runner. reporter may be nil.
func NewRunner(downloader Downloader, reporter *progress.Reporter, opts ...Option) *Runner {
	r := &Runner{
		downloader: downloader,
		reporter:   reporter,
		newID:      func() string { return uuid.New().String() },
		now:        time.Now,
	}

	for _, opt := range opts {
		opt(r)
	}

	return r
}

// Run downloads every artifact in list. A failed artifact does not stop the
// batch. On cancellation the batch stops, is marked interrupted and ctx.Err()
// is returned alongside the partial report.
func (r *Runner) Run(ctx context.Context, list []artifact.Descriptor) (BatchReport, error) {
	batch := BatchReport{RunID: r.newID(), StartedAt: r.now()}
	logger := logctx.LoggerFromContext(ctx).With("run_id", batch.RunID)
	ctx = logctx.WithLogger(ctx, logger)

	for i, d := range list {
		if err := ctx.Err(); err != nil {
			batch.Interrupted = true
			batch.FinishedAt = r.now()

			return batch, err
		}

		r.reporter.Overall(i+1, len(list), d.Name())
		logger.Info("now processing", "index", i+1, "total", len(list), "artifact", d.Name())

		report, err := r.downloader.Download(ctx, d)
		if err != nil {
			logger.Warn("batch interrupted", "artifact", d.Name(), "err", err)

			batch.Interrupted = true
			batch.FinishedAt = r.now()

			return batch, err
		}

		batch.Reports = append(batch.Reports, report)

		switch report.State {
		case artifact.StateSatisfied:
			batch.Satisfied++
		case artifact.StateVerified:
			batch.Verified++
		case artifact.StateSampled:
			batch.Sampled++
		default:
			batch.Failures = append(batch.Failures, report)
		}

		if r.recorder != nil {
			if err := r.recorder.RecordArtifact(ctx, batch.RunID, report); err != nil {
				logger.Warn("failed to record artifact outcome", "artifact", d.Name(), "err", err)
			}
		}
	}

	batch.FinishedAt = r.now()

	logger.Info("batch finished",
		"satisfied", batch.Satisfied,
		"verified", batch.Verified,
		"sampled", batch.Sampled,
		"failed", batch.Failed(),
	)

	return batch, nil
}
