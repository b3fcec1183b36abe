// Package install runs a whole catalog bundle through the queue and records
// the outcome: completion marker, run history, notification and metrics.
package install

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/google/uuid"
	"github.com/maxedout/modelfetch/internal/cachelock"
	"github.com/maxedout/modelfetch/internal/catalog"
	"github.com/maxedout/modelfetch/internal/logctx"
	"github.com/maxedout/modelfetch/internal/notifier"
	"github.com/maxedout/modelfetch/internal/preflight"
	"github.com/maxedout/modelfetch/internal/progress"
	"github.com/maxedout/modelfetch/internal/queue"
	"github.com/maxedout/modelfetch/internal/storage"
	"github.com/maxedout/modelfetch/internal/telemetry"
)

// ErrAlreadyRunning is returned when the bundle is already being installed
// by this process.
var ErrAlreadyRunning = errors.New("install already running")

// Batch outcomes recorded in telemetry.
const (
	outcomeSuccess     = "success"
	outcomeFailed      = "failed"
	outcomeInterrupted = "interrupted"
	outcomeSampled     = "sampled"
)

// Config holds the installer paths and addresses.
type Config struct {
	BaseURL         string
	ReachabilityURL string
	ModelDir        string
	MarkerDir       string
}

// Installer installs bundles. At most one run per bundle is active at a time.
type Installer struct {
	cfg        Config
	catalog    *catalog.Catalog
	downloader queue.Downloader
	reacher    preflight.Reacher
	reporter   *progress.Reporter
	history    storage.RunWriteRepository
	notifier   notifier.Notifier
	telemetry  *telemetry.Telemetry

	mu      sync.Mutex
	running map[string]string
	wg      sync.WaitGroup
}

// Option configures an Installer.
type Option func(*Installer)

// WithReporter sends queue and progress lines to r.
func WithReporter(r *progress.Reporter) Option {
	return func(i *Installer) { i.reporter = r }
}

// WithHistory records every run and artifact in repo.
func WithHistory(repo storage.RunWriteRepository) Option {
	return func(i *Installer) { i.history = repo }
}

// WithNotifier posts a summary after every run.
func WithNotifier(n notifier.Notifier) Option {
	return func(i *Installer) { i.notifier = n }
}

// WithTelemetry records batch metrics.
func WithTelemetry(t *telemetry.Telemetry) Option {
	return func(i *Installer) { i.telemetry = t }
}

// New creates an Installer.
func New(cfg Config, c *catalog.Catalog, downloader queue.Downloader, reacher preflight.Reacher, opts ...Option) *Installer {
	i := &Installer{
		cfg:        cfg,
		catalog:    c,
		downloader: downloader,
		reacher:    reacher,
		running:    make(map[string]string),
	}

	for _, opt := range opts {
		opt(i)
	}

	return i
}

// MarkerPath is the completion marker of bundle.
func MarkerPath(markerDir, bundle string) string {
	return filepath.Join(markerDir, fmt.Sprintf("download_%s.done", bundle))
}

// Running reports whether bundle is being installed and the id of that run.
func (i *Installer) Running(bundle string) (string, bool) {
	i.mu.Lock()
	defer i.mu.Unlock()

	id, ok := i.running[bundle]

	return id, ok
}

// Run installs bundle and blocks until the batch ends.
func (i *Installer) Run(ctx context.Context, bundle string) (queue.BatchReport, error) {
	runID, err := i.claim(bundle)
	if err != nil {
		return queue.BatchReport{}, err
	}
	defer i.release(bundle)

	return i.run(ctx, bundle, runID)
}

// Start installs bundle in the background and returns the run id. The run
// stops when ctx is cancelled.
func (i *Installer) Start(ctx context.Context, bundle string) (string, error) {
	if _, err := i.catalog.Bundle(bundle); err != nil {
		return "", err
	}

	runID, err := i.claim(bundle)
	if err != nil {
		return "", err
	}

	i.wg.Add(1)

	go func() {
		defer i.wg.Done()
		defer i.release(bundle)

		if _, err := i.run(ctx, bundle, runID); err != nil {
			logctx.LoggerFromContext(ctx).Error("background install ended with error", "bundle", bundle, "run_id", runID, "err", err)
		}
	}()

	return runID, nil
}

// Wait blocks until every background run has returned.
func (i *Installer) Wait() {
	i.wg.Wait()
}

func (i *Installer) claim(bundle string) (string, error) {
	i.mu.Lock()
	defer i.mu.Unlock()

	if _, ok := i.running[bundle]; ok {
		return "", fmt.Errorf("bundle %s: %w", bundle, ErrAlreadyRunning)
	}

	id := uuid.New().String()
	i.running[bundle] = id

	return id, nil
}

func (i *Installer) release(bundle string) {
	i.mu.Lock()
	defer i.mu.Unlock()

	delete(i.running, bundle)
}

func (i *Installer) run(ctx context.Context, bundle, runID string) (queue.BatchReport, error) {
	ctx = logctx.WithRun(ctx, runID, bundle)
	logger := logctx.LoggerFromContext(ctx)

	list, err := i.catalog.Resolve(bundle, i.cfg.ModelDir)
	if err != nil {
		return queue.BatchReport{}, err
	}

	results, err := preflight.Run(ctx, preflight.Config{
		BaseURL:         i.cfg.BaseURL,
		ReachabilityURL: i.cfg.ReachabilityURL,
		ModelDir:        i.cfg.ModelDir,
	}, i.reacher)
	for _, r := range results {
		logger.DebugContext(ctx, "preflight check", "check", r.Name, "passed", r.Passed, "detail", r.Detail)
	}

	if err != nil {
		i.telemetry.RecordSystemError("install", "preflight")

		return queue.BatchReport{}, err
	}

	// Each run opens its own lock file descriptor, so runs of different
	// bundles in this process exclude each other as well.
	lock := cachelock.New(i.cfg.ModelDir)
	if err := lock.TryAcquire(); err != nil {
		return queue.BatchReport{}, err
	}

	defer func() {
		if err := lock.Release(); err != nil {
			logger.WarnContext(ctx, "failed to release cache lock", "err", err)
		}
	}()

	marker := MarkerPath(i.cfg.MarkerDir, bundle)
	if err := os.Remove(marker); err != nil && !os.IsNotExist(err) {
		return queue.BatchReport{}, fmt.Errorf("failed to remove completion marker: %w", err)
	}

	started := time.Now()

	if i.history != nil {
		if err := i.history.StartRun(ctx, runID, bundle, started); err != nil {
			logger.WarnContext(ctx, "failed to record run start", "err", err)
		}
	}

	logger.InfoContext(ctx, "download queue ready", "files", len(list))

	opts := []queue.Option{queue.WithRunID(runID)}
	if i.history != nil {
		opts = append(opts, queue.WithRecorder(i.history))
	}

	batch, runErr := queue.NewRunner(i.downloader, i.reporter, opts...).Run(ctx, list)

	outcome := batchOutcome(batch)
	if outcome == outcomeSuccess {
		if err := writeMarker(marker); err != nil {
			logger.ErrorContext(ctx, "failed to write completion marker", "marker", marker, "err", err)
		}
	}

	// The run context may already be cancelled; bookkeeping must still land.
	finishCtx := context.WithoutCancel(ctx)

	if i.history != nil {
		if err := i.history.FinishRun(finishCtx, runRecord(bundle, batch, outcome)); err != nil {
			logger.WarnContext(ctx, "failed to record run finish", "err", err)
		}
	}

	if i.notifier != nil {
		if err := i.notifier.Notify(finishCtx, Summary(bundle, batch)); err != nil {
			logger.WarnContext(ctx, "failed to send notification", "err", err)
		}
	}

	i.telemetry.RecordBatch(outcome)

	logger.InfoContext(ctx, "install finished", "outcome", outcome, "elapsed", time.Since(started).Round(time.Second))

	return batch, runErr
}

func batchOutcome(b queue.BatchReport) string {
	switch {
	case b.Interrupted:
		return outcomeInterrupted
	case b.Failed() > 0:
		return outcomeFailed
	case b.Sampled > 0:
		return outcomeSampled
	default:
		return outcomeSuccess
	}
}

func runRecord(bundle string, b queue.BatchReport, outcome string) storage.RunRecord {
	status := storage.RunCompleted

	switch outcome {
	case outcomeInterrupted:
		status = storage.RunInterrupted
	case outcomeFailed:
		status = storage.RunFailed
	}

	return storage.RunRecord{
		ID:         b.RunID,
		Bundle:     bundle,
		Status:     status,
		StartedAt:  b.StartedAt,
		FinishedAt: b.FinishedAt,
		Satisfied:  b.Satisfied,
		Verified:   b.Verified,
		Sampled:    b.Sampled,
		Failed:     b.Failed(),
	}
}

func writeMarker(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}

	return os.WriteFile(path, []byte(time.Now().UTC().Format(time.RFC3339)+"\n"), 0o644)
}

// Summary renders a short plain-text report of a batch.
func Summary(bundle string, b queue.BatchReport) string {
	var sb strings.Builder

	var transferred int64
	for _, r := range b.Reports {
		transferred += r.Bytes
	}

	fmt.Fprintf(&sb, "modelfetch %s: %d satisfied, %d verified, %d failed (%s transferred)",
		bundle, b.Satisfied, b.Verified, b.Failed(), humanize.IBytes(uint64(transferred)))

	if b.Sampled > 0 {
		fmt.Fprintf(&sb, ", %d sampled", b.Sampled)
	}

	if b.Interrupted {
		sb.WriteString(", interrupted")
	}

	for _, f := range b.Failures {
		fmt.Fprintf(&sb, "\n- %s -> %s: %v", f.Descriptor.RemotePath, f.Descriptor.LocalPath, f.Err)
	}

	return sb.String()
}
