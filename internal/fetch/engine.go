package fetch

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/maxedout/modelfetch/internal/artifact"
	"github.com/maxedout/modelfetch/internal/logctx"
	"github.com/maxedout/modelfetch/internal/progress"
	"github.com/maxedout/modelfetch/internal/telemetry"
)

const dirPerm = 0o755

// Options tunes the transfer engine. Zero values fall back to the defaults,
// except BackoffBase and TestCap where zero is meaningful.
type Options struct {
	ChunkSize        int
	ReadTimeout      time.Duration
	Retries          int
	ProgressInterval time.Duration
	BackoffBase      time.Duration
	// TestCap stops each transfer after this many bytes and skips
	// verification. Zero disables it.
	TestCap       int64
	PartialSuffix string
}

// DefaultOptions returns the production settings.
func DefaultOptions() Options {
	return Options{
		ChunkSize:        DefaultChunkSize,
		ReadTimeout:      5 * time.Minute,
		Retries:          3,
		ProgressInterval: 100 * time.Millisecond,
		BackoffBase:      2 * time.Second,
		PartialSuffix:    artifact.DefaultPartialSuffix,
	}
}

func (o Options) withDefaults() Options {
	def := DefaultOptions()

	if o.ChunkSize <= 0 {
		o.ChunkSize = def.ChunkSize
	}

	if o.ReadTimeout <= 0 {
		o.ReadTimeout = def.ReadTimeout
	}

	if o.Retries <= 0 {
		o.Retries = def.Retries
	}

	if o.ProgressInterval <= 0 {
		o.ProgressInterval = def.ProgressInterval
	}

	if o.BackoffBase < 0 {
		o.BackoffBase = def.BackoffBase
	}

	if o.PartialSuffix == "" {
		o.PartialSuffix = def.PartialSuffix
	}

	return o
}

// Engine downloads artifacts into the local cache with resume, retries and
// SHA-256 verification.
type Engine struct {
	client    *Client
	opts      Options
	reporter  *progress.Reporter
	telemetry *telemetry.Telemetry
	sleep     func(ctx context.Context, d time.Duration) error
}

// NewEngine creates an Engine. reporter and tel may be nil.
func NewEngine(client *Client, opts Options, reporter *progress.Reporter, tel *telemetry.Telemetry) *Engine {
	return &Engine{
		client:    client,
		opts:      opts.withDefaults(),
		reporter:  reporter,
		telemetry: tel,
		sleep:     sleepContext,
	}
}

// Options returns the effective options.
func (e *Engine) Options() Options {
	return e.opts
}

// Download makes d.LocalPath hold a file whose SHA-256 equals d.Fingerprint.
// Failures are reported in the returned Report; the error is non-nil only
// when ctx is cancelled, in which case any partial file is left on disk.
func (e *Engine) Download(ctx context.Context, d artifact.Descriptor) (artifact.Report, error) {
	var (
		report artifact.Report
		runErr error
	)

	_ = e.telemetry.InstrumentDownload(ctx, func(ctx context.Context) error {
		report, runErr = e.download(ctx, d)
		if runErr != nil {
			return runErr
		}

		return report.Err
	})

	e.telemetry.RecordArtifact(string(report.State))

	return report, runErr
}

func (e *Engine) download(ctx context.Context, d artifact.Descriptor) (artifact.Report, error) {
	logger := logctx.LoggerFromContext(ctx).With("artifact", d.Name())
	ctx = logctx.WithLogger(ctx, logger)

	start := time.Now()
	report := artifact.Report{Descriptor: d}

	finish := func(state artifact.State, err error) artifact.Report {
		report.State = state
		report.Err = err
		report.Duration = time.Since(start)

		return report
	}

	present, err := e.checkExisting(ctx, d)
	if err != nil {
		return finish(artifact.StateFailed, err), err
	}

	if present {
		logger.Info("artifact already present and verified", "path", d.LocalPath)

		return finish(artifact.StateSatisfied, nil), nil
	}

	rawURL := e.client.URL(d.RemotePath)
	tmp := artifact.PartialPath(d, e.opts.PartialSuffix)

	expected, known := e.client.ProbeSize(ctx, rawURL)
	if err := ctx.Err(); err != nil {
		return finish(artifact.StateFailed, err), err
	}

	if !known {
		expected = -1
	}

	logger.Info("downloading artifact", "url", rawURL, "path", d.LocalPath, "size", sizeAttr(expected))

	var lastErr error

	for attempt := 1; attempt <= e.opts.Retries; attempt++ {
		report.Attempts = attempt

		var res transferResult

		err := e.telemetry.InstrumentAttempt(ctx, attempt, func(ctx context.Context) error {
			var err error
			res, err = e.attempt(ctx, d, rawURL, tmp, expected)

			return err
		})
		report.Bytes = res.written

		if err == nil {
			if res.capped {
				removePartial(ctx, tmp)
				logger.Info("test transfer finished, verification skipped", "bytes", res.written)

				return finish(artifact.StateSampled, nil), nil
			}

			logger.Info("artifact verified", "path", d.LocalPath, "attempt", attempt, "size", humanize.IBytes(uint64(res.written)))

			return finish(artifact.StateVerified, nil), nil
		}

		if ctxErr := ctx.Err(); ctxErr != nil {
			logger.Warn("download interrupted, partial file kept", "partial", tmp, "bytes", res.written)

			return finish(artifact.StateFailed, ctxErr), ctxErr
		}

		lastErr = err

		if artifact.IsCorruption(err) {
			removePartial(ctx, tmp)
		}

		logger.Warn("download attempt failed", "attempt", attempt, "max_attempts", e.opts.Retries, "err", err)

		if attempt < e.opts.Retries {
			wait := e.opts.BackoffBase * time.Duration(1<<attempt)

			logger.Info("retrying download", "wait", wait.String())

			if err := e.sleep(ctx, wait); err != nil {
				return finish(artifact.StateFailed, err), err
			}
		}
	}

	// Retries are spent; a later run starts clean.
	removePartial(ctx, tmp)

	exhausted := &artifact.ExhaustedError{
		RemotePath: d.RemotePath,
		LocalPath:  d.LocalPath,
		Attempts:   e.opts.Retries,
		Last:       lastErr,
	}

	logger.Error("download failed", "remote", d.RemotePath, "path", d.LocalPath, "err", lastErr)

	return finish(artifact.StateFailed, exhausted), nil
}

// attempt performs one transfer and, unless capped, verifies and promotes
// the partial file.
func (e *Engine) attempt(ctx context.Context, d artifact.Descriptor, rawURL, tmp string, expected int64) (transferResult, error) {
	dir := filepath.Dir(d.LocalPath)
	if err := os.MkdirAll(dir, dirPerm); err != nil {
		return transferResult{}, &artifact.LocalIOError{Op: "mkdir", Path: dir, Err: err}
	}

	res, err := e.transferOnce(ctx, d, rawURL, tmp, expected)
	if err != nil || res.capped {
		return res, err
	}

	digest, err := Fingerprint(ctx, tmp, e.opts.ChunkSize)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return res, ctxErr
		}

		return res, &artifact.LocalIOError{Op: "verify", Path: tmp, Err: err}
	}

	if !d.MatchesFingerprint(digest) {
		return res, &artifact.FingerprintMismatchError{Expected: d.Fingerprint, Got: digest}
	}

	if err := os.Rename(tmp, d.LocalPath); err != nil {
		return res, &artifact.LocalIOError{Op: "rename", Path: d.LocalPath, Err: err}
	}

	return res, nil
}

// checkExisting reports whether LocalPath already holds the expected
// content. A mismatching or unreadable file is removed.
func (e *Engine) checkExisting(ctx context.Context, d artifact.Descriptor) (bool, error) {
	logger := logctx.LoggerFromContext(ctx)

	if _, err := os.Stat(d.LocalPath); err != nil {
		return false, nil
	}

	digest, err := Fingerprint(ctx, d.LocalPath, e.opts.ChunkSize)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return false, ctxErr
		}

		logger.Warn("existing file unreadable, treating as absent", "path", d.LocalPath, "err", err)
	} else if d.MatchesFingerprint(digest) {
		return true, nil
	} else {
		logger.Warn("existing file fingerprint mismatch, removing", "path", d.LocalPath, "expected", d.Fingerprint, "got", digest)
	}

	if err := os.Remove(d.LocalPath); err != nil && !errors.Is(err, os.ErrNotExist) {
		logger.Warn("failed to remove existing file", "path", d.LocalPath, "err", err)
	}

	return false, nil
}

func removePartial(ctx context.Context, tmp string) {
	if err := os.Remove(tmp); err != nil && !errors.Is(err, os.ErrNotExist) {
		logctx.LoggerFromContext(ctx).Warn("failed to remove partial file", "partial", tmp, "err", err)
	}
}

func sizeAttr(size int64) string {
	if size < 0 {
		return "unknown"
	}

	return humanize.IBytes(uint64(size))
}
