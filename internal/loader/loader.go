// Package loader resolves a single catalog artifact to a verified local file,
// downloading it on first use.
package loader

import (
	"context"
	"fmt"
	"time"

	"github.com/maxedout/modelfetch/internal/artifact"
	"github.com/maxedout/modelfetch/internal/cachelock"
	"github.com/maxedout/modelfetch/internal/catalog"
	"github.com/maxedout/modelfetch/internal/logctx"
	"github.com/maxedout/modelfetch/internal/queue"
	"golang.org/x/sync/singleflight"
)

const lockRetryDelay = time.Second

// Loader fetches artifacts by name.
type Loader struct {
	catalog    *catalog.Catalog
	downloader queue.Downloader
	modelDir   string
	group      singleflight.Group
}

// New creates a Loader storing files under modelDir.
func New(c *catalog.Catalog, downloader queue.Downloader, modelDir string) *Loader {
	return &Loader{
		catalog:    c,
		downloader: downloader,
		modelDir:   modelDir,
	}
}

// Choices lists the UNET picker rows.
func (l *Loader) Choices() []catalog.Choice {
	return l.catalog.UNETChoices()
}

// Ensure returns the local path of the named artifact once it is present and
// verified. Concurrent calls for the same artifact share one download.
func (l *Loader) Ensure(ctx context.Context, name string) (string, error) {
	d, err := l.catalog.Lookup(name)
	if err != nil {
		return "", err
	}

	d = catalog.Under(d, l.modelDir)

	v, err, shared := l.group.Do(d.LocalPath, func() (any, error) {
		return l.fetch(ctx, d)
	})
	if err != nil {
		return "", err
	}

	if shared {
		logctx.LoggerFromContext(ctx).Debug("joined in-flight download", "artifact", name)
	}

	return v.(string), nil
}

func (l *Loader) fetch(ctx context.Context, d artifact.Descriptor) (string, error) {
	logger := logctx.LoggerFromContext(ctx).With("artifact", d.Name())

	lock := cachelock.New(l.modelDir)
	if err := lock.Acquire(ctx, lockRetryDelay); err != nil {
		return "", err
	}

	defer func() {
		if err := lock.Release(); err != nil {
			logger.Warn("failed to release cache lock", "err", err)
		}
	}()

	report, err := l.downloader.Download(ctx, d)
	if err != nil {
		return "", err
	}

	switch report.State {
	case artifact.StateSatisfied:
		logger.Info("artifact found, skipping download", "path", d.LocalPath)
	case artifact.StateVerified:
		logger.Info("artifact downloaded", "path", d.LocalPath, "attempts", report.Attempts)
	case artifact.StateSampled:
		return "", fmt.Errorf("%s: capped test transfer does not produce a usable file", d.Name())
	default:
		return "", report.Err
	}

	return d.LocalPath, nil
}
