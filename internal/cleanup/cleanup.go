package cleanup

import (
	"context"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/maxedout/modelfetch/internal/logctx"
)

// DeleteStalePartials walks root and deletes files ending in suffix whose
// modification time is older than keepFor. It returns the removed paths.
func DeleteStalePartials(ctx context.Context, root, suffix string, keepFor time.Duration) ([]string, error) {
	logger := logctx.LoggerFromContext(ctx)
	now := time.Now()

	var removed []string

	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			if os.IsNotExist(err) {
				return nil // already deleted
			}

			return err
		}

		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}

		if d.IsDir() || !strings.HasSuffix(d.Name(), suffix) {
			return nil
		}

		info, err := d.Info()
		if err != nil {
			if os.IsNotExist(err) {
				return nil
			}

			logger.Error("Failed to stat partial file", "file", path, "err", err)

			return err
		}

		if now.Sub(info.ModTime()) <= keepFor {
			return nil
		}

		if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
			logger.Error("Failed to delete stale partial file", "file", path, "err", err)

			return err
		}

		logger.Info("Deleted stale partial file", "file", path, "age", now.Sub(info.ModTime()).Round(time.Second))

		removed = append(removed, path)

		return nil
	})

	return removed, err
}
