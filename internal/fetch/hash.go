package fetch

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/maxedout/modelfetch/internal/artifact"
)

// DefaultChunkSize is the read and write granularity for hashing and transfers.
const DefaultChunkSize = 8192

// Fingerprint streams the file at path through SHA-256 and returns the
// lowercase hex digest. Missing or unreadable files yield an error wrapping
// artifact.ErrUnreadable. Cancellation is checked between chunks.
func Fingerprint(ctx context.Context, path string, chunkSize int) (string, error) {
	if chunkSize <= 0 {
		chunkSize = DefaultChunkSize
	}

	f, err := os.Open(path)
	if err != nil {
		return "", fmt.Errorf("%w: %s: %w", artifact.ErrUnreadable, path, err)
	}
	defer f.Close()

	h := sha256.New()
	buf := make([]byte, chunkSize)

	for {
		if err := ctx.Err(); err != nil {
			return "", err
		}

		n, err := f.Read(buf)
		if n > 0 {
			h.Write(buf[:n])
		}

		if errors.Is(err, io.EOF) {
			break
		}

		if err != nil {
			return "", fmt.Errorf("%w: %s: %w", artifact.ErrUnreadable, path, err)
		}
	}

	return hex.EncodeToString(h.Sum(nil)), nil
}
