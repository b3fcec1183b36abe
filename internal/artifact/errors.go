package artifact

import (
	"errors"
	"fmt"
	"net/http"
)

// ErrUnreadable is returned when a local file cannot be opened or read.
// Callers treat the file as absent.
var ErrUnreadable = errors.New("file unreadable")

// NetworkError represents transport failures and unexpected HTTP responses
// from the remote store.
type NetworkError struct {
	Operation  string // The operation that failed (e.g., "probe", "transfer")
	StatusCode int    // HTTP status code, if applicable (0 for non-HTTP errors)
	Message    string
	Err        error
}

func (e *NetworkError) Error() string {
	if e.StatusCode > 0 {
		return fmt.Sprintf("network error during %s (HTTP %d): %s", e.Operation, e.StatusCode, e.Message)
	}

	return fmt.Sprintf("network error during %s: %s", e.Operation, e.Message)
}

func (e *NetworkError) Unwrap() error {
	return e.Err
}

// SizeMismatchError is returned when the number of bytes received differs from
// the expected total.
type SizeMismatchError struct {
	Expected int64
	Got      int64
}

func (e *SizeMismatchError) Error() string {
	return fmt.Sprintf("size mismatch: expected %d bytes, got %d", e.Expected, e.Got)
}

// FingerprintMismatchError is returned when the SHA-256 of a transferred file
// does not match the expected fingerprint.
type FingerprintMismatchError struct {
	Expected string
	Got      string
}

func (e *FingerprintMismatchError) Error() string {
	return fmt.Sprintf("sha256 mismatch: expected %s, got %s", e.Expected, e.Got)
}

// LocalIOError represents failures reading or writing the local cache.
type LocalIOError struct {
	Op   string // "open", "write", "rename", ...
	Path string
	Err  error
}

func (e *LocalIOError) Error() string {
	return fmt.Sprintf("local %s %s: %v", e.Op, e.Path, e.Err)
}

func (e *LocalIOError) Unwrap() error {
	return e.Err
}

// ExhaustedError is recorded when every attempt for an artifact failed.
type ExhaustedError struct {
	RemotePath string
	LocalPath  string
	Attempts   int
	Last       error
}

func (e *ExhaustedError) Error() string {
	return fmt.Sprintf("download of %s to %s failed after %d attempts: %v", e.RemotePath, e.LocalPath, e.Attempts, e.Last)
}

func (e *ExhaustedError) Unwrap() error {
	return e.Last
}

// IsCorruption reports whether err means the partial file can no longer be
// trusted and must be discarded before the next attempt.
func IsCorruption(err error) bool {
	var (
		sizeErr  *SizeMismatchError
		hashErr  *FingerprintMismatchError
		localErr *LocalIOError
		netErr   *NetworkError
	)

	if errors.As(err, &netErr) && netErr.StatusCode == http.StatusRequestedRangeNotSatisfiable {
		return true
	}

	return errors.As(err, &sizeErr) || errors.As(err, &hashErr) || errors.As(err, &localErr)
}
