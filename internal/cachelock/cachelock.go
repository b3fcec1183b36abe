// Package cachelock serializes writers of a model directory across processes.
package cachelock

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/gofrs/flock"
)

// FileName is the lock file created inside the model directory.
const FileName = ".modelfetch.lock"

// ErrLocked is returned when another process holds the lock.
var ErrLocked = errors.New("model directory is locked by another process")

// Lock is an exclusive advisory lock on a model directory.
type Lock struct {
	path string
	fl   *flock.Flock
}

// New returns an unlocked Lock for dir. Every Lock opens its own descriptor,
// so two Locks on one dir exclude each other within a process too. A single
// Lock must not be shared between concurrent holders.
func New(dir string) *Lock {
	path := filepath.Join(dir, FileName)

	return &Lock{path: path, fl: flock.New(path)}
}

// Path is the lock file location.
func (l *Lock) Path() string {
	return l.path
}

// TryAcquire takes the lock without waiting.
func (l *Lock) TryAcquire() error {
	if err := l.ensureDir(); err != nil {
		return err
	}

	ok, err := l.fl.TryLock()
	if err != nil {
		return fmt.Errorf("acquire lock: %w", err)
	}

	if !ok {
		return ErrLocked
	}

	return nil
}

// Acquire waits for the lock, polling every retryDelay until ctx is done.
func (l *Lock) Acquire(ctx context.Context, retryDelay time.Duration) error {
	if err := l.ensureDir(); err != nil {
		return err
	}

	ok, err := l.fl.TryLockContext(ctx, retryDelay)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return fmt.Errorf("%w: %w", ErrLocked, ctxErr)
		}

		return fmt.Errorf("acquire lock: %w", err)
	}

	if !ok {
		return ErrLocked
	}

	return nil
}

// Release drops the lock. The lock file is left in place.
func (l *Lock) Release() error {
	return l.fl.Unlock()
}

func (l *Lock) ensureDir() error {
	if err := os.MkdirAll(filepath.Dir(l.path), 0o755); err != nil {
		return fmt.Errorf("create lock directory: %w", err)
	}

	return nil
}
