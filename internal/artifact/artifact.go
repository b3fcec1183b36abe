package artifact

import (
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
)

// DefaultPartialSuffix is appended to LocalPath to name the in-progress file.
const DefaultPartialSuffix = ".part"

var validate = validator.New(validator.WithRequiredStructEnabled())

// Descriptor identifies one artifact to fetch. Two descriptors with the same
// LocalPath refer to the same artifact.
type Descriptor struct {
	RemotePath  string `toml:"remote" validate:"required"`
	LocalPath   string `toml:"local" validate:"required"`
	Fingerprint string `toml:"sha256" validate:"required,len=64,hexadecimal"`
}

// Validate checks the descriptor fields.
func (d Descriptor) Validate() error {
	if err := validate.Struct(d); err != nil {
		return fmt.Errorf("invalid artifact %q: %w", d.LocalPath, err)
	}

	return nil
}

// Name is the base name of the local file.
func (d Descriptor) Name() string {
	return filepath.Base(d.LocalPath)
}

// MatchesFingerprint compares a computed digest with the expected one, ignoring case.
func (d Descriptor) MatchesFingerprint(digest string) bool {
	return strings.EqualFold(d.Fingerprint, digest)
}

// PartialPath returns the path of the in-progress file for d.
func PartialPath(d Descriptor, suffix string) string {
	if suffix == "" {
		suffix = DefaultPartialSuffix
	}

	return d.LocalPath + suffix
}

// State is the terminal outcome of one Download call.
type State string

const (
	// StateSatisfied means a verified file was already present; no bytes moved.
	StateSatisfied State = "satisfied"
	// StateVerified means the file was transferred, verified and promoted.
	StateVerified State = "verified"
	// StateSampled means a capped test transfer ran; nothing was promoted.
	StateSampled State = "sampled"
	// StateFailed means all attempts were exhausted.
	StateFailed State = "failed"
)

// Report describes the outcome of downloading a single artifact.
type Report struct {
	Descriptor Descriptor
	State      State
	Attempts   int
	Bytes      int64
	Duration   time.Duration
	Err        error
}

// OK reports whether the artifact is usable at LocalPath.
func (r Report) OK() bool {
	return r.State == StateSatisfied || r.State == StateVerified
}
