// Package preflight verifies that an install can start: the store address is
// usable, the store answers, and the model directory is writable. Any failed
// check aborts the run before the queue starts.
package preflight

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"os"
	"strings"
	"time"

	"golang.org/x/sys/unix"
)

// ErrFatal wraps every preflight failure.
var ErrFatal = errors.New("preflight failed")

const reachTimeout = 10 * time.Second

// Result is the outcome of one check.
type Result struct {
	Name   string
	Passed bool
	Detail string
}

// Reacher issues a single request and fails only on transport errors.
type Reacher interface {
	Reachable(ctx context.Context, rawURL string) error
}

// Config lists what Run checks.
type Config struct {
	BaseURL         string
	ReachabilityURL string
	ModelDir        string
}

// Run executes every check. The error wraps ErrFatal and names each failed check.
func Run(ctx context.Context, cfg Config, reacher Reacher) ([]Result, error) {
	results := []Result{
		CheckBaseURL(cfg.BaseURL),
		CheckReachable(ctx, reacher, cfg.ReachabilityURL),
		CheckDirectoryAccess("Model directory", cfg.ModelDir),
	}

	var failed []string

	for _, r := range results {
		if !r.Passed {
			failed = append(failed, r.Name+": "+r.Detail)
		}
	}

	if len(failed) > 0 {
		return results, fmt.Errorf("%w: %s", ErrFatal, strings.Join(failed, "; "))
	}

	return results, nil
}

// CheckBaseURL requires an absolute http or https URL.
func CheckBaseURL(raw string) Result {
	const name = "Base URL"

	u, err := url.Parse(raw)
	if err != nil {
		return Result{Name: name, Detail: fmt.Sprintf("invalid url (%v)", err)}
	}

	if u.Scheme != "http" && u.Scheme != "https" {
		return Result{Name: name, Detail: fmt.Sprintf("%q is not an http(s) url", raw)}
	}

	if u.Host == "" {
		return Result{Name: name, Detail: fmt.Sprintf("%q has no host", raw)}
	}

	return Result{Name: name, Passed: true, Detail: u.Host}
}

// CheckReachable sends one request to rawURL. Any HTTP status counts as reachable.
func CheckReachable(ctx context.Context, reacher Reacher, rawURL string) Result {
	const name = "Store"

	checkCtx, cancel := context.WithTimeout(ctx, reachTimeout)
	defer cancel()

	if err := reacher.Reachable(checkCtx, rawURL); err != nil {
		return Result{Name: name, Detail: fmt.Sprintf("no outbound connection to %s (%v)", rawURL, err)}
	}

	return Result{Name: name, Passed: true, Detail: "Reachable"}
}

// CheckDirectoryAccess creates the directory if needed and verifies it is readable/writable.
func CheckDirectoryAccess(name, path string) Result {
	if path == "" {
		return Result{Name: name, Detail: "path is empty"}
	}

	if err := os.MkdirAll(path, 0o755); err != nil {
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: create: %v)", path, err)}
	}

	info, err := os.Stat(path)
	if err != nil {
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: stat: %v)", path, err)}
	}

	if !info.IsDir() {
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: is not a directory)", path)}
	}

	if err := unix.Access(path, unix.R_OK|unix.W_OK|unix.X_OK); err != nil {
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: insufficient permissions: %v)", path, err)}
	}

	return Result{Name: name, Passed: true, Detail: fmt.Sprintf("%s (read/write ok)", path)}
}
