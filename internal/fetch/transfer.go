package fetch

import (
	"context"
	"errors"
	"io"
	"net/http"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/maxedout/modelfetch/internal/artifact"
	"github.com/maxedout/modelfetch/internal/logctx"
	"github.com/maxedout/modelfetch/internal/progress"
)

const filePerm = 0o644

var errStalled = errors.New("no data received within read timeout")

type transferResult struct {
	written int64 // bytes in the partial file when the transfer ended
	total   int64 // expected total, -1 when unknown
	capped  bool
}

// transferOnce runs a single attempt of streaming rawURL into tmp. An existing
// non-empty tmp is resumed with a Range request. expected is -1 when the
// size is unknown.
func (e *Engine) transferOnce(ctx context.Context, d artifact.Descriptor, rawURL, tmp string, expected int64) (transferResult, error) {
	logger := logctx.LoggerFromContext(ctx)
	res := transferResult{total: expected}

	offset := e.resumeOffset(tmp, expected)
	if expected >= 0 && offset == expected {
		logger.Info("partial file already complete", "bytes", offset)

		res.written = offset

		return res, nil
	}

	reqCtx, cancel := context.WithCancelCause(ctx)
	defer cancel(nil)

	resp, err := e.client.Get(reqCtx, rawURL, offset)
	if err != nil {
		return res, err
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusPartialContent && offset > 0:
		logger.Info("resuming download", "offset", offset)
	case resp.StatusCode == http.StatusRequestedRangeNotSatisfiable:
		return res, &artifact.NetworkError{Operation: "transfer", StatusCode: resp.StatusCode, Message: "range not satisfiable"}
	case resp.StatusCode >= 200 && resp.StatusCode <= 299:
		if offset > 0 {
			logger.Warn("server ignored range request, restarting from zero", "status", resp.StatusCode)

			offset = 0
		}
	default:
		return res, &artifact.NetworkError{Operation: "transfer", StatusCode: resp.StatusCode, Message: resp.Status}
	}

	if res.total < 0 {
		res.total = responseTotal(resp, offset)
	}

	tracker := e.reporter.Track(d.Name())
	res.written = offset

	defer func() { tracker.Finish(res.written, res.total) }()

	watchdog := time.AfterFunc(e.opts.ReadTimeout, func() { cancel(errStalled) })
	defer watchdog.Stop()

	body := &idleReader{r: resp.Body, timer: watchdog, timeout: e.opts.ReadTimeout}

	// The cap bounds what is read, so progress never runs ahead of the file.
	var src io.Reader = body
	if e.opts.TestCap > 0 {
		src = io.LimitReader(body, max(e.opts.TestCap-offset, 0))
	}

	pr := progress.NewReader(src, offset, res.total, e.opts.ProgressInterval, tracker.Update)

	out := &lazyFile{path: tmp, append: offset > 0}
	defer out.Close()

	buf := make([]byte, e.opts.ChunkSize)

	for {
		if err := ctx.Err(); err != nil {
			return res, err
		}

		if e.opts.TestCap > 0 && res.written >= e.opts.TestCap {
			logger.Info("test cap reached, stopping transfer", "bytes", res.written)

			res.capped = true

			break
		}

		n, rerr := pr.Read(buf)
		if n > 0 {
			if err := out.Write(buf[:n]); err != nil {
				return res, err
			}

			res.written += int64(n)
			e.telemetry.RecordBytes(int64(n))
		}

		if errors.Is(rerr, io.EOF) {
			break
		}

		if rerr != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return res, ctxErr
			}

			if errors.Is(context.Cause(reqCtx), errStalled) {
				return res, &artifact.NetworkError{Operation: "transfer", Message: errStalled.Error(), Err: errStalled}
			}

			return res, &artifact.NetworkError{Operation: "transfer", Message: rerr.Error(), Err: rerr}
		}
	}

	if err := out.Commit(); err != nil {
		return res, err
	}

	if !res.capped && res.total >= 0 && res.written != res.total {
		return res, &artifact.SizeMismatchError{Expected: res.total, Got: res.written}
	}

	return res, nil
}

// resumeOffset returns the size of an existing partial worth resuming.
func (e *Engine) resumeOffset(tmp string, expected int64) int64 {
	if e.opts.TestCap > 0 {
		return 0
	}

	info, err := os.Stat(tmp)
	if err != nil || info.Size() == 0 {
		return 0
	}

	if expected >= 0 && info.Size() > expected {
		return 0
	}

	return info.Size()
}

// responseTotal derives the full resource size from the response headers.
func responseTotal(resp *http.Response, offset int64) int64 {
	if resp.StatusCode == http.StatusPartialContent {
		if _, total, ok := strings.Cut(resp.Header.Get("Content-Range"), "/"); ok {
			if n, err := strconv.ParseInt(strings.TrimSpace(total), 10, 64); err == nil {
				return n
			}
		}
	}

	if resp.ContentLength < 0 {
		return -1
	}

	return resp.ContentLength + offset
}

// idleReader pushes the watchdog deadline forward on every read.
type idleReader struct {
	r       io.Reader
	timer   *time.Timer
	timeout time.Duration
}

func (ir *idleReader) Read(p []byte) (int, error) {
	n, err := ir.r.Read(p)
	ir.timer.Reset(ir.timeout)

	return n, err
}

// lazyFile creates the partial file on the first write so that a failed
// request leaves nothing behind.
type lazyFile struct {
	path   string
	append bool
	f      *os.File
}

func (lf *lazyFile) Write(p []byte) error {
	if lf.f == nil {
		flags := os.O_CREATE | os.O_WRONLY
		if lf.append {
			flags |= os.O_APPEND
		} else {
			flags |= os.O_TRUNC
		}

		f, err := os.OpenFile(lf.path, flags, filePerm)
		if err != nil {
			return &artifact.LocalIOError{Op: "open", Path: lf.path, Err: err}
		}

		lf.f = f
	}

	if _, err := lf.f.Write(p); err != nil {
		return &artifact.LocalIOError{Op: "write", Path: lf.path, Err: err}
	}

	return nil
}

// Close closes the file if it was opened.
func (lf *lazyFile) Close() error {
	if lf.f == nil {
		return nil
	}

	err := lf.f.Close()
	lf.f = nil

	if err != nil {
		return &artifact.LocalIOError{Op: "close", Path: lf.path, Err: err}
	}

	return nil
}

// Commit makes sure the file exists, so that zero-length artifacts can be
// promoted, and closes it.
func (lf *lazyFile) Commit() error {
	if lf.f == nil {
		if err := lf.Write(nil); err != nil {
			return err
		}
	}

	return lf.Close()
}
