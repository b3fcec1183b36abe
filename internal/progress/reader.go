package progress

import (
	"errors"
	"io"
	"time"
)

// Reader wraps an io.Reader and reports the cumulative byte count via a
// callback at most once per interval, plus once when the stream ends.
type Reader struct {
	Reader     io.Reader
	Total      int64
	OnProgress func(read int64, total int64)
	totalRead  int64 // cumulative total, including any resume offset
	lastReport time.Time
	lastValue  int64
	interval   time.Duration
	now        func() time.Time
}

// NewReader returns a Reader that starts counting at offset. A total of -1
// means the size is unknown.
func NewReader(r io.Reader, offset, total int64, interval time.Duration, cb func(read int64, total int64)) *Reader {
	return &Reader{
		Reader:     r,
		Total:      total,
		OnProgress: cb,
		totalRead:  offset,
		lastValue:  -1,
		interval:   interval,
		now:        time.Now,
	}
}

// Read implements io.Reader.
func (pr *Reader) Read(p []byte) (int, error) {
	n, err := pr.Reader.Read(p)
	if n > 0 {
		pr.totalRead += int64(n)
	}

	if pr.OnProgress == nil {
		return n, err
	}

	now := pr.now()
	final := errors.Is(err, io.EOF) || (pr.Total > 0 && pr.totalRead >= pr.Total)

	if pr.totalRead == pr.lastValue {
		return n, err
	}

	if (n > 0 && now.Sub(pr.lastReport) >= pr.interval) || final {
		pr.OnProgress(pr.totalRead, pr.Total)
		pr.lastReport = now
		pr.lastValue = pr.totalRead
	}

	return n, err
}

// BytesRead returns the cumulative count.
func (pr *Reader) BytesRead() int64 {
	return pr.totalRead
}
