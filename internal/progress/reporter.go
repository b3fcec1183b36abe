package progress

import (
	"fmt"
	"io"
	"os"
	"sync"

	"github.com/dustin/go-humanize"
	"github.com/mattn/go-isatty"
)

const (
	// OverallPrefix starts every queue position line.
	OverallPrefix = "OVERALL::"
	// ProgressPrefix starts every per-file progress line.
	ProgressPrefix = "PROGRESS::"

	defaultBucket = 10
)

type sink struct {
	w        io.Writer
	terminal bool
}

// Reporter writes progress lines to one or more sinks. Terminal sinks get
// carriage-return overwrites, other sinks get one line per percentage bucket.
// A nil *Reporter discards everything.
type Reporter struct {
	mu         sync.Mutex
	sinks      []sink
	bucketSize float64
}

// New builds a Reporter over writers, detecting which ones are terminals.
func New(writers ...io.Writer) *Reporter {
	r := &Reporter{bucketSize: defaultBucket}
	for _, w := range writers {
		r.AddSink(w, IsTerminal(w))
	}

	return r
}

// AddSink registers w. terminal selects overwrite mode.
func (r *Reporter) AddSink(w io.Writer, terminal bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.sinks = append(r.sinks, sink{w: w, terminal: terminal})
}

// IsTerminal reports whether w is a file attached to a terminal.
func IsTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	if !ok {
		return false
	}

	fd := f.Fd()

	return isatty.IsTerminal(fd) || isatty.IsCygwinTerminal(fd)
}

// Overall announces the queue position of the next artifact on every sink.
func (r *Reporter) Overall(index, total int, name string) {
	if r == nil {
		return
	}

	line := fmt.Sprintf("%s [%d/%d] now processing %s\n", OverallPrefix, index, total, name)

	r.mu.Lock()
	defer r.mu.Unlock()

	for _, s := range r.sinks {
		_, _ = io.WriteString(s.w, line)
	}
}

// Track starts tracking one file transfer.
func (r *Reporter) Track(name string) *Tracker {
	if r == nil {
		return nil
	}

	r.mu.Lock()
	buckets := make([]int, len(r.sinks))
	r.mu.Unlock()

	for i := range buckets {
		buckets[i] = -1
	}

	return &Tracker{r: r, name: name, buckets: buckets}
}

// Tracker emits progress for one file. A nil *Tracker is a no-op.
type Tracker struct {
	r        *Reporter
	name     string
	buckets  []int
	finished bool
}

// Update reports done bytes out of total (-1 when unknown).
func (t *Tracker) Update(done, total int64) {
	if t == nil || t.finished {
		return
	}

	line := formatLine(t.name, done, total)
	pct := percent(done, total)

	t.r.mu.Lock()
	defer t.r.mu.Unlock()

	for i, s := range t.r.sinks {
		if s.terminal {
			_, _ = io.WriteString(s.w, "\r"+line)

			continue
		}

		if i >= len(t.buckets) || pct < 0 {
			continue
		}

		bucket := int(pct / t.r.bucketSize)
		if bucket > t.buckets[i] {
			t.buckets[i] = bucket
			_, _ = io.WriteString(s.w, line+"\n")
		}
	}
}

// Finish writes the final newline-terminated line to every sink.
func (t *Tracker) Finish(done, total int64) {
	if t == nil || t.finished {
		return
	}

	t.finished = true
	line := formatLine(t.name, done, total)

	t.r.mu.Lock()
	defer t.r.mu.Unlock()

	for _, s := range t.r.sinks {
		if s.terminal {
			_, _ = io.WriteString(s.w, "\r"+line+"\n")

			continue
		}

		_, _ = io.WriteString(s.w, line+"\n")
	}
}

func percent(done, total int64) float64 {
	if total <= 0 {
		return -1
	}

	return float64(done) * 100 / float64(total)
}

func formatLine(name string, done, total int64) string {
	if total <= 0 {
		return fmt.Sprintf("%s %s %s", ProgressPrefix, name, humanize.IBytes(uint64(max(done, 0))))
	}

	return fmt.Sprintf("%s %s %s%% (%s / %s)",
		ProgressPrefix,
		name,
		humanize.FtoaWithDigits(percent(done, total), 1),
		humanize.IBytes(uint64(max(done, 0))),
		humanize.IBytes(uint64(total)),
	)
}
