package progress

import (
	"bytes"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReporterOverallWritesEverySink(t *testing.T) {
	var console, logFile bytes.Buffer

	r := &Reporter{bucketSize: defaultBucket}
	r.AddSink(&console, true)
	r.AddSink(&logFile, false)

	r.Overall(2, 5, "ae.safetensors")

	want := "OVERALL:: [2/5] now processing ae.safetensors\n"
	assert.Equal(t, want, console.String())
	assert.Equal(t, want, logFile.String())
}

func TestTrackerBucketsNonTerminalSinks(t *testing.T) {
	var logFile bytes.Buffer

	r := &Reporter{bucketSize: defaultBucket}
	r.AddSink(&logFile, false)

	tr := r.Track("clip_l.safetensors")
	tr.Update(5, 100)
	tr.Update(7, 100)
	tr.Update(15, 100)
	tr.Update(19, 100)
	tr.Finish(100, 100)

	lines := strings.Split(strings.TrimSuffix(logFile.String(), "\n"), "\n")
	require.Len(t, lines, 3)
	assert.Equal(t, "PROGRESS:: clip_l.safetensors 5% (5 B / 100 B)", lines[0])
	assert.Equal(t, "PROGRESS:: clip_l.safetensors 15% (15 B / 100 B)", lines[1])
	assert.Equal(t, "PROGRESS:: clip_l.safetensors 100% (100 B / 100 B)", lines[2])
	assert.NotContains(t, logFile.String(), "\r")
}

func TestTrackerOverwritesTerminalSinks(t *testing.T) {
	var console bytes.Buffer

	r := &Reporter{bucketSize: defaultBucket}
	r.AddSink(&console, true)

	tr := r.Track("vae.bin")
	tr.Update(1, 4)
	tr.Update(2, 4)
	tr.Finish(4, 4)
	tr.Update(4, 4)

	out := console.String()
	assert.Equal(t, 3, strings.Count(out, "\rPROGRESS:: vae.bin"))
	assert.True(t, strings.HasSuffix(out, "\n"))
	assert.Equal(t, 1, strings.Count(out, "\n"))
}

func TestTrackerUnknownTotal(t *testing.T) {
	var logFile bytes.Buffer

	r := &Reporter{bucketSize: defaultBucket}
	r.AddSink(&logFile, false)

	tr := r.Track("model.pt")
	tr.Update(2048, -1)
	tr.Finish(4096, -1)

	assert.Equal(t, "PROGRESS:: model.pt 4.0 KiB\n", logFile.String())
}

func TestNilReporterIsNoop(t *testing.T) {
	var r *Reporter

	r.Overall(1, 1, "x")
	tr := r.Track("x")
	tr.Update(1, 2)
	tr.Finish(2, 2)

	assert.Nil(t, tr)
}

func TestIsTerminal(t *testing.T) {
	assert.False(t, IsTerminal(&bytes.Buffer{}))

	f, err := os.CreateTemp(t.TempDir(), "sink")
	require.NoError(t, err)
	defer f.Close()

	assert.False(t, IsTerminal(f))
}

func TestReaderReportsFirstAndFinal(t *testing.T) {
	data := bytes.Repeat([]byte("x"), 64)

	var reports []int64

	pr := NewReader(bytes.NewReader(data), 100, 164, time.Hour, func(read, total int64) {
		assert.Equal(t, int64(164), total)
		reports = append(reports, read)
	})

	buf := make([]byte, 16)
	for {
		_, err := pr.Read(buf)
		if err == io.EOF {
			break
		}

		require.NoError(t, err)
	}

	require.Len(t, reports, 2)
	assert.Equal(t, int64(116), reports[0])
	assert.Equal(t, int64(164), reports[1])
	assert.Equal(t, int64(164), pr.BytesRead())
}

func TestReaderThrottlesByInterval(t *testing.T) {
	data := bytes.Repeat([]byte("x"), 40)
	clock := time.Unix(0, 0)

	var reports []int64

	pr := NewReader(bytes.NewReader(data), 0, -1, 100*time.Millisecond, func(read, _ int64) {
		reports = append(reports, read)
	})
	pr.now = func() time.Time { return clock }

	buf := make([]byte, 10)
	for i := 0; i < 4; i++ {
		clock = clock.Add(60 * time.Millisecond)
		_, err := pr.Read(buf)
		require.NoError(t, err)
	}

	_, err := pr.Read(buf)
	require.ErrorIs(t, err, io.EOF)

	// 60ms, 120ms, 180ms, 240ms: reports at 60 and 180; EOF adds the final count.
	assert.Equal(t, []int64{10, 30, 40}, reports)
}

func TestLastLine(t *testing.T) {
	path := filepath.Join(t.TempDir(), "install.log")
	content := "starting\n" +
		"OVERALL:: [1/2] now processing a.bin\n" +
		"\rPROGRESS:: a.bin 10%\rPROGRESS:: a.bin 90%\n" +
		"OVERALL:: [2/2] now processing b.bin\n" +
		"level=INFO msg=done\n"
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	line, err := LastLine(path, OverallPrefix)
	require.NoError(t, err)
	assert.Equal(t, "OVERALL:: [2/2] now processing b.bin", line)

	line, err = LastLine(path, ProgressPrefix)
	require.NoError(t, err)
	assert.Equal(t, "PROGRESS:: a.bin 90%", line)

	line, err = LastLine(path, "MISSING::")
	require.NoError(t, err)
	assert.Empty(t, line)

	_, err = LastLine(filepath.Join(t.TempDir(), "nope.log"), OverallPrefix)
	require.Error(t, err)
}
