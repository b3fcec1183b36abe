package progress

import (
	"fmt"
	"io"
	"os"
	"strings"
)

const tailWindow = 64 * 1024

// LastLine returns the last line in the tail of the file at path that starts
// with prefix. Carriage returns count as line breaks so overwritten terminal
// lines are found too. It returns "" when nothing matches.
func LastLine(path, prefix string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", fmt.Errorf("open %s: %w", path, err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return "", fmt.Errorf("stat %s: %w", path, err)
	}

	offset := max(info.Size()-tailWindow, 0)

	buf := make([]byte, info.Size()-offset)
	if _, err := f.ReadAt(buf, offset); err != nil && err != io.EOF {
		return "", fmt.Errorf("read %s: %w", path, err)
	}

	lines := strings.FieldsFunc(string(buf), func(r rune) bool { return r == '\n' || r == '\r' })
	for i := len(lines) - 1; i >= 0; i-- {
		line := strings.TrimSpace(lines[i])
		if strings.HasPrefix(line, prefix) {
			return line, nil
		}
	}

	return "", nil
}
