package main

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/jedib0t/go-pretty/v6/text"
	"github.com/maxedout/modelfetch/internal/artifact"
	"github.com/maxedout/modelfetch/internal/queue"
)

// renderSummary prints one line per usable artifact, then a table of every
// failed artifact with its remote id and destination.
func renderSummary(b queue.BatchReport, color bool) string {
	var sb strings.Builder

	sb.WriteString("\n")

	for _, r := range b.Reports {
		if r.State == artifact.StateFailed {
			continue
		}

		line := fmt.Sprintf("%-9s %s", r.State, r.Descriptor.LocalPath)
		if r.Bytes > 0 {
			line += " (" + humanize.IBytes(uint64(r.Bytes)) + ")"
		}

		sb.WriteString(colorize(line, color, text.Colors{text.FgGreen}))
		sb.WriteString("\n")
	}

	if b.Interrupted {
		sb.WriteString(colorize("Run interrupted before the queue finished.", color, text.Colors{text.FgYellow}))
		sb.WriteString("\n")
	}

	if len(b.Failures) == 0 {
		if !b.Interrupted {
			sb.WriteString("All files installed successfully.\n")
		}

		return sb.String()
	}

	rows := make([][]string, 0, len(b.Failures))
	for _, f := range b.Failures {
		rows = append(rows, []string{
			f.Descriptor.Name(),
			f.Descriptor.RemotePath,
			f.Descriptor.LocalPath,
			strconv.Itoa(f.Attempts),
			errorText(f.Err),
		})
	}

	sb.WriteString(colorize(fmt.Sprintf("%d of %d files failed:", len(b.Failures), len(b.Reports)), color, text.Colors{text.FgRed}))
	sb.WriteString("\n")
	sb.WriteString(renderTable(
		[]string{"Artifact", "Remote", "Destination", "Attempts", "Reason"},
		rows,
		[]columnAlignment{alignLeft, alignLeft, alignLeft, alignRight, alignLeft},
	))
	sb.WriteString("\n")

	return sb.String()
}

func errorText(err error) string {
	if err == nil {
		return ""
	}

	return err.Error()
}
