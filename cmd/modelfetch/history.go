package main

import (
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/maxedout/modelfetch/internal/storage"
	"github.com/maxedout/modelfetch/internal/storage/sqlite"
	"github.com/spf13/cobra"
)

func newHistoryCommand(cc *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "history <bundle>",
		Short: "Show the latest recorded run of a bundle",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := cc.ensureConfig()
			if err != nil {
				return err
			}

			ctx := cmd.Context()

			db, err := sqlite.InitDB(ctx, cfg.DBPath)
			if err != nil {
				return err
			}
			defer db.Close()

			repo := sqlite.NewInstrumentedRunRepository(db, nil)

			run, err := repo.LatestRun(ctx, args[0])
			if errors.Is(err, storage.ErrNotFound) {
				return fmt.Errorf("no recorded runs for bundle %q", args[0])
			}

			if err != nil {
				return err
			}

			records, err := repo.GetArtifacts(ctx, run.ID)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()

			finished := "-"
			if !run.FinishedAt.IsZero() {
				finished = humanize.Time(run.FinishedAt)
			}

			fmt.Fprintf(out, "Run %s (%s): started %s, finished %s\n", run.ID, run.Status, humanize.Time(run.StartedAt), finished)
			fmt.Fprintf(out, "%d satisfied, %d verified, %d sampled, %d failed\n", run.Satisfied, run.Verified, run.Sampled, run.Failed)

			rows := make([][]string, 0, len(records))
			for _, r := range records {
				rows = append(rows, []string{
					r.Name,
					r.State,
					strconv.Itoa(r.Attempts),
					humanize.IBytes(uint64(r.Bytes)),
					r.Duration.Round(time.Second).String(),
					r.Error,
				})
			}

			fmt.Fprintln(out, renderTable(
				[]string{"Artifact", "State", "Attempts", "Transferred", "Duration", "Error"},
				rows,
				[]columnAlignment{alignLeft, alignLeft, alignRight, alignRight, alignRight, alignLeft},
			))

			return nil
		},
	}
}
