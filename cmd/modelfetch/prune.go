package main

import (
	"fmt"

	"github.com/maxedout/modelfetch/internal/cleanup"
	"github.com/spf13/cobra"
)

func newPruneCommand(cc *commandContext) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "prune",
		Short: "Delete partial downloads older than the retention period",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := cc.ensureConfig()
			if err != nil {
				return err
			}

			olderThan, err := cmd.Flags().GetDuration("older-than")
			if err != nil {
				return err
			}

			if olderThan == 0 {
				olderThan = cfg.PartialRetention
			}

			removed, err := cleanup.DeleteStalePartials(cmd.Context(), cfg.ModelDir, cfg.Engine.PartialSuffix, olderThan)
			for _, path := range removed {
				fmt.Fprintln(cmd.OutOrStdout(), "removed", path)
			}

			if err != nil {
				return err
			}

			fmt.Fprintf(cmd.OutOrStdout(), "%d partial file(s) removed\n", len(removed))

			return nil
		},
	}

	cmd.Flags().Duration("older-than", 0, "Override the partial retention period")

	return cmd
}
