package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newInstallCommand(cc *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "install <bundle>",
		Short: "Download and verify every artifact of a bundle",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := cc.ensureConfig()
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()

			a, err := newApp(cmd.Context(), cfg, out, true)
			if err != nil {
				return err
			}
			defer a.Close(cmd.Context())

			batch, err := a.installer.Run(a.context(cmd.Context()), args[0])
			if batch.RunID != "" {
				fmt.Fprint(out, renderSummary(batch, shouldColorize(out)))
				fmt.Fprintf(out, "Logs saved to %s\n", a.logFile.Name())
			}

			if err != nil {
				return err
			}

			if batch.Failed() > 0 {
				return fmt.Errorf("%w: %d of %d", errFailures, batch.Failed(), len(batch.Reports))
			}

			return nil
		},
	}
}
