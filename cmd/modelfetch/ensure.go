package main

import (
	"errors"
	"fmt"

	"github.com/maxedout/modelfetch/internal/loader"
	"github.com/spf13/cobra"
)

func newEnsureCommand(cc *commandContext) *cobra.Command {
	var list bool

	cmd := &cobra.Command{
		Use:   "ensure <artifact>",
		Short: "Make sure one artifact is present and verified, downloading it if needed",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := cc.ensureConfig()
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()

			a, err := newApp(cmd.Context(), cfg, out, false)
			if err != nil {
				return err
			}
			defer a.Close(cmd.Context())

			l := loader.New(a.catalog, a.engine, cfg.ModelDir)

			if list {
				rows := make([][]string, 0)
				for _, c := range l.Choices() {
					if c.Header {
						rows = append(rows, []string{c.Label, ""})

						continue
					}

					rows = append(rows, []string{c.Label, c.Descriptor.RemotePath})
				}

				fmt.Fprintln(out, renderTable([]string{"UNET", "Remote"}, rows, nil))

				return nil
			}

			if len(args) == 0 {
				return errors.New("artifact name required (see --list)")
			}

			path, err := l.Ensure(a.context(cmd.Context()), args[0])
			if err != nil {
				return err
			}

			fmt.Fprintln(out, path)

			return nil
		},
	}

	cmd.Flags().BoolVar(&list, "list", false, "List the UNET models grouped by precision")

	return cmd
}
