package main

import (
	"fmt"
	"os"
	"strconv"

	"github.com/dustin/go-humanize"
	"github.com/maxedout/modelfetch/internal/catalog"
	"github.com/maxedout/modelfetch/internal/install"
	"github.com/spf13/cobra"
)

func newListCommand(cc *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "list [bundle]",
		Short: "List bundles, or the artifacts of one bundle",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := cc.ensureConfig()
			if err != nil {
				return err
			}

			c := catalog.Builtin(cfg.IncludeSchnell)
			if cfg.CatalogFile != "" {
				if err := c.LoadFile(cfg.CatalogFile); err != nil {
					return err
				}
			}

			out := cmd.OutOrStdout()

			if len(args) == 0 {
				rows := make([][]string, 0)
				for _, name := range c.Names() {
					list, err := c.Bundle(name)
					if err != nil {
						return err
					}

					rows = append(rows, []string{name, strconv.Itoa(len(list)), yesNo(exists(install.MarkerPath(cfg.MarkerDir, name)))})
				}

				fmt.Fprintln(out, renderTable([]string{"Bundle", "Files", "Complete"}, rows, []columnAlignment{alignLeft, alignRight, alignLeft}))

				return nil
			}

			list, err := c.Resolve(args[0], cfg.ModelDir)
			if err != nil {
				return err
			}

			rows := make([][]string, 0, len(list))
			for _, d := range list {
				size := ""
				if info, err := os.Stat(d.LocalPath); err == nil {
					size = humanize.IBytes(uint64(info.Size()))
				}

				rows = append(rows, []string{d.Name(), d.RemotePath, d.LocalPath, size})
			}

			fmt.Fprintln(out, renderTable([]string{"Artifact", "Remote", "Destination", "On disk"}, rows, []columnAlignment{alignLeft, alignLeft, alignLeft, alignRight}))

			return nil
		},
	}
}

func exists(path string) bool {
	_, err := os.Stat(path)

	return err == nil
}

func yesNo(b bool) string {
	if b {
		return "yes"
	}

	return "no"
}
