package main

import (
	"sync"

	"github.com/maxedout/modelfetch/internal/config"
	"github.com/spf13/cobra"
)

type commandContext struct {
	envFile *string

	configOnce sync.Once
	config     *config.Config
	configErr  error
}

func (c *commandContext) ensureConfig() (*config.Config, error) {
	c.configOnce.Do(func() {
		var files []string
		if c.envFile != nil && *c.envFile != "" {
			files = append(files, *c.envFile)
		}

		c.config, c.configErr = config.Load(files...)
	})

	return c.config, c.configErr
}

func newRootCommand() *cobra.Command {
	var envFile string

	cc := &commandContext{envFile: &envFile}

	rootCmd := &cobra.Command{
		Use:           "modelfetch",
		Short:         "Fetch and verify model bundles",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			_, err := cc.ensureConfig()

			return err
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
	}

	rootCmd.PersistentFlags().StringVar(&envFile, "env-file", "", "Load environment variables from this file instead of .env")

	rootCmd.AddCommand(newInstallCommand(cc))
	rootCmd.AddCommand(newEnsureCommand(cc))
	rootCmd.AddCommand(newServeCommand(cc))
	rootCmd.AddCommand(newListCommand(cc))
	rootCmd.AddCommand(newHistoryCommand(cc))
	rootCmd.AddCommand(newPruneCommand(cc))

	return rootCmd
}
