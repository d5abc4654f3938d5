// Package cmd implements the command line interface.
package cmd

import (
	"github.com/spf13/cobra"

	"github.com/flowrun-dev/flowrun/internal/build"
	"github.com/flowrun-dev/flowrun/internal/config"
)

var (
	// cfgFile is the explicit config file path, set by --config.
	cfgFile string

	rootCmd = &cobra.Command{
		Use:   build.Slug,
		Short: "DAG workflow engine with schedules and triggers.",
		Long:  `DAG workflow engine with schedules and triggers.`,
	}
)

// Execute runs the root command. It is called once from main.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVar(
		&cfgFile, "config", "",
		"config file (default is $XDG_CONFIG_HOME/flowrun/config.yaml)",
	)

	rootCmd.AddCommand(serverCmd())
	rootCmd.AddCommand(versionCmd())
}

func loadConfig() (*config.Config, error) {
	var opts []config.LoaderOption
	if cfgFile != "" {
		opts = append(opts, config.WithConfigFile(cfgFile))
	}
	return config.Load(opts...)
}
