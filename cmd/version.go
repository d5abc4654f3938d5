package cmd

import (
	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/flowrun-dev/flowrun/internal/build"
)

func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(_ *cobra.Command, _ []string) {
			color.New(color.Bold).Printf("%s %s\n", build.Slug, build.Version)
		},
	}
}
