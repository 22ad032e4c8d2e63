// Package cmd holds the argent command line.
package cmd

import (
	"github.com/spf13/cobra"
)

var (
	configPath string

	rootCmd = &cobra.Command{
		Use:   "argent",
		Short: "argent - a scriptable Wayland compositor",
		Long: `Argent is a Wayland compositor whose window policy lives in a
user-provided JavaScript file. The compositor core stays small; the
script decides where surfaces go.`,
		SilenceUsage: true,
	}
)

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "config file path")

	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(outputsCmd)
	rootCmd.AddCommand(imgCmd)
	rootCmd.AddCommand(versionCmd)
}
