// Package commands implements the memspace CLI.
package commands

import (
	"github.com/spf13/cobra"
)

var (
	// Version information injected at build time.
	Version = "dev"
	Commit  = "none"
	Date    = "unknown"

	// Global flags.
	cfgFile  string
	logLevel string
	spaceFlag string
)

var rootCmd = &cobra.Command{
	Use:   "memspace",
	Short: "memspace - configuration memory cache for remote nodes",
	Long: `memspace prefetches declared address ranges of a remote node's memory
space into a local cache, serves reads from it and forwards writes.

The remote node is a virtual node backed by an in-memory or BadgerDB image,
configured in the node section of the configuration file.

Use "memspace [command] --help" for more information about a command.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

// GetRootCmd returns the root command for tests.
func GetRootCmd() *cobra.Command {
	return rootCmd
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default: $XDG_CONFIG_HOME/memspace/config.yaml)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "override logging.level (DEBUG, INFO, WARN, ERROR)")
	rootCmd.PersistentFlags().StringVar(&spaceFlag, "space", "", "override node.space, e.g. 0xFF")

	rootCmd.AddCommand(versionCmd)
	rootCmd.AddCommand(initCmd)
	rootCmd.AddCommand(dumpCmd)
	rootCmd.AddCommand(writeCmd)
}
