package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/marmos91/memspace/pkg/config"
)

var initForce bool

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Write a default configuration file",
	Long: `Write a default memspace configuration file.

The file is created at $XDG_CONFIG_HOME/memspace/config.yaml unless --config
names another path.

Examples:
  # Default location
  memspace init

  # Custom path, replacing an existing file
  memspace init --config ./memspace.yaml --force`,
	RunE: runInit,
}

func init() {
	initCmd.Flags().BoolVar(&initForce, "force", false, "Overwrite an existing config file")
}

func runInit(cmd *cobra.Command, args []string) error {
	var (
		configPath string
		err        error
	)
	if cfgFile != "" {
		configPath = cfgFile
		err = config.InitConfigToPath(cfgFile, initForce)
	} else {
		configPath, err = config.InitConfig(initForce)
	}
	if err != nil {
		return fmt.Errorf("failed to initialize config: %w", err)
	}

	out := cmd.OutOrStdout()
	_, _ = fmt.Fprintf(out, "Configuration file created at: %s\n", configPath)
	_, _ = fmt.Fprintln(out, "\nNext steps:")
	_, _ = fmt.Fprintln(out, "  1. Pick an image backend in the node section (memory or badger)")
	_, _ = fmt.Fprintf(out, "  2. Dump a range with: memspace dump --config %s --range 0:0x40\n", configPath)
	return nil
}
