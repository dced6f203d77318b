package commands

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/haivivi/voxlock/cmd/voxlock/internal/config"
	"github.com/haivivi/voxlock/pkg/cli"
)

var configForce bool

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Show or initialize the configuration file",
	Long: `Manage the voxlock configuration file.

Examples:
  voxlock config path
  voxlock config init
  voxlock config show -o json`,
}

// configFilePath resolves --config or the default location without
// reading the file.
func configFilePath() (string, error) {
	if configPath != "" {
		return configPath, nil
	}
	return config.DefaultPath()
}

var configPathCmd = &cobra.Command{
	Use:   "path",
	Short: "Print the config file location",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		path, err := configFilePath()
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), path)
		return nil
	},
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Print the effective configuration (file merged over defaults)",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := GetConfig()
		if err != nil {
			return err
		}
		return output(cmd, cfg)
	},
}

var configInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Write a config file with the default values",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		path, err := configFilePath()
		if err != nil {
			return err
		}
		if _, err := os.Stat(path); err == nil && !configForce {
			return fmt.Errorf("%s already exists (use --force to overwrite)", path)
		}
		cfg := config.Default()
		cfg.Path = path
		if err := cfg.Save(); err != nil {
			return err
		}
		cli.PrintSuccess(cmd.OutOrStdout(), "wrote %s", path)
		return nil
	},
}

func init() {
	configInitCmd.Flags().BoolVar(&configForce, "force", false, "overwrite an existing file")

	configCmd.AddCommand(configPathCmd)
	configCmd.AddCommand(configShowCmd)
	configCmd.AddCommand(configInitCmd)
	rootCmd.AddCommand(configCmd)
}
