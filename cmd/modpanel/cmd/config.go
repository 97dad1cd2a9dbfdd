package cmd

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"go-modpanel/internal/config"
)

var configForce bool

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Inspect or create the configuration file",
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Print the fully loaded configuration object as JSON",
	Long: `Loads configuration via flags, environment and config file (respecting
precedence) and prints the final resulting configuration to stdout as JSON.
Useful for verifying how settings are merged.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		// globalConfig is populated by PersistentPreRunE
		jsonBytes, err := json.MarshalIndent(globalConfig, "", "  ")
		if err != nil {
			return fmt.Errorf("failed to marshal config to JSON: %w", err)
		}
		fmt.Fprintln(cmd.OutOrStdout(), string(jsonBytes))
		return nil
	},
}

var configInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Write a config file holding the default values",
	Long: `Writes the default configuration as TOML to the path given by --config,
or ./config.toml. An existing file is kept unless --force is passed.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		path := config.DefaultConfigFilePath
		if cmd.Flags().Changed("config") {
			path = cfgFile
		}
		if err := config.WriteDefault(path, configForce); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Wrote %s\n", path)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(configCmd)
	configCmd.AddCommand(configShowCmd)
	configCmd.AddCommand(configInitCmd)
	configInitCmd.Flags().BoolVarP(&configForce, "force", "f", false, "Overwrite an existing config file")
}
