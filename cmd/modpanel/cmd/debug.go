package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"go-modpanel/internal/api"
	"go-modpanel/internal/paths"
)

var debugCmd = &cobra.Command{
	Use:   "debug",
	Short: "Debugging utilities (not for general use)",
	Long:  `Contains helper commands for debugging application behavior, like inspecting API URLs or state locations.`,
}

var debugPrintStartURLCmd = &cobra.Command{
	Use:   "print-start-url",
	Short: "Print the start URL the saved settings would request",
	RunE: func(cmd *cobra.Command, args []string) error {
		st, err := openState()
		if err != nil {
			return err
		}
		s := st.prefs.Load()
		fmt.Fprintln(cmd.OutOrStdout(), st.client.BaseURL+api.StartPath(s.Action, s.Game, s.Threads, s.Sleep))
		return nil
	},
}

var debugPathsCmd = &cobra.Command{
	Use:   "paths",
	Short: "Print where local state is kept",
	RunE: func(cmd *cobra.Command, args []string) error {
		store, err := paths.StorePath(globalConfig.StatePath, globalConfig.StoreBackend)
		if err != nil {
			return err
		}
		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "state:   %s\n", globalConfig.StatePath)
		fmt.Fprintf(out, "store:   %s (%s)\n", store, globalConfig.StoreBackend)
		fmt.Fprintf(out, "archive: %s\n", globalConfig.IndexPath)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(debugCmd)
	debugCmd.AddCommand(debugPrintStartURLCmd)
	debugCmd.AddCommand(debugPathsCmd)
}
