package cmd

import (
	"errors"
	"fmt"
	"maps"
	"slices"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"go-modpanel/internal/panel"
	"go-modpanel/internal/prefs"
	"go-modpanel/internal/render"
)

var prefsRaw bool

var prefsCmd = &cobra.Command{
	Use:   "prefs",
	Short: "Show the saved job settings",
	Long: `Shows the saved job settings. Values that are missing or invalid in the
store are shown as their defaults; --raw prints what is actually stored.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		st, err := openState()
		if err != nil {
			return err
		}
		if !prefsRaw {
			fmt.Fprint(cmd.OutOrStdout(), render.Settings(st.prefs.Load()))
			return nil
		}
		raw, err := st.prefs.Raw()
		if err != nil {
			return err
		}
		for _, key := range slices.Sorted(maps.Keys(raw)) {
			fmt.Fprintf(cmd.OutOrStdout(), "%s = %s\n", key, raw[key])
		}
		return nil
	},
}

var setCmd = &cobra.Command{
	Use:   "set <key> <value>",
	Short: "Change a saved job setting",
	Long: `Changes one saved setting. Keys:

  game      WW, GI or ZZ
  mode      scrape, update, fix or map (alias: action)
  threads   0-16
  sleep     seconds between backend requests, 0-10
  delay     seconds between status polls, 0-5; 0 turns live stats off (alias: interval)
  liveStats true or false

Settings cannot be changed while the backend reports a running job.`,
	Args: cobra.ExactArgs(2),
	RunE: runSet,
}

// Keys accepted by set, for shell completion.
var settingKeys = []string{prefs.KeyGame, prefs.KeyMode, prefs.KeyThreads, prefs.KeySleep, prefs.KeyDelay, prefs.KeyLiveStats}

func init() {
	rootCmd.AddCommand(prefsCmd)
	prefsCmd.Flags().BoolVar(&prefsRaw, "raw", false, "Print the stored strings, including invalid ones")
	rootCmd.AddCommand(setCmd)
	setCmd.ValidArgsFunction = func(cmd *cobra.Command, args []string, toComplete string) ([]string, cobra.ShellCompDirective) {
		if len(args) == 0 {
			return settingKeys, cobra.ShellCompDirectiveNoFileComp
		}
		return nil, cobra.ShellCompDirectiveNoFileComp
	}
}

func runSet(cmd *cobra.Command, args []string) error {
	p, err := newPanel()
	if err != nil {
		return err
	}
	// The lock follows the backend's phase; an unreachable backend leaves it open.
	if err := p.Refresh(cmd.Context()); err != nil {
		log.WithError(err).Debug("Could not fetch status before changing a setting")
	}
	if err := p.Set(args[0], args[1]); err != nil {
		if errors.Is(err, panel.ErrSettingsLocked) {
			return fmt.Errorf("%w (phase %s)", err, p.Snapshot().CurrentTask)
		}
		return err
	}
	fmt.Fprint(cmd.OutOrStdout(), render.Settings(p.Settings()))
	return nil
}

