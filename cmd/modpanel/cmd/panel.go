package cmd

import (
	"fmt"
	"os"
	"path/filepath"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"go-modpanel/internal/panel"
	"go-modpanel/internal/paths"
	"go-modpanel/internal/session"
	"go-modpanel/internal/tui"
)

var panelCmd = &cobra.Command{
	Use:   "panel",
	Short: "Open the interactive control panel",
	Long: `Opens the full-screen control panel. Logs are written to modpanel.log in
the state directory while the panel owns the terminal.`,
	RunE: runPanel,
}

func init() {
	rootCmd.AddCommand(panelCmd)
	panelCmd.Flags().BoolVar(&archiveFlag, "archive", false, "Add every log line seen to the local log archive (overrides config)")
}

func runPanel(cmd *cobra.Command, args []string) error {
	if !isTerminal(int(os.Stdin.Fd())) || !isTerminal(int(os.Stdout.Fd())) {
		return tui.ErrNoTTY
	}
	st, err := openState()
	if err != nil {
		return err
	}

	logPath, err := paths.StateFile(globalConfig.StatePath, paths.AppLogFile)
	if err != nil {
		return err
	}
	// #nosec G304
	logFile, err := os.OpenFile(filepath.Clean(logPath), os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o600)
	if err != nil {
		return fmt.Errorf("failed to open log file: %w", err)
	}
	defer logFile.Close()
	initLogging(globalConfig, logFile)
	defer initLogging(globalConfig, os.Stderr)

	opts := tui.Options{
		Gate:    session.NewGate(st.client, st.creds),
		Panel:   panel.New(st.client, st.prefs),
		Fetcher: st.client,
	}
	if globalConfig.ArchiveLogs {
		archive, err := st.openArchive()
		if err != nil {
			log.WithError(err).Warn("Log archive unavailable, continuing without it")
		} else {
			opts.Archive = archive
		}
	}
	log.Info("Opening control panel")
	return tui.Run(cmd.Context(), opts)
}
