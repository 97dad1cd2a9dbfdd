package cmd

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"go-modpanel/internal/api"
	"go-modpanel/internal/models"
	"go-modpanel/internal/panel"
	"go-modpanel/internal/prefs"
	"go-modpanel/internal/render"
)

var (
	statusJSON  bool
	statusLines int
	archiveFlag bool

	startGame    string
	startAction  string
	startThreads string
	startSleep   string
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Fetch and print the current job status",
	RunE:  runStatus,
}

var startCmd = &cobra.Command{
	Use:   "start",
	Short: "Start a job with the saved settings",
	Long: `Starts a job on the backend with the saved game, action, threads and
sleep settings. Flags change the saved settings before starting.`,
	RunE: runStart,
}

var stopCmd = &cobra.Command{
	Use:   "stop",
	Short: "Ask the backend to cancel the running job",
	RunE: func(cmd *cobra.Command, args []string) error {
		p, err := newPanel()
		if err != nil {
			return err
		}
		if err := p.Stop(cmd.Context()); err != nil {
			return backendErr(err)
		}
		fmt.Fprintln(cmd.OutOrStdout(), "Stop requested.")
		return nil
	},
}

var healthCmd = &cobra.Command{
	Use:   "health",
	Short: "Check that the backend is up",
	RunE: func(cmd *cobra.Command, args []string) error {
		st, err := openState()
		if err != nil {
			return err
		}
		h, err := st.client.Health(cmd.Context())
		if err != nil {
			return backendErr(err)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "%s (%s)\n", h.Status, h.Timestamp)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(startCmd)
	rootCmd.AddCommand(stopCmd)
	rootCmd.AddCommand(healthCmd)

	statusCmd.Flags().BoolVar(&statusJSON, "json", false, "Print the raw status snapshot as JSON")
	statusCmd.Flags().IntVarP(&statusLines, "lines", "n", 20, "Number of log lines to show (0 shows all)")
	statusCmd.Flags().BoolVar(&archiveFlag, "archive", false, "Add the returned log lines to the local log archive (overrides config)")

	startCmd.Flags().StringVarP(&startGame, "game", "g", "", "Game: WW, GI or ZZ")
	startCmd.Flags().StringVarP(&startAction, "action", "a", "", "Action: scrape, update, fix or map")
	startCmd.Flags().StringVarP(&startThreads, "threads", "t", "", fmt.Sprintf("Worker threads (%d-%d)", prefs.MinThreads, prefs.MaxThreads))
	startCmd.Flags().StringVarP(&startSleep, "sleep", "s", "", "Seconds between backend requests (0-10)")
}

// newPanel builds a panel over the opened state.
func newPanel() (*panel.Panel, error) {
	st, err := openState()
	if err != nil {
		return nil, err
	}
	return panel.New(st.client, st.prefs), nil
}

// backendErr adds a hint to authentication failures.
func backendErr(err error) error {
	if errors.Is(err, api.ErrUnauthorized) {
		return fmt.Errorf("%w (run 'modpanel login')", err)
	}
	return err
}

func runStatus(cmd *cobra.Command, args []string) error {
	p, err := newPanel()
	if err != nil {
		return err
	}
	if err := p.Refresh(cmd.Context()); err != nil {
		return backendErr(err)
	}
	snap := p.Snapshot()
	if globalConfig.ArchiveLogs {
		archiveLines(snap)
	}

	out := cmd.OutOrStdout()
	if statusJSON {
		b, err := json.MarshalIndent(snap, "", "  ")
		if err != nil {
			return fmt.Errorf("failed to encode status: %w", err)
		}
		fmt.Fprintln(out, string(b))
		return nil
	}
	printSnapshot(out, p, statusLines)
	return nil
}

func printSnapshot(out io.Writer, p *panel.Panel, lines int) {
	snap := p.Snapshot()
	fmt.Fprint(out, render.Stats(snap, p.StatusLabel(), p.Running()))
	fmt.Fprintln(out)
	fmt.Fprint(out, render.Logs(snap.Logs, lines))
}

// archiveLines indexes the snapshot's log lines. Failures are logged only.
func archiveLines(snap models.Snapshot) {
	a, err := state.openArchive()
	if err != nil {
		log.WithError(err).Warn("Log archive unavailable")
		return
	}
	if _, err := a.Add(snap.CurrentTask, snap.Logs); err != nil {
		log.WithError(err).Warn("Failed to archive log lines")
	}
}

func runStart(cmd *cobra.Command, args []string) error {
	p, err := newPanel()
	if err != nil {
		return err
	}
	changes := []struct {
		flag, key, value string
	}{
		{"game", prefs.KeyGame, startGame},
		{"action", prefs.KeyMode, startAction},
		{"threads", prefs.KeyThreads, startThreads},
		{"sleep", prefs.KeySleep, startSleep},
	}
	for _, c := range changes {
		if !cmd.Flags().Changed(c.flag) {
			continue
		}
		if err := p.Set(c.key, c.value); err != nil {
			return fmt.Errorf("--%s: %w", c.flag, err)
		}
	}

	if err := p.Start(cmd.Context()); err != nil {
		return backendErr(err)
	}
	s := p.Settings()
	fmt.Fprintf(cmd.OutOrStdout(), "Started %s for %s (threads %d, sleep %ss). Phase: %s\n",
		s.Action.Label(), s.Game.Label(), s.Threads, prefs.FormatFloat(s.Sleep), p.StatusLabel())
	return nil
}
