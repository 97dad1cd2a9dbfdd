package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"

	"github.com/gosuri/uilive"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"go-modpanel/internal/api"
	"go-modpanel/internal/models"
	"go-modpanel/internal/poller"
	"go-modpanel/internal/prefs"
)

var (
	watchInterval float64
	watchLines    int
	watchExit     bool
)

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Follow the job status live",
	Long: `Polls the backend at the saved live stats interval and redraws the
status in place until interrupted. --interval overrides the saved interval
for this run only.`,
	RunE: runWatch,
}

func init() {
	rootCmd.AddCommand(watchCmd)
	watchCmd.Flags().Float64VarP(&watchInterval, "interval", "i", -1, "Seconds between polls for this run (-1 uses the saved setting)")
	watchCmd.Flags().IntVarP(&watchLines, "lines", "n", 10, "Number of log lines to show (0 shows all)")
	watchCmd.Flags().BoolVar(&watchExit, "exit", false, "Exit once the backend reports no running job")
	watchCmd.Flags().BoolVar(&archiveFlag, "archive", false, "Add every log line seen to the local log archive (overrides config)")
}

func runWatch(cmd *cobra.Command, args []string) error {
	p, err := newPanel()
	if err != nil {
		return err
	}
	settings := p.Settings()
	live, interval := settings.LiveStats, settings.PollInterval
	if watchInterval >= 0 {
		if watchInterval > prefs.MaxPollInterval {
			return fmt.Errorf("--interval must be between 0 and %s", prefs.FormatFloat(prefs.MaxPollInterval))
		}
		live, interval = watchInterval > 0, watchInterval
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := p.Refresh(ctx); err != nil {
		return backendErr(err)
	}

	writer := uilive.New()
	writer.Out = cmd.OutOrStdout()
	writer.Start()
	defer writer.Stop()

	var mu sync.Mutex
	draw := func() {
		var frame strings.Builder
		printSnapshot(&frame, p, watchLines)
		fmt.Fprintf(&frame, "\n%s\n", watchFooter(live, interval))
		mu.Lock()
		defer mu.Unlock()
		fmt.Fprint(writer, frame.String())
		// one frame per flush
		if err := writer.Flush(); err != nil {
			log.WithError(err).Debug("Failed to redraw status")
		}
	}
	draw()
	if globalConfig.ArchiveLogs {
		archiveLines(p.Snapshot())
	}
	if watchExit && !p.Running() {
		return nil
	}

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	pl := poller.New(state.client, func(s models.Snapshot) {
		p.ApplyPolled(s)
		draw()
		if globalConfig.ArchiveLogs {
			archiveLines(s)
		}
		if watchExit && !p.Running() {
			cancel()
		}
	}, live, interval)
	if pl.State() == poller.Idle {
		return errors.New("live stats are off; set a poll delay above 0 or pass --interval")
	}
	var authErr error
	var once sync.Once
	pl.OnError(func(err error) {
		if errors.Is(err, api.ErrUnauthorized) {
			once.Do(func() { authErr = err })
			cancel()
		}
	})

	log.Debugf("Watching every %ss", prefs.FormatFloat(interval))
	pl.Run(runCtx)
	if authErr != nil {
		return backendErr(authErr)
	}
	return nil
}

func watchFooter(live bool, interval float64) string {
	if !live || interval == 0 {
		return "Live stats: Off"
	}
	return fmt.Sprintf("Live stats: every %ss (Ctrl+C to quit)", prefs.FormatFloat(interval))
}
