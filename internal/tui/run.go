package tui

import (
	"context"
	"errors"
	"strings"

	tea "github.com/charmbracelet/bubbletea"
	log "github.com/sirupsen/logrus"

	"go-modpanel/internal/models"
	"go-modpanel/internal/panel"
	"go-modpanel/internal/poller"
)

// ErrNoTTY is returned when the panel is started without a terminal.
var ErrNoTTY = errors.New("panel requires an interactive terminal (TTY)")

// Options wires the panel to its backend.
type Options struct {
	Gate    Gate
	Panel   *panel.Panel
	Fetcher poller.Fetcher
	Archive Archiver // optional
}

// Run shows the panel until the operator quits or ctx is cancelled. Status
// polls run on their own goroutines and reach the model through Program.Send.
func Run(ctx context.Context, opts Options) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	var prog *tea.Program
	pl := poller.New(opts.Fetcher, func(s models.Snapshot) {
		prog.Send(PolledMsg{Snapshot: s})
	}, false, 0)
	pl.OnError(func(err error) {
		prog.Send(PollFailedMsg{Err: err})
	})

	m := New(ctx, opts.Gate, opts.Panel, pl, opts.Archive)
	prog = tea.NewProgram(m, tea.WithAltScreen(), tea.WithContext(ctx))

	done := make(chan struct{})
	go func() {
		defer close(done)
		pl.Run(ctx)
	}()

	_, err := prog.Run()
	interrupted := ctx.Err() != nil
	cancel()
	<-done

	if err != nil {
		if errors.Is(err, tea.ErrProgramKilled) && interrupted {
			log.Debug("Panel closed by context cancellation")
			return nil
		}
		if strings.Contains(strings.ToLower(err.Error()), "tty") {
			return ErrNoTTY
		}
		return err
	}
	return nil
}
