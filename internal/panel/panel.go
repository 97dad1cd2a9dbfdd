// Package panel holds the job control panel state: the operator's settings,
// the latest job snapshot and whether a job is believed to be running.
package panel

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"

	"go-modpanel/internal/api"
	"go-modpanel/internal/models"
	"go-modpanel/internal/prefs"

	log "github.com/sirupsen/logrus"
)

var (
	ErrSettingsLocked = errors.New("settings cannot be changed while a job is running")
	ErrAlreadyRunning = errors.New("a job is already running")
	ErrRefused        = errors.New("backend refused the request")
)

// LabelRunning is shown instead of a terminal phase while a start is in flight.
const LabelRunning = "Running"

// Client is the subset of the API client the panel drives.
type Client interface {
	Start(ctx context.Context, action models.Action, game models.Game, threads int, sleep float64) (models.StatusResponse, error)
	Stop(ctx context.Context) (models.StopResponse, error)
	Status(ctx context.Context) (models.Snapshot, error)
}

// Panel is safe for concurrent use. Poll results and operator commands may
// arrive from different goroutines; the last write wins.
type Panel struct {
	mu       sync.RWMutex
	client   Client
	store    *prefs.Store
	settings prefs.Preferences
	snapshot models.Snapshot
	running  bool
}

// New loads the stored preferences and starts from the default snapshot.
func New(client Client, store *prefs.Store) *Panel {
	return &Panel{
		client:   client,
		store:    store,
		settings: store.Load(),
		snapshot: models.DefaultSnapshot(),
	}
}

func (p *Panel) Settings() prefs.Preferences {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.settings
}

func (p *Panel) Snapshot() models.Snapshot {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.snapshot
}

func (p *Panel) Running() bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.running
}

// StatusLabel is the phase to display. A terminal phase reads "Running" while
// the local running flag is still set.
func (p *Panel) StatusLabel() string {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return statusLabel(p.running, p.snapshot.CurrentTask)
}

func statusLabel(running bool, phase string) string {
	if running && models.IsTerminalPhase(phase) {
		return LabelRunning
	}
	return phase
}

// ApplySnapshot replaces the snapshot without touching the running flag.
func (p *Panel) ApplySnapshot(s models.Snapshot) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.snapshot = s
}

// ApplyPolled replaces the snapshot and derives the running flag from its
// phase.
func (p *Panel) ApplyPolled(s models.Snapshot) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.snapshot = s
	was := p.running
	p.running = !models.IsTerminalPhase(s.CurrentTask)
	if was != p.running {
		log.Debugf("Running changed to %t (phase %q)", p.running, s.CurrentTask)
	}
}

// Load fetches the snapshot once, as the panel opens.
func (p *Panel) Load(ctx context.Context) error {
	s, err := p.client.Status(ctx)
	if err != nil {
		return err
	}
	p.ApplySnapshot(s)
	return nil
}

// Refresh fetches the snapshot once and applies it like a poll.
func (p *Panel) Refresh(ctx context.Context) error {
	s, err := p.client.Status(ctx)
	if err != nil {
		return err
	}
	p.ApplyPolled(s)
	return nil
}

// Start sends the current settings to the backend. The running flag is set
// before the request and cleared again if the start fails.
func (p *Panel) Start(ctx context.Context) error {
	p.mu.Lock()
	if p.running {
		p.mu.Unlock()
		return ErrAlreadyRunning
	}
	p.running = true
	s := p.settings
	p.mu.Unlock()

	log.Infof("Starting %s for %s (threads=%d, sleep=%ss)", s.Action, s.Game, s.Threads, prefs.FormatFloat(s.Sleep))
	resp, err := p.client.Start(ctx, s.Action, s.Game, s.Threads, s.Sleep)
	if err != nil {
		p.setRunning(false)
		return failed("start", err)
	}
	if !resp.Success {
		p.setRunning(false)
		return refused("start", resp.Error)
	}
	if resp.Status != nil {
		p.ApplySnapshot(*resp.Status)
	}
	return nil
}

// Stop asks the backend to cancel the job. The running flag is left alone
// until a poll reports a terminal phase.
func (p *Panel) Stop(ctx context.Context) error {
	log.Info("Requesting stop")
	resp, err := p.client.Stop(ctx)
	if err != nil {
		return failed("stop", err)
	}
	if !resp.Success {
		return refused("stop", resp.Error)
	}
	return nil
}

// Toggle stops a running job or starts a new one.
func (p *Panel) Toggle(ctx context.Context) error {
	if p.Running() {
		return p.Stop(ctx)
	}
	return p.Start(ctx)
}

func (p *Panel) setRunning(v bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.running = v
}

// failed reports a request error. A rejection that carries the backend's
// message reads like a refusal and still matches the request error.
func failed(op string, err error) error {
	var reqErr *api.RequestError
	if errors.As(err, &reqErr) && reqErr.StatusCode != http.StatusUnauthorized && reqErr.Message != "" {
		return fmt.Errorf("%s: %w: %s (%w)", op, ErrRefused, reqErr.Message, err)
	}
	return fmt.Errorf("%s failed: %w", op, err)
}

func refused(op, msg string) error {
	if msg == "" {
		return fmt.Errorf("%s: %w", op, ErrRefused)
	}
	return fmt.Errorf("%s: %w: %s", op, ErrRefused, msg)
}

// --- Settings ---

// update applies change to the stored preferences unless a job is running.
func (p *Panel) update(change func() error) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.running {
		return ErrSettingsLocked
	}
	if err := change(); err != nil {
		return err
	}
	p.settings = p.store.Load()
	return nil
}

func (p *Panel) SetGame(g models.Game) error {
	return p.update(func() error { return p.store.SetGame(g) })
}

func (p *Panel) SetAction(a models.Action) error {
	return p.update(func() error { return p.store.SetAction(a) })
}

func (p *Panel) SetThreads(n int) error {
	return p.update(func() error { return p.store.SetThreads(n) })
}

func (p *Panel) SetSleep(seconds float64) error {
	return p.update(func() error { return p.store.SetSleep(seconds) })
}

// SetPollInterval also switches live stats: off at zero, on above it.
func (p *Panel) SetPollInterval(seconds float64) error {
	return p.update(func() error { return p.store.SetPollInterval(seconds) })
}

// Set changes a setting by its preference key.
func (p *Panel) Set(key, value string) error {
	return p.update(func() error { return p.store.Set(key, value) })
}
