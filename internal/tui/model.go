// Package tui is the interactive control panel: a login screen gated by the
// stored credential and a dashboard driving the job backend.
package tui

import (
	"context"
	"errors"
	"math"
	"strings"

	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	log "github.com/sirupsen/logrus"

	"go-modpanel/internal/api"
	"go-modpanel/internal/models"
	"go-modpanel/internal/panel"
	"go-modpanel/internal/prefs"
)

type mode int

const (
	modeChecking mode = iota
	modeLogin
	modePanel
)

// Slider steps, matching the ranges enforced by prefs.
const (
	threadStep   = 1
	sleepStep    = 0.5
	intervalStep = 0.5
)

// Gate is the session gate the model logs in through; *session.Gate in
// production.
type Gate interface {
	Check(ctx context.Context) bool
	Login(ctx context.Context, username, password string) error
	Logout() error
}

// PollControl turns status polling on and off. Poll results come back as
// PolledMsg and PollFailedMsg values.
type PollControl interface {
	Configure(liveStats bool, intervalSec float64)
}

// Archiver stores log lines seen while polling.
type Archiver interface {
	Add(phase string, lines []string) (int, error)
}

// PolledMsg carries a snapshot fetched by the poller.
type PolledMsg struct {
	Snapshot models.Snapshot
}

// PollFailedMsg carries the error of a failed poll.
type PollFailedMsg struct {
	Err error
}

type authCheckedMsg struct{ ok bool }

type loginDoneMsg struct{ err error }

type loadedMsg struct{ err error }

type refreshedMsg struct{ err error }

type actionDoneMsg struct {
	op  string
	err error
}

type loginForm struct {
	inputs []textinput.Model
	focus  int
	err    string
	busy   bool
}

func newLoginForm() *loginForm {
	user := textinput.New()
	user.Placeholder = "username"
	user.Prompt = "Username: "
	user.CharLimit = 128
	user.Focus()

	pass := textinput.New()
	pass.Placeholder = "password"
	pass.Prompt = "Password: "
	pass.CharLimit = 128
	pass.EchoMode = textinput.EchoPassword
	pass.EchoCharacter = '•'

	return &loginForm{inputs: []textinput.Model{user, pass}}
}

func (f *loginForm) setFocus(i int) {
	f.focus = i
	for j := range f.inputs {
		if j == i {
			f.inputs[j].Focus()
		} else {
			f.inputs[j].Blur()
		}
	}
}

// Model is the bubbletea model for the control panel.
type Model struct {
	ctx     context.Context
	gate    Gate
	panel   *panel.Panel
	poll    PollControl
	archive Archiver

	mode   mode
	form   *loginForm
	width  int
	height int

	status    string
	statusErr bool
	busy      bool
}

// New builds the model. archive may be nil.
func New(ctx context.Context, gate Gate, p *panel.Panel, poll PollControl, archive Archiver) Model {
	return Model{
		ctx:     ctx,
		gate:    gate,
		panel:   p,
		poll:    poll,
		archive: archive,
		mode:    modeChecking,
	}
}

func (m Model) Init() tea.Cmd {
	return m.checkAuthCmd()
}

func (m Model) checkAuthCmd() tea.Cmd {
	ctx, gate := m.ctx, m.gate
	return func() tea.Msg {
		return authCheckedMsg{ok: gate.Check(ctx)}
	}
}

func (m Model) loginCmd(username, password string) tea.Cmd {
	ctx, gate := m.ctx, m.gate
	return func() tea.Msg {
		return loginDoneMsg{err: gate.Login(ctx, username, password)}
	}
}

func (m Model) loadCmd() tea.Cmd {
	ctx, p := m.ctx, m.panel
	return func() tea.Msg {
		return loadedMsg{err: p.Load(ctx)}
	}
}

func (m Model) refreshCmd() tea.Cmd {
	ctx, p := m.ctx, m.panel
	return func() tea.Msg {
		return refreshedMsg{err: p.Refresh(ctx)}
	}
}

func (m Model) toggleCmd() tea.Cmd {
	ctx, p := m.ctx, m.panel
	op := "start"
	if p.Running() {
		op = "stop"
	}
	return func() tea.Msg {
		return actionDoneMsg{op: op, err: p.Toggle(ctx)}
	}
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		return m, nil
	case authCheckedMsg:
		if msg.ok {
			return m.enterPanel()
		}
		return m.enterLogin(""), nil
	case loginDoneMsg:
		if msg.err != nil {
			if m.form == nil {
				m.form = newLoginForm()
			}
			m.form.busy = false
			m.form.err = msg.err.Error()
			return m, nil
		}
		return m.enterPanel()
	case loadedMsg:
		m.handleFetchErr(msg.err)
		return m, nil
	case refreshedMsg:
		m.handleFetchErr(msg.err)
		if msg.err == nil {
			m.setStatus("Status refreshed", false)
			m.archiveLogs()
		}
		return m, nil
	case actionDoneMsg:
		m.busy = false
		if msg.err != nil {
			m.setStatus(msg.err.Error(), true)
			m.handleFetchErr(msg.err)
			return m, nil
		}
		if msg.op == "stop" {
			m.setStatus("Stop requested", false)
		} else {
			m.setStatus("Job started", false)
		}
		return m, nil
	case PolledMsg:
		if m.mode != modePanel {
			return m, nil
		}
		m.panel.ApplyPolled(msg.Snapshot)
		m.archiveLogs()
		return m, nil
	case PollFailedMsg:
		// other failures are skipped until the next tick
		if m.mode == modePanel && errors.Is(msg.Err, api.ErrUnauthorized) {
			m.handleFetchErr(msg.Err)
		}
		return m, nil
	}

	keyMsg, ok := msg.(tea.KeyMsg)
	if !ok {
		return m, nil
	}
	switch m.mode {
	case modeLogin:
		return m.updateLogin(keyMsg)
	case modePanel:
		return m.updatePanel(keyMsg)
	default:
		if keyMsg.String() == "ctrl+c" || keyMsg.String() == "q" {
			return m, tea.Quit
		}
		return m, nil
	}
}

func (m Model) enterLogin(reason string) Model {
	m.mode = modeLogin
	m.form = newLoginForm()
	m.form.err = reason
	m.busy = false
	if m.poll != nil {
		m.poll.Configure(false, 0)
	}
	return m
}

func (m Model) enterPanel() (tea.Model, tea.Cmd) {
	m.mode = modePanel
	m.form = nil
	m.status = ""
	m.configurePolling()
	return m, m.loadCmd()
}

func (m Model) configurePolling() {
	if m.poll == nil {
		return
	}
	s := m.panel.Settings()
	m.poll.Configure(s.LiveStats, s.PollInterval)
}

// handleFetchErr reports a failed backend call. An authentication failure
// has already cleared the credential, so the operator is sent back to login.
func (m *Model) handleFetchErr(err error) {
	if err == nil {
		return
	}
	if errors.Is(err, api.ErrUnauthorized) {
		*m = m.enterLogin("Session expired. Please log in again.")
		return
	}
	m.setStatus(err.Error(), true)
}

func (m *Model) setStatus(text string, isErr bool) {
	m.status = text
	m.statusErr = isErr
}

func (m Model) archiveLogs() {
	if m.archive == nil {
		return
	}
	snap := m.panel.Snapshot()
	if _, err := m.archive.Add(snap.CurrentTask, snap.Logs); err != nil {
		log.WithError(err).Warn("Failed to archive log lines")
	}
}

func (m Model) updateLogin(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	f := m.form
	if f == nil {
		m.form = newLoginForm()
		f = m.form
	}
	switch msg.String() {
	case "ctrl+c", "esc":
		return m, tea.Quit
	}
	if f.busy {
		return m, nil
	}
	switch msg.String() {
	case "tab", "down":
		f.setFocus((f.focus + 1) % len(f.inputs))
		return m, nil
	case "shift+tab", "up":
		f.setFocus((f.focus + len(f.inputs) - 1) % len(f.inputs))
		return m, nil
	case "enter":
		if f.focus == 0 && f.inputs[1].Value() == "" {
			f.setFocus(1)
			return m, nil
		}
		f.busy = true
		f.err = ""
		return m, m.loginCmd(strings.TrimSpace(f.inputs[0].Value()), f.inputs[1].Value())
	}
	var cmd tea.Cmd
	f.inputs[f.focus], cmd = f.inputs[f.focus].Update(msg)
	return m, cmd
}

func (m Model) updatePanel(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "ctrl+c", "q":
		return m, tea.Quit
	case "s", "enter":
		if m.busy {
			return m, nil
		}
		m.busy = true
		if m.panel.Running() {
			m.setStatus("Stopping…", false)
		} else {
			m.setStatus("Starting…", false)
		}
		return m, m.toggleCmd()
	case "r":
		m.setStatus("Refreshing…", false)
		return m, m.refreshCmd()
	case "l":
		if err := m.gate.Logout(); err != nil {
			m.setStatus(err.Error(), true)
			return m, nil
		}
		return m.enterLogin(""), nil
	case "g":
		s := m.panel.Settings()
		m.applySetting(m.panel.SetGame(models.Games[next(indexOf(models.Games, s.Game), len(models.Games))]))
	case "a":
		s := m.panel.Settings()
		m.applySetting(m.panel.SetAction(models.Actions[next(indexOf(models.Actions, s.Action), len(models.Actions))]))
	case "+", "=":
		s := m.panel.Settings()
		m.applySetting(m.panel.SetThreads(clampInt(s.Threads+threadStep, prefs.MinThreads, prefs.MaxThreads)))
	case "-", "_":
		s := m.panel.Settings()
		m.applySetting(m.panel.SetThreads(clampInt(s.Threads-threadStep, prefs.MinThreads, prefs.MaxThreads)))
	case "]":
		s := m.panel.Settings()
		m.applySetting(m.panel.SetSleep(clampFloat(s.Sleep+sleepStep, 0, prefs.MaxSleep)))
	case "[":
		s := m.panel.Settings()
		m.applySetting(m.panel.SetSleep(clampFloat(s.Sleep-sleepStep, 0, prefs.MaxSleep)))
	case ">", ".":
		s := m.panel.Settings()
		if m.applySetting(m.panel.SetPollInterval(clampFloat(s.PollInterval+intervalStep, 0, prefs.MaxPollInterval))) {
			m.configurePolling()
		}
	case "<", ",":
		s := m.panel.Settings()
		if m.applySetting(m.panel.SetPollInterval(clampFloat(s.PollInterval-intervalStep, 0, prefs.MaxPollInterval))) {
			m.configurePolling()
		}
	}
	return m, nil
}

// applySetting reports err on the status line and returns whether the
// change went through.
func (m *Model) applySetting(err error) bool {
	switch {
	case err == nil:
		m.setStatus("", false)
		return true
	case errors.Is(err, panel.ErrSettingsLocked):
		m.setStatus("Settings are locked while a job is running", true)
	default:
		m.setStatus(err.Error(), true)
	}
	return false
}

func indexOf[T comparable](list []T, v T) int {
	for i, x := range list {
		if x == v {
			return i
		}
	}
	return -1
}

func next(i, n int) int {
	return (i + 1) % n
}

func clampInt(v, lo, hi int) int {
	return max(lo, min(hi, v))
}

// clampFloat also snaps v to the half-second grid the sliders move on.
func clampFloat(v, lo, hi float64) float64 {
	v = math.Round(v*2) / 2
	return math.Max(lo, math.Min(hi, v))
}
