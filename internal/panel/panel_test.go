package panel

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"go-modpanel/internal/api"
	"go-modpanel/internal/backendtest"
	"go-modpanel/internal/database"
	"go-modpanel/internal/models"
	"go-modpanel/internal/prefs"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeClient scripts the backend's answers.
type fakeClient struct {
	startResp  models.StatusResponse
	startErr   error
	stopResp   models.StopResponse
	stopErr    error
	status     models.Snapshot
	statusErr  error
	startCalls int
	stopCalls  int
	// runningDuringStart records the panel's flag while the start request is in flight.
	runningDuringStart bool
	panel              *Panel
	// duringStart runs while the start request is in flight.
	duringStart func()
}

func (f *fakeClient) Start(ctx context.Context, action models.Action, game models.Game, threads int, sleep float64) (models.StatusResponse, error) {
	f.startCalls++
	if f.panel != nil {
		f.runningDuringStart = f.panel.Running()
	}
	if f.duringStart != nil {
		f.duringStart()
	}
	return f.startResp, f.startErr
}

func (f *fakeClient) Stop(ctx context.Context) (models.StopResponse, error) {
	f.stopCalls++
	return f.stopResp, f.stopErr
}

func (f *fakeClient) Status(ctx context.Context) (models.Snapshot, error) {
	return f.status, f.statusErr
}

func newStore(t *testing.T) *prefs.Store {
	t.Helper()
	kv, err := database.Open(filepath.Join(t.TempDir(), "state.db"))
	require.NoError(t, err)
	t.Cleanup(func() { kv.Close() })
	return prefs.New(kv)
}

func snapshot(phase string) models.Snapshot {
	return models.Snapshot{CurrentTask: phase, Progress: models.NewProgress(`{}`), Logs: []string{}}
}

func TestNewStartsFromDefaults(t *testing.T) {
	p := New(&fakeClient{}, newStore(t))

	assert.False(t, p.Running())
	assert.Equal(t, prefs.Defaults(), p.Settings())
	assert.Equal(t, models.PhaseUnknown, p.StatusLabel())
	assert.Equal(t, 41, p.Snapshot().Progress.CategoriesTotal())
}

func TestStartSetsRunningAndAdoptsSnapshot(t *testing.T) {
	started := snapshot("Scraping")
	client := &fakeClient{startResp: models.StatusResponse{Success: true, Status: &started}}
	p := New(client, newStore(t))
	client.panel = p

	require.NoError(t, p.Start(context.Background()))
	assert.True(t, client.runningDuringStart)
	assert.True(t, p.Running())
	assert.Equal(t, "Scraping", p.Snapshot().CurrentTask)
}

func TestTerminalPollDuringStartClearsRunning(t *testing.T) {
	for _, phase := range []string{models.PhaseFinished, models.PhaseCancelled, models.PhaseIdle} {
		t.Run(phase, func(t *testing.T) {
			started := snapshot("Scraping")
			client := &fakeClient{startResp: models.StatusResponse{Success: true, Status: &started}}
			p := New(client, newStore(t))
			client.panel = p
			client.duringStart = func() { p.ApplyPolled(snapshot(phase)) }

			require.NoError(t, p.Start(context.Background()))
			assert.True(t, client.runningDuringStart)
			assert.False(t, p.Running(), "a terminal poll wins over the in-flight start")
			assert.Equal(t, "Scraping", p.Snapshot().CurrentTask)
			assert.Equal(t, "Scraping", p.StatusLabel())
		})
	}
}

func TestStartWithoutSnapshotKeepsPrevious(t *testing.T) {
	client := &fakeClient{startResp: models.StatusResponse{Success: true}}
	p := New(client, newStore(t))

	require.NoError(t, p.Start(context.Background()))
	assert.True(t, p.Running())
	assert.Equal(t, models.PhaseUnknown, p.Snapshot().CurrentTask)
}

func TestFailedStartRevertsRunning(t *testing.T) {
	t.Run("refused", func(t *testing.T) {
		client := &fakeClient{startResp: models.StatusResponse{Success: false, Error: "A task is already running"}}
		p := New(client, newStore(t))

		err := p.Start(context.Background())
		require.Error(t, err)
		assert.ErrorIs(t, err, ErrRefused)
		assert.Contains(t, err.Error(), "A task is already running")
		assert.False(t, p.Running())
	})
	t.Run("request error", func(t *testing.T) {
		client := &fakeClient{startErr: api.ErrRequestFailed}
		p := New(client, newStore(t))

		err := p.Start(context.Background())
		assert.ErrorIs(t, err, api.ErrRequestFailed)
		assert.False(t, p.Running())
	})
}

func TestStopDoesNotClearRunning(t *testing.T) {
	client := &fakeClient{
		startResp: models.StatusResponse{Success: true},
		stopResp:  models.StopResponse{Success: true},
	}
	p := New(client, newStore(t))
	require.NoError(t, p.Start(context.Background()))

	require.NoError(t, p.Stop(context.Background()))
	assert.True(t, p.Running(), "running is only cleared by a poll")

	p.ApplyPolled(snapshot(models.PhaseCancelled))
	assert.False(t, p.Running())
}

func TestStopRefusedSurfacesMessage(t *testing.T) {
	client := &fakeClient{stopResp: models.StopResponse{Success: false, Error: "No running task to cancel"}}
	p := New(client, newStore(t))

	err := p.Stop(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrRefused)
	assert.Contains(t, err.Error(), "No running task to cancel")
}

func TestToggle(t *testing.T) {
	client := &fakeClient{
		startResp: models.StatusResponse{Success: true},
		stopResp:  models.StopResponse{Success: true},
	}
	p := New(client, newStore(t))

	require.NoError(t, p.Toggle(context.Background()))
	assert.Equal(t, 1, client.startCalls)
	assert.Equal(t, 0, client.stopCalls)

	require.NoError(t, p.Toggle(context.Background()))
	assert.Equal(t, 1, client.startCalls)
	assert.Equal(t, 1, client.stopCalls)
}

func TestStartWhileRunning(t *testing.T) {
	client := &fakeClient{startResp: models.StatusResponse{Success: true}}
	p := New(client, newStore(t))
	p.ApplyPolled(snapshot("Scraping"))

	assert.ErrorIs(t, p.Start(context.Background()), ErrAlreadyRunning)
	assert.Equal(t, 0, client.startCalls)
}

func TestApplyPolledDerivesRunning(t *testing.T) {
	p := New(&fakeClient{}, newStore(t))

	for _, tt := range []struct {
		phase   string
		running bool
	}{
		{"Scraping", true},
		{models.PhaseFinished, false},
		{models.PhaseMapping, true},
		{models.PhaseCancelled, false},
		{models.PhaseStopping, true},
		{models.PhaseIdle, false},
		{"", true},
	} {
		p.ApplyPolled(snapshot(tt.phase))
		assert.Equal(t, tt.running, p.Running(), "phase %q", tt.phase)
	}
}

func TestApplySnapshotReplacesWholesale(t *testing.T) {
	p := New(&fakeClient{}, newStore(t))
	first := models.Snapshot{
		CurrentTask: "Scraping",
		Progress:    models.NewProgress(`{"mods_total":10,"mods_done":3}`),
		Logs:        []string{"a", "b"},
	}
	p.ApplySnapshot(first)

	second := models.Snapshot{CurrentTask: "Scraping", Progress: models.NewProgress(`{"categories_done":1}`)}
	p.ApplySnapshot(second)

	got := p.Snapshot()
	assert.Equal(t, 0, got.Progress.ModsTotal(), "fields absent from the new snapshot are not carried over")
	assert.Empty(t, got.Logs)
	assert.Equal(t, 1, got.Progress.CategoriesDone())
	assert.False(t, p.Running(), "ApplySnapshot leaves running alone")
}

func TestStatusLabel(t *testing.T) {
	assert.Equal(t, LabelRunning, statusLabel(true, models.PhaseIdle))
	assert.Equal(t, LabelRunning, statusLabel(true, models.PhaseFinished))
	assert.Equal(t, models.PhaseIdle, statusLabel(false, models.PhaseIdle))
	assert.Equal(t, "Scraping", statusLabel(true, "Scraping"))
}

func TestSettingsLockedWhileRunning(t *testing.T) {
	store := newStore(t)
	p := New(&fakeClient{}, store)
	p.ApplyPolled(snapshot("Scraping"))

	assert.ErrorIs(t, p.SetGame(models.GameGenshinImpact), ErrSettingsLocked)
	assert.ErrorIs(t, p.SetAction(models.ActionFix), ErrSettingsLocked)
	assert.ErrorIs(t, p.SetThreads(2), ErrSettingsLocked)
	assert.ErrorIs(t, p.SetSleep(3), ErrSettingsLocked)
	assert.ErrorIs(t, p.SetPollInterval(2), ErrSettingsLocked)
	assert.ErrorIs(t, p.Set("threads", "2"), ErrSettingsLocked)
	assert.Equal(t, prefs.Defaults(), store.Load())

	p.ApplyPolled(snapshot(models.PhaseFinished))
	require.NoError(t, p.SetThreads(2))
	assert.Equal(t, 2, p.Settings().Threads)
	assert.Equal(t, 2, store.Load().Threads)
}

func TestSetPollIntervalZeroTurnsLiveStatsOff(t *testing.T) {
	p := New(&fakeClient{}, newStore(t))

	require.NoError(t, p.SetPollInterval(0))
	assert.False(t, p.Settings().LiveStats)
	require.NoError(t, p.SetPollInterval(2.5))
	assert.True(t, p.Settings().LiveStats)
	assert.Equal(t, 2.5, p.Settings().PollInterval)
}

func TestInvalidSettingPassesThroughValidation(t *testing.T) {
	p := New(&fakeClient{}, newStore(t))
	err := p.SetThreads(99)
	assert.True(t, errors.Is(err, prefs.ErrInvalidPreference))
}

func TestLoadAndRefresh(t *testing.T) {
	client := &fakeClient{status: snapshot("Scraping")}
	p := New(client, newStore(t))

	require.NoError(t, p.Load(context.Background()))
	assert.Equal(t, "Scraping", p.Snapshot().CurrentTask)
	assert.False(t, p.Running(), "initial load does not derive running")

	require.NoError(t, p.Refresh(context.Background()))
	assert.True(t, p.Running())

	client.statusErr = api.ErrRequestFailed
	assert.Error(t, p.Refresh(context.Background()))
	assert.Equal(t, "Scraping", p.Snapshot().CurrentTask, "failed refresh keeps the last snapshot")
}

func TestAgainstBackend(t *testing.T) {
	backend := backendtest.New()
	srv := backend.Start(t)
	kv, err := database.Open(filepath.Join(t.TempDir(), "state.db"))
	require.NoError(t, err)
	defer kv.Close()

	creds := prefs.NewCredentials(kv)
	require.NoError(t, creds.SetToken("secret"))
	store := prefs.New(kv)
	require.NoError(t, store.SetThreads(4))
	require.NoError(t, store.SetSleep(0.5))

	p := New(api.NewClient(srv.URL, srv.Client(), creds), store)
	require.NoError(t, p.Toggle(context.Background()))
	require.Len(t, backend.Starts(), 1)
	assert.Equal(t, backendtest.StartCall{Task: "scrape", Game: "WW", Threads: "4", Sleep: "0.5"}, backend.Starts()[0])
	assert.Equal(t, "Starting scrape", p.StatusLabel())

	require.NoError(t, p.Toggle(context.Background()))
	assert.True(t, p.Running())

	backend.SetPhase(models.PhaseCancelled)
	require.NoError(t, p.Refresh(context.Background()))
	assert.False(t, p.Running())
	assert.Equal(t, models.PhaseCancelled, p.StatusLabel())
}

func TestBackendRejectionSurfacesMessage(t *testing.T) {
	backend := backendtest.New()
	srv := backend.Start(t)
	backend.SetPhase("Scraping")
	kv, err := database.Open(filepath.Join(t.TempDir(), "state.db"))
	require.NoError(t, err)
	defer kv.Close()

	creds := prefs.NewCredentials(kv)
	require.NoError(t, creds.SetToken("secret"))
	p := New(api.NewClient(srv.URL, srv.Client(), creds), prefs.New(kv))

	err = p.Start(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrRefused)
	assert.ErrorIs(t, err, api.ErrRequestFailed)
	assert.Contains(t, err.Error(), "A task is already running")
	assert.False(t, p.Running())

	backend.SetPhase(models.PhaseIdle)
	err = p.Stop(context.Background())
	assert.ErrorIs(t, err, ErrRefused)
	assert.Contains(t, err.Error(), "No running task to cancel")
}

func TestUnauthorizedStartIsNotARefusal(t *testing.T) {
	client := &fakeClient{startErr: &api.RequestError{StatusCode: 401, Status: "Unauthorized", Message: "Unauthorized"}}
	p := New(client, newStore(t))

	err := p.Start(context.Background())
	assert.ErrorIs(t, err, api.ErrUnauthorized)
	assert.NotErrorIs(t, err, ErrRefused)
	assert.Contains(t, err.Error(), "start failed")
}
