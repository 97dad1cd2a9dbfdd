// Package backendtest provides an in-memory job backend speaking the same
// REST contract as the real one. It is used by tests across the module.
package backendtest

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strconv"
	"sync"
	"time"

	"go-modpanel/internal/models"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

// StartCall records the parameters of one accepted start request.
type StartCall struct {
	Task    string
	Game    string
	Threads string
	Sleep   string
}

// Backend is a fake job backend. Zero value is not usable; call New.
type Backend struct {
	mu sync.Mutex

	// Users maps username to password. A successful login returns the
	// password as the token, like the real backend does.
	Users map[string]string

	snapshot models.Snapshot
	hits     map[string]int
	starts   []StartCall
	auths    []string

	failStatus  int
	failAfter   int
	statusDelay time.Duration
}

// New returns a backend with one user and an Idle job.
func New() *Backend {
	return &Backend{
		Users: map[string]string{"admin": "secret"},
		snapshot: models.Snapshot{
			CurrentTask: models.PhaseIdle,
			Progress:    models.NewProgress(`{"categories_total":41,"categories_done":0}`),
			Logs:        []string{},
		},
		hits: make(map[string]int),
	}
}

// Start serves the backend on a fresh httptest server closed at test cleanup.
func (b *Backend) Start(t interface{ Cleanup(func()) }) *httptest.Server {
	srv := httptest.NewServer(b.Routes())
	t.Cleanup(srv.Close)
	return srv
}

// Routes returns the chi router for the backend's API.
func (b *Backend) Routes() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(b.count)

	r.Route("/api", func(api chi.Router) {
		api.Post("/login", b.handleLogin)
		api.Get("/auth", b.handleAuth)
		api.Get("/status", b.handleStatus)
		api.Get("/stop", b.handleStop)
		api.Get("/start/{task}/{game}/{threads}/{sleep}", b.handleStart)
		api.Get("/health", b.handleHealth)
	})
	r.NotFound(func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusNotFound, map[string]any{"error": "Endpoint not found"})
	})
	return r
}

func (b *Backend) count(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		b.mu.Lock()
		b.hits[r.URL.Path]++
		b.auths = append(b.auths, r.Header.Get("Authorization"))
		b.mu.Unlock()
		next.ServeHTTP(w, r)
	})
}

// Hits returns how many requests reached path.
func (b *Backend) Hits(path string) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.hits[path]
}

// LastAuthorization returns the Authorization header of the latest request.
func (b *Backend) LastAuthorization() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	if len(b.auths) == 0 {
		return ""
	}
	return b.auths[len(b.auths)-1]
}

// Starts returns every accepted start request.
func (b *Backend) Starts() []StartCall {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]StartCall(nil), b.starts...)
}

// SetSnapshot replaces the job state reported by /api/status.
func (b *Backend) SetSnapshot(s models.Snapshot) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.snapshot = s
}

// FailStatus makes /api/status answer with code. Zero restores normal replies.
func (b *Backend) FailStatus(code int) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.failStatus = code
	b.failAfter = 0
}

// FailStatusAfter lets the next n /api/status requests succeed and answers
// every later one with code.
func (b *Backend) FailStatusAfter(n, code int) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.failStatus = code
	b.failAfter = b.hits["/api/status"] + n
}

// DelayStatus holds every /api/status response for d.
func (b *Backend) DelayStatus(d time.Duration) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.statusDelay = d
}

// SetPhase changes only the reported phase.
func (b *Backend) SetPhase(phase string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.snapshot.CurrentTask = phase
}

// AppendLogs adds lines to the reported log tail, keeping the last 100.
func (b *Backend) AppendLogs(lines ...string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.snapshot.Logs = append(b.snapshot.Logs, lines...)
	if n := len(b.snapshot.Logs); n > 100 {
		b.snapshot.Logs = b.snapshot.Logs[n-100:]
	}
}

func (b *Backend) authorized(r *http.Request) bool {
	tok := r.Header.Get("Authorization")
	if tok == "" {
		return false
	}
	for _, pw := range b.Users {
		if pw == tok {
			return true
		}
	}
	return false
}

func (b *Backend) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req models.LoginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]any{"success": false, "error": err.Error()})
		return
	}
	b.mu.Lock()
	pw, ok := b.Users[req.Username]
	b.mu.Unlock()
	if !ok || pw != req.Password {
		writeJSON(w, http.StatusUnauthorized, map[string]any{"success": false, "error": "Invalid credentials"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "token": pw, "expires_in": 86400})
}

func (b *Backend) handleAuth(w http.ResponseWriter, r *http.Request) {
	b.mu.Lock()
	ok := b.authorized(r)
	b.mu.Unlock()
	if !ok {
		writeJSON(w, http.StatusUnauthorized, map[string]any{"success": false, "error": "Unauthorized"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true})
}

func (b *Backend) handleStatus(w http.ResponseWriter, _ *http.Request) {
	b.mu.Lock()
	delay := b.statusDelay
	fail := b.failStatus
	if b.hits["/api/status"] <= b.failAfter {
		fail = 0
	}
	snap := b.snapshot
	b.mu.Unlock()

	if delay > 0 {
		time.Sleep(delay)
	}
	if fail != 0 {
		writeJSON(w, fail, map[string]any{"error": http.StatusText(fail)})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "status": snap})
}

func (b *Backend) handleStop(w http.ResponseWriter, r *http.Request) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if !b.authorized(r) {
		writeJSON(w, http.StatusUnauthorized, map[string]any{"success": false, "error": "Unauthorized"})
		return
	}
	if models.IsTerminalPhase(b.snapshot.CurrentTask) || b.snapshot.CurrentTask == models.PhaseStopping {
		writeJSON(w, http.StatusBadRequest, map[string]any{"success": false, "error": "No running task to cancel"})
		return
	}
	b.snapshot.CurrentTask = models.PhaseStopping
	writeJSON(w, http.StatusOK, map[string]any{"success": true})
}

func (b *Backend) handleStart(w http.ResponseWriter, r *http.Request) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if !b.authorized(r) {
		writeJSON(w, http.StatusUnauthorized, map[string]any{"success": false, "error": "Unauthorized"})
		return
	}
	if !models.IsTerminalPhase(b.snapshot.CurrentTask) {
		writeJSON(w, http.StatusBadRequest, map[string]any{"success": false, "error": "A task is already running"})
		return
	}
	call := StartCall{
		Task:    chi.URLParam(r, "task"),
		Game:    chi.URLParam(r, "game"),
		Threads: chi.URLParam(r, "threads"),
		Sleep:   chi.URLParam(r, "sleep"),
	}
	if _, err := strconv.Atoi(call.Threads); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]any{"success": false, "error": err.Error()})
		return
	}
	b.starts = append(b.starts, call)
	b.snapshot.CurrentTask = "Starting " + call.Task
	b.snapshot.Logs = append(b.snapshot.Logs, "[INFO] started "+call.Task+" for "+call.Game)
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "status": b.snapshot})
}

func (b *Backend) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":    "healthy",
		"timestamp": time.Now().UTC().Format("2006-01-02T15:04:05.000000"),
	})
}

func writeJSON(w http.ResponseWriter, code int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(payload)
}
