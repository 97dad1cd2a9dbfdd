package models

import (
	"bytes"
	"encoding/json"
	"fmt"
)

type (
	// Config holds the application's configuration settings.
	Config struct {
		BaseURL             string `toml:"BaseURL" json:"BaseURL"`
		StatePath           string `toml:"StatePath" json:"StatePath"`
		StoreBackend        string `toml:"StoreBackend" json:"StoreBackend"`
		IndexPath           string `toml:"IndexPath" json:"IndexPath"`
		LogLevel            string `toml:"LogLevel" json:"LogLevel"`
		LogFormat           string `toml:"LogFormat" json:"LogFormat"`
		APIClientTimeoutSec int    `toml:"ApiClientTimeoutSec" json:"ApiClientTimeoutSec"`
		LogApiRequests      bool   `toml:"LogApiRequests" json:"LogApiRequests"`
		ArchiveLogs         bool   `toml:"ArchiveLogs" json:"ArchiveLogs"`
	}
)

// Game identifies which game's mod catalogue a job works on.
type Game string

const (
	GameWutheringWaves  Game = "WW"
	GameGenshinImpact   Game = "GI"
	GameZenlessZoneZero Game = "ZZ"
)

// Games lists the selectable games in display order.
var Games = []Game{GameWutheringWaves, GameGenshinImpact, GameZenlessZoneZero}

func (g Game) Valid() bool {
	switch g {
	case GameWutheringWaves, GameGenshinImpact, GameZenlessZoneZero:
		return true
	}
	return false
}

// Label returns the human readable game name.
func (g Game) Label() string {
	switch g {
	case GameWutheringWaves:
		return "Wuthering Waves"
	case GameGenshinImpact:
		return "Genshin Impact"
	case GameZenlessZoneZero:
		return "Zenless Zone Zero"
	}
	return string(g)
}

// Action is the kind of backend job to launch.
type Action string

const (
	ActionScrape Action = "scrape"
	ActionUpdate Action = "update"
	ActionFix    Action = "fix"
	ActionMap    Action = "map"
)

// Actions lists the selectable actions in display order.
var Actions = []Action{ActionScrape, ActionUpdate, ActionFix, ActionMap}

func (a Action) Valid() bool {
	switch a {
	case ActionScrape, ActionUpdate, ActionFix, ActionMap:
		return true
	}
	return false
}

func (a Action) Label() string {
	switch a {
	case ActionScrape:
		return "Scrape"
	case ActionUpdate:
		return "Update"
	case ActionFix:
		return "Fix"
	case ActionMap:
		return "Map Hashes"
	}
	return string(a)
}

// Phase names reported by the backend in current_task. The backend may report
// others; these are the ones the client reacts to.
const (
	PhaseUnknown   = "Unknown"
	PhaseIdle      = "Idle"
	PhaseFinished  = "Finished"
	PhaseCancelled = "Cancelled"
	PhaseStopping  = "Stopping"
	PhaseFixing    = "Fixing"
	PhaseMapping   = "Mapping"
)

// IsTerminalPhase reports whether no job is running in the given phase.
func IsTerminalPhase(phase string) bool {
	switch phase {
	case PhaseFinished, PhaseCancelled, PhaseIdle:
		return true
	}
	return false
}

// CategoryProgress is the category currently being worked on.
type CategoryProgress struct {
	Name  string  `json:"name"`
	Total float64 `json:"total"`
	Done  float64 `json:"done"`
}

// progressCounters are the fields of progress the display knows about.
// Numbers are decoded as float64 so an unexpected encoding never fails the snapshot.
type progressCounters struct {
	TotalFilesProcessed float64                    `json:"total_files_processed"`
	CategoriesTotal     float64                    `json:"categories_total"`
	CategoriesDone      float64                    `json:"categories_done"`
	ModsTotal           float64                    `json:"mods_total"`
	ModsDone            float64                    `json:"mods_done"`
	Category            CategoryProgress           `json:"category"`
	Mods                map[string]json.RawMessage `json:"mods"`
	Files               map[string]json.RawMessage `json:"files"`
}

// Progress is the backend-defined progress object. The raw JSON is kept
// verbatim and re-emitted unchanged; the known counters are exposed read-only.
type Progress struct {
	raw      json.RawMessage
	counters progressCounters
}

// UnmarshalJSON keeps the raw bytes and decodes whatever counters it can.
func (p *Progress) UnmarshalJSON(data []byte) error {
	trimmed := bytes.TrimSpace(data)
	if bytes.Equal(trimmed, []byte("null")) {
		*p = Progress{}
		return nil
	}
	if len(trimmed) == 0 || trimmed[0] != '{' {
		return fmt.Errorf("progress must be a JSON object, got %q", string(trimmed))
	}
	p.raw = append(json.RawMessage(nil), trimmed...)
	p.counters = progressCounters{}
	// Counters are best effort; an odd field type leaves it at zero.
	_ = json.Unmarshal(trimmed, &p.counters)
	return nil
}

func (p Progress) MarshalJSON() ([]byte, error) {
	if len(p.raw) == 0 {
		return []byte("{}"), nil
	}
	return p.raw, nil
}

// Raw returns the progress object exactly as received.
func (p Progress) Raw() json.RawMessage { return p.raw }

func (p Progress) TotalFilesProcessed() int { return int(p.counters.TotalFilesProcessed) }
func (p Progress) CategoriesTotal() int     { return int(p.counters.CategoriesTotal) }
func (p Progress) CategoriesDone() int      { return int(p.counters.CategoriesDone) }
func (p Progress) ModsTotal() int           { return int(p.counters.ModsTotal) }
func (p Progress) ModsDone() int            { return int(p.counters.ModsDone) }
func (p Progress) Category() CategoryProgress {
	return p.counters.Category
}

// Mods returns the per-mod progress entries, shape defined by the backend.
func (p Progress) Mods() map[string]json.RawMessage { return p.counters.Mods }

// Files returns the per-file progress entries, shape defined by the backend.
func (p Progress) Files() map[string]json.RawMessage { return p.counters.Files }

// CategoryPercent is categories_done/categories_total in percent. Zero until
// at least one category is done.
func (p Progress) CategoryPercent() float64 {
	if p.counters.CategoriesDone > 0 && p.counters.CategoriesTotal > 0 {
		return p.counters.CategoriesDone / p.counters.CategoriesTotal * 100
	}
	return 0
}

// ModsPercent is mods_done/mods_total in percent.
func (p Progress) ModsPercent() float64 {
	if p.counters.ModsTotal > 0 {
		return p.counters.ModsDone / p.counters.ModsTotal * 100
	}
	return 0
}

// NewProgress builds a Progress from raw JSON, mainly for tests and defaults.
func NewProgress(raw string) Progress {
	var p Progress
	if err := p.UnmarshalJSON([]byte(raw)); err != nil {
		return Progress{}
	}
	return p
}

// Snapshot is the backend's full current status. It is replaced wholesale on
// every successful poll and never mutated locally.
type Snapshot struct {
	CurrentTask string   `json:"current_task"`
	Progress    Progress `json:"progress"`
	Logs        []string `json:"logs"`
}

// DefaultSnapshot is shown before the first status response arrives.
func DefaultSnapshot() Snapshot {
	return Snapshot{
		CurrentTask: PhaseUnknown,
		Progress: NewProgress(`{"categories_done":0,"categories_total":41,` +
			`"category":{"done":0,"name":"","total":0},"files":{},"mods":{},` +
			`"mods_done":0,"mods_total":0,"total_files_processed":0}`),
	}
}

// --- Wire types for the backend API ---

type LoginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type LoginResponse struct {
	Success   bool   `json:"success"`
	Token     string `json:"token"`
	Error     string `json:"error"`
	ExpiresIn int    `json:"expires_in"`
}

type AuthResponse struct {
	Success bool   `json:"success"`
	Error   string `json:"error"`
}

// StatusResponse is returned by both /api/status and /api/start.
type StatusResponse struct {
	Success bool      `json:"success"`
	Status  *Snapshot `json:"status"`
	Error   string    `json:"error"`
}

type StopResponse struct {
	Success bool   `json:"success"`
	Error   string `json:"error"`
}

type HealthResponse struct {
	Status    string `json:"status"`
	Timestamp string `json:"timestamp"`
}
