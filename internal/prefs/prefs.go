package prefs

import (
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
	"sync"

	"go-modpanel/internal/database"
	"go-modpanel/internal/models"

	log "github.com/sirupsen/logrus"
)

// Storage keys. They match the keys the browser dashboard kept in localStorage
// so an exported state can be read by either.
const (
	KeyGame      = "game"
	KeyThreads   = "threads"
	KeySleep     = "sleep"
	KeyDelay     = "delay"
	KeyMode      = "mode"
	KeyLiveStats = "liveStats"
)

// Defaults and bounds for each preference.
const (
	DefaultGame         = models.GameWutheringWaves
	DefaultAction       = models.ActionScrape
	DefaultThreads      = 8
	DefaultSleep        = 1.0
	DefaultPollInterval = 1.0
	DefaultLiveStats    = true

	MinThreads      = 0
	MaxThreads      = 16
	MaxSleep        = 10.0
	MaxPollInterval = 5.0
)

// ErrInvalidPreference is returned when a value is outside its allowed set or range.
var ErrInvalidPreference = errors.New("invalid preference value")

// Preferences are the operator's job settings.
type Preferences struct {
	Game         models.Game
	Action       models.Action
	Threads      int
	Sleep        float64 // seconds between backend requests
	PollInterval float64 // seconds between status polls; 0 means off
	LiveStats    bool
}

// Defaults returns the preferences used when nothing has been stored yet.
func Defaults() Preferences {
	return Preferences{
		Game:         DefaultGame,
		Action:       DefaultAction,
		Threads:      DefaultThreads,
		Sleep:        DefaultSleep,
		PollInterval: DefaultPollInterval,
		LiveStats:    DefaultLiveStats,
	}
}

// Store reads and writes preferences through a key-value store. Every setter
// writes through immediately.
type Store struct {
	kv database.Store
	mu sync.Mutex
}

func New(kv database.Store) *Store {
	return &Store{kv: kv}
}

// Load reads every preference, falling back to its default when the stored
// value is absent, unparsable or out of range.
func (s *Store) Load() Preferences {
	s.mu.Lock()
	defer s.mu.Unlock()

	p := Defaults()
	if v, ok := s.read(KeyGame); ok {
		if g, err := ParseGame(v); err == nil {
			p.Game = g
		} else {
			log.Debugf("Ignoring stored %s: %v", KeyGame, err)
		}
	}
	if v, ok := s.read(KeyMode); ok {
		if a, err := ParseAction(v); err == nil {
			p.Action = a
		} else {
			log.Debugf("Ignoring stored %s: %v", KeyMode, err)
		}
	}
	if v, ok := s.read(KeyThreads); ok {
		if n, err := ParseThreads(v); err == nil {
			p.Threads = n
		} else {
			log.Debugf("Ignoring stored %s: %v", KeyThreads, err)
		}
	}
	if v, ok := s.read(KeySleep); ok {
		if f, err := ParseSleep(v); err == nil {
			p.Sleep = f
		} else {
			log.Debugf("Ignoring stored %s: %v", KeySleep, err)
		}
	}
	if v, ok := s.read(KeyDelay); ok {
		if f, err := ParsePollInterval(v); err == nil {
			p.PollInterval = f
		} else {
			log.Debugf("Ignoring stored %s: %v", KeyDelay, err)
		}
	}
	if v, ok := s.read(KeyLiveStats); ok {
		p.LiveStats = v != "false"
	}
	return p
}

func (s *Store) read(key string) (string, bool) {
	raw, err := s.kv.Get([]byte(key))
	if err != nil {
		if !errors.Is(err, database.ErrNotFound) {
			log.WithError(err).Warnf("Failed to read preference %s, using default", key)
		}
		return "", false
	}
	return string(raw), true
}

func (s *Store) write(key, value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.kv.Put([]byte(key), []byte(value)); err != nil {
		return fmt.Errorf("failed to save preference %s: %w", key, err)
	}
	log.Debugf("Saved preference %s=%s", key, value)
	return nil
}

func (s *Store) SetGame(g models.Game) error {
	if !g.Valid() {
		return fmt.Errorf("%w: game %q", ErrInvalidPreference, g)
	}
	return s.write(KeyGame, string(g))
}

func (s *Store) SetAction(a models.Action) error {
	if !a.Valid() {
		return fmt.Errorf("%w: action %q", ErrInvalidPreference, a)
	}
	return s.write(KeyMode, string(a))
}

func (s *Store) SetThreads(n int) error {
	if n < MinThreads || n > MaxThreads {
		return fmt.Errorf("%w: threads %d not in %d-%d", ErrInvalidPreference, n, MinThreads, MaxThreads)
	}
	return s.write(KeyThreads, strconv.Itoa(n))
}

func (s *Store) SetSleep(seconds float64) error {
	if err := checkRange("sleep", seconds, MaxSleep); err != nil {
		return err
	}
	return s.write(KeySleep, FormatFloat(seconds))
}

// SetPollInterval stores the poll interval. Zero turns live stats off and any
// positive value turns them back on.
func (s *Store) SetPollInterval(seconds float64) error {
	if err := checkRange("poll interval", seconds, MaxPollInterval); err != nil {
		return err
	}
	if err := s.SetLiveStats(seconds > 0); err != nil {
		return err
	}
	return s.write(KeyDelay, FormatFloat(seconds))
}

func (s *Store) SetLiveStats(on bool) error {
	return s.write(KeyLiveStats, strconv.FormatBool(on))
}

// Set parses value for the named preference key and stores it.
func (s *Store) Set(key, value string) error {
	value = strings.TrimSpace(value)
	switch key {
	case KeyGame:
		g, err := ParseGame(value)
		if err != nil {
			return err
		}
		return s.SetGame(g)
	case KeyMode, "action":
		a, err := ParseAction(value)
		if err != nil {
			return err
		}
		return s.SetAction(a)
	case KeyThreads:
		n, err := ParseThreads(value)
		if err != nil {
			return err
		}
		return s.SetThreads(n)
	case KeySleep:
		f, err := ParseSleep(value)
		if err != nil {
			return err
		}
		return s.SetSleep(f)
	case KeyDelay, "interval":
		f, err := ParsePollInterval(value)
		if err != nil {
			return err
		}
		return s.SetPollInterval(f)
	case KeyLiveStats:
		on, err := strconv.ParseBool(value)
		if err != nil {
			return fmt.Errorf("%w: liveStats %q", ErrInvalidPreference, value)
		}
		return s.SetLiveStats(on)
	}
	return fmt.Errorf("%w: unknown key %q", ErrInvalidPreference, key)
}

// Raw returns every string held in the underlying store, keyed as stored.
// The credential's value is masked.
func (s *Store) Raw() (map[string]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	raw := make(map[string]string)
	err := s.kv.Fold(func(key, value []byte) error {
		v := string(value)
		if string(key) == KeyToken {
			v = "(set)"
		}
		raw[string(key)] = v
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to read stored settings: %w", err)
	}
	return raw, nil
}

// --- Parsing and formatting ---

func ParseGame(v string) (models.Game, error) {
	g := models.Game(strings.ToUpper(strings.TrimSpace(v)))
	if !g.Valid() {
		return "", fmt.Errorf("%w: game %q", ErrInvalidPreference, v)
	}
	return g, nil
}

func ParseAction(v string) (models.Action, error) {
	a := models.Action(strings.ToLower(strings.TrimSpace(v)))
	if !a.Valid() {
		return "", fmt.Errorf("%w: action %q", ErrInvalidPreference, v)
	}
	return a, nil
}

func ParseThreads(v string) (int, error) {
	n, err := strconv.Atoi(strings.TrimSpace(v))
	if err != nil {
		return 0, fmt.Errorf("%w: threads %q", ErrInvalidPreference, v)
	}
	if n < MinThreads || n > MaxThreads {
		return 0, fmt.Errorf("%w: threads %d not in %d-%d", ErrInvalidPreference, n, MinThreads, MaxThreads)
	}
	return n, nil
}

func ParseSleep(v string) (float64, error) {
	return parseBoundedFloat("sleep", v, MaxSleep)
}

func ParsePollInterval(v string) (float64, error) {
	return parseBoundedFloat("poll interval", v, MaxPollInterval)
}

func parseBoundedFloat(name, v string, max float64) (float64, error) {
	f, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
	if err != nil {
		return 0, fmt.Errorf("%w: %s %q", ErrInvalidPreference, name, v)
	}
	if err := checkRange(name, f, max); err != nil {
		return 0, err
	}
	return f, nil
}

func checkRange(name string, f, max float64) error {
	if math.IsNaN(f) || math.IsInf(f, 0) || f < 0 || f > max {
		return fmt.Errorf("%w: %s %v not in 0-%v", ErrInvalidPreference, name, f, max)
	}
	return nil
}

// FormatFloat renders f in its shortest form: 1 -> "1", 0.5 -> "0.5".
func FormatFloat(f float64) string {
	return strconv.FormatFloat(f, 'f', -1, 64)
}
