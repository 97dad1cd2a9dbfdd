package prefs

import (
	"errors"
	"sync"

	"go-modpanel/internal/database"

	log "github.com/sirupsen/logrus"
)

// KeyToken holds the opaque credential returned by the backend's login endpoint.
const KeyToken = "auth_token"

// Credentials persists the backend token. The token is cached in memory and
// every change is written through to the store.
type Credentials struct {
	kv     database.Store
	mu     sync.RWMutex
	token  string
	loaded bool
}

func NewCredentials(kv database.Store) *Credentials {
	return &Credentials{kv: kv}
}

// Token returns the stored token, or "" when none is stored.
func (c *Credentials) Token() string {
	c.mu.RLock()
	if c.loaded {
		defer c.mu.RUnlock()
		return c.token
	}
	c.mu.RUnlock()

	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.loaded {
		raw, err := c.kv.Get([]byte(KeyToken))
		if err != nil && !errors.Is(err, database.ErrNotFound) {
			log.WithError(err).Warn("Failed to read stored credential")
		}
		c.token = string(raw)
		c.loaded = true
	}
	return c.token
}

// SetToken stores a new token.
func (c *Credentials) SetToken(token string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.kv.Put([]byte(KeyToken), []byte(token)); err != nil {
		return err
	}
	c.token = token
	c.loaded = true
	return nil
}

// Clear discards the token. The in-memory copy is dropped even if the store
// write fails, so the session is treated as logged out either way.
func (c *Credentials) Clear() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.token = ""
	c.loaded = true
	if err := c.kv.Delete([]byte(KeyToken)); err != nil {
		log.WithError(err).Warn("Failed to remove stored credential")
		return err
	}
	return nil
}

// HasToken reports whether a token is present.
func (c *Credentials) HasToken() bool {
	return c.Token() != ""
}
