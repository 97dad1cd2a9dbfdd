// Package session decides whether the operator is logged in and handles login
// and logout against the backend.
package session

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"go-modpanel/internal/api"
	"go-modpanel/internal/models"

	log "github.com/sirupsen/logrus"
)

// Messages shown to the operator when a login does not succeed.
const (
	MsgConnectivity     = "Login failed. Please check your connection and try again."
	MsgInvalidLogin     = "Invalid username or password"
	MsgMissingFieldsFmt = "%s is required"
)

// Backend is the part of the API client the gate needs.
type Backend interface {
	Login(ctx context.Context, username, password string) (models.LoginResponse, error)
	Auth(ctx context.Context) (bool, error)
}

// Credential is the locally stored token.
type Credential interface {
	HasToken() bool
	Clear() error
}

// LoginError carries the message to show for a failed login.
type LoginError struct {
	Message string
	Err     error // underlying request error, nil when the backend refused
}

func (e *LoginError) Error() string { return e.Message }

func (e *LoginError) Unwrap() error { return e.Err }

// Gate guards access to the control panel.
type Gate struct {
	backend Backend
	creds   Credential
}

func NewGate(backend Backend, creds Credential) *Gate {
	return &Gate{backend: backend, creds: creds}
}

// Check asks the backend whether the stored credential is still valid. Any
// outcome other than a successful auth discards the credential.
func (g *Gate) Check(ctx context.Context) bool {
	ok, err := g.backend.Auth(ctx)
	if err == nil && ok {
		log.Debug("Stored credential accepted by backend")
		return true
	}
	if err != nil {
		log.WithError(err).Debug("Auth check failed")
	}
	if clearErr := g.creds.Clear(); clearErr != nil {
		log.WithError(clearErr).Warn("Failed to discard credential")
	}
	return false
}

// Login exchanges username and password for a stored credential. The returned
// error is a *LoginError whose message is meant for the operator.
func (g *Gate) Login(ctx context.Context, username, password string) error {
	switch {
	case username == "":
		return &LoginError{Message: fmt.Sprintf(MsgMissingFieldsFmt, "Username")}
	case password == "":
		return &LoginError{Message: fmt.Sprintf(MsgMissingFieldsFmt, "Password")}
	}

	resp, err := g.backend.Login(ctx, username, password)
	if err != nil {
		// A refusal sent as an error response still carries the backend's wording.
		var reqErr *api.RequestError
		if errors.As(err, &reqErr) && reqErr.StatusCode == http.StatusUnauthorized && reqErr.Message != "" {
			return &LoginError{Message: reqErr.Message, Err: err}
		}
		log.WithError(err).Warn("Login request failed")
		return &LoginError{Message: MsgConnectivity, Err: err}
	}
	if !resp.Success {
		msg := resp.Error
		if msg == "" {
			msg = MsgInvalidLogin
		}
		return &LoginError{Message: msg}
	}
	log.Infof("Logged in as %s", username)
	return nil
}

// Logout discards the credential without contacting the backend.
func (g *Gate) Logout() error {
	if err := g.creds.Clear(); err != nil {
		return fmt.Errorf("failed to discard credential: %w", err)
	}
	log.Info("Logged out")
	return nil
}

// LoggedIn reports whether a credential is stored locally. It does not
// validate it; use Check for that.
func (g *Gate) LoggedIn() bool {
	return g.creds.HasToken()
}
