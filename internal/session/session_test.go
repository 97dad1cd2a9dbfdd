package session

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"go-modpanel/internal/api"
	"go-modpanel/internal/backendtest"
	"go-modpanel/internal/database"
	"go-modpanel/internal/prefs"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newGate(t *testing.T, baseURL string, client *http.Client) (*Gate, *prefs.Credentials) {
	t.Helper()
	kv, err := database.Open(filepath.Join(t.TempDir(), "state.db"))
	require.NoError(t, err)
	t.Cleanup(func() { kv.Close() })

	creds := prefs.NewCredentials(kv)
	return NewGate(api.NewClient(baseURL, client, creds), creds), creds
}

func TestLoginThenCheck(t *testing.T) {
	srv := backendtest.New().Start(t)
	gate, creds := newGate(t, srv.URL, srv.Client())

	require.NoError(t, gate.Login(context.Background(), "admin", "secret"))
	assert.True(t, gate.LoggedIn())
	assert.Equal(t, "secret", creds.Token())
	assert.True(t, gate.Check(context.Background()))
}

func TestCheckDiscardsRejectedCredential(t *testing.T) {
	srv := backendtest.New().Start(t)
	gate, creds := newGate(t, srv.URL, srv.Client())
	require.NoError(t, creds.SetToken("expired"))

	assert.False(t, gate.Check(context.Background()))
	assert.False(t, creds.HasToken())
}

func TestCheckDiscardsCredentialWhenBackendUnreachable(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	gate, creds := newGate(t, url, nil)
	require.NoError(t, creds.SetToken("maybe-valid"))

	assert.False(t, gate.Check(context.Background()))
	assert.False(t, creds.HasToken())
}

func TestCheckDiscardsCredentialOnSuccessFalse(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"success":false}`))
	}))
	defer srv.Close()

	gate, creds := newGate(t, srv.URL, srv.Client())
	require.NoError(t, creds.SetToken("tok"))
	assert.False(t, gate.Check(context.Background()))
	assert.False(t, creds.HasToken())
}

func TestLoginShowsBackendMessageVerbatim(t *testing.T) {
	srv := backendtest.New().Start(t)
	gate, creds := newGate(t, srv.URL, srv.Client())

	err := gate.Login(context.Background(), "admin", "wrong")
	require.Error(t, err)
	assert.Equal(t, "Invalid credentials", err.Error())
	assert.False(t, creds.HasToken())
}

func TestLoginSuccessFalseMessages(t *testing.T) {
	for _, tt := range []struct {
		body string
		want string
	}{
		{`{"success":false,"error":"Account locked"}`, "Account locked"},
		{`{"success":false}`, MsgInvalidLogin},
	} {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Content-Type", "application/json")
			_, _ = w.Write([]byte(tt.body))
		}))
		gate, _ := newGate(t, srv.URL, srv.Client())

		err := gate.Login(context.Background(), "admin", "secret")
		require.Error(t, err)
		assert.Equal(t, tt.want, err.Error())

		var loginErr *LoginError
		require.True(t, errors.As(err, &loginErr))
		assert.Nil(t, loginErr.Err)
		srv.Close()
	}
}

func TestLoginRequestFailureIsGeneric(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	}))
	defer srv.Close()
	gate, _ := newGate(t, srv.URL, srv.Client())

	err := gate.Login(context.Background(), "admin", "secret")
	require.Error(t, err)
	assert.Equal(t, MsgConnectivity, err.Error())
	assert.ErrorIs(t, err, api.ErrRequestFailed)
}

func TestLoginUnreachableIsGeneric(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()
	gate, _ := newGate(t, url, nil)

	err := gate.Login(context.Background(), "admin", "secret")
	require.Error(t, err)
	assert.Equal(t, MsgConnectivity, err.Error())
}

func TestLoginRequiresFields(t *testing.T) {
	backend := backendtest.New()
	srv := backend.Start(t)
	gate, _ := newGate(t, srv.URL, srv.Client())

	assert.EqualError(t, gate.Login(context.Background(), "", "secret"), "Username is required")
	assert.EqualError(t, gate.Login(context.Background(), "admin", ""), "Password is required")
	assert.Equal(t, 0, backend.Hits("/api/login"))
}

func TestLogoutDoesNotContactBackend(t *testing.T) {
	backend := backendtest.New()
	srv := backend.Start(t)
	gate, creds := newGate(t, srv.URL, srv.Client())
	require.NoError(t, gate.Login(context.Background(), "admin", "secret"))
	before := backend.Hits("/api/login") + backend.Hits("/api/auth")

	require.NoError(t, gate.Logout())
	assert.False(t, creds.HasToken())
	assert.Equal(t, before, backend.Hits("/api/login")+backend.Hits("/api/auth"))
}
