package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"go-modpanel/internal/api"
	"go-modpanel/internal/paths"

	"github.com/BurntSushi/toml"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func strPtr(s string) *string { return &s }
func boolPtr(b bool) *bool { return &b }
func intPtr(i int) *int { return &i }

// noFile points Initialize at a config file that does not exist.
func noFile(t *testing.T) *string {
	t.Helper()
	return strPtr(filepath.Join(t.TempDir(), "missing.toml"))
}

// TestConfigInitialization tests basic configuration initialization
func TestConfigInitialization(t *testing.T) {
	cfg, transport, err := Initialize(CliFlags{ConfigFilePath: noFile(t)})
	require.NoError(t, err)

	assert.Equal(t, DefaultBaseURL, cfg.BaseURL)
	assert.Equal(t, DefaultStoreBackend, cfg.StoreBackend)
	assert.Equal(t, DefaultAPIClientTimeoutSec, cfg.APIClientTimeoutSec)
	assert.Equal(t, DefaultLogLevel, cfg.LogLevel)
	assert.Equal(t, DefaultLogFormat, cfg.LogFormat)
	assert.False(t, cfg.LogApiRequests)
	assert.False(t, cfg.ArchiveLogs)
	assert.NotEmpty(t, cfg.StatePath)
	assert.Equal(t, filepath.Join(cfg.StatePath, paths.IndexDir), cfg.IndexPath)
	assert.NotNil(t, transport)
}

// TestFlagOverrides tests that CLI flags override default values
func TestFlagOverrides(t *testing.T) {
	state := t.TempDir()
	cfg, _, err := Initialize(CliFlags{
		ConfigFilePath:      noFile(t),
		BaseURL:             strPtr("https://jobs.example.com"),
		StatePath:           strPtr(state),
		StoreBackend:        strPtr("bitcask"),
		LogLevel:            strPtr("debug"),
		LogFormat:           strPtr("json"),
		APIClientTimeoutSec: intPtr(5),
		ArchiveLogs:         boolPtr(true),
	})
	require.NoError(t, err)

	assert.Equal(t, "https://jobs.example.com", cfg.BaseURL)
	assert.Equal(t, state, cfg.StatePath)
	assert.Equal(t, "bitcask", cfg.StoreBackend)
	assert.Equal(t, "debug", cfg.LogLevel)
	assert.Equal(t, "json", cfg.LogFormat)
	assert.Equal(t, 5, cfg.APIClientTimeoutSec)
	assert.True(t, cfg.ArchiveLogs)
	assert.Equal(t, filepath.Join(state, paths.IndexDir), cfg.IndexPath)
}

func TestConfigFileAndPrecedence(t *testing.T) {
	dir := t.TempDir()
	file := filepath.Join(dir, "config.toml")
	content := `BaseURL = "http://file.example:5000"
StoreBackend = "bitcask"
ApiClientTimeoutSec = 12
LogLevel = "warn"
StatePath = "` + filepath.ToSlash(dir) + `"
`
	require.NoError(t, os.WriteFile(file, []byte(content), 0o600))

	cfg, _, err := Initialize(CliFlags{ConfigFilePath: &file})
	require.NoError(t, err)
	assert.Equal(t, "http://file.example:5000", cfg.BaseURL)
	assert.Equal(t, "bitcask", cfg.StoreBackend)
	assert.Equal(t, 12, cfg.APIClientTimeoutSec)
	assert.Equal(t, "warn", cfg.LogLevel)

	t.Setenv("MODPANEL_BASEURL", "http://env.example:5000")
	cfg, _, err = Initialize(CliFlags{ConfigFilePath: &file})
	require.NoError(t, err)
	assert.Equal(t, "http://env.example:5000", cfg.BaseURL, "environment beats the file")

	cfg, _, err = Initialize(CliFlags{ConfigFilePath: &file, BaseURL: strPtr("http://flag.example:5000")})
	require.NoError(t, err)
	assert.Equal(t, "http://flag.example:5000", cfg.BaseURL, "flags beat everything")
}

// TestConfigValidation tests configuration validation for critical values
func TestConfigValidation(t *testing.T) {
	tests := []struct {
		name  string
		flags CliFlags
		want  string
	}{
		{"bad scheme", CliFlags{BaseURL: strPtr("localhost:5000")}, "BaseURL must start"},
		{"empty url", CliFlags{BaseURL: strPtr("")}, "BaseURL cannot be empty"},
		{"bad store", CliFlags{StoreBackend: strPtr("redis")}, "StoreBackend"},
		{"bad level", CliFlags{LogLevel: strPtr("loud")}, "invalid LogLevel"},
		{"bad format", CliFlags{LogFormat: strPtr("xml")}, "LogFormat"},
		{"negative timeout", CliFlags{APIClientTimeoutSec: intPtr(-1)}, "cannot be negative"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tt.flags.ConfigFilePath = noFile(t)
			_, _, err := Initialize(tt.flags)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

// TestNilFlagPointers tests that nil pointers in flags don't cause panics
func TestNilFlagPointers(t *testing.T) {
	flags := CliFlags{ConfigFilePath: noFile(t)}
	assert.NotPanics(t, func() {
		_, _, _ = Initialize(flags)
	})
}

func TestHTTPTransportCreation(t *testing.T) {
	state := t.TempDir()
	_, transport, err := Initialize(CliFlags{
		ConfigFilePath: noFile(t),
		StatePath:      &state,
		LogApiRequests: boolPtr(true),
	})
	require.NoError(t, err)
	t.Cleanup(api.CloseAllLoggingTransports)

	_, ok := transport.(*api.LoggingTransport)
	assert.True(t, ok, "--log-api wraps the transport")
	_, err = os.Stat(filepath.Join(state, paths.APILogFile))
	assert.NoError(t, err)
}

func TestWriteDefault(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "config.toml")
	require.NoError(t, WriteDefault(path, false))

	var decoded map[string]interface{}
	_, err := toml.DecodeFile(path, &decoded)
	require.NoError(t, err)
	assert.Equal(t, DefaultBaseURL, decoded["BaseURL"])
	assert.Equal(t, DefaultStoreBackend, decoded["StoreBackend"])
	assert.Equal(t, "", decoded["IndexPath"])

	err = WriteDefault(path, false)
	require.Error(t, err)
	assert.True(t, strings.Contains(err.Error(), "already exists"))
	assert.NoError(t, WriteDefault(path, true))

	// The written file loads back through Initialize.
	cfg, _, err := Initialize(CliFlags{ConfigFilePath: &path})
	require.NoError(t, err)
	assert.Equal(t, DefaultBaseURL, cfg.BaseURL)
}

func TestDefaultConfigFileFallsBackToStateDir(t *testing.T) {
	t.Chdir(t.TempDir())
	home := t.TempDir()
	t.Setenv("XDG_CONFIG_HOME", home)
	assert.Equal(t, DefaultConfigFilePath, defaultConfigFile(), "nothing on disk")

	userFile := filepath.Join(home, "modpanel", DefaultConfigFilePath)
	require.NoError(t, os.MkdirAll(filepath.Dir(userFile), 0o750))
	require.NoError(t, os.WriteFile(userFile, []byte(`BaseURL = "https://user.example"`), 0o600))
	assert.Equal(t, userFile, defaultConfigFile())

	cfg, _, err := Initialize(CliFlags{})
	require.NoError(t, err)
	assert.Equal(t, "https://user.example", cfg.BaseURL)

	require.NoError(t, os.WriteFile(DefaultConfigFilePath, []byte(`BaseURL = "https://local.example"`), 0o600))
	assert.Equal(t, DefaultConfigFilePath, defaultConfigFile(), "working directory wins")
}
