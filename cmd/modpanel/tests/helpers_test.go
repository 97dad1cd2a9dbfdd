package main_test

import (
	"encoding/json"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"testing"

	"go-modpanel/internal/models"

	"github.com/stretchr/testify/require"
)

// runCommand executes the modpanel binary with given arguments.
// binaryPath and projectRoot are set up in main_test.go
func runCommand(t *testing.T, args ...string) (string, string, error) {
	t.Helper()
	cmd := exec.Command(binaryPath, args...)
	cmd.Dir = projectRoot
	cmd.Stdin = strings.NewReader("")
	cmd.Env = cleanEnv()

	var stdout, stderr strings.Builder
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err := cmd.Run()

	if err != nil {
		t.Logf("Command failed with error: %v\nStderr:\n%s", err, stderr.String())
	}

	return stdout.String(), stderr.String(), err
}

// cleanEnv drops MODPANEL_* variables so the developer's environment does not
// leak into the tests.
func cleanEnv() []string {
	var env []string
	for _, kv := range os.Environ() {
		if !strings.HasPrefix(kv, "MODPANEL_") {
			env = append(env, kv)
		}
	}
	return env
}

// createTempConfig creates a temporary TOML config file
func createTempConfig(t *testing.T, content string) string {
	t.Helper()
	tempDir := t.TempDir()
	tempFile := filepath.Join(tempDir, "temp_config.toml")
	err := os.WriteFile(tempFile, []byte(content), 0644)
	require.NoError(t, err, "Failed to write temporary config file")
	return tempFile
}

// workspace is one isolated modpanel installation: an empty config file and
// a fresh state directory shared by every command run through it.
type workspace struct {
	config  string
	state   string
	baseURL string
}

func newWorkspace(t *testing.T, baseURL string) *workspace {
	t.Helper()
	return &workspace{
		config:  createTempConfig(t, ""),
		state:   t.TempDir(),
		baseURL: baseURL,
	}
}

// run executes the binary with the workspace's global flags before args.
func (w *workspace) run(t *testing.T, args ...string) (string, string, error) {
	t.Helper()
	full := []string{"--config", w.config, "--state-path", w.state}
	if w.baseURL != "" {
		full = append(full, "--base-url", w.baseURL)
	}
	return runCommand(t, append(full, args...)...)
}

// parseShowConfigOutput parses the JSON output of 'config show'
func parseShowConfigOutput(t *testing.T, output string) models.Config {
	t.Helper()
	var cfg models.Config
	err := json.Unmarshal([]byte(output), &cfg)
	if err != nil {
		t.Logf("Failed to unmarshal JSON output:\n%s", output)
	}
	require.NoError(t, err, "Failed to parse JSON output from config show")
	return cfg
}
