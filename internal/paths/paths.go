// Package paths resolves where modpanel keeps its local state.
package paths

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// Names of the files kept in the state directory.
const (
	SQLiteFile    = "state.db"
	BitcaskDir    = "state.bitcask"
	IndexDir      = "logs.bleve"
	APILogFile    = "api.log"
	AppLogFile    = "modpanel.log"
	appDirName    = "modpanel"
	fallbackState = ".modpanel"
)

// DefaultStateDir is the per-user config directory for modpanel, or
// ./.modpanel when the platform has none.
func DefaultStateDir() string {
	dir, err := os.UserConfigDir()
	if err != nil || dir == "" {
		return fallbackState
	}
	return filepath.Join(dir, appDirName)
}

// ExpandHome replaces a leading "~" with the user's home directory.
func ExpandHome(p string) (string, error) {
	if p != "~" && !strings.HasPrefix(p, "~/") {
		return p, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("cannot expand %q: %w", p, err)
	}
	return filepath.Join(home, strings.TrimPrefix(p, "~")), nil
}

// StateFile joins name onto stateDir. name must stay inside stateDir.
func StateFile(stateDir, name string) (string, error) {
	if stateDir == "" {
		return "", fmt.Errorf("state directory is empty")
	}
	cleaned := filepath.Clean(name)
	if cleaned == "." || cleaned == "" {
		return "", fmt.Errorf("invalid state file name: '%s'", name)
	}
	if filepath.IsAbs(cleaned) {
		return "", fmt.Errorf("state file name must be relative: %s", name)
	}

	// Security check: Prevent path traversal
	if cleaned == ".." || strings.HasPrefix(cleaned, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("state file name contains invalid sequence '..': %s", name)
	}
	return filepath.Join(stateDir, cleaned), nil
}

// StorePath returns the location of the key-value store for the backend:
// a file for sqlite, a directory for bitcask.
func StorePath(stateDir, backend string) (string, error) {
	switch backend {
	case "", "sqlite":
		return StateFile(stateDir, SQLiteFile)
	case "bitcask":
		return StateFile(stateDir, BitcaskDir)
	}
	return "", fmt.Errorf("unknown store backend %q", backend)
}

// IndexPath returns the log archive location: configured if set, otherwise
// inside the state directory.
func IndexPath(stateDir, configured string) (string, error) {
	if configured != "" {
		return ExpandHome(configured)
	}
	return StateFile(stateDir, IndexDir)
}
