package paths

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestStateFile(t *testing.T) {
	tests := []struct {
		name     string
		dir      string
		file     string
		expected string
		wantErr  bool
	}{
		{
			name:     "plain file",
			dir:      "/var/lib/modpanel",
			file:     "state.db",
			expected: filepath.Join("/var/lib/modpanel", "state.db"),
		},
		{
			name:     "nested file",
			dir:      "state",
			file:     "logs/api.log",
			expected: filepath.Join("state", "logs", "api.log"),
		},
		{
			name:     "inner dots cleaned",
			dir:      "state",
			file:     "logs/../api.log",
			expected: filepath.Join("state", "api.log"),
		},
		{
			name:    "traversal",
			dir:     "state",
			file:    "../escape.db",
			wantErr: true,
		},
		{
			name:    "bare parent",
			dir:     "state",
			file:    "..",
			wantErr: true,
		},
		{
			name:    "absolute",
			dir:     "state",
			file:    "/etc/passwd",
			wantErr: true,
		},
		{
			name:    "empty name",
			dir:     "state",
			file:    "",
			wantErr: true,
		},
		{
			name:    "empty dir",
			dir:     "",
			file:    "state.db",
			wantErr: true,
		},
		{
			name:     "dots inside a name are fine",
			dir:      "state",
			file:     "state..db",
			expected: filepath.Join("state", "state..db"),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := StateFile(tt.dir, tt.file)
			if (err != nil) != tt.wantErr {
				t.Fatalf("StateFile(%q, %q) error = %v, wantErr %v", tt.dir, tt.file, err, tt.wantErr)
			}
			if !tt.wantErr && got != tt.expected {
				t.Errorf("StateFile(%q, %q) = %q, want %q", tt.dir, tt.file, got, tt.expected)
			}
		})
	}
}

func TestStorePath(t *testing.T) {
	got, err := StorePath("s", "sqlite")
	if err != nil || got != filepath.Join("s", SQLiteFile) {
		t.Errorf("sqlite: got %q, %v", got, err)
	}
	got, err = StorePath("s", "")
	if err != nil || got != filepath.Join("s", SQLiteFile) {
		t.Errorf("default: got %q, %v", got, err)
	}
	got, err = StorePath("s", "bitcask")
	if err != nil || got != filepath.Join("s", BitcaskDir) {
		t.Errorf("bitcask: got %q, %v", got, err)
	}
	if _, err := StorePath("s", "redis"); err == nil {
		t.Error("expected error for unknown backend")
	}
}

func TestExpandHome(t *testing.T) {
	home, err := os.UserHomeDir()
	if err != nil {
		t.Skip("no home directory")
	}
	got, err := ExpandHome("~/modpanel")
	if err != nil {
		t.Fatal(err)
	}
	if got != filepath.Join(home, "modpanel") {
		t.Errorf("got %q", got)
	}

	got, _ = ExpandHome("relative/~x")
	if got != "relative/~x" {
		t.Errorf("non-leading tilde changed: %q", got)
	}
}

func TestIndexPath(t *testing.T) {
	got, err := IndexPath("s", "")
	if err != nil || got != filepath.Join("s", IndexDir) {
		t.Errorf("derived: got %q, %v", got, err)
	}
	got, err = IndexPath("s", "/tmp/idx")
	if err != nil || got != "/tmp/idx" {
		t.Errorf("configured: got %q, %v", got, err)
	}
}

func TestDefaultStateDir(t *testing.T) {
	dir := DefaultStateDir()
	if !strings.HasSuffix(dir, "modpanel") {
		t.Errorf("DefaultStateDir() = %q, want a modpanel directory", dir)
	}
}
