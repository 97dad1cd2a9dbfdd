package database

import (
	"fmt"
	"strings"
)

const (
	BackendSQLite  = "sqlite"
	BackendBitcask = "bitcask"
)

// OpenStore opens the state store for the configured backend. For sqlite, path
// is the database file; for bitcask it is a directory.
func OpenStore(backend, path string) (Store, error) {
	switch strings.ToLower(strings.TrimSpace(backend)) {
	case "", BackendSQLite:
		return Open(path)
	case BackendBitcask:
		return OpenBitcask(path)
	default:
		return nil, fmt.Errorf("unknown store backend %q (want %s or %s)", backend, BackendSQLite, BackendBitcask)
	}
}
