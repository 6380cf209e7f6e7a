package storage

import "time"

// Config configures storage.
//
// Driver values:
//   - "memory": in-process ledger, lost on restart
//   - "file": append-only JSON Lines ledger journal
//   - "sqlite": SQLite database file
//   - "postgres": PostgreSQL via DSN
//
// If Driver is empty, "memory" is used.
type Config struct {
	Driver      string
	Path        string
	DSN         string
	BusyTimeout time.Duration // sqlite only; 0 means default
}
