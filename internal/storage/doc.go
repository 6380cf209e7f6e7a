// Package storage opens the SQLite database shared by the ledger and the
// tracker store and applies the ledger migrations.
//
// SQLite prefers a single writer, so the pool is capped at one connection;
// callers get serialized access for free.
package storage
