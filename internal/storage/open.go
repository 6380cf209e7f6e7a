package storage

import (
	"strings"
)

// Normalize returns the canonical driver name.
func Normalize(driver string) string {
	switch d := strings.ToLower(strings.TrimSpace(driver)); d {
	case "", "mem", "memory":
		return "memory"
	case "sqlite", "sqlite3":
		return "sqlite"
	case "postgres", "postgresql", "pg":
		return "postgres"
	default:
		return d
	}
}
