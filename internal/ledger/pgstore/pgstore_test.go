package pgstore

import (
	"context"
	"os"
	"testing"

	"expirywatch/internal/ledger"
	"expirywatch/internal/ledger/ledgertest"
)

func openStore(t *testing.T) *Store {
	t.Helper()
	dsn := os.Getenv("EXPIRYWATCH_TEST_DATABASE_URL")
	if dsn == "" {
		t.Skip("EXPIRYWATCH_TEST_DATABASE_URL not set, skipping integration test")
	}
	ctx := context.Background()
	s, err := New(ctx, dsn)
	if err != nil {
		t.Fatalf("pgstore.New: %v", err)
	}
	if _, err := s.pool.Exec(ctx, `TRUNCATE delivery_outcomes, alert_records`); err != nil {
		t.Fatalf("truncate: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestStore(t *testing.T) {
	ledgertest.Run(t, func(t *testing.T) ledger.Ledger { return openStore(t) })
}
