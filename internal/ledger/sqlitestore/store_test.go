package sqlitestore

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"expirywatch/internal/channel"
	"expirywatch/internal/expiry"
	"expirywatch/internal/ledger"
	"expirywatch/internal/ledger/ledgertest"
	logx "expirywatch/pkg/logx"
)

func open(t *testing.T) *Store {
	t.Helper()
	s, err := Open(context.Background(), filepath.Join(t.TempDir(), "ledger.db"), 0, logx.Nop())
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestStore(t *testing.T) {
	ledgertest.Run(t, func(t *testing.T) ledger.Ledger { return open(t) })
}

func TestStoreSurvivesReopen(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "ledger.db")
	k := ledger.Key{ItemID: 1, Tier: expiry.TierCritical, Day: "2026-10-18"}

	s, err := Open(ctx, path, 0, logx.Nop())
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if err := s.Commit(ctx, k, []channel.Outcome{channel.Succeeded("telegram", time.Now())}); err != nil {
		t.Fatalf("Commit: %v", err)
	}
	_ = s.Close()

	s2, err := Open(ctx, path, 0, logx.Nop())
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer s2.Close()
	done, err := s2.Succeeded(ctx, k)
	if err != nil || !done["telegram"] {
		t.Fatalf("done=%v err=%v", done, err)
	}
}

func TestCommitWithoutOutcomesCreatesRecord(t *testing.T) {
	ctx := context.Background()
	s := open(t)
	k := ledger.Key{ItemID: 2, Tier: expiry.TierPlanned, Day: "2026-10-18"}
	if err := s.Commit(ctx, k, nil); err != nil {
		t.Fatalf("Commit: %v", err)
	}
	hist, err := s.History(ctx, 2)
	if err != nil {
		t.Fatalf("History: %v", err)
	}
	if len(hist) != 1 || len(hist[0].Outcomes) != 0 {
		t.Fatalf("hist=%+v", hist)
	}
}
