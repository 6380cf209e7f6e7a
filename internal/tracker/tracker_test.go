package tracker

import (
	"context"
	"path/filepath"
	"sort"
	"testing"
	"time"

	"expirywatch/internal/expiry"
	"expirywatch/internal/storage"
	logx "expirywatch/pkg/logx"
)

var now = time.Date(2026, 10, 18, 9, 30, 0, 0, time.UTC)

func fixture() []expiry.Item {
	return []expiry.Item{
		{ID: 1, Title: "Passport", Category: "documents", ExpiryDate: "2026-10-23", Source: "manual", Status: expiry.StatusActive},
		{ID: 2, Title: "Domain", Category: "domains", ExpiryDate: "2026-11-10", Source: "registrar", Status: expiry.StatusActive},
		{ID: 3, Title: "Cert", Category: "certificates", ExpiryDate: "2026-10-10", Source: "scan", Status: expiry.StatusActive},
		{ID: 4, Title: "Far away", Category: "documents", ExpiryDate: "2027-06-01", Source: "manual", Status: expiry.StatusActive},
		{ID: 5, Title: "Resolved", Category: "documents", ExpiryDate: "2026-10-19", Source: "manual", Status: expiry.StatusResolved},
		{ID: 6, Title: "Broken", Category: "misc", ExpiryDate: "soon", Source: "import", Status: expiry.StatusActive},
		{ID: 7, Title: "Deleted", Category: "misc", ExpiryDate: "2026-10-20", Source: "manual", Status: expiry.StatusDeleted},
	}
}

func ids(items []expiry.Item) []int64 {
	out := make([]int64, 0, len(items))
	for _, it := range items {
		out = append(out, it.ID)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

func equalIDs(a, b []int64) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

type store interface {
	Store
	StatsSource
}

func checkStore(t *testing.T, s store) {
	t.Helper()
	ctx := context.Background()

	up, err := s.GetUpcoming(ctx, 30)
	if err != nil {
		t.Fatalf("GetUpcoming: %v", err)
	}
	if got, want := ids(up), []int64{1, 2, 3, 6}; !equalIDs(got, want) {
		t.Fatalf("upcoming=%v want %v", got, want)
	}

	over, err := s.GetOverdue(ctx)
	if err != nil {
		t.Fatalf("GetOverdue: %v", err)
	}
	if got, want := ids(over), []int64{3}; !equalIDs(got, want) {
		t.Fatalf("overdue=%v want %v", got, want)
	}

	st, err := s.Statistics(ctx)
	if err != nil {
		t.Fatalf("Statistics: %v", err)
	}
	if st.Total != 6 || st.Active != 5 || st.ExpiringSoon != 1 || st.Overdue != 1 {
		t.Fatalf("stats=%+v", st)
	}
	if st.ByCategory["documents"] != 2 || st.ByCategory["misc"] != 1 {
		t.Fatalf("by category=%v", st.ByCategory)
	}
}

func TestStatic(t *testing.T) {
	s := NewStatic(fixture(), time.UTC)
	s.now = func() time.Time { return now }
	checkStore(t, s)
}

func TestSQLite(t *testing.T) {
	ctx := context.Background()
	db, err := storage.OpenSQLite(ctx, filepath.Join(t.TempDir(), "tracker.db"), 0, logx.Nop())
	if err != nil {
		t.Fatalf("OpenSQLite: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })

	s := NewSQLite(db, time.UTC)
	s.now = func() time.Time { return now }
	if err := s.EnsureSchema(ctx); err != nil {
		t.Fatalf("EnsureSchema: %v", err)
	}
	for _, it := range fixture() {
		if _, err := s.Add(ctx, it); err != nil {
			t.Fatalf("Add %d: %v", it.ID, err)
		}
	}
	checkStore(t, s)

	up, _ := s.GetUpcoming(ctx, 30)
	for _, it := range up {
		if it.ID == 1 {
			if it.ExpiryDate != "2026-10-23" || it.Priority != expiry.PriorityMedium || it.DaysBeforeAlert != 30 {
				t.Fatalf("row not mapped: %+v", it)
			}
			if it.CreatedAt.IsZero() {
				t.Fatalf("created_at not parsed")
			}
		}
	}
}

func TestMergeDeduplicates(t *testing.T) {
	a := []expiry.Item{{ID: 1}, {ID: 2}}
	b := []expiry.Item{{ID: 2}, {ID: 3}}
	if got := ids(Merge(a, b)); !equalIDs(got, []int64{1, 2, 3}) {
		t.Fatalf("merge=%v", got)
	}
}
