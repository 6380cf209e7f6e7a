// Package ledgertest is a behavioural suite every ledger store must pass.
package ledgertest

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"expirywatch/internal/channel"
	"expirywatch/internal/expiry"
	"expirywatch/internal/ledger"
)

// Run exercises l. Each store test passes a fresh, empty ledger.
func Run(t *testing.T, open func(t *testing.T) ledger.Ledger) {
	t.Helper()
	t.Run("EmptyKey", func(t *testing.T) { testEmptyKey(t, open(t)) })
	t.Run("SucceededIsTerminal", func(t *testing.T) { testSucceeded(t, open(t)) })
	t.Run("KeysAreIndependent", func(t *testing.T) { testKeys(t, open(t)) })
	t.Run("Filter", func(t *testing.T) { testFilter(t, open(t)) })
	t.Run("ConcurrentCommits", func(t *testing.T) { testConcurrent(t, open(t)) })
}

var at = time.Date(2026, 10, 18, 8, 0, 0, 0, time.UTC)

func key(item int64, tier expiry.Tier, day string) ledger.Key {
	return ledger.Key{ItemID: item, Tier: tier, Day: day}
}

func testEmptyKey(t *testing.T, l ledger.Ledger) {
	ctx := context.Background()
	done, err := l.Succeeded(ctx, key(1, expiry.TierUrgent, "2026-10-18"))
	if err != nil {
		t.Fatalf("Succeeded: %v", err)
	}
	if len(done) != 0 {
		t.Fatalf("expected nothing delivered, got %v", done)
	}
	hist, err := l.History(ctx, 1)
	if err != nil || len(hist) != 0 {
		t.Fatalf("History=%v err=%v", hist, err)
	}
}

func testSucceeded(t *testing.T, l ledger.Ledger) {
	ctx := context.Background()
	k := key(7, expiry.TierUrgent, "2026-10-18")

	err := l.Commit(ctx, k, []channel.Outcome{
		channel.Succeeded("email", at),
		{Channel: "chatbot", ErrorKind: channel.KindStatus, Error: "HTTP 502", At: at},
	})
	if err != nil {
		t.Fatalf("Commit #1: %v", err)
	}
	done, err := l.Succeeded(ctx, k)
	if err != nil {
		t.Fatalf("Succeeded: %v", err)
	}
	if !done["email"] || done["chatbot"] || len(done) != 1 {
		t.Fatalf("after cycle 1: %v", done)
	}

	if err := l.Commit(ctx, k, []channel.Outcome{channel.Succeeded("chatbot", at.Add(time.Hour))}); err != nil {
		t.Fatalf("Commit #2: %v", err)
	}
	done, _ = l.Succeeded(ctx, k)
	if !done["email"] || !done["chatbot"] {
		t.Fatalf("after cycle 2: %v", done)
	}

	hist, err := l.History(ctx, 7)
	if err != nil {
		t.Fatalf("History: %v", err)
	}
	if len(hist) != 1 {
		t.Fatalf("expected one record per key, got %d", len(hist))
	}
	rec := hist[0]
	if rec.Key != k {
		t.Fatalf("record key=%v want %v", rec.Key, k)
	}
	if len(rec.Outcomes) != 3 {
		t.Fatalf("expected 3 appended outcomes, got %+v", rec.Outcomes)
	}
	want := []struct {
		ch string
		ok bool
	}{{"email", true}, {"chatbot", false}, {"chatbot", true}}
	for i, w := range want {
		o := rec.Outcomes[i]
		if o.Channel != w.ch || o.Succeeded != w.ok {
			t.Fatalf("outcome %d = %+v, want %s/%v", i, o, w.ch, w.ok)
		}
	}
	if rec.Outcomes[1].ErrorKind != channel.KindStatus || rec.Outcomes[1].Error != "HTTP 502" {
		t.Fatalf("failure details lost: %+v", rec.Outcomes[1])
	}
	if !rec.Outcomes[0].At.Equal(at) {
		t.Fatalf("timestamp=%v want %v", rec.Outcomes[0].At, at)
	}
}

func testKeys(t *testing.T, l ledger.Ledger) {
	ctx := context.Background()
	commits := []ledger.Key{
		key(3, expiry.TierPlanned, "2026-10-11"),
		key(3, expiry.TierUrgent, "2026-10-18"),
		key(3, expiry.TierPlanned, "2026-10-18"),
		key(4, expiry.TierUrgent, "2026-10-18"),
	}
	for _, k := range commits {
		if err := l.Commit(ctx, k, []channel.Outcome{channel.Succeeded("email", at)}); err != nil {
			t.Fatalf("Commit %v: %v", k, err)
		}
	}

	done, _ := l.Succeeded(ctx, key(3, expiry.TierCritical, "2026-10-18"))
	if len(done) != 0 {
		t.Fatalf("other tier must not be affected: %v", done)
	}

	hist, err := l.History(ctx, 3)
	if err != nil {
		t.Fatalf("History: %v", err)
	}
	if len(hist) != 3 {
		t.Fatalf("expected 3 records for item 3, got %d", len(hist))
	}
	order := []ledger.Key{commits[0], commits[1], commits[2]}
	for i, k := range order {
		if hist[i].Key != k {
			t.Fatalf("record %d = %v want %v", i, hist[i].Key, k)
		}
	}
}

func testFilter(t *testing.T, l ledger.Ledger) {
	ctx := context.Background()
	k := key(9, expiry.TierCritical, "2026-10-18")
	_ = l.Commit(ctx, k, []channel.Outcome{
		channel.Succeeded("email", at),
		{Channel: "telegram", ErrorKind: channel.KindTimeout, At: at},
	})

	attempt, skip, err := ledger.Filter(ctx, l, k, []string{"email", "telegram", "chatbot"})
	if err != nil {
		t.Fatalf("Filter: %v", err)
	}
	if fmt.Sprint(attempt) != "[telegram chatbot]" || fmt.Sprint(skip) != "[email]" {
		t.Fatalf("attempt=%v skip=%v", attempt, skip)
	}
}

func testConcurrent(t *testing.T, l ledger.Ledger) {
	ctx := context.Background()
	k := key(11, expiry.TierUrgent, "2026-10-18")

	const n = 16
	var wg sync.WaitGroup
	errs := make(chan error, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			errs <- l.Commit(ctx, k, []channel.Outcome{channel.Succeeded(fmt.Sprintf("ch%02d", i), at)})
		}(i)
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		if err != nil {
			t.Fatalf("Commit: %v", err)
		}
	}

	done, err := l.Succeeded(ctx, k)
	if err != nil {
		t.Fatalf("Succeeded: %v", err)
	}
	if len(done) != n {
		t.Fatalf("expected %d channels, got %d", n, len(done))
	}
	hist, _ := l.History(ctx, 11)
	if len(hist) != 1 || len(hist[0].Outcomes) != n {
		t.Fatalf("expected a single record with %d outcomes, got %+v", n, hist)
	}
}
