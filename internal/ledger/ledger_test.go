package ledger_test

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"expirywatch/internal/channel"
	"expirywatch/internal/expiry"
	"expirywatch/internal/ledger"
	"expirywatch/internal/ledger/ledgertest"
	logx "expirywatch/pkg/logx"
)

func TestMemory(t *testing.T) {
	ledgertest.Run(t, func(t *testing.T) ledger.Ledger {
		l := ledger.NewMemory()
		t.Cleanup(func() { _ = l.Close() })
		return l
	})
}

func TestFile(t *testing.T) {
	ledgertest.Run(t, func(t *testing.T) ledger.Ledger {
		l, err := ledger.OpenFile(filepath.Join(t.TempDir(), "ledger.jsonl"), logx.Nop())
		if err != nil {
			t.Fatalf("OpenFile: %v", err)
		}
		t.Cleanup(func() { _ = l.Close() })
		return l
	})
}

func TestFileReplaysJournal(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "ledger.jsonl")
	k := ledger.Key{ItemID: 5, Tier: expiry.TierUrgent, Day: "2026-10-18"}

	l, err := ledger.OpenFile(path, logx.Nop())
	if err != nil {
		t.Fatalf("OpenFile: %v", err)
	}
	at := time.Date(2026, 10, 18, 8, 0, 0, 0, time.UTC)
	if err := l.Commit(ctx, k, []channel.Outcome{channel.Succeeded("email", at)}); err != nil {
		t.Fatalf("Commit: %v", err)
	}
	_ = l.Close()

	// A torn trailing line must not prevent reopening.
	f, _ := os.OpenFile(path, os.O_APPEND|os.O_WRONLY, 0o600)
	_, _ = f.WriteString(`{"item_id":5,"tier":"urg`)
	_ = f.Close()

	l2, err := ledger.OpenFile(path, logx.Nop())
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	done, err := l2.Succeeded(ctx, k)
	if err != nil || !done["email"] {
		t.Fatalf("replayed state lost: %v %v", done, err)
	}
	if err := l2.Commit(ctx, k, []channel.Outcome{channel.Succeeded("chatbot", at)}); err != nil {
		t.Fatalf("Commit after torn line: %v", err)
	}
	_ = l2.Close()

	l3, err := ledger.OpenFile(path, logx.Nop())
	if err != nil {
		t.Fatalf("reopen #2: %v", err)
	}
	defer l3.Close()
	done, _ = l3.Succeeded(ctx, k)
	if !done["email"] || !done["chatbot"] {
		t.Fatalf("entry after torn line lost: %v", done)
	}
}

func TestMemoryClosed(t *testing.T) {
	l := ledger.NewMemory()
	_ = l.Close()
	if _, err := l.Succeeded(context.Background(), ledger.Key{}); err != ledger.ErrClosed {
		t.Fatalf("err=%v", err)
	}
}

func TestLocksSerializePerKey(t *testing.T) {
	locks := ledger.NewLocks()
	k := ledger.Key{ItemID: 1, Tier: expiry.TierUrgent, Day: "2026-10-18"}

	var inside, maxInside atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			unlock := locks.Lock(k)
			defer unlock()
			n := inside.Add(1)
			if n > maxInside.Load() {
				maxInside.Store(n)
			}
			time.Sleep(2 * time.Millisecond)
			inside.Add(-1)
		}()
	}
	wg.Wait()

	if maxInside.Load() != 1 {
		t.Fatalf("key was held concurrently: %d", maxInside.Load())
	}
	if locks.Len() != 0 {
		t.Fatalf("lock entries leaked: %d", locks.Len())
	}
}

func TestLocksIndependentKeys(t *testing.T) {
	locks := ledger.NewLocks()
	a := ledger.Key{ItemID: 1, Tier: expiry.TierUrgent, Day: "2026-10-18"}
	b := ledger.Key{ItemID: 2, Tier: expiry.TierUrgent, Day: "2026-10-18"}

	unlockA := locks.Lock(a)
	done := make(chan struct{})
	go func() {
		unlock := locks.Lock(b)
		unlock()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatalf("lock on b blocked behind a")
	}
	unlockA()
	unlockA() // second call is a no-op
}
