package dispatch

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"expirywatch/internal/channel"
	"expirywatch/internal/compose"
	"expirywatch/internal/expiry"
	"expirywatch/internal/ledger"
	"expirywatch/internal/urgency"
)

type fakeChannel struct {
	name  string
	err   error
	check error
	delay time.Duration
	// block, when set, makes Deliver wait on it and ignore ctx.
	block chan struct{}

	calls atomic.Int32

	mu   sync.Mutex
	last []compose.Alert
}

func (f *fakeChannel) Name() string { return f.name }

func (f *fakeChannel) Deliver(_ context.Context, _ string, a compose.Alert) error {
	f.calls.Add(1)
	f.mu.Lock()
	f.last = append(f.last, a)
	err := f.err
	f.mu.Unlock()
	if f.block != nil {
		<-f.block
	}
	if f.delay > 0 {
		time.Sleep(f.delay)
	}
	return err
}

func (f *fakeChannel) setErr(err error) {
	f.mu.Lock()
	f.err = err
	f.mu.Unlock()
}

func (f *fakeChannel) alerts() []compose.Alert {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]compose.Alert(nil), f.last...)
}

type checkedChannel struct {
	*fakeChannel
}

func (c checkedChannel) Check() error { return c.check }

type failingLedger struct {
	ledger.Ledger
	readErr error
}

func (f failingLedger) Succeeded(ctx context.Context, k ledger.Key) (map[string]bool, error) {
	if f.readErr != nil {
		return nil, f.readErr
	}
	return f.Ledger.Succeeded(ctx, k)
}

var errBoom = errors.New("boom")

func statusErr(name string) error { return channel.StatusError(name, 502, "bad gateway") }

func testTarget(c channel.Channel) Target {
	return Target{Channel: c, Recipient: "ops@example.com", Timeout: time.Second}
}

func testAlert(id int64, days int) (ledger.Key, compose.Alert) {
	now := time.Date(2026, 10, 18, 8, 0, 0, 0, time.UTC)
	it := expiry.Item{
		ID:         id,
		Title:      "Passport",
		Category:   "documents",
		ExpiryDate: now.AddDate(0, 0, days).Format(expiry.DateLayout),
		Priority:   expiry.PriorityHigh,
		Status:     expiry.StatusActive,
	}
	a, err := urgency.Classify(it, now, time.UTC, urgency.Absent)
	if err != nil {
		panic(err)
	}
	return ledger.Key{ItemID: id, Tier: a.Tier, Day: "2026-10-18"}, compose.Compose(it, a)
}

func outcomeMap(os []channel.Outcome) map[string]channel.Outcome {
	m := make(map[string]channel.Outcome, len(os))
	for _, o := range os {
		m[o.Channel] = o
	}
	return m
}
