package ledger

import (
	"context"
	"sync"
	"time"

	"expirywatch/internal/channel"
)

// Memory is an in-process ledger. It is safe for concurrent use and
// returns copies, never internal slices.
type Memory struct {
	mu      sync.RWMutex
	records map[Key]*Record
	closed  bool
	now     func() time.Time
}

var _ Ledger = (*Memory)(nil)

func NewMemory() *Memory {
	return &Memory{records: map[Key]*Record{}, now: time.Now}
}

func (m *Memory) Succeeded(_ context.Context, key Key) (map[string]bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.closed {
		return nil, ErrClosed
	}
	r, ok := m.records[key]
	if !ok {
		return map[string]bool{}, nil
	}
	return r.Succeeded(), nil
}

func (m *Memory) Commit(_ context.Context, key Key, outcomes []channel.Outcome) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return ErrClosed
	}
	r, ok := m.records[key]
	if !ok {
		r = &Record{Key: key, CreatedAt: m.now()}
		m.records[key] = r
	}
	r.Outcomes = append(r.Outcomes, outcomes...)
	return nil
}

func (m *Memory) History(_ context.Context, itemID int64) ([]Record, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.closed {
		return nil, ErrClosed
	}
	var out []Record
	for k, r := range m.records {
		if k.ItemID != itemID {
			continue
		}
		cp := *r
		cp.Outcomes = append([]channel.Outcome(nil), r.Outcomes...)
		out = append(out, cp)
	}
	sortRecords(out)
	return out, nil
}

func (m *Memory) Close() error {
	m.mu.Lock()
	m.closed = true
	m.mu.Unlock()
	return nil
}
