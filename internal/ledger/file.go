package ledger

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"expirywatch/internal/channel"
	"expirywatch/internal/expiry"
	logx "expirywatch/pkg/logx"
)

// File is a dependency-free ledger backed by an append-only JSON Lines
// journal. The journal is replayed into memory on open; it is never
// rewritten.
type File struct {
	log logx.Logger

	mu      sync.Mutex
	journal *os.File
	mem     *Memory
}

var _ Ledger = (*File)(nil)

type journalEntry struct {
	ItemID    int64             `json:"item_id"`
	Tier      string            `json:"tier"`
	Day       string            `json:"day"`
	CreatedAt time.Time         `json:"created_at"`
	Outcomes  []channel.Outcome `json:"outcomes"`
}

// OpenFile opens or creates the journal at path.
func OpenFile(path string, log logx.Logger) (*File, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return nil, errors.New("ledger: path is required for file driver")
	}
	if log.IsZero() {
		log = logx.Nop()
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}

	mem := NewMemory()
	skipped, err := replay(path, mem)
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, err
	}
	if skipped > 0 {
		log.Warn("ledger journal has unreadable lines", logx.String("path", path), logx.Int("skipped", skipped))
	}

	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o600)
	if err != nil {
		return nil, err
	}
	if err := terminate(path, f); err != nil {
		_ = f.Close()
		return nil, err
	}
	return &File{log: log, journal: f, mem: mem}, nil
}

// terminate appends a newline when the journal ends in a torn line so the
// next entry starts on its own line.
func terminate(path string, f *os.File) error {
	r, err := os.Open(path)
	if err != nil {
		return err
	}
	defer r.Close()
	st, err := r.Stat()
	if err != nil || st.Size() == 0 {
		return err
	}
	last := make([]byte, 1)
	if _, err := r.ReadAt(last, st.Size()-1); err != nil {
		return err
	}
	if last[0] == '\n' {
		return nil
	}
	_, err = f.WriteString("\n")
	return err
}

func replay(path string, mem *Memory) (int, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, err
	}
	defer f.Close()

	skipped := 0
	s := bufio.NewScanner(f)
	s.Buffer(make([]byte, 64<<10), 4<<20)
	for s.Scan() {
		var e journalEntry
		if err := json.Unmarshal(s.Bytes(), &e); err != nil {
			skipped++
			continue
		}
		k, err := entryKey(e)
		if err != nil {
			skipped++
			continue
		}
		mem.now = func() time.Time { return e.CreatedAt }
		_ = mem.Commit(context.Background(), k, e.Outcomes)
	}
	mem.now = time.Now
	return skipped, s.Err()
}

func (f *File) Succeeded(ctx context.Context, key Key) (map[string]bool, error) {
	return f.mem.Succeeded(ctx, key)
}

func (f *File) Commit(ctx context.Context, key Key, outcomes []channel.Outcome) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.journal == nil {
		return ErrClosed
	}
	if err := json.NewEncoder(f.journal).Encode(journalEntry{
		ItemID:    key.ItemID,
		Tier:      key.Tier.String(),
		Day:       key.Day,
		CreatedAt: time.Now().UTC(),
		Outcomes:  outcomes,
	}); err != nil {
		return err
	}
	return f.mem.Commit(ctx, key, outcomes)
}

func (f *File) History(ctx context.Context, itemID int64) ([]Record, error) {
	return f.mem.History(ctx, itemID)
}

func (f *File) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	_ = f.mem.Close()
	if f.journal == nil {
		return nil
	}
	err := f.journal.Close()
	f.journal = nil
	return err
}

func entryKey(e journalEntry) (Key, error) {
	tier, err := expiry.ParseTier(e.Tier)
	if err != nil {
		return Key{}, err
	}
	return Key{ItemID: e.ItemID, Tier: tier, Day: e.Day}, nil
}
