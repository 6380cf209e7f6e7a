// Package ledger records delivery outcomes per (item, tier, day) so that
// re-dispatch never re-sends to a channel that already succeeded.
//
// The ledger is append-only: records are created once per key and
// outcomes are appended; nothing is updated or deleted. Per channel the
// state machine is NotAttempted -> Succeeded | Failed, Failed may later
// become Succeeded, and Succeeded is terminal.
package ledger

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"expirywatch/internal/channel"
	"expirywatch/internal/expiry"
)

var ErrClosed = errors.New("ledger: closed")

// Key identifies one alert: an item at a tier on a calendar day.
type Key struct {
	ItemID int64       `json:"item_id"`
	Tier   expiry.Tier `json:"tier"`
	Day    string      `json:"day"`
}

func (k Key) String() string { return fmt.Sprintf("%d/%s/%s", k.ItemID, k.Tier, k.Day) }

// Record is the ledger entry for one key with its outcomes in append order.
type Record struct {
	Key
	CreatedAt time.Time         `json:"created_at"`
	Outcomes  []channel.Outcome `json:"outcomes"`
}

// Succeeded returns the channels that have a successful outcome.
func (r Record) Succeeded() map[string]bool {
	out := map[string]bool{}
	for _, o := range r.Outcomes {
		if o.Succeeded {
			out[o.Channel] = true
		}
	}
	return out
}

// Ledger is the only mutable state owned by the alert engine.
type Ledger interface {
	// Succeeded returns the channels already delivered for key.
	Succeeded(ctx context.Context, key Key) (map[string]bool, error)
	// Commit appends outcomes for key, creating its record on first use.
	Commit(ctx context.Context, key Key, outcomes []channel.Outcome) error
	// History returns every record of an item ordered by day then tier.
	History(ctx context.Context, itemID int64) ([]Record, error)
	Close() error
}

// Filter splits channels into those still to attempt and those to skip
// because they already succeeded for key.
func Filter(ctx context.Context, l Ledger, key Key, channels []string) (attempt, skip []string, err error) {
	done, err := l.Succeeded(ctx, key)
	if err != nil {
		return nil, nil, err
	}
	for _, c := range channels {
		if done[c] {
			skip = append(skip, c)
			continue
		}
		attempt = append(attempt, c)
	}
	return attempt, skip, nil
}

func sortRecords(rs []Record) {
	sort.SliceStable(rs, func(i, j int) bool {
		if rs[i].Day != rs[j].Day {
			return rs[i].Day < rs[j].Day
		}
		return rs[i].Tier < rs[j].Tier
	})
}

// SortRecords orders records by day then tier, as History returns them.
func SortRecords(rs []Record) { sortRecords(rs) }
