// Package tracker reads tracked items. The alert engine only ever reads;
// items are written by whatever manages the tracker database.
package tracker

import (
	"context"
	"sort"
	"time"

	"expirywatch/internal/expiry"
)

// Store is the read side of the item tracker.
type Store interface {
	// GetUpcoming returns active items expiring within windowDays of today,
	// including already expired ones and ones whose expiry date is unreadable.
	GetUpcoming(ctx context.Context, windowDays int) ([]expiry.Item, error)
	// GetOverdue returns active items whose expiry date is before today.
	GetOverdue(ctx context.Context) ([]expiry.Item, error)
}

// StatsSource is implemented by stores that can summarize their contents.
type StatsSource interface {
	Statistics(ctx context.Context) (Stats, error)
}

// Stats summarizes the tracker.
type Stats struct {
	Total        int            `json:"total"`
	Active       int            `json:"active"`
	ExpiringSoon int            `json:"expiring_soon"`
	Overdue      int            `json:"overdue"`
	ByCategory   map[string]int `json:"by_category"`
}

// ExpiringSoonDays bounds the ExpiringSoon statistic.
const ExpiringSoonDays = expiry.UrgentWithinDays

// Merge concatenates item lists, keeping the first occurrence of each id.
func Merge(lists ...[]expiry.Item) []expiry.Item {
	seen := map[int64]bool{}
	var out []expiry.Item
	for _, l := range lists {
		for _, it := range l {
			if seen[it.ID] {
				continue
			}
			seen[it.ID] = true
			out = append(out, it)
		}
	}
	return out
}

// Static is an in-memory Store over a fixed item list.
type Static struct {
	items []expiry.Item
	loc   *time.Location
	now   func() time.Time
}

var (
	_ Store       = (*Static)(nil)
	_ StatsSource = (*Static)(nil)
)

func NewStatic(items []expiry.Item, loc *time.Location) *Static {
	if loc == nil {
		loc = time.UTC
	}
	return &Static{items: append([]expiry.Item(nil), items...), loc: loc, now: time.Now}
}

func (s *Static) GetUpcoming(_ context.Context, windowDays int) ([]expiry.Item, error) {
	now := s.now()
	var out []expiry.Item
	for _, it := range s.items {
		if !it.Active() {
			continue
		}
		days, err := expiry.DaysLeft(it, now, s.loc)
		if err != nil || days <= windowDays {
			out = append(out, it)
		}
	}
	sortByExpiry(out)
	return out, nil
}

func (s *Static) GetOverdue(_ context.Context) ([]expiry.Item, error) {
	now := s.now()
	var out []expiry.Item
	for _, it := range s.items {
		if !it.Active() {
			continue
		}
		if days, err := expiry.DaysLeft(it, now, s.loc); err == nil && days < 0 {
			out = append(out, it)
		}
	}
	sortByExpiry(out)
	return out, nil
}

func (s *Static) Statistics(_ context.Context) (Stats, error) {
	now := s.now()
	st := Stats{ByCategory: map[string]int{}}
	for _, it := range s.items {
		if it.Status == expiry.StatusDeleted {
			continue
		}
		st.Total++
		if !it.Active() {
			continue
		}
		st.Active++
		st.ByCategory[it.Category]++
		days, err := expiry.DaysLeft(it, now, s.loc)
		if err != nil {
			continue
		}
		switch {
		case days < 0:
			st.Overdue++
		case days <= ExpiringSoonDays:
			st.ExpiringSoon++
		}
	}
	return st, nil
}

func sortByExpiry(items []expiry.Item) {
	sort.SliceStable(items, func(i, j int) bool { return items[i].ExpiryDate < items[j].ExpiryDate })
}
