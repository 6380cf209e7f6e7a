package expiry

import (
	"strings"
	"time"
)

type Priority string

const (
	PriorityLow    Priority = "low"
	PriorityMedium Priority = "medium"
	PriorityHigh   Priority = "high"
)

// ParsePriority normalizes a stored priority, defaulting to medium.
func ParsePriority(s string) Priority {
	switch Priority(strings.ToLower(strings.TrimSpace(s))) {
	case PriorityLow:
		return PriorityLow
	case PriorityHigh:
		return PriorityHigh
	default:
		return PriorityMedium
	}
}

type Status string

const (
	StatusActive   Status = "active"
	StatusResolved Status = "resolved"
	StatusDeleted  Status = "deleted"
)

// DefaultDaysBeforeAlert is used when an item carries no threshold of its own.
const DefaultDaysBeforeAlert = 30

// Item is a read-only snapshot of a tracked item.
//
// ExpiryDate is kept as stored ("2006-01-02"); it is parsed during
// classification so that a bad value only excludes that one item.
type Item struct {
	ID              int64     `json:"id"`
	Title           string    `json:"title"`
	Category        string    `json:"category"`
	ExpiryDate      string    `json:"expiry_date"`
	Source          string    `json:"source"`
	SourceURL       string    `json:"source_url,omitempty"`
	Description     string    `json:"description,omitempty"`
	Priority        Priority  `json:"priority"`
	Status          Status    `json:"status"`
	DaysBeforeAlert int       `json:"days_before_alert"`
	CreatedAt       time.Time `json:"created_at"`
}

// Active reports whether the item should be considered for alerting.
// An empty status is treated as active.
func (it Item) Active() bool {
	return it.Status == "" || it.Status == StatusActive
}

// AlertThreshold returns the item's days-before-alert, falling back to the default.
func (it Item) AlertThreshold() int {
	if it.DaysBeforeAlert > 0 {
		return it.DaysBeforeAlert
	}
	return DefaultDaysBeforeAlert
}
