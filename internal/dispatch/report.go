package dispatch

import (
	"time"

	"expirywatch/internal/channel"
)

// Item statuses in a BatchReport.
const (
	StatusDispatched = "dispatched"
	StatusUpToDate   = "up_to_date"
	StatusSuppressed = "suppressed"
	StatusError      = "error"
)

// Error kinds visible in a BatchReport.
const (
	ErrorKindData   = "data"
	ErrorKindLedger = "ledger"
)

// ItemResult is the per-item line of a BatchReport.
type ItemResult struct {
	ItemID    int64             `json:"item_id"`
	Title     string            `json:"title"`
	Status    string            `json:"status"`
	Tier      string            `json:"tier,omitempty"`
	Score     float64           `json:"score"`
	DaysLeft  *int              `json:"days_left,omitempty"`
	Outcomes  []channel.Outcome `json:"outcomes,omitempty"`
	Skipped   []string          `json:"skipped,omitempty"`
	ErrorKind string            `json:"error_kind,omitempty"`
	Error     string            `json:"error,omitempty"`
}

// Counts aggregates a BatchReport.
type Counts struct {
	Items        int `json:"items"`
	Dispatched   int `json:"dispatched"`
	Suppressed   int `json:"suppressed"`
	DataErrors   int `json:"data_errors"`
	LedgerErrors int `json:"ledger_errors"`
	Delivered    int `json:"delivered"`
	Failed       int `json:"failed"`
}

// BatchReport describes one dispatch cycle. Items are in completion order.
type BatchReport struct {
	CycleID    string       `json:"cycle_id"`
	StartedAt  time.Time    `json:"started_at"`
	FinishedAt time.Time    `json:"finished_at"`
	Day        string       `json:"day"`
	Items      []ItemResult `json:"items"`
	Counts     Counts       `json:"counts"`
}

func (b *BatchReport) add(r ItemResult) {
	b.Items = append(b.Items, r)
	b.Counts.Items++
	switch r.Status {
	case StatusDispatched, StatusUpToDate:
		b.Counts.Dispatched++
	case StatusSuppressed:
		b.Counts.Suppressed++
	}
	switch r.ErrorKind {
	case ErrorKindData:
		b.Counts.DataErrors++
	case ErrorKindLedger:
		b.Counts.LedgerErrors++
	}
	for _, o := range r.Outcomes {
		if o.Succeeded {
			b.Counts.Delivered++
		} else {
			b.Counts.Failed++
		}
	}
}

// Item returns the result for id, if present.
func (b BatchReport) Item(id int64) (ItemResult, bool) {
	for _, r := range b.Items {
		if r.ItemID == id {
			return r, true
		}
	}
	return ItemResult{}, false
}
