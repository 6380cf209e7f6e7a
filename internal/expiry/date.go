package expiry

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// DateLayout is the storage format of expiry dates and ledger days.
const DateLayout = "2006-01-02"

// ErrInvalidDate is matched by every InvalidDateError.
var ErrInvalidDate = errors.New("expiry: invalid date")

// DataError marks an item whose data cannot be processed this cycle.
// The item is skipped and reported; the batch continues.
type DataError struct {
	ItemID int64
	Field  string
	Err    error
}

func (e *DataError) Error() string {
	return fmt.Sprintf("item %d: bad %s: %v", e.ItemID, e.Field, e.Err)
}

func (e *DataError) Unwrap() error { return e.Err }

// InvalidDateError is the DataError form produced for unparsable expiry dates.
type InvalidDateError struct {
	Value string
}

func (e *InvalidDateError) Error() string {
	if strings.TrimSpace(e.Value) == "" {
		return "expiry date is missing"
	}
	return fmt.Sprintf("expiry date %q is not a calendar date", e.Value)
}

func (e *InvalidDateError) Is(target error) bool { return target == ErrInvalidDate }

// ParseDate parses a calendar date. Datetime values stored by older writers
// ("2006-01-02 15:04:05", RFC 3339) are accepted and truncated to their date.
func ParseDate(raw string) (time.Time, error) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return time.Time{}, &InvalidDateError{Value: raw}
	}
	if len(s) > len(DateLayout) && (s[len(DateLayout)] == ' ' || s[len(DateLayout)] == 'T') {
		s = s[:len(DateLayout)]
	}
	d, err := time.Parse(DateLayout, s)
	if err != nil {
		return time.Time{}, &InvalidDateError{Value: raw}
	}
	return d, nil
}

// Day truncates t to its calendar day in loc, returned as a UTC midnight so
// that day values compare and subtract exactly.
func Day(t time.Time, loc *time.Location) time.Time {
	if loc != nil {
		t = t.In(loc)
	}
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// DayString formats the calendar day of t in loc.
func DayString(t time.Time, loc *time.Location) string {
	return Day(t, loc).Format(DateLayout)
}

// DaysBetween returns the signed number of calendar days from `from` to `to`.
// Both must be day values (UTC midnight), as returned by Day and ParseDate.
func DaysBetween(from, to time.Time) int {
	return int(to.Sub(from).Hours() / 24)
}

// DaysLeft computes days remaining until the item's expiry, as seen from the
// calendar day of now in loc. Negative values mean the item already expired.
func DaysLeft(it Item, now time.Time, loc *time.Location) (int, error) {
	exp, err := ParseDate(it.ExpiryDate)
	if err != nil {
		return 0, &DataError{ItemID: it.ID, Field: "expiry_date", Err: err}
	}
	return DaysBetween(Day(now, loc), exp), nil
}
