package tracker

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	sq "github.com/Masterminds/squirrel"

	"expirywatch/internal/expiry"
)

const itemsTable = "expiry_items"

// isoDate matches values that compare correctly as dates.
const isoDate = "[0-9][0-9][0-9][0-9]-[0-9][0-9]-[0-9][0-9]*"

var itemColumns = []string{
	"id", "title", "category", "CAST(expiry_date AS TEXT)", "source",
	"COALESCE(source_url, '')", "COALESCE(description, '')",
	"COALESCE(status, 'active')", "COALESCE(priority, 'medium')",
	"COALESCE(days_before_alert, 30)", "COALESCE(created_at, '')",
}

const schema = `CREATE TABLE IF NOT EXISTS expiry_items (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    title TEXT NOT NULL,
    category TEXT NOT NULL,
    expiry_date DATE NOT NULL,
    source TEXT NOT NULL,
    source_url TEXT,
    description TEXT,
    status TEXT DEFAULT 'active',
    priority TEXT DEFAULT 'medium',
    created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
    updated_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
    metadata TEXT,
    days_before_alert INTEGER DEFAULT 30
)`

// SQLite reads items from the tracker's expiry_items table.
type SQLite struct {
	db  *sql.DB
	loc *time.Location
	now func() time.Time
}

var (
	_ Store       = (*SQLite)(nil)
	_ StatsSource = (*SQLite)(nil)
)

// NewSQLite wraps db. Dates are compared in loc.
func NewSQLite(db *sql.DB, loc *time.Location) *SQLite {
	if loc == nil {
		loc = time.UTC
	}
	return &SQLite{db: db, loc: loc, now: time.Now}
}

// EnsureSchema creates the items table when it does not exist.
func (s *SQLite) EnsureSchema(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, schema)
	return err
}

// Add inserts an item and returns its id. The engine never calls it; it
// exists for seeding and tests.
func (s *SQLite) Add(ctx context.Context, it expiry.Item) (int64, error) {
	if it.Status == "" {
		it.Status = expiry.StatusActive
	}
	if it.Priority == "" {
		it.Priority = expiry.PriorityMedium
	}
	cols := []string{"title", "category", "expiry_date", "source", "source_url", "description", "status", "priority", "days_before_alert"}
	vals := []any{it.Title, it.Category, it.ExpiryDate, it.Source, it.SourceURL, it.Description, string(it.Status), string(it.Priority), it.AlertThreshold()}
	if it.ID > 0 {
		cols = append([]string{"id"}, cols...)
		vals = append([]any{it.ID}, vals...)
	}
	q := sq.Insert(itemsTable).Columns(cols...).Values(vals...)
	res, err := q.RunWith(s.db).ExecContext(ctx)
	if err != nil {
		return 0, fmt.Errorf("insert item: %w", err)
	}
	return res.LastInsertId()
}

func (s *SQLite) today() string { return expiry.DayString(s.now(), s.loc) }

func (s *SQLite) GetUpcoming(ctx context.Context, windowDays int) ([]expiry.Item, error) {
	cutoff := expiry.Day(s.now(), s.loc).AddDate(0, 0, windowDays).Format(expiry.DateLayout)
	q := sq.Select(itemColumns...).From(itemsTable).
		Where(sq.Eq{"status": string(expiry.StatusActive)}).
		Where(sq.Or{
			sq.Expr("substr(expiry_date, 1, 10) <= ?", cutoff),
			sq.Expr("expiry_date NOT GLOB ?", isoDate),
		}).
		OrderBy("expiry_date ASC")
	return s.query(ctx, q)
}

func (s *SQLite) GetOverdue(ctx context.Context) ([]expiry.Item, error) {
	q := sq.Select(itemColumns...).From(itemsTable).
		Where(sq.Eq{"status": string(expiry.StatusActive)}).
		Where(sq.Expr("expiry_date GLOB ?", isoDate)).
		Where(sq.Lt{"substr(expiry_date, 1, 10)": s.today()}).
		OrderBy("expiry_date ASC")
	return s.query(ctx, q)
}

func (s *SQLite) Statistics(ctx context.Context) (Stats, error) {
	st := Stats{ByCategory: map[string]int{}}
	today := expiry.Day(s.now(), s.loc)
	soon := today.AddDate(0, 0, ExpiringSoonDays).Format(expiry.DateLayout)
	todayS := today.Format(expiry.DateLayout)

	active := sq.Eq{"status": string(expiry.StatusActive)}
	dated := sq.Expr("expiry_date GLOB ?", isoDate)
	counts := []struct {
		dst *int
		q   sq.SelectBuilder
	}{
		{&st.Total, sq.Select("COUNT(*)").From(itemsTable).Where(sq.NotEq{"status": string(expiry.StatusDeleted)})},
		{&st.Active, sq.Select("COUNT(*)").From(itemsTable).Where(active)},
		{&st.ExpiringSoon, sq.Select("COUNT(*)").From(itemsTable).Where(active).Where(dated).
			Where(sq.GtOrEq{"substr(expiry_date, 1, 10)": todayS}).
			Where(sq.LtOrEq{"substr(expiry_date, 1, 10)": soon})},
		{&st.Overdue, sq.Select("COUNT(*)").From(itemsTable).Where(active).Where(dated).
			Where(sq.Lt{"substr(expiry_date, 1, 10)": todayS})},
	}
	for _, c := range counts {
		if err := c.q.RunWith(s.db).QueryRowContext(ctx).Scan(c.dst); err != nil {
			return Stats{}, fmt.Errorf("statistics: %w", err)
		}
	}

	rows, err := sq.Select("category", "COUNT(*)").From(itemsTable).
		Where(active).GroupBy("category").
		RunWith(s.db).QueryContext(ctx)
	if err != nil {
		return Stats{}, fmt.Errorf("statistics by category: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var (
			cat string
			n   int
		)
		if err := rows.Scan(&cat, &n); err != nil {
			return Stats{}, err
		}
		st.ByCategory[cat] = n
	}
	return st, rows.Err()
}

func (s *SQLite) query(ctx context.Context, q sq.SelectBuilder) ([]expiry.Item, error) {
	rows, err := q.RunWith(s.db).QueryContext(ctx)
	if err != nil {
		return nil, fmt.Errorf("query items: %w", err)
	}
	defer rows.Close()

	var out []expiry.Item
	for rows.Next() {
		var (
			it                    expiry.Item
			status, prio, created string
		)
		if err := rows.Scan(&it.ID, &it.Title, &it.Category, &it.ExpiryDate, &it.Source,
			&it.SourceURL, &it.Description, &status, &prio, &it.DaysBeforeAlert, &created); err != nil {
			return nil, fmt.Errorf("scan item: %w", err)
		}
		it.Status = expiry.Status(strings.ToLower(status))
		it.Priority = expiry.ParsePriority(prio)
		it.CreatedAt = parseTimestamp(created)
		out = append(out, it)
	}
	return out, rows.Err()
}

func parseTimestamp(s string) time.Time {
	for _, layout := range []string{"2006-01-02 15:04:05", time.RFC3339Nano, expiry.DateLayout} {
		if t, err := time.Parse(layout, s); err == nil {
			return t
		}
	}
	return time.Time{}
}
