// Package sqlitestore is the SQLite ledger driver.
package sqlitestore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"expirywatch/internal/channel"
	"expirywatch/internal/expiry"
	"expirywatch/internal/ledger"
	"expirywatch/internal/storage"
	logx "expirywatch/pkg/logx"
)

const timeLayout = time.RFC3339Nano

type Store struct {
	db    *sql.DB
	owned bool
	now   func() time.Time
}

var _ ledger.Ledger = (*Store)(nil)

// Open opens the database at path and owns it.
func Open(ctx context.Context, path string, busyTimeout time.Duration, log logx.Logger) (*Store, error) {
	db, err := storage.OpenSQLite(ctx, path, busyTimeout, log)
	if err != nil {
		return nil, err
	}
	return &Store{db: db, owned: true, now: time.Now}, nil
}

// New wraps a database already opened with storage.OpenSQLite. Close
// leaves db open.
func New(db *sql.DB) *Store {
	return &Store{db: db, now: time.Now}
}

func (s *Store) Succeeded(ctx context.Context, key ledger.Key) (map[string]bool, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT DISTINCT channel FROM delivery_outcomes
		 WHERE item_id = ? AND tier = ? AND day = ? AND succeeded = 1`,
		key.ItemID, key.Tier.String(), key.Day)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := map[string]bool{}
	for rows.Next() {
		var ch string
		if err := rows.Scan(&ch); err != nil {
			return nil, err
		}
		out[ch] = true
	}
	return out, rows.Err()
}

func (s *Store) Commit(ctx context.Context, key ledger.Key, outcomes []channel.Outcome) (err error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	tier := key.Tier.String()
	if _, err = tx.ExecContext(ctx,
		`INSERT OR IGNORE INTO alert_records (item_id, tier, day, created_at) VALUES (?, ?, ?, ?)`,
		key.ItemID, tier, key.Day, s.now().UTC().Format(timeLayout)); err != nil {
		return fmt.Errorf("insert record %s: %w", key, err)
	}

	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO delivery_outcomes (item_id, tier, day, channel, succeeded, error_kind, error, at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return err
	}
	defer stmt.Close()

	for _, o := range outcomes {
		if _, err = stmt.ExecContext(ctx,
			key.ItemID, tier, key.Day, o.Channel, boolInt(o.Succeeded),
			string(o.ErrorKind), o.Error, o.At.UTC().Format(timeLayout)); err != nil {
			return fmt.Errorf("insert outcome %s/%s: %w", key, o.Channel, err)
		}
	}
	return tx.Commit()
}

func (s *Store) History(ctx context.Context, itemID int64) ([]ledger.Record, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT r.tier, r.day, r.created_at,
		        o.channel, o.succeeded, o.error_kind, o.error, o.at
		 FROM alert_records r
		 LEFT JOIN delivery_outcomes o
		   ON o.item_id = r.item_id AND o.tier = r.tier AND o.day = r.day
		 WHERE r.item_id = ?
		 ORDER BY r.day, r.tier, o.id`, itemID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var (
		out   []ledger.Record
		index = map[ledger.Key]int{}
	)
	for rows.Next() {
		var (
			tierS, day, created string
			ch, kind, msg, at   sql.NullString
			succeeded           sql.NullInt64
		)
		if err := rows.Scan(&tierS, &day, &created, &ch, &succeeded, &kind, &msg, &at); err != nil {
			return nil, err
		}
		tier, err := expiry.ParseTier(tierS)
		if err != nil {
			return nil, err
		}
		k := ledger.Key{ItemID: itemID, Tier: tier, Day: day}
		i, ok := index[k]
		if !ok {
			createdAt, _ := time.Parse(timeLayout, created)
			out = append(out, ledger.Record{Key: k, CreatedAt: createdAt})
			i = len(out) - 1
			index[k] = i
		}
		if !ch.Valid {
			continue
		}
		o := channel.Outcome{
			Channel:   ch.String,
			Succeeded: succeeded.Int64 == 1,
			ErrorKind: channel.Kind(kind.String),
			Error:     msg.String,
		}
		if at.Valid {
			o.At, _ = time.Parse(timeLayout, at.String)
		}
		out[i].Outcomes = append(out[i].Outcomes, o)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	ledger.SortRecords(out)
	return out, nil
}

func (s *Store) Close() error {
	if !s.owned {
		return nil
	}
	err := s.db.Close()
	if errors.Is(err, sql.ErrConnDone) {
		return nil
	}
	return err
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
