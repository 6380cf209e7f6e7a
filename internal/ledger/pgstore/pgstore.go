// Package pgstore provides a PostgreSQL implementation of ledger.Ledger.
package pgstore

import (
	"context"
	_ "embed"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"expirywatch/internal/channel"
	"expirywatch/internal/expiry"
	"expirywatch/internal/ledger"
)

//go:embed schema.sql
var schema string

// Store persists the delivery ledger in PostgreSQL. Commits for one key
// are serialized across processes with a transaction-scoped advisory lock.
type Store struct {
	pool *pgxpool.Pool
}

var _ ledger.Ledger = (*Store)(nil)

// New connects to PostgreSQL, applies the schema, and returns a ready Store.
func New(ctx context.Context, databaseURL string) (*Store, error) {
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, fmt.Errorf("pgxpool.New: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping: %w", err)
	}

	if _, err := pool.Exec(ctx, schema); err != nil {
		pool.Close()
		return nil, fmt.Errorf("apply schema: %w", err)
	}

	return &Store{pool: pool}, nil
}

// Close shuts down the connection pool.
func (s *Store) Close() error {
	s.pool.Close()
	return nil
}

func (s *Store) Succeeded(ctx context.Context, key ledger.Key) (map[string]bool, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT DISTINCT channel FROM delivery_outcomes
		 WHERE item_id = $1 AND tier = $2 AND day = $3::date AND succeeded`,
		key.ItemID, key.Tier.String(), key.Day)
	if err != nil {
		return nil, err
	}
	chans, err := pgx.CollectRows(rows, pgx.RowTo[string])
	if err != nil {
		return nil, err
	}
	out := make(map[string]bool, len(chans))
	for _, c := range chans {
		out[c] = true
	}
	return out, nil
}

func (s *Store) Commit(ctx context.Context, key ledger.Key, outcomes []channel.Outcome) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck // rollback after commit is harmless

	if _, err := tx.Exec(ctx, `SELECT pg_advisory_xact_lock(hashtext($1))`, key.String()); err != nil {
		return fmt.Errorf("lock %s: %w", key, err)
	}

	tier := key.Tier.String()
	if _, err := tx.Exec(ctx,
		`INSERT INTO alert_records (item_id, tier, day) VALUES ($1, $2, $3::date)
		 ON CONFLICT DO NOTHING`,
		key.ItemID, tier, key.Day); err != nil {
		return fmt.Errorf("insert record %s: %w", key, err)
	}

	if len(outcomes) > 0 {
		batch := &pgx.Batch{}
		for _, o := range outcomes {
			batch.Queue(
				`INSERT INTO delivery_outcomes (item_id, tier, day, channel, succeeded, error_kind, error, at)
				 VALUES ($1, $2, $3::date, $4, $5, $6, $7, $8)`,
				key.ItemID, tier, key.Day, o.Channel, o.Succeeded, string(o.ErrorKind), o.Error, o.At.UTC())
		}
		if err := tx.SendBatch(ctx, batch).Close(); err != nil {
			return fmt.Errorf("insert outcomes %s: %w", key, err)
		}
	}

	return tx.Commit(ctx)
}

type historyRow struct {
	Tier      string
	Day       string
	CreatedAt time.Time
	Channel   *string
	Succeeded *bool
	ErrorKind *string
	Error     *string
	At        *time.Time
}

func (s *Store) History(ctx context.Context, itemID int64) ([]ledger.Record, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT r.tier, to_char(r.day, 'YYYY-MM-DD'), r.created_at,
		        o.channel, o.succeeded, o.error_kind, o.error, o.at
		 FROM alert_records r
		 LEFT JOIN delivery_outcomes o
		   ON o.item_id = r.item_id AND o.tier = r.tier AND o.day = r.day
		 WHERE r.item_id = $1
		 ORDER BY r.day, r.tier, o.id`, itemID)
	if err != nil {
		return nil, err
	}
	hrs, err := pgx.CollectRows(rows, pgx.RowToStructByPos[historyRow])
	if err != nil {
		return nil, err
	}

	var (
		out   []ledger.Record
		index = map[ledger.Key]int{}
	)
	for _, h := range hrs {
		tier, err := expiry.ParseTier(h.Tier)
		if err != nil {
			return nil, err
		}
		k := ledger.Key{ItemID: itemID, Tier: tier, Day: h.Day}
		i, ok := index[k]
		if !ok {
			out = append(out, ledger.Record{Key: k, CreatedAt: h.CreatedAt})
			i = len(out) - 1
			index[k] = i
		}
		if h.Channel == nil {
			continue
		}
		o := channel.Outcome{Channel: *h.Channel}
		if h.Succeeded != nil {
			o.Succeeded = *h.Succeeded
		}
		if h.ErrorKind != nil {
			o.ErrorKind = channel.Kind(*h.ErrorKind)
		}
		if h.Error != nil {
			o.Error = *h.Error
		}
		if h.At != nil {
			o.At = *h.At
		}
		out[i].Outcomes = append(out[i].Outcomes, o)
	}
	ledger.SortRecords(out)
	return out, nil
}
