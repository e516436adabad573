// Package sqlite implements the ledger store on SQLite via the shared
// single-connection handle and the serialized write worker.
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	dbpkg "github.com/librelane/parkval/internal/db"
	"github.com/librelane/parkval/internal/ledger"
)

type Store struct {
	db     *sql.DB
	writer *dbpkg.Worker
}

func New(db *sql.DB, writer *dbpkg.Worker) *Store {
	return &Store{db: db, writer: writer}
}

// unavailable wraps a storage failure so callers can distinguish it from
// "row not found" with errors.Is(err, ledger.ErrUnavailable).
func unavailable(op string, err error) error {
	return fmt.Errorf("%s: %w: %v", op, ledger.ErrUnavailable, err)
}

func (s *Store) UpsertEntry(ctx context.Context, hashedBarcode, blocks string) error {
	return s.writer.Do(ctx, func(ctx context.Context, tx *sql.Tx) error {
		// Counters are deliberately untouched on conflict: a re-scan must
		// never reset a patron's usage.
		if _, err := tx.ExecContext(ctx, `
INSERT INTO ledger_entries(hashed_barcode, blocks) VALUES (?, ?)
ON CONFLICT(hashed_barcode) DO UPDATE SET blocks = excluded.blocks;
`, hashedBarcode, blocks); err != nil {
			return unavailable("UpsertEntry", err)
		}
		return nil
	})
}

func (s *Store) Usage(ctx context.Context, hashedBarcode string) (int, *time.Time, error) {
	var (
		validations int
		lastMs      sql.NullInt64
	)
	err := s.db.QueryRowContext(ctx, `
SELECT validations, last_validation_ms FROM ledger_entries WHERE hashed_barcode = ?;
`, hashedBarcode).Scan(&validations, &lastMs)
	if err == sql.ErrNoRows {
		// Unknown barcode: no prior usage.
		return 0, nil, nil
	}
	if err != nil {
		return 0, nil, unavailable("Usage", err)
	}

	var last *time.Time
	if lastMs.Valid {
		t := time.UnixMilli(lastMs.Int64).UTC()
		last = &t
	}
	return validations, last, nil
}

func (s *Store) RecordValidation(ctx context.Context, hashedBarcode string, validations int, last time.Time) error {
	lastMs := last.UTC().UnixMilli()

	return s.writer.Do(ctx, func(ctx context.Context, tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, `
UPDATE ledger_entries SET validations = ?, last_validation_ms = ? WHERE hashed_barcode = ?;
`, validations, lastMs, hashedBarcode)
		if err != nil {
			return unavailable("RecordValidation update", err)
		}
		if n, err := res.RowsAffected(); err == nil && n == 0 {
			return unavailable("RecordValidation", fmt.Errorf("no ledger entry for barcode digest"))
		}

		// Same transaction as the counter update: the audit row and the
		// counters commit together or not at all.
		if err := appendEvent(ctx, tx, ledger.KindValidationSuccess, last); err != nil {
			return unavailable("RecordValidation event", err)
		}
		return nil
	})
}

func (s *Store) ResetUsage(ctx context.Context, hashedBarcode string) error {
	return s.writer.Do(ctx, func(ctx context.Context, tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `
UPDATE ledger_entries SET validations = 0, last_validation_ms = NULL WHERE hashed_barcode = ?;
`, hashedBarcode); err != nil {
			return unavailable("ResetUsage", err)
		}
		return nil
	})
}

func (s *Store) BulkReset(ctx context.Context) error {
	return s.writer.Do(ctx, func(ctx context.Context, tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `DELETE FROM ledger_entries;`); err != nil {
			return unavailable("BulkReset delete", err)
		}
		if err := appendEvent(ctx, tx, ledger.KindReset, time.Now().UTC()); err != nil {
			return unavailable("BulkReset event", err)
		}
		return nil
	})
}

func (s *Store) AppendEvent(ctx context.Context, kind ledger.EventKind, at time.Time) error {
	return s.writer.Do(ctx, func(ctx context.Context, tx *sql.Tx) error {
		if err := appendEvent(ctx, tx, kind, at); err != nil {
			return unavailable("AppendEvent", err)
		}
		return nil
	})
}

// appendEvent inserts an event row whose at_ms is the given timestamp,
// bumped past the latest existing row when needed. This keeps at_ms
// strictly increasing with insertion order and satisfies the UNIQUE
// constraint even for events landing within the same millisecond.
func appendEvent(ctx context.Context, tx *sql.Tx, kind ledger.EventKind, at time.Time) error {
	_, err := tx.ExecContext(ctx, `
INSERT INTO ledger_events(at_ms, kind)
SELECT MAX(?, COALESCE((SELECT MAX(at_ms) + 1 FROM ledger_events), 0)), ?;
`, at.UTC().UnixMilli(), string(kind))
	return err
}

func (s *Store) TimeSinceLastReset(ctx context.Context, now time.Time) (time.Duration, bool, error) {
	var atMs int64
	err := s.db.QueryRowContext(ctx, `
SELECT at_ms FROM ledger_events WHERE kind = ? ORDER BY at_ms DESC LIMIT 1;
`, string(ledger.KindReset)).Scan(&atMs)
	if err == sql.ErrNoRows {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, unavailable("TimeSinceLastReset", err)
	}
	return now.Sub(time.UnixMilli(atMs).UTC()), true, nil
}

func (s *Store) CountEventsBetween(ctx context.Context, kind ledger.EventKind, from, to time.Time) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx, `
SELECT COUNT(*) FROM ledger_events WHERE kind = ? AND at_ms >= ? AND at_ms < ?;
`, string(kind), from.UTC().UnixMilli(), to.UTC().UnixMilli()).Scan(&n)
	if err != nil {
		return 0, unavailable("CountEventsBetween", err)
	}
	return n, nil
}

func (s *Store) EventsBetween(ctx context.Context, kind ledger.EventKind, from, to time.Time) ([]time.Time, error) {
	rows, err := s.db.QueryContext(ctx, `
SELECT at_ms FROM ledger_events WHERE kind = ? AND at_ms >= ? AND at_ms < ? ORDER BY at_ms;
`, string(kind), from.UTC().UnixMilli(), to.UTC().UnixMilli())
	if err != nil {
		return nil, unavailable("EventsBetween", err)
	}
	defer rows.Close()

	var out []time.Time
	for rows.Next() {
		var atMs int64
		if err := rows.Scan(&atMs); err != nil {
			return nil, unavailable("EventsBetween scan", err)
		}
		out = append(out, time.UnixMilli(atMs).UTC())
	}
	if err := rows.Err(); err != nil {
		return nil, unavailable("EventsBetween rows", err)
	}
	return out, nil
}
