// Package ledger defines the local usage ledger: per-card validation
// counters keyed by hashed barcode, plus the append-only event log that
// doubles as the audit trail and the source for statistics.
package ledger

import (
	"context"
	"errors"
	"time"
)

// ErrUnavailable marks a storage failure, as opposed to a row simply not
// existing. Callers must fail closed on it: deny admission rather than
// assume zero prior usage.
var ErrUnavailable = errors.New("ledger store unavailable")

// EventKind labels an event row. The values match the comments the
// original deployment wrote, so an upgraded kiosk keeps a readable log.
type EventKind string

const (
	KindReset             EventKind = "patron database reset"
	KindValidationSuccess EventKind = "validation success"
	KindValidationFailure EventKind = "validation failure"
	KindAdminActivated    EventKind = "admin mode activated"
)

// Entry is one ledger row: the cached usage counters for a hashed
// barcode plus a snapshot of the card's block code from the last lookup.
type Entry struct {
	HashedBarcode  string
	Validations    int
	LastValidation *time.Time
	Blocks         string
}

// Event is one append-only log row. Timestamps strictly increase with
// insertion order; "most recent reset" queries rely on that.
type Event struct {
	Timestamp time.Time
	Kind      EventKind
}

// Store is the ledger contract. All range queries are from-inclusive,
// to-exclusive.
type Store interface {
	// UpsertEntry inserts a row for the hashed barcode if absent,
	// otherwise updates only the block snapshot. It never touches the
	// usage counters of an existing row.
	UpsertEntry(ctx context.Context, hashedBarcode, blocks string) error

	// Usage returns the cached counters for a hashed barcode. An unknown
	// barcode is not an error: it yields zero validations and a nil
	// last-validation time.
	Usage(ctx context.Context, hashedBarcode string) (int, *time.Time, error)

	// RecordValidation updates the counters and appends a
	// ValidationSuccess event in a single transaction. Neither half may
	// land without the other.
	RecordValidation(ctx context.Context, hashedBarcode string, validations int, last time.Time) error

	// ResetUsage zeroes the counters for one hashed barcode.
	ResetUsage(ctx context.Context, hashedBarcode string) error

	// BulkReset clears every ledger entry, leaves the event log intact
	// and appends exactly one Reset event. Safe to call on an already
	// empty table.
	BulkReset(ctx context.Context) error

	// AppendEvent appends a bare event row (admin activations,
	// validation failures).
	AppendEvent(ctx context.Context, kind EventKind, at time.Time) error

	// TimeSinceLastReset returns the elapsed time since the most recent
	// Reset event. ok is false when no Reset event exists yet, which
	// callers treat as "reset overdue".
	TimeSinceLastReset(ctx context.Context, now time.Time) (d time.Duration, ok bool, err error)

	// CountEventsBetween counts events of one kind with from <= t < to.
	CountEventsBetween(ctx context.Context, kind EventKind, from, to time.Time) (int, error)

	// EventsBetween lists event timestamps of one kind with
	// from <= t < to, in insertion order.
	EventsBetween(ctx context.Context, kind EventKind, from, to time.Time) ([]time.Time, error)
}
