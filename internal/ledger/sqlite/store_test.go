package sqlite_test

import (
	"context"
	"database/sql"
	"errors"
	"path/filepath"
	"testing"
	"time"

	dbpkg "github.com/librelane/parkval/internal/db"
	"github.com/librelane/parkval/internal/ledger"
	sqlitestore "github.com/librelane/parkval/internal/ledger/sqlite"
)

func openTestDB(t *testing.T) *sql.DB {
	t.Helper()
	conn, err := dbpkg.Open(context.Background(), dbpkg.Config{
		Path: filepath.Join(t.TempDir(), "parkval-test.db"),
	})
	if err != nil {
		t.Fatalf("open test db: %v", err)
	}
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

func newTestWriter(t *testing.T, conn *sql.DB) *dbpkg.Worker {
	t.Helper()
	w := dbpkg.NewWorker(conn)
	t.Cleanup(w.Close)
	return w
}

func newTestStore(t *testing.T) *sqlitestore.Store {
	t.Helper()
	conn := openTestDB(t)
	return sqlitestore.New(conn, newTestWriter(t, conn))
}

const digest = "ab55e1f9" // any stable stand-in for a hashed barcode

// ═══════════════════════════════════════════════════════════════════════════
// UpsertEntry — counters survive re-insert
// ═══════════════════════════════════════════════════════════════════════════

func TestStore_UpsertEntry_PreservesCounters(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()
	now := time.Date(2026, 2, 15, 12, 0, 0, 0, time.UTC)

	if err := st.UpsertEntry(ctx, digest, ""); err != nil {
		t.Fatalf("UpsertEntry: %v", err)
	}
	if err := st.RecordValidation(ctx, digest, 1, now); err != nil {
		t.Fatalf("RecordValidation: %v", err)
	}

	// Re-upsert with a different block snapshot.
	if err := st.UpsertEntry(ctx, digest, "g"); err != nil {
		t.Fatalf("second UpsertEntry: %v", err)
	}

	n, last, err := st.Usage(ctx, digest)
	if err != nil {
		t.Fatalf("Usage: %v", err)
	}
	if n != 1 {
		t.Errorf("expected validations=1 after re-upsert, got %d", n)
	}
	if last == nil || !last.Equal(now) {
		t.Errorf("expected last validation %v, got %v", now, last)
	}
}

func TestStore_Usage_UnknownBarcode(t *testing.T) {
	st := newTestStore(t)

	n, last, err := st.Usage(context.Background(), "never-seen")
	if err != nil {
		t.Fatalf("Usage on unknown barcode: %v", err)
	}
	if n != 0 || last != nil {
		t.Errorf("expected zero usage for unknown barcode, got %d/%v", n, last)
	}
}

// ═══════════════════════════════════════════════════════════════════════════
// RecordValidation — counters and audit row commit together
// ═══════════════════════════════════════════════════════════════════════════

func TestStore_RecordValidation_RoundTrip(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()
	now := time.Date(2026, 2, 15, 12, 0, 0, 0, time.UTC)

	if err := st.UpsertEntry(ctx, digest, ""); err != nil {
		t.Fatalf("UpsertEntry: %v", err)
	}
	if err := st.RecordValidation(ctx, digest, 2, now); err != nil {
		t.Fatalf("RecordValidation: %v", err)
	}

	n, last, err := st.Usage(ctx, digest)
	if err != nil {
		t.Fatalf("Usage: %v", err)
	}
	if n != 2 {
		t.Errorf("expected validations=2, got %d", n)
	}
	if last == nil || !last.Equal(now) {
		t.Errorf("expected last=%v, got %v", now, last)
	}

	count, err := st.CountEventsBetween(ctx, ledger.KindValidationSuccess, now.Add(-time.Minute), now.Add(time.Minute))
	if err != nil {
		t.Fatalf("CountEventsBetween: %v", err)
	}
	if count != 1 {
		t.Errorf("expected 1 validation event, got %d", count)
	}
}

func TestStore_RecordValidation_MissingEntryLeavesNoEvent(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()
	now := time.Date(2026, 2, 15, 12, 0, 0, 0, time.UTC)

	err := st.RecordValidation(ctx, "absent", 1, now)
	if err == nil {
		t.Fatal("expected error recording validation for absent entry")
	}
	if !errors.Is(err, ledger.ErrUnavailable) {
		t.Errorf("expected ErrUnavailable, got %v", err)
	}

	// The transaction rolled back: no stray audit row.
	count, err := st.CountEventsBetween(ctx, ledger.KindValidationSuccess, now.Add(-time.Minute), now.Add(time.Minute))
	if err != nil {
		t.Fatalf("CountEventsBetween: %v", err)
	}
	if count != 0 {
		t.Errorf("expected no validation events after rollback, got %d", count)
	}
}

// ═══════════════════════════════════════════════════════════════════════════
// ResetUsage / BulkReset
// ═══════════════════════════════════════════════════════════════════════════

func TestStore_ResetUsage(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()
	now := time.Date(2026, 2, 15, 12, 0, 0, 0, time.UTC)

	if err := st.UpsertEntry(ctx, digest, ""); err != nil {
		t.Fatalf("UpsertEntry: %v", err)
	}
	if err := st.RecordValidation(ctx, digest, 1, now); err != nil {
		t.Fatalf("RecordValidation: %v", err)
	}
	if err := st.ResetUsage(ctx, digest); err != nil {
		t.Fatalf("ResetUsage: %v", err)
	}

	n, last, err := st.Usage(ctx, digest)
	if err != nil {
		t.Fatalf("Usage: %v", err)
	}
	if n != 0 || last != nil {
		t.Errorf("expected zeroed usage after reset, got %d/%v", n, last)
	}
}

func TestStore_BulkReset_ClearsEntriesKeepsEvents(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()
	now := time.Date(2026, 2, 15, 12, 0, 0, 0, time.UTC)

	if err := st.UpsertEntry(ctx, digest, ""); err != nil {
		t.Fatalf("UpsertEntry: %v", err)
	}
	if err := st.RecordValidation(ctx, digest, 1, now); err != nil {
		t.Fatalf("RecordValidation: %v", err)
	}

	if err := st.BulkReset(ctx); err != nil {
		t.Fatalf("BulkReset: %v", err)
	}

	// Entry is gone.
	n, last, err := st.Usage(ctx, digest)
	if err != nil {
		t.Fatalf("Usage: %v", err)
	}
	if n != 0 || last != nil {
		t.Errorf("expected cleared entry, got %d/%v", n, last)
	}

	// Historical events intact, exactly one reset appended.
	wide := time.Now().UTC().Add(time.Hour)
	vCount, err := st.CountEventsBetween(ctx, ledger.KindValidationSuccess, now.Add(-time.Hour), wide)
	if err != nil {
		t.Fatalf("count validations: %v", err)
	}
	if vCount != 1 {
		t.Errorf("expected historical validation event to survive, got %d", vCount)
	}
	rCount, err := st.CountEventsBetween(ctx, ledger.KindReset, now.Add(-time.Hour), wide)
	if err != nil {
		t.Fatalf("count resets: %v", err)
	}
	if rCount != 1 {
		t.Errorf("expected exactly 1 reset event, got %d", rCount)
	}

	// Idempotent on an empty table.
	if err := st.BulkReset(ctx); err != nil {
		t.Fatalf("second BulkReset: %v", err)
	}
}

// ═══════════════════════════════════════════════════════════════════════════
// TimeSinceLastReset
// ═══════════════════════════════════════════════════════════════════════════

func TestStore_TimeSinceLastReset_NoResetYet(t *testing.T) {
	st := newTestStore(t)

	_, ok, err := st.TimeSinceLastReset(context.Background(), time.Now().UTC())
	if err != nil {
		t.Fatalf("TimeSinceLastReset: %v", err)
	}
	if ok {
		t.Error("expected ok=false with no reset event")
	}
}

func TestStore_TimeSinceLastReset_AfterReset(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()

	if err := st.BulkReset(ctx); err != nil {
		t.Fatalf("BulkReset: %v", err)
	}

	d, ok, err := st.TimeSinceLastReset(ctx, time.Now().UTC().Add(time.Minute))
	if err != nil {
		t.Fatalf("TimeSinceLastReset: %v", err)
	}
	if !ok {
		t.Fatal("expected ok=true after reset")
	}
	if d < 59*time.Second || d > 2*time.Minute {
		t.Errorf("unexpected elapsed duration %v", d)
	}
}

// ═══════════════════════════════════════════════════════════════════════════
// Event range queries — from inclusive, to exclusive
// ═══════════════════════════════════════════════════════════════════════════

func TestStore_EventsBetween_HalfOpenBounds(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()

	base := time.Date(2026, 2, 15, 12, 0, 0, 0, time.UTC)
	for i := 0; i < 3; i++ {
		at := base.Add(time.Duration(i) * time.Hour)
		if err := st.AppendEvent(ctx, ledger.KindValidationFailure, at); err != nil {
			t.Fatalf("AppendEvent %d: %v", i, err)
		}
	}

	// [base, base+2h) includes base and base+1h, excludes base+2h.
	ts, err := st.EventsBetween(ctx, ledger.KindValidationFailure, base, base.Add(2*time.Hour))
	if err != nil {
		t.Fatalf("EventsBetween: %v", err)
	}
	if len(ts) != 2 {
		t.Fatalf("expected 2 events in half-open range, got %d", len(ts))
	}
	if !ts[0].Equal(base) {
		t.Errorf("expected first event at %v, got %v", base, ts[0])
	}

	n, err := st.CountEventsBetween(ctx, ledger.KindValidationFailure, base, base.Add(2*time.Hour))
	if err != nil {
		t.Fatalf("CountEventsBetween: %v", err)
	}
	if n != 2 {
		t.Errorf("expected count 2, got %d", n)
	}

	// Other kinds are filtered out.
	n, err = st.CountEventsBetween(ctx, ledger.KindAdminActivated, base, base.Add(3*time.Hour))
	if err != nil {
		t.Fatalf("CountEventsBetween admin: %v", err)
	}
	if n != 0 {
		t.Errorf("expected 0 admin events, got %d", n)
	}
}

func TestStore_AppendEvent_MonotonicTimestamps(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()

	// Insert three events with the same nominal timestamp; stored
	// timestamps must still strictly increase.
	at := time.Date(2026, 2, 15, 12, 0, 0, 0, time.UTC)
	for i := 0; i < 3; i++ {
		if err := st.AppendEvent(ctx, ledger.KindAdminActivated, at); err != nil {
			t.Fatalf("AppendEvent %d: %v", i, err)
		}
	}

	ts, err := st.EventsBetween(ctx, ledger.KindAdminActivated, at.Add(-time.Minute), at.Add(time.Minute))
	if err != nil {
		t.Fatalf("EventsBetween: %v", err)
	}
	if len(ts) != 3 {
		t.Fatalf("expected 3 events, got %d", len(ts))
	}
	for i := 1; i < len(ts); i++ {
		if !ts[i].After(ts[i-1]) {
			t.Errorf("timestamps not strictly increasing: %v then %v", ts[i-1], ts[i])
		}
	}
}
