// Package memory is an in-memory ledger store for tests and dev runs.
package memory

import (
	"context"
	"sync"
	"time"

	"github.com/librelane/parkval/internal/ledger"
)

type entry struct {
	validations int
	last        *time.Time
	blocks      string
}

type Store struct {
	mu      sync.Mutex
	entries map[string]*entry
	events  []ledger.Event
	failErr error
}

func New() *Store {
	return &Store{entries: make(map[string]*entry)}
}

// Fail makes every subsequent call return err (pass nil to recover).
// Test-only helper for exercising fail-closed paths.
func (s *Store) Fail(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failErr = err
}

// Events returns a copy of all recorded events. Test-only helper.
func (s *Store) Events() []ledger.Event {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]ledger.Event, len(s.events))
	copy(out, s.events)
	return out
}

// EventsOf returns the recorded events of one kind. Test-only helper.
func (s *Store) EventsOf(kind ledger.EventKind) []ledger.Event {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []ledger.Event
	for _, ev := range s.events {
		if ev.Kind == kind {
			out = append(out, ev)
		}
	}
	return out
}

func (s *Store) appendEvent(kind ledger.EventKind, at time.Time) {
	at = at.UTC()
	// Keep timestamps strictly increasing, matching the sqlite store.
	if n := len(s.events); n > 0 && !at.After(s.events[n-1].Timestamp) {
		at = s.events[n-1].Timestamp.Add(time.Millisecond)
	}
	s.events = append(s.events, ledger.Event{Timestamp: at, Kind: kind})
}

func (s *Store) UpsertEntry(_ context.Context, hashedBarcode, blocks string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failErr != nil {
		return s.failErr
	}
	if e, ok := s.entries[hashedBarcode]; ok {
		e.blocks = blocks
		return nil
	}
	s.entries[hashedBarcode] = &entry{blocks: blocks}
	return nil
}

func (s *Store) Usage(_ context.Context, hashedBarcode string) (int, *time.Time, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failErr != nil {
		return 0, nil, s.failErr
	}
	e, ok := s.entries[hashedBarcode]
	if !ok {
		return 0, nil, nil
	}
	return e.validations, e.last, nil
}

func (s *Store) RecordValidation(_ context.Context, hashedBarcode string, validations int, last time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failErr != nil {
		return s.failErr
	}
	e, ok := s.entries[hashedBarcode]
	if !ok {
		return ledger.ErrUnavailable
	}
	t := last.UTC()
	e.validations = validations
	e.last = &t
	s.appendEvent(ledger.KindValidationSuccess, last)
	return nil
}

func (s *Store) ResetUsage(_ context.Context, hashedBarcode string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failErr != nil {
		return s.failErr
	}
	if e, ok := s.entries[hashedBarcode]; ok {
		e.validations = 0
		e.last = nil
	}
	return nil
}

func (s *Store) BulkReset(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failErr != nil {
		return s.failErr
	}
	s.entries = make(map[string]*entry)
	s.appendEvent(ledger.KindReset, time.Now().UTC())
	return nil
}

func (s *Store) AppendEvent(_ context.Context, kind ledger.EventKind, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failErr != nil {
		return s.failErr
	}
	s.appendEvent(kind, at)
	return nil
}

func (s *Store) TimeSinceLastReset(_ context.Context, now time.Time) (time.Duration, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failErr != nil {
		return 0, false, s.failErr
	}
	for i := len(s.events) - 1; i >= 0; i-- {
		if s.events[i].Kind == ledger.KindReset {
			return now.Sub(s.events[i].Timestamp), true, nil
		}
	}
	return 0, false, nil
}

func (s *Store) CountEventsBetween(ctx context.Context, kind ledger.EventKind, from, to time.Time) (int, error) {
	ts, err := s.EventsBetween(ctx, kind, from, to)
	if err != nil {
		return 0, err
	}
	return len(ts), nil
}

func (s *Store) EventsBetween(_ context.Context, kind ledger.EventKind, from, to time.Time) ([]time.Time, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failErr != nil {
		return nil, s.failErr
	}
	var out []time.Time
	for _, ev := range s.events {
		if ev.Kind != kind {
			continue
		}
		// from inclusive, to exclusive.
		if !ev.Timestamp.Before(from) && ev.Timestamp.Before(to) {
			out = append(out, ev.Timestamp)
		}
	}
	return out, nil
}
