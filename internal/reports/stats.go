// Package reports builds the periodic validation statistics report:
// event counts and hourly histograms collected from the usage ledger,
// rendered as CSV artifacts and delivered by a Reporter.
package reports

import (
	"context"
	"fmt"
	"time"

	"github.com/librelane/parkval/internal/ledger"
)

// Stats summarizes ledger activity over [PeriodStart, PeriodEnd).
type Stats struct {
	PeriodStart time.Time
	PeriodEnd   time.Time

	Validations      int
	Failures         int
	AdminActivations int

	// Hour-of-day histograms, bucketed in PeriodStart's location.
	ValidationsByHour [24]int
	FailuresByHour    [24]int
	AdminByHour       [24]int
}

// Collect reads the ledger events for the period and builds the
// statistics. The upper bound is exclusive so adjacent periods never
// double-count an event.
func Collect(ctx context.Context, store ledger.Store, from, to time.Time) (Stats, error) {
	s := Stats{PeriodStart: from, PeriodEnd: to}
	loc := from.Location()

	collect := func(kind ledger.EventKind, total *int, hist *[24]int) error {
		ts, err := store.EventsBetween(ctx, kind, from, to)
		if err != nil {
			return fmt.Errorf("collect %q events: %w", kind, err)
		}
		*total = len(ts)
		for _, t := range ts {
			hist[t.In(loc).Hour()]++
		}
		return nil
	}

	if err := collect(ledger.KindValidationSuccess, &s.Validations, &s.ValidationsByHour); err != nil {
		return Stats{}, err
	}
	if err := collect(ledger.KindValidationFailure, &s.Failures, &s.FailuresByHour); err != nil {
		return Stats{}, err
	}
	if err := collect(ledger.KindAdminActivated, &s.AdminActivations, &s.AdminByHour); err != nil {
		return Stats{}, err
	}
	return s, nil
}

// Summary renders the plain-text report body.
func (s Stats) Summary() string {
	return fmt.Sprintf("This is your monthly automated parking validation report.\n\n"+
		"total successful validations: %d\n"+
		"total failed attempts: %d\n"+
		"total admin mode activations: %d\n\n"+
		"Detailed hourly data is attached.",
		s.Validations, s.Failures, s.AdminActivations)
}

// Subject renders the report email subject line for the period.
func (s Stats) Subject() string {
	return fmt.Sprintf("Parking Validation Report for %s", s.PeriodStart.Format("2006-Jan"))
}
