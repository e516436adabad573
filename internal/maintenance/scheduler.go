// Package maintenance runs the kiosk's periodic housekeeping: the
// daily ledger reset, the idle interface reset, and the calendar
// report trigger.
package maintenance

import (
	"context"
	"log"
	"time"

	"github.com/librelane/parkval/internal/ledger"
	"github.com/librelane/parkval/internal/reports"
)

// IdleResetter is the scan interface hook the scheduler drives. The
// admission machine implements it.
type IdleResetter interface {
	IdleTick(now time.Time) bool
}

// Config holds the parameters for NewScheduler.
type Config struct {
	// TickInterval is how often housekeeping runs. Defaults to 5s.
	TickInterval time.Duration

	// ResetInterval is how much ledger history to keep before the
	// entries are bulk-reset. 0 disables the periodic reset.
	ResetInterval time.Duration

	// ReportDay / ReportHour / ReportMinute schedule the monthly
	// report: it fires on that day of the month at that local hh:mm.
	// ReportDay 0 disables reporting.
	ReportDay    int
	ReportHour   int
	ReportMinute int

	// ReportDir receives local CSV copies of the report artifacts.
	// Empty means no local copies.
	ReportDir string
}

// Scheduler runs housekeeping as a background goroutine. It is safe to
// stop via its context or the Stop method.
type Scheduler struct {
	cfg      Config
	store    ledger.Store
	machine  IdleResetter
	reporter reports.Reporter
	logger   *log.Logger
	now      func() time.Time

	cancel context.CancelFunc
	done   chan struct{}

	// lastReport suppresses re-triggering inside the scheduled minute.
	lastReport time.Time
}

// NewScheduler creates a scheduler but does not start it. Call Start
// to begin the background loop. The clock override is test-only; nil
// means time.Now.
func NewScheduler(cfg Config, store ledger.Store, machine IdleResetter, reporter reports.Reporter, logger *log.Logger, now func() time.Time) *Scheduler {
	if cfg.TickInterval <= 0 {
		cfg.TickInterval = 5 * time.Second
	}
	if now == nil {
		now = time.Now
	}
	return &Scheduler{
		cfg:      cfg,
		store:    store,
		machine:  machine,
		reporter: reporter,
		logger:   logger,
		now:      now,
		done:     make(chan struct{}),
	}
}

// Start begins the background loop. It runs an immediate tick on
// startup, then repeats on the configured interval. The loop exits
// when ctx is cancelled or Stop is called.
func (s *Scheduler) Start(ctx context.Context) {
	ctx, s.cancel = context.WithCancel(ctx)

	go s.loop(ctx)

	s.logger.Printf("maintenance scheduler started (tick=%s, reset=%s)",
		s.cfg.TickInterval, s.cfg.ResetInterval)
}

// Stop signals the scheduler to exit and waits for it to finish.
func (s *Scheduler) Stop() {
	if s.cancel != nil {
		s.cancel()
	}
	<-s.done
}

func (s *Scheduler) loop(ctx context.Context) {
	defer close(s.done)

	s.Tick(ctx, s.now())

	ticker := time.NewTicker(s.cfg.TickInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.Tick(ctx, s.now())
		}
	}
}

// Tick runs one housekeeping pass at the given time.
func (s *Scheduler) Tick(ctx context.Context, now time.Time) {
	s.resetLedger(ctx, now)

	if s.machine.IdleTick(now) {
		s.logger.Printf("scan interface reset after idle timeout")
	}

	s.maybeReport(ctx, now)
}

// resetLedger bulk-resets the usage entries once the configured
// interval has elapsed since the last reset. A ledger with no reset
// event at all is reset immediately so the interval has an anchor.
func (s *Scheduler) resetLedger(ctx context.Context, now time.Time) {
	if s.cfg.ResetInterval <= 0 {
		return
	}

	elapsed, ok, err := s.store.TimeSinceLastReset(ctx, now)
	if err != nil {
		s.logger.Printf("read last ledger reset: %v", err)
		return
	}
	if ok && elapsed <= s.cfg.ResetInterval {
		return
	}

	if err := s.store.BulkReset(ctx); err != nil {
		s.logger.Printf("ledger bulk reset: %v", err)
		return
	}
	s.logger.Printf("ledger usage entries reset")
}

// maybeReport fires the monthly report when the clock matches the
// configured day and minute, covering the previous calendar month.
func (s *Scheduler) maybeReport(ctx context.Context, now time.Time) {
	if s.cfg.ReportDay <= 0 || s.reporter == nil {
		return
	}
	if now.Day() != s.cfg.ReportDay || now.Hour() != s.cfg.ReportHour || now.Minute() != s.cfg.ReportMinute {
		return
	}
	minute := now.Truncate(time.Minute)
	if minute.Equal(s.lastReport) {
		return
	}
	s.lastReport = minute

	// Previous calendar month, half-open.
	to := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, now.Location())
	from := to.AddDate(0, -1, 0)

	stats, err := reports.Collect(ctx, s.store, from, to)
	if err != nil {
		s.logger.Printf("collect report statistics: %v", err)
		return
	}
	artifacts, err := stats.Artifacts()
	if err != nil {
		s.logger.Printf("render report artifacts: %v", err)
		return
	}
	if s.cfg.ReportDir != "" {
		if _, err := reports.WriteArtifacts(s.cfg.ReportDir, artifacts); err != nil {
			s.logger.Printf("write report artifacts: %v", err)
		}
	}
	if err := s.reporter.Send(ctx, stats, artifacts); err != nil {
		s.logger.Printf("send report: %v", err)
	}
}
