// Package validator is the admission state machine: it consumes scan
// tokens, reconciles the remote directory record with the local usage
// ledger, enforces the failure-rate lockout and the admin/debug
// overrides, and drives the actuator gate.
package validator

import (
	"context"
	"errors"
	"log"
	"sync"
	"time"

	"github.com/librelane/parkval/internal/actuator"
	"github.com/librelane/parkval/internal/card"
	"github.com/librelane/parkval/internal/directory"
	"github.com/librelane/parkval/internal/ledger"
)

// Config carries the deployment knobs the machine consumes.
type Config struct {
	MaxValidations     int           // per usage window
	ValidationInterval time.Duration // cooldown between validations
	FailureThreshold   int           // consecutive shape failures before lockout
	LockoutCooldown    time.Duration // scans ignored for this long while locked out
	IdleTimeout        time.Duration // no-scan interval before the session resets
	ValidateDuration   time.Duration // how long the relay stays energized
	TouchlessDelay     time.Duration // auto-validation delay; 0 disables
	AdminBarcodes      []string
	DebugBarcodes      []string
}

// Dependencies wires the machine's collaborators.
type Dependencies struct {
	Profile   *card.Profile
	Ledger    ledger.Store
	Directory directory.Client
	Gate      *actuator.Gate
	Logger    *log.Logger

	// Now overrides the clock; nil means time.Now. Tests use it to step
	// through cooldowns.
	Now func() time.Time
}

// Decision is the outcome of one pipeline action.
type Decision struct {
	State  State
	Reason Reason

	// Patron is the transient merged record, present after a successful
	// lookup (admissible or post-lookup denial).
	Patron *card.Patron

	// NextEligible is set with ReasonTooSoon: the earliest time the
	// previous validation expires.
	NextEligible *time.Time

	// Validated is true when a manual or touchless admission action
	// committed and the machine cycle started.
	Validated bool

	// Ignored is true when the token was swallowed without processing
	// (empty input, lockout cooldown, action outside its mode).
	Ignored bool

	AdminMode bool
	DebugMode bool
}

// session is the mutable per-kiosk state. It exists only inside Machine
// and is mutated exclusively under the machine mutex: the scan pipeline
// is strictly serialized.
type session struct {
	state    State
	admin    bool
	debug    bool
	failures int
	lastScan time.Time
	patron   *card.Patron
}

type Machine struct {
	cfg       Config
	profile   *card.Profile
	ledger    ledger.Store
	directory directory.Client
	gate      *actuator.Gate
	logger    *log.Logger
	now       func() time.Time

	mu sync.Mutex
	s  session
}

func New(cfg Config, d Dependencies) *Machine {
	now := d.Now
	if now == nil {
		now = func() time.Time { return time.Now().UTC() }
	}
	m := &Machine{
		cfg:       cfg,
		profile:   d.Profile,
		ledger:    d.Ledger,
		directory: d.Directory,
		gate:      d.Gate,
		logger:    d.Logger,
		now:       now,
	}
	m.s.lastScan = now()
	return m
}

// lockedOut reports whether the failure counter has tripped the lockout.
// Caller holds m.mu.
func (m *Machine) lockedOut() bool {
	return m.cfg.FailureThreshold > 0 && m.s.failures >= m.cfg.FailureThreshold
}

func (m *Machine) decision(reason Reason) Decision {
	return Decision{
		State:     m.s.state,
		Reason:    reason,
		Patron:    m.s.patron,
		AdminMode: m.s.admin,
		DebugMode: m.s.debug,
	}
}

func (m *Machine) ignored() Decision {
	d := m.decision(ReasonNone)
	d.Ignored = true
	return d
}

// Scan processes one raw token from the barcode-entry device. The device
// is indistinguishable from a keyboard, so the token is untrusted input.
func (m *Machine) Scan(ctx context.Context, token string) Decision {
	m.mu.Lock()
	defer m.mu.Unlock()

	if token == "" {
		return m.ignored()
	}

	now := m.now()

	// During the lockout cooldown every token is swallowed without a
	// trace; lastScan deliberately stays put so a steady stream of
	// probes gets exactly one processed attempt per cooldown.
	if m.lockedOut() && now.Sub(m.s.lastScan) < m.cfg.LockoutCooldown {
		return m.ignored()
	}

	m.s.lastScan = now

	if contains(m.cfg.DebugBarcodes, token) {
		m.toggleDebug()
		return m.decision(ReasonNone)
	}
	if contains(m.cfg.AdminBarcodes, token) {
		m.toggleAdmin(ctx)
		return m.decision(ReasonNone)
	}

	if !m.profile.ValidBarcode(token) {
		return m.shapeFailure()
	}

	// A minimally valid-shaped barcode clears the failure counter and
	// the lockout with it.
	m.s.failures = 0
	m.s.state = StateCardPresented

	rec, err := m.directory.Lookup(ctx, token)
	if err != nil {
		m.s.patron = nil
		m.s.state = StateDenied
		if errors.Is(err, directory.ErrNotFound) {
			return m.decision(ReasonNotFound)
		}
		m.logger.Printf("directory lookup failed: %v", err)
		return m.decision(ReasonCommError)
	}

	c := card.New(token, rec.Expiration, rec.Blocks)

	if err := m.ledger.UpsertEntry(ctx, c.HashedBarcode, c.Blocks); err != nil {
		return m.storeFailure("upsert ledger entry", err)
	}
	validations, last, err := m.ledger.Usage(ctx, c.HashedBarcode)
	if err != nil {
		return m.storeFailure("read usage", err)
	}

	m.s.patron = &card.Patron{
		Name:               rec.Name,
		Card:               c,
		Validations:        validations,
		LastValidation:     last,
		MaxValidations:     m.cfg.MaxValidations,
		ValidationInterval: m.cfg.ValidationInterval,
	}

	return m.evaluate(ctx, now)
}

// evaluate decides admissibility for the presented patron and arms the
// touchless path when configured. Caller holds m.mu.
func (m *Machine) evaluate(ctx context.Context, now time.Time) Decision {
	pat := m.s.patron

	if m.profile.Admissible(*pat, now) {
		m.s.state = StateAdmissible
		if m.cfg.TouchlessDelay > 0 {
			m.gate.ArmTouchless(m.cfg.TouchlessDelay, m.autoValidate)
		}
		return m.decision(ReasonNone)
	}

	m.s.state = StateDenied
	reason, next := m.denialReason(*pat, now)
	if reason.audited() {
		if err := m.ledger.AppendEvent(ctx, ledger.KindValidationFailure, now); err != nil {
			m.logger.Printf("append validation failure event: %v", err)
		}
	}
	d := m.decision(reason)
	d.NextEligible = next
	return d
}

// denialReason picks the most specific ineligibility cause, in fixed
// priority order: expired > blocked > invalid card > cap > cooldown.
func (m *Machine) denialReason(pat card.Patron, now time.Time) (Reason, *time.Time) {
	switch {
	case pat.Card.Expired(now):
		return ReasonCardExpired, nil
	case m.profile.Blocked(pat.Card):
		return ReasonCardBlocked, nil
	case !m.profile.CardValid(pat.Card, now):
		return ReasonCardInvalid, nil
	case pat.Validations >= pat.MaxValidations:
		return ReasonMaxValidations, nil
	case pat.LastValidation != nil && now.Sub(*pat.LastValidation) < pat.ValidationInterval:
		next := pat.LastValidation.Add(pat.ValidationInterval)
		return ReasonTooSoon, &next
	default:
		return ReasonUnspecified, nil
	}
}

func (m *Machine) shapeFailure() Decision {
	m.s.patron = nil
	m.s.failures++
	if m.lockedOut() {
		m.s.state = StateLockout
		return m.decision(ReasonLockedOut)
	}
	m.s.state = StateDenied
	return m.decision(ReasonBadBarcode)
}

func (m *Machine) storeFailure(op string, err error) Decision {
	m.logger.Printf("%s: %v", op, err)
	m.s.patron = nil
	m.s.state = StateDenied
	return m.decision(ReasonStoreUnavailable)
}

func (m *Machine) toggleDebug() {
	m.s.failures = 0
	if m.s.debug {
		m.s.debug = false
		m.s.admin = false
		return
	}
	// Debug implies admin, but only the dedicated admin trigger writes
	// an AdminActivated event.
	m.s.debug = true
	m.s.admin = true
}

func (m *Machine) toggleAdmin(ctx context.Context) {
	m.s.failures = 0
	if m.s.admin {
		m.s.admin = false
		m.s.debug = false
		return
	}
	m.enterAdmin(ctx)
}

func (m *Machine) enterAdmin(ctx context.Context) {
	m.s.admin = true
	if err := m.ledger.AppendEvent(ctx, ledger.KindAdminActivated, m.now()); err != nil {
		m.logger.Printf("append admin activation event: %v", err)
	}
}

// Validate is the manual admission action: commit the validation to the
// ledger and run the machine cycle. It re-checks admissibility, so a
// stale button press after the window closed is denied, not honored.
func (m *Machine) Validate(ctx context.Context) Decision {
	m.mu.Lock()
	defer m.mu.Unlock()

	pat := m.s.patron
	if pat == nil {
		return m.ignored()
	}

	now := m.now()
	if !m.profile.Admissible(*pat, now) {
		return m.evaluate(ctx, now)
	}

	prevValidations := pat.Validations
	prevLast := pat.LastValidation
	pat.Validations++
	pat.LastValidation = &now

	if err := m.ledger.RecordValidation(ctx, pat.Card.HashedBarcode, pat.Validations, now); err != nil {
		// The commit failed; the in-memory counters must not drift from
		// the ledger.
		pat.Validations = prevValidations
		pat.LastValidation = prevLast
		return m.storeFailure("record validation", err)
	}

	if err := m.gate.ArmManual(m.cfg.ValidateDuration, m.actuationComplete); err != nil {
		m.logger.Printf("arm validation machine: %v", err)
		m.s.state = StateDenied
		d := m.decision(ReasonActuatorFault)
		return d
	}

	d := m.decision(ReasonNone)
	d.Validated = true
	return d
}

// autoValidate is the touchless countdown's firing action.
func (m *Machine) autoValidate() {
	d := m.Validate(context.Background())
	if !d.Validated && !d.Ignored {
		m.logger.Printf("touchless validation denied: %s", d.Reason)
	}
}

// actuationComplete runs when the manual countdown expires and the relay
// has been de-energized.
func (m *Machine) actuationComplete() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.s.state = StateIdle
}

// AdminReset zeroes the presented identity's usage counters. Only
// honored in admin or debug mode; no fresh scan is required.
func (m *Machine) AdminReset(ctx context.Context) Decision {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.s.admin && !m.s.debug {
		return m.ignored()
	}
	pat := m.s.patron
	if pat == nil {
		return m.ignored()
	}

	if err := m.ledger.ResetUsage(ctx, pat.Card.HashedBarcode); err != nil {
		return m.storeFailure("reset usage", err)
	}
	pat.Validations = 0
	pat.LastValidation = nil

	return m.evaluate(ctx, m.now())
}

// IdleTick is driven by the maintenance scheduler. Once the scan
// interface has been idle past the timeout it clears the session:
// overlay modes off, countdowns cancelled, back to Idle. Lockout is a
// security state, not a UI state, so it survives the reset.
func (m *Machine) IdleTick(now time.Time) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.cfg.IdleTimeout <= 0 || now.Sub(m.s.lastScan) <= m.cfg.IdleTimeout {
		return false
	}

	m.s.admin = false
	m.s.debug = false
	m.s.patron = nil
	m.s.lastScan = now
	m.gate.Cancel()

	if m.lockedOut() {
		m.s.state = StateLockout
	} else {
		m.s.state = StateIdle
	}
	return true
}

// Snapshot returns the current session view without mutating anything.
func (m *Machine) Snapshot() Decision {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.decision(ReasonNone)
}

// Failures reports the consecutive shape-failure count. Test and
// diagnostics helper.
func (m *Machine) Failures() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.s.failures
}

func contains(list []string, v string) bool {
	for _, s := range list {
		if s == v {
			return true
		}
	}
	return false
}
