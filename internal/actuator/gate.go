// Package actuator owns the countdown timers that arm and disarm the
// validation machine's relay. Two countdowns exist: the manual cycle
// (energize, wait, de-energize) and the touchless cycle (wait, then fire
// the validation action). Only one may hold the relay at a time.
package actuator

import (
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/librelane/parkval/internal/relay"
)

// ErrFault marks a relay I/O failure. The gate always drives the relay
// toward de-energized before surfacing it.
var ErrFault = errors.New("actuator fault")

type mode int

const (
	idle mode = iota
	manual
	touchless
)

// Gate serializes access to the single relay. Arming while a countdown
// is active cancels and replaces it; a stale timer that fires after
// cancellation is ignored via the generation counter.
type Gate struct {
	mu     sync.Mutex
	relay  relay.Relay
	logger *log.Logger

	mode  mode
	gen   uint64
	timer *time.Timer
}

func NewGate(r relay.Relay, logger *log.Logger) *Gate {
	return &Gate{relay: r, logger: logger}
}

// ArmManual energizes the relay and schedules de-energization after d,
// then calls onComplete (from the timer goroutine, with no gate lock
// held). On any relay error the gate fails closed: it drives the relay
// off and returns ErrFault without scheduling anything.
func (g *Gate) ArmManual(d time.Duration, onComplete func()) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	g.cancelLocked()

	if err := g.relay.Energize(); err != nil {
		if offErr := g.relay.Deenergize(); offErr != nil {
			g.logger.Printf("relay de-energize after failed energize: %v", offErr)
		}
		return fmt.Errorf("%w: energize: %v", ErrFault, err)
	}

	g.mode = manual
	gen := g.gen
	g.timer = time.AfterFunc(d, func() { g.finishManual(gen, onComplete) })
	return nil
}

func (g *Gate) finishManual(gen uint64, onComplete func()) {
	g.mu.Lock()
	if gen != g.gen {
		// Superseded or cancelled; the canceller already handled the relay.
		g.mu.Unlock()
		return
	}
	g.mode = idle
	g.timer = nil
	if err := g.relay.Deenergize(); err != nil {
		g.logger.Printf("relay de-energize at countdown expiry: %v", err)
	}
	g.mu.Unlock()

	if onComplete != nil {
		onComplete()
	}
}

// ArmTouchless schedules fire after d without touching the relay; the
// fired action is expected to run the manual admission path itself. Any
// active countdown is cancelled first.
func (g *Gate) ArmTouchless(d time.Duration, fire func()) {
	g.mu.Lock()
	defer g.mu.Unlock()

	g.cancelLocked()

	g.mode = touchless
	gen := g.gen
	g.timer = time.AfterFunc(d, func() {
		g.mu.Lock()
		if gen != g.gen {
			g.mu.Unlock()
			return
		}
		g.mode = idle
		g.timer = nil
		g.mu.Unlock()

		fire()
	})
}

// Cancel aborts any active countdown. The relay is de-energized before
// Cancel returns, and no completion callback will be delivered.
func (g *Gate) Cancel() {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.cancelLocked()
}

// cancelLocked invalidates pending timers and leaves the relay off.
// Caller holds g.mu.
func (g *Gate) cancelLocked() {
	g.gen++
	if g.timer != nil {
		g.timer.Stop()
		g.timer = nil
	}
	if g.mode == manual {
		if err := g.relay.Deenergize(); err != nil {
			g.logger.Printf("relay de-energize on cancel: %v", err)
		}
	}
	g.mode = idle
}

// Armed reports whether a countdown currently owns the gate.
func (g *Gate) Armed() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.mode != idle
}
