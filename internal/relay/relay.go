// Package relay abstracts the physical power relay that drives the
// parking validation machine.
package relay

// Relay is the hardware contract. Implementations return errors on
// transient faults (disconnected device, bad read) instead of panicking;
// callers treat a faulted relay as de-energized and fail closed.
type Relay interface {
	Energize() error
	Deenergize() error
	Status() (bool, error)
}
