package relay

import "sync"

// Fake is an in-memory relay for tests and dev runs. It records every
// state transition and can be made to fail on demand.
type Fake struct {
	mu          sync.Mutex
	energized   bool
	transitions []bool
	failErr     error
}

func NewFake() *Fake {
	return &Fake{}
}

// Fail makes every subsequent call return err (pass nil to recover).
func (f *Fake) Fail(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.failErr = err
}

// Transitions returns the sequence of states the relay was driven
// through. Test-only helper.
func (f *Fake) Transitions() []bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]bool, len(f.transitions))
	copy(out, f.transitions)
	return out
}

func (f *Fake) Energize() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failErr != nil {
		return f.failErr
	}
	f.energized = true
	f.transitions = append(f.transitions, true)
	return nil
}

func (f *Fake) Deenergize() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failErr != nil {
		return f.failErr
	}
	f.energized = false
	f.transitions = append(f.transitions, false)
	return nil
}

func (f *Fake) Status() (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failErr != nil {
		return false, f.failErr
	}
	return f.energized, nil
}
