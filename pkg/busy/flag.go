// Package busy provides guards reporting whether a long-running operation currently owns the
// host, during which monitoring controls are rejected.
package busy

import "sync/atomic"

// Flag is an in-process busy gate. Holds nest.
type Flag struct {
	holds atomic.Int32
}

// Hold marks the flag busy until the returned release func is called. Release is idempotent.
func (f *Flag) Hold() (release func()) {
	f.holds.Add(1)
	var once atomic.Bool
	return func() {
		if once.CompareAndSwap(false, true) {
			f.holds.Add(-1)
		}
	}
}

func (f *Flag) Busy() bool {
	return f.holds.Load() > 0
}

// Any reports busy while any of the guards is busy.
type Any []interface{ Busy() bool }

func (a Any) Busy() bool {
	for _, g := range a {
		if g != nil && g.Busy() {
			return true
		}
	}
	return false
}
