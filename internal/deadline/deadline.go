// Package deadline provides single-fire timers for bounding process
// lifetimes. Firing and stopping are mutually exclusive: exactly one
// side wins, so a timeout handler and an exit handler can share a timer
// without ad hoc flag juggling.
package deadline

import (
	"sync/atomic"
	"time"
)

// Timer is a single-fire deadline.
type Timer struct {
	timer *time.Timer
	done  atomic.Bool
}

// Arm schedules fire to run once d elapses. The fire function runs at
// most once, and never after a successful Stop.
func Arm(d time.Duration, fire func()) *Timer {
	t := &Timer{}
	t.timer = time.AfterFunc(d, func() {
		if t.done.CompareAndSwap(false, true) {
			fire()
		}
	})
	return t
}

// Stop disarms the timer. It reports whether it won the race against
// the deadline; false means the timer already fired or was already
// stopped. Stop is safe to call any number of times, from any
// goroutine.
func (t *Timer) Stop() bool {
	if t.done.CompareAndSwap(false, true) {
		t.timer.Stop()
		return true
	}
	return false
}
