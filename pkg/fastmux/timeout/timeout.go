// Package timeout composes a wait limit on top of a multiplexer's escape
// hatch: a chunk that every peer is still holding after the limit is forced
// ready.
package timeout

import (
	"time"

	"github.com/juju/clock"

	"github.com/ib-77/fastmux/pkg/fastmux"
	"github.com/ib-77/fastmux/pkg/fastmux/loop"
	"github.com/ib-77/fastmux/pkg/fastmux/mux"
)

// ForceAfter forces every waiting chunk of m ready once d elapsed on clk.
// Timers fire on the clock's goroutine and post the force to sched, the loop
// owning m. The returned function stops the behavior and any running timer.
func ForceAfter[T any](m *mux.Multiplexer[T], sched loop.Scheduler, clk clock.Clock, d time.Duration) (off func()) {
	var timer clock.Timer
	stop := func() {
		if timer != nil {
			timer.Stop()
			timer = nil
		}
	}

	offWaiting := m.OnWaiting(func(force func()) {
		stop()
		timer = clk.AfterFunc(d, func() {
			sched.Post(force)
		})
	})
	offSettled := m.OnSettled(func(fastmux.Dispatch) {
		stop()
	})

	return func() {
		offWaiting()
		offSettled()
		stop()
	}
}
