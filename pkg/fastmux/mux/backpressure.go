package mux

import (
	"go.uber.org/zap"

	"github.com/ib-77/fastmux/pkg/fastmux"
)

type readyEvent struct {
	numWaiting int
	total      int
	force      func()
}

// dispatch is the backpressure state of one chunk:
// Dispatching -> AllWaiting -> Ready|ForcedReady -> Idle.
type dispatch[T any] struct {
	m          *Multiplexer[T]
	done       func(error)
	record     fastmux.Dispatch
	state      fastmux.State
	numWaiting int
	receivers  int
}

func newDispatch[T any](m *Multiplexer[T], done func(error)) *dispatch[T] {
	return &dispatch[T]{
		m:      m,
		done:   done,
		record: fastmux.NewDispatch(),
		state:  fastmux.Dispatching,
	}
}

// dispatched is called once every peer was offered the chunk.
func (d *dispatch[T]) dispatched(numPeers int) {
	d.receivers = numPeers
	log := d.m.log.With(zap.Stringer("dispatch", d.record.Id()),
		zap.Int("receivers", numPeers), zap.Int("waiting", d.numWaiting))

	if numPeers == 0 || d.numWaiting < numPeers {
		log.Debug("dispatch accepted")
		d.m.sched.Post(func() {
			d.resolve(fastmux.Ready)
		})
		return
	}

	log.Debug("all peers waiting")
	d.state = fastmux.AllWaiting
	d.m.waiting.Emit(d.force)
}

// peerDrained handles a waiting peer becoming ready again.
func (d *dispatch[T]) peerDrained() {
	d.numWaiting--
	if d.state != fastmux.AllWaiting {
		return
	}
	if d.m.peerReady.Emit(readyEvent{numWaiting: d.numWaiting, total: d.receivers, force: d.release}) {
		return
	}
	d.resolve(fastmux.Ready)
}

// peerGone handles a waiting peer that finished or was removed. That is not
// readiness, but once nobody is left waiting the chunk cannot make progress.
func (d *dispatch[T]) peerGone() {
	d.numWaiting--
	if d.state != fastmux.AllWaiting || d.numWaiting > 0 {
		return
	}
	d.m.sched.Post(func() {
		if d.state != fastmux.AllWaiting {
			return
		}
		if d.m.peerReady.Emit(readyEvent{numWaiting: 0, total: d.receivers, force: d.release}) {
			return
		}
		d.resolve(fastmux.Ready)
	})
}

// force resolves the chunk without waiting for any peer. It is safe to call
// any number of times, including after the chunk resolved on its own.
func (d *dispatch[T]) force() {
	d.resolve(fastmux.ForcedReady)
}

// release is the force handed to OnPeerReady listeners: a peer did drain, so
// the chunk counts as ready rather than forced.
func (d *dispatch[T]) release() {
	d.resolve(fastmux.Ready)
}

func (d *dispatch[T]) resolve(state fastmux.State) {
	if d.state == fastmux.Idle {
		return
	}
	d.record = d.record.Settle(state, d.receivers, d.numWaiting)
	d.state = fastmux.Idle
	if d.m.current == d {
		d.m.current = nil
	}

	d.m.log.Debug("dispatch settled", zap.Stringer("dispatch", d.record.Id()),
		zap.Stringer("state", state), zap.Duration("took", d.record.Duration()))
	d.m.settled.Emit(d.record)

	done := d.done
	d.done = nil
	done(nil)
}
