package mux

import (
	"go.uber.org/zap"

	"github.com/ib-77/fastmux/pkg/fastmux/registry"
	"github.com/ib-77/fastmux/pkg/fastmux/sink"
)

// write fans chunk out to every registered peer. done is the producer's
// continuation for this chunk.
func (m *Multiplexer[T]) write(chunk T, done func(error)) {
	d := newDispatch(m, done)
	m.current = d

	// pushing can complete peers synchronously, so work from a snapshot
	for _, p := range m.reg.Peers() {
		if !m.reg.Has(p) {
			continue
		}
		if m.reg.Waiting(p) {
			m.evict(p)
			continue
		}
		if p.Push(chunk) {
			continue
		}
		if !m.reg.Has(p) {
			continue
		}
		m.track(d, p)
	}

	d.dispatched(m.reg.Len())
}

func (m *Multiplexer[T]) evict(p sink.Sink[T]) {
	mode := registry.Complete
	if m.opts.emitLaggard {
		mode = registry.Laggard
	}
	m.log.Warn("evicting laggard peer", zap.String("peer", label(p)), zap.Bool("completed", mode == registry.Complete))
	m.reg.Remove(p, mode)
}

// track marks p as waiting for d's chunk and follows whichever of its ready,
// finished or removal signals comes first.
func (m *Multiplexer[T]) track(d *dispatch[T], p sink.Sink[T]) {
	d.numWaiting++
	m.reg.SetWaiting(p, true)

	var offReady, offFinish, offRemove func()
	detach := func() {
		offReady()
		offFinish()
		offRemove()
	}

	offReady = p.OnReady(func() {
		detach()
		m.reg.SetWaiting(p, false)
		d.peerDrained()
	})
	// a finish is seen by the peer-level listener first, which removes p
	// and lands in offRemove below
	offFinish = p.OnFinished(func() {
		detach()
		d.peerGone()
	})
	offRemove = m.reg.OnRemove(p, func() {
		offReady()
		offFinish()
		d.peerGone()
	})
}
