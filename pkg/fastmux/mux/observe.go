package mux

import (
	"github.com/ib-77/fastmux/pkg/fastmux"
	"github.com/ib-77/fastmux/pkg/fastmux/sink"
)

// OnEmpty fires whenever the last peer is removed. An empty multiplexer
// accepts and discards every chunk.
func (m *Multiplexer[T]) OnEmpty(fn func()) func() {
	return m.reg.OnEmpty(fn)
}

// OnWaiting fires when every peer that received the current chunk asked to
// wait. Calling force resolves the chunk without waiting any longer, which is
// how a caller builds a timeout.
func (m *Multiplexer[T]) OnWaiting(fn func(force func())) func() {
	return m.waiting.On(fn)
}

// OnPeerReady fires each time a peer drains while every receiver was waiting.
// With at least one listener the chunk resolves only when a listener calls
// force; without listeners the first drained peer resolves it.
func (m *Multiplexer[T]) OnPeerReady(fn func(numWaiting, total int, force func())) func() {
	return m.peerReady.On(func(e readyEvent) {
		fn(e.numWaiting, e.total, e.force)
	})
}

func (m *Multiplexer[T]) OnLaggard(fn func(peer sink.Sink[T])) func() {
	return m.reg.OnLaggard(fn)
}

func (m *Multiplexer[T]) OnPeerAdded(fn func(peer sink.Sink[T])) func() {
	return m.reg.OnAdded(fn)
}

func (m *Multiplexer[T]) OnPeerRemoved(fn func(peer sink.Sink[T])) func() {
	return m.reg.OnRemoved(fn)
}

// OnSettled fires once per chunk, when it resolves.
func (m *Multiplexer[T]) OnSettled(fn func(d fastmux.Dispatch)) func() {
	return m.settled.On(fn)
}

// WaitForAll is an OnPeerReady listener that holds the chunk until every
// receiver drained.
func WaitForAll(numWaiting, _ int, force func()) {
	if numWaiting == 0 {
		force()
	}
}
