// Package registry keeps the peers of a multiplexer in insertion order along
// with each peer's waiting flag.
package registry

import (
	"iter"

	"github.com/ib-77/fastmux/pkg/fastmux"
	"github.com/ib-77/fastmux/pkg/fastmux/event"
	"github.com/ib-77/fastmux/pkg/fastmux/sink"
)

// Peer is any comparable handle that can be asked to complete.
type Peer interface {
	comparable
	RequestCompletion()
}

// Mode selects what happens to a peer on removal.
type Mode int

const (
	// Complete asks the peer to finish.
	Complete Mode = iota
	// Keep leaves the peer running.
	Keep
	// Laggard emits a laggard observation on both sides and leaves the peer
	// running.
	Laggard
)

type entry struct {
	waiting bool
	removed event.Emitter[struct{}]
}

type Registry[P Peer] struct {
	order   []P
	entries map[P]*entry

	added   event.Emitter[P]
	dropped event.Emitter[P]
	laggard event.Emitter[P]
	empty   event.Emitter[struct{}]
}

func New[P Peer]() *Registry[P] {
	return &Registry[P]{entries: make(map[P]*entry)}
}

// Add registers p with waiting cleared. detach functions run when p is
// removed. peer_added is emitted once they are in place.
func (r *Registry[P]) Add(p P, detach ...func()) error {
	if fastmux.IsNil(p) {
		return fastmux.ErrNilPeer
	}
	if _, ok := r.entries[p]; ok {
		return fastmux.ErrDuplicatePeer
	}

	e := &entry{}
	for _, fn := range detach {
		e.removed.On(func(struct{}) { fn() })
	}
	r.entries[p] = e
	r.order = append(r.order, p)

	r.added.Emit(p)
	return nil
}

// Remove deletes p and reports whether it was registered. The peer's detach
// hooks run before it is completed or flagged.
func (r *Registry[P]) Remove(p P, mode Mode) bool {
	e, ok := r.entries[p]
	if !ok {
		return false
	}

	delete(r.entries, p)
	for i, cur := range r.order {
		if cur == p {
			r.order = append(r.order[:i], r.order[i+1:]...)
			break
		}
	}
	e.waiting = false
	e.removed.Emit(struct{}{})
	e.removed.Clear()

	switch mode {
	case Laggard:
		r.laggard.Emit(p)
		if n, ok := any(p).(sink.LaggardNotifier); ok {
			n.NotifyLaggard()
		}
	case Complete:
		p.RequestCompletion()
	}

	r.dropped.Emit(p)
	if len(r.order) == 0 {
		r.empty.Emit(struct{}{})
	}
	return true
}

// OnRemove runs fn if p is removed. It is a no-op for unknown peers.
func (r *Registry[P]) OnRemove(p P, fn func()) (off func()) {
	e, ok := r.entries[p]
	if !ok {
		return func() {}
	}
	return e.removed.Once(func(struct{}) { fn() })
}

func (r *Registry[P]) Has(p P) bool {
	_, ok := r.entries[p]
	return ok
}

func (r *Registry[P]) Waiting(p P) bool {
	e, ok := r.entries[p]
	return ok && e.waiting
}

// SetWaiting updates the flag of a registered peer and reports whether p was
// found.
func (r *Registry[P]) SetWaiting(p P, waiting bool) bool {
	e, ok := r.entries[p]
	if ok {
		e.waiting = waiting
	}
	return ok
}

func (r *Registry[P]) Len() int {
	return len(r.order)
}

// Peers returns a snapshot in insertion order.
func (r *Registry[P]) Peers() []P {
	out := make([]P, len(r.order))
	copy(out, r.order)
	return out
}

// All yields (peer, waiting) pairs in insertion order. Each iteration starts
// from the peers registered at that moment and skips any removed on the way.
func (r *Registry[P]) All() iter.Seq2[P, bool] {
	return func(yield func(P, bool) bool) {
		for _, p := range r.Peers() {
			e, ok := r.entries[p]
			if !ok {
				continue
			}
			if !yield(p, e.waiting) {
				return
			}
		}
	}
}

func (r *Registry[P]) OnAdded(fn func(P)) func() {
	return r.added.On(fn)
}

func (r *Registry[P]) OnRemoved(fn func(P)) func() {
	return r.dropped.On(fn)
}

func (r *Registry[P]) OnLaggard(fn func(P)) func() {
	return r.laggard.On(fn)
}

func (r *Registry[P]) OnEmpty(fn func()) func() {
	return r.empty.On(func(struct{}) { fn() })
}
