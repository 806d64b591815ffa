// Package event provides typed listener lists. An Emitter is owned by a single
// loop and is not safe for concurrent use.
package event

type listener[A any] struct {
	fn      func(A)
	once    bool
	removed bool
}

// Emitter delivers values of type A to its listeners in subscription order.
type Emitter[A any] struct {
	listeners []*listener[A]
}

// On subscribes fn until the returned function is called.
func (e *Emitter[A]) On(fn func(A)) (off func()) {
	return e.add(fn, false)
}

// Once subscribes fn for the next emission only.
func (e *Emitter[A]) Once(fn func(A)) (off func()) {
	return e.add(fn, true)
}

func (e *Emitter[A]) add(fn func(A), once bool) func() {
	l := &listener[A]{fn: fn, once: once}
	e.listeners = append(e.listeners, l)
	return func() {
		e.remove(l)
	}
}

func (e *Emitter[A]) remove(l *listener[A]) {
	if l.removed {
		return
	}
	l.removed = true
	for i, cur := range e.listeners {
		if cur == l {
			e.listeners = append(e.listeners[:i], e.listeners[i+1:]...)
			return
		}
	}
}

// Emit calls every listener subscribed when the emission starts. A listener
// removed by an earlier one during the same emission is skipped. Emit reports
// whether there was at least one listener.
func (e *Emitter[A]) Emit(a A) bool {
	if len(e.listeners) == 0 {
		return false
	}
	snapshot := make([]*listener[A], len(e.listeners))
	copy(snapshot, e.listeners)

	for _, l := range snapshot {
		if l.removed {
			continue
		}
		if l.once {
			e.remove(l)
		}
		l.fn(a)
	}
	return true
}

func (e *Emitter[A]) Len() int {
	return len(e.listeners)
}

func (e *Emitter[A]) Clear() {
	for _, l := range e.listeners {
		l.removed = true
	}
	e.listeners = nil
}
