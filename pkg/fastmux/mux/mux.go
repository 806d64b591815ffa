package mux

import (
	"errors"
	"fmt"
	"reflect"

	"go.uber.org/zap"

	"github.com/ib-77/fastmux/pkg/fastmux"
	"github.com/ib-77/fastmux/pkg/fastmux/event"
	"github.com/ib-77/fastmux/pkg/fastmux/loop"
	"github.com/ib-77/fastmux/pkg/fastmux/registry"
	"github.com/ib-77/fastmux/pkg/fastmux/sink"
)

// Multiplexer is a sink that fans every chunk out to its peers and drains as
// soon as the fastest of them is ready again.
type Multiplexer[T any] struct {
	w     *sink.Writable[T]
	reg   *registry.Registry[sink.Sink[T]]
	sched loop.Scheduler
	opts  options
	log   *zap.Logger

	waiting   event.Emitter[func()]
	peerReady event.Emitter[readyEvent]
	settled   event.Emitter[fastmux.Dispatch]

	current *dispatch[T]
}

var (
	_ sink.Sink[[]byte] = (*Multiplexer[[]byte])(nil)
	_ sink.PipeNotifier = (*Multiplexer[[]byte])(nil)
)

// New creates an empty multiplexer. sched must be the loop that owns the
// multiplexer and its peers.
func New[T any](sched loop.Scheduler, opts ...Option) *Multiplexer[T] {
	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}

	m := &Multiplexer[T]{
		reg:   registry.New[sink.Sink[T]](),
		sched: sched,
		opts:  o,
		log:   o.log.Named("fastmux"),
	}
	m.w = sink.NewWritable[T](m.write,
		sink.WithHighWaterMark(o.highWaterMark),
		sink.WithFinal(m.final),
		sink.WithErrorHook(m.broadcast))
	return m
}

// AddPeer registers p. The multiplexer follows p's finish and error signals
// until p is removed.
func (m *Multiplexer[T]) AddPeer(p sink.Sink[T]) error {
	if fastmux.IsNil(p) {
		return fastmux.ErrNilPeer
	}
	if m.reg.Has(p) {
		return fastmux.ErrDuplicatePeer
	}

	offFinish := p.OnFinished(func() {
		m.log.Debug("peer finished", zap.String("peer", label(p)))
		m.reg.Remove(p, registry.Keep)
	})
	offErr := p.OnError(func(err error) {
		var me *fastmux.MultiplexerError
		if errors.As(err, &me) && me.Source == any(m) {
			return
		}
		m.log.Warn("peer error", zap.String("peer", label(p)), zap.Error(err))
		m.w.RaiseError(&fastmux.PeerError{Peer: p, Err: err})
	})

	if err := m.reg.Add(p, offFinish, offErr); err != nil {
		offFinish()
		offErr()
		return err
	}
	m.log.Info("peer added", zap.String("peer", label(p)), zap.Int("peers", m.reg.Len()))
	return nil
}

// RemovePeer detaches p, asking it to complete when complete is true. It
// reports whether p was registered.
func (m *Multiplexer[T]) RemovePeer(p sink.Sink[T], complete bool) bool {
	mode := registry.Keep
	if complete {
		mode = registry.Complete
	}
	removed := m.reg.Remove(p, mode)
	if removed {
		m.log.Info("peer removed", zap.String("peer", label(p)), zap.Bool("completed", complete))
	}
	return removed
}

func (m *Multiplexer[T]) Peers() []sink.Sink[T] {
	return m.reg.Peers()
}

func (m *Multiplexer[T]) Len() int {
	return m.reg.Len()
}

// Waiting reports whether p has not drained the last chunk pushed to it.
func (m *Multiplexer[T]) Waiting(p sink.Sink[T]) bool {
	return m.reg.Waiting(p)
}

func (m *Multiplexer[T]) Push(chunk T) bool {
	return m.w.Push(chunk)
}

func (m *Multiplexer[T]) OnReady(fn func()) func() {
	return m.w.OnReady(fn)
}

func (m *Multiplexer[T]) OnFinished(fn func()) func() {
	return m.w.OnFinished(fn)
}

func (m *Multiplexer[T]) RequestCompletion() {
	m.w.RequestCompletion()
}

func (m *Multiplexer[T]) Finished() bool {
	return m.w.Finished()
}

func (m *Multiplexer[T]) OnError(fn func(error)) func() {
	return m.w.OnError(fn)
}

// RaiseError notifies the multiplexer's error listeners and every registered
// peer.
func (m *Multiplexer[T]) RaiseError(err error) {
	m.w.RaiseError(err)
}

// NotifyPipe tells every registered peer that src started feeding the
// multiplexer.
func (m *Multiplexer[T]) NotifyPipe(src any) {
	m.log.Debug("producer attached", zap.String("src", label(src)))
	m.forwardPipe(func(n sink.PipeNotifier) { n.NotifyPipe(src) })
}

// NotifyUnpipe tells every registered peer that src stopped feeding the
// multiplexer.
func (m *Multiplexer[T]) NotifyUnpipe(src any) {
	m.log.Debug("producer detached", zap.String("src", label(src)))
	m.forwardPipe(func(n sink.PipeNotifier) { n.NotifyUnpipe(src) })
}

func (m *Multiplexer[T]) forwardPipe(fn func(sink.PipeNotifier)) {
	for p := range m.reg.All() {
		if n, ok := p.(sink.PipeNotifier); ok {
			fn(n)
		}
	}
}

func (m *Multiplexer[T]) broadcast(err error) {
	var pe *fastmux.PeerError
	if errors.As(err, &pe) {
		return
	}
	wrapped := &fastmux.MultiplexerError{Source: m, Err: err}
	for _, p := range m.reg.Peers() {
		if m.reg.Has(p) {
			p.RaiseError(wrapped)
		}
	}
}

func (m *Multiplexer[T]) final() {
	mode := registry.Complete
	if !m.opts.completePeersOnFinish {
		mode = registry.Keep
	}
	m.log.Info("finished", zap.Int("peers", m.reg.Len()), zap.Bool("complete_peers", m.opts.completePeersOnFinish))
	for _, p := range m.reg.Peers() {
		m.reg.Remove(p, mode)
	}
}

func label(p any) string {
	if reflect.ValueOf(p).Kind() == reflect.Pointer {
		return fmt.Sprintf("%T@%p", p, p)
	}
	return fmt.Sprintf("%T(%v)", p, p)
}
