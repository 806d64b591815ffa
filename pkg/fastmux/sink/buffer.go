package sink

import "github.com/ib-77/fastmux/pkg/fastmux/event"

// Buffer is an in-memory sink that records every chunk written to it. Each
// write stays pending until Ack or Fail is called.
type Buffer[T any] struct {
	*Writable[T]

	received []T
	pending  []func(error)
	lagged   event.Emitter[struct{}]
	laggards int
	sources  []any
}

func NewBuffer[T any](opts ...WritableOption) *Buffer[T] {
	b := &Buffer[T]{}
	b.Writable = NewWritable[T](b.record, opts...)
	return b
}

func (b *Buffer[T]) record(chunk T, done func(error)) {
	b.received = append(b.received, chunk)
	b.pending = append(b.pending, done)
}

// Ack completes the oldest pending write. It reports false when nothing is
// pending.
func (b *Buffer[T]) Ack() bool {
	return b.complete(nil)
}

// Fail completes the oldest pending write with err.
func (b *Buffer[T]) Fail(err error) bool {
	return b.complete(err)
}

func (b *Buffer[T]) complete(err error) bool {
	if len(b.pending) == 0 {
		return false
	}
	done := b.pending[0]
	b.pending = b.pending[1:]
	done(err)
	return true
}

// Received returns a copy of every chunk handed to the buffer so far.
func (b *Buffer[T]) Received() []T {
	out := make([]T, len(b.received))
	copy(out, b.received)
	return out
}

func (b *Buffer[T]) Pending() int {
	return len(b.pending)
}

func (b *Buffer[T]) NotifyLaggard() {
	b.laggards++
	b.lagged.Emit(struct{}{})
}

func (b *Buffer[T]) OnLaggard(fn func()) func() {
	return b.lagged.On(func(struct{}) { fn() })
}

// Laggards counts the laggard notifications received.
func (b *Buffer[T]) Laggards() int {
	return b.laggards
}

func (b *Buffer[T]) NotifyPipe(src any) {
	b.sources = append(b.sources, src)
}

func (b *Buffer[T]) NotifyUnpipe(src any) {
	for i, cur := range b.sources {
		if cur == src {
			b.sources = append(b.sources[:i], b.sources[i+1:]...)
			return
		}
	}
}

// Sources returns the producers currently piped into the buffer.
func (b *Buffer[T]) Sources() []any {
	out := make([]any, len(b.sources))
	copy(out, b.sources)
	return out
}
