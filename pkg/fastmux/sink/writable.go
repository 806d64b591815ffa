package sink

import (
	"github.com/ib-77/fastmux/pkg/fastmux"
	"github.com/ib-77/fastmux/pkg/fastmux/event"
)

// WriteFunc delivers one chunk. done must be called exactly once, possibly
// from a later loop turn.
type WriteFunc[T any] func(chunk T, done func(error))

type writableConfig struct {
	highWaterMark int
	final         func()
	onError       func(error)
}

type WritableOption func(*writableConfig)

// WithHighWaterMark sets how many chunks (queued plus in flight) make Push
// return false. Default 1.
func WithHighWaterMark(n int) WritableOption {
	return func(c *writableConfig) {
		if n > 0 {
			c.highWaterMark = n
		}
	}
}

// WithFinal runs fn after the queue drained on completion, before OnFinished
// listeners are called.
func WithFinal(fn func()) WritableOption {
	return func(c *writableConfig) {
		c.final = fn
	}
}

// WithErrorHook runs fn for every raised error after the OnError listeners.
func WithErrorHook(fn func(error)) WritableOption {
	return func(c *writableConfig) {
		c.onError = fn
	}
}

// Writable turns a WriteFunc into a Sink: chunks are queued in FIFO order and
// written one at a time.
type Writable[T any] struct {
	write WriteFunc[T]
	cfg   writableConfig

	queue     []T
	writing   bool
	driving   bool
	needReady bool
	ending    bool
	finished  bool

	ready  event.Emitter[struct{}]
	finish event.Emitter[struct{}]
	errs   event.Emitter[error]
}

func NewWritable[T any](write WriteFunc[T], opts ...WritableOption) *Writable[T] {
	cfg := writableConfig{highWaterMark: 1}
	for _, opt := range opts {
		opt(&cfg)
	}
	return &Writable[T]{write: write, cfg: cfg}
}

func (w *Writable[T]) Push(chunk T) bool {
	if w.ending || w.finished {
		w.RaiseError(fastmux.ErrWriteAfterEnd)
		return false
	}

	w.queue = append(w.queue, chunk)
	w.drive()

	// checked after drive: a write completed inline leaves nothing to wait for
	ok := w.Len() < w.cfg.highWaterMark
	if !ok {
		w.needReady = true
	}
	return ok
}

func (w *Writable[T]) OnReady(fn func()) func() {
	return w.ready.Once(func(struct{}) { fn() })
}

func (w *Writable[T]) OnFinished(fn func()) func() {
	return w.finish.Once(func(struct{}) { fn() })
}

func (w *Writable[T]) OnError(fn func(error)) func() {
	return w.errs.On(fn)
}

func (w *Writable[T]) RaiseError(err error) {
	w.errs.Emit(err)
	if w.cfg.onError != nil {
		w.cfg.onError(err)
	}
}

func (w *Writable[T]) RequestCompletion() {
	if w.ending || w.finished {
		return
	}
	w.ending = true
	w.drive()
}

// Len is the number of chunks queued or in flight.
func (w *Writable[T]) Len() int {
	n := len(w.queue)
	if w.writing {
		n++
	}
	return n
}

func (w *Writable[T]) Ending() bool {
	return w.ending
}

func (w *Writable[T]) Finished() bool {
	return w.finished
}

func (w *Writable[T]) drive() {
	if w.driving {
		return
	}
	w.driving = true
	for !w.writing && len(w.queue) > 0 {
		var zero T
		chunk := w.queue[0]
		w.queue[0] = zero
		w.queue = w.queue[1:]

		w.writing = true
		w.write(chunk, w.completion())
	}
	w.driving = false

	if w.writing || len(w.queue) > 0 {
		return
	}
	if w.needReady {
		w.needReady = false
		w.ready.Emit(struct{}{})
	}
	// ready listeners may have pushed again
	if w.ending && !w.finished && !w.writing && len(w.queue) == 0 {
		w.finished = true
		if w.cfg.final != nil {
			w.cfg.final()
		}
		w.finish.Emit(struct{}{})
	}
}

func (w *Writable[T]) completion() func(error) {
	called := false
	return func(err error) {
		if called {
			panic(fastmux.ErrDoubleResolution)
		}
		called = true
		w.writing = false
		if err != nil {
			w.RaiseError(err)
		}
		w.drive()
	}
}
