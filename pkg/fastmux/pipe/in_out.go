package pipe

import (
	"context"

	"github.com/ib-77/fastmux/pkg/fastmux/loop"
	"github.com/ib-77/fastmux/pkg/fastmux/sink"
)

type FromChanHandlers struct {
	// OnPaused is called on the loop each time dst asks the pump to wait.
	OnPaused func()
	// OnDone is called once the input channel is closed and completion of
	// dst was requested.
	OnDone func()
}

// FromChan pushes every value received from in into dst on loop l, waiting
// for dst to drain whenever Push returns false. When in is closed completion
// of dst is requested. It runs in the caller's goroutine, which must not be
// the loop's.
//
// A dst implementing sink.PipeNotifier is told about in when the pump starts,
// and again if ctx stops the pump before in is closed.
func FromChan[T any](ctx context.Context, l *loop.Loop, in <-chan T, dst sink.Sink[T], handlers FromChanHandlers) error {
	pn, _ := dst.(sink.PipeNotifier)
	if pn != nil {
		if err := l.Do(ctx, func() { pn.NotifyPipe(in) }); err != nil {
			return err
		}
	}
	stopped := func() error {
		if pn != nil {
			l.Post(func() { pn.NotifyUnpipe(in) })
		}
		return ctx.Err()
	}

	for {
		var (
			v  T
			ok bool
		)
		select {
		case v, ok = <-in:
		case <-ctx.Done():
			return stopped()
		}

		if !ok {
			return l.Do(ctx, func() {
				dst.RequestCompletion()
				if handlers.OnDone != nil {
					handlers.OnDone()
				}
			})
		}

		ready := make(chan struct{})
		var off func()
		err := l.Do(ctx, func() {
			if dst.Push(v) {
				close(ready)
				return
			}
			if handlers.OnPaused != nil {
				handlers.OnPaused()
			}
			off = dst.OnReady(func() { close(ready) })
		})
		if err != nil {
			return stopped()
		}

		select {
		case <-ready:
		case <-ctx.Done():
			if off != nil {
				l.Post(off)
			}
			return stopped()
		}
	}
}

// FromSlice is FromChan over a fixed list of values.
func FromSlice[T any](ctx context.Context, l *loop.Loop, values []T, dst sink.Sink[T]) error {
	in := make(chan T)
	go func() {
		defer close(in)
		for _, v := range values {
			select {
			case in <- v:
			case <-ctx.Done():
				return
			}
		}
	}()
	return FromChan(ctx, l, in, dst, FromChanHandlers{})
}

// ToChan returns a sink that forwards each chunk to out from its own
// goroutine. A write completes once out received the chunk, so a slow reader
// of out makes the sink ask its producer to wait. out is closed when the sink
// finishes.
func ToChan[T any](ctx context.Context, l *loop.Loop, out chan<- T, opts ...sink.WritableOption) *sink.Writable[T] {
	write := func(chunk T, done func(error)) {
		go func() {
			select {
			case out <- chunk:
				l.Post(func() { done(nil) })
			case <-ctx.Done():
				l.Post(func() { done(ctx.Err()) })
			}
		}()
	}
	opts = append(opts, sink.WithFinal(func() { close(out) }))
	return sink.NewWritable[T](write, opts...)
}

// Collect reads out until it is closed or ctx is done.
func Collect[T any](ctx context.Context, out <-chan T) []T {
	res := make([]T, 0)
	for {
		select {
		case v, ok := <-out:
			if !ok {
				return res
			}
			res = append(res, v)
		case <-ctx.Done():
			return res
		}
	}
}
