package loop

import (
	"context"
	"sync"

	"go.uber.org/zap"
)

// Scheduler runs fn on a later turn of the loop that owns the caller's state.
type Scheduler interface {
	Post(fn func())
}

type Option func(*Loop)

func WithLogger(log *zap.Logger) Option {
	return func(l *Loop) {
		if log != nil {
			l.log = log
		}
	}
}

// Loop is a FIFO task queue executed by a single owner. It can be stepped
// with RunPending or driven by Run in a dedicated goroutine. Post is safe for
// concurrent use; everything else must be called from the owner.
type Loop struct {
	mu    sync.Mutex
	tasks []func()
	wake  chan struct{}
	log   *zap.Logger
}

func New(opts ...Option) *Loop {
	l := &Loop{
		wake: make(chan struct{}, 1),
		log:  zap.NewNop(),
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

func (l *Loop) Post(fn func()) {
	l.mu.Lock()
	l.tasks = append(l.tasks, fn)
	l.mu.Unlock()

	select {
	case l.wake <- struct{}{}:
	default:
	}
}

// RunPending runs one turn: the tasks queued before the call. Tasks posted
// while it runs wait for the next turn. It returns the number of tasks run.
func (l *Loop) RunPending() int {
	l.mu.Lock()
	tasks := l.tasks
	l.tasks = nil
	l.mu.Unlock()

	for _, fn := range tasks {
		fn()
	}
	return len(tasks)
}

// RunUntilIdle runs turns until the queue is empty.
func (l *Loop) RunUntilIdle() int {
	total := 0
	for {
		n := l.RunPending()
		if n == 0 {
			return total
		}
		total += n
	}
}

func (l *Loop) Pending() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.tasks)
}

// Run executes tasks as they are posted until ctx is done.
func (l *Loop) Run(ctx context.Context) error {
	l.log.Debug("loop started")
	defer l.log.Debug("loop stopped")

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-l.wake:
			for l.RunPending() > 0 {
				if ctx.Err() != nil {
					return ctx.Err()
				}
			}
		}
	}
}

// Do posts fn and blocks until it has run. It must not be called from the
// loop goroutine itself.
func (l *Loop) Do(ctx context.Context, fn func()) error {
	done := make(chan struct{})
	l.Post(func() {
		defer close(done)
		fn()
	})

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
