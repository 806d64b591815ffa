package sink

// Sink is the readiness contract shared by peers and the multiplexer.
type Sink[T any] interface {
	// Push offers a chunk and reports whether more can be pushed right away.
	Push(chunk T) bool
	// OnReady fires once, when a sink that returned false from Push drains.
	OnReady(fn func()) (cancel func())
	// OnFinished fires once, when the sink reaches its terminal success state.
	OnFinished(fn func()) (cancel func())
	// RequestCompletion asks the sink to finish once queued data is flushed.
	RequestCompletion()
	OnError(fn func(error)) (cancel func())
	RaiseError(err error)
}

// LaggardNotifier is implemented by peers that want to hear about being
// evicted for not keeping up.
type LaggardNotifier interface {
	NotifyLaggard()
}

// PipeNotifier is implemented by sinks that want to know which producer feeds
// them. src identifies the producer and must be comparable.
type PipeNotifier interface {
	NotifyPipe(src any)
	NotifyUnpipe(src any)
}
