package mux

import "go.uber.org/zap"

type options struct {
	completePeersOnFinish bool
	emitLaggard           bool
	highWaterMark         int
	log                   *zap.Logger
}

type Option func(*options)

func defaultOptions() options {
	return options{
		completePeersOnFinish: true,
		emitLaggard:           false,
		highWaterMark:         1,
		log:                   zap.NewNop(),
	}
}

// WithCompletePeersOnFinish controls whether finishing the multiplexer asks
// every remaining peer to complete. Default true.
func WithCompletePeersOnFinish(v bool) Option {
	return func(o *options) {
		o.completePeersOnFinish = v
	}
}

// WithEmitLaggard flags peers that cannot keep up with a laggard observation
// instead of completing them. Default false.
func WithEmitLaggard(v bool) Option {
	return func(o *options) {
		o.emitLaggard = v
	}
}

// WithHighWaterMark sets the producer-side queue limit. Default 1.
func WithHighWaterMark(n int) Option {
	return func(o *options) {
		if n > 0 {
			o.highWaterMark = n
		}
	}
}

func WithLogger(log *zap.Logger) Option {
	return func(o *options) {
		if log != nil {
			o.log = log
		}
	}
}
