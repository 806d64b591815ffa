// Package sink defines the readiness contract the multiplexer consumes from its
// peers and exposes to its producer.
//
// - Sink: Push/OnReady/OnFinished/RequestCompletion/OnError/RaiseError
// - Writable: FIFO write queue with a high-water mark built on a WriteFunc
// - Buffer: in-memory Writable whose writes complete on Ack
//
// Everything here is owned by one loop and is not safe for concurrent use.
package sink
