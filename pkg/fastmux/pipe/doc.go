// Package pipe connects Go channels to sinks owned by a loop.
//
// - FromChan/FromSlice: pump values into a sink, honoring its backpressure
// - ToChan: a sink that hands chunks to a channel reader
// - Collect: drain a channel into a slice
package pipe
