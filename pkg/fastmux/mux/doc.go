// Package mux implements Multiplexer, a sink that writes every chunk to a
// dynamic set of peer sinks and goes at the speed of the fastest one.
//
// Behavior per chunk:
// - every registered peer is pushed the chunk in insertion order
// - a peer still waiting on the previous chunk is a laggard: it is completed,
//   or flagged with a laggard observation when WithEmitLaggard is set
// - if any peer accepted right away (or there are no peers) the multiplexer is
//   ready on the next loop turn
// - otherwise OnWaiting fires and the chunk resolves on the first peer that
//   drains, on OnPeerReady listeners calling force, or on the waiting force
//
// Peer errors reach the multiplexer's OnError wrapped in fastmux.PeerError;
// errors raised on the multiplexer reach every peer as fastmux.MultiplexerError.
//
// A Multiplexer and its peers belong to one loop.Loop and must only be used
// from it.
package mux
