// Package fastmux holds the pieces shared by the multiplexer packages: the
// error taxonomy, the per-chunk Dispatch record and a few small helpers.
//
// The multiplexer itself lives in package mux. Supporting packages:
// - event: typed listener lists used for every observation
// - sink: the Push/OnReady/OnFinished contract plus Writable and Buffer
// - loop: the single-owner event loop all state is mutated on
// - registry: the insertion-ordered peer set
// - pipe, timeout, metrics, config, logging: integration helpers
package fastmux
