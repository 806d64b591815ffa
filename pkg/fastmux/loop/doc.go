// Package loop provides the single-owner event loop that a multiplexer, its
// registry and its peers are mutated on. "Next turn" in the rest of the module
// means a task posted to this loop.
package loop
