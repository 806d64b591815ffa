package fastmux

import (
	"errors"
	"fmt"
)

var (
	ErrDuplicatePeer    = errors.New("peer already registered")
	ErrNilPeer          = errors.New("nil peer")
	ErrWriteAfterEnd    = errors.New("write after completion requested")
	ErrDoubleResolution = errors.New("write continuation invoked more than once")
)

// PeerError is raised on a multiplexer when one of its peers reports an error.
// The peer stays registered.
type PeerError struct {
	Peer any
	Err  error
}

func (e *PeerError) Error() string {
	return fmt.Sprintf("peer error: %v", e.Err)
}

func (e *PeerError) Unwrap() error {
	return e.Err
}

// MultiplexerError is delivered to every registered peer when the multiplexer
// identified by Source raises an error.
type MultiplexerError struct {
	Source any
	Err    error
}

func (e *MultiplexerError) Error() string {
	return fmt.Sprintf("multiplexer error: %v", e.Err)
}

func (e *MultiplexerError) Unwrap() error {
	return e.Err
}
