package mux

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ib-77/fastmux/pkg/fastmux"
	"github.com/ib-77/fastmux/pkg/fastmux/loop"
	"github.com/ib-77/fastmux/pkg/fastmux/sink"
)

// newTwoPeers builds a multiplexer with two peers that ask to wait on every
// chunk unless given a larger high-water mark.
func newTwoPeers(t *testing.T, peerOpts [2][]sink.WritableOption, opts ...Option) (*loop.Loop, *Multiplexer[string], *sink.Buffer[string], *sink.Buffer[string]) {
	t.Helper()
	l := loop.New()
	m := New[string](l, opts...)
	p1 := sink.NewBuffer[string](peerOpts[0]...)
	p2 := sink.NewBuffer[string](peerOpts[1]...)
	require.NoError(t, m.AddPeer(p1))
	require.NoError(t, m.AddPeer(p2))
	return l, m, p1, p2
}

func settledStates(m *Multiplexer[string]) *[]fastmux.Dispatch {
	var out []fastmux.Dispatch
	m.OnSettled(func(d fastmux.Dispatch) {
		out = append(out, d)
	})
	return &out
}

func TestMultiplexer_GoesAtSpeedOfFastestPeer(t *testing.T) {
	t.Parallel()

	_, m, p1, p2 := newTwoPeers(t, [2][]sink.WritableOption{})

	assert.False(t, m.Push("first"))
	assert.Equal(t, []string{"first"}, p1.Received())
	assert.Equal(t, []string{"first"}, p2.Received())
	assert.True(t, m.Waiting(p1))
	assert.True(t, m.Waiting(p2))

	// held until a peer drains
	assert.False(t, m.Push("second"))
	assert.Equal(t, []string{"first"}, p1.Received())

	require.True(t, p1.Ack())
	assert.Equal(t, []string{"first", "second"}, p1.Received())
	assert.Equal(t, []string{"first"}, p2.Received())

	// p2 did not drain in time and was asked to complete
	assert.Equal(t, 1, m.Len())
	assert.True(t, p2.Ending())
	assert.False(t, p2.Finished())

	m.Push("third")
	require.True(t, p1.Ack())
	assert.Equal(t, []string{"first", "second", "third"}, p1.Received())
	assert.Equal(t, []string{"first"}, p2.Received())

	require.True(t, p2.Ack())
	assert.True(t, p2.Finished())
	assert.Equal(t, 0, p2.Pending())

	m.Push("fourth")
	require.True(t, p1.Ack())
	assert.Len(t, p1.Received(), 4)
	assert.Len(t, p2.Received(), 1)
}

func TestMultiplexer_MoreThanOnePeerDraining(t *testing.T) {
	t.Parallel()

	_, m, p1, p2 := newTwoPeers(t, [2][]sink.WritableOption{})

	m.Push("first")
	require.True(t, p1.Ack())
	require.True(t, p2.Ack())
	assert.False(t, m.Waiting(p1))
	assert.False(t, m.Waiting(p2))

	m.Push("second")
	assert.Equal(t, []string{"first", "second"}, p1.Received())
	assert.Equal(t, []string{"first", "second"}, p2.Received())
	assert.Equal(t, 2, m.Len())
}

func TestMultiplexer_OnePeerAcceptsImmediately(t *testing.T) {
	t.Parallel()

	l, m, p1, p2 := newTwoPeers(t, [2][]sink.WritableOption{{sink.WithHighWaterMark(1024)}, nil})
	waiting := 0
	m.OnWaiting(func(func()) { waiting++ })

	m.Push("first")
	assert.False(t, m.Waiting(p1))
	assert.True(t, m.Waiting(p2))

	m.Push("second")
	require.True(t, p1.Ack())

	// readiness is deferred to the next loop turn
	assert.Equal(t, []string{"first"}, p1.Received())
	assert.Equal(t, 1, l.RunPending())

	assert.Equal(t, []string{"first", "second"}, p1.Received())
	assert.Equal(t, []string{"first"}, p2.Received())
	assert.Equal(t, 0, waiting)

	require.True(t, p2.Ack())
	assert.True(t, p2.Finished())
}

func TestMultiplexer_AllPeersAcceptImmediately(t *testing.T) {
	t.Parallel()

	big := []sink.WritableOption{sink.WithHighWaterMark(1024)}
	l, m, p1, p2 := newTwoPeers(t, [2][]sink.WritableOption{big, big})
	waiting := 0
	m.OnWaiting(func(func()) { waiting++ })
	settled := settledStates(m)

	m.Push("first")
	m.Push("second")
	p1.Ack()
	p2.Ack()
	assert.Len(t, p1.Received(), 1)
	assert.Empty(t, *settled)

	l.RunPending()

	assert.Equal(t, []string{"first", "second"}, p1.Received())
	assert.Equal(t, []string{"first", "second"}, p2.Received())
	assert.False(t, p2.Finished())
	assert.Equal(t, 0, waiting)
	require.Len(t, *settled, 1)
	assert.Equal(t, fastmux.Ready, (*settled)[0].State())
	assert.Equal(t, 2, (*settled)[0].Receivers())
}

func TestMultiplexer_NoPeersDiscardsData(t *testing.T) {
	t.Parallel()

	l := loop.New()
	m := New[string](l)
	settled := settledStates(m)
	drained := 0
	m.OnReady(func() { drained++ })

	assert.False(t, m.Push("dropped"))
	assert.Empty(t, *settled)

	l.RunPending()
	require.Len(t, *settled, 1)
	assert.Equal(t, 0, (*settled)[0].Receivers())
	assert.Equal(t, 1, drained)
}

func TestMultiplexer_WaitingEmittedOncePerChunk(t *testing.T) {
	t.Parallel()

	_, m, p1, p2 := newTwoPeers(t, [2][]sink.WritableOption{})
	settled := settledStates(m)

	var forces []func()
	m.OnWaiting(func(force func()) {
		forces = append(forces, force)
	})

	m.Push("first")
	require.Len(t, forces, 1)

	m.Push("second")
	assert.Len(t, p1.Received(), 1)

	forces[0]()
	forces[0]()
	forces[0]()

	require.Len(t, *settled, 1)
	assert.True(t, (*settled)[0].IsForced())
	assert.Equal(t, 2, (*settled)[0].Waiting())

	// both peers were still waiting when "second" went out
	assert.Equal(t, 0, m.Len())
	assert.Len(t, p1.Received(), 1)
	assert.Len(t, p2.Received(), 1)

	p1.Ack()
	p2.Ack()
	assert.True(t, p1.Finished())
	assert.True(t, p2.Finished())

	// late forcing after natural completion is harmless
	forces[0]()
	assert.Len(t, *settled, 1)
}

func TestMultiplexer_ForceAfterPeerDrained(t *testing.T) {
	t.Parallel()

	_, m, p1, _ := newTwoPeers(t, [2][]sink.WritableOption{})
	settled := settledStates(m)
	var force func()
	m.OnWaiting(func(f func()) { force = f })

	drained := 0
	m.OnReady(func() { drained++ })

	m.Push("first")
	p1.Ack()
	require.Len(t, *settled, 1)
	assert.Equal(t, fastmux.Ready, (*settled)[0].State())
	assert.Equal(t, 1, drained)

	force()
	force()
	assert.Len(t, *settled, 1)
}

func TestMultiplexer_ReadyObserversControlResolution(t *testing.T) {
	t.Parallel()

	_, m, p1, p2 := newTwoPeers(t, [2][]sink.WritableOption{})
	settled := settledStates(m)

	type ready struct{ waiting, total int }
	var events []ready
	m.OnPeerReady(func(numWaiting, total int, force func()) {
		events = append(events, ready{numWaiting, total})
	})
	m.OnPeerReady(WaitForAll)
	waiting := 0
	m.OnWaiting(func(func()) { waiting++ })

	m.Push("first")
	assert.Equal(t, 1, waiting)

	p1.Ack()
	assert.Equal(t, []ready{{1, 2}}, events)
	assert.Empty(t, *settled)

	p2.Ack()
	assert.Equal(t, []ready{{1, 2}, {0, 2}}, events)
	require.Len(t, *settled, 1)
	assert.Equal(t, fastmux.Ready, (*settled)[0].State())
	assert.Equal(t, 0, (*settled)[0].Waiting())
}

func TestMultiplexer_LaggardsEndedByDefault(t *testing.T) {
	t.Parallel()

	_, m, p1, p2 := newTwoPeers(t, [2][]sink.WritableOption{})
	empty, laggards := 0, 0
	m.OnEmpty(func() { empty++ })
	m.OnLaggard(func(sink.Sink[string]) { laggards++ })
	var removed []sink.Sink[string]
	m.OnPeerRemoved(func(p sink.Sink[string]) { removed = append(removed, p) })
	m.OnWaiting(func(force func()) { force() })

	m.Push("first")
	m.Push("second")

	assert.Equal(t, 1, empty)
	assert.Equal(t, 0, laggards)
	assert.Equal(t, []sink.Sink[string]{p1, p2}, removed)
	assert.True(t, p1.Ending())
	assert.True(t, p2.Ending())
	assert.Equal(t, 0, p1.Laggards())
}

func TestMultiplexer_LaggardsFlagged(t *testing.T) {
	t.Parallel()

	_, m, p1, p2 := newTwoPeers(t, [2][]sink.WritableOption{}, WithEmitLaggard(true))
	empty := 0
	m.OnEmpty(func() { empty++ })
	var laggards []sink.Sink[string]
	m.OnLaggard(func(p sink.Sink[string]) { laggards = append(laggards, p) })
	m.OnWaiting(func(force func()) { force() })

	m.Push("first")
	m.Push("second")

	assert.Equal(t, 1, empty)
	assert.Equal(t, []sink.Sink[string]{p1, p2}, laggards)
	assert.Equal(t, 1, p1.Laggards())
	assert.Equal(t, 1, p2.Laggards())
	assert.False(t, p1.Ending())
	assert.False(t, p2.Ending())
	assert.False(t, m.Waiting(p1))
}

func TestMultiplexer_FinishedPeerSkipped(t *testing.T) {
	t.Parallel()

	_, m, p1, p2 := newTwoPeers(t, [2][]sink.WritableOption{}, WithEmitLaggard(true))
	laggards := 0
	m.OnLaggard(func(sink.Sink[string]) { laggards++ })

	p2.RequestCompletion()
	assert.True(t, p2.Finished())
	assert.Equal(t, 1, m.Len())

	m.Push("first")
	assert.Equal(t, []string{"first"}, p1.Received())
	assert.Empty(t, p2.Received())
	assert.Equal(t, 0, laggards)
}

func TestMultiplexer_PeerFinishingWhileWaitingIsNotLaggard(t *testing.T) {
	t.Parallel()

	_, m, p1, p2 := newTwoPeers(t, [2][]sink.WritableOption{}, WithEmitLaggard(true))
	laggards := 0
	m.OnLaggard(func(sink.Sink[string]) { laggards++ })

	m.Push("first")
	p1.Ack()

	p2.RequestCompletion()
	p2.Ack()
	assert.True(t, p2.Finished())
	assert.Equal(t, 1, m.Len())

	m.Push("second")
	assert.Equal(t, []string{"first", "second"}, p1.Received())
	assert.Equal(t, 0, laggards)
	assert.Equal(t, 0, p2.Laggards())
}

func TestMultiplexer_RemovingPeersDuringEmpty(t *testing.T) {
	t.Parallel()

	l, m, p1, p2 := newTwoPeers(t, [2][]sink.WritableOption{})
	settled := settledStates(m)
	m.OnEmpty(func() {
		assert.False(t, m.Push("first"))
	})

	assert.True(t, m.RemovePeer(p1, true))
	assert.True(t, m.RemovePeer(p2, true))
	assert.False(t, m.RemovePeer(p2, true))

	assert.Empty(t, p1.Received())
	assert.Empty(t, p2.Received())
	assert.True(t, p1.Finished())

	l.RunPending()
	require.Len(t, *settled, 1)
	assert.Equal(t, 0, (*settled)[0].Receivers())
}

func TestMultiplexer_RemovingWaitingPeersReleasesWrite(t *testing.T) {
	t.Parallel()

	l, m, p1, p2 := newTwoPeers(t, [2][]sink.WritableOption{})
	settled := settledStates(m)

	m.Push("first")
	m.RemovePeer(p1, false)
	m.RemovePeer(p2, false)
	assert.False(t, p1.Ending())
	assert.Empty(t, *settled)

	l.RunPending()
	require.Len(t, *settled, 1)
	assert.Equal(t, fastmux.Ready, (*settled)[0].State())

	// draining afterwards is not matched against anything
	p1.Ack()
	p2.Ack()
	assert.Len(t, *settled, 1)
}

func TestMultiplexer_PeerAddedDuringWrite(t *testing.T) {
	t.Parallel()

	_, m, p1, p2 := newTwoPeers(t, [2][]sink.WritableOption{})
	m.Push("first")

	p3 := sink.NewBuffer[string]()
	require.NoError(t, m.AddPeer(p3))
	assert.Empty(t, p3.Received())

	p1.Ack()
	assert.Empty(t, p3.Received())

	m.Push("second")
	assert.Equal(t, []string{"second"}, p3.Received())
	assert.Equal(t, []string{"first", "second"}, p1.Received())
	assert.True(t, p2.Ending())
}

func TestMultiplexer_AddPeerRejectsDuplicatesAndNil(t *testing.T) {
	t.Parallel()

	_, m, p1, _ := newTwoPeers(t, [2][]sink.WritableOption{})
	added := 0
	m.OnPeerAdded(func(sink.Sink[string]) { added++ })

	assert.ErrorIs(t, m.AddPeer(p1), fastmux.ErrDuplicatePeer)
	assert.ErrorIs(t, m.AddPeer(nil), fastmux.ErrNilPeer)
	var typedNil *sink.Buffer[string]
	assert.ErrorIs(t, m.AddPeer(typedNil), fastmux.ErrNilPeer)
	assert.Equal(t, 0, added)
	assert.Equal(t, 2, m.Len())
}

func TestMultiplexer_CompletesPeersOnFinish(t *testing.T) {
	t.Parallel()

	_, m, p1, p2 := newTwoPeers(t, [2][]sink.WritableOption{})
	var errs []error
	m.OnError(func(err error) { errs = append(errs, err) })

	m.RequestCompletion()
	assert.True(t, m.Finished())
	assert.True(t, p1.Finished())
	assert.True(t, p2.Finished())
	assert.Equal(t, 0, m.Len())

	assert.False(t, m.Push("first"))
	assert.Empty(t, p1.Received())
	require.Len(t, errs, 1)
	assert.ErrorIs(t, errs[0], fastmux.ErrWriteAfterEnd)
}

func TestMultiplexer_KeepsPeersOnFinish(t *testing.T) {
	t.Parallel()

	_, m, p1, p2 := newTwoPeers(t, [2][]sink.WritableOption{}, WithCompletePeersOnFinish(false))

	m.RequestCompletion()
	assert.True(t, m.Finished())
	assert.False(t, p1.Ending())
	assert.False(t, p2.Ending())
	assert.Equal(t, 0, m.Len())
}

func TestMultiplexer_FinishesAfterPendingWrite(t *testing.T) {
	t.Parallel()

	l, m, p1, _ := newTwoPeers(t, [2][]sink.WritableOption{})
	finished := 0
	m.OnFinished(func() { finished++ })
	m.OnEmpty(func() { m.RequestCompletion() })
	m.OnWaiting(func(force func()) { force() })

	m.Push("first")
	m.Push("second")
	assert.Equal(t, 0, finished)

	l.RunPending()
	assert.Equal(t, 1, finished)
	assert.True(t, m.Finished())
	assert.Len(t, p1.Received(), 1)
}

func TestMultiplexer_PropagatesPeerErrors(t *testing.T) {
	t.Parallel()

	_, m, p1, p2 := newTwoPeers(t, [2][]sink.WritableOption{})
	boom := errors.New("there was an error")

	var muxErrs, p2Errs []error
	m.OnError(func(err error) { muxErrs = append(muxErrs, err) })
	p2.OnError(func(err error) { p2Errs = append(p2Errs, err) })

	p1.RaiseError(boom)

	require.Len(t, muxErrs, 1)
	assert.ErrorIs(t, muxErrs[0], boom)
	var pe *fastmux.PeerError
	require.ErrorAs(t, muxErrs[0], &pe)
	assert.Equal(t, any(p1), pe.Peer)
	assert.Empty(t, p2Errs)

	// errors are not completion
	assert.Equal(t, 2, m.Len())
	m.Push("first")
	assert.Equal(t, []string{"first"}, p1.Received())
}

func TestMultiplexer_BroadcastsOwnErrors(t *testing.T) {
	t.Parallel()

	_, m, p1, p2 := newTwoPeers(t, [2][]sink.WritableOption{})
	boom := errors.New("fatal")

	var muxErrs, p1Errs, p2Errs []error
	m.OnError(func(err error) { muxErrs = append(muxErrs, err) })
	p1.OnError(func(err error) { p1Errs = append(p1Errs, err) })
	p2.OnError(func(err error) { p2Errs = append(p2Errs, err) })

	m.RaiseError(boom)

	assert.Equal(t, []error{boom}, muxErrs)
	require.Len(t, p1Errs, 1)
	require.Len(t, p2Errs, 1)
	var me *fastmux.MultiplexerError
	require.ErrorAs(t, p1Errs[0], &me)
	assert.ErrorIs(t, p2Errs[0], boom)
}

func TestMultiplexer_NoErrorsAcrossRemovedPeers(t *testing.T) {
	t.Parallel()

	_, m, p1, p2 := newTwoPeers(t, [2][]sink.WritableOption{})
	var muxErrs, p1Errs []error
	m.OnError(func(err error) { muxErrs = append(muxErrs, err) })
	p1.OnError(func(err error) { p1Errs = append(p1Errs, err) })

	require.True(t, m.RemovePeer(p1, true))
	require.True(t, p1.Finished())

	p1.RaiseError(errors.New("after removal"))
	assert.Empty(t, muxErrs)

	m.RaiseError(errors.New("from mux"))
	assert.Len(t, p1Errs, 1)
	assert.Len(t, muxErrs, 1)

	var p2Errs []error
	p2.OnError(func(err error) { p2Errs = append(p2Errs, err) })
	m.RaiseError(errors.New("again"))
	assert.Len(t, p2Errs, 1)
	assert.Len(t, p1Errs, 1)
}

func TestMultiplexer_ProducerReadiness(t *testing.T) {
	t.Parallel()

	l := loop.New()
	m := New[string](l, WithHighWaterMark(3))
	p := sink.NewBuffer[string]()
	require.NoError(t, m.AddPeer(p))

	drained := 0
	m.OnReady(func() { drained++ })

	assert.True(t, m.Push("a"))
	assert.True(t, m.Push("b"))
	assert.False(t, m.Push("c"))
	assert.Equal(t, []string{"a"}, p.Received())

	p.Ack()
	p.Ack()
	assert.Equal(t, 0, drained)
	p.Ack()
	assert.Equal(t, []string{"a", "b", "c"}, p.Received())
	assert.Equal(t, 1, drained)
}

func TestMultiplexer_NestedMultiplexers(t *testing.T) {
	t.Parallel()

	l := loop.New()
	outer := New[string](l)
	inner := New[string](l)
	leaf := sink.NewBuffer[string](sink.WithHighWaterMark(8))
	require.NoError(t, inner.AddPeer(leaf))
	require.NoError(t, outer.AddPeer(inner))

	outer.Push("first")
	assert.Equal(t, []string{"first"}, leaf.Received())
	assert.True(t, outer.Waiting(inner))

	leaf.Ack()
	l.RunUntilIdle()
	assert.False(t, outer.Waiting(inner))

	outer.Push("second")
	l.RunUntilIdle()
	assert.Equal(t, []string{"first", "second"}, leaf.Received())

	leaf.Ack()
	outer.RequestCompletion()
	l.RunUntilIdle()
	assert.True(t, inner.Finished())
	assert.True(t, leaf.Finished())
}

func inlinePeer(got *[]string) *sink.Writable[string] {
	return sink.NewWritable[string](func(chunk string, done func(error)) {
		*got = append(*got, chunk)
		done(nil)
	})
}

func TestMultiplexer_PeersCompletingInline(t *testing.T) {
	t.Parallel()

	l := loop.New()
	m := New[string](l)
	var got1, got2 []string
	p1, p2 := inlinePeer(&got1), inlinePeer(&got2)
	require.NoError(t, m.AddPeer(p1))
	require.NoError(t, m.AddPeer(p2))
	settled := settledStates(m)
	waiting := 0
	m.OnWaiting(func(func()) { waiting++ })

	assert.False(t, m.Push("first"))
	assert.False(t, m.Push("second"))
	assert.False(t, m.Waiting(p1))
	assert.False(t, m.Waiting(p2))

	l.RunUntilIdle()

	assert.Equal(t, 0, waiting)
	require.Len(t, *settled, 2)
	assert.Equal(t, fastmux.Ready, (*settled)[1].State())
	assert.Equal(t, []string{"first", "second"}, got1)
	assert.Equal(t, []string{"first", "second"}, got2)
	assert.Equal(t, 2, m.Len())
}

func TestMultiplexer_ForwardsProducerNotifications(t *testing.T) {
	t.Parallel()

	_, m, p1, p2 := newTwoPeers(t, [2][]sink.WritableOption{})
	var got []string
	require.NoError(t, m.AddPeer(inlinePeer(&got)))
	src := make(chan string)

	m.NotifyPipe(src)
	assert.Equal(t, []any{src}, p1.Sources())
	assert.Equal(t, []any{src}, p2.Sources())

	m.RemovePeer(p2, false)
	m.NotifyUnpipe(src)
	assert.Empty(t, p1.Sources())
	assert.Equal(t, []any{src}, p2.Sources())
}

type valuePeer struct{ name string }

func TestLabel(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "mux.valuePeer({a})", label(valuePeer{name: "a"}))
	assert.Regexp(t, `^\*sink\.Buffer\[string\]@0x[0-9a-f]+$`, label(sink.NewBuffer[string]()))
	assert.NotContains(t, label(42), "%!")
}
