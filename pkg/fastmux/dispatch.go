package fastmux

import (
	"time"

	"github.com/google/uuid"
)

// State is the backpressure state of one chunk's fan-out.
type State int

const (
	Dispatching State = iota
	AllWaiting
	Ready
	ForcedReady
	Idle
)

func (s State) String() string {
	switch s {
	case Dispatching:
		return "dispatching"
	case AllWaiting:
		return "all_waiting"
	case Ready:
		return "ready"
	case ForcedReady:
		return "forced_ready"
	case Idle:
		return "idle"
	}
	return "unknown"
}

// Dispatch records the fan-out of a single chunk.
type Dispatch struct {
	id        uuid.UUID
	createdAt time.Time
	settledAt time.Time
	receivers int
	waiting   int
	state     State
}

func NewDispatch() Dispatch {
	return Dispatch{
		id:        uuid.New(),
		createdAt: time.Now().UTC(),
		state:     Dispatching,
	}
}

// Settle returns a copy of d resolved in the given state.
func (d Dispatch) Settle(state State, receivers, waiting int) Dispatch {
	d.state = state
	d.receivers = receivers
	d.waiting = waiting
	d.settledAt = time.Now().UTC()
	return d
}

func (d Dispatch) Id() uuid.UUID {
	return d.id
}

func (d Dispatch) CreatedAt() time.Time {
	return d.createdAt
}

func (d Dispatch) SettledAt() time.Time {
	return d.settledAt
}

// Receivers is the number of peers registered once the chunk was pushed,
// laggards already evicted.
func (d Dispatch) Receivers() int {
	return d.receivers
}

// Waiting is the number of receivers that had not drained at resolution.
func (d Dispatch) Waiting() int {
	return d.waiting
}

func (d Dispatch) State() State {
	return d.state
}

func (d Dispatch) IsSettled() bool {
	return d.state == Ready || d.state == ForcedReady
}

func (d Dispatch) IsForced() bool {
	return d.state == ForcedReady
}

func (d Dispatch) Duration() time.Duration {
	if d.settledAt.IsZero() {
		return 0
	}
	return d.settledAt.Sub(d.createdAt)
}
