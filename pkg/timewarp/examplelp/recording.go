// Package examplelp provides small LogicalProcess implementations used
// by the core package's tests and by the fuzzy rollback-storm test.
// None of it is part of the kernel itself; it exists purely as model
// code written against the section 6 LP contract.
package examplelp

import (
	"github.com/lattice-sim/timewarp/pkg/timewarp/types"
)

// RecordingState is the state every RecordingLP carries: a log of
// every event it has committed, in commit order, plus an arbitrary
// counter a Handler may use. It is intentionally the simplest possible
// LPState implementation: Clone/Restore both operate on value copies
// of the backing slice, so rollback tests can assert on exact log
// contents before and after a restore.
type RecordingState struct {
	Counter int
	Log     []types.Event
}

func (s *RecordingState) Clone() types.LPState {
	logCopy := make([]types.Event, len(s.Log))
	copy(logCopy, s.Log)
	return &RecordingState{Counter: s.Counter, Log: logCopy}
}

func (s *RecordingState) Restore(other types.LPState) {
	o := other.(*RecordingState)
	s.Counter = o.Counter
	s.Log = make([]types.Event, len(o.Log))
	copy(s.Log, o.Log)
}

// Handler computes the events a RecordingLP emits in response to ev,
// given its own id for addressing Sender-independent fields (Sender,
// Generation, SendTime are all overwritten by the kernel after return,
// per section 4.F, so Handler need only set Receiver and Payload).
type Handler func(self types.LPID, ev types.Event, state *RecordingState) []types.Event

// RecordingLP is a minimal LogicalProcess: it appends every event it
// receives to its state's Log (the "committed order" scenario 1-3 in
// section 8 assert against) and delegates emission to Handler.
type RecordingLP struct {
	id      types.LPID
	state   *RecordingState
	handler Handler
	initial []types.Event
}

// NewRecordingLP constructs a RecordingLP. initial may be nil; handler
// may be nil, meaning the LP never emits anything.
func NewRecordingLP(id types.LPID, handler Handler, initial []types.Event) *RecordingLP {
	return &RecordingLP{
		id:      id,
		state:   &RecordingState{},
		handler: handler,
		initial: initial,
	}
}

func (r *RecordingLP) ID() types.LPID       { return r.id }
func (r *RecordingLP) State() types.LPState { return r.state }

func (r *RecordingLP) ReceiveEvent(ev types.Event) ([]types.Event, error) {
	state := r.state
	state.Log = append(state.Log, ev)
	state.Counter++
	if r.handler == nil {
		return nil, nil
	}
	return r.handler(r.id, ev, state), nil
}

// InitialEvents implements types.InitialEventSource.
func (r *RecordingLP) InitialEvents() []types.Event { return r.initial }

var (
	_ types.LogicalProcess     = (*RecordingLP)(nil)
	_ types.InitialEventSource = (*RecordingLP)(nil)
)
