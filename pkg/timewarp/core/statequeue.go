package core

import (
	"sort"
	"sync"

	"github.com/lattice-sim/timewarp/pkg/timewarp/types"
)

// stateEntry is one checkpoint in a per-LP state queue: a cloned LP
// state plus a snapshot of every registered RNG stream, keyed by the
// event receive_time that triggered the save (section 3).
type stateEntry struct {
	time  uint32
	event types.Event
	state types.LPState
	rngs  []rngSnapshot
}

// StateManager is the per-LP checkpointing component of section 4.D:
// periodic save, restore-on-rollback, and fossil collection. One
// StateManager instance serves one LP.
type StateManager struct {
	mu sync.Mutex

	lp      types.LPID
	period  int // P from section 4.D; P=1 means "always save"
	counter int // decrements on each processed event, saves at 0

	entries []stateEntry // kept sorted by time, ascending
}

// NewStateManager constructs a StateManager with the given save
// period. period must be >= 1.
func NewStateManager(lp types.LPID, period int) *StateManager {
	if period < 1 {
		period = 1
	}
	return &StateManager{lp: lp, period: period, counter: period}
}

// SeedInitial installs the checkpoint at time 0 demanded by invariant
// 3 in section 3 ("the state queue contains a checkpoint at time 0").
// Call once, before the simulation admits any events for this LP.
func (s *StateManager) SeedInitial(state types.LPState, rngs *RNGSet) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries = []stateEntry{{
		time:  0,
		state: state.Clone(),
		rngs:  rngs.Snapshot(),
	}}
}

// MaybeSave implements the period policy: a per-LP counter decrements
// on each processed event; on reaching zero it saves and resets. It
// always saves unconditionally when forced is true (used by
// coast-forward's re-save step, section 4.F step 4, which must re-seed
// a checkpoint at each coast-forward event regardless of the period
// counter so later rollbacks during the same run stay bounded).
func (s *StateManager) MaybeSave(event types.Event, state types.LPState, rngs *RNGSet, forced bool) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.counter--
	if !forced && s.counter > 0 {
		return false
	}
	s.counter = s.period
	s.saveLocked(event, state, rngs)
	return true
}

func (s *StateManager) saveLocked(event types.Event, state types.LPState, rngs *RNGSet) {
	entry := stateEntry{
		time:  event.ReceiveTime,
		event: event,
		state: state.Clone(),
		rngs:  rngs.Snapshot(),
	}
	idx := sort.Search(len(s.entries), func(i int) bool { return s.entries[i].time >= entry.time })
	if idx < len(s.entries) && s.entries[idx].time == entry.time {
		s.entries[idx] = entry
		return
	}
	s.entries = append(s.entries, stateEntry{})
	copy(s.entries[idx+1:], s.entries[idx:])
	s.entries[idx] = entry
}

// Restore implements section 4.D's restore contract: drop every entry
// keyed at or later than rollback.ReceiveTime (section 4.D's
// parenthetical: "or >= if policy saves after the event it keys" —
// MaybeSave is called after ReceiveEvent, so a checkpoint keyed at the
// straggler's own receive_time already includes the effects that must
// be undone), overwrite state and rngs from the greatest remaining
// snapshot, and return the event that snapshot was keyed by (the
// caller advances the LP's clock to its receive_time and uses it as
// the coast-forward lower bound).
func (s *StateManager) Restore(rollback types.Event, state types.LPState, rngs *RNGSet) (types.Event, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	cut := len(s.entries)
	for cut > 0 && s.entries[cut-1].time >= rollback.ReceiveTime {
		cut--
	}
	s.entries = s.entries[:cut]

	if len(s.entries) == 0 {
		return types.Event{}, types.NewKernelError(types.ProtocolViolation, s.lp, &rollback,
			"state queue emptied on restore: no checkpoint at or before receive_time %d", rollback.ReceiveTime)
	}

	greatest := s.entries[len(s.entries)-1]
	state.Restore(greatest.state)
	rngs.Restore(greatest.rngs)
	return greatest.event, nil
}

// FossilBelow drops every entry with key strictly less than the
// greatest entry <= gvt, preserving invariant 3 (the state queue never
// drops its sole remaining entry <= GVT).
func (s *StateManager) FossilBelow(gvt uint32) {
	s.mu.Lock()
	defer s.mu.Unlock()

	anchor := -1
	for i, e := range s.entries {
		if e.time <= gvt {
			anchor = i
		} else {
			break
		}
	}
	if anchor <= 0 {
		return
	}
	s.entries = s.entries[anchor:]
}

// Len reports the number of live checkpoints, for metrics/tests.
func (s *StateManager) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries)
}
