package core

import (
	"sync"

	"github.com/lattice-sim/timewarp/pkg/timewarp/types"
)

// TerminationDetector implements the passive-state coloured-token ring
// of section 4.I, supplemented per SPEC_FULL.md's fourth supplemented
// feature: the master node counts full circulations of an
// all-Passive token explicitly, rather than relying on a wall-clock
// timeout (grounded in original_source's TerminationManager, which
// requires the token to complete several full laps before committing
// to termination).
//
// requiredCirculations is fixed at 3, matching spec.md section 8
// scenario 5 ("after three full circulations").
const requiredCirculations = 3

// TerminationDetector tracks one node's passive/active sticky state and,
// on the master node only, the running circulation count of an
// all-Passive token.
type TerminationDetector struct {
	mu sync.Mutex

	self   types.NodeID
	next   types.NodeID
	master bool

	state types.TerminationState

	// circulations counts consecutive full laps of a Passive token
	// that returned to the master without any node going Active.
	circulations int
}

// NewTerminationDetector constructs the per-node detector. self/next
// describe this node's position on the ring; master marks node 0.
func NewTerminationDetector(self, next types.NodeID, master bool) *TerminationDetector {
	return &TerminationDetector{self: self, next: next, master: master, state: types.Active}
}

// SetPassive/SetActive update this node's sticky state as derived from
// per-thread passivity (no work scheduled, no in-flight sends), per
// section 4.I. The master calls these too: it only emits a token while
// its own sticky state is Passive.
func (t *TerminationDetector) SetPassive() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.state = types.Passive
}

func (t *TerminationDetector) SetActive() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.state = types.Active
	t.circulations = 0
}

func (t *TerminationDetector) State() types.TerminationState {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.state
}

// MaybeSendToken is polled by the master's manager loop. It returns
// (token, true) when the master's own state is Passive and a new
// circulation should begin; otherwise (zero, false).
func (t *TerminationDetector) MaybeSendToken() (types.TerminationToken, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if !t.master || t.state != types.Passive {
		return types.TerminationToken{}, false
	}
	return types.NewTerminationToken(t.self, t.next, t.self, types.Passive, 0), true
}

// TerminationResult reports what HandleToken decided.
type TerminationResult struct {
	Forward   *types.TerminationToken
	Terminate bool
}

// HandleToken implements the ring-forwarding and master-decision rules
// of section 4.I. A node forwards the token, downgrading it to Active
// if its own sticky state is Active; the master, on the token's
// return, either commits to termination (after requiredCirculations
// consecutive all-Passive laps) or discards it and waits for the next
// lap.
func (t *TerminationDetector) HandleToken(token types.TerminationToken) TerminationResult {
	t.mu.Lock()
	defer t.mu.Unlock()

	if !t.master {
		state := token.State
		if t.state == types.Active {
			state = types.Active
		}
		fwd := types.NewTerminationToken(t.self, t.next, token.InitiatorNode, state, token.Count+1)
		return TerminationResult{Forward: &fwd}
	}

	// Master receiving its own token back: a full circulation.
	if token.State != types.Passive {
		t.circulations = 0
		return TerminationResult{}
	}
	t.circulations++
	if t.circulations >= requiredCirculations {
		return TerminationResult{Terminate: true}
	}
	return TerminationResult{}
}

// Reset clears the circulation counter, called after a terminator
// broadcast failed to actually stop every node (defensive; normally
// unreachable once Terminate fires).
func (t *TerminationDetector) Reset() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.circulations = 0
}
