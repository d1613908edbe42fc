package core

import (
	"sync"
	"sync/atomic"

	"github.com/lattice-sim/timewarp/pkg/timewarp/types"
)

// lpRuntime bundles everything the kernel tracks per LP: the model
// itself, its input/state/output queues, its RNG registry, its local
// clock, and a generation counter for events it sends (section 4.F:
// "e.generation <- lp.next_generation()"). One lpRuntime is created
// per registered LogicalProcess and never migrates between worker
// threads concurrently, per section 5's single-scheduled-event
// invariant.
type lpRuntime struct {
	model types.LogicalProcess

	input  *InputQueue
	states *StateManager
	output *OutputManager
	rngs   *RNGSet

	generation atomic.Uint64

	mu    sync.Mutex
	clock uint32
}

func newLPRuntime(model types.LogicalProcess, log types.Logger, statePeriod int) *lpRuntime {
	lp := model.ID()
	return &lpRuntime{
		model:  model,
		input:  NewInputQueue(lp, log),
		states: NewStateManager(lp, statePeriod),
		output: NewOutputManager(lp),
		rngs:   NewRNGSet(),
	}
}

// nextGeneration returns a fresh, monotonically increasing generation
// number for an event this LP is about to send.
func (r *lpRuntime) nextGeneration() uint64 {
	return r.generation.Add(1)
}

// advanceClockTo implements "lp.advance_clock_to(ev.receive_time)";
// the clock is only read back through clockNow, for diagnostics (the
// rollback path does not consult it), so a plain mutex suffices.
func (r *lpRuntime) advanceClockTo(t uint32) {
	r.mu.Lock()
	r.clock = t
	r.mu.Unlock()
}

func (r *lpRuntime) clockNow() uint32 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.clock
}
