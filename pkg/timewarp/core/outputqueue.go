package core

import (
	"sort"
	"sync"

	"github.com/lattice-sim/timewarp/pkg/timewarp/types"
)

// outputEntry couples a sent event with the input event that caused
// it to be sent, keyed by the output event's receive_time (section
// 4.E).
type outputEntry struct {
	input  types.Event
	output types.Event
}

// OutputStrategy is the swap-in point design note 9 calls for
// ("aggressive vs lazy output manager"). aggressiveStrategy below
// implements the spec's default, always-insert behavior; a lazy
// variant (batching anti-message generation) is a documented extension
// point and not otherwise implemented here.
type OutputStrategy interface {
	Insert(input, output types.Event) outputEntry
}

// aggressiveStrategy inserts every send immediately, eagerly available
// for cancellation — section 4.E's default behavior.
type aggressiveStrategy struct{}

func (aggressiveStrategy) Insert(input, output types.Event) outputEntry {
	return outputEntry{input: input, output: output}
}

// OutputManager is the per-LP sent-event log of section 4.E, driving
// anti-message generation on rollback.
type OutputManager struct {
	mu sync.Mutex

	lp       types.LPID
	strategy OutputStrategy
	entries  []outputEntry // kept sorted by output.ReceiveTime
}

// NewOutputManager returns an OutputManager using the spec-default
// aggressive strategy.
func NewOutputManager(lp types.LPID) *OutputManager {
	return &OutputManager{lp: lp, strategy: aggressiveStrategy{}}
}

// WithStrategy overrides the output strategy (see OutputStrategy).
func (o *OutputManager) WithStrategy(s OutputStrategy) *OutputManager {
	o.strategy = s
	return o
}

// Insert appends (input, output) to the log.
func (o *OutputManager) Insert(input, output types.Event) {
	o.mu.Lock()
	defer o.mu.Unlock()

	entry := o.strategy.Insert(input, output)
	idx := sort.Search(len(o.entries), func(i int) bool {
		return entry.output.ReceiveTime <= o.entries[i].output.ReceiveTime
	})
	o.entries = append(o.entries, outputEntry{})
	copy(o.entries[idx+1:], o.entries[idx:])
	o.entries[idx] = entry
}

// Rollback removes every entry whose input event is >= straggler and
// returns the corresponding output events rebranded as anti-messages
// (Negative polarity), per section 4.E.
func (o *OutputManager) Rollback(straggler types.Event) []types.Event {
	o.mu.Lock()
	defer o.mu.Unlock()

	var antis []types.Event
	kept := o.entries[:0:0]
	for _, entry := range o.entries {
		if types.Less(entry.input, straggler) {
			kept = append(kept, entry)
			continue
		}
		antis = append(antis, entry.output.Negate())
	}
	o.entries = kept
	return antis
}

// FossilBelow drops entries whose output event precedes gvt.
func (o *OutputManager) FossilBelow(gvt uint32) {
	o.mu.Lock()
	defer o.mu.Unlock()

	kept := o.entries[:0:0]
	for _, entry := range o.entries {
		if entry.output.ReceiveTime >= gvt {
			kept = append(kept, entry)
		}
	}
	o.entries = kept
}

// Len reports the number of live entries, for metrics/tests.
func (o *OutputManager) Len() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return len(o.entries)
}
