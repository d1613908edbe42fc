package core

import (
	"sort"
	"sync"

	"github.com/lattice-sim/timewarp/pkg/timewarp/types"
)

// inputEntry is one slot of a per-LP InputQueue's ordered multiset: an
// event plus the processed-flag side-table mentioned in section 3.
type inputEntry struct {
	event     types.Event
	processed bool
}

// ScheduleAction tells the caller (the worker loop / kernel) what, if
// anything, it must do to the schedule queue after an InputQueue
// mutation. The schedule queue itself never needs an Erase operation:
// per section 9's open question, this kernel resolves "erase or lazy
// tombstoning" in favor of lazy tombstoning. A worker that pops a
// schedule-queue entry simply compares it against the LP's current
// ScheduledEvent(); a mismatch means the popped entry is stale and is
// silently dropped (see core/worker.go).
type ScheduleAction struct {
	// Push, if non-nil, is the event that should now be inserted into
	// the ladder as this LP's representative.
	Push *types.Event
}

// InputQueue is the per-LP pending-event set described in section
// 4.B: an ordered multiset of events (both polarities), a
// processed-flag side-table, and the scheduled_event/straggler_event
// cursors from section 3.
type InputQueue struct {
	mu sync.Mutex

	lp  types.LPID
	log types.Logger

	entries []inputEntry // kept sorted by types.Less

	scheduledEvent *types.Event
	stragglerEvent *types.Event
	everScheduled  bool

	// onStraggler, if set, is invoked (while the lock is held) every
	// time stragglerEvent is updated to a new minimum. The kernel uses
	// this to bump the straggler-detection metric; the worker loop
	// finds LPs that need a handle_rollback pass by checking
	// StragglerEvent() for each event it pops.
	onStraggler func(lp types.LPID, event types.Event)
}

// NewInputQueue constructs an empty input queue for lp.
func NewInputQueue(lp types.LPID, log types.Logger) *InputQueue {
	return &InputQueue{lp: lp, log: log}
}

// SetStragglerHook installs the report_straggler(lp) callback from
// section 4.B. Must be called before the queue is used concurrently.
func (q *InputQueue) SetStragglerHook(f func(lp types.LPID, event types.Event)) {
	q.onStraggler = f
}

// insertSorted places e into q.entries keeping the slice ordered by
// types.Less, and returns the index it landed at.
func (q *InputQueue) insertSorted(e types.Event) int {
	idx := sort.Search(len(q.entries), func(i int) bool {
		return types.Less(e, q.entries[i].event) || types.Equal(e, q.entries[i].event)
	})
	q.entries = append(q.entries, inputEntry{})
	copy(q.entries[idx+1:], q.entries[idx:])
	q.entries[idx] = inputEntry{event: e}
	return idx
}

// findIdentity scans for an entry with the given identity and
// polarity, returning its index or -1.
func (q *InputQueue) findIdentity(id types.Identity, polarity types.Polarity) int {
	for i, entry := range q.entries {
		if entry.event.Identity() == id && entry.event.Polarity == polarity {
			return i
		}
	}
	return -1
}

func (q *InputQueue) removeAt(indices ...int) {
	// remove in descending order so earlier indices stay valid
	sort.Sort(sort.Reverse(sort.IntSlice(indices)))
	for _, idx := range indices {
		q.entries = append(q.entries[:idx], q.entries[idx+1:]...)
	}
}

func (q *InputQueue) registerStragglerCandidate(e types.Event) {
	if q.stragglerEvent == nil || types.Less(e, *q.stragglerEvent) {
		cp := e
		q.stragglerEvent = &cp
		if q.onStraggler != nil {
			q.onStraggler(q.lp, e)
		}
	}
}

// Insert implements the section 4.B insertion semantics. It returns a
// ScheduleAction describing any ladder push the caller must perform
// and an error if a ProtocolViolation is detected (a negative event
// arriving with no positive counterpart present).
func (q *InputQueue) Insert(e types.Event) (ScheduleAction, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if e.Polarity == types.Negative {
		return q.insertNegativeLocked(e)
	}
	return q.insertPositiveLocked(e)
}

func (q *InputQueue) insertNegativeLocked(e types.Event) (ScheduleAction, error) {
	id := e.Identity()
	posIdx := q.findIdentity(id, types.Positive)
	if posIdx < 0 {
		return ScheduleAction{}, types.NewKernelError(types.ProtocolViolation, q.lp, &e,
			"anti-message arrived with no matching positive for identity %+v", id)
	}
	pos := q.entries[posIdx].event
	posProcessed := q.entries[posIdx].processed
	posIsScheduled := q.scheduledEvent != nil && types.Equal(*q.scheduledEvent, pos)

	if !posProcessed && !posIsScheduled {
		// Neither processed, and the positive is not currently
		// "in flight" as the scheduled event: annihilate immediately.
		q.removeAt(posIdx)
		return ScheduleAction{}, nil
	}

	// Otherwise: register as a straggler candidate. This covers both
	// "the positive already committed" (a genuine rollback) and "the
	// positive is the LP's current scheduled_event" (the negative must
	// itself win scheduling so handle_rollback can cancel the
	// speculative positive before it ever runs).
	q.insertSorted(e)
	q.registerStragglerCandidate(e)
	return ScheduleAction{}, nil
}

func (q *InputQueue) insertPositiveLocked(e types.Event) (ScheduleAction, error) {
	q.insertSorted(e)

	if q.scheduledEvent == nil {
		cp := e
		wasEverScheduled := q.everScheduled
		q.scheduledEvent = &cp
		q.everScheduled = true
		if wasEverScheduled {
			q.registerStragglerCandidate(e)
		}
		return ScheduleAction{Push: &cp}, nil
	}

	if types.Less(e, *q.scheduledEvent) {
		q.registerStragglerCandidate(e)
	}
	return ScheduleAction{}, nil
}

// PeekLowestUnprocessed returns the smallest not-yet-processed event
// in the queue, if any.
func (q *InputQueue) PeekLowestUnprocessed() (types.Event, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.peekLowestUnprocessedLocked()
}

func (q *InputQueue) peekLowestUnprocessedLocked() (types.Event, bool) {
	for _, entry := range q.entries {
		if !entry.processed {
			return entry.event, true
		}
	}
	return types.Event{}, false
}

// MarkProcessed flags e as processed. e must already be present
// (inserted via Insert) and be a Positive event; marking an absent
// event is a programmer error surfaced as ProtocolViolation.
func (q *InputQueue) MarkProcessed(e types.Event) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	idx := q.findIdentity(e.Identity(), e.Polarity)
	if idx < 0 {
		return types.NewKernelError(types.ProtocolViolation, q.lp, &e, "mark_processed on absent event")
	}
	q.entries[idx].processed = true
	return nil
}

// UnmarkProcessedFrom clears the processed flag on every entry whose
// event is not less than straggler in the total order (the same
// boundary OutputManager.Rollback uses to decide which sent events are
// cancelled, outputqueue.go's types.Less(entry.input, straggler)).
// handle_rollback (section 4.F) must call this before coast-forward:
// without it, an already-processed event at or after the straggler
// (spec.md section 8 scenario 2's {B,20}) stays permanently marked
// processed and Reschedule/peekLowestUnprocessedLocked never pick it
// up again, silently losing its re-execution and regenerated output.
func (q *InputQueue) UnmarkProcessedFrom(straggler types.Event) {
	q.mu.Lock()
	defer q.mu.Unlock()
	for i := range q.entries {
		if !types.Less(q.entries[i].event, straggler) {
			q.entries[i].processed = false
		}
	}
}

// CancelMatchedPair removes neg and its matching, still-present
// positive counterpart from the multiset. Called from the worker loop
// when a Negative event itself reaches the head of the schedule
// (section 4.F).
func (q *InputQueue) CancelMatchedPair(neg types.Event) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	id := neg.Identity()
	negIdx := q.findIdentity(id, types.Negative)
	posIdx := q.findIdentity(id, types.Positive)
	if negIdx < 0 || posIdx < 0 {
		return types.NewKernelError(types.ProtocolViolation, q.lp, &neg, "cancel_matched_pair: missing half of anti-pair")
	}
	q.removeAt(negIdx, posIdx)
	return nil
}

// SetScheduledEvent overwrites the LP's scheduled_event cursor
// (nil clears it, meaning the LP is idle).
func (q *InputQueue) SetScheduledEvent(e *types.Event) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.scheduledEvent = e
}

// ScheduledEvent returns a copy of the current scheduled_event cursor.
func (q *InputQueue) ScheduledEvent() (types.Event, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.scheduledEvent == nil {
		return types.Event{}, false
	}
	return *q.scheduledEvent, true
}

// StragglerEvent returns a copy of the current straggler_event cursor.
func (q *InputQueue) StragglerEvent() (types.Event, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.stragglerEvent == nil {
		return types.Event{}, false
	}
	return *q.stragglerEvent, true
}

// ClearStraggler clears the straggler_event cursor, marking the start
// of a new scheduling interval for the purposes of straggler-minimum
// accumulation (section 4.B).
func (q *InputQueue) ClearStraggler() {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.stragglerEvent = nil
}

// Reschedule picks the LP's new scheduled_event from its lowest
// unprocessed entry (or clears it if the LP has gone idle) and
// returns the ladder push action for the caller to apply, mirroring
// the worker loop's `reschedule(lp)` step.
func (q *InputQueue) Reschedule() ScheduleAction {
	q.mu.Lock()
	defer q.mu.Unlock()
	next, ok := q.peekLowestUnprocessedLocked()
	if !ok {
		q.scheduledEvent = nil
		return ScheduleAction{}
	}
	cp := next
	q.scheduledEvent = &cp
	return ScheduleAction{Push: &cp}
}

// CollectCoastEvents returns every processed, Positive event strictly
// between from and to in the section 4.A total order, in that order
// (which, since events only ever get marked processed in
// non-decreasing scheduled order, coincides with the original
// processing/insertion order demanded by section 4.B). Negatives are
// always skipped: they are never marked processed, and an annihilated
// positive simply is not present any more.
func (q *InputQueue) CollectCoastEvents(from, to types.Event) []types.Event {
	q.mu.Lock()
	defer q.mu.Unlock()
	var out []types.Event
	for _, entry := range q.entries {
		if !entry.processed || entry.event.Polarity != types.Positive {
			continue
		}
		if types.Less(from, entry.event) && types.Less(entry.event, to) {
			out = append(out, entry.event)
		}
	}
	return out
}

// FossilBelow removes every entry with receive_time < t, retaining the
// greatest entry still <= t so coast-forward has an anchor to re-start
// from after aggressive fossil collection (section 4.B).
func (q *InputQueue) FossilBelow(t uint32) {
	q.mu.Lock()
	defer q.mu.Unlock()

	var maxKeptTime uint32
	found := false
	for _, entry := range q.entries {
		if entry.event.ReceiveTime <= t && (!found || entry.event.ReceiveTime > maxKeptTime) {
			maxKeptTime = entry.event.ReceiveTime
			found = true
		}
	}
	if !found {
		// Nothing at or below t yet; nothing to drop.
		return
	}

	kept := q.entries[:0:0]
	for _, entry := range q.entries {
		if entry.event.ReceiveTime >= maxKeptTime {
			kept = append(kept, entry)
		}
	}
	q.entries = kept
}

// Len reports the number of live entries, used by diagnostics and
// metrics (never by protocol logic).
func (q *InputQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.entries)
}
