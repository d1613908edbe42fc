package core

import (
	"sort"
	"sync"

	"github.com/lattice-sim/timewarp/pkg/timewarp/types"
)

// Ladder thresholds from section 4.C. Bottom holds at most roughly
// Threshold events before it is considered "full" for the purposes of
// deciding whether a dequeued rung bucket should become the new Bottom
// outright or needs splitting into a finer rung first.
const (
	Threshold = 50
	MaxRungs  = 8
)

// rung is one tier of the ladder: a fixed-width array of buckets
// spanning [startTs, startTs+len(buckets)*width).
type rung struct {
	startTs uint64
	width   uint64
	buckets [][]types.Event
}

func newRung(startTs, maxTs uint64, numBuckets int) *rung {
	if numBuckets < 1 {
		numBuckets = 1
	}
	width := (maxTs - startTs) / uint64(numBuckets)
	if width < 1 {
		width = 1
	}
	return &rung{startTs: startTs, width: width, buckets: make([][]types.Event, numBuckets)}
}

func (r *rung) upperBound() uint64 {
	return r.startTs + uint64(len(r.buckets))*r.width
}

func (r *rung) bucketIndex(ts uint64) int {
	if ts <= r.startTs {
		return 0
	}
	idx := int((ts - r.startTs) / r.width)
	if idx >= len(r.buckets) {
		idx = len(r.buckets) - 1
	}
	return idx
}

func (r *rung) insert(e types.Event) {
	idx := r.bucketIndex(uint64(e.ReceiveTime))
	r.buckets[idx] = append(r.buckets[idx], e)
}

// firstNonEmptyBucket returns the lowest-indexed non-empty bucket, or
// -1 if the rung is entirely empty.
func (r *rung) firstNonEmptyBucket() int {
	for i, b := range r.buckets {
		if len(b) > 0 {
			return i
		}
	}
	return -1
}

// Ladder is the cross-LP schedule queue from section 4.C: a bounded
// three-tier Top/Rungs/Bottom structure holding at most one event per
// LP (enforced by the caller: InputQueue guarantees a single
// scheduled_event per LP; the ladder itself is agnostic to which LP an
// event belongs to). Dequeue always returns the global minimum event
// under the section 4.A total order.
//
// Per section 9's open question on Ladder erase: this implementation
// provides no Erase. An LP whose scheduled_event changes before its
// old entry is dequeued simply leaves a stale entry behind; Pop returns
// it like any other event, and the worker's popSchedulable (see
// core/worker.go) compares it against the LP's current scheduled_event
// and silently discards stale entries (lazy tombstoning).
type Ladder struct {
	mu sync.Mutex

	topEvents       []types.Event
	topMin, topMax  uint64
	topHasRange     bool

	rungs  []*rung
	bottom []types.Event // kept sorted by types.Less
}

// NewLadder returns an empty ladder.
func NewLadder() *Ladder {
	return &Ladder{}
}

// Insert routes e into Top, a rung, or Bottom depending on the
// ladder's current rung bounds (section 4.C).
func (l *Ladder) Insert(e types.Event) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.insertLocked(e)
}

func (l *Ladder) insertLocked(e types.Event) {
	ts := uint64(e.ReceiveTime)

	// An event ordered before something already in Bottom must join
	// Bottom, or it would be popped after that later event.
	if len(l.bottom) > 0 && types.Less(e, l.bottom[len(l.bottom)-1]) {
		l.insertBottomLocked(e)
		return
	}

	if len(l.rungs) == 0 || ts >= l.rungs[0].upperBound() {
		l.insertTopLocked(e)
		return
	}

	for i := len(l.rungs) - 1; i >= 0; i-- {
		r := l.rungs[i]
		if ts < r.startTs {
			break
		}
		if ts < r.upperBound() {
			r.insert(e)
			return
		}
	}

	// ts is below the finest live rung's start: it belongs at the very
	// front of the schedule, so it is immediately a Bottom candidate.
	l.insertBottomLocked(e)
}

func (l *Ladder) insertTopLocked(e types.Event) {
	ts := uint64(e.ReceiveTime)
	if !l.topHasRange {
		l.topMin, l.topMax = ts, ts
		l.topHasRange = true
	} else {
		if ts < l.topMin {
			l.topMin = ts
		}
		if ts > l.topMax {
			l.topMax = ts
		}
	}
	l.topEvents = append(l.topEvents, e)
}

func (l *Ladder) insertBottomLocked(e types.Event) {
	idx := sort.Search(len(l.bottom), func(i int) bool {
		return types.Less(e, l.bottom[i]) || types.Equal(e, l.bottom[i])
	})
	l.bottom = append(l.bottom, types.Event{})
	copy(l.bottom[idx+1:], l.bottom[idx:])
	l.bottom[idx] = e
}

// numBucketsFor sizes a new rung so each bucket holds ~O(1) events on
// average: section 4.C specifies width = (max-min)/size clamped to a
// minimum bucket width of 1; this kernel reads "size" as the element
// count feeding the rung, capped so a single pathological burst cannot
// allocate an unbounded bucket array.
func numBucketsFor(n int) int {
	const cap = 4096
	if n < 1 {
		n = 1
	}
	if n > cap {
		n = cap
	}
	return n
}

// Pop removes and returns the global minimum event, or (_, false) if
// the ladder is empty.
func (l *Ladder) Pop() (types.Event, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()

	for {
		if len(l.bottom) > 0 {
			e := l.bottom[0]
			l.bottom = l.bottom[1:]
			return e, true
		}

		if advanced := l.descendRungsLocked(); advanced {
			continue
		}

		if len(l.topEvents) > 0 {
			l.spawnRungFromTopLocked()
			continue
		}

		return types.Event{}, false
	}
}

// descendRungsLocked implements dequeue step 2: find the last
// non-empty rung's first non-empty bucket and either sort it into
// Bottom (if small enough) or split it into a new, finer rung.
// Returns true if it made progress (caller should restart the Pop
// loop), false if every rung is empty.
func (l *Ladder) descendRungsLocked() bool {
	for len(l.rungs) > 0 {
		last := l.rungs[len(l.rungs)-1]
		idx := last.firstNonEmptyBucket()
		if idx < 0 {
			// This rung is spent; drop it and look at the one below.
			l.rungs = l.rungs[:len(l.rungs)-1]
			continue
		}

		bucket := last.buckets[idx]
		if len(bucket) <= Threshold || len(l.rungs) >= MaxRungs {
			last.buckets[idx] = nil
			for _, e := range bucket {
				l.insertBottomLocked(e)
			}
			return true
		}

		// Bucket is too dense: split it into a new, finer rung.
		minTs, maxTs := bucketRange(bucket)
		nr := newRung(minTs, maxTs+1, numBucketsFor(len(bucket)))
		for _, e := range bucket {
			nr.insert(e)
		}
		last.buckets[idx] = nil
		l.rungs = append(l.rungs, nr)
		return true
	}
	return false
}

func bucketRange(events []types.Event) (uint64, uint64) {
	min, max := uint64(events[0].ReceiveTime), uint64(events[0].ReceiveTime)
	for _, e := range events[1:] {
		ts := uint64(e.ReceiveTime)
		if ts < min {
			min = ts
		}
		if ts > max {
			max = ts
		}
	}
	return min, max
}

// spawnRungFromTopLocked implements dequeue step 3: create a new rung
// spanning Top's [min, max] range, move every Top event into it, and
// clear Top.
func (l *Ladder) spawnRungFromTopLocked() {
	nr := newRung(l.topMin, l.topMax+1, numBucketsFor(len(l.topEvents)))
	for _, e := range l.topEvents {
		nr.insert(e)
	}
	l.topEvents = nil
	l.topHasRange = false
	l.rungs = append(l.rungs, nr)
}

// Len reports the total number of events resident in the ladder
// (Top + Rungs + Bottom), for diagnostics/metrics only.
func (l *Ladder) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	n := len(l.topEvents) + len(l.bottom)
	for _, r := range l.rungs {
		for _, b := range r.buckets {
			n += len(b)
		}
	}
	return n
}

// Depth reports how many rungs currently exist, for metrics.
func (l *Ladder) Depth() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.rungs)
}
