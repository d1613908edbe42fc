package core

import (
	"sync"
	"sync/atomic"
)

const maxVirtualTime = ^uint32(0)

func minU32(a, b uint32) uint32 {
	if a < b {
		return a
	}
	return b
}

// LocalGVTCollector is the per-thread minimum-LVT reduction of section
// 4.G. Two variants exist because they differ in progress guarantees
// (section 9's open question leaves the choice to the implementer);
// both satisfy the same contract: the node-local minimum over every
// thread's min(in-flight event time, min outbound send time).
type LocalGVTCollector interface {
	// ReportSendAndLVT is called by a worker once per loop iteration,
	// right after dequeuing an event and before processing it. ts is
	// that event's receive_time, which is also a safe conservative
	// lower bound for anything the worker sends while processing it
	// (a model's emitted events always have receive_time >= the event
	// being handled, per the ModelContract rule in section 7).
	ReportSendAndLVT(tid int, ts uint32)

	// CollectLocalMinimum runs one collection round and returns the
	// node-local minimum LVT across all worker threads.
	CollectLocalMinimum() uint32
}

// AsyncLocalGVT is the asynchronous collector from section 4.G: a
// shared flag counts down as each worker opportunistically reports at
// the top of its own loop iteration, with no thread ever blocked
// waiting on another.
type AsyncLocalGVT struct {
	numThreads int

	flag int32 // atomic: counts down to 0 as threads report

	mu         sync.Mutex
	cond       *sync.Cond
	collecting bool
	reported   []bool
	sendMin    []uint32
	localMin   []uint32
}

// NewAsyncLocalGVT returns an AsyncLocalGVT for n worker threads.
func NewAsyncLocalGVT(n int) *AsyncLocalGVT {
	a := &AsyncLocalGVT{
		numThreads: n,
		reported:   make([]bool, n),
		sendMin:    make([]uint32, n),
		localMin:   make([]uint32, n),
	}
	a.cond = sync.NewCond(&a.mu)
	for i := range a.sendMin {
		a.sendMin[i] = maxVirtualTime
	}
	return a
}

func (a *AsyncLocalGVT) ReportSendAndLVT(tid int, ts uint32) {
	a.mu.Lock()
	defer a.mu.Unlock()

	a.sendMin[tid] = minU32(a.sendMin[tid], ts)

	if a.collecting && !a.reported[tid] {
		a.localMin[tid] = a.sendMin[tid]
		a.reported[tid] = true
		if atomic.AddInt32(&a.flag, -1) == 0 {
			a.collecting = false
			a.cond.Broadcast()
		}
	}
}

// CollectLocalMinimum starts a collection round (flag = numThreads,
// every thread's reported bit cleared, send-min windows reset) and
// blocks until every thread has reported, then reduces local_min into
// the node-local minimum.
func (a *AsyncLocalGVT) CollectLocalMinimum() uint32 {
	a.mu.Lock()
	for i := range a.reported {
		a.reported[i] = false
		a.sendMin[i] = maxVirtualTime
		a.localMin[i] = maxVirtualTime
	}
	atomic.StoreInt32(&a.flag, int32(a.numThreads))
	a.collecting = true
	for a.collecting {
		a.cond.Wait()
	}
	min := maxVirtualTime
	for _, v := range a.localMin {
		min = minU32(min, v)
	}
	a.mu.Unlock()
	return min
}

// SyncLocalGVT is the synchronous collector from section 4.G: the
// manager and every worker rendezvous at a two-phase barrier; each
// worker's LVT snapshot is captured strictly between the two barrier
// waits, per design note 9.
type SyncLocalGVT struct {
	numThreads int

	startBarrier  *Barrier
	finishBarrier *Barrier

	reportGVT atomic.Bool

	mu       sync.Mutex
	localMin []uint32
}

// NewSyncLocalGVT returns a SyncLocalGVT for n worker threads (the
// barriers have n+1 parties: the workers plus the manager).
func NewSyncLocalGVT(n int) *SyncLocalGVT {
	return &SyncLocalGVT{
		numThreads:    n,
		startBarrier:  NewBarrier(n + 1),
		finishBarrier: NewBarrier(n + 1),
		localMin:      make([]uint32, n),
	}
}

// WorkerSync is called by a worker at a safe point (the top of its
// loop) on every iteration. It is a no-op unless the manager has
// started a collection round; when it has, the worker joins both
// barriers and records ts as its LVT snapshot in between.
func (s *SyncLocalGVT) WorkerSync(tid int, ts uint32) {
	if !s.reportGVT.Load() {
		return
	}
	s.startBarrier.Wait()
	s.mu.Lock()
	s.localMin[tid] = ts
	s.mu.Unlock()
	s.finishBarrier.Wait()
}

// ReportSendAndLVT exists so SyncLocalGVT satisfies LocalGVTCollector;
// the synchronous variant needs no continuous send tracking (section
// 4.G: "no send-min is required because no sends happen across the
// barrier"), so it is a no-op.
func (s *SyncLocalGVT) ReportSendAndLVT(tid int, ts uint32) {}

// CollectLocalMinimum runs one synchronous collection round: it is the
// manager-side counterpart to WorkerSync and blocks until every worker
// has joined both barriers.
func (s *SyncLocalGVT) CollectLocalMinimum() uint32 {
	s.reportGVT.Store(true)
	s.startBarrier.Wait()
	s.reportGVT.Store(false)
	s.finishBarrier.Wait()
	s.mu.Lock()
	min := maxVirtualTime
	for _, v := range s.localMin {
		min = minU32(min, v)
	}
	s.mu.Unlock()
	return min
}

var (
	_ LocalGVTCollector = (*AsyncLocalGVT)(nil)
	_ LocalGVTCollector = (*SyncLocalGVT)(nil)
)
