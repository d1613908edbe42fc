package core

import "sync"

// Barrier is a reusable (cyclic) rendezvous point for a fixed number
// of parties, the textbook generation-counter barrier. It backs the
// synchronous local-GVT collector's two-phase start/finish barrier
// (section 4.G): Wait blocks until every party for the current
// generation has arrived, then releases them all together and rolls
// over to the next generation so the same Barrier can be reused on
// the next GVT round.
type Barrier struct {
	mu         sync.Mutex
	cond       *sync.Cond
	parties    int
	count      int
	generation uint64
}

// NewBarrier returns a Barrier for the given number of parties.
func NewBarrier(parties int) *Barrier {
	b := &Barrier{parties: parties}
	b.cond = sync.NewCond(&b.mu)
	return b
}

// Wait blocks the calling goroutine until `parties` goroutines have
// called Wait for the current generation, then releases all of them.
func (b *Barrier) Wait() {
	b.mu.Lock()
	gen := b.generation
	b.count++
	if b.count == b.parties {
		b.count = 0
		b.generation++
		b.cond.Broadcast()
		b.mu.Unlock()
		return
	}
	for gen == b.generation {
		b.cond.Wait()
	}
	b.mu.Unlock()
}
