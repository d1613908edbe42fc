package core

import "github.com/lattice-sim/timewarp/pkg/timewarp/types"

// RNGSet is an LP's insertion-ordered registry of named, restorable
// random streams. Grounded in original_source's
// RandomNumberGenerator.hpp: an LP registers one or more RNG streams
// once at construction; the state manager snapshots all of them
// alongside LP state on every save, and restores them "in reverse
// registration order" (spec section 4.D) on rollback.
//
// RNGSet itself is not goroutine-safe, matching section 5's "RNG
// registration: per-LP, accessed only by the thread currently
// executing that LP" — no lock is needed because the kernel never
// lets two threads execute the same LP concurrently.
type RNGSet struct {
	names   []string
	streams map[string]types.RNGStream
}

// NewRNGSet returns an empty registry.
func NewRNGSet() *RNGSet {
	return &RNGSet{streams: make(map[string]types.RNGStream)}
}

// Register adds a named stream. Registration order is preserved and
// drives the reverse-order restore below; re-registering an existing
// name replaces the stream but keeps its original position.
func (r *RNGSet) Register(name string, stream types.RNGStream) {
	if _, exists := r.streams[name]; !exists {
		r.names = append(r.names, name)
	}
	r.streams[name] = stream
}

// rngSnapshot is the cloned value stored in a state-queue entry.
type rngSnapshot struct {
	name  string
	value any
}

// Snapshot captures every registered stream, forward registration
// order (restore reverses it).
func (r *RNGSet) Snapshot() []rngSnapshot {
	out := make([]rngSnapshot, len(r.names))
	for i, name := range r.names {
		out[i] = rngSnapshot{name: name, value: r.streams[name].Snapshot()}
	}
	return out
}

// Restore applies a snapshot previously produced by Snapshot, walking
// it in reverse so the last-registered stream is restored first, per
// spec section 4.D.
func (r *RNGSet) Restore(snap []rngSnapshot) {
	for i := len(snap) - 1; i >= 0; i-- {
		entry := snap[i]
		if stream, ok := r.streams[entry.name]; ok {
			stream.Restore(entry.value)
		}
	}
}
