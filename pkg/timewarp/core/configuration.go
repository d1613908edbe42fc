package core

import (
	"time"

	"github.com/lattice-sim/timewarp/pkg/timewarp/types"
)

// GVTMode selects which local-GVT collector variant a Simulation uses,
// per section 4.G ("both must exist because they differ in progress
// guarantees").
type GVTMode int

const (
	GVTAsync GVTMode = iota
	GVTSync
)

// Partitioner assigns each locally-registered LP to a node id, mirroring
// section 6's `--partitioner` flag; the default is AllLocal, which maps
// every LP to node 0 and is the only partitioner exercised by a
// single-node LoopbackBridge run.
type Partitioner func(lp types.LPID) types.NodeID

// AllLocal is the default Partitioner: every LP lives on node 0.
func AllLocal(types.LPID) types.NodeID { return 0 }

// Configuration is the plain-struct configuration surface of
// section 6, built by the caller (or by cmd/timewarpd from flags) and
// passed to NewSimulation. Grounded in teacher's BaseConfiguration /
// DefaultConfiguration(name) pattern: no flag or env parsing happens in
// this package.
type Configuration struct {
	// MaxSimTime is the virtual time at which workers stop dequeuing
	// new work (section 4.F: "if GVT >= max_sim_time: exit").
	MaxSimTime uint32

	// Workers is the number of worker threads (N in section 5).
	Workers int

	// GVTMode selects the local-GVT collector variant.
	GVTMode GVTMode

	// StatePeriod is the checkpoint interval P from section 4.D; P=1
	// saves on every processed event.
	StatePeriod int

	// Self is this process's node id in the Mattern/termination rings.
	Self types.NodeID

	// Next is the ring successor this node forwards tokens to. In a
	// single-node run Next == Self (the token immediately "returns").
	Next types.NodeID

	// Initiator marks this node as the Mattern/termination initiator
	// (node 0 in the spec's wording).
	Initiator bool

	// Partitioner assigns LPs to nodes; defaults to AllLocal if nil.
	Partitioner Partitioner

	// GVTPeriod is how often the manager starts a new Mattern round,
	// the in-process analogue of section 6's `--gvt-period-ms` flag.
	GVTPeriod time.Duration

	Logger types.Logger

	Metrics *Metrics
}

// DefaultConfiguration returns sane defaults for a single-node,
// single-worker run, matching teacher's DefaultConfiguration(name)
// constructor shape.
func DefaultConfiguration() *Configuration {
	return &Configuration{
		MaxSimTime:  maxVirtualTime,
		Workers:     1,
		GVTMode:     GVTAsync,
		StatePeriod: 1,
		Self:        0,
		Next:        0,
		Initiator:   true,
		Partitioner: AllLocal,
		GVTPeriod:   50 * time.Millisecond,
	}
}
