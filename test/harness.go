// Package test provides the harness helpers fuzzy/ and external
// consumers use to spin up a Simulation for testing, mirroring the
// teacher's test/testing.go (TestInvoker, WaitThisOrTimeout,
// PrintStackTrace).
package test

import (
	"runtime"
	"testing"
	"time"

	"github.com/lattice-sim/timewarp/pkg/timewarp/core"
	"github.com/lattice-sim/timewarp/pkg/timewarp/types"
)

// NewSingleNodeSimulation wires a Simulation over a fresh
// LoopbackBridge for node 0, the shape every harness-built test uses
// unless it specifically exercises multi-node Mattern/termination
// ring behavior.
func NewSingleNodeSimulation(cfg *core.Configuration) *core.Simulation {
	fabric := core.NewLoopbackBridge()
	return core.NewSimulation(cfg, fabric.Register(cfg.Self))
}

// NewRing wires n nodes into one LoopbackBridge ring (node i forwards
// to node (i+1)%n), each with its own Simulation, for tests exercising
// the Mattern/termination token rings across multiple nodes.
func NewRing(n int, build func(i int, cfg *core.Configuration) *core.Configuration) []*core.Simulation {
	fabric := core.NewLoopbackBridge()
	sims := make([]*core.Simulation, n)
	for i := 0; i < n; i++ {
		cfg := core.DefaultConfiguration()
		cfg.Self = types.NodeID(i)
		cfg.Next = types.NodeID((i + 1) % n)
		cfg.Initiator = i == 0
		if build != nil {
			cfg = build(i, cfg)
		}
		sims[i] = core.NewSimulation(cfg, fabric.Register(cfg.Self))
	}
	return sims
}

// RunFor starts sim and stops it after duration, failing t if Run
// returns an error.
func RunFor(t *testing.T, sim *core.Simulation, duration time.Duration) {
	t.Helper()
	done := make(chan error, 1)
	go func() { done <- sim.Run() }()

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("simulation exited early: %v", err)
		}
	case <-time.After(duration):
		sim.Shutdown()
		<-done
	}
}

// WaitThisOrTimeout runs cb and reports whether it finished before
// duration elapses, for awaiting cooperative shutdown.
func WaitThisOrTimeout(cb func(), duration time.Duration) bool {
	done := make(chan struct{})
	go func() {
		cb()
		close(done)
	}()
	select {
	case <-done:
		return true
	case <-time.After(duration):
		return false
	}
}

// PrintStackTrace dumps every goroutine's stack, for diagnosing a
// harness timeout.
func PrintStackTrace(t *testing.T) {
	t.Helper()
	buf := make([]byte, 1<<16)
	n := runtime.Stack(buf, true)
	t.Errorf("%s", buf[:n])
}
