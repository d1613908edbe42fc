package fuzzy

import (
	"math/rand"
	"testing"
	"time"

	"github.com/lattice-sim/timewarp/pkg/timewarp/core"
	"github.com/lattice-sim/timewarp/pkg/timewarp/examplelp"
	"github.com/lattice-sim/timewarp/pkg/timewarp/types"
	"github.com/lattice-sim/timewarp/test"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"go.uber.org/goleak"
)

// TestRollbackStorm registers a ring of LPs that each forward an event
// to a random peer at a randomized receive time, with every LP also
// seeded with several concurrent initial tokens (mirroring the
// teacher's fuzzy/commit_test.go style: drive load with no injected
// transport failure, then assert the system converges cleanly). A
// single token forwarding forward-in-time can never straggle on its
// own causal chain (section 6's emitted-event contract forbids it):
// genuine stragglers here come from independent concurrent chains
// racing to deliver out-of-order to the same LP, which is why every LP
// gets its own head-start token instead of one lone chain threading
// the whole ring. Asserts the simulation shuts down cleanly, GVT never
// regresses across the sampled points, no goroutines leak, and —
// unlike a storm with only one event ever in flight — that the
// rollback/anti-message path actually ran.
func TestRollbackStorm(t *testing.T) {
	ignoreBefore := goleak.IgnoreCurrent()
	const numLPs = 6

	cfg := core.DefaultConfiguration()
	cfg.Workers = 4
	cfg.MaxSimTime = 500
	cfg.GVTPeriod = 10 * time.Millisecond
	cfg.Metrics = core.NopMetrics()

	sim := test.NewSingleNodeSimulation(cfg)

	rnd := rand.New(rand.NewSource(7))
	ids := make([]types.LPID, numLPs)
	for i := range ids {
		ids[i] = types.LPID(string(rune('A' + i)))
	}

	for _, id := range ids {
		peers := ids
		handler := func(self types.LPID, ev types.Event, state *examplelp.RecordingState) []types.Event {
			if ev.ReceiveTime >= cfg.MaxSimTime-1 {
				return nil
			}
			next := peers[rnd.Intn(len(peers))]
			jitter := uint32(rnd.Intn(5) + 1)
			return []types.Event{{Receiver: next, ReceiveTime: ev.ReceiveTime + jitter}}
		}

		// Each LP starts several concurrent tokens aimed at random
		// peers with random starting offsets, so independent causal
		// chains race each other through the ring instead of a single
		// chain that can only ever arrive in its own send order.
		initial := make([]types.Event, 0, 3)
		for k := 0; k < 3; k++ {
			next := peers[rnd.Intn(len(peers))]
			start := uint32(rnd.Intn(30) + 1)
			initial = append(initial, types.Event{Receiver: next, ReceiveTime: start})
		}

		lp := examplelp.NewRecordingLP(id, handler, initial)
		if err := sim.RegisterLP(lp); err != nil {
			t.Fatalf("register %s: %v", id, err)
		}
	}

	var samples []uint32
	stop := make(chan struct{})
	go func() {
		ticker := time.NewTicker(20 * time.Millisecond)
		defer ticker.Stop()
		for {
			select {
			case <-stop:
				return
			case <-ticker.C:
				samples = append(samples, sim.GVT())
			}
		}
	}()

	test.RunFor(t, sim, 2*time.Second)
	close(stop)

	for i := 1; i < len(samples); i++ {
		if samples[i] < samples[i-1] {
			t.Fatalf("gvt regressed: %d then %d", samples[i-1], samples[i])
		}
	}

	if got := testutil.ToFloat64(cfg.Metrics.Rollbacks); got <= 0 {
		t.Fatalf("expected at least one rollback from racing concurrent chains, got %v", got)
	}
	if got := testutil.ToFloat64(cfg.Metrics.AntiMessagesSent); got <= 0 {
		t.Fatalf("expected at least one anti-message from a rollback, got %v", got)
	}

	goleak.VerifyNone(t, ignoreBefore)
}
