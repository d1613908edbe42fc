package core

import (
	"testing"
	"time"

	"github.com/lattice-sim/timewarp/pkg/timewarp/examplelp"
	"github.com/lattice-sim/timewarp/pkg/timewarp/types"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"
)

// TestNoRollbackPing is section 8 scenario 1: A's initial event reaches
// B at 10, B replies to A at 20, A emits nothing further. Expect gvt to
// reach 20 and zero rollbacks recorded.
func TestNoRollbackPing(t *testing.T) {
	cfg := DefaultConfiguration()
	cfg.Workers = 2
	cfg.MaxSimTime = 21
	cfg.GVTPeriod = 5 * time.Millisecond
	cfg.Metrics = NopMetrics()

	fabric := NewLoopbackBridge()
	transport := fabric.Register(0)
	sim := NewSimulation(cfg, transport)

	a := examplelp.NewRecordingLP("A", func(self types.LPID, ev types.Event, state *examplelp.RecordingState) []types.Event {
		return nil
	}, []types.Event{{Receiver: "B", ReceiveTime: 10}})

	b := examplelp.NewRecordingLP("B", func(self types.LPID, ev types.Event, state *examplelp.RecordingState) []types.Event {
		return []types.Event{{Receiver: "A", ReceiveTime: 20}}
	}, nil)

	require.NoError(t, sim.RegisterLP(a))
	require.NoError(t, sim.RegisterLP(b))

	done := make(chan struct{})
	go func() {
		_ = sim.Run()
		close(done)
	}()

	deadline := time.After(2 * time.Second)
	settled := false
	for !settled {
		select {
		case <-done:
			settled = true
		case <-deadline:
			sim.Shutdown()
			t.Fatal("simulation did not settle in time")
		default:
			if sim.gvt.Load() >= 20 {
				sim.Shutdown()
			}
			time.Sleep(time.Millisecond)
		}
	}

	aRT, ok := sim.lookupLP("A")
	require.True(t, ok)
	state := aRT.model.State().(*examplelp.RecordingState)
	require.Len(t, state.Log, 1)
	require.Equal(t, uint32(20), state.Log[0].ReceiveTime)

	bRT, ok := sim.lookupLP("B")
	require.True(t, ok)
	bState := bRT.model.State().(*examplelp.RecordingState)
	require.Len(t, bState.Log, 1)
	require.Equal(t, uint32(10), bState.Log[0].ReceiveTime)

	require.Zero(t, testutil.ToFloat64(cfg.Metrics.Rollbacks))
}

// TestRegisterLPRejectsDuplicateID exercises the ModelContract rule
// from section 6.
func TestRegisterLPRejectsDuplicateID(t *testing.T) {
	cfg := DefaultConfiguration()
	fabric := NewLoopbackBridge()
	sim := NewSimulation(cfg, fabric.Register(0))

	a1 := examplelp.NewRecordingLP("A", nil, nil)
	a2 := examplelp.NewRecordingLP("A", nil, nil)

	require.NoError(t, sim.RegisterLP(a1))
	err := sim.RegisterLP(a2)
	require.Error(t, err)
	require.ErrorIs(t, err, types.ErrModelContract)
}
