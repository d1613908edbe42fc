package core

import (
	"testing"

	"github.com/lattice-sim/timewarp/pkg/timewarp/types"
	"github.com/stretchr/testify/require"
)

type intState int

func (i *intState) Clone() types.LPState {
	c := *i
	return &c
}
func (i *intState) Restore(other types.LPState) { *i = *other.(*intState) }

func TestStateManagerSeedInitialInstallsTimeZeroCheckpoint(t *testing.T) {
	sm := NewStateManager("A", 1)
	s := intState(0)
	rngs := NewRNGSet()
	sm.SeedInitial(&s, rngs)
	require.Equal(t, 1, sm.Len())
}

func TestStateManagerPeriodOneSavesEveryEvent(t *testing.T) {
	sm := NewStateManager("A", 1)
	s := intState(0)
	rngs := NewRNGSet()
	sm.SeedInitial(&s, rngs)

	for i, ts := range []uint32{10, 20, 30} {
		s = intState(i + 1)
		saved := sm.MaybeSave(types.Event{ReceiveTime: ts}, &s, rngs, false)
		require.True(t, saved)
	}
	require.Equal(t, 4, sm.Len())
}

func TestStateManagerRestoreDropsLaterCheckpointsAndReturnsAnchor(t *testing.T) {
	sm := NewStateManager("A", 1)
	s := intState(0)
	rngs := NewRNGSet()
	sm.SeedInitial(&s, rngs)

	anchor := types.Event{ReceiveTime: 10}
	s = intState(1)
	sm.MaybeSave(anchor, &s, rngs, false)

	s = intState(2)
	sm.MaybeSave(types.Event{ReceiveTime: 20}, &s, rngs, false)

	straggler := types.Event{ReceiveTime: 15}
	got, err := sm.Restore(straggler, &s, rngs)
	require.NoError(t, err)
	require.Equal(t, anchor.ReceiveTime, got.ReceiveTime)
	require.Equal(t, intState(1), s)
	require.Equal(t, 2, sm.Len()) // time-0 seed + anchor@10 survive
}

func TestStateManagerRestoreDropsCheckpointKeyedAtStragglerTime(t *testing.T) {
	// section 4.D's parenthetical: MaybeSave is called after
	// ReceiveEvent (worker.go), so a checkpoint keyed exactly at the
	// straggler's receive_time already includes the effects that must
	// be undone and must be dropped too, not kept.
	sm := NewStateManager("A", 1)
	s := intState(0)
	rngs := NewRNGSet()
	sm.SeedInitial(&s, rngs)

	anchor := types.Event{ReceiveTime: 10}
	s = intState(1)
	sm.MaybeSave(anchor, &s, rngs, false)

	tied := types.Event{ReceiveTime: 15}
	s = intState(2)
	sm.MaybeSave(tied, &s, rngs, false)

	straggler := types.Event{ReceiveTime: 15}
	got, err := sm.Restore(straggler, &s, rngs)
	require.NoError(t, err)
	require.Equal(t, anchor.ReceiveTime, got.ReceiveTime)
	require.Equal(t, intState(1), s)
	require.Equal(t, 2, sm.Len()) // time-0 seed + anchor@10 survive; @15 is dropped
}

func TestStateManagerRestoreEmptiedQueueIsProtocolViolation(t *testing.T) {
	sm := NewStateManager("A", 1)
	s := intState(0)
	rngs := NewRNGSet()
	sm.SeedInitial(&s, rngs)
	sm.entries[0].time = 5 // pretend the only checkpoint is later than the straggler

	_, err := sm.Restore(types.Event{ReceiveTime: 1}, &s, rngs)
	require.Error(t, err)
	require.ErrorIs(t, err, types.ErrProtocolViolation)
}

func TestStateManagerFossilBelowKeepsOneAnchor(t *testing.T) {
	sm := NewStateManager("A", 1)
	s := intState(0)
	rngs := NewRNGSet()
	sm.SeedInitial(&s, rngs)
	for i, ts := range []uint32{10, 20, 30} {
		s = intState(i + 1)
		sm.MaybeSave(types.Event{ReceiveTime: ts}, &s, rngs, false)
	}
	sm.FossilBelow(25)
	require.Equal(t, 2, sm.Len()) // anchor@20, entry@30
}
