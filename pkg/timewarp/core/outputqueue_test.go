package core

import (
	"testing"

	"github.com/lattice-sim/timewarp/pkg/timewarp/types"
	"github.com/stretchr/testify/require"
)

func TestOutputManagerRollbackProducesAntiMessages(t *testing.T) {
	om := NewOutputManager("B")
	input1 := types.Event{Receiver: "B", ReceiveTime: 5}
	output1 := types.Event{Receiver: "C", Sender: "B", ReceiveTime: 7}
	om.Insert(input1, output1)

	input2 := types.Event{Receiver: "B", ReceiveTime: 20}
	output2 := types.Event{Receiver: "C", Sender: "B", ReceiveTime: 25}
	om.Insert(input2, output2)

	straggler := types.Event{Receiver: "B", ReceiveTime: 10}
	antis := om.Rollback(straggler)

	require.Len(t, antis, 1)
	require.Equal(t, types.Negative, antis[0].Polarity)
	require.True(t, antis[0].IsAntiOf(output2))
	require.Equal(t, 1, om.Len(), "entry for the surviving input before the straggler must remain")
}

func TestOutputManagerFossilBelowDropsOldEntries(t *testing.T) {
	om := NewOutputManager("B")
	om.Insert(types.Event{ReceiveTime: 1}, types.Event{ReceiveTime: 5})
	om.Insert(types.Event{ReceiveTime: 20}, types.Event{ReceiveTime: 25})

	om.FossilBelow(10)
	require.Equal(t, 1, om.Len())
}
