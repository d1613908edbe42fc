package core

import (
	"math/rand"
	"testing"

	"github.com/lattice-sim/timewarp/pkg/timewarp/types"
	"github.com/stretchr/testify/require"
)

func ev(recv types.LPID, t uint32) types.Event {
	return types.Event{Receiver: recv, ReceiveTime: t, Sender: "src", SendTime: 0}
}

func TestLadderPopReturnsGlobalMinimum(t *testing.T) {
	l := NewLadder()
	times := []uint32{42, 7, 100, 3, 99, 1, 50}
	for _, ts := range times {
		l.Insert(ev("lp", ts))
	}

	var got []uint32
	for {
		e, ok := l.Pop()
		if !ok {
			break
		}
		got = append(got, e.ReceiveTime)
	}

	for i := 1; i < len(got); i++ {
		require.LessOrEqualf(t, got[i-1], got[i], "ladder must drain in non-decreasing receive_time order")
	}
	require.Equal(t, len(times), len(got))
}

func TestLadderHandlesDenseClusterWithSplitting(t *testing.T) {
	l := NewLadder()
	rnd := rand.New(rand.NewSource(1))
	const n = 2000
	for i := 0; i < n; i++ {
		l.Insert(ev("lp", uint32(rnd.Intn(50))))
	}

	prev := uint32(0)
	count := 0
	for {
		e, ok := l.Pop()
		if !ok {
			break
		}
		require.GreaterOrEqual(t, e.ReceiveTime, prev)
		prev = e.ReceiveTime
		count++
	}
	require.Equal(t, n, count)
}

func TestLadderEmptyPop(t *testing.T) {
	l := NewLadder()
	_, ok := l.Pop()
	require.False(t, ok)
}

func TestLadderLenAndDepthTrackInserts(t *testing.T) {
	l := NewLadder()
	require.Equal(t, 0, l.Len())
	l.Insert(ev("lp", 5))
	l.Insert(ev("lp", 6))
	require.Equal(t, 2, l.Len())
	require.Equal(t, 0, l.Depth()) // both still in Top
	l.Pop()
	require.Equal(t, 1, l.Len())
	require.Equal(t, 1, l.Depth()) // Pop spawned one rung from Top
}
