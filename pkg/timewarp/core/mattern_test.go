package core

import (
	"testing"

	"github.com/lattice-sim/timewarp/pkg/timewarp/types"
	"github.com/stretchr/testify/require"
)

// TestMatternSingleNodeRingConverges drives a single-node ring (the
// token's "next" hop is itself) through two rounds, matching section
// 4.H's "at least the second round" rule before trusting count == 0.
func TestMatternSingleNodeRingConverges(t *testing.T) {
	m := NewMatternGVT(0, 0, true, nil)

	token1 := m.StartRound(10)
	require.Equal(t, types.Red, m.Colour())

	result1 := m.HandleToken(token1, 10)
	require.False(t, result1.Done, "first circulation must not convert alone")
	require.NotNil(t, result1.Forward)

	result2 := m.HandleToken(*result1.Forward, 10)
	require.True(t, result2.Done)
	require.Equal(t, uint32(10), result2.NewGVT)
}

func TestMatternOnSendTracksRedMinimum(t *testing.T) {
	m := NewMatternGVT(0, 1, false, nil)
	m.HandleToken(types.NewMatternToken(1, 0, 100, maxVirtualTime, 0), 50) // turns this node Red
	require.Equal(t, types.Red, m.Colour())

	m.OnSend(30)
	m.OnSend(20)

	token := types.NewMatternToken(1, 0, 100, maxVirtualTime, 0)
	result := m.HandleToken(token, 50)
	require.NotNil(t, result.Forward)
	require.Equal(t, uint32(20), result.Forward.MSend)
}

func TestMatternOnGVTUpdateResetsToWhite(t *testing.T) {
	m := NewMatternGVT(0, 0, true, nil)
	m.StartRound(5)
	require.Equal(t, types.Red, m.Colour())

	m.OnGVTUpdate(5)
	require.Equal(t, types.White, m.Colour())
	require.Equal(t, uint32(5), m.GVT())
}
