package core

import (
	"testing"

	"github.com/lattice-sim/timewarp/pkg/timewarp/types"
	"github.com/stretchr/testify/require"
)

// TestTerminationRequiresThreeCirculations matches section 8 scenario
// 5 ("within three token circulations"): a single-node ring where the
// master is continuously Passive must not terminate before its third
// consecutive all-Passive lap.
func TestTerminationRequiresThreeCirculations(t *testing.T) {
	d := NewTerminationDetector(0, 0, true)
	d.SetPassive()

	for i := 1; i <= requiredCirculations; i++ {
		token, ok := d.MaybeSendToken()
		require.True(t, ok)

		result := d.HandleToken(token)
		if i < requiredCirculations {
			require.False(t, result.Terminate, "must not terminate before lap %d", requiredCirculations)
		} else {
			require.True(t, result.Terminate)
		}
	}
}

func TestTerminationActiveNodeResetsCirculation(t *testing.T) {
	d := NewTerminationDetector(0, 0, true)
	d.SetPassive()
	token, _ := d.MaybeSendToken()
	d.HandleToken(token)

	d.SetActive()
	token2, ok := d.MaybeSendToken()
	require.False(t, ok, "an Active master must not emit a token")
	_ = token2

	// The lap counted before going Active was discarded: back to
	// Passive, the master again needs requiredCirculations full laps.
	d.SetPassive()
	for i := 1; i < requiredCirculations; i++ {
		token, ok := d.MaybeSendToken()
		require.True(t, ok)
		require.False(t, d.HandleToken(token).Terminate, "lap %d after reset must not terminate", i)
	}
}

func TestTerminationNonMasterForwardsDowngradingToActive(t *testing.T) {
	d := NewTerminationDetector(1, 2, false)
	d.SetActive()

	incoming := types.NewTerminationToken(0, 1, 0, types.Passive, 0)
	result := d.HandleToken(incoming)
	require.NotNil(t, result.Forward)
	require.Equal(t, types.Active, result.Forward.State)
}
