package resample

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestBypassWhenRatesMatch(t *testing.T) {
	r, err := New(48000, 48000, 1)
	require.NoError(t, err)
	require.True(t, r.Bypassed())

	in := []float32{0.1, 0.2, 0.3}
	out, err := r.Process(in)
	require.NoError(t, err)
	require.Equal(t, in, out)
}

// TestRoundTripLengthTolerance is spec §8 property 7: resampling N
// samples at rate R to rate R' and back to R yields a sequence whose
// length is within ±1 of N.
func TestRoundTripLengthTolerance(t *testing.T) {
	const n = 960 // 20 ms at 48 kHz
	in := make([]float32, n)
	for i := range in {
		in[i] = 0.05
	}

	up, err := New(48000, 16000, 1)
	require.NoError(t, err)
	defer up.Close()

	down, err := New(16000, 48000, 1)
	require.NoError(t, err)
	defer down.Close()

	mid, err := up.Process(in)
	require.NoError(t, err)

	back, err := down.Process(mid)
	require.NoError(t, err)

	require.InDelta(t, n, len(back), 1)
}
