package aggregate

import (
	"testing"

	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"
)

func TestFrameSizeForRate(t *testing.T) {
	require.Equal(t, 320, FrameSizeForRate(16000))
	require.Equal(t, 480, FrameSizeForRate(24000))
	require.Equal(t, 960, FrameSizeForRate(48000))
}

func TestAggregatorExactGrain(t *testing.T) {
	a := New(320)
	grain := make([]float32, 320)
	for i := range grain {
		grain[i] = float32(i)
	}
	frames := a.Push(grain)
	require.Len(t, frames, 1)
	require.Equal(t, grain, frames[0])
	require.Equal(t, 0, a.Pending())
}

func TestAggregatorPartialFramesWaitForNextGrain(t *testing.T) {
	a := New(320)
	frames := a.Push(make([]float32, 200))
	require.Empty(t, frames)
	require.Equal(t, 200, a.Pending())

	frames = a.Push(make([]float32, 120))
	require.Len(t, frames, 1)
	require.Equal(t, 0, a.Pending())
}

// TestAggregatorEmitsExactlyKFrames is spec §8 property 2: for any
// sequence of capture grains summing to k*F samples, the Aggregator
// emits exactly k frames of exactly F samples, preserving order.
func TestAggregatorEmitsExactlyKFrames(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		frameSize := rapid.IntRange(1, 64).Draw(t, "frameSize")
		k := rapid.IntRange(0, 20).Draw(t, "k")

		total := frameSize * k
		var sample []float32
		for i := 0; i < total; i++ {
			sample = append(sample, float32(i))
		}

		// Partition `sample` into arbitrary-sized grains.
		var grains [][]float32
		remaining := sample
		for len(remaining) > 0 {
			n := rapid.IntRange(1, len(remaining)).Draw(t, "grainLen")
			grains = append(grains, remaining[:n])
			remaining = remaining[n:]
		}

		a := New(frameSize)
		var emitted []float32
		frameCount := 0
		for _, g := range grains {
			frames := a.Push(g)
			for _, f := range frames {
				require.Len(t, f, frameSize)
				emitted = append(emitted, f...)
				frameCount++
			}
		}

		require.Equal(t, k, frameCount)
		require.Equal(t, sample, emitted)
		require.Equal(t, total-frameCount*frameSize, a.Pending())
	})
}
