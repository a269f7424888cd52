package codec

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestEncodeDecodeRoundTrip(t *testing.T) {
	const sampleRate = 48000
	const channels = 1
	const frameSize = 960 // 20 ms at 48 kHz

	enc, err := NewEncoder(sampleRate, channels, 24000)
	require.NoError(t, err)

	dec, err := NewDecoder(sampleRate, channels)
	require.NoError(t, err)

	pcm := make([]float32, frameSize)
	for i := range pcm {
		pcm[i] = 0.1
	}

	payload, err := enc.Encode(pcm)
	require.NoError(t, err)
	require.NotEmpty(t, payload)
	require.LessOrEqual(t, len(payload), MaxPacketBytes)

	out, err := dec.Decode(payload, frameSize)
	require.NoError(t, err)
	require.Len(t, out, frameSize*channels)
}

func TestDecoderReinitOnRateChange(t *testing.T) {
	dec, err := NewDecoder(16000, 1)
	require.NoError(t, err)
	require.Equal(t, 16000, dec.SampleRate())

	err = dec.Reinit(48000, 1)
	require.NoError(t, err)
	require.Equal(t, 48000, dec.SampleRate())
}

func TestDecodePLCProducesConcealmentFrame(t *testing.T) {
	dec, err := NewDecoder(48000, 1)
	require.NoError(t, err)

	out, err := dec.DecodePLC(960)
	require.NoError(t, err)
	require.Len(t, out, 960)
}
