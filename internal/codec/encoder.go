// Package codec wraps the Opus voice codec (spec §4.3, §4.7) behind the
// narrow Encode/Decode surface the pipeline needs. It is built on
// gopkg.in/hraban/opus.v2, the same libopus cgo binding used by
// madpsy-ka9q_ubersdr for its own real-time PCM/Opus bridging.
package codec

import (
	"errors"
	"fmt"

	"gopkg.in/hraban/opus.v2"
)

// MaxPacketBytes bounds a single encoded payload (spec §4.3: "bounded
// ≤ 4000 bytes").
const MaxPacketBytes = 4000

// EncoderComplexity is the fixed complexity level spec §4.3 calls
// "moderate complexity" (libopus: 0 cheapest, 10 most expensive).
const EncoderComplexity = 5

// ErrEncodeFailed wraps any single-frame encode failure; spec §4.10
// treats this as TransientFrame — report and continue, never fatal.
var ErrEncodeFailed = errors.New("codec: encode failed")

// Encoder is a low-latency voice encoder: VoIP application, fixed
// target bitrate, DTX off, moderate complexity. It does not switch
// libopus to CBR (the library's default VBR stays in effect) and sets
// no explicit signal hint.
type Encoder struct {
	enc        *opus.Encoder
	sampleRate int
	channels   int
}

// NewEncoder constructs an Encoder configured per spec §4.3. bitrate is
// in bits per second.
func NewEncoder(sampleRate, channels, bitrate int) (*Encoder, error) {
	enc, err := opus.NewEncoder(sampleRate, channels, opus.AppVoIP)
	if err != nil {
		return nil, fmt.Errorf("codec: create encoder: %w", err)
	}

	// hraban/opus.v2 does not expose OPUS_SET_SIGNAL directly; AppVoIP
	// already biases the internal mode decision toward speech content,
	// which is the closest available equivalent to "signal = voice".
	if err := enc.SetBitrate(bitrate); err != nil {
		return nil, fmt.Errorf("codec: set bitrate: %w", err)
	}
	if err := enc.SetComplexity(EncoderComplexity); err != nil {
		return nil, fmt.Errorf("codec: set complexity: %w", err)
	}
	if err := enc.SetDTX(false); err != nil {
		return nil, fmt.Errorf("codec: disable dtx: %w", err)
	}

	return &Encoder{enc: enc, sampleRate: sampleRate, channels: channels}, nil
}

// Encode compresses one input frame (interleaved float PCM, exactly
// FrameAggregator.FrameSize() samples) into a single voice-codec
// payload. A failure here is a TransientFrame per spec §4.10: the
// caller should count it, report it, and drop only this frame.
func (e *Encoder) Encode(pcm []float32) ([]byte, error) {
	out := make([]byte, MaxPacketBytes)
	n, err := e.enc.EncodeFloat32(pcm, out)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrEncodeFailed, err)
	}
	return out[:n], nil
}

// SampleRate returns the encoder's configured sample rate.
func (e *Encoder) SampleRate() int { return e.sampleRate }

// Channels returns the encoder's configured channel count.
func (e *Encoder) Channels() int { return e.channels }
