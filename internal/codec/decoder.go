package codec

import (
	"errors"
	"fmt"
	"sync"

	"gopkg.in/hraban/opus.v2"
)

// ErrDecodeFailed wraps a single-packet decode failure. Per spec §4.10
// this is a TransientFrame: report, drop, continue — except during a
// rate-change reinit, where spec §4.7 calls for temporary silence
// until the decoder stabilizes (see Decoder.Reinit).
var ErrDecodeFailed = errors.New("codec: decode failed")

// Decoder wraps the Opus decoder with the runtime-reconfiguration
// behavior spec §4.7 requires: the decoder is recreated in place
// whenever an incoming packet reports a different sample rate than the
// one it was built for.
type Decoder struct {
	mu         sync.Mutex
	dec        *opus.Decoder
	sampleRate int
	channels   int
}

// NewDecoder constructs a Decoder for the given stream rate and
// channel count, as read from the admitted client's first audio
// packet header (spec §4.7).
func NewDecoder(sampleRate, channels int) (*Decoder, error) {
	dec, err := opus.NewDecoder(sampleRate, channels)
	if err != nil {
		return nil, fmt.Errorf("codec: create decoder: %w", err)
	}
	return &Decoder{dec: dec, sampleRate: sampleRate, channels: channels}, nil
}

// SampleRate returns the decoder's current configured sample rate.
func (d *Decoder) SampleRate() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.sampleRate
}

// Channels returns the decoder's current configured channel count.
func (d *Decoder) Channels() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.channels
}

// Reinit recreates the underlying Opus decoder for a new stream rate.
// Called when a subsequent packet's header reports a rate different
// from the current one (spec §4.7, §8 scenario 3). On failure the
// Decoder keeps its previous (now-stale) state and the error is
// returned so the caller can hold audio silent until a reinit
// succeeds, per spec §4.7: "audio is temporarily silent until stable."
func (d *Decoder) Reinit(sampleRate, channels int) error {
	dec, err := opus.NewDecoder(sampleRate, channels)
	if err != nil {
		return fmt.Errorf("codec: reinit decoder: %w", err)
	}
	d.mu.Lock()
	d.dec = dec
	d.sampleRate = sampleRate
	d.channels = channels
	d.mu.Unlock()
	return nil
}

// Decode decompresses one packet into interleaved float PCM at the
// decoder's current SampleRate(). maxFrameSamples bounds the per-call
// output allocation (per channel, not interleaved total).
func (d *Decoder) Decode(payload []byte, maxFrameSamples int) ([]float32, error) {
	d.mu.Lock()
	dec := d.dec
	channels := d.channels
	d.mu.Unlock()

	out := make([]float32, maxFrameSamples*channels)
	n, err := dec.DecodeFloat32(payload, out)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDecodeFailed, err)
	}
	return out[:n*channels], nil
}

// DecodePLC synthesizes maxFrameSamples per channel of concealment
// audio for a lost packet through libopus's packet-loss concealment.
func (d *Decoder) DecodePLC(maxFrameSamples int) ([]float32, error) {
	d.mu.Lock()
	dec := d.dec
	channels := d.channels
	d.mu.Unlock()

	out := make([]float32, maxFrameSamples*channels)
	if err := dec.DecodePLCFloat32(out); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDecodeFailed, err)
	}
	return out, nil
}
