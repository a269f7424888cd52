// Package resample adapts the decoded audio stream's sample rate to
// the rendering device's native rate (spec §4.7). It wraps
// github.com/zaf/resample, the same libswresample-backed streaming
// resampler drgolem-musictools uses for its own VoIP-quality audio
// pipelines.
package resample

import (
	"bytes"
	"fmt"
	"math"

	"github.com/zaf/resample"
)

// Resampler converts interleaved float32 PCM from one sample rate to
// another at VoIP quality. When the input and output rates match, it
// is bypassed entirely (spec §4.7: "If stream_rate == output_rate, the
// resampler is bypassed").
type Resampler struct {
	inRate, outRate int
	channels        int
	bypass          bool

	out *bytes.Buffer
	r   *resample.Resampler
}

// New creates a Resampler converting channels-interleaved float32 PCM
// from inRate to outRate.
func New(inRate, outRate, channels int) (*Resampler, error) {
	if inRate == outRate {
		return &Resampler{inRate: inRate, outRate: outRate, channels: channels, bypass: true}, nil
	}

	out := &bytes.Buffer{}
	r, err := resample.New(out, float64(inRate), float64(outRate), channels, resample.F32, resample.LowQ)
	if err != nil {
		return nil, fmt.Errorf("resample: create: %w", err)
	}
	return &Resampler{inRate: inRate, outRate: outRate, channels: channels, out: out, r: r}, nil
}

// InRate returns the configured input sample rate.
func (r *Resampler) InRate() int { return r.inRate }

// OutRate returns the configured output sample rate.
func (r *Resampler) OutRate() int { return r.outRate }

// Bypassed reports whether this Resampler is a passthrough because
// InRate() == OutRate().
func (r *Resampler) Bypassed() bool { return r.bypass }

// Process converts in (interleaved float32 at InRate()) to interleaved
// float32 at OutRate(), tolerating small input-frame-count variability
// (spec §4.7). It returns the produced samples.
func (r *Resampler) Process(in []float32) ([]float32, error) {
	if r.bypass {
		out := make([]float32, len(in))
		copy(out, in)
		return out, nil
	}

	r.out.Reset()
	if _, err := r.r.Write(float32SliceToBytes(in)); err != nil {
		return nil, fmt.Errorf("resample: write: %w", err)
	}
	return bytesToFloat32Slice(r.out.Bytes()), nil
}

// Close releases the underlying resampler's resources. A no-op when
// bypassed.
func (r *Resampler) Close() error {
	if r.bypass || r.r == nil {
		return nil
	}
	return r.r.Close()
}

func float32SliceToBytes(samples []float32) []byte {
	buf := make([]byte, len(samples)*4)
	for i, s := range samples {
		bits := math.Float32bits(s)
		buf[i*4+0] = byte(bits)
		buf[i*4+1] = byte(bits >> 8)
		buf[i*4+2] = byte(bits >> 16)
		buf[i*4+3] = byte(bits >> 24)
	}
	return buf
}

func bytesToFloat32Slice(data []byte) []float32 {
	n := len(data) / 4
	out := make([]float32, n)
	for i := 0; i < n; i++ {
		bits := uint32(data[i*4+0]) | uint32(data[i*4+1])<<8 | uint32(data[i*4+2])<<16 | uint32(data[i*4+3])<<24
		out[i] = math.Float32frombits(bits)
	}
	return out
}
