// Package render implements the OutputRenderer (spec §4.8): a
// miniaudio playback device, opened through github.com/gen2brain/malgo
// as doismellburning-samoyed and abra5umente-blackbox do for their own
// real-time device callbacks, that pulls mixed samples out of the
// RingMixer on every backend callback.
package render

import (
	"errors"
	"fmt"
	"math"

	"github.com/gen2brain/malgo"

	"github.com/moonmic/moonmic/internal/ring"
)

// rateFallbackLadder is tried in order until the backend accepts one,
// per spec §4.8's "rate fallback ladder" for devices that refuse the
// stream's native rate.
var rateFallbackLadder = []int{96000, 48000, 44100, 16000}

// ErrNoDevice is returned when every candidate rate fails to open.
var ErrNoDevice = errors.New("render: no playback device could be opened at any candidate rate")

// Renderer owns the playback device and the mixer it drains.
type Renderer struct {
	ctx    *malgo.AllocatedContext
	device *malgo.Device
	mixer  *ring.Mixer

	channels         int
	actualSampleRate int
}

// Open opens the default playback device, preferring preferredRate and
// falling back through rateFallbackLadder (spec §4.8). channels is the
// device's output channel count; mono sources are upmixed by the
// RingMixer itself via WriteMonoUpmixed before ever reaching here.
func Open(mixer *ring.Mixer, preferredRate, channels int) (*Renderer, error) {
	ctx, err := malgo.InitContext(nil, malgo.ContextConfig{}, func(string) {})
	if err != nil {
		return nil, fmt.Errorf("render: init context: %w", err)
	}

	candidates := append([]int{preferredRate}, rateFallbackLadder...)
	r := &Renderer{ctx: ctx, mixer: mixer, channels: channels}

	var lastErr error
	for _, rate := range candidates {
		dev, err := r.openAt(rate)
		if err != nil {
			lastErr = err
			continue
		}
		r.device = dev
		r.actualSampleRate = rate
		return r, nil
	}

	ctx.Uninit()
	if lastErr != nil {
		return nil, fmt.Errorf("%w: %v", ErrNoDevice, lastErr)
	}
	return nil, ErrNoDevice
}

func (r *Renderer) openAt(rate int) (*malgo.Device, error) {
	cfg := malgo.DefaultDeviceConfig(malgo.Playback)
	cfg.Playback.Format = malgo.FormatF32
	cfg.Playback.Channels = uint32(r.channels)
	cfg.SampleRate = uint32(rate)
	// ALSA is opened with mmap disabled. The period size, channel count
	// and latency profile are left at the defaults for every backend.
	cfg.Alsa.NoMMap = 1

	callbacks := malgo.DeviceCallbacks{
		Data: func(output, _ []byte, frameCount uint32) {
			r.fillFloat32(output, frameCount)
		},
	}

	dev, err := malgo.InitDevice(r.ctx.Context, cfg, callbacks)
	if err != nil {
		return nil, err
	}
	if err := dev.Start(); err != nil {
		dev.Uninit()
		return nil, err
	}
	return dev, nil
}

func (r *Renderer) fillFloat32(output []byte, frameCount uint32) {
	samples := int(frameCount) * r.channels
	buf := make([]float32, samples)
	r.mixer.Read(buf)

	for i, s := range buf {
		if s > 1 {
			s = 1
		} else if s < -1 {
			s = -1
		}
		putFloat32LE(output[i*4:i*4+4], s)
	}
}

func putFloat32LE(dst []byte, v float32) {
	bits := math.Float32bits(v)
	dst[0] = byte(bits)
	dst[1] = byte(bits >> 8)
	dst[2] = byte(bits >> 16)
	dst[3] = byte(bits >> 24)
}

// ActualSampleRate reports the rate the device actually opened at
// (spec §4.8: "actual_sample_rate()").
func (r *Renderer) ActualSampleRate() int { return r.actualSampleRate }

// Close stops and releases the playback device and context.
func (r *Renderer) Close() error {
	if r.device != nil {
		r.device.Stop()
		r.device.Uninit()
	}
	if r.ctx != nil {
		r.ctx.Uninit()
	}
	return nil
}
