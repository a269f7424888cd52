// Package capture implements PlatformCapture (spec §4.1) over
// github.com/gordonklaus/portaudio, the same binding doismellburning-samoyed
// and voxworld-voxaudio use for blocking, grain-sized audio I/O.
//
// PortAudio's blocking Stream.Read matches spec §4.1's contract almost
// exactly: it returns once its configured "frames per buffer" grain is
// available, and the backend — not this package — decides what rate it
// will actually run at when the requested one isn't supported.
package capture

import (
	"errors"
	"fmt"
	"sync"

	"github.com/gordonklaus/portaudio"
)

// ErrClosed is returned by Read once the capture device has been closed.
var ErrClosed = errors.New("capture: device closed")

// Capture is the capability interface spec §9 calls for: one
// implementation variant per platform, chosen at construction time.
// PortAudio is itself cross-platform, so a single Device implements
// Capture for every target this module ships a binary for; the
// interface still exists so tests and alternate backends can
// substitute a fake.
type Capture interface {
	NativeSampleRate() int
	GrainSamples() int
	Read(buf []float32) (int, error)
	Close() error
}

// Device is the portaudio-backed Capture implementation.
type Device struct {
	mu         sync.Mutex
	stream     *portaudio.Stream
	grain      []float32
	nativeRate int
	channels   int
	closed     bool
}

// Open initializes the platform's default input device. sampleRate is
// a hint: if the platform only supports a native rate (e.g. a
// handheld's fixed 16 kHz voice input), that rate is used instead and
// reported by NativeSampleRate. grainFrames is the number of frames
// PortAudio is asked to deliver per blocking Read; the platform's own
// grain size (and any required buffer alignment, spec §4.1) is
// enforced by the backend and PortAudio's allocator.
func Open(sampleRate, channels, grainFrames int) (*Device, error) {
	if err := portaudio.Initialize(); err != nil {
		return nil, fmt.Errorf("capture: init portaudio: %w", err)
	}

	defaultIn, err := portaudio.DefaultInputDevice()
	if err != nil {
		portaudio.Terminate()
		return nil, fmt.Errorf("capture: no default input device: %w", err)
	}

	grain := make([]float32, grainFrames*channels)
	params := portaudio.LowLatencyParameters(defaultIn, nil)
	params.Input.Channels = channels
	params.Output.Channels = 0
	params.SampleRate = float64(sampleRate)
	params.FramesPerBuffer = grainFrames

	stream, err := portaudio.OpenStream(params, grain)
	if err != nil && defaultIn.DefaultSampleRate != params.SampleRate {
		// The requested rate is only a hint: retry at the device's own rate.
		params.SampleRate = defaultIn.DefaultSampleRate
		stream, err = portaudio.OpenStream(params, grain)
	}
	if err != nil {
		portaudio.Terminate()
		return nil, fmt.Errorf("capture: open stream: %w", err)
	}
	if err := stream.Start(); err != nil {
		stream.Close()
		portaudio.Terminate()
		return nil, fmt.Errorf("capture: start stream: %w", err)
	}

	nativeRate := int(params.SampleRate)

	return &Device{
		stream:     stream,
		grain:      grain,
		nativeRate: nativeRate,
		channels:   channels,
	}, nil
}

// NativeSampleRate returns the rate the platform actually opened the
// device at.
func (d *Device) NativeSampleRate() int { return d.nativeRate }

// GrainSamples returns the number of interleaved samples (frames ×
// channels) one Read call delivers. Callers must size their read
// buffer to at least this many samples: the backend's grain is fixed
// at Open time and is independent of the encoder's frame size (spec
// §4.1), so a buffer sized to the encoder's frame size can be smaller
// than the grain and silently truncate captured audio.
func (d *Device) GrainSamples() int { return len(d.grain) }

// Read blocks until one capture grain is available and copies it into
// buf, which must be at least GrainSamples() long. It returns the
// number of interleaved samples written, or fewer than a full grain
// only on shutdown.
func (d *Device) Read(buf []float32) (int, error) {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return 0, ErrClosed
	}
	stream := d.stream
	d.mu.Unlock()

	if err := stream.Read(); err != nil {
		return 0, fmt.Errorf("capture: read: %w", err)
	}
	n := copy(buf, d.grain)
	return n, nil
}

// Close stops and releases the capture stream. Safe to call once;
// subsequent Reads return ErrClosed.
func (d *Device) Close() error {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return nil
	}
	d.closed = true
	stream := d.stream
	d.mu.Unlock()

	err := stream.Close()
	portaudio.Terminate()
	return err
}
