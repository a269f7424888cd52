// Package aggregate implements the FrameAggregator (spec §4.2): it
// reshapes the platform capture's native grain into the encoder's
// fixed frame size, since those two sizes are rarely equal (256 frames
// at 16 kHz vs. an Opus 20 ms frame of 320 samples, for instance).
package aggregate

// Aggregator accumulates interleaved PCM samples and hands off
// exactly-sized frames once enough have accumulated. No silence padding
// is ever inserted; a partial frame simply waits for the next grain.
type Aggregator struct {
	frameSize int // target_frame_size, in interleaved samples (frames * channels)
	buf       []float32
}

// New creates an Aggregator targeting frameSize interleaved samples per
// emitted frame. frameSize is frames-per-channel-block × channels, e.g.
// 320 for 20 ms mono at 16 kHz, 960 for 20 ms mono at 48 kHz.
func New(frameSize int) *Aggregator {
	return &Aggregator{frameSize: frameSize}
}

// FrameSize returns the configured target frame size.
func (a *Aggregator) FrameSize() int { return a.frameSize }

// Push appends a capture grain and returns every complete frame that
// can now be formed, in arrival order. The returned slices are freshly
// allocated and safe for the caller to retain.
func (a *Aggregator) Push(grain []float32) [][]float32 {
	a.buf = append(a.buf, grain...)

	var frames [][]float32
	for len(a.buf) >= a.frameSize {
		frame := make([]float32, a.frameSize)
		copy(frame, a.buf[:a.frameSize])
		frames = append(frames, frame)
		a.buf = a.buf[a.frameSize:]
	}
	// Compact to avoid retaining the full history via re-slicing.
	if len(a.buf) > 0 {
		remainder := make([]float32, len(a.buf))
		copy(remainder, a.buf)
		a.buf = remainder
	} else {
		a.buf = nil
	}
	return frames
}

// Pending returns the number of samples currently waiting for the next
// grain (always < frameSize).
func (a *Aggregator) Pending() int { return len(a.buf) }

// FrameSizeForRate returns the 20 ms encoder frame size at sampleRate
// Hz for a single channel, per spec §4.2 (320 at 16 kHz, 480 at
// 24 kHz, 960 at 48 kHz).
func FrameSizeForRate(sampleRate int) int {
	return sampleRate / 50
}
