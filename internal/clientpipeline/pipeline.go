// Package clientpipeline wires capture, frame aggregation, encoding,
// and transmission into the client-side voice pipeline spec §5
// describes, gated by the liveness monitor's CanSend() and driven by
// handshake resend on every DISCONNECTED→CONNECTED transition.
package clientpipeline

import (
	"context"
	"fmt"

	"github.com/charmbracelet/log"

	"github.com/moonmic/moonmic/internal/aggregate"
	"github.com/moonmic/moonmic/internal/capture"
	"github.com/moonmic/moonmic/internal/codec"
	"github.com/moonmic/moonmic/internal/config"
	"github.com/moonmic/moonmic/internal/liveness"
	"github.com/moonmic/moonmic/internal/transmit"
	"github.com/moonmic/moonmic/internal/wire"
)

// Pipeline owns the capture goroutine and the capture→aggregate→encode→
// send chain that goroutine drives.
type Pipeline struct {
	cfg    config.Client
	logger *log.Logger

	cap  capture.Capture
	agg  *aggregate.Aggregator
	enc  *codec.Encoder
	tx   *transmit.Transmitter
	live *liveness.Monitor

	framesEncoded uint64
	framesDropped uint64
}

// New opens the capture device and encoder and dials the transmitter,
// matching the capture device's native rate (spec §4.1: "the platform
// decides the actual rate").
func New(cfg config.Client, live *liveness.Monitor, logger *log.Logger) (*Pipeline, error) {
	grainFrames := aggregate.FrameSizeForRate(cfg.Audio.SampleRate)

	dev, err := capture.Open(cfg.Audio.SampleRate, cfg.Audio.Channels, grainFrames)
	if err != nil {
		return nil, fmt.Errorf("clientpipeline: fatal init: open capture: %w", err)
	}

	nativeRate := dev.NativeSampleRate()
	frameSize := aggregate.FrameSizeForRate(nativeRate) * cfg.Audio.Channels

	enc, err := codec.NewEncoder(nativeRate, cfg.Audio.Channels, cfg.Bitrate)
	if err != nil {
		dev.Close()
		return nil, fmt.Errorf("clientpipeline: fatal init: new encoder: %w", err)
	}

	tx, err := transmit.New(cfg.HostAddress, cfg.HostPort)
	if err != nil {
		dev.Close()
		return nil, fmt.Errorf("clientpipeline: fatal init: dial transmitter: %w", err)
	}

	return &Pipeline{
		cfg:    cfg,
		logger: logger,
		cap:    dev,
		agg:    aggregate.New(frameSize),
		enc:    enc,
		tx:     tx,
		live:   live,
	}, nil
}

// Close releases the capture device and transmitter socket.
func (p *Pipeline) Close() error {
	txErr := p.tx.Close()
	capErr := p.cap.Close()
	if capErr != nil {
		return capErr
	}
	return txErr
}

// Run captures, encodes, and sends audio until ctx is canceled. It
// resends the handshake at startup and on every DISCONNECTED→CONNECTED
// transition (spec §4.4).
func (p *Pipeline) Run(ctx context.Context) error {
	if err := p.sendHandshake(); err != nil {
		p.logger.Error("handshake send failed", "err", err)
	}

	grain := make([]float32, p.cap.GrainSamples())
	lastStatus := liveness.Disconnected

	for {
		select {
		case <-ctx.Done():
			return nil
		default:
		}

		n, err := p.cap.Read(grain)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			// A capture read failure mid-session is a SessionFault per
			// spec §4.10: log and retry rather than tearing down.
			p.logger.Error("capture read failed", "err", err)
			continue
		}

		status := p.live.Status()
		if lastStatus == liveness.Disconnected && status == liveness.Connected {
			if err := p.sendHandshake(); err != nil {
				p.logger.Error("handshake resend failed", "err", err)
			}
		}
		lastStatus = status

		frames := p.agg.Push(grain[:n])
		if !p.live.CanSend() {
			continue
		}

		for _, frame := range frames {
			p.sendFrame(frame)
		}
	}
}

func (p *Pipeline) sendFrame(frame []float32) {
	payload, err := p.enc.Encode(frame)
	if err != nil {
		p.framesDropped++
		p.logger.Warn("frame encode failed, dropping", "err", err)
		return
	}

	ok, err := p.tx.SendAudio(payload, uint32(p.enc.SampleRate()), false)
	if err != nil {
		p.framesDropped++
		p.logger.Warn("frame send failed, dropping", "err", err)
		return
	}
	if !ok {
		p.framesDropped++
		return
	}
	p.framesEncoded++
}

func (p *Pipeline) sendHandshake() error {
	return p.tx.SendHandshake(wire.HandshakePacket{
		Version:    wire.ProtocolVersion,
		PairStatus: 1,
		UniqueID:   p.cfg.UniqueID,
		DeviceName: p.cfg.DeviceName,
	})
}

// FramesEncoded returns the count of frames successfully sent.
func (p *Pipeline) FramesEncoded() uint64 { return p.framesEncoded }

// FramesDropped returns the count of frames dropped due to a
// TransientFrame-class encode or send failure.
func (p *Pipeline) FramesDropped() uint64 { return p.framesDropped }
