// Package hostpipeline wires the host-side receive, admission, decode,
// resample, and render stages into the single coordinator spec §5
// describes for the host process, and tracks the supplemented
// STOPPED/RUNNING/PAUSED/SUSPENSION state machine (spec §4.9, §7).
package hostpipeline

import (
	"context"
	"fmt"
	"math"
	"net"
	"sync"
	"time"

	"github.com/charmbracelet/log"

	"github.com/moonmic/moonmic/internal/admission"
	"github.com/moonmic/moonmic/internal/codec"
	"github.com/moonmic/moonmic/internal/config"
	"github.com/moonmic/moonmic/internal/heartbeat"
	"github.com/moonmic/moonmic/internal/receiver"
	"github.com/moonmic/moonmic/internal/render"
	"github.com/moonmic/moonmic/internal/resample"
	"github.com/moonmic/moonmic/internal/ring"
	"github.com/moonmic/moonmic/internal/stats"
	"github.com/moonmic/moonmic/internal/wire"
)

// State is the host pipeline's run state. Spec §4.9 only names
// CONNECTED/DISCONNECTED for the client's own state machine; the host
// additionally distinguishes whether it is actively rendering, paused
// by its own policy, or suspended because the admitted client's
// connection has timed out, so status reporting can tell those apart
// (supplemented, not part of spec.md's literal module list).
type State int

const (
	// Stopped is the host pipeline's state before any client has ever
	// been admitted.
	Stopped State = iota
	// Running is the state while an admitted client's audio is being
	// actively decoded and rendered.
	Running
	// Paused is Running with playback muted by host-side policy
	// (SetPaused(true), e.g. when the coexisting video stream pauses).
	Paused
	// Suspension is reached when the admitted client's audio stops
	// arriving for HostConnectionTimeout without a clean disconnect.
	Suspension
)

// HostConnectionTimeout is the host's own audio-silence threshold
// (spec §4.5): no accepted audio datagram for this long drops the
// session back to Suspension.
const HostConnectionTimeout = 2000 * time.Millisecond

// Pipeline coordinates the host's receive, admission, codec, and
// render stages for a single (one-at-a-time) client session.
type Pipeline struct {
	cfg    config.Host
	logger *log.Logger
	stats  *stats.Host

	recv *receiver.Receiver
	adm  *admission.Controller
	mix  *ring.Mixer
	rend *render.Renderer

	mu   sync.Mutex
	dec  *codec.Decoder
	rs   *resample.Resampler
	hb   *heartbeat.Monitor
	state State
}

// New builds the host pipeline. The playback device is opened eagerly
// at cfg.Audio.SampleRate/Channels; the decoder and resampler are
// deferred until the first admitted client's audio packet reports its
// own sample rate (spec §4.7).
func New(cfg config.Host, resolution config.ResolutionRequester, logger *log.Logger, st *stats.Host) (*Pipeline, error) {
	mixer := ring.New(cfg.Audio.Channels, cfg.Audio.SampleRate)

	rend, err := render.Open(mixer, cfg.Audio.SampleRate, cfg.Audio.Channels)
	if err != nil {
		return nil, fmt.Errorf("hostpipeline: fatal init: open renderer: %w", err)
	}
	st.SetOutputRateHz(rend.ActualSampleRate())

	var policy config.AdmissionPolicy = config.PairStatusPolicy{}
	if cfg.Security.SyncWithSunshine {
		policy = config.SunshinePairedPolicy{SunshinePaired: func() bool { return cfg.Sunshine.Paired }}
	}
	adm := admission.New(policy, cfg.Security.EnableWhitelist, resolution)

	p := &Pipeline{cfg: cfg, logger: logger, stats: st, adm: adm, mix: mixer, rend: rend, state: Stopped}

	recv, err := receiver.New(cfg.Server.BindAddress, cfg.Server.Port, adm, p.onAudio, p.onDropped)
	if err != nil {
		rend.Close()
		return nil, fmt.Errorf("hostpipeline: fatal init: %w", err)
	}
	p.recv = recv

	return p, nil
}

// Close releases every owned resource.
func (p *Pipeline) Close() error {
	p.recv.Close()
	p.rend.Close()
	p.mu.Lock()
	hb := p.hb
	p.mu.Unlock()
	if hb != nil {
		hb.Close()
	}
	return nil
}

// State returns the pipeline's current run state.
func (p *Pipeline) State() State {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.state
}

// SetPaused mutes (or resumes) rendering and forwards the transition to
// the client via the heartbeat monitor's STOP/START control packets.
func (p *Pipeline) SetPaused(paused bool) {
	p.mu.Lock()
	hb := p.hb
	if p.state == Running && paused {
		p.state = Paused
	} else if p.state == Paused && !paused {
		p.state = Running
	}
	p.mu.Unlock()

	p.stats.SetPaused(paused)
	if hb != nil {
		if err := hb.SetPaused(paused); err != nil {
			p.logger.Warn("failed to forward pause state to client", "err", err)
		}
	}
}

// Run drives the receive loop and a connection-timeout watchdog until
// ctx is canceled.
func (p *Pipeline) Run(ctx context.Context) {
	go p.recv.Run(ctx, p.onHandshake)
	p.watchTimeout(ctx)
}

func (p *Pipeline) watchTimeout(ctx context.Context) {
	ticker := time.NewTicker(500 * time.Millisecond)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			p.checkTimeout()
		}
	}
}

func (p *Pipeline) checkTimeout() {
	last := p.recv.LastPacketTime()
	if last.IsZero() {
		return
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.state == Running || p.state == Paused {
		if time.Since(last) > HostConnectionTimeout {
			p.state = Suspension
			p.stats.SetConnected(false)
			p.stats.SetReceiving(false)
			p.adm.Clear()
		}
	}
}

func (p *Pipeline) onHandshake(hs wire.HandshakePacket, addr *net.UDPAddr) {
	res := p.adm.Evaluate(hs, addr)
	if !res.Admitted {
		return
	}

	p.stats.SetConnected(true)
	p.stats.SetClientName(res.Session.DeviceName)
	p.stats.SetLastSender(addr)

	if res.SessionChanged {
		p.mix.Reset()
		p.mu.Lock()
		p.dec = nil
		p.rs = nil
		if p.hb != nil {
			p.hb.Close()
		}
		hb, err := heartbeat.New(addr.IP.String(), p.cfg.Server.ClientLivenessPort)
		if err != nil {
			p.logger.Error("failed to start heartbeat to client", "err", err)
		} else {
			p.hb = hb
			go hb.Run(context.Background())
		}
		p.state = Running
		p.mu.Unlock()
	}
}

func (p *Pipeline) onDropped(lag bool) {
	if lag {
		p.stats.PacketsDroppedLag.Add(1)
		return
	}
	p.stats.PacketsDropped.Add(1)
}

func (p *Pipeline) onAudio(header wire.PacketHeader, payload []byte) {
	p.stats.PacketsReceived.Add(1)
	p.stats.BytesReceived.Add(uint64(len(payload)))
	p.stats.SetReceiving(true)

	p.mu.Lock()
	if p.state == Suspension {
		p.state = Running
	}
	rate := int(header.SampleRate())

	if p.dec == nil || p.dec.SampleRate() != rate {
		dec, err := codec.NewDecoder(rate, 1)
		if err != nil {
			p.mu.Unlock()
			p.logger.Error("decoder init failed, dropping packet", "err", err)
			p.stats.PacketsDropped.Add(1)
			return
		}
		p.dec = dec
		rs, err := resample.New(rate, p.cfg.Audio.SampleRate, 1)
		if err != nil {
			p.mu.Unlock()
			p.logger.Error("resampler init failed, dropping packet", "err", err)
			p.stats.PacketsDropped.Add(1)
			return
		}
		p.rs = rs
	}
	dec, rs := p.dec, p.rs
	p.mu.Unlock()

	maxFrameSamples := rate / 50
	var pcm []float32
	var err error
	if header.IsRawPCM() {
		pcm = bytesToFloat32(payload)
	} else {
		pcm, err = dec.Decode(payload, maxFrameSamples)
		if err != nil {
			p.logger.Warn("decode failed, dropping frame", "err", err)
			p.stats.PacketsDropped.Add(1)
			return
		}
	}

	resampled, err := rs.Process(pcm)
	if err != nil {
		p.logger.Warn("resample failed, dropping frame", "err", err)
		p.stats.PacketsDropped.Add(1)
		return
	}

	written := p.mix.WriteMonoUpmixed(resampled, p.cfg.Audio.Channels)
	if written < len(resampled) {
		p.stats.RingOverflows.Add(1)
	}
}

func bytesToFloat32(b []byte) []float32 {
	out := make([]float32, len(b)/4)
	for i := range out {
		bits := uint32(b[i*4]) | uint32(b[i*4+1])<<8 | uint32(b[i*4+2])<<16 | uint32(b[i*4+3])<<24
		out[i] = math.Float32frombits(bits)
	}
	return out
}
