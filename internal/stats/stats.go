// Package stats holds the observable counters spec §6 surfaces to UI
// collaborators. Counters are monotonic and read non-atomically is
// acceptable per spec §5 ("acceptable tearing"), but we use atomics
// anyway since they are free on every platform this targets and remove
// any doubt during review.
package stats

import (
	"net"
	"sync/atomic"
)

// Host holds the host-side pipeline's observable state.
type Host struct {
	PacketsReceived   atomic.Uint64
	PacketsDropped    atomic.Uint64
	PacketsDroppedLag atomic.Uint64
	BytesReceived     atomic.Uint64
	RingOverflows     atomic.Uint64

	lastSenderIP atomic.Value // string
	clientName   atomic.Value // string
	connected    atomic.Bool
	receiving    atomic.Bool
	paused       atomic.Bool
	rttMs        atomic.Int64
	outputRateHz atomic.Int64
}

// SetLastSender records the address that most recently admitted audio.
func (h *Host) SetLastSender(addr *net.UDPAddr) {
	if addr == nil {
		h.lastSenderIP.Store("")
		return
	}
	h.lastSenderIP.Store(addr.IP.String())
}

// LastSenderIP returns the last admitted client's IP, or "" if none.
func (h *Host) LastSenderIP() string {
	v, _ := h.lastSenderIP.Load().(string)
	return v
}

// SetClientName records the admitted client's device name.
func (h *Host) SetClientName(name string) { h.clientName.Store(name) }

// ClientName returns the admitted client's device name.
func (h *Host) ClientName() string {
	v, _ := h.clientName.Load().(string)
	return v
}

// SetConnected marks whether a client is currently validated.
func (h *Host) SetConnected(v bool) { h.connected.Store(v) }

// IsConnected reports whether a client is currently validated.
func (h *Host) IsConnected() bool { return h.connected.Load() }

// SetReceiving marks whether audio packets are currently arriving.
func (h *Host) SetReceiving(v bool) { h.receiving.Store(v) }

// IsReceiving reports whether audio packets are currently arriving.
func (h *Host) IsReceiving() bool { return h.receiving.Load() }

// SetPaused mirrors the host's own pause state (the flip side of the
// STOP/START control signal it sends to the client).
func (h *Host) SetPaused(v bool) { h.paused.Store(v) }

// IsPaused reports the host's pause state.
func (h *Host) IsPaused() bool { return h.paused.Load() }

// SetRTTMs records the most recent heartbeat round-trip estimate.
func (h *Host) SetRTTMs(ms int64) { h.rttMs.Store(ms) }

// RTTMs returns the most recent heartbeat round-trip estimate.
func (h *Host) RTTMs() int64 { return h.rttMs.Load() }

// SetOutputRateHz records the audio-output device's actual sample rate.
func (h *Host) SetOutputRateHz(hz int) { h.outputRateHz.Store(int64(hz)) }

// OutputRateHz returns the audio-output device's actual sample rate.
func (h *Host) OutputRateHz() int { return int(h.outputRateHz.Load()) }

// Snapshot is an immutable copy of Host suitable for exposing to a UI.
type Snapshot struct {
	PacketsReceived   uint64
	PacketsDropped    uint64
	PacketsDroppedLag uint64
	BytesReceived     uint64
	RingOverflows     uint64
	LastSenderIP      string
	ClientName        string
	IsConnected       bool
	IsReceiving       bool
	IsPaused          bool
	RTTMs             int64
	OutputRateHz      int
}

// Snapshot captures a point-in-time read of all counters and state.
func (h *Host) Snapshot() Snapshot {
	return Snapshot{
		PacketsReceived:   h.PacketsReceived.Load(),
		PacketsDropped:    h.PacketsDropped.Load(),
		PacketsDroppedLag: h.PacketsDroppedLag.Load(),
		BytesReceived:     h.BytesReceived.Load(),
		RingOverflows:     h.RingOverflows.Load(),
		LastSenderIP:      h.LastSenderIP(),
		ClientName:        h.ClientName(),
		IsConnected:       h.IsConnected(),
		IsReceiving:       h.IsReceiving(),
		IsPaused:          h.IsPaused(),
		RTTMs:             h.RTTMs(),
		OutputRateHz:      h.OutputRateHz(),
	}
}
