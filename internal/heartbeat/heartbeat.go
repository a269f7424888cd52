// Package heartbeat implements the host's side of liveness and flow
// control (spec §4.9): a periodic PING to the admitted client, and
// STOP/START control packets driven by the host's own pause/resume
// transitions.
package heartbeat

import (
	"context"
	"fmt"
	"net"
	"time"

	"github.com/moonmic/moonmic/internal/wire"
)

// PingInterval is the host's outgoing liveness cadence (spec §4.9).
const PingInterval = 2 * time.Second

// Monitor sends periodic PINGs, and STOP/START control packets on
// pause/resume, to the client's liveness port over one socket.
type Monitor struct {
	conn  *net.UDPConn
	start time.Time
	paused bool
}

// New dials a UDP socket at the client's liveness address.
func New(clientIP string, livenessPort uint16) (*Monitor, error) {
	raddr, err := net.ResolveUDPAddr("udp", fmt.Sprintf("%s:%d", clientIP, livenessPort))
	if err != nil {
		return nil, fmt.Errorf("heartbeat: resolve client liveness address: %w", err)
	}
	conn, err := net.DialUDP("udp", nil, raddr)
	if err != nil {
		return nil, fmt.Errorf("heartbeat: dial: %w", err)
	}
	return &Monitor{conn: conn, start: time.Now()}, nil
}

// Close releases the heartbeat socket.
func (m *Monitor) Close() error {
	return m.conn.Close()
}

// Run sends a PING every PingInterval until ctx is canceled.
func (m *Monitor) Run(ctx context.Context) {
	ticker := time.NewTicker(PingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.sendPing()
		}
	}
}

func (m *Monitor) sendPing() {
	pkt := wire.PingPacket{TimestampUs: uint64(time.Since(m.start).Microseconds())}
	m.conn.Write(pkt.Encode())
}

// SetPaused emits STOP on a false→true transition and START on
// true→false, matching the host's own audio-pause state (spec §4.9).
// It is a no-op when the requested state matches the current one.
func (m *Monitor) SetPaused(paused bool) error {
	if paused == m.paused {
		return nil
	}
	m.paused = paused

	magic := wire.StartMagic
	if paused {
		magic = wire.StopMagic
	}
	if _, err := m.conn.Write(wire.ControlPacket{Magic: magic}.Encode()); err != nil {
		return fmt.Errorf("heartbeat: send control packet: %w", err)
	}
	return nil
}

// Paused reports the last control state sent to the client.
func (m *Monitor) Paused() bool { return m.paused }
