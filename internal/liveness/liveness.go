// Package liveness implements ClientLiveness (spec §4.9) and the
// client-side connection state machine (spec §3 ConnectionStatus,
// §4.9, §8 properties 4–5): a bound UDP socket with a 100 ms receive
// timeout that tracks the host's PING/STOP/START traffic and derives
// CONNECTED/DISCONNECTED and an orthogonal paused flag.
package liveness

import (
	"context"
	"fmt"
	"net"
	"sync/atomic"
	"time"

	"github.com/moonmic/moonmic/internal/wire"
)

// Status is the client connection state machine's state.
type Status int32

const (
	// Disconnected is the initial state and the state reached after
	// PING starvation.
	Disconnected Status = iota
	// Connected is reached on any valid PING.
	Connected
)

func (s Status) String() string {
	if s == Connected {
		return "connected"
	}
	return "disconnected"
}

const (
	// RecvTimeout bounds how late a running-flag check can be (spec §5).
	RecvTimeout = 100 * time.Millisecond
	// PingStarvationTimeout is the CONNECTED→DISCONNECTED threshold
	// (spec §4.9, §8 property 4).
	PingStarvationTimeout = 3000 * time.Millisecond
)

// Monitor binds the client's liveness socket and runs the receive loop
// that drives Status and Paused. All public accessors are safe for
// concurrent use from the capture/send thread.
type Monitor struct {
	conn *net.UDPConn

	status       atomic.Int32
	paused       atomic.Bool
	lastPingUnix atomic.Int64 // UnixNano of last valid PING; 0 means "never"
}

// Listen binds UDP on the wildcard address at the given port (spec
// §6: "Client binds its liveness port on the wildcard address").
func Listen(port uint16) (*Monitor, error) {
	addr := &net.UDPAddr{IP: net.IPv4zero, Port: int(port)}
	conn, err := net.ListenUDP("udp", addr)
	if err != nil {
		return nil, fmt.Errorf("liveness: listen: %w", err)
	}
	m := &Monitor{conn: conn}
	m.status.Store(int32(Disconnected))
	return m, nil
}

// LocalPort returns the bound local UDP port.
func (m *Monitor) LocalPort() int {
	return m.conn.LocalAddr().(*net.UDPAddr).Port
}

// Status returns the current connection state.
func (m *Monitor) Status() Status {
	return Status(m.status.Load())
}

// Paused reports whether the host last told the client to STOP.
func (m *Monitor) Paused() bool {
	return m.paused.Load()
}

// CanSend reports whether the client's send path should transmit:
// spec §4.9's gate, "!paused && status == CONNECTED".
func (m *Monitor) CanSend() bool {
	return !m.Paused() && m.Status() == Connected
}

// Run drives the receive loop until ctx is canceled, at which point it
// closes the socket (to unblock any pending read) and returns.
func (m *Monitor) Run(ctx context.Context) {
	go func() {
		<-ctx.Done()
		m.conn.Close()
	}()

	buf := make([]byte, 1500)
	for {
		if ctx.Err() != nil {
			return
		}

		m.conn.SetReadDeadline(time.Now().Add(RecvTimeout))
		n, _, err := m.conn.ReadFromUDP(buf)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			m.checkStarvation()
			continue
		}

		m.handlePacket(buf[:n])
		m.checkStarvation()
	}
}

func (m *Monitor) handlePacket(data []byte) {
	magic, ok := wire.PeekMagic(data)
	if !ok {
		return
	}
	switch magic {
	case wire.PingMagic:
		if len(data) == wire.PingSize {
			m.lastPingUnix.Store(time.Now().UnixNano())
			m.status.Store(int32(Connected))
		}
	case wire.StopMagic:
		if len(data) == wire.ControlSize {
			m.paused.Store(true)
		}
	case wire.StartMagic:
		if len(data) == wire.ControlSize {
			m.paused.Store(false)
		}
	}
	// Unknown magics are silently dropped per spec §4.10.
}

func (m *Monitor) checkStarvation() {
	last := m.lastPingUnix.Load()
	if last == 0 {
		return
	}
	if time.Since(time.Unix(0, last)) > PingStarvationTimeout {
		m.status.Store(int32(Disconnected))
	}
}

// Close releases the liveness socket.
func (m *Monitor) Close() error {
	return m.conn.Close()
}
