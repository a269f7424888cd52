// Package receiver implements the host's single UDP ingestion point
// (spec §4.5): it binds the configured socket, demultiplexes incoming
// datagrams by magic, discards anything too short or from a
// non-current sender, flags lagging datagrams by socket backlog, and
// records the last accepted packet time for the host's own
// connection-timeout bookkeeping.
package receiver

import (
	"context"
	"fmt"
	"net"
	"sync/atomic"
	"syscall"
	"time"

	"golang.org/x/sys/unix"

	"github.com/moonmic/moonmic/internal/admission"
	"github.com/moonmic/moonmic/internal/wire"
)

// backlogThresholdBytes is the socket-buffer depth past which an
// admitted datagram is flagged "lagging" and dropped before decode
// (spec §4.5, §8 scenario 6).
const backlogThresholdBytes = 2048

// AudioHandler processes one admitted audio datagram's header and
// payload.
type AudioHandler func(header wire.PacketHeader, payload []byte)

// Receiver owns the host's inbound UDP socket.
type Receiver struct {
	conn      *net.UDPConn
	rawConn   syscall.RawConn
	admission *admission.Controller
	onAudio   AudioHandler
	onDropped func(lag bool)

	lastPacketUnixNano atomic.Int64
}

// New binds the host's UDP socket at bindAddress:port.
func New(bindAddress string, port uint16, adm *admission.Controller, onAudio AudioHandler, onDropped func(lag bool)) (*Receiver, error) {
	addr := &net.UDPAddr{IP: net.ParseIP(bindAddress), Port: int(port)}
	conn, err := net.ListenUDP("udp", addr)
	if err != nil {
		return nil, fmt.Errorf("receiver: listen: %w", err)
	}
	rawConn, err := conn.SyscallConn()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("receiver: raw conn: %w", err)
	}
	return &Receiver{conn: conn, rawConn: rawConn, admission: adm, onAudio: onAudio, onDropped: onDropped}, nil
}

// Close releases the receive socket.
func (r *Receiver) Close() error {
	return r.conn.Close()
}

// LocalPort returns the bound local UDP port.
func (r *Receiver) LocalPort() int {
	return r.conn.LocalAddr().(*net.UDPAddr).Port
}

// LastPacketTime returns the arrival time of the most recently accepted
// datagram, used by the host's own 2000 ms connection-timeout check
// (spec §4.5). The zero Time is returned if no datagram has ever been
// accepted.
func (r *Receiver) LastPacketTime() time.Time {
	nano := r.lastPacketUnixNano.Load()
	if nano == 0 {
		return time.Time{}
	}
	return time.Unix(0, nano)
}

// Run reads and dispatches datagrams until ctx is canceled.
func (r *Receiver) Run(ctx context.Context, onHandshake func(wire.HandshakePacket, *net.UDPAddr)) {
	go func() {
		<-ctx.Done()
		r.conn.Close()
	}()

	buf := make([]byte, 65536)
	for {
		n, addr, err := r.conn.ReadFromUDP(buf)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			continue
		}
		r.dispatch(buf[:n], addr, onHandshake)
	}
}

func (r *Receiver) dispatch(data []byte, addr *net.UDPAddr, onHandshake func(wire.HandshakePacket, *net.UDPAddr)) {
	if len(data) < 4 {
		return
	}
	magic, _ := wire.PeekMagic(data)

	switch magic {
	case wire.AudioMagic:
		r.handleAudio(data, addr)
	case wire.HandshakeMagic, wire.HandshakeMagicAlt:
		hs, err := wire.DecodeHandshake(data)
		if err != nil {
			return
		}
		if onHandshake != nil {
			onHandshake(hs, addr)
		}
	default:
		// Unrecognized or below the minimum header size: discarded
		// per spec §4.5.
	}
}

func (r *Receiver) handleAudio(data []byte, addr *net.UDPAddr) {
	if len(data) < wire.HeaderSize {
		return
	}
	if r.admission != nil && !r.admission.IsCurrent(addr) {
		if r.onDropped != nil {
			r.onDropped(false)
		}
		return
	}

	header, err := wire.DecodeHeader(data)
	if err != nil {
		return
	}

	r.lastPacketUnixNano.Store(time.Now().UnixNano())

	if r.ingressBacklogBytes() > backlogThresholdBytes {
		if r.onDropped != nil {
			r.onDropped(true)
		}
		return
	}

	if r.onAudio != nil {
		r.onAudio(header, data[wire.HeaderSize:])
	}
}

// ingressBacklogBytes reports the number of bytes still queued on the
// kernel socket buffer behind the datagram just read (spec §4.5: "the
// Receiver tracks socket backlog ... after the current read"), via
// FIONREAD on the underlying file descriptor. It returns 0 if the
// ioctl fails.
func (r *Receiver) ingressBacklogBytes() int {
	var n int
	err := r.rawConn.Control(func(fd uintptr) {
		n, _ = unix.IoctlGetInt(int(fd), unix.FIONREAD)
	})
	if err != nil {
		return 0
	}
	return n
}
