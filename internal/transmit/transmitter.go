// Package transmit implements the Transmitter: a non-blocking UDP
// sender with a fixed peer that stamps the 20-byte wire header and
// paces strictly by the caller's cadence. It has no scheduler of its
// own.
package transmit

import (
	"errors"
	"fmt"
	"net"
	"sync/atomic"
	"time"

	"github.com/moonmic/moonmic/internal/wire"
)

// ErrSendFailed wraps a transient send failure: drop the frame and
// continue rather than tearing down the connection.
var ErrSendFailed = errors.New("transmit: send failed")

// Transmitter sends encoded voice payloads and protocol control
// packets to a single fixed host peer over a non-blocking UDP socket.
type Transmitter struct {
	conn     *net.UDPConn
	sequence atomic.Uint32
	start    time.Time
}

// New dials a non-blocking UDP socket to hostAddr:hostPort. The local
// port is left to the OS; only ClientLiveness needs a fixed local
// port, since it is the side the host's heartbeats target.
func New(hostAddr string, hostPort uint16) (*Transmitter, error) {
	raddr, err := net.ResolveUDPAddr("udp", fmt.Sprintf("%s:%d", hostAddr, hostPort))
	if err != nil {
		return nil, fmt.Errorf("transmit: resolve host address: %w", err)
	}
	conn, err := net.DialUDP("udp", nil, raddr)
	if err != nil {
		return nil, fmt.Errorf("transmit: dial: %w", err)
	}
	return &Transmitter{conn: conn, start: time.Now()}, nil
}

// Close releases the underlying socket.
func (t *Transmitter) Close() error {
	return t.conn.Close()
}

func (t *Transmitter) timestampUs() uint64 {
	return uint64(time.Since(t.start).Microseconds())
}

// SendAudio prepends the header (sequence++, current timestamp,
// sampleRate with the raw-PCM bit set as requested) and sends the
// payload in one datagram. It returns true only if the OS accepted the
// whole datagram in a single non-blocking call; spec §4.4 treats a
// partial/failed send as a dropped frame, not a fatal error.
func (t *Transmitter) SendAudio(payload []byte, sampleRate uint32, rawPCM bool) (bool, error) {
	flags := sampleRate
	if rawPCM {
		flags |= wire.RawPCMFlag
	}

	header := wire.PacketHeader{
		Sequence:           t.sequence.Add(1) - 1,
		TimestampUs:        t.timestampUs(),
		SampleRateAndFlags: flags,
	}

	datagram := header.Encode(make([]byte, 0, wire.HeaderSize+len(payload)))
	datagram = append(datagram, payload...)

	n, err := t.conn.Write(datagram)
	if err != nil {
		return false, fmt.Errorf("%w: %v", ErrSendFailed, err)
	}
	return n == len(datagram), nil
}

// SendHandshake emits a handshake packet. Spec §4.4: the client SHOULD
// send one at session start and on any DISCONNECTED→CONNECTED
// transition.
func (t *Transmitter) SendHandshake(hs wire.HandshakePacket) error {
	encoded, err := hs.Encode()
	if err != nil {
		return fmt.Errorf("transmit: encode handshake: %w", err)
	}
	if _, err := t.conn.Write(encoded); err != nil {
		return fmt.Errorf("%w: %v", ErrSendFailed, err)
	}
	return nil
}
