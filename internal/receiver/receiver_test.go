package receiver

import (
	"context"
	"net"
	"sync"
	"testing"
	"time"

	"github.com/moonmic/moonmic/internal/admission"
	"github.com/moonmic/moonmic/internal/config"
	"github.com/moonmic/moonmic/internal/wire"
	"github.com/stretchr/testify/require"
)

func dialLocal(t *testing.T, port int) *net.UDPConn {
	t.Helper()
	conn, err := net.DialUDP("udp", nil, &net.UDPAddr{IP: net.IPv4(127, 0, 0, 1), Port: port})
	require.NoError(t, err)
	return conn
}

func TestAudioDispatchedWithNoAdmissionControllerConfigured(t *testing.T) {
	var mu sync.Mutex
	var received [][]byte

	recv, err := New("127.0.0.1", 0, nil, func(h wire.PacketHeader, payload []byte) {
		mu.Lock()
		defer mu.Unlock()
		received = append(received, append([]byte(nil), payload...))
	}, nil)
	require.NoError(t, err)
	defer recv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go recv.Run(ctx, nil)

	port := recv.LocalPort()
	conn := dialLocal(t, port)
	defer conn.Close()

	header := wire.PacketHeader{Sequence: 1, SampleRateAndFlags: 48000}
	datagram := header.Encode(nil)
	datagram = append(datagram, []byte{9, 9, 9}...)
	_, err = conn.Write(datagram)
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(received) == 1
	}, time.Second, 5*time.Millisecond)
}

func TestHandshakeDispatchedToCallback(t *testing.T) {
	var mu sync.Mutex
	var got *wire.HandshakePacket

	recv, err := New("127.0.0.1", 0, nil, nil, nil)
	require.NoError(t, err)
	defer recv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go recv.Run(ctx, func(hs wire.HandshakePacket, addr *net.UDPAddr) {
		mu.Lock()
		defer mu.Unlock()
		h := hs
		got = &h
	})

	conn := dialLocal(t, recv.LocalPort())
	defer conn.Close()

	encoded, err := wire.HandshakePacket{Version: wire.ProtocolVersion, PairStatus: 1, UniqueID: "a", DeviceName: "b"}.Encode()
	require.NoError(t, err)
	_, err = conn.Write(encoded)
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return got != nil
	}, time.Second, 5*time.Millisecond)

	mu.Lock()
	defer mu.Unlock()
	require.Equal(t, "b", got.DeviceName)
}

func TestAudioFromNonCurrentSenderIsDropped(t *testing.T) {
	var calls int
	adm := admission.New(config.PairStatusPolicy{}, true, nil)

	recv, err := New("127.0.0.1", 0, adm, func(wire.PacketHeader, []byte) { calls++ }, nil)
	require.NoError(t, err)
	defer recv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go recv.Run(ctx, nil)

	conn := dialLocal(t, recv.LocalPort())
	defer conn.Close()

	header := wire.PacketHeader{Sequence: 1, SampleRateAndFlags: 48000}
	datagram := header.Encode(nil)
	_, err = conn.Write(datagram)
	require.NoError(t, err)

	time.Sleep(50 * time.Millisecond)
	require.Equal(t, 0, calls)
}

// TestIngressBacklogFlagsLagAndSkipsDecode is spec §8 scenario 6:
// injecting a burst of audio packets faster than the receive loop can
// drain fills the kernel socket buffer past backlogThresholdBytes,
// and those packets must be counted as packets_dropped_lag rather
// than reaching onAudio.
func TestIngressBacklogFlagsLagAndSkipsDecode(t *testing.T) {
	var mu sync.Mutex
	var audioCalls, lagDrops, plainDrops int

	recv, err := New("127.0.0.1", 0, nil,
		func(wire.PacketHeader, []byte) {
			mu.Lock()
			audioCalls++
			mu.Unlock()
		},
		func(lag bool) {
			mu.Lock()
			if lag {
				lagDrops++
			} else {
				plainDrops++
			}
			mu.Unlock()
		})
	require.NoError(t, err)
	defer recv.Close()

	conn := dialLocal(t, recv.LocalPort())
	defer conn.Close()

	// Queue a burst of datagrams in the kernel socket buffer before the
	// receive loop ever starts draining it, so FIONREAD reports a real
	// backlog on the first reads.
	header := wire.PacketHeader{SampleRateAndFlags: 48000}
	datagram := header.Encode(nil)
	datagram = append(datagram, make([]byte, 200)...)
	for i := 0; i < 100; i++ {
		_, err := conn.Write(datagram)
		require.NoError(t, err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go recv.Run(ctx, nil)

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return audioCalls+lagDrops == 100
	}, 2*time.Second, 5*time.Millisecond)

	mu.Lock()
	defer mu.Unlock()
	require.Greater(t, lagDrops, 0, "expected at least one packet flagged as lagging")
	require.Equal(t, 0, plainDrops, "lag drops must not also count as plain drops")
}

func TestShortDatagramsAreDiscarded(t *testing.T) {
	called := false
	recv, err := New("127.0.0.1", 0, nil, func(wire.PacketHeader, []byte) { called = true }, nil)
	require.NoError(t, err)
	defer recv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go recv.Run(ctx, nil)

	conn := dialLocal(t, recv.LocalPort())
	defer conn.Close()
	_, err = conn.Write([]byte{1, 2, 3})
	require.NoError(t, err)

	time.Sleep(50 * time.Millisecond)
	require.False(t, called)
}
