package liveness

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/moonmic/moonmic/internal/wire"
	"github.com/stretchr/testify/require"
)

func sendTo(t *testing.T, port int, payload []byte) {
	t.Helper()
	conn, err := net.DialUDP("udp", nil, &net.UDPAddr{IP: net.IPv4(127, 0, 0, 1), Port: port})
	require.NoError(t, err)
	defer conn.Close()
	_, err = conn.Write(payload)
	require.NoError(t, err)
}

func newRunningMonitor(t *testing.T) (*Monitor, context.CancelFunc) {
	t.Helper()
	m, err := Listen(0)
	require.NoError(t, err)
	ctx, cancel := context.WithCancel(context.Background())
	go m.Run(ctx)
	return m, cancel
}

// TestPingTransitionsToConnected is spec §8 property 4: a valid PING
// moves DISCONNECTED to CONNECTED.
func TestPingTransitionsToConnected(t *testing.T) {
	m, cancel := newRunningMonitor(t)
	defer cancel()

	require.Equal(t, Disconnected, m.Status())

	ping := wire.PingPacket{TimestampUs: 123}.Encode()
	sendTo(t, m.LocalPort(), ping)

	require.Eventually(t, func() bool { return m.Status() == Connected }, time.Second, 5*time.Millisecond)
}

// TestStopStartTogglesPausedIndependentlyOfStatus is spec §8 property 5:
// paused is orthogonal to the connection status.
func TestStopStartTogglesPausedIndependentlyOfStatus(t *testing.T) {
	m, cancel := newRunningMonitor(t)
	defer cancel()

	stop := wire.ControlPacket{Magic: wire.StopMagic}.Encode()
	sendTo(t, m.LocalPort(), stop)
	require.Eventually(t, func() bool { return m.Paused() }, time.Second, 5*time.Millisecond)
	require.Equal(t, Disconnected, m.Status())

	start := wire.ControlPacket{Magic: wire.StartMagic}.Encode()
	sendTo(t, m.LocalPort(), start)
	require.Eventually(t, func() bool { return !m.Paused() }, time.Second, 5*time.Millisecond)
}

// TestPingStarvationScenario is spec §8 scenario 5: at t0+2.9s the
// client is still CONNECTED, at t0+3.1s it has gone DISCONNECTED, and a
// PING at t0+3.2s restores CONNECTED.
func TestPingStarvationScenario(t *testing.T) {
	if testing.Short() {
		t.Skip("timing scenario skipped in short mode")
	}

	m, cancel := newRunningMonitor(t)
	defer cancel()

	ping := wire.PingPacket{TimestampUs: 1}.Encode()

	t0 := time.Now()
	sendTo(t, m.LocalPort(), ping)
	require.Eventually(t, func() bool { return m.Status() == Connected }, time.Second, 5*time.Millisecond)

	time.Sleep(time.Until(t0.Add(2900 * time.Millisecond)))
	require.Equal(t, Connected, m.Status())

	time.Sleep(time.Until(t0.Add(3100 * time.Millisecond)))
	require.Equal(t, Disconnected, m.Status())

	time.Sleep(time.Until(t0.Add(3200 * time.Millisecond)))
	sendTo(t, m.LocalPort(), ping)
	require.Eventually(t, func() bool { return m.Status() == Connected }, time.Second, 5*time.Millisecond)
}

func TestCanSendRequiresConnectedAndUnpaused(t *testing.T) {
	m, cancel := newRunningMonitor(t)
	defer cancel()

	require.False(t, m.CanSend())

	ping := wire.PingPacket{TimestampUs: 1}.Encode()
	sendTo(t, m.LocalPort(), ping)
	require.Eventually(t, m.CanSend, time.Second, 5*time.Millisecond)

	stop := wire.ControlPacket{Magic: wire.StopMagic}.Encode()
	sendTo(t, m.LocalPort(), stop)
	require.Eventually(t, func() bool { return !m.CanSend() }, time.Second, 5*time.Millisecond)
}
