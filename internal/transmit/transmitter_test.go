package transmit

import (
	"net"
	"testing"

	"github.com/moonmic/moonmic/internal/wire"
	"github.com/stretchr/testify/require"
)

func TestSendAudioStampsHeaderAndIncrementsSequence(t *testing.T) {
	listener, err := net.ListenUDP("udp", &net.UDPAddr{IP: net.IPv4(127, 0, 0, 1), Port: 0})
	require.NoError(t, err)
	defer listener.Close()

	laddr := listener.LocalAddr().(*net.UDPAddr)
	tx, err := New("127.0.0.1", uint16(laddr.Port))
	require.NoError(t, err)
	defer tx.Close()

	ok, err := tx.SendAudio([]byte{1, 2, 3}, 48000, false)
	require.NoError(t, err)
	require.True(t, ok)

	buf := make([]byte, 64)
	n, _, err := listener.ReadFromUDP(buf)
	require.NoError(t, err)
	require.Equal(t, wire.HeaderSize+3, n)

	magic, ok := wire.PeekMagic(buf[:n])
	require.True(t, ok)
	require.Equal(t, wire.AudioMagic, magic)

	hdr, err := wire.DecodeHeader(buf[:n])
	require.NoError(t, err)
	require.EqualValues(t, 0, hdr.Sequence)
	require.False(t, hdr.IsRawPCM())
	require.EqualValues(t, 48000, hdr.SampleRate())
	require.Equal(t, []byte{1, 2, 3}, buf[wire.HeaderSize:n])

	ok, err = tx.SendAudio([]byte{4}, 16000, true)
	require.NoError(t, err)
	require.True(t, ok)

	n, _, err = listener.ReadFromUDP(buf)
	require.NoError(t, err)
	hdr, err = wire.DecodeHeader(buf[:n])
	require.NoError(t, err)
	require.EqualValues(t, 1, hdr.Sequence)
	require.True(t, hdr.IsRawPCM())
	require.EqualValues(t, 16000, hdr.SampleRate())
}

func TestSendHandshake(t *testing.T) {
	listener, err := net.ListenUDP("udp", &net.UDPAddr{IP: net.IPv4(127, 0, 0, 1), Port: 0})
	require.NoError(t, err)
	defer listener.Close()

	laddr := listener.LocalAddr().(*net.UDPAddr)
	tx, err := New("127.0.0.1", uint16(laddr.Port))
	require.NoError(t, err)
	defer tx.Close()

	err = tx.SendHandshake(wire.HandshakePacket{
		Version:    wire.ProtocolVersion,
		PairStatus: 1,
		UniqueID:   "0123456789ABCDEF",
		DeviceName: "vita",
	})
	require.NoError(t, err)

	buf := make([]byte, wire.HandshakeSize+8)
	n, _, err := listener.ReadFromUDP(buf)
	require.NoError(t, err)

	hs, err := wire.DecodeHandshake(buf[:n])
	require.NoError(t, err)
	require.Equal(t, "vita", hs.DeviceName)
}
