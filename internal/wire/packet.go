// Package wire defines the on-the-wire packet layouts shared by the
// moonmic client and host. Every structure is serialized field-by-field
// in little-endian order; none of it relies on Go's in-memory struct
// layout, since that is platform- and compiler-dependent in ways the
// wire format must not be.
package wire

import (
	"encoding/binary"
	"errors"
)

// Magic values. Each is a little-endian uint32 whose byte-reversed ASCII
// spells the mnemonic, e.g. AudioMagic's bytes on the wire are "C","I",
// "M","M" which read backwards as "MMIC".
const (
	AudioMagic        uint32 = 0x4D4D4943 // "MMIC"
	HandshakeMagic    uint32 = 0x4D4F4F4E // "MOON"
	HandshakeMagicAlt uint32 = 0x4E4F4F4D // "NOOM", tolerated for endianness-confused clients
	PingMagic         uint32 = 0x50494E47 // "PING"
	StopMagic         uint32 = 0x53544F50 // "STOP"
	StartMagic        uint32 = 0x53545254 // "STRT"
)

// ProtocolVersion is the handshake version this implementation speaks.
const ProtocolVersion = 2

// FlagForceUpdate is handshake bit 0: re-apply resolution side effects
// even if the requested values match the admission controller's idea of
// current state.
const FlagForceUpdate = 0x01

// RawPCMFlag is the high bit of PacketHeader.SampleRateAndFlags: when
// set, the payload is uncompressed interleaved PCM instead of an
// encoded voice-codec payload.
const RawPCMFlag uint32 = 1 << 31

// HeaderSize is the fixed, packed size of PacketHeader in bytes.
const HeaderSize = 20

// HandshakeSize is the fixed, packed size of HandshakePacket in bytes.
const HandshakeSize = 4 + 1 + 1 + 1 + 16 + 1 + 64 + 2 + 2 + 1

// ControlSize is the fixed, packed size of ControlPacket in bytes.
const ControlSize = 8

// PingSize is the fixed, packed size of PingPacket in bytes.
const PingSize = 12

const (
	uniqueIDFieldLen   = 16
	deviceNameFieldLen = 64
)

var (
	// ErrShortPacket is returned when a buffer is too small to hold the
	// structure being decoded.
	ErrShortPacket = errors.New("wire: packet too short")
	// ErrFieldTooLong is returned when a variable-length field (unique
	// ID or device name) does not fit in its fixed wire slot.
	ErrFieldTooLong = errors.New("wire: field exceeds wire slot")
)

// PacketHeader precedes every audio-data datagram (spec §3). Sequence
// wraparound is permitted and is not an error; TimestampUs is a
// diagnostic hint only, never consulted for ordering.
type PacketHeader struct {
	Sequence           uint32
	TimestampUs        uint64
	SampleRateAndFlags uint32
}

// SampleRate returns the payload sample rate encoded in the low 31 bits.
func (h PacketHeader) SampleRate() uint32 {
	return h.SampleRateAndFlags &^ RawPCMFlag
}

// IsRawPCM reports whether the high bit marks this payload as
// uncompressed interleaved PCM rather than codec output.
func (h PacketHeader) IsRawPCM() bool {
	return h.SampleRateAndFlags&RawPCMFlag != 0
}

// Encode appends the header's wire bytes to dst and returns the result.
func (h PacketHeader) Encode(dst []byte) []byte {
	var buf [HeaderSize]byte
	binary.LittleEndian.PutUint32(buf[0:4], AudioMagic)
	binary.LittleEndian.PutUint32(buf[4:8], h.Sequence)
	binary.LittleEndian.PutUint64(buf[8:16], h.TimestampUs)
	binary.LittleEndian.PutUint32(buf[16:20], h.SampleRateAndFlags)
	return append(dst, buf[:]...)
}

// DecodeHeader parses a PacketHeader from the front of data. The caller
// must have already confirmed the leading magic is AudioMagic and that
// len(data) >= HeaderSize; DecodeHeader re-checks length defensively.
func DecodeHeader(data []byte) (PacketHeader, error) {
	if len(data) < HeaderSize {
		return PacketHeader{}, ErrShortPacket
	}
	return PacketHeader{
		Sequence:           binary.LittleEndian.Uint32(data[4:8]),
		TimestampUs:        binary.LittleEndian.Uint64(data[8:16]),
		SampleRateAndFlags: binary.LittleEndian.Uint32(data[16:20]),
	}, nil
}

// PeekMagic reads the leading 4-byte magic without validating the rest
// of the datagram. The Receiver uses this to discriminate packet kinds
// before dispatching to a type-specific decoder.
func PeekMagic(data []byte) (uint32, bool) {
	if len(data) < 4 {
		return 0, false
	}
	return binary.LittleEndian.Uint32(data[0:4]), true
}

// HandshakePacket is sent client→host to request admission (spec §3).
type HandshakePacket struct {
	Version        uint8
	PairStatus     uint8
	UniqueID       string
	DeviceName     string
	DisplayWidth   uint16
	DisplayHeight  uint16
	Flags          uint8
}

// ForceUpdate reports whether FlagForceUpdate is set.
func (p HandshakePacket) ForceUpdate() bool {
	return p.Flags&FlagForceUpdate != 0
}

// Encode serializes the handshake to its fixed HandshakeSize wire form.
func (p HandshakePacket) Encode() ([]byte, error) {
	if len(p.UniqueID) > uniqueIDFieldLen {
		return nil, ErrFieldTooLong
	}
	if len(p.DeviceName) > deviceNameFieldLen {
		return nil, ErrFieldTooLong
	}

	buf := make([]byte, HandshakeSize)
	binary.LittleEndian.PutUint32(buf[0:4], HandshakeMagic)
	buf[4] = p.Version
	buf[5] = p.PairStatus
	buf[6] = uint8(len(p.UniqueID))
	copy(buf[7:7+uniqueIDFieldLen], p.UniqueID)
	off := 7 + uniqueIDFieldLen
	buf[off] = uint8(len(p.DeviceName))
	off++
	copy(buf[off:off+deviceNameFieldLen], p.DeviceName)
	off += deviceNameFieldLen
	binary.LittleEndian.PutUint16(buf[off:off+2], p.DisplayWidth)
	off += 2
	binary.LittleEndian.PutUint16(buf[off:off+2], p.DisplayHeight)
	off += 2
	buf[off] = p.Flags
	return buf, nil
}

// DecodeHandshake parses a HandshakePacket. It only validates that the
// buffer is large enough and that the magic is one of the two tolerated
// values; field-level policy (version, lengths, pair status) is the
// AdmissionController's job per spec §4.6.
func DecodeHandshake(data []byte) (HandshakePacket, error) {
	if len(data) < HandshakeSize {
		return HandshakePacket{}, ErrShortPacket
	}
	magic := binary.LittleEndian.Uint32(data[0:4])
	if magic != HandshakeMagic && magic != HandshakeMagicAlt {
		return HandshakePacket{}, errors.New("wire: not a handshake magic")
	}

	p := HandshakePacket{
		Version:    data[4],
		PairStatus: data[5],
	}
	uidLen := int(data[6])
	if uidLen > uniqueIDFieldLen {
		uidLen = uniqueIDFieldLen
	}
	p.UniqueID = trimZero(data[7 : 7+uidLen])

	off := 7 + uniqueIDFieldLen
	nameLen := int(data[off])
	if nameLen > deviceNameFieldLen {
		nameLen = deviceNameFieldLen
	}
	off++
	p.DeviceName = trimZero(data[off : off+nameLen])
	off += deviceNameFieldLen

	p.DisplayWidth = binary.LittleEndian.Uint16(data[off : off+2])
	off += 2
	p.DisplayHeight = binary.LittleEndian.Uint16(data[off : off+2])
	off += 2
	p.Flags = data[off]

	return p, nil
}

func trimZero(b []byte) string {
	for i, c := range b {
		if c == 0 {
			return string(b[:i])
		}
	}
	return string(b)
}

// ControlPacket carries STOP/START flow control, host→client (spec §3).
type ControlPacket struct {
	Magic uint32
}

// Encode serializes the control packet to its fixed ControlSize wire form.
func (p ControlPacket) Encode() []byte {
	buf := make([]byte, ControlSize)
	binary.LittleEndian.PutUint32(buf[0:4], p.Magic)
	return buf
}

// DecodeControl parses a ControlPacket.
func DecodeControl(data []byte) (ControlPacket, error) {
	if len(data) < ControlSize {
		return ControlPacket{}, ErrShortPacket
	}
	return ControlPacket{Magic: binary.LittleEndian.Uint32(data[0:4])}, nil
}

// PingPacket is the host's liveness heartbeat (spec §3, §4.9). The
// client never echoes it; it is a pure liveness witness.
type PingPacket struct {
	TimestampUs uint64
}

// Encode serializes the ping to its fixed PingSize wire form.
func (p PingPacket) Encode() []byte {
	buf := make([]byte, PingSize)
	binary.LittleEndian.PutUint32(buf[0:4], PingMagic)
	binary.LittleEndian.PutUint64(buf[4:12], p.TimestampUs)
	return buf
}

// DecodePing parses a PingPacket.
func DecodePing(data []byte) (PingPacket, error) {
	if len(data) < PingSize {
		return PingPacket{}, ErrShortPacket
	}
	return PingPacket{TimestampUs: binary.LittleEndian.Uint64(data[4:12])}, nil
}
