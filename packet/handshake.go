package packet

import (
	"encoding/binary"
	"fmt"

	"github.com/opd-ai/navlink/limits"
)

// HandshakeSize is the fixed handshake frame length: version (1), message
// type (1), raw public key (64) and checksum (2).
const HandshakeSize = 1 + 1 + limits.PublicKeySize + 2

// Offsets inside the handshake frame.
const (
	hsOffVersion  = 0
	hsOffType     = 1
	hsOffKey      = 2
	hsOffChecksum = 66
)

// HandshakeType is the handshake message discriminator.
type HandshakeType uint8

const (
	// HandshakeInit opens a peer-initiated exchange: the sender's public key
	// is carried in the same message, so the responder can complete the
	// exchange and reply in one round.
	HandshakeInit HandshakeType = 1

	// HandshakePublicKey carries a public key on its own, either as the
	// responder's reply or as a self-initiated opening message.
	HandshakePublicKey HandshakeType = 2
)

// String returns the human-readable name of the handshake message type.
func (h HandshakeType) String() string {
	switch h {
	case HandshakeInit:
		return "Init"
	case HandshakePublicKey:
		return "PublicKey"
	default:
		return "Unknown"
	}
}

// Handshake is a key-exchange frame. The public key is the raw X||Y point,
// exchanged without the point-format prefix byte to save air time.
type Handshake struct {
	Version   uint8
	Type      HandshakeType
	PublicKey [limits.PublicKeySize]byte
	Checksum  uint16
}

// Marshal serializes the handshake frame.
func (h *Handshake) Marshal() ([]byte, error) {
	buf := make([]byte, HandshakeSize)
	buf[hsOffVersion] = h.Version
	buf[hsOffType] = uint8(h.Type)
	copy(buf[hsOffKey:hsOffKey+limits.PublicKeySize], h.PublicKey[:])
	binary.LittleEndian.PutUint16(buf[hsOffChecksum:], h.Checksum)
	return buf, nil
}

// UnmarshalHandshake parses a raw handshake frame.
func UnmarshalHandshake(data []byte) (*Handshake, error) {
	if len(data) != HandshakeSize {
		return nil, fmt.Errorf("%w: got %d bytes, want %d", ErrFrameSize, len(data), HandshakeSize)
	}
	h := &Handshake{
		Version:  data[hsOffVersion],
		Type:     HandshakeType(data[hsOffType]),
		Checksum: binary.LittleEndian.Uint16(data[hsOffChecksum:]),
	}
	copy(h.PublicKey[:], data[hsOffKey:hsOffKey+limits.PublicKeySize])
	return h, nil
}

func (h *Handshake) checksumInput() []byte {
	buf, _ := h.Marshal()
	return buf[:hsOffChecksum]
}

// UpdateChecksum recomputes and stores the checksum.
func (h *Handshake) UpdateChecksum() {
	h.Checksum = CRC16(h.checksumInput())
}

// VerifyChecksum reports whether the stored checksum matches the fields.
func (h *Handshake) VerifyChecksum() bool {
	return h.Checksum == CRC16(h.checksumInput())
}

// Valid reports whether the frame passes checksum, version and message-type
// checks.
func (h *Handshake) Valid() bool {
	return h.VerifyChecksum() && h.Version == ProtocolVersion &&
		(h.Type == HandshakeInit || h.Type == HandshakePublicKey)
}
