package packet

import (
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/opd-ai/navlink/limits"
)

// ProtocolVersion is the wire protocol version this build speaks. Packets
// carrying any other version are rejected during validation.
const ProtocolVersion = 1

// Frame sizes in bytes. All frames are fixed-size and little-endian, pinned
// by the vehicle firmware on the other end of the radio.
const (
	// CommandSize is the plain command frame length.
	CommandSize = 18

	// SecuredCommandSize is the command frame length with the security
	// extension: encryption flag (1), IV (16) and authentication tag (32).
	SecuredCommandSize = CommandSize + 1 + limits.IVSize + limits.TagSize
)

// Offsets inside the command frame.
const (
	cmdOffVersion  = 0
	cmdOffVehicle  = 1
	cmdOffThrottle = 2
	cmdOffRoll     = 4
	cmdOffPitch    = 6
	cmdOffYaw      = 8
	cmdOffMode     = 10
	cmdOffButtons  = 11
	cmdOffSequence = 12
	cmdOffChecksum = 16
	cmdOffEncFlag  = 18
	cmdOffIV       = 19
	cmdOffTag      = 35
)

// VehicleType identifies which vehicle variant a command addresses.
type VehicleType uint8

const (
	VehicleRover  VehicleType = 1
	VehiclePlane  VehicleType = 2
	VehicleSub    VehicleType = 3
	VehicleCopter VehicleType = 4
)

// String returns the human-readable name of the vehicle type.
func (v VehicleType) String() string {
	switch v {
	case VehicleRover:
		return "Rover"
	case VehiclePlane:
		return "Plane"
	case VehicleSub:
		return "Sub"
	case VehicleCopter:
		return "Copter"
	default:
		return "Unknown"
	}
}

// Valid reports whether the vehicle type is in the accepted range (1-4).
func (v VehicleType) Valid() bool {
	return v >= VehicleRover && v <= VehicleCopter
}

// Mode flag bits carried in the command mode byte.
const (
	// ModeArmed indicates the operator has armed the vehicle.
	ModeArmed = 0x01

	// ModeAuto engages autonomous navigation; the control axes are then
	// advisory and the navigation collaborator drives the vehicle.
	ModeAuto = 0x02
)

var (
	// ErrFrameSize indicates a frame whose length matches no known layout.
	ErrFrameSize = errors.New("frame length matches no packet layout")

	// ErrBadEncryptionFlag indicates a security-extended frame whose
	// encryption flag byte is not set.
	ErrBadEncryptionFlag = errors.New("security extension present but encryption flag not set")

	// ErrBlockSize indicates a control or data block of the wrong length.
	ErrBlockSize = errors.New("block has wrong length")
)

// SecurityExtension carries the per-packet cryptographic material appended to
// a frame when the link is encrypted.
type SecurityExtension struct {
	IV  [limits.IVSize]byte
	Tag [limits.TagSize]byte
}

// Command is a ground-to-vehicle control packet.
//
// The plain and security-extended wire layouts share these fields; which one
// a Command marshals to is determined by whether Security is nil. A frame is
// never represented as a plain struct with conditionally-meaningful trailing
// bytes.
type Command struct {
	Version  uint8
	Vehicle  VehicleType
	Throttle int16
	Roll     int16
	Pitch    int16
	Yaw      int16
	Mode     uint8
	Buttons  uint8
	Sequence uint32
	Checksum uint16

	// Security is non-nil when the packet declares itself encrypted.
	Security *SecurityExtension
}

// Encrypted reports whether the command carries the security extension.
func (c *Command) Encrypted() bool { return c.Security != nil }

// marshalCore writes the 18-byte core frame into buf.
func (c *Command) marshalCore(buf []byte) {
	buf[cmdOffVersion] = c.Version
	buf[cmdOffVehicle] = uint8(c.Vehicle)
	binary.LittleEndian.PutUint16(buf[cmdOffThrottle:], uint16(c.Throttle))
	binary.LittleEndian.PutUint16(buf[cmdOffRoll:], uint16(c.Roll))
	binary.LittleEndian.PutUint16(buf[cmdOffPitch:], uint16(c.Pitch))
	binary.LittleEndian.PutUint16(buf[cmdOffYaw:], uint16(c.Yaw))
	buf[cmdOffMode] = c.Mode
	buf[cmdOffButtons] = c.Buttons
	binary.LittleEndian.PutUint32(buf[cmdOffSequence:], c.Sequence)
	binary.LittleEndian.PutUint16(buf[cmdOffChecksum:], c.Checksum)
}

// Marshal serializes the command to its wire form: CommandSize bytes for a
// plain packet, SecuredCommandSize when the security extension is present.
func (c *Command) Marshal() ([]byte, error) {
	size := CommandSize
	if c.Security != nil {
		size = SecuredCommandSize
	}
	buf := make([]byte, size)
	c.marshalCore(buf)
	if c.Security != nil {
		buf[cmdOffEncFlag] = 1
		copy(buf[cmdOffIV:cmdOffIV+limits.IVSize], c.Security.IV[:])
		copy(buf[cmdOffTag:cmdOffTag+limits.TagSize], c.Security.Tag[:])
	}
	return buf, nil
}

// UnmarshalCommand parses a raw frame into a Command. The frame length
// selects the layout; a security-extended frame must carry the encryption
// flag byte set to 1.
func UnmarshalCommand(data []byte) (*Command, error) {
	if len(data) != CommandSize && len(data) != SecuredCommandSize {
		return nil, fmt.Errorf("%w: got %d bytes, want %d or %d",
			ErrFrameSize, len(data), CommandSize, SecuredCommandSize)
	}

	c := &Command{
		Version:  data[cmdOffVersion],
		Vehicle:  VehicleType(data[cmdOffVehicle]),
		Throttle: int16(binary.LittleEndian.Uint16(data[cmdOffThrottle:])),
		Roll:     int16(binary.LittleEndian.Uint16(data[cmdOffRoll:])),
		Pitch:    int16(binary.LittleEndian.Uint16(data[cmdOffPitch:])),
		Yaw:      int16(binary.LittleEndian.Uint16(data[cmdOffYaw:])),
		Mode:     data[cmdOffMode],
		Buttons:  data[cmdOffButtons],
		Sequence: binary.LittleEndian.Uint32(data[cmdOffSequence:]),
		Checksum: binary.LittleEndian.Uint16(data[cmdOffChecksum:]),
	}

	if len(data) == SecuredCommandSize {
		if data[cmdOffEncFlag] != 1 {
			return nil, ErrBadEncryptionFlag
		}
		ext := &SecurityExtension{}
		copy(ext.IV[:], data[cmdOffIV:cmdOffIV+limits.IVSize])
		copy(ext.Tag[:], data[cmdOffTag:cmdOffTag+limits.TagSize])
		c.Security = ext
	}

	return c, nil
}

// checksumInput returns the serialized bytes the checksum covers: every core
// field preceding the checksum. The security extension is covered by the
// authentication tag instead.
func (c *Command) checksumInput() []byte {
	var buf [CommandSize]byte
	c.marshalCore(buf[:])
	return buf[:cmdOffChecksum]
}

// UpdateChecksum recomputes and stores the checksum. Must be called after
// any field change before the packet is marshaled.
func (c *Command) UpdateChecksum() {
	c.Checksum = CRC16(c.checksumInput())
}

// VerifyChecksum reports whether the stored checksum matches the fields.
func (c *Command) VerifyChecksum() bool {
	return c.Checksum == CRC16(c.checksumInput())
}

// Valid reports whether the packet passes checksum and protocol version
// checks. Failure is a boolean; the caller decides disposition.
func (c *Command) Valid() bool {
	return c.VerifyChecksum() && c.Version == ProtocolVersion
}

// ValidateStrict applies Valid plus the vehicle-type range check (1-4).
func (c *Command) ValidateStrict() bool {
	return c.Valid() && c.Vehicle.Valid()
}

// ControlBlock returns the 10-byte block covered by encryption and
// authentication: throttle through buttons, little-endian.
func (c *Command) ControlBlock() []byte {
	block := make([]byte, limits.CommandBlockSize)
	binary.LittleEndian.PutUint16(block[0:], uint16(c.Throttle))
	binary.LittleEndian.PutUint16(block[2:], uint16(c.Roll))
	binary.LittleEndian.PutUint16(block[4:], uint16(c.Pitch))
	binary.LittleEndian.PutUint16(block[6:], uint16(c.Yaw))
	block[8] = c.Mode
	block[9] = c.Buttons
	return block
}

// SetControlBlock replaces the control fields from a 10-byte block, the
// inverse of ControlBlock. Used after decrypting a secured packet.
func (c *Command) SetControlBlock(block []byte) error {
	if len(block) != limits.CommandBlockSize {
		return fmt.Errorf("%w: got %d bytes, want %d", ErrBlockSize, len(block), limits.CommandBlockSize)
	}
	c.Throttle = int16(binary.LittleEndian.Uint16(block[0:]))
	c.Roll = int16(binary.LittleEndian.Uint16(block[2:]))
	c.Pitch = int16(binary.LittleEndian.Uint16(block[4:]))
	c.Yaw = int16(binary.LittleEndian.Uint16(block[6:]))
	c.Mode = block[8]
	c.Buttons = block[9]
	return nil
}
