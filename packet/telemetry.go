package packet

import (
	"encoding/binary"
	"fmt"
	"math"

	"github.com/opd-ai/navlink/limits"
)

// Telemetry frame sizes in bytes.
const (
	// TelemetrySize is the plain telemetry frame length.
	TelemetrySize = 22

	// SecuredTelemetrySize is the telemetry frame length with the security
	// extension appended.
	SecuredTelemetrySize = TelemetrySize + 1 + limits.IVSize + limits.TagSize
)

// Offsets inside the telemetry frame.
const (
	telOffVersion   = 0
	telOffBattery   = 1
	telOffRSSI      = 5
	telOffUptime    = 7
	telOffLatitude  = 11
	telOffLongitude = 15
	telOffStatus    = 19
	telOffChecksum  = 20
	telOffEncFlag   = 22
	telOffIV        = 23
	telOffTag       = 39
)

// Telemetry status bits.
const (
	// StatusFailsafe is set while the link supervisor has cut motors.
	StatusFailsafe = 0x01

	// StatusGPSLock is set when the position fields carry a valid fix.
	StatusGPSLock = 0x02

	// StatusNavActive is set while autonomous navigation is running.
	StatusNavActive = 0x04
)

// Telemetry is a vehicle-to-ground status packet, mirroring Command's
// plain/secured split. Position fields are zero unless StatusGPSLock is set.
type Telemetry struct {
	Version        uint8
	BatteryVoltage float32
	RSSI           int16
	Uptime         uint32
	Latitude       float32
	Longitude      float32
	Status         uint8
	Checksum       uint16

	// Security is non-nil when the packet declares itself encrypted.
	Security *SecurityExtension
}

// Encrypted reports whether the packet carries the security extension.
func (t *Telemetry) Encrypted() bool { return t.Security != nil }

func (t *Telemetry) marshalCore(buf []byte) {
	buf[telOffVersion] = t.Version
	binary.LittleEndian.PutUint32(buf[telOffBattery:], math.Float32bits(t.BatteryVoltage))
	binary.LittleEndian.PutUint16(buf[telOffRSSI:], uint16(t.RSSI))
	binary.LittleEndian.PutUint32(buf[telOffUptime:], t.Uptime)
	binary.LittleEndian.PutUint32(buf[telOffLatitude:], math.Float32bits(t.Latitude))
	binary.LittleEndian.PutUint32(buf[telOffLongitude:], math.Float32bits(t.Longitude))
	buf[telOffStatus] = t.Status
	binary.LittleEndian.PutUint16(buf[telOffChecksum:], t.Checksum)
}

// Marshal serializes the telemetry packet to its wire form.
func (t *Telemetry) Marshal() ([]byte, error) {
	size := TelemetrySize
	if t.Security != nil {
		size = SecuredTelemetrySize
	}
	buf := make([]byte, size)
	t.marshalCore(buf)
	if t.Security != nil {
		buf[telOffEncFlag] = 1
		copy(buf[telOffIV:telOffIV+limits.IVSize], t.Security.IV[:])
		copy(buf[telOffTag:telOffTag+limits.TagSize], t.Security.Tag[:])
	}
	return buf, nil
}

// UnmarshalTelemetry parses a raw frame into a Telemetry packet.
func UnmarshalTelemetry(data []byte) (*Telemetry, error) {
	if len(data) != TelemetrySize && len(data) != SecuredTelemetrySize {
		return nil, fmt.Errorf("%w: got %d bytes, want %d or %d",
			ErrFrameSize, len(data), TelemetrySize, SecuredTelemetrySize)
	}

	t := &Telemetry{
		Version:        data[telOffVersion],
		BatteryVoltage: math.Float32frombits(binary.LittleEndian.Uint32(data[telOffBattery:])),
		RSSI:           int16(binary.LittleEndian.Uint16(data[telOffRSSI:])),
		Uptime:         binary.LittleEndian.Uint32(data[telOffUptime:]),
		Latitude:       math.Float32frombits(binary.LittleEndian.Uint32(data[telOffLatitude:])),
		Longitude:      math.Float32frombits(binary.LittleEndian.Uint32(data[telOffLongitude:])),
		Status:         data[telOffStatus],
		Checksum:       binary.LittleEndian.Uint16(data[telOffChecksum:]),
	}

	if len(data) == SecuredTelemetrySize {
		if data[telOffEncFlag] != 1 {
			return nil, ErrBadEncryptionFlag
		}
		ext := &SecurityExtension{}
		copy(ext.IV[:], data[telOffIV:telOffIV+limits.IVSize])
		copy(ext.Tag[:], data[telOffTag:telOffTag+limits.TagSize])
		t.Security = ext
	}

	return t, nil
}

func (t *Telemetry) checksumInput() []byte {
	var buf [TelemetrySize]byte
	t.marshalCore(buf[:])
	return buf[:telOffChecksum]
}

// UpdateChecksum recomputes and stores the checksum. Must be called after
// any field change before the packet is marshaled.
func (t *Telemetry) UpdateChecksum() {
	t.Checksum = CRC16(t.checksumInput())
}

// VerifyChecksum reports whether the stored checksum matches the fields.
func (t *Telemetry) VerifyChecksum() bool {
	return t.Checksum == CRC16(t.checksumInput())
}

// Valid reports whether the packet passes checksum and version checks.
func (t *Telemetry) Valid() bool {
	return t.VerifyChecksum() && t.Version == ProtocolVersion
}

// DataBlock returns the 19-byte block covered by encryption and
// authentication: battery voltage through status, little-endian.
func (t *Telemetry) DataBlock() []byte {
	var buf [TelemetrySize]byte
	t.marshalCore(buf[:])
	block := make([]byte, limits.TelemetryBlockSize)
	copy(block, buf[telOffBattery:telOffBattery+limits.TelemetryBlockSize])
	return block
}

// SetDataBlock replaces the data fields from a 19-byte block, the inverse of
// DataBlock. Used after decrypting a secured packet.
func (t *Telemetry) SetDataBlock(block []byte) error {
	if len(block) != limits.TelemetryBlockSize {
		return fmt.Errorf("%w: got %d bytes, want %d", ErrBlockSize, len(block), limits.TelemetryBlockSize)
	}
	t.BatteryVoltage = math.Float32frombits(binary.LittleEndian.Uint32(block[0:]))
	t.RSSI = int16(binary.LittleEndian.Uint16(block[4:]))
	t.Uptime = binary.LittleEndian.Uint32(block[6:])
	t.Latitude = math.Float32frombits(binary.LittleEndian.Uint32(block[10:]))
	t.Longitude = math.Float32frombits(binary.LittleEndian.Uint32(block[14:]))
	t.Status = block[18]
	return nil
}
