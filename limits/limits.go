// Package limits provides centralized payload size limits for the navlink protocol.
// This ensures consistent validation across different components of the system.
package limits

import (
	"errors"
	"fmt"
)

const (
	// MaxCryptoPayload is the maximum number of bytes a single cipher or MAC
	// operation will accept (64 bytes). The bound keeps worst-case crypto
	// latency inside the control loop's sub-millisecond budget.
	MaxCryptoPayload = 64

	// CommandBlockSize is the encrypted region of a command packet: the four
	// control axes plus the mode and button bytes (10 bytes).
	CommandBlockSize = 10

	// TelemetryBlockSize is the encrypted region of a telemetry packet:
	// battery voltage through status bits (19 bytes).
	TelemetryBlockSize = 19

	// MaxPacketSize is the largest frame the link layer will hand us: a
	// secured telemetry packet (71 bytes).
	MaxPacketSize = 71

	// IVSize is the AES-CTR initialization vector length in bytes.
	IVSize = 16

	// TagSize is the HMAC-SHA256 authentication tag length in bytes.
	TagSize = 32

	// KeySize is the symmetric key length in bytes (AES-256 and HMAC keys).
	KeySize = 32

	// PublicKeySize is the raw ECDH public key length: two 32-byte P-256
	// coordinates, exchanged without the point-format prefix byte.
	PublicKeySize = 64

	// SharedSecretSize is the ECDH shared secret length in bytes.
	SharedSecretSize = 32
)

var (
	// ErrPayloadEmpty indicates an empty payload was provided.
	ErrPayloadEmpty = errors.New("empty payload")

	// ErrPayloadTooLarge indicates the payload exceeds the maximum size.
	ErrPayloadTooLarge = errors.New("payload too large")
)

// ValidatePayloadSize validates a payload against the specified maximum size.
// Returns an error with context including the actual and maximum sizes.
func ValidatePayloadSize(payload []byte, maxSize int) error {
	if len(payload) == 0 {
		return ErrPayloadEmpty
	}
	if len(payload) > maxSize {
		return fmt.Errorf("%w: size %d exceeds limit %d", ErrPayloadTooLarge, len(payload), maxSize)
	}
	return nil
}

// ValidateCryptoPayload validates a payload size against MaxCryptoPayload.
// Every buffer handed to the cipher or the authenticator must pass this check
// before any key material is touched.
func ValidateCryptoPayload(payload []byte) error {
	if len(payload) == 0 {
		return ErrPayloadEmpty
	}
	if len(payload) > MaxCryptoPayload {
		return fmt.Errorf("%w: crypto payload size %d exceeds limit %d", ErrPayloadTooLarge, len(payload), MaxCryptoPayload)
	}
	return nil
}

// ValidateFrame validates a raw radio frame against MaxPacketSize.
// All network-received data should be validated against this limit before
// further processing.
func ValidateFrame(frame []byte) error {
	if len(frame) == 0 {
		return ErrPayloadEmpty
	}
	if len(frame) > MaxPacketSize {
		return fmt.Errorf("%w: frame size %d exceeds limit %d", ErrPayloadTooLarge, len(frame), MaxPacketSize)
	}
	return nil
}
