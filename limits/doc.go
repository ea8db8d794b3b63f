// Package limits provides centralized payload size constants and validation
// functions for the navlink protocol. This package ensures consistent size
// enforcement across all components of the secure command/telemetry link.
//
// # Size Hierarchy
//
// The package defines the bounds that shape packet processing on the link:
//
//   - MaxCryptoPayload (64 bytes): The largest buffer a single cipher or MAC
//     operation accepts. Bounding the crypto input bounds worst-case latency
//     inside the 20 ms control cycle.
//
//   - CommandBlockSize (10 bytes): The encrypted region of a command packet,
//     covering the four signed control axes plus mode and button bytes.
//
//   - TelemetryBlockSize (19 bytes): The encrypted region of a telemetry
//     packet, covering battery voltage through status bits.
//
//   - MaxPacketSize (71 bytes): The largest frame the radio layer can deliver,
//     a telemetry packet carrying the full security extension.
//
// # Validation Functions
//
// Each validation function checks for empty payloads and size violations:
//
//	err := limits.ValidateCryptoPayload(block)
//	if err != nil {
//	    // Handle validation error (ErrPayloadEmpty or ErrPayloadTooLarge)
//	}
//
// For custom size limits, use the generic ValidatePayloadSize function:
//
//	err := limits.ValidatePayloadSize(data, 32)
//
// # Security Considerations
//
// The MaxCryptoPayload bound is enforced before any key material is touched,
// so an oversized frame cannot burn cipher time. ValidateFrame should be
// applied to all frames received from the radio before further processing.
package limits
