// Package packet defines the navlink wire formats and their integrity
// checksum.
//
// Three fixed-size, little-endian frame types cross the radio link: Command
// (ground to vehicle), Telemetry (vehicle to ground) and Handshake (key
// exchange, both directions). Command and Telemetry each exist in a plain
// layout and a security-extended layout carrying an encryption flag, a
// 16-byte IV and a 32-byte authentication tag; the frame length selects the
// layout on receipt, and in memory the extension is an explicit struct
// pointer rather than conditionally-meaningful trailing bytes.
//
// Every frame ends its core fields with a CRC-16/CCITT checksum (initial
// register 0xFFFF, no final XOR) computed over all preceding core bytes. The
// security extension is excluded from the checksum; it is covered by the
// authentication tag instead.
//
// The package is pure data plus validation: no state, no I/O, and validation
// failure is a boolean. Callers decide disposition.
//
// Example:
//
//	cmd := &packet.Command{
//	    Version:  packet.ProtocolVersion,
//	    Vehicle:  packet.VehicleRover,
//	    Throttle: 500,
//	    Sequence: 1,
//	}
//	cmd.UpdateChecksum()
//	frame, _ := cmd.Marshal()
package packet
