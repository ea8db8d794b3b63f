// Package navlink implements a secure command and telemetry link for
// remotely operated vehicles.
//
// The core type is Pipeline, which wires the lower-level packages into a
// fixed processing order for each packet. Inbound commands pass through
// rate limiting, decryption, MAC verification, structural validation,
// replay rejection, and link-freshness bookkeeping, in that order; the
// first failing stage decides the rejection reason and later stages never
// run. Outbound telemetry mirrors the order in reverse: build, encrypt,
// tag, checksum.
//
// Session keys come from either pre-shared configuration or an ECDH
// handshake driven through HandleHandshake. When a handshake completes, the
// cipher and MAC keys swap atomically, so no packet is ever processed with
// a half-rotated pair.
//
// A minimal ground-station loop looks like:
//
//	cfg := config.DefaultConfig()
//	link, err := navlink.New(cfg)
//	if err != nil {
//		log.Fatal(err)
//	}
//
//	// Radio receive callback.
//	res := link.SubmitCommand(raw)
//	if res.Status == navlink.Accepted {
//		vehicle.Apply(res.Command)
//	}
//
//	// Periodic control loop.
//	link.Tick(time.Now())
//	if link.ShouldCutMotors() {
//		vehicle.Stop()
//	}
//
// The pipeline is safe for concurrent use from a radio callback and a
// periodic loop.
package navlink
