// Package keyexchange implements the ECDH handshake that establishes session
// keys over an untrusted link.
//
// Each side holds an Exchange, a small state machine over the NIST P-256
// curve. The initiator calls Start to generate an ephemeral keypair and
// obtain the 64-byte public key to send, then ReceivePeerKey when the
// answer arrives. A responder can instead call Respond, which generates its
// keypair and computes the shared secret in one step, so the whole handshake
// completes in a single round trip.
//
// Public keys travel as the raw 64-byte uncompressed point, X then Y, with
// the SEC 1 format byte stripped to keep the handshake frame fixed-size. The
// 32-byte shared secret is never used directly as a key; callers pass it to
// crypto.SessionKeys (typically via KeyRing.RotateFromSecret) for HKDF
// expansion.
//
// An exchange left waiting for a peer key expires after a configurable
// timeout, after which Expired reports true and the supervisor can tear the
// attempt down. Reset wipes the secret and returns the machine to Idle so
// the instance can be reused for the next handshake.
package keyexchange
