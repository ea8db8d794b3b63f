package navlink

import (
	"fmt"

	"github.com/opd-ai/navlink/packet"
)

// Status classifies the outcome of submitting a command to the pipeline.
type Status int

const (
	// Accepted means the command passed every stage and its fields are
	// safe to hand to vehicle control.
	Accepted Status = iota

	// RateLimited means the token bucket or a per-channel cap rejected
	// the command before any processing.
	RateLimited

	// AuthFailed means the authentication tag did not verify.
	AuthFailed

	// ChecksumFailed means the frame was malformed or its checksum or
	// semantic ranges did not validate.
	ChecksumFailed

	// VersionMismatch means the packet carries a protocol version this
	// build does not speak.
	VersionMismatch

	// NotReady means the packet needed key material the link does not
	// have, or arrived unencrypted when encryption is required.
	NotReady

	// ReplayDropped means the sequence number did not advance past the
	// highest accepted one.
	ReplayDropped
)

// String returns the snake_case reason name used in logs and metrics
// labels.
func (s Status) String() string {
	switch s {
	case Accepted:
		return "accepted"
	case RateLimited:
		return "rate_limited"
	case AuthFailed:
		return "auth_failed"
	case ChecksumFailed:
		return "checksum_failed"
	case VersionMismatch:
		return "version_mismatch"
	case NotReady:
		return "not_ready"
	case ReplayDropped:
		return "replay_dropped"
	default:
		return fmt.Sprintf("unknown(%d)", int(s))
	}
}

// Result is the verdict on one submitted command. Command is non-nil only
// when Status is Accepted, and then carries the decrypted, validated
// fields.
type Result struct {
	Status  Status
	Command *packet.Command
}

// Counters is a snapshot of the pipeline's lifetime counts for
// observability.
type Counters struct {
	// Allowed and Blocked are the rate limiter's lifetime admission
	// counts.
	Allowed uint64
	Blocked uint64

	// Received counts every packet receipt seen by the link supervisor.
	Received uint64

	// InvalidAuth counts receipts that failed authentication or
	// validation.
	InvalidAuth uint64

	// ReplaysDropped counts commands rejected by replay protection.
	ReplaysDropped uint64
}
