package keyexchange

import (
	"crypto/ecdh"
	"crypto/rand"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/opd-ai/navlink/crypto"
	"github.com/opd-ai/navlink/limits"
)

// DefaultTimeout bounds how long an exchange waits in AwaitingPeerKey before
// Expired reports true.
const DefaultTimeout = 5 * time.Second

// State identifies the phase of an exchange.
type State int

const (
	// Idle is the initial state; no key material exists yet.
	Idle State = iota

	// GeneratingKeys is the transient state while the local keypair is
	// created.
	GeneratingKeys

	// AwaitingPeerKey means the local public key is ready and the exchange
	// is waiting for the peer's.
	AwaitingPeerKey

	// ComputingSecret is the transient state while the shared secret is
	// derived from the peer's public key.
	ComputingSecret

	// Established means a shared secret is available.
	Established

	// Failed means the exchange aborted; Reset is required before reuse.
	Failed
)

// String returns a human-readable state name for logging.
func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case GeneratingKeys:
		return "generating_keys"
	case AwaitingPeerKey:
		return "awaiting_peer_key"
	case ComputingSecret:
		return "computing_secret"
	case Established:
		return "established"
	case Failed:
		return "failed"
	default:
		return fmt.Sprintf("unknown(%d)", int(s))
	}
}

var (
	// ErrInvalidState indicates an operation was called in a state that
	// does not permit it.
	ErrInvalidState = errors.New("operation not valid in current state")

	// ErrInvalidPeerKey indicates the peer's public key is not a valid
	// point on the curve.
	ErrInvalidPeerKey = errors.New("invalid peer public key")

	// ErrNoSecret indicates the shared secret was requested before the
	// exchange established one.
	ErrNoSecret = errors.New("no shared secret established")
)

// Exchange is one side of an ECDH P-256 handshake. The zero value is not
// usable; construct with New.
//
// All methods are safe for concurrent use.
type Exchange struct {
	mu        sync.Mutex
	state     State
	curve     ecdh.Curve
	priv      *ecdh.PrivateKey
	secret    [limits.SharedSecretSize]byte
	hasSecret bool
	startedAt time.Time
	timeout   time.Duration
	clock     crypto.TimeProvider
}

// Option configures an Exchange.
type Option func(*Exchange)

// WithTimeout overrides the handshake timeout. Non-positive values keep the
// default.
func WithTimeout(d time.Duration) Option {
	return func(e *Exchange) {
		if d > 0 {
			e.timeout = d
		}
	}
}

// WithTimeProvider substitutes the clock, for tests.
func WithTimeProvider(tp crypto.TimeProvider) Option {
	return func(e *Exchange) {
		if tp != nil {
			e.clock = tp
		}
	}
}

// New creates an idle exchange over P-256.
func New(opts ...Option) *Exchange {
	e := &Exchange{
		state:   Idle,
		curve:   ecdh.P256(),
		timeout: DefaultTimeout,
		clock:   crypto.DefaultTimeProvider{},
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// State returns the current phase.
func (e *Exchange) State() State {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state
}

// Start generates the local ephemeral keypair and returns the 64-byte public
// key to send to the peer. Valid only from Idle; the exchange then waits in
// AwaitingPeerKey.
func (e *Exchange) Start() ([limits.PublicKeySize]byte, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	var pub [limits.PublicKeySize]byte
	if e.state != Idle {
		return pub, fmt.Errorf("%w: %s", ErrInvalidState, e.state)
	}

	e.state = GeneratingKeys
	priv, err := e.curve.GenerateKey(rand.Reader)
	if err != nil {
		e.state = Failed
		return pub, fmt.Errorf("keypair generation: %w", err)
	}
	e.priv = priv
	e.state = AwaitingPeerKey
	e.startedAt = e.clock.Now()

	logrus.WithFields(logrus.Fields{
		"function": "Start",
		"state":    e.state.String(),
	}).Info("Key exchange initiated")

	return rawPoint(priv.PublicKey()), nil
}

// ReceivePeerKey completes the handshake with the peer's 64-byte public key
// and returns the shared secret. Valid only from AwaitingPeerKey. An invalid
// peer key moves the exchange to Failed.
func (e *Exchange) ReceivePeerKey(peer [limits.PublicKeySize]byte) ([limits.SharedSecretSize]byte, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	var secret [limits.SharedSecretSize]byte
	if e.state != AwaitingPeerKey {
		return secret, fmt.Errorf("%w: %s", ErrInvalidState, e.state)
	}

	e.state = ComputingSecret
	if err := e.computeLocked(peer); err != nil {
		e.state = Failed
		return secret, err
	}
	e.state = Established

	logrus.WithFields(logrus.Fields{
		"function": "ReceivePeerKey",
		"state":    e.state.String(),
	}).Info("Key exchange established")

	return e.secret, nil
}

// Respond performs the responder side in one step: generate a keypair,
// compute the shared secret from the initiator's public key, and return the
// local public key to send back. Valid only from Idle.
func (e *Exchange) Respond(peer [limits.PublicKeySize]byte) (pub [limits.PublicKeySize]byte, secret [limits.SharedSecretSize]byte, err error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.state != Idle {
		return pub, secret, fmt.Errorf("%w: %s", ErrInvalidState, e.state)
	}

	e.state = GeneratingKeys
	priv, err := e.curve.GenerateKey(rand.Reader)
	if err != nil {
		e.state = Failed
		return pub, secret, fmt.Errorf("keypair generation: %w", err)
	}
	e.priv = priv

	e.state = ComputingSecret
	if err := e.computeLocked(peer); err != nil {
		e.state = Failed
		return pub, secret, err
	}
	e.state = Established

	logrus.WithFields(logrus.Fields{
		"function": "Respond",
		"state":    e.state.String(),
	}).Info("Key exchange established")

	return rawPoint(priv.PublicKey()), e.secret, nil
}

// SharedSecret returns the established secret. ok is false before the
// exchange completes or after Reset.
func (e *Exchange) SharedSecret() ([limits.SharedSecretSize]byte, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.secret, e.hasSecret
}

// Expired reports whether the exchange has been waiting for a peer key
// longer than its timeout.
func (e *Exchange) Expired(now time.Time) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state == AwaitingPeerKey && now.Sub(e.startedAt) > e.timeout
}

// Reset wipes the key material and returns the exchange to Idle, from any
// state.
func (e *Exchange) Reset() {
	e.mu.Lock()
	defer e.mu.Unlock()

	crypto.ZeroBytes(e.secret[:])
	e.hasSecret = false
	e.priv = nil
	prior := e.state
	e.state = Idle
	e.startedAt = time.Time{}

	if prior != Idle {
		logrus.WithFields(logrus.Fields{
			"function": "Reset",
			"from":     prior.String(),
		}).Debug("Key exchange reset")
	}
}

// computeLocked derives the shared secret from a raw peer point. Caller
// holds e.mu.
func (e *Exchange) computeLocked(peer [limits.PublicKeySize]byte) error {
	peerPub, err := importPoint(e.curve, peer)
	if err != nil {
		return err
	}

	shared, err := e.priv.ECDH(peerPub)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidPeerKey, err)
	}
	if len(shared) != limits.SharedSecretSize {
		return fmt.Errorf("%w: unexpected secret length %d", ErrInvalidPeerKey, len(shared))
	}
	copy(e.secret[:], shared)
	crypto.ZeroBytes(shared)
	e.hasSecret = true
	return nil
}

// rawPoint strips the SEC 1 uncompressed-point prefix byte, leaving the
// 64-byte X||Y form carried in handshake frames.
func rawPoint(pub *ecdh.PublicKey) [limits.PublicKeySize]byte {
	var out [limits.PublicKeySize]byte
	copy(out[:], pub.Bytes()[1:])
	return out
}

// importPoint restores the prefix byte and parses the peer's point,
// rejecting anything not on the curve.
func importPoint(curve ecdh.Curve, raw [limits.PublicKeySize]byte) (*ecdh.PublicKey, error) {
	encoded := make([]byte, 1+limits.PublicKeySize)
	encoded[0] = 0x04
	copy(encoded[1:], raw[:])

	pub, err := curve.NewPublicKey(encoded)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidPeerKey, err)
	}
	return pub, nil
}
