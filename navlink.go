package navlink

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/opd-ai/navlink/config"
	"github.com/opd-ai/navlink/crypto"
	"github.com/opd-ai/navlink/keyexchange"
	"github.com/opd-ai/navlink/limits"
	"github.com/opd-ai/navlink/metrics"
	"github.com/opd-ai/navlink/packet"
	"github.com/opd-ai/navlink/ratelimit"
	"github.com/opd-ai/navlink/supervisor"
)

var (
	// ErrNilConfig indicates New was called without a configuration.
	ErrNilConfig = errors.New("nil configuration")

	// ErrInvalidHandshake indicates a handshake frame failed structural
	// validation.
	ErrInvalidHandshake = errors.New("invalid handshake frame")

	// ErrHandshakeFailed indicates the key exchange could not complete.
	ErrHandshakeFailed = errors.New("handshake failed")

	// ErrAuthFailed indicates an authentication tag did not verify.
	ErrAuthFailed = errors.New("authentication failed")

	// ErrInvalidFrame indicates a frame failed checksum or version
	// validation.
	ErrInvalidFrame = errors.New("invalid frame")
)

// Pipeline is the secure-link orchestrator. It owns the rate limiter, key
// material, key-exchange state, and link supervisor, and processes each
// packet through a fixed stage order.
//
// Construct with New. All methods are safe for concurrent use from the
// radio callback and the periodic control loop.
type Pipeline struct {
	cfg *config.Config

	limiter  *ratelimit.Limiter
	keys     *crypto.KeyRing
	exchange *keyexchange.Exchange
	link     *supervisor.Supervisor

	collector *metrics.Collector
	clock     crypto.TimeProvider

	// Replay protection state: the highest accepted command sequence.
	seqMu    sync.Mutex
	lastSeq  uint32
	seqSeen  bool
	replayed uint64
}

// Option configures a Pipeline.
type Option func(*Pipeline)

// WithMetrics attaches a Prometheus collector. Without it the pipeline
// runs metrics-free.
func WithMetrics(c *metrics.Collector) Option {
	return func(p *Pipeline) {
		p.collector = c
	}
}

// WithTimeProvider substitutes the clock, for tests.
func WithTimeProvider(tp crypto.TimeProvider) Option {
	return func(p *Pipeline) {
		if tp != nil {
			p.clock = tp
		}
	}
}

// New builds a pipeline from validated configuration. Pre-shared keys, when
// configured, are provisioned immediately; otherwise the link stays NotReady
// for encrypted traffic until a handshake completes.
func New(cfg *config.Config, opts ...Option) (*Pipeline, error) {
	if cfg == nil {
		return nil, ErrNilConfig
	}
	if err := config.Validate(cfg); err != nil {
		return nil, fmt.Errorf("pipeline config: %w", err)
	}

	p := &Pipeline{
		cfg:   cfg,
		keys:  crypto.NewKeyRing(),
		clock: crypto.DefaultTimeProvider{},
	}
	for _, opt := range opts {
		opt(p)
	}

	p.link = supervisor.New(
		supervisor.WithThresholds(cfg.Supervisor.SignalLossThreshold, cfg.Supervisor.EmergencyThreshold),
		supervisor.WithTimeProvider(p.clock),
	)

	p.limiter = ratelimit.New(cfg.Limiter.Capacity, cfg.Limiter.RefillInterval, p.clock)
	for _, ch := range cfg.Limiter.Channels {
		if err := p.limiter.SetChannelLimit(ch.ID, ch.Rate); err != nil {
			return nil, fmt.Errorf("channel %d limit: %w", ch.ID, err)
		}
	}

	p.exchange = keyexchange.New(
		keyexchange.WithTimeout(cfg.Handshake.Timeout),
		keyexchange.WithTimeProvider(p.clock),
	)

	cipherKey, haveCipher, err := cfg.Security.CipherKeyBytes()
	if err != nil {
		return nil, err
	}
	macKey, haveMAC, err := cfg.Security.MACKeyBytes()
	if err != nil {
		return nil, err
	}
	if haveCipher && haveMAC {
		if err := p.keys.Provision(cipherKey, macKey); err != nil {
			return nil, fmt.Errorf("pre-shared keys: %w", err)
		}
		crypto.ZeroBytes(cipherKey[:])
		crypto.ZeroBytes(macKey[:])
	}

	return p, nil
}

// SubmitCommand runs one inbound frame through the secure pipeline and
// returns the verdict. The stage order is fixed: rate limit, decrypt,
// verify tag, validate, replay check, freshness bookkeeping. A rejected
// frame stops at the first failing stage.
func (p *Pipeline) SubmitCommand(raw []byte) Result {
	now := p.clock.Now()

	// The vehicle-type byte doubles as the rate-limit channel. It sits in
	// the plaintext header, so peeking it before parsing is safe.
	var channel uint8
	if len(raw) > 1 {
		channel = raw[1]
	}

	if verdict := p.limiter.Admit(channel); verdict != ratelimit.StatusAllowed {
		// A flood that trips the limiter still counts as link activity
		// for observability, but never as an authenticated receipt.
		p.link.RecordReceipt(now, false)
		return p.reject(RateLimited, "rate limiter rejected command")
	}

	if err := limits.ValidateFrame(raw); err != nil {
		p.link.RecordReceipt(now, false)
		return p.reject(ChecksumFailed, "frame size out of bounds")
	}

	cmd, err := packet.UnmarshalCommand(raw)
	if err != nil {
		p.link.RecordReceipt(now, false)
		return p.reject(ChecksumFailed, "malformed command frame")
	}

	if cmd.Encrypted() {
		if res, ok := p.openSecured(cmd); !ok {
			p.link.RecordReceipt(now, false)
			return res
		}
	} else if p.cfg.Security.RequireEncryption || p.keys.Ready() {
		// Once a session exists, or when policy demands it, plaintext
		// commands are not trusted.
		p.link.RecordReceipt(now, false)
		return p.reject(NotReady, "plaintext command rejected")
	}

	if !cmd.VerifyChecksum() {
		p.link.RecordReceipt(now, false)
		return p.reject(ChecksumFailed, "checksum mismatch")
	}
	if cmd.Version != packet.ProtocolVersion {
		p.link.RecordReceipt(now, false)
		return p.reject(VersionMismatch, "unsupported protocol version")
	}
	if !cmd.ValidateStrict() {
		p.link.RecordReceipt(now, false)
		return p.reject(ChecksumFailed, "vehicle type out of range")
	}

	if p.cfg.Security.ReplayProtection && !p.advanceSequence(cmd.Sequence) {
		p.link.RecordReceipt(now, false)
		return p.reject(ReplayDropped, "sequence number did not advance")
	}

	p.link.RecordReceipt(now, true)
	p.collector.IncAccepted()
	return Result{Status: Accepted, Command: cmd}
}

// openSecured decrypts the control block in place and verifies its tag.
// ok is false when the frame must be rejected with the returned result.
func (p *Pipeline) openSecured(cmd *packet.Command) (Result, bool) {
	engine, auth, ready := p.keys.Current()
	if !ready {
		return p.reject(NotReady, "no session keys for encrypted command"), false
	}

	plain, err := engine.Decrypt(cmd.ControlBlock(), crypto.IV(cmd.Security.IV))
	if err != nil {
		return p.reject(AuthFailed, "decrypt failed"), false
	}
	if !auth.Verify(plain, crypto.Tag(cmd.Security.Tag)) {
		return p.reject(AuthFailed, "authentication tag mismatch"), false
	}
	if err := cmd.SetControlBlock(plain); err != nil {
		return p.reject(ChecksumFailed, "bad control block"), false
	}
	return Result{}, true
}

// advanceSequence accepts a sequence number only if it is strictly greater
// than the highest accepted one.
func (p *Pipeline) advanceSequence(seq uint32) bool {
	p.seqMu.Lock()
	defer p.seqMu.Unlock()

	if p.seqSeen && seq <= p.lastSeq {
		p.replayed++
		return false
	}
	p.lastSeq = seq
	p.seqSeen = true
	return true
}

// reject records a rejection in logs and metrics and builds the result.
func (p *Pipeline) reject(status Status, msg string) Result {
	p.collector.IncRejected(status.String())
	logrus.WithFields(logrus.Fields{
		"function": "SubmitCommand",
		"reason":   status.String(),
	}).Debug(msg)
	return Result{Status: status}
}

// BuildTelemetry prepares one telemetry frame for transmission. When
// session keys exist the data block is encrypted under a fresh IV and
// tagged; otherwise the frame goes out plaintext. The checksum always
// covers the plaintext fields and is computed before the block is
// replaced.
func (p *Pipeline) BuildTelemetry(t packet.Telemetry) ([]byte, error) {
	t.Version = packet.ProtocolVersion
	t.UpdateChecksum()

	if engine, auth, ready := p.keys.Current(); ready {
		iv, err := engine.GenerateIV()
		if err != nil {
			return nil, fmt.Errorf("telemetry iv: %w", err)
		}

		plain := t.DataBlock()
		tag, err := auth.Generate(plain)
		if err != nil {
			return nil, fmt.Errorf("telemetry tag: %w", err)
		}
		sealed, err := engine.Encrypt(plain, iv)
		if err != nil {
			return nil, fmt.Errorf("telemetry encrypt: %w", err)
		}
		if err := t.SetDataBlock(sealed); err != nil {
			return nil, err
		}
		t.Security = &packet.SecurityExtension{IV: iv, Tag: tag}
	}

	raw, err := t.Marshal()
	if err != nil {
		return nil, err
	}
	p.collector.IncTelemetrySent()
	return raw, nil
}

// SealCommand prepares one command frame for transmission, the ground-side
// mirror of SubmitCommand. When session keys exist the control block is
// encrypted under a fresh IV and tagged. The checksum covers the plaintext
// fields.
func (p *Pipeline) SealCommand(cmd packet.Command) ([]byte, error) {
	cmd.Version = packet.ProtocolVersion
	cmd.UpdateChecksum()

	if engine, auth, ready := p.keys.Current(); ready {
		iv, err := engine.GenerateIV()
		if err != nil {
			return nil, fmt.Errorf("command iv: %w", err)
		}

		plain := cmd.ControlBlock()
		tag, err := auth.Generate(plain)
		if err != nil {
			return nil, fmt.Errorf("command tag: %w", err)
		}
		sealed, err := engine.Encrypt(plain, iv)
		if err != nil {
			return nil, fmt.Errorf("command encrypt: %w", err)
		}
		if err := cmd.SetControlBlock(sealed); err != nil {
			return nil, err
		}
		cmd.Security = &packet.SecurityExtension{IV: iv, Tag: tag}
	} else if p.cfg.Security.RequireEncryption {
		return nil, fmt.Errorf("%w: encryption required but no session keys", ErrHandshakeFailed)
	}

	return cmd.Marshal()
}

// OpenTelemetry decodes one inbound telemetry frame, the ground-side mirror
// of BuildTelemetry: decrypt, verify tag, then validate checksum and
// version.
func (p *Pipeline) OpenTelemetry(raw []byte) (*packet.Telemetry, error) {
	t, err := packet.UnmarshalTelemetry(raw)
	if err != nil {
		return nil, err
	}

	if t.Encrypted() {
		engine, auth, ready := p.keys.Current()
		if !ready {
			return nil, crypto.ErrNotInitialized
		}
		plain, err := engine.Decrypt(t.DataBlock(), crypto.IV(t.Security.IV))
		if err != nil {
			return nil, fmt.Errorf("telemetry decrypt: %w", err)
		}
		if !auth.Verify(plain, crypto.Tag(t.Security.Tag)) {
			return nil, fmt.Errorf("telemetry: %w", ErrAuthFailed)
		}
		if err := t.SetDataBlock(plain); err != nil {
			return nil, err
		}
	}

	if !t.Valid() {
		return nil, fmt.Errorf("telemetry: %w", ErrInvalidFrame)
	}
	return t, nil
}

// StartHandshake begins a self-initiated key exchange and returns the init
// frame to transmit. The exchange then waits for the peer's public key via
// HandleHandshake.
func (p *Pipeline) StartHandshake() ([]byte, error) {
	if p.exchange.State() != keyexchange.Idle {
		p.exchange.Reset()
	}

	pub, err := p.exchange.Start()
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrHandshakeFailed, err)
	}

	h := &packet.Handshake{
		Version:   packet.ProtocolVersion,
		Type:      packet.HandshakeInit,
		PublicKey: pub,
	}
	h.UpdateChecksum()
	return h.Marshal()
}

// HandleHandshake processes one inbound handshake frame. An init frame
// makes this side the responder: it derives the session keys, rotates the
// ring, and returns the reply frame carrying its own public key. A
// public-key frame completes a self-initiated exchange and returns no
// reply. Keys are always applied before the reply is handed back, so the
// responder can decrypt the peer's first secured packet.
func (p *Pipeline) HandleHandshake(raw []byte) ([]byte, error) {
	h, err := packet.UnmarshalHandshake(raw)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidHandshake, err)
	}
	if !h.Valid() {
		return nil, ErrInvalidHandshake
	}

	switch h.Type {
	case packet.HandshakeInit:
		return p.respondHandshake(h.PublicKey)
	case packet.HandshakePublicKey:
		return nil, p.completeHandshake(h.PublicKey)
	default:
		return nil, ErrInvalidHandshake
	}
}

func (p *Pipeline) respondHandshake(peer [limits.PublicKeySize]byte) ([]byte, error) {
	if p.exchange.State() != keyexchange.Idle {
		p.exchange.Reset()
	}

	pub, secret, err := p.exchange.Respond(peer)
	if err != nil {
		p.exchange.Reset()
		return nil, fmt.Errorf("%w: %w", ErrHandshakeFailed, err)
	}

	if err := p.installSecret(secret); err != nil {
		return nil, err
	}

	reply := &packet.Handshake{
		Version:   packet.ProtocolVersion,
		Type:      packet.HandshakePublicKey,
		PublicKey: pub,
	}
	reply.UpdateChecksum()
	return reply.Marshal()
}

func (p *Pipeline) completeHandshake(peer [limits.PublicKeySize]byte) error {
	secret, err := p.exchange.ReceivePeerKey(peer)
	if err != nil {
		p.exchange.Reset()
		return fmt.Errorf("%w: %w", ErrHandshakeFailed, err)
	}
	return p.installSecret(secret)
}

// installSecret rotates the key ring from a fresh shared secret and retires
// the exchange state.
func (p *Pipeline) installSecret(secret [limits.SharedSecretSize]byte) error {
	defer crypto.ZeroBytes(secret[:])

	if err := p.keys.RotateFromSecret(secret); err != nil {
		p.exchange.Reset()
		return fmt.Errorf("%w: %w", ErrHandshakeFailed, err)
	}
	p.exchange.Reset()
	p.collector.IncHandshakeCompleted()
	return nil
}

// Tick drives the time-based parts of the pipeline: link-freshness
// evaluation and handshake expiry. Call it from the periodic control loop.
func (p *Pipeline) Tick(now time.Time) {
	state := p.link.Tick(now)
	p.collector.SetLinkState(int(state))
	p.collector.SetTokensAvailable(p.limiter.Tokens())

	if p.exchange.Expired(now) {
		logrus.WithFields(logrus.Fields{
			"function": "Tick",
		}).Warn("Key exchange timed out, resetting")
		p.exchange.Reset()
		p.collector.IncHandshakeExpired()
	}
}

// LinkTrusted reports whether validated commands may currently drive the
// vehicle.
func (p *Pipeline) LinkTrusted() bool {
	return p.link.Trusted()
}

// ShouldCutMotors reports whether the safety layer must stop actuators.
func (p *Pipeline) ShouldCutMotors() bool {
	return p.link.ShouldCutMotors()
}

// EmergencyStop latches the emergency state immediately.
func (p *Pipeline) EmergencyStop() {
	p.link.EmergencyStop()
}

// Recover releases an emergency latch.
func (p *Pipeline) Recover() {
	p.link.Recover()
}

// Counters returns a snapshot of the pipeline's lifetime counts.
func (p *Pipeline) Counters() Counters {
	stats := p.limiter.Stats()
	link := p.link.Counters()

	p.seqMu.Lock()
	replayed := p.replayed
	p.seqMu.Unlock()

	return Counters{
		Allowed:        stats.Allowed,
		Blocked:        stats.Blocked,
		Received:       link.Received,
		InvalidAuth:    link.InvalidAuth,
		ReplaysDropped: replayed,
	}
}

// Reset returns every component to its boot state: limiter refilled,
// supervisor idle, exchange idle, key material wiped, replay state cleared.
func (p *Pipeline) Reset() {
	p.limiter.Reset()
	p.link.Reset()
	p.exchange.Reset()
	p.keys.Wipe()

	p.seqMu.Lock()
	p.lastSeq = 0
	p.seqSeen = false
	p.replayed = 0
	p.seqMu.Unlock()

	logrus.WithFields(logrus.Fields{
		"function": "Reset",
	}).Info("Secure pipeline reset")
}
