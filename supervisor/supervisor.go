package supervisor

import (
	"fmt"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/opd-ai/navlink/crypto"
)

// Default freshness thresholds, measured from the last authenticated
// receipt.
const (
	DefaultSignalLossThreshold = 500 * time.Millisecond
	DefaultEmergencyThreshold  = 2 * time.Second
)

// State is the link trust state.
type State int

const (
	// Idle is the boot state; no authenticated packet has arrived yet.
	Idle State = iota

	// Armed means the link is fresh and commands may drive actuators.
	Armed

	// SignalLoss means the link went quiet past the signal-loss threshold.
	SignalLoss

	// Emergency means the link has been quiet past the emergency threshold,
	// or an explicit emergency stop latched the state.
	Emergency
)

// String returns a human-readable state name for logging.
func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Armed:
		return "armed"
	case SignalLoss:
		return "signal_loss"
	case Emergency:
		return "emergency"
	default:
		return fmt.Sprintf("unknown(%d)", int(s))
	}
}

// Counters is a snapshot of the supervisor's lifetime counts.
type Counters struct {
	// Received counts every receipt, authenticated or not.
	Received uint64

	// InvalidAuth counts receipts that failed checksum or MAC
	// verification.
	InvalidAuth uint64
}

// Supervisor decides link trust from packet-receipt timing. Construct with
// New; the zero value has zero thresholds and is not usable.
//
// All methods are safe for concurrent use.
type Supervisor struct {
	mu sync.Mutex

	state          State
	lastPacket     time.Time
	lastTransition time.Time
	latched        bool

	received    uint64
	invalidAuth uint64

	signalLoss time.Duration
	emergency  time.Duration
	clock      crypto.TimeProvider
}

// Option configures a Supervisor.
type Option func(*Supervisor)

// WithThresholds overrides the signal-loss and emergency thresholds.
// Non-positive or inverted values keep the defaults.
func WithThresholds(signalLoss, emergency time.Duration) Option {
	return func(s *Supervisor) {
		if signalLoss > 0 && emergency > signalLoss {
			s.signalLoss = signalLoss
			s.emergency = emergency
		}
	}
}

// WithTimeProvider substitutes the clock, for tests.
func WithTimeProvider(tp crypto.TimeProvider) Option {
	return func(s *Supervisor) {
		if tp != nil {
			s.clock = tp
		}
	}
}

// New creates a supervisor in the Idle state. The freshness clock starts
// at construction, so a link that never authenticates a single packet
// still degrades to Emergency on schedule.
func New(opts ...Option) *Supervisor {
	s := &Supervisor{
		state:      Idle,
		signalLoss: DefaultSignalLossThreshold,
		emergency:  DefaultEmergencyThreshold,
		clock:      crypto.DefaultTimeProvider{},
	}
	for _, opt := range opts {
		opt(s)
	}
	s.lastPacket = s.clock.Now()
	return s
}

// State returns the current trust state.
func (s *Supervisor) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// RecordReceipt records a packet receipt at the given time. Authenticated
// receipts refresh the freshness timestamp and arm an idle link; failed ones
// are counted only, so garbage cannot keep the link alive.
func (s *Supervisor) RecordReceipt(now time.Time, authenticated bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.received++
	if !authenticated {
		s.invalidAuth++
		return
	}

	s.lastPacket = now
	if s.state == Idle && !s.latched {
		s.transitionLocked(Armed, now)
	}
}

// Tick recomputes the state from the elapsed time since the last
// authenticated receipt, measured from boot while no packet has ever
// authenticated. Tick never arms an idle link, and a latched emergency
// is never escaped by it.
func (s *Supervisor) Tick(now time.Time) State {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.latched {
		return s.state
	}

	elapsed := now.Sub(s.lastPacket)
	var next State
	switch {
	case elapsed >= s.emergency:
		next = Emergency
	case elapsed >= s.signalLoss:
		next = SignalLoss
	case s.state == Idle:
		next = Idle
	default:
		next = Armed
	}
	if next != s.state {
		s.transitionLocked(next, now)
	}
	return s.state
}

// EmergencyStop forces and latches the Emergency state immediately. Only
// Recover releases the latch.
func (s *Supervisor) EmergencyStop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.latched = true
	if s.state != Emergency {
		s.transitionLocked(Emergency, s.clock.Now())
	}
	logrus.WithFields(logrus.Fields{
		"function": "EmergencyStop",
	}).Warn("Emergency stop latched")
}

// Recover releases an emergency latch and returns the link to Armed. The
// next Tick re-evaluates freshness as usual.
func (s *Supervisor) Recover() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.latched && s.state != Emergency {
		return
	}
	s.latched = false
	now := s.clock.Now()
	s.lastPacket = now
	s.transitionLocked(Armed, now)
}

// ShouldCutMotors reports whether actuators must be stopped. True in
// SignalLoss and Emergency.
func (s *Supervisor) ShouldCutMotors() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state == SignalLoss || s.state == Emergency
}

// Trusted reports whether validated commands may currently drive the
// vehicle.
func (s *Supervisor) Trusted() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state == Armed
}

// Counters returns a snapshot of the lifetime counts.
func (s *Supervisor) Counters() Counters {
	s.mu.Lock()
	defer s.mu.Unlock()
	return Counters{Received: s.received, InvalidAuth: s.invalidAuth}
}

// Reset returns the supervisor to Idle, clears the latch, and zeroes all
// counters.
func (s *Supervisor) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()

	prior := s.state
	s.state = Idle
	s.latched = false
	s.lastPacket = s.clock.Now()
	s.lastTransition = time.Time{}
	s.received = 0
	s.invalidAuth = 0

	if prior != Idle {
		logrus.WithFields(logrus.Fields{
			"function": "Reset",
			"from":     prior.String(),
		}).Info("Link supervisor reset")
	}
}

// transitionLocked changes state with logging. Caller holds s.mu.
func (s *Supervisor) transitionLocked(next State, now time.Time) {
	prior := s.state
	s.state = next
	s.lastTransition = now

	entry := logrus.WithFields(logrus.Fields{
		"function": "transition",
		"from":     prior.String(),
		"to":       next.String(),
	})
	if next == SignalLoss || next == Emergency {
		entry.Warn("Link state changed")
	} else {
		entry.Info("Link state changed")
	}
}
