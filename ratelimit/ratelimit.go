// Package ratelimit implements token-bucket admission control for the inbound
// command channel. It exists to keep a flooding peer from exhausting the CPU
// budget before any cryptographic work happens, so the limiter must sit first
// in the inbound pipeline.
package ratelimit

import (
	"errors"
	"sync"
	"time"
)

const (
	// DefaultCapacity is the default token ceiling (100 commands of burst).
	DefaultCapacity = 100

	// DefaultRefillInterval is the default time to earn one token: one token
	// per 10 ms sustains 100 commands per second.
	DefaultRefillInterval = 10 * time.Millisecond

	// MaxChannelRate is the hard ceiling for a per-channel override, in
	// commands per second.
	MaxChannelRate = 1000
)

// ErrChannelRateTooHigh indicates a per-channel override above MaxChannelRate.
var ErrChannelRateTooHigh = errors.New("per-channel rate exceeds hard maximum")

// Status is the admission verdict for one inbound command.
type Status uint8

const (
	// StatusAllowed admits the command; one token was consumed.
	StatusAllowed Status = iota

	// StatusExceeded rejects the command: the global bucket is empty.
	StatusExceeded

	// StatusChannelExceeded rejects the command: the global bucket had a
	// token but the channel's own per-second cap is spent.
	StatusChannelExceeded
)

// String returns the human-readable name of the status.
func (s Status) String() string {
	switch s {
	case StatusAllowed:
		return "Allowed"
	case StatusExceeded:
		return "Exceeded"
	case StatusChannelExceeded:
		return "ChannelExceeded"
	default:
		return "Unknown"
	}
}

// TimeProvider abstracts the clock for deterministic testing.
type TimeProvider interface {
	Now() time.Time
}

type systemTime struct{}

func (systemTime) Now() time.Time { return time.Now() }

// Stats is a snapshot of limiter state for observability.
type Stats struct {
	Tokens   int
	Capacity int
	Allowed  uint64
	Blocked  uint64
}

// channelWindow tracks one channel's consumption inside the current
// one-second window.
type channelWindow struct {
	start time.Time
	count int
}

// Limiter is a token-bucket rate limiter with optional per-channel caps.
//
// Refill is lazy: tokens are advanced from elapsed wall-clock time at Admit
// time, by whole refill intervals only, so repeated calls inside one interval
// never mint extra tokens. The global bucket is always checked first; a
// per-channel cap is an additive restriction, never a bypass.
//
// A Limiter is safe for concurrent use.
type Limiter struct {
	mu          sync.Mutex
	capacity    int
	tokens      int
	interval    time.Duration
	lastRefill  time.Time
	allowed     uint64
	blocked     uint64
	channelCaps map[uint8]int
	windows     map[uint8]*channelWindow
	tp          TimeProvider
}

// New creates a limiter holding tokens up to capacity, earning one token per
// refill interval. A zero capacity rejects every admission. Pass nil for tp
// to use the system clock.
func New(capacity int, interval time.Duration, tp TimeProvider) *Limiter {
	if capacity < 0 {
		capacity = 0
	}
	if interval <= 0 {
		interval = DefaultRefillInterval
	}
	if tp == nil {
		tp = systemTime{}
	}
	return &Limiter{
		capacity:    capacity,
		tokens:      capacity,
		interval:    interval,
		lastRefill:  tp.Now(),
		channelCaps: make(map[uint8]int),
		windows:     make(map[uint8]*channelWindow),
		tp:          tp,
	}
}

// NewDefault creates a limiter with the firmware defaults: 100 tokens,
// one refill per 10 ms.
func NewDefault() *Limiter {
	return New(DefaultCapacity, DefaultRefillInterval, nil)
}

// refill advances the bucket by the whole intervals elapsed since the last
// refill. Caller holds mu.
func (l *Limiter) refill(now time.Time) {
	elapsed := now.Sub(l.lastRefill)
	if elapsed < l.interval {
		return
	}
	n := int(elapsed / l.interval)
	l.tokens += n
	if l.tokens > l.capacity {
		l.tokens = l.capacity
	}
	// Advance by whole intervals only, so the fractional remainder keeps
	// accruing toward the next token.
	l.lastRefill = l.lastRefill.Add(time.Duration(n) * l.interval)
}

// Admit decides whether one command on the given channel may proceed. A token
// is consumed only when the verdict is StatusAllowed.
func (l *Limiter) Admit(channel uint8) Status {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.tp.Now()
	l.refill(now)

	if l.tokens == 0 {
		l.blocked++
		return StatusExceeded
	}

	if limit, ok := l.channelCaps[channel]; ok && limit > 0 {
		w := l.windows[channel]
		if w == nil || now.Sub(w.start) >= time.Second {
			w = &channelWindow{start: now}
			l.windows[channel] = w
		}
		if w.count >= limit {
			l.blocked++
			return StatusChannelExceeded
		}
		w.count++
	}

	l.tokens--
	l.allowed++
	return StatusAllowed
}

// SetChannelLimit caps a single channel below the global rate, in commands
// per second. A rate of zero removes the cap. Rates above MaxChannelRate are
// rejected.
func (l *Limiter) SetChannelLimit(channel uint8, perSecond int) error {
	if perSecond > MaxChannelRate {
		return ErrChannelRateTooHigh
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	if perSecond <= 0 {
		delete(l.channelCaps, channel)
		delete(l.windows, channel)
		return nil
	}
	l.channelCaps[channel] = perSecond
	return nil
}

// Tokens returns the current token count after a lazy refill.
func (l *Limiter) Tokens() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.refill(l.tp.Now())
	return l.tokens
}

// Stats returns a snapshot of the limiter for telemetry.
func (l *Limiter) Stats() Stats {
	l.mu.Lock()
	defer l.mu.Unlock()
	return Stats{
		Tokens:   l.tokens,
		Capacity: l.capacity,
		Allowed:  l.allowed,
		Blocked:  l.blocked,
	}
}

// Reset refills the bucket to capacity and zeroes the lifetime counters.
func (l *Limiter) Reset() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.tokens = l.capacity
	l.lastRefill = l.tp.Now()
	l.allowed = 0
	l.blocked = 0
	l.windows = make(map[uint8]*channelWindow)
}
