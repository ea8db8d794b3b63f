package supervisor

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type mockClock struct {
	now time.Time
}

func (m *mockClock) Now() time.Time                  { return m.now }
func (m *mockClock) Since(t time.Time) time.Duration { return m.now.Sub(t) }

func newTestSupervisor() (*Supervisor, *mockClock) {
	clock := &mockClock{now: time.Unix(1000, 0)}
	return New(WithTimeProvider(clock)), clock
}

func TestBootsIdle(t *testing.T) {
	s, clock := newTestSupervisor()
	assert.Equal(t, Idle, s.State())
	assert.False(t, s.Trusted())
	assert.False(t, s.ShouldCutMotors())

	// A fresh boot stays Idle; Tick cannot arm the link.
	assert.Equal(t, Idle, s.Tick(clock.now.Add(100*time.Millisecond)))
	assert.False(t, s.Trusted())
}

func TestSilentBootDegrades(t *testing.T) {
	s, clock := newTestSupervisor()

	// The freshness clock runs from boot, so a link that never
	// authenticates still hits the failsafe thresholds.
	assert.Equal(t, SignalLoss, s.Tick(clock.now.Add(time.Second)))
	assert.Equal(t, Emergency, s.Tick(clock.now.Add(3*time.Second)))
	assert.True(t, s.ShouldCutMotors())
	assert.False(t, s.Trusted())
}

func TestFirstAuthenticatedReceiptArms(t *testing.T) {
	s, clock := newTestSupervisor()
	s.RecordReceipt(clock.now, true)
	assert.Equal(t, Armed, s.State())
	assert.True(t, s.Trusted())
	assert.False(t, s.ShouldCutMotors())
}

func TestThresholdTable(t *testing.T) {
	tests := []struct {
		name    string
		elapsed time.Duration
		want    State
	}{
		{"fresh link", 400 * time.Millisecond, Armed},
		{"past signal loss", 1200 * time.Millisecond, SignalLoss},
		{"past emergency", 2500 * time.Millisecond, Emergency},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, clock := newTestSupervisor()
			s.RecordReceipt(clock.now, true)

			got := s.Tick(clock.now.Add(tt.elapsed))
			assert.Equal(t, tt.want, got)
			assert.Equal(t, tt.want != Armed, s.ShouldCutMotors())
		})
	}
}

func TestThresholdBoundaries(t *testing.T) {
	s, clock := newTestSupervisor()
	s.RecordReceipt(clock.now, true)

	assert.Equal(t, Armed, s.Tick(clock.now.Add(DefaultSignalLossThreshold-time.Millisecond)))
	assert.Equal(t, SignalLoss, s.Tick(clock.now.Add(DefaultSignalLossThreshold)))
	assert.Equal(t, SignalLoss, s.Tick(clock.now.Add(DefaultEmergencyThreshold-time.Millisecond)))
	assert.Equal(t, Emergency, s.Tick(clock.now.Add(DefaultEmergencyThreshold)))
}

func TestFreshReceiptRecoversFromSignalLoss(t *testing.T) {
	s, clock := newTestSupervisor()
	s.RecordReceipt(clock.now, true)

	clock.now = clock.now.Add(time.Second)
	require.Equal(t, SignalLoss, s.Tick(clock.now))

	s.RecordReceipt(clock.now, true)
	assert.Equal(t, Armed, s.Tick(clock.now))
}

func TestGarbageFloodNeverArms(t *testing.T) {
	s, clock := newTestSupervisor()

	for i := 0; i < 1000; i++ {
		s.RecordReceipt(clock.now, false)
		clock.now = clock.now.Add(3 * time.Millisecond)
	}

	assert.NotEqual(t, Armed, s.State(), "unauthenticated flood armed the link")
	counters := s.Counters()
	assert.Equal(t, uint64(1000), counters.Received)
	assert.Equal(t, uint64(1000), counters.InvalidAuth)

	// The flood spans three seconds of silence from boot, so the next
	// tick reports Emergency, not a live link.
	assert.Equal(t, Emergency, s.Tick(clock.now))
}

func TestGarbageDoesNotRefreshFreshness(t *testing.T) {
	s, clock := newTestSupervisor()
	s.RecordReceipt(clock.now, true)

	// A steady stream of garbage while the real link is dead must not keep
	// the state Armed.
	for i := 0; i < 30; i++ {
		clock.now = clock.now.Add(100 * time.Millisecond)
		s.RecordReceipt(clock.now, false)
	}

	assert.Equal(t, Emergency, s.Tick(clock.now))
}

func TestEmergencyStopLatches(t *testing.T) {
	s, clock := newTestSupervisor()
	s.RecordReceipt(clock.now, true)
	require.Equal(t, Armed, s.State())

	s.EmergencyStop()
	assert.Equal(t, Emergency, s.State())
	assert.True(t, s.ShouldCutMotors())

	// Neither fresh packets nor ticks escape the latch.
	s.RecordReceipt(clock.now, true)
	assert.Equal(t, Emergency, s.Tick(clock.now))

	s.Recover()
	assert.Equal(t, Armed, s.State())
	assert.Equal(t, Armed, s.Tick(clock.now))
}

func TestRecoverWithoutLatchIsNoOp(t *testing.T) {
	s, clock := newTestSupervisor()
	s.RecordReceipt(clock.now, true)

	s.Recover()
	assert.Equal(t, Armed, s.State())

	s2, _ := newTestSupervisor()
	s2.Recover()
	assert.Equal(t, Idle, s2.State())
}

func TestRecoverFromTimeoutEmergency(t *testing.T) {
	s, clock := newTestSupervisor()
	s.RecordReceipt(clock.now, true)
	clock.now = clock.now.Add(3 * time.Second)
	require.Equal(t, Emergency, s.Tick(clock.now))

	s.Recover()
	assert.Equal(t, Armed, s.State())
}

func TestCustomThresholds(t *testing.T) {
	clock := &mockClock{now: time.Unix(1000, 0)}
	s := New(
		WithThresholds(100*time.Millisecond, 300*time.Millisecond),
		WithTimeProvider(clock),
	)
	s.RecordReceipt(clock.now, true)

	assert.Equal(t, Armed, s.Tick(clock.now.Add(50*time.Millisecond)))
	assert.Equal(t, SignalLoss, s.Tick(clock.now.Add(200*time.Millisecond)))
	assert.Equal(t, Emergency, s.Tick(clock.now.Add(400*time.Millisecond)))
}

func TestReset(t *testing.T) {
	s, clock := newTestSupervisor()
	s.RecordReceipt(clock.now, true)
	s.RecordReceipt(clock.now, false)
	s.EmergencyStop()

	s.Reset()
	assert.Equal(t, Idle, s.State())
	assert.Equal(t, Counters{}, s.Counters())

	// The latch is cleared; the link can arm again.
	s.RecordReceipt(clock.now, true)
	assert.Equal(t, Armed, s.State())
}
