// Package supervisor tracks whether the command link is currently
// trustworthy.
//
// A Supervisor is a time-driven state machine over four states. It boots in
// Idle and arms on the first authenticated packet receipt. From there the
// periodic Tick recomputes the state purely from the time elapsed since the
// last authenticated receipt: under the signal-loss threshold the link is
// Armed, past it SignalLoss, and past the emergency threshold Emergency.
//
// Receipts that failed authentication are counted for observability but
// never refresh the freshness timestamp, so a flood of garbage or replayed
// frames cannot hold the link artificially alive.
//
// EmergencyStop latches Emergency regardless of timing; the latch is only
// released by an explicit Recover call, never by Tick. ShouldCutMotors
// reports true in SignalLoss and Emergency and is the single output the
// actuation layer consumes.
package supervisor
