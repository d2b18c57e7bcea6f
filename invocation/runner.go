// Package invocation implements the invocation runner: the seam that
// actually executes one dispatch of a Command against an allocated
// device. The worker owns state transitions; the Runner just knows how
// to start and wait on one attempt.
package invocation

import (
	"time"

	"github.com/twitter/devfarm/device"
	"github.com/twitter/devfarm/interrupt"
)

// Result describes how one invocation ended: either Completed (with an
// exit code), or it Failed to even produce one, or it was Interrupted
// (the cooperative-cancellation path), distinct from a normal nonzero
// exit code. DeviceUnavailable is a third, narrower kind of failure: the
// Runner detected mid-invocation that the device it was driving is no
// longer reachable (as opposed to the command itself failing), so the
// worker releases the device as unhealthy and terminates the command
// regardless of loop_mode instead of treating this like any other
// nonzero exit.
type Result struct {
	ExitCode          int
	StdoutRef         string
	StderrRef         string
	Interrupted       bool
	DeviceUnavailable bool
	Err               error
}

// Listener receives lifecycle notifications from a running invocation.
// The Worker passes no listeners to Invoke; it times the invocation
// itself around the Invoke call.
type Listener interface {
	OnStart()
	OnEnd(Result)
}

// Runner is the seam between the worker pool and whatever actually
// executes a Command's argv. Invoke is synchronous from the caller's
// perspective (the worker dedicates a goroutine to it) but must itself
// respect token's cooperative cancellation: every internal wait must
// go through interrupt.Suspend so a Force()'d token interrupts
// promptly instead of blocking until the invocation's own timeout.
type Runner interface {
	Invoke(argv []string, d device.Handle, timeout time.Duration, token *interrupt.Token, listeners ...Listener) Result
}
