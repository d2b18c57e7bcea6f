// Package fake provides a scriptable invocation.Runner for tests:
// instead of hardcoding a single canned result, this one lets a test
// script a sequence of steps (sleep, interrupt check, complete) so
// worker/scheduler tests can exercise timing-sensitive behavior
// without a real subprocess.
package fake

import (
	"sync"
	"time"

	"github.com/twitter/devfarm/device"
	"github.com/twitter/devfarm/interrupt"
	"github.com/twitter/devfarm/invocation"
)

// Script is one scripted invocation's behavior.
type Script struct {
	// Duration is how long Invoke pretends to run before completing,
	// checked against the token every pollInterval.
	Duration time.Duration
	// Interruptible marks the scripted invocation's sleep loop as an
	// interruption-safe region (set_interruptible(true)), mirroring a
	// test command that calls set_interruptible itself before a long
	// sleep. Defaults to false: a scripted command that never marks
	// itself interruptible runs to completion regardless of any
	// forced flag.
	Interruptible bool
	ExitCode      int
	Err           error
	// DeviceUnavailable scripts the invocation as detecting mid-run
	// that the device it was driving went unreachable, the same
	// narrower signal invocation.ProcessRunner raises via its reserved
	// exit status.
	DeviceUnavailable bool
}

// Runner replays a fixed Script (or the default immediate-success
// Script if none was configured) for every Invoke call, recording each
// argv it was asked to run and the Result it produced for test
// assertions.
type Runner struct {
	Script       Script
	PollInterval time.Duration

	mu          sync.Mutex
	Invocations [][]string
	Results     []invocation.Result
}

const defaultPollInterval = time.Millisecond

func (r *Runner) Invoke(argv []string, d device.Handle, timeout time.Duration, token *interrupt.Token, listeners ...invocation.Listener) invocation.Result {
	r.record(argv)
	for _, l := range listeners {
		l.OnStart()
	}

	poll := r.PollInterval
	if poll <= 0 {
		poll = defaultPollInterval
	}
	token.SetInterruptible(r.Script.Interruptible)

	// A killFunc models the escalation path (hard-shutdown grace
	// expiry, invocation-timeout secondary grace): Escalate bypasses
	// the cooperative (forced && allowed) check entirely, the same way
	// SIGKILL doesn't wait for a process to check anything.
	killed := make(chan struct{})
	token.SetKillFunc(func() { close(killed) })

	deadline := time.Now().Add(r.Script.Duration)
	for {
		select {
		case <-killed:
			res := invocation.Result{Interrupted: true, Err: interrupt.ErrInterrupted}
			r.recordResult(res)
			notifyEnd(listeners, res)
			return res
		default:
		}

		remaining := time.Until(deadline)
		if remaining <= 0 {
			break
		}
		step := poll
		if remaining < step {
			step = remaining
		}
		if err := interrupt.Suspend(token, step); err == interrupt.ErrInterrupted {
			res := invocation.Result{Interrupted: true, Err: interrupt.ErrInterrupted}
			r.recordResult(res)
			notifyEnd(listeners, res)
			return res
		}
	}

	res := invocation.Result{ExitCode: r.Script.ExitCode, Err: r.Script.Err}
	if r.Script.DeviceUnavailable {
		res.DeviceUnavailable = true
		res.Err = device.ErrDeviceNotAvailable
	}
	r.recordResult(res)
	notifyEnd(listeners, res)
	return res
}

func (r *Runner) record(argv []string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.Invocations = append(r.Invocations, argv)
}

func (r *Runner) recordResult(res invocation.Result) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.Results = append(r.Results, res)
}

func notifyEnd(listeners []invocation.Listener, res invocation.Result) {
	for _, l := range listeners {
		l.OnEnd(res)
	}
}
