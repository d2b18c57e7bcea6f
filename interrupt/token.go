// Package interrupt implements the interruption controller: a
// per-worker cooperative cancellation token plus the suspension-point
// helper every blocking wait in the invocation runner is expected to
// call through.
//
// Uses explicit flags over goroutine-kill: a worker goroutine is asked
// to stop rather than torn down. The one place an actual kill happens -
// grace-window and invocation-timeout escalation - is wired through
// Token's optional KillFunc, which invocation.ProcessRunner sets to
// the subprocess's Kill method.
package interrupt

import (
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/twitter/devfarm/common/log"
)

// ErrInterrupted is raised by Suspend when a forced, interruptible
// region is asked to stop.
var ErrInterrupted = errors.New("interrupt: interrupted")

// Token is the per-worker (allowed, forced) pair. The zero value is
// (false, false). forced is sticky: once set it is never cleared
// until the token is closed by its owning worker.
type Token struct {
	allowed int32
	forced  int32

	mu       sync.Mutex
	killFunc func()
	killed   bool

	done      chan struct{}
	closeOnce sync.Once
}

func NewToken() *Token {
	return &Token{done: make(chan struct{})}
}

// SetInterruptible marks (or unmarks) the worker's current region as
// interruption-safe. Only the owning worker ever calls this.
func (t *Token) SetInterruptible(allowed bool) {
	v := int32(0)
	if allowed {
		v = 1
	}
	atomic.StoreInt32(&t.allowed, v)
}

func (t *Token) IsInterruptible() bool {
	return atomic.LoadInt32(&t.allowed) == 1
}

// Force requests termination. Safe to call from any goroutine
// (the Shutdown Coordinator, a battery watchdog, an invocation-timeout
// watchdog) and idempotent.
func (t *Token) Force() {
	atomic.StoreInt32(&t.forced, 1)
}

func (t *Token) IsForced() bool {
	return atomic.LoadInt32(&t.forced) == 1
}

// SetKillFunc registers the escalation hook invoked by Escalate. A
// Runner that wraps a real OS process (invocation.ProcessRunner)
// registers the process's Kill method here; Runners with nothing to
// forcibly kill (the fake runner) simply never register one.
func (t *Token) SetKillFunc(f func()) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.killFunc = f
}

// Escalate is the forced-termination-after-grace step: it is only
// ever called after a grace window has expired on a worker that did
// not cooperate. It calls the registered kill hook at most once.
func (t *Token) Escalate() {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.killed {
		return
	}
	t.killed = true
	if t.killFunc != nil {
		log.Warn("interrupt: escalating to forced termination after grace expiry")
		t.killFunc()
	}
}

// Done is closed once the owning worker has terminated, so watchdog
// goroutines (battery, invocation timeout) know to stop polling.
func (t *Token) Done() <-chan struct{} {
	return t.done
}

// Close signals Done. Called exactly once by the worker that owns
// this token when it reaches the DONE state.
func (t *Token) Close() {
	t.closeOnce.Do(func() { close(t.done) })
}

const suspendPollInterval = 10 * time.Millisecond

// Suspend is the suspension point every wait/sleep helper the
// invocation runner calls through must use. It sleeps for d, but
// checks (forced && allowed) at entry and on every poll tick; the
// first time that condition holds, it returns ErrInterrupted
// immediately instead of completing the sleep. d <= 0 is a
// zero-length checkpoint: it still performs the single entry check
// before returning.
//
// A forced flag set before an allowed region is entered causes that
// region's first suspension point to raise Interrupted, because the
// entry check runs before any sleeping happens.
func Suspend(t *Token, d time.Duration) error {
	if t.IsForced() && t.IsInterruptible() {
		return ErrInterrupted
	}
	if d <= 0 {
		return nil
	}
	deadline := time.Now().Add(d)
	for {
		remaining := time.Until(deadline)
		if remaining <= 0 {
			return nil
		}
		step := suspendPollInterval
		if remaining < step {
			step = remaining
		}
		time.Sleep(step)
		if t.IsForced() && t.IsInterruptible() {
			return ErrInterrupted
		}
	}
}
