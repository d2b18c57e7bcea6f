// Package worker implements the worker pool: one activity per
// (command, device) dispatch, carried through a
// STARTING -> RUNNING -> STOPPING -> DONE state machine. One goroutine
// is spawned per dispatch rather than pooling a fixed set of worker
// goroutines, and every dispatch logs through structured logrus
// fields.
package worker

import (
	"time"

	stderrors "errors"

	"github.com/twitter/devfarm/common/log"
	"github.com/twitter/devfarm/common/stats"
	"github.com/twitter/devfarm/config"
	"github.com/twitter/devfarm/device"
	"github.com/twitter/devfarm/interrupt"
	"github.com/twitter/devfarm/invocation"
	"github.com/twitter/devfarm/queue"
)

// State is a Worker's position in its dispatch lifecycle.
type State int

const (
	Idle State = iota
	Starting
	Running
	Stopping
	Done
)

func (s State) String() string {
	switch s {
	case Idle:
		return "IDLE"
	case Starting:
		return "STARTING"
	case Running:
		return "RUNNING"
	case Stopping:
		return "STOPPING"
	case Done:
		return "DONE"
	default:
		return "UNKNOWN"
	}
}

// Outcome summarizes how a worker's dispatch ended, as returned by Run.
// The scheduler loop treats Run's return only as the completion signal
// and does not inspect the Outcome.
type Outcome struct {
	Command     *queue.Command
	Device      device.Handle
	Requeued    bool
	DeviceError error
	ConfigError error
}

// Deps bundles a Worker's collaborator seams so New doesn't need a
// long parameter list; the Configuration Factory and the
// Invocation Runner are both swappable collaborator seams.
type Deps struct {
	Factory     config.Factory
	Runner      invocation.Runner
	DeviceMgr   device.Manager
	Queue       *queue.Queue
	Stats       stats.StatsReceiver
	NowProvider func() time.Time

	// SchedulerOpen reports whether the scheduler is still accepting
	// and running dispatches. A loop-mode command is only requeued
	// when this returns true; nil means "always open", for callers
	// (tests, anything not embedded in a scheduler) that don't have a
	// lifecycle to check against.
	SchedulerOpen func() bool
}

// Worker drives exactly one Command against exactly one DeviceHandle
// for the duration of one dispatch.
type Worker struct {
	ID    string
	cmd   *queue.Command
	dev   device.Handle
	token *interrupt.Token
	deps  Deps

	state State
}

func New(id string, cmd *queue.Command, dev device.Handle, deps Deps) *Worker {
	if deps.NowProvider == nil {
		deps.NowProvider = time.Now
	}
	if deps.Stats == nil {
		deps.Stats = stats.NilStatsReceiver()
	}
	return &Worker{ID: id, cmd: cmd, dev: dev, token: interrupt.NewToken(), deps: deps, state: Idle}
}

// Token exposes the worker's InterruptToken so watchdogs (battery,
// invocation timeout) and the Shutdown Coordinator can set forced on
// it without reaching into worker internals.
func (w *Worker) Token() *interrupt.Token { return w.token }

func (w *Worker) Command() *queue.Command { return w.cmd }

func (w *Worker) Device() device.Handle { return w.dev }

func (w *Worker) State() State { return w.state }

// Run drives the full STARTING -> RUNNING -> STOPPING -> DONE sequence
// synchronously; the caller (the scheduler loop's dispatch path) runs
// it in its own goroutine, one per worker, so workers run in parallel
// with the scheduler loop and with each other.
func (w *Worker) Run() Outcome {
	defer w.token.Close()
	logFields := log.WithFields(map[string]interface{}{"worker": w.ID, "command": w.cmd.ID, "device": string(w.dev.Serial)})

	w.state = Starting
	cfg, err := w.deps.Factory.CreateConfigurationFromArgs(w.cmd.Args)
	if err != nil {
		logFields.WithField("err", err).Error("worker: configuration factory rejected command")
		w.releaseDevice(logFields)
		w.cmd.MarkTerminated()
		w.state = Done
		return Outcome{Command: w.cmd, Device: w.dev, ConfigError: err}
	}

	// Marking a region interruptible is the Invocation Runner's call to
	// make, not the worker's: whether the current region of the running
	// command is an interruption-safe checkpoint (as opposed to, say,
	// device flashing or other critical setup) depends on what the
	// command is doing, which only the Runner knows.
	w.state = Running
	start := w.deps.NowProvider()
	result := w.deps.Runner.Invoke(cfg.Argv, w.dev, cfg.InvocationTimeout(), w.token)
	elapsed := w.deps.NowProvider().Sub(start)

	if result.Err != nil && !result.Interrupted {
		logFields.WithField("err", result.Err).Warn("worker: invocation ended in error")
	}

	w.state = Stopping
	w.cmd.AddExecTime(uint64(elapsed.Milliseconds()))

	devErr := w.releaseDevice(logFields)

	outcome := Outcome{Command: w.cmd, Device: w.dev, DeviceError: devErr}

	deviceUnavailable := result.DeviceUnavailable || stderrors.Is(devErr, device.ErrDeviceNotAvailable)
	if deviceUnavailable {
		// Device unreachable is terminal regardless of loop_mode - the
		// command is not requeued, and the device is excluded from the
		// allocatable pool until an operator reinstates it.
		if w.deps.DeviceMgr != nil {
			if err := w.deps.DeviceMgr.MarkUnhealthy(w.dev.Serial); err != nil {
				logFields.WithField("err", err).Warn("worker: failed to mark device unhealthy")
			}
		}
		w.cmd.MarkTerminated()
		w.state = Done
		return outcome
	}

	shouldLoop := cfg.LoopMode && !result.Interrupted
	if shouldLoop && w.deps.SchedulerOpen != nil && !w.deps.SchedulerOpen() {
		shouldLoop = false
	}

	if shouldLoop {
		sleep := cfg.MinLoopTime() - elapsed
		if sleep > 0 {
			w.state = Stopping
			w.cmd.MarkSleeping()
			if err := interrupt.Suspend(w.token, sleep); err == interrupt.ErrInterrupted {
				logFields.Debug("worker: min-loop-time sleep interrupted, requeueing anyway")
			}
		}
		if w.deps.Queue != nil {
			w.deps.Queue.Requeue(w.cmd)
		}
		outcome.Requeued = true
	} else {
		w.cmd.MarkTerminated()
	}

	w.state = Done
	return outcome
}

func (w *Worker) releaseDevice(logFields *log.Entry) error {
	if w.deps.DeviceMgr == nil {
		return nil
	}
	if err := w.deps.DeviceMgr.Release(&w.dev); err != nil {
		logFields.WithField("err", err).Warn("worker: failed to release device")
		return err
	}
	return nil
}
