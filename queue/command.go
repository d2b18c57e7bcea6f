// Package queue implements the command queue: a min-heap over pending
// Commands keyed by accumulated runtime, tie broken by insertion order.
package queue

import (
	"sync/atomic"

	uuid "github.com/nu7hatch/gouuid"

	"github.com/twitter/devfarm/device"
)

// Status is a Command's position in its lifecycle.
type Status int

const (
	Queued Status = iota
	Running
	Sleeping
	Terminated
)

func (s Status) String() string {
	switch s {
	case Queued:
		return "QUEUED"
	case Running:
		return "RUNNING"
	case Sleeping:
		return "SLEEPING"
	case Terminated:
		return "TERMINATED"
	default:
		return "UNKNOWN"
	}
}

// Command is a user-supplied argument vector plus the derived
// attributes the scheduler needs to dispatch and re-dispatch it.
type Command struct {
	ID string

	Args                []string
	LoopMode            bool
	MinLoopTimeMs       uint64
	InvocationTimeoutMs uint64
	CutoffBattery       int
	DeviceRequirements  device.Requirements

	// totalExecTimeMs is monotonically non-decreasing and mutated
	// only by the worker that owns this Command. It's accessed
	// atomically because readers such as Scheduler.ListCommands sample
	// it from goroutines other than the owning worker's.
	totalExecTimeMs uint64

	// dispatchCount is how many times the scheduler has dispatched
	// this command.
	dispatchCount uint64

	status atomic.Value // Status
}

// NewCommand builds a Command with a fresh ID and Status == Queued.
func NewCommand(args []string) *Command {
	c := &Command{ID: generateID(), Args: args}
	c.status.Store(Queued)
	return c
}

func generateID() string {
	for {
		if id, err := uuid.NewV4(); err == nil {
			return id.String()
		}
	}
}

func (c *Command) TotalExecTimeMs() uint64 {
	return atomic.LoadUint64(&c.totalExecTimeMs)
}

// AddExecTime is called only by the worker that owns c.
func (c *Command) AddExecTime(deltaMs uint64) {
	atomic.AddUint64(&c.totalExecTimeMs, deltaMs)
}

func (c *Command) DispatchCount() uint64 {
	return atomic.LoadUint64(&c.dispatchCount)
}

// IncrementDispatchCount is called by the scheduler loop each time it
// dispatches c to a worker.
func (c *Command) IncrementDispatchCount() {
	atomic.AddUint64(&c.dispatchCount, 1)
}

func (c *Command) Status() Status {
	return c.status.Load().(Status)
}

func (c *Command) setStatus(s Status) {
	c.status.Store(s)
}

// MarkRunning, MarkSleeping, and MarkTerminated let the Scheduler Loop
// and Worker Pool (different packages than queue) drive c's status
// transitions without reaching past the exported Status enum.
func (c *Command) MarkRunning() { c.setStatus(Running) }

func (c *Command) MarkSleeping() { c.setStatus(Sleeping) }

func (c *Command) MarkTerminated() { c.setStatus(Terminated) }
