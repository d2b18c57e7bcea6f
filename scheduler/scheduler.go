// Package scheduler implements the scheduler loop and the shutdown
// coordinator: the single coordinator activity that matches queued
// commands to free devices and drives the OPEN -> CLOSING -> CLOSED
// lifecycle.
package scheduler

import (
	"sync"
	"time"

	"github.com/pkg/errors"
	"golang.org/x/time/rate"

	"github.com/twitter/devfarm/common/log"
	"github.com/twitter/devfarm/common/stats"
	"github.com/twitter/devfarm/config"
	"github.com/twitter/devfarm/device"
	"github.com/twitter/devfarm/invocation"
	"github.com/twitter/devfarm/queue"
	"github.com/twitter/devfarm/worker"
)

// LifecycleState is the Shutdown Coordinator's OPEN/CLOSING/CLOSED
// state machine.
type LifecycleState int

const (
	Open LifecycleState = iota
	Closing
	Closed
)

func (s LifecycleState) String() string {
	switch s {
	case Open:
		return "OPEN"
	case Closing:
		return "CLOSING"
	case Closed:
		return "CLOSED"
	default:
		return "UNKNOWN"
	}
}

// ErrClosing is returned by AddCommand once the scheduler has begun
// shutting down.
var ErrClosing = errors.New("scheduler: not accepting new commands")

// CommandInfo is the read-only projection of a Command returned by
// ListCommands, for introspection and CLI display.
type CommandInfo struct {
	ID              string
	Args            []string
	Status          string
	LoopMode        bool
	TotalExecTimeMs uint64
	DispatchCount   uint64
}

// activeWorker tracks one in-flight dispatch so the Shutdown
// Coordinator can force every worker's token and the loop can count
// how many are RUNNING for the SetSchedulerStatus cap.
type activeWorker struct {
	w    *worker.Worker
	done chan struct{}
}

// Scheduler is the scheduler loop plus shutdown coordinator. One
// Scheduler owns one command queue and one device manager.
type Scheduler struct {
	cfg     Config
	queue   *queue.Queue
	devices device.Manager
	factory config.Factory
	runner  invocation.Runner
	stat    stats.StatsReceiver
	limiter *rate.Limiter

	mu            sync.Mutex
	state         LifecycleState
	active        map[string]*activeWorker
	maxConcurrent int
	nextWorkerID  uint64

	newCommand chan struct{}
	workerDone chan struct{}
	closedCh   chan struct{}
	closedOnce sync.Once
}

func New(devices device.Manager, factory config.Factory, runner invocation.Runner, cfg Config, stat stats.StatsReceiver) *Scheduler {
	if stat == nil {
		stat = stats.NilStatsReceiver()
	}
	limit := cfg.DispatchRateLimit
	burst := cfg.DispatchBurst
	if limit <= 0 {
		limit = rate.Inf
	}
	if burst <= 0 {
		burst = 1
	}
	return &Scheduler{
		cfg:        cfg,
		queue:      queue.NewQueue(stat),
		devices:    devices,
		factory:    factory,
		runner:     runner,
		stat:       stat.Scope("scheduler"),
		limiter:    rate.NewLimiter(limit, burst),
		state:      Open,
		active:     map[string]*activeWorker{},
		newCommand: make(chan struct{}, 1),
		workerDone: make(chan struct{}, 1),
		closedCh:   make(chan struct{}),
	}
}

// Start launches the scheduler loop activity. Calling it twice on the
// same Scheduler is a caller bug, not guarded against.
func (s *Scheduler) Start() {
	go s.loop()
}

// AddCommand validates args via the Configuration Factory, builds a
// Command, and queues it.
func (s *Scheduler) AddCommand(args []string) (*queue.Command, error) {
	s.mu.Lock()
	state := s.state
	s.mu.Unlock()
	if state != Open {
		return nil, ErrClosing
	}

	cfg, err := s.factory.CreateConfigurationFromArgs(args)
	if err != nil {
		return nil, errors.Wrap(err, "scheduler: add_command rejected by configuration factory")
	}

	cmd := queue.NewCommand(args)
	cmd.LoopMode = cfg.LoopMode
	cmd.MinLoopTimeMs = uint64(cfg.MinLoopTimeMs)
	cmd.InvocationTimeoutMs = uint64(cfg.InvocationTimeoutMs)
	cmd.CutoffBattery = cfg.CutoffBattery
	cmd.DeviceRequirements = cfg.DeviceRequirements

	s.queue.Add(cmd)
	s.wake(s.newCommand)
	s.stat.Counter("commandsAdded").Inc(1)
	return cmd, nil
}

// RemoveAllCommands drains every still-queued command without
// touching running workers.
func (s *Scheduler) RemoveAllCommands() []*queue.Command {
	return s.RemoveCommands(func(*queue.Command) bool { return true })
}

// RemoveCommands removes every queued command matching predicate.
func (s *Scheduler) RemoveCommands(predicate func(*queue.Command) bool) []*queue.Command {
	removed := s.queue.RemoveMatching(predicate)
	for _, cmd := range removed {
		cmd.MarkTerminated()
	}
	return removed
}

// Shutdown transitions OPEN -> CLOSING: idempotent, new AddCommand
// calls fail, the loop dispatches no further commands once its current
// pass completes, and running workers finish naturally.
func (s *Scheduler) Shutdown() {
	s.mu.Lock()
	if s.state == Open {
		s.state = Closing
	}
	s.mu.Unlock()
	s.wake(s.newCommand)
}

// ShutdownHard is Shutdown plus Force() on every active worker's
// token and an armed grace window; if any worker is still running
// when it expires, the coordinator escalates every one of them.
func (s *Scheduler) ShutdownHard(grace time.Duration) {
	if grace <= 0 {
		grace = s.cfg.HardShutdownGrace
	}
	s.mu.Lock()
	s.state = Closing
	for _, aw := range s.active {
		aw.w.Token().Force()
	}
	s.mu.Unlock()
	s.wake(s.newCommand)

	go func() {
		timer := time.NewTimer(grace)
		defer timer.Stop()
		select {
		case <-s.closedCh:
			return
		case <-timer.C:
		}
		s.mu.Lock()
		stillActive := make([]*activeWorker, 0, len(s.active))
		for _, aw := range s.active {
			stillActive = append(stillActive, aw)
		}
		s.mu.Unlock()
		for _, aw := range stillActive {
			log.WithField("worker", aw.w.ID).Warn("scheduler: hard shutdown grace expired, escalating")
			aw.w.Token().Escalate()
		}
	}()
}

// Join blocks until the scheduler reaches CLOSED or timeout elapses,
// returning true iff it reached CLOSED.
func (s *Scheduler) Join(timeout time.Duration) bool {
	if timeout <= 0 {
		<-s.closedCh
		return true
	}
	select {
	case <-s.closedCh:
		return true
	case <-time.After(timeout):
		return false
	}
}

// State returns the current OPEN/CLOSING/CLOSED lifecycle state.
func (s *Scheduler) State() LifecycleState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// SetSchedulerStatus caps the number of simultaneously RUNNING
// workers; <= 0 means unlimited.
func (s *Scheduler) SetSchedulerStatus(maxConcurrent int) {
	s.mu.Lock()
	s.maxConcurrent = maxConcurrent
	s.mu.Unlock()
	s.wake(s.newCommand)
}

// GetSchedulerStatus reports the configured cap and the current
// number of active workers.
func (s *Scheduler) GetSchedulerStatus() (maxConcurrent int, active int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.maxConcurrent, len(s.active)
}

// ListCommands returns a snapshot of every command currently queued or
// running, for introspection (devfarmctl list).
func (s *Scheduler) ListCommands() []CommandInfo {
	cmds := s.queue.Snapshot()

	s.mu.Lock()
	for _, aw := range s.active {
		cmds = append(cmds, aw.w.Command())
	}
	s.mu.Unlock()

	out := make([]CommandInfo, 0, len(cmds))
	for _, cmd := range cmds {
		out = append(out, CommandInfo{
			ID:              cmd.ID,
			Args:            cmd.Args,
			Status:          cmd.Status().String(),
			LoopMode:        cmd.LoopMode,
			TotalExecTimeMs: cmd.TotalExecTimeMs(),
			DispatchCount:   cmd.DispatchCount(),
		})
	}
	return out
}

// transitionClosed moves CLOSING -> CLOSED and wakes every Join
// waiter exactly once, once no worker is active and the scheduler
// loop activity exits.
func (s *Scheduler) transitionClosed() {
	s.mu.Lock()
	s.state = Closed
	s.mu.Unlock()
	s.closedOnce.Do(func() { close(s.closedCh) })
}

func (s *Scheduler) wake(ch chan struct{}) {
	select {
	case ch <- struct{}{}:
	default:
	}
}
