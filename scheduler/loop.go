package scheduler

import (
	"fmt"
	"time"

	"github.com/twitter/devfarm/common/log"
	"github.com/twitter/devfarm/device"
	"github.com/twitter/devfarm/interrupt"
	"github.com/twitter/devfarm/queue"
	"github.com/twitter/devfarm/worker"
)

// loop is the single coordinator activity. Each iteration wakes on a
// new command, a worker completing, a device state change, or the
// bounded poll timeout, then runs one dispatch pass.
func (s *Scheduler) loop() {
	sub := s.devices.SubscribeState()
	for {
		select {
		case <-s.newCommand:
		case <-sub:
		case <-s.workerDone:
		case <-time.After(s.cfg.PollTimeout):
		}

		if s.State() == Open && s.limiter.Allow() {
			s.dispatchPass()
		}

		s.mu.Lock()
		done := s.state != Open && len(s.active) == 0
		s.mu.Unlock()
		if done {
			s.transitionClosed()
			return
		}
	}
}

// dispatchPass repeatedly matches the head-eligible command against a
// device until no eligible match remains. It never holds the queue
// lock or the active-worker lock while allocating a device - snapshot,
// release, allocate, and remove happen in that order so no lock is
// held across a blocking call.
func (s *Scheduler) dispatchPass() {
	for {
		s.mu.Lock()
		atCapacity := s.maxConcurrent > 0 && len(s.active) >= s.maxConcurrent
		s.mu.Unlock()
		if atCapacity {
			return
		}

		pool := s.devices.Snapshot()
		if len(pool) == 0 {
			return
		}
		cmd, _ := s.queue.PeekEligible(pool, s.cfg.ScanK)
		if cmd == nil {
			return
		}

		h, err := s.devices.Allocate(cmd.DeviceRequirements)
		if err != nil {
			log.WithField("err", err).Error("scheduler: device allocation failed")
			return
		}
		if h == nil {
			// The eligibility scan found a matching capability profile
			// in the fleet, but nothing matching is free right now.
			// Don't spin: wait for the next wake (a release or a
			// bounded timeout).
			return
		}

		s.queue.Remove(cmd)
		cmd.MarkRunning()
		cmd.IncrementDispatchCount()
		s.spawnWorker(cmd, *h)
	}
}

func (s *Scheduler) spawnWorker(cmd *queue.Command, h device.Handle) {
	s.mu.Lock()
	s.nextWorkerID++
	id := fmt.Sprintf("w-%d", s.nextWorkerID)
	w := worker.New(id, cmd, h, worker.Deps{
		Factory:       s.factory,
		Runner:        s.runner,
		DeviceMgr:     s.devices,
		Queue:         s.queue,
		Stats:         s.stat,
		SchedulerOpen: func() bool { return s.State() == Open },
	})
	aw := &activeWorker{w: w, done: make(chan struct{})}
	s.active[id] = aw
	s.mu.Unlock()
	s.stat.Gauge("activeWorkers").Update(int64(len(s.active)))

	if cmd.InvocationTimeoutMs > 0 {
		go interrupt.WatchInvocationTimeout(w.Token(), time.Duration(cmd.InvocationTimeoutMs)*time.Millisecond, s.cfg.DefaultSecondaryGrace)
	}
	if cmd.CutoffBattery > 0 {
		go interrupt.WatchBattery(w.Token(), s.devices, h.Serial, cmd.CutoffBattery, batteryPollInterval)
	}

	go func() {
		w.Run()
		s.mu.Lock()
		delete(s.active, id)
		s.mu.Unlock()
		close(aw.done)
		s.wake(s.workerDone)
	}()
}

const batteryPollInterval = 2 * time.Second
