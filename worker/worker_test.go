package worker

import (
	"testing"
	"time"

	"github.com/golang/mock/gomock"

	"github.com/twitter/devfarm/config"
	"github.com/twitter/devfarm/device"
	"github.com/twitter/devfarm/device/devicemock"
	invocationfake "github.com/twitter/devfarm/invocation/fake"
	"github.com/twitter/devfarm/queue"
)

func newTestDeps(runner *invocationfake.Runner, q *queue.Queue, mgr device.Manager) Deps {
	return Deps{
		Factory:   config.NewDefaultFactory(),
		Runner:    runner,
		DeviceMgr: mgr,
		Queue:     q,
	}
}

func TestRunOneShotCompletesAndReleasesDevice(t *testing.T) {
	mgr := device.NewLocalInventory([]device.Handle{{Serial: "d1"}})
	h, err := mgr.Allocate(device.Requirements{})
	if err != nil || h == nil {
		t.Fatal("expected to allocate d1")
	}

	q := queue.NewQueue(nil)
	cmd := queue.NewCommand([]string{"run"})

	r := &invocationfake.Runner{Script: invocationfake.Script{ExitCode: 0}}
	w := New("w1", cmd, *h, newTestDeps(r, q, mgr))

	outcome := w.Run()
	if outcome.Requeued {
		t.Fatal("expected one-shot command not to be requeued")
	}
	if w.State() != Done {
		t.Fatalf("expected DONE, got %s", w.State())
	}

	snap := mgr.Snapshot()
	free, err := mgr.Allocate(device.Requirements{})
	if err != nil || free == nil {
		t.Fatalf("expected device released back to the pool, snapshot=%v", snap)
	}
}

func TestRunLoopModeRequeues(t *testing.T) {
	mgr := device.NewLocalInventory([]device.Handle{{Serial: "d1"}})
	h, _ := mgr.Allocate(device.Requirements{})

	q := queue.NewQueue(nil)
	cmd := queue.NewCommand([]string{"--loop_mode", "run"})

	r := &invocationfake.Runner{Script: invocationfake.Script{ExitCode: 0}}
	w := New("w1", cmd, *h, newTestDeps(r, q, mgr))

	outcome := w.Run()
	if !outcome.Requeued {
		t.Fatal("expected loop-mode command to be requeued")
	}
	if q.Len() != 1 {
		t.Fatalf("expected the command back in the queue, len=%d", q.Len())
	}
}

func TestRunMinLoopTimeSleepsBeforeRequeue(t *testing.T) {
	mgr := device.NewLocalInventory([]device.Handle{{Serial: "d1"}})
	h, _ := mgr.Allocate(device.Requirements{})

	q := queue.NewQueue(nil)
	cmd := queue.NewCommand([]string{"--loop_mode", "--min_loop_time_ms=50", "run"})

	r := &invocationfake.Runner{Script: invocationfake.Script{ExitCode: 0}}
	w := New("w1", cmd, *h, newTestDeps(r, q, mgr))

	start := time.Now()
	w.Run()
	if time.Since(start) < 40*time.Millisecond {
		t.Fatal("expected worker to honor min_loop_time_ms before requeueing")
	}
}

func TestRunConfigurationErrorSkipsInvocation(t *testing.T) {
	mgr := device.NewLocalInventory([]device.Handle{{Serial: "d1"}})
	h, _ := mgr.Allocate(device.Requirements{})

	q := queue.NewQueue(nil)
	cmd := queue.NewCommand([]string{"--bogus_flag=1"})

	r := &invocationfake.Runner{Script: invocationfake.Script{ExitCode: 0}}
	w := New("w1", cmd, *h, newTestDeps(r, q, mgr))

	outcome := w.Run()
	if outcome.ConfigError == nil {
		t.Fatal("expected a configuration error")
	}
	if len(r.Invocations) != 0 {
		t.Fatal("expected the runner never to be invoked after a configuration error")
	}
}

func TestRunInterruptedStillReleasesDevice(t *testing.T) {
	mgr := device.NewLocalInventory([]device.Handle{{Serial: "d1"}})
	h, _ := mgr.Allocate(device.Requirements{})

	q := queue.NewQueue(nil)
	cmd := queue.NewCommand([]string{"run"})

	r := &invocationfake.Runner{Script: invocationfake.Script{Duration: 50 * time.Millisecond, Interruptible: true}}
	w := New("w1", cmd, *h, newTestDeps(r, q, mgr))

	go func() {
		time.Sleep(5 * time.Millisecond)
		w.Token().Force()
	}()

	w.Run()
	if free, err := mgr.Allocate(device.Requirements{}); err != nil || free == nil {
		t.Fatal("expected device released even on an interrupted invocation")
	}
}

func TestRunLoopModeNotRequeuedOnceSchedulerClosing(t *testing.T) {
	mgr := device.NewLocalInventory([]device.Handle{{Serial: "d1"}})
	h, _ := mgr.Allocate(device.Requirements{})

	q := queue.NewQueue(nil)
	cmd := queue.NewCommand([]string{"--loop_mode", "run"})

	r := &invocationfake.Runner{Script: invocationfake.Script{ExitCode: 0}}
	deps := newTestDeps(r, q, mgr)
	deps.SchedulerOpen = func() bool { return false }
	w := New("w1", cmd, *h, deps)

	outcome := w.Run()
	if outcome.Requeued {
		t.Fatal("expected a loop-mode command not to requeue once the scheduler has stopped accepting dispatches")
	}
	if q.Len() != 0 {
		t.Fatalf("expected the command to stay out of the queue, len=%d", q.Len())
	}
	if cmd.Status() != queue.Terminated {
		t.Fatalf("expected the command to be marked terminated, got %s", cmd.Status())
	}
}

func TestRunLoopModeNotRequeuedWhenInterrupted(t *testing.T) {
	mgr := device.NewLocalInventory([]device.Handle{{Serial: "d1"}})
	h, _ := mgr.Allocate(device.Requirements{})

	q := queue.NewQueue(nil)
	cmd := queue.NewCommand([]string{"--loop_mode", "run"})

	r := &invocationfake.Runner{Script: invocationfake.Script{Duration: 50 * time.Millisecond, Interruptible: true}}
	w := New("w1", cmd, *h, newTestDeps(r, q, mgr))

	go func() {
		time.Sleep(5 * time.Millisecond)
		w.Token().Force()
	}()

	outcome := w.Run()
	if outcome.Requeued {
		t.Fatal("expected an interrupted loop-mode command not to requeue")
	}
	if q.Len() != 0 {
		t.Fatalf("expected the command to stay out of the queue, len=%d", q.Len())
	}
}

func TestRunDeviceUnavailableMarksUnhealthyAndDoesNotRequeue(t *testing.T) {
	mockCtrl := gomock.NewController(t)
	defer mockCtrl.Finish()

	dev := device.Handle{Serial: "d1"}
	mockMgr := devicemock.NewMockManager(mockCtrl)
	mockMgr.EXPECT().Release(&dev).Return(nil).Times(1)
	mockMgr.EXPECT().MarkUnhealthy(dev.Serial).Return(nil).Times(1)

	q := queue.NewQueue(nil)
	cmd := queue.NewCommand([]string{"--loop_mode", "run"})
	r := &invocationfake.Runner{Script: invocationfake.Script{DeviceUnavailable: true}}
	w := New("w1", cmd, dev, Deps{Factory: config.NewDefaultFactory(), Runner: r, DeviceMgr: mockMgr, Queue: q})

	outcome := w.Run()
	if outcome.Requeued {
		t.Fatal("expected a device-unavailable completion not to requeue even in loop_mode")
	}
	if cmd.Status() != queue.Terminated {
		t.Fatalf("expected the command to be marked terminated, got %s", cmd.Status())
	}
}

func TestRunReleasesDeviceExactlyOnceOnConfigError(t *testing.T) {
	mockCtrl := gomock.NewController(t)
	defer mockCtrl.Finish()

	dev := device.Handle{Serial: "d1"}
	mockMgr := devicemock.NewMockManager(mockCtrl)
	mockMgr.EXPECT().Release(&dev).Return(nil).Times(1)

	q := queue.NewQueue(nil)
	cmd := queue.NewCommand([]string{"--bogus_flag=1"})
	r := &invocationfake.Runner{Script: invocationfake.Script{ExitCode: 0}}
	w := New("w1", cmd, dev, Deps{Factory: config.NewDefaultFactory(), Runner: r, DeviceMgr: mockMgr, Queue: q})

	outcome := w.Run()
	if outcome.ConfigError == nil {
		t.Fatal("expected a configuration error")
	}
}
