package scheduler

import (
	"testing"
	"time"

	"github.com/davecgh/go-spew/spew"

	"github.com/twitter/devfarm/config"
	"github.com/twitter/devfarm/device"
	invocationfake "github.com/twitter/devfarm/invocation/fake"
)

func testConfig() Config {
	cfg := DefaultConfig()
	cfg.PollTimeout = 20 * time.Millisecond
	return cfg
}

func TestAddCommandFailsWhenNotOpen(t *testing.T) {
	mgr := device.NewLocalInventory([]device.Handle{{Serial: "d1"}})
	s := New(mgr, config.NewDefaultFactory(), &invocationfake.Runner{}, testConfig(), nil)
	s.Shutdown()
	if _, err := s.AddCommand([]string{"run"}); err != ErrClosing {
		t.Fatalf("expected ErrClosing, got %v", err)
	}
}

func TestAddCommandRejectsBadArgs(t *testing.T) {
	mgr := device.NewLocalInventory([]device.Handle{{Serial: "d1"}})
	s := New(mgr, config.NewDefaultFactory(), &invocationfake.Runner{}, testConfig(), nil)
	if _, err := s.AddCommand([]string{"--bogus=1"}); err == nil {
		t.Fatal("expected an error for an unrecognized flag")
	}
}

func TestDispatchesOneShotCommandAndJoinsOnShutdown(t *testing.T) {
	mgr := device.NewLocalInventory([]device.Handle{{Serial: "d1"}})
	runner := &invocationfake.Runner{Script: invocationfake.Script{ExitCode: 0}}
	s := New(mgr, config.NewDefaultFactory(), runner, testConfig(), nil)
	s.Start()

	if _, err := s.AddCommand([]string{"run"}); err != nil {
		t.Fatalf("unexpected AddCommand error: %v", err)
	}

	time.Sleep(100 * time.Millisecond)
	s.Shutdown()
	if !s.Join(2 * time.Second) {
		t.Fatal("expected scheduler to reach CLOSED")
	}
	if len(runner.Invocations) != 1 {
		t.Fatalf("expected exactly one invocation, got: %s", spew.Sdump(runner.Invocations))
	}
}

func TestRemoveAllCommandsDrainsQueueNotWorkers(t *testing.T) {
	mgr := device.NewLocalInventory([]device.Handle{{Serial: "d1"}})
	runner := &invocationfake.Runner{Script: invocationfake.Script{Duration: 200 * time.Millisecond, Interruptible: true}}
	s := New(mgr, config.NewDefaultFactory(), runner, testConfig(), nil)
	s.Start()

	s.AddCommand([]string{"run-1"})
	time.Sleep(30 * time.Millisecond) // let it dispatch and occupy the only device
	s.AddCommand([]string{"run-2"})   // stays queued, no device free

	s.RemoveAllCommands()

	time.Sleep(300 * time.Millisecond)
	s.Shutdown()
	if !s.Join(2 * time.Second) {
		t.Fatal("expected scheduler to reach CLOSED")
	}
	if len(runner.Invocations) != 1 {
		t.Fatalf("expected only the already-dispatched command to have run, got: %s", spew.Sdump(runner.Invocations))
	}
}

func TestSetSchedulerStatusCapsConcurrency(t *testing.T) {
	mgr := device.NewLocalInventory([]device.Handle{{Serial: "d1"}, {Serial: "d2"}})
	runner := &invocationfake.Runner{Script: invocationfake.Script{Duration: 150 * time.Millisecond}}
	s := New(mgr, config.NewDefaultFactory(), runner, testConfig(), nil)
	s.SetSchedulerStatus(1)
	s.Start()

	s.AddCommand([]string{"run-1"})
	s.AddCommand([]string{"run-2"})

	time.Sleep(50 * time.Millisecond)
	_, active := s.GetSchedulerStatus()
	if active > 1 {
		t.Fatalf("expected at most 1 active worker under the cap, got %d", active)
	}

	s.Shutdown()
	s.Join(3 * time.Second)
}
