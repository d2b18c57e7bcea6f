package invocation

import (
	"testing"
	"time"

	"github.com/twitter/devfarm/device"
	"github.com/twitter/devfarm/interrupt"
)

func TestProcessRunnerSuccess(t *testing.T) {
	r := &ProcessRunner{PollInterval: time.Millisecond}
	tok := interrupt.NewToken()
	tok.SetInterruptible(true)
	res := r.Invoke([]string{"true"}, device.Handle{Serial: "d1"}, 0, tok)
	if res.ExitCode != 0 {
		t.Fatalf("expected exit code 0, got %d (err=%v)", res.ExitCode, res.Err)
	}
}

func TestProcessRunnerNonzeroExit(t *testing.T) {
	r := &ProcessRunner{PollInterval: time.Millisecond}
	tok := interrupt.NewToken()
	res := r.Invoke([]string{"sh", "-c", "exit 7"}, device.Handle{Serial: "d1"}, 0, tok)
	if res.ExitCode != 7 {
		t.Fatalf("expected exit code 7, got %d (err=%v)", res.ExitCode, res.Err)
	}
}

func TestProcessRunnerInterrupted(t *testing.T) {
	r := &ProcessRunner{PollInterval: time.Millisecond}
	tok := interrupt.NewToken()
	tok.SetInterruptible(true)

	type invokeResult struct{ res Result }
	done := make(chan invokeResult, 1)
	go func() {
		res := r.Invoke([]string{"sleep", "5"}, device.Handle{Serial: "d1"}, 0, tok)
		done <- invokeResult{res}
	}()

	time.Sleep(20 * time.Millisecond)
	tok.Force()

	select {
	case out := <-done:
		if !out.res.Interrupted {
			t.Fatalf("expected Interrupted result, got %+v", out.res)
		}
	case <-time.After(3 * time.Second):
		t.Fatal("timed out waiting for interrupted invocation to return")
	}
}

func TestProcessRunnerEmptyArgv(t *testing.T) {
	r := &ProcessRunner{}
	tok := interrupt.NewToken()
	res := r.Invoke(nil, device.Handle{Serial: "d1"}, 0, tok)
	if res.Err == nil {
		t.Fatal("expected an error for empty argv")
	}
}
