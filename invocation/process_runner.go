package invocation

import (
	"os"
	"os/exec"
	"syscall"
	"time"

	"github.com/twitter/devfarm/common/log"
	"github.com/twitter/devfarm/device"
	"github.com/twitter/devfarm/interrupt"
)

// ProcessRunner invokes a Command as a real OS subprocess: Start, then
// Wait on a goroutine, translating *exec.ExitError's WaitStatus into an
// exit code. The cooperative-cancellation loop (poll interrupt.Suspend,
// kill on ErrInterrupted) drives a SIGTERM-then-SIGKILL escalation on
// interruption.
type ProcessRunner struct {
	// PollInterval controls how often Invoke checks the token while the
	// subprocess runs (its output goes to temp files, not read by
	// Invoke). Defaults to 50ms if zero.
	PollInterval time.Duration
}

const defaultPollInterval = 50 * time.Millisecond

// deviceUnavailableExitStatus is the sysexits.h EX_TEMPFAIL convention
// a test command uses to signal that the device it was driving went
// unreachable mid-run, distinct from any other nonzero exit.
const deviceUnavailableExitStatus = 75

func (r *ProcessRunner) Invoke(argv []string, d device.Handle, timeout time.Duration, token *interrupt.Token, listeners ...Listener) Result {
	for _, l := range listeners {
		l.OnStart()
	}

	if len(argv) == 0 {
		res := Result{ExitCode: -1, Err: errEmptyArgv}
		notifyEnd(listeners, res)
		return res
	}

	cmd := exec.Command(argv[0], argv[1:]...)
	stdout, stdoutPath, err := tempOutput("stdout")
	if err != nil {
		res := Result{ExitCode: -1, Err: err}
		notifyEnd(listeners, res)
		return res
	}
	defer stdout.Close()
	stderr, stderrPath, err := tempOutput("stderr")
	if err != nil {
		res := Result{ExitCode: -1, Err: err}
		notifyEnd(listeners, res)
		return res
	}
	defer stderr.Close()
	cmd.Stdout, cmd.Stderr = stdout, stderr

	if err := cmd.Start(); err != nil {
		res := Result{ExitCode: -1, Err: err}
		notifyEnd(listeners, res)
		return res
	}

	token.SetKillFunc(func() {
		log.WithField("pid", cmd.Process.Pid).Warn("invocation: killing subprocess")
		_ = cmd.Process.Kill()
	})
	// A real subprocess has no notion of a non-interruptible critical
	// section from the Runner's point of view - once it's running, an
	// interrupt request is always honored.
	token.SetInterruptible(true)

	done := make(chan error, 1)
	go func() { done <- cmd.Wait() }()

	poll := r.PollInterval
	if poll <= 0 {
		poll = defaultPollInterval
	}

	var deadlineC <-chan time.Time
	if timeout > 0 {
		deadlineC = time.After(timeout)
	}

	for {
		select {
		case err := <-done:
			res := toResult(err, stdoutPath, stderrPath)
			notifyEnd(listeners, res)
			return res
		case <-deadlineC:
			token.Force()
			deadlineC = nil
		case <-time.After(poll):
			if suspendErr := interrupt.Suspend(token, 0); suspendErr == interrupt.ErrInterrupted {
				terminate(cmd, done)
				res := Result{Interrupted: true, Err: interrupt.ErrInterrupted, StdoutRef: stdoutPath, StderrRef: stderrPath}
				notifyEnd(listeners, res)
				return res
			}
		}
	}
}

// terminate asks the process to exit gracefully, escalating to SIGKILL
// only if it doesn't respond within the grace window. It returns once
// the process has actually exited, draining done so the
// already-running cmd.Wait() goroutine doesn't leak.
func terminate(cmd *exec.Cmd, done <-chan error) {
	if err := cmd.Process.Signal(syscall.SIGTERM); err != nil {
		_ = cmd.Process.Kill()
		<-done
		return
	}
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		_ = cmd.Process.Kill()
		<-done
	}
}

func toResult(err error, stdoutPath, stderrPath string) Result {
	res := Result{StdoutRef: stdoutPath, StderrRef: stderrPath}
	if err == nil {
		res.ExitCode = 0
		return res
	}
	if exitErr, ok := err.(*exec.ExitError); ok {
		if status, ok := exitErr.Sys().(syscall.WaitStatus); ok {
			res.ExitCode = status.ExitStatus()
			if res.ExitCode == deviceUnavailableExitStatus {
				res.DeviceUnavailable = true
				res.Err = device.ErrDeviceNotAvailable
			}
			return res
		}
	}
	res.ExitCode = -1
	res.Err = err
	return res
}

func tempOutput(prefix string) (*os.File, string, error) {
	f, err := os.CreateTemp("", "devfarm-"+prefix+"-*.log")
	if err != nil {
		return nil, "", err
	}
	return f, f.Name(), nil
}

func notifyEnd(listeners []Listener, res Result) {
	for _, l := range listeners {
		l.OnEnd(res)
	}
}

var errEmptyArgv = &argvError{}

type argvError struct{}

func (*argvError) Error() string { return "invocation: empty argv" }
