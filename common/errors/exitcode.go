// Package errors carries the small ExitCodeError wrapper cmd/devfarmctl
// uses to turn a scheduler-seam error into a process exit code, adapted
// from the scoot common/errors package.
package errors

// ExitCode is the process exit code a CLI command should return for a
// given class of failure.
type ExitCode int

const (
	OK ExitCode = 0

	// ConfigurationErrorExitCode is returned when the Configuration
	// Factory rejects an AddCommand argv.
	ConfigurationErrorExitCode ExitCode = 70

	// SchedulerClosedExitCode is returned when a command is submitted
	// while the Shutdown Coordinator is CLOSING or CLOSED.
	SchedulerClosedExitCode ExitCode = 75

	// JoinTimeoutExitCode is returned when Join(timeout) times out.
	JoinTimeoutExitCode ExitCode = 80

	// UnknownErrorExitCode is the catch-all for unexpected failures.
	UnknownErrorExitCode ExitCode = 1
)

// ExitCodeError pairs an error with the exit code its CLI command
// should return.
type ExitCodeError struct {
	code ExitCode
	error
}

func NewError(err error, code ExitCode) *ExitCodeError {
	if err == nil {
		return nil
	}
	return &ExitCodeError{code, err}
}

func (e *ExitCodeError) GetExitCode() ExitCode {
	if e == nil {
		return OK
	}
	return e.code
}
