package scheduler

import (
	"time"

	"golang.org/x/time/rate"
)

// Config bundles the scheduler loop's tunables: a flat struct, defaults
// filled in by a constructor rather than scattered magic numbers.
type Config struct {
	// PollTimeout bounds how long a loop iteration waits with nothing
	// else to wake it.
	PollTimeout time.Duration

	// ScanK is the default eligibility-scan bound passed to
	// queue.PeekEligible when the device pool itself doesn't already
	// force a larger K.
	ScanK int

	// HardShutdownGrace is the default shutdown_timeout_ms used when a
	// caller doesn't supply one to ShutdownHard.
	HardShutdownGrace time.Duration

	// DefaultSecondaryGrace is passed to invocation-timeout watchdogs
	// spawned for commands with invocation_timeout_ms set.
	DefaultSecondaryGrace time.Duration

	// DispatchRateLimit and DispatchBurst bound how often the loop will
	// re-run a dispatch pass when it's being woken rapidly (a flapping
	// device subscription, a burst of add_command calls) - it still
	// reacts to every wake, it just coalesces bursts into one pass
	// instead of spinning a pass per wake.
	DispatchRateLimit rate.Limit
	DispatchBurst     int
}

func DefaultConfig() Config {
	return Config{
		PollTimeout:           250 * time.Millisecond,
		ScanK:                 8,
		HardShutdownGrace:     30 * time.Second,
		DefaultSecondaryGrace: 2 * time.Second,
		DispatchRateLimit:     50,
		DispatchBurst:         10,
	}
}
