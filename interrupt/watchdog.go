package interrupt

import (
	"time"

	"github.com/twitter/devfarm/common/log"
	"github.com/twitter/devfarm/device"
)

// WatchBattery polls the device's reported battery level while a
// worker runs and Forces the token once it drops below cutoff. It
// exits when t.Done() fires (closed on worker termination) so it never
// outlives the worker it watches.
func WatchBattery(t *Token, manager device.Manager, serial device.Serial, cutoff int, pollInterval time.Duration) {
	if manager == nil || cutoff <= 0 {
		return
	}
	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()
	for {
		select {
		case <-t.Done():
			return
		case <-ticker.C:
			for _, h := range manager.Snapshot() {
				if h.Serial != serial {
					continue
				}
				if h.BatteryLevel != nil && *h.BatteryLevel < cutoff {
					log.WithField("serial", serial).Warn("battery below cutoff, forcing interrupt")
					t.Force()
				}
				break
			}
		}
	}
}

// WatchInvocationTimeout: once timeout has elapsed since the worker
// entered RUNNING, Force the token; if the worker hasn't cooperated
// within secondaryGrace afterward, escalate to a forced kill.
func WatchInvocationTimeout(t *Token, timeout time.Duration, secondaryGrace time.Duration) {
	if timeout <= 0 {
		return
	}
	select {
	case <-t.Done():
		return
	case <-time.After(timeout):
	}
	log.Debug("interrupt: invocation timeout elapsed, forcing interrupt")
	t.Force()

	select {
	case <-t.Done():
		return
	case <-time.After(secondaryGrace):
		t.Escalate()
	}
}

// DefaultSecondaryGrace is a default secondaryGrace for callers of
// WatchInvocationTimeout; the function itself always uses the value it
// is passed.
const DefaultSecondaryGrace = 2 * time.Second
