package device

import "errors"

// ErrDeviceNotAvailable is returned by a worker's invocation attempt
// when the Device Manager reports the allocated device is no longer
// reachable. This is terminal for the worker: the device is released
// and marked unhealthy, and the command is not requeued regardless of
// loop_mode.
var ErrDeviceNotAvailable = errors.New("device: not available")

// StateUpdate describes a change in the free pool a Manager
// subscriber should react to: a device became free, was allocated, or
// was taken offline. Battery level changes are not reported as
// updates.
type StateUpdate struct {
	Serial Serial
	// FreeCountDelta is +1 when a device newly became free, -1 when a
	// previously free device was allocated or taken offline.
	FreeCountDelta int
}

// Manager is the device manager facade seam. Allocation is exclusive:
// no two callers ever receive the same
// Handle concurrently, and Allocate never blocks - it returns nil
// immediately if nothing matches.
type Manager interface {
	Allocate(reqs Requirements) (*Handle, error)
	Release(h *Handle) error

	// SubscribeState returns a channel of StateUpdates the Scheduler
	// Loop can select on to wake up when a device becomes free,
	// rather than polling. The channel is closed when Close is
	// called.
	SubscribeState() <-chan StateUpdate

	// Offline removes a device from the allocatable pool until
	// Reinstate is called.
	Offline(serial Serial) error
	Reinstate(serial Serial) error

	// MarkUnhealthy excludes a device from allocation the same way
	// Offline does, but records the reason as a failed invocation
	// rather than an operator-initiated removal. It's what a worker
	// calls when its Runner or the release path reports
	// ErrDeviceNotAvailable, so the device doesn't get handed to the
	// next dispatch before whatever's wrong with it is investigated.
	// Reinstate clears it, same as Offline.
	MarkUnhealthy(serial Serial) error

	// SetBattery updates a device's reported battery level; used by
	// the battery-watchdog collaborator and by tests.
	SetBattery(serial Serial, level int)

	// Snapshot returns a point-in-time copy of every known device,
	// free or not, for PeekEligible's eligibility scan and for the
	// battery watchdog's level checks.
	Snapshot() []Handle

	Close()
}
