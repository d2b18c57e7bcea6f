// Package device implements the device manager facade: a thin
// mediator over an external device-inventory service that allocates
// and releases DeviceHandles and notifies subscribers when the free
// pool changes.
//
// Manager plays the role of a cluster, Handle plays the role of a
// node, and SubscribeState mirrors a channel-of-updates
// membership-tracking design - but allocation here is exclusive (a
// Handle is held by exactly one worker at a time), so the facade adds
// Allocate/Release on top of the membership-tracking idiom.
package device

import "fmt"

// Serial uniquely identifies a device within the inventory.
type Serial string

// Handle is an opaque reference to an allocated device. Workers hold
// a Handle exclusively for the duration of one invocation.
type Handle struct {
	Serial      Serial
	ProductType string
	State       string
	IsEmulator  bool

	// BatteryLevel is nil when the inventory hasn't reported a level
	// for this device; evaluated lazily rather than defaulted.
	BatteryLevel *int
}

func (h *Handle) String() string {
	if h == nil {
		return "<nil device>"
	}
	return fmt.Sprintf("%s(%s)", h.Serial, h.ProductType)
}

// Requirements is the capability predicate a Command's
// device_requirements attribute carries.
type Requirements struct {
	// SerialAllowlist, if non-empty, restricts matches to these
	// serials.
	SerialAllowlist []Serial
	ProductType     string
	State           string
	// EmulatorOnly, when non-nil, requires IsEmulator to match its
	// value exactly (true: emulator-only, false: physical-only).
	EmulatorOnly *bool
	// MinBattery, when non-nil, requires BatteryLevel to be known and
	// >= this value. A nil BatteryLevel never matches a non-nil
	// MinBattery requirement.
	MinBattery *int
}

// Matches reports whether h satisfies r. It never mutates h.
func (r Requirements) Matches(h *Handle) bool {
	if len(r.SerialAllowlist) > 0 {
		found := false
		for _, s := range r.SerialAllowlist {
			if s == h.Serial {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	if r.ProductType != "" && r.ProductType != h.ProductType {
		return false
	}
	if r.State != "" && r.State != h.State {
		return false
	}
	if r.EmulatorOnly != nil && *r.EmulatorOnly != h.IsEmulator {
		return false
	}
	if r.MinBattery != nil {
		if h.BatteryLevel == nil || *h.BatteryLevel < *r.MinBattery {
			return false
		}
	}
	return true
}
