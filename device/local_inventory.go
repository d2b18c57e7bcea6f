package device

import (
	"sync"

	"github.com/twitter/devfarm/common/log"
)

// LocalInventory is an in-memory Manager used by tests and
// `devfarmd -local`. It mirrors the role of
// scoot's cloud/cluster/local in-process cluster: a fixed set of
// devices with no external service behind it.
type LocalInventory struct {
	mu       sync.Mutex
	devices  map[Serial]*Handle
	busy     map[Serial]bool
	offline  map[Serial]bool
	subs     []chan StateUpdate
	unhealth map[Serial]bool
}

func NewLocalInventory(devices []Handle) *LocalInventory {
	m := &LocalInventory{
		devices:  make(map[Serial]*Handle, len(devices)),
		busy:     make(map[Serial]bool),
		offline:  make(map[Serial]bool),
		unhealth: make(map[Serial]bool),
	}
	for i := range devices {
		d := devices[i]
		m.devices[d.Serial] = &d
	}
	return m
}

func (m *LocalInventory) Allocate(reqs Requirements) (*Handle, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for serial, h := range m.devices {
		if m.busy[serial] || m.offline[serial] || m.unhealth[serial] {
			continue
		}
		if reqs.Matches(h) {
			m.busy[serial] = true
			cp := *h
			log.WithField("serial", serial).Debug("device allocated")
			return &cp, nil
		}
	}
	return nil, nil
}

func (m *LocalInventory) Release(h *Handle) error {
	if h == nil {
		return nil
	}
	m.mu.Lock()
	delete(m.busy, h.Serial)
	m.mu.Unlock()
	m.notify(StateUpdate{Serial: h.Serial, FreeCountDelta: 1})
	return nil
}

func (m *LocalInventory) MarkUnhealthy(serial Serial) error {
	m.mu.Lock()
	m.unhealth[serial] = true
	delete(m.busy, serial)
	m.mu.Unlock()
	log.WithField("serial", serial).Warn("device marked unhealthy")
	return nil
}

func (m *LocalInventory) Offline(serial Serial) error {
	m.mu.Lock()
	m.offline[serial] = true
	m.mu.Unlock()
	m.notify(StateUpdate{Serial: serial, FreeCountDelta: -1})
	return nil
}

func (m *LocalInventory) Reinstate(serial Serial) error {
	m.mu.Lock()
	delete(m.offline, serial)
	delete(m.unhealth, serial)
	m.mu.Unlock()
	m.notify(StateUpdate{Serial: serial, FreeCountDelta: 1})
	return nil
}

func (m *LocalInventory) SetBattery(serial Serial, level int) {
	m.mu.Lock()
	if h, ok := m.devices[serial]; ok {
		l := level
		h.BatteryLevel = &l
	}
	m.mu.Unlock()
}

func (m *LocalInventory) Snapshot() []Handle {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Handle, 0, len(m.devices))
	for _, h := range m.devices {
		out = append(out, *h)
	}
	return out
}

func (m *LocalInventory) SubscribeState() <-chan StateUpdate {
	ch := make(chan StateUpdate, 16)
	m.mu.Lock()
	m.subs = append(m.subs, ch)
	m.mu.Unlock()
	return ch
}

func (m *LocalInventory) notify(u StateUpdate) {
	m.mu.Lock()
	subs := append([]chan StateUpdate{}, m.subs...)
	m.mu.Unlock()
	for _, ch := range subs {
		select {
		case ch <- u:
		default:
			// Slow subscriber; the scheduler loop also polls on a
			// bounded timeout so a dropped notification never stalls
			// dispatch.
		}
	}
}

func (m *LocalInventory) Close() {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, ch := range m.subs {
		close(ch)
	}
	m.subs = nil
}
