package device

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/cenkalti/backoff"
	"github.com/sethgrid/pester"

	"github.com/twitter/devfarm/common/log"
)

// HTTPInventory implements Manager against an external device
// inventory HTTP service. It polls GET {root}/devices on an interval
// to refresh a local snapshot (so Allocate can stay non-blocking), and
// calls POST {root}/devices/{serial}/allocate|release to claim or free
// a device on the service side.
//
// Uses a pester.Client with exponential backoff as the resilient HTTP
// client idiom for this "talk to an external service" seam.
type HTTPInventory struct {
	root   string
	client *pester.Client

	mu      sync.Mutex
	cache   map[Serial]*Handle
	busy    map[Serial]bool
	offline map[Serial]bool
	subs    []chan StateUpdate

	pollInterval time.Duration
	stopCh       chan struct{}
}

// NewHTTPInventory dials an inventory service at root (e.g.
// "http://device-inventory.internal:8080") and begins polling it for
// free-pool changes every pollInterval.
func NewHTTPInventory(root string, pollInterval time.Duration) *HTTPInventory {
	if !strings.HasSuffix(root, "/") {
		root += "/"
	}
	client := pester.New()
	client.Backoff = pester.ExponentialBackoff
	client.MaxRetries = 5
	client.LogHook = func(e pester.ErrEntry) {
		log.WithField("url", e.URL).Warnf("device inventory request retry: %v", e.Err)
	}

	m := &HTTPInventory{
		root:         root,
		client:       client,
		cache:        map[Serial]*Handle{},
		busy:         map[Serial]bool{},
		offline:      map[Serial]bool{},
		pollInterval: pollInterval,
		stopCh:       make(chan struct{}),
	}
	go m.pollLoop()
	return m
}

type wireDevice struct {
	Serial       string `json:"serial"`
	ProductType  string `json:"product_type"`
	State        string `json:"state"`
	IsEmulator   bool   `json:"is_emulator"`
	BatteryLevel *int   `json:"battery_level,omitempty"`
	Busy         bool   `json:"busy"`
}

func (m *HTTPInventory) pollLoop() {
	ticker := time.NewTicker(m.pollInterval)
	defer ticker.Stop()
	for {
		select {
		case <-m.stopCh:
			return
		case <-ticker.C:
			if err := m.refresh(); err != nil {
				log.Errorf("device inventory refresh failed: %v", err)
			}
		}
	}
}

// refresh fetches the current device list with exponential backoff and
// diffs it against the cache, emitting a StateUpdate per device whose
// free/offline status changed.
func (m *HTTPInventory) refresh() error {
	var devices []wireDevice
	op := func() error {
		resp, err := m.client.Get(m.root + "devices")
		if err != nil {
			return err
		}
		defer resp.Body.Close()
		if resp.StatusCode != http.StatusOK {
			return fmt.Errorf("device inventory GET /devices: status %d", resp.StatusCode)
		}
		return json.NewDecoder(resp.Body).Decode(&devices)
	}
	b := backoff.NewExponentialBackOff()
	b.MaxElapsedTime = 30 * time.Second
	if err := backoff.Retry(op, b); err != nil {
		return err
	}

	m.mu.Lock()
	var updates []StateUpdate
	seen := map[Serial]bool{}
	for _, wd := range devices {
		serial := Serial(wd.Serial)
		seen[serial] = true
		wasFree := !m.busy[serial] && !m.offline[serial]
		m.cache[serial] = &Handle{
			Serial:       serial,
			ProductType:  wd.ProductType,
			State:        wd.State,
			IsEmulator:   wd.IsEmulator,
			BatteryLevel: wd.BatteryLevel,
		}
		m.busy[serial] = wd.Busy
		isFree := !m.busy[serial] && !m.offline[serial]
		if wasFree != isFree {
			delta := -1
			if isFree {
				delta = 1
			}
			updates = append(updates, StateUpdate{Serial: serial, FreeCountDelta: delta})
		}
	}
	for serial := range m.cache {
		if !seen[serial] {
			delete(m.cache, serial)
		}
	}
	subs := append([]chan StateUpdate{}, m.subs...)
	m.mu.Unlock()

	for _, u := range updates {
		for _, ch := range subs {
			select {
			case ch <- u:
			default:
			}
		}
	}
	return nil
}

func (m *HTTPInventory) Allocate(reqs Requirements) (*Handle, error) {
	m.mu.Lock()
	var candidate *Handle
	for serial, h := range m.cache {
		if m.busy[serial] || m.offline[serial] {
			continue
		}
		if reqs.Matches(h) {
			cp := *h
			candidate = &cp
			break
		}
	}
	if candidate == nil {
		m.mu.Unlock()
		return nil, nil
	}
	m.busy[candidate.Serial] = true
	m.mu.Unlock()

	op := func() error {
		resp, err := m.client.Post(fmt.Sprintf("%sdevices/%s/allocate", m.root, candidate.Serial), "application/json", nil)
		if err != nil {
			return err
		}
		defer resp.Body.Close()
		if resp.StatusCode != http.StatusOK {
			return fmt.Errorf("device inventory allocate %s: status %d", candidate.Serial, resp.StatusCode)
		}
		return nil
	}
	b := backoff.NewExponentialBackOff()
	b.MaxElapsedTime = 10 * time.Second
	if err := backoff.Retry(op, b); err != nil {
		m.mu.Lock()
		delete(m.busy, candidate.Serial)
		m.mu.Unlock()
		return nil, err
	}
	return candidate, nil
}

func (m *HTTPInventory) Release(h *Handle) error {
	if h == nil {
		return nil
	}
	m.mu.Lock()
	delete(m.busy, h.Serial)
	m.mu.Unlock()

	resp, err := m.client.Post(fmt.Sprintf("%sdevices/%s/release", m.root, h.Serial), "application/json", nil)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode == http.StatusNotFound {
		return ErrDeviceNotAvailable
	}
	return nil
}

func (m *HTTPInventory) Offline(serial Serial) error {
	m.mu.Lock()
	m.offline[serial] = true
	m.mu.Unlock()
	body, _ := json.Marshal(map[string]bool{"offline": true})
	resp, err := m.client.Post(fmt.Sprintf("%sdevices/%s/state", m.root, serial), "application/json", bytes.NewReader(body))
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	return nil
}

func (m *HTTPInventory) Reinstate(serial Serial) error {
	m.mu.Lock()
	delete(m.offline, serial)
	m.mu.Unlock()
	body, _ := json.Marshal(map[string]bool{"offline": false})
	resp, err := m.client.Post(fmt.Sprintf("%sdevices/%s/state", m.root, serial), "application/json", bytes.NewReader(body))
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	return nil
}

// MarkUnhealthy excludes serial from allocation the same way Offline
// does locally, and tells the inventory service so it doesn't hand the
// device to a different devfarmd. Reinstate clears both.
func (m *HTTPInventory) MarkUnhealthy(serial Serial) error {
	m.mu.Lock()
	m.offline[serial] = true
	m.mu.Unlock()
	body, _ := json.Marshal(map[string]bool{"unhealthy": true})
	resp, err := m.client.Post(fmt.Sprintf("%sdevices/%s/state", m.root, serial), "application/json", bytes.NewReader(body))
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	return nil
}

func (m *HTTPInventory) SetBattery(serial Serial, level int) {
	m.mu.Lock()
	if h, ok := m.cache[serial]; ok {
		l := level
		h.BatteryLevel = &l
	}
	m.mu.Unlock()
}

func (m *HTTPInventory) Snapshot() []Handle {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Handle, 0, len(m.cache))
	for _, h := range m.cache {
		out = append(out, *h)
	}
	return out
}

func (m *HTTPInventory) SubscribeState() <-chan StateUpdate {
	ch := make(chan StateUpdate, 16)
	m.mu.Lock()
	m.subs = append(m.subs, ch)
	m.mu.Unlock()
	return ch
}

func (m *HTTPInventory) Close() {
	close(m.stopCh)
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, ch := range m.subs {
		close(ch)
	}
	m.subs = nil
}
