package device

import "testing"

func intp(i int) *int { return &i }

func TestAllocateExclusive(t *testing.T) {
	m := NewLocalInventory([]Handle{
		{Serial: "d1", ProductType: "pixel", State: "ready"},
	})
	h1, err := m.Allocate(Requirements{})
	if err != nil || h1 == nil {
		t.Fatalf("expected allocation, got %v, %v", h1, err)
	}
	h2, err := m.Allocate(Requirements{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if h2 != nil {
		t.Fatalf("expected no second allocation of the same device, got %v", h2)
	}
	if err := m.Release(h1); err != nil {
		t.Fatalf("unexpected release error: %v", err)
	}
	h3, err := m.Allocate(Requirements{})
	if err != nil || h3 == nil {
		t.Fatalf("expected allocation after release, got %v, %v", h3, err)
	}
}

func TestAllocateMatchesRequirements(t *testing.T) {
	m := NewLocalInventory([]Handle{
		{Serial: "low", ProductType: "pixel", BatteryLevel: intp(10)},
		{Serial: "high", ProductType: "pixel", BatteryLevel: intp(90)},
	})
	h, err := m.Allocate(Requirements{MinBattery: intp(50)})
	if err != nil || h == nil {
		t.Fatalf("expected to find the high-battery device, got %v, %v", h, err)
	}
	if h.Serial != "high" {
		t.Fatalf("expected 'high', got %s", h.Serial)
	}
}

func TestOfflineExcludesFromAllocation(t *testing.T) {
	m := NewLocalInventory([]Handle{{Serial: "d1"}})
	if err := m.Offline("d1"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	h, _ := m.Allocate(Requirements{})
	if h != nil {
		t.Fatalf("expected offline device to be excluded, got %v", h)
	}
	if err := m.Reinstate("d1"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	h, _ = m.Allocate(Requirements{})
	if h == nil {
		t.Fatalf("expected reinstated device to be allocatable")
	}
}

func TestSubscribeStateNotifiesOnRelease(t *testing.T) {
	m := NewLocalInventory([]Handle{{Serial: "d1"}})
	sub := m.SubscribeState()
	h, _ := m.Allocate(Requirements{})
	if err := m.Release(h); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	select {
	case u := <-sub:
		if u.Serial != "d1" || u.FreeCountDelta != 1 {
			t.Fatalf("unexpected update: %+v", u)
		}
	default:
		t.Fatal("expected a state update after release")
	}
}

func TestMarkUnhealthyExcludesFromAllocation(t *testing.T) {
	m := NewLocalInventory([]Handle{{Serial: "d1"}})
	m.MarkUnhealthy("d1")
	h, _ := m.Allocate(Requirements{})
	if h != nil {
		t.Fatalf("expected unhealthy device to be excluded, got %v", h)
	}
}
