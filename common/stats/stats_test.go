package stats

import (
	"encoding/json"
	"testing"
)

func TestCounterAndGauge(t *testing.T) {
	stat := DefaultStatsReceiver()
	stat.Counter("devfarm", "dispatched").Inc(3)
	stat.Gauge("devfarm", "activeWorkers").Update(2)

	rendered := map[string]int64{}
	if err := json.Unmarshal(stat.Render(false), &rendered); err != nil {
		t.Fatalf("could not unmarshal rendered stats: %v", err)
	}
	if rendered["devfarm/dispatched"] != 3 {
		t.Errorf("expected devfarm/dispatched == 3, got %+v", rendered)
	}
	if rendered["devfarm/activeWorkers"] != 2 {
		t.Errorf("expected devfarm/activeWorkers == 2, got %+v", rendered)
	}
}

func TestScope(t *testing.T) {
	stat := DefaultStatsReceiver()
	scoped := stat.Scope("queue")
	scoped.Counter("added").Inc(1)

	rendered := map[string]int64{}
	if err := json.Unmarshal(stat.Render(false), &rendered); err != nil {
		t.Fatalf("could not unmarshal rendered stats: %v", err)
	}
	if rendered["queue/added"] != 1 {
		t.Errorf("expected queue/added == 1, got %+v", rendered)
	}
}

func TestNilStatsReceiver(t *testing.T) {
	stat := NilStatsReceiver()
	stat.Counter("whatever").Inc(1)
	stat.Gauge("whatever").Update(1)
	stat.Latency("whatever").Time().Stop()
	if string(stat.Render(false)) != "{}" {
		t.Errorf("expected NilStatsReceiver to render empty, got %s", stat.Render(false))
	}
}
