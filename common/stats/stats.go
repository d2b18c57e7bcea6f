// Package stats provides a minimal StatsReceiver interface, backed by
// go-metrics, that devfarm components take as a constructor argument
// and use to publish counters, gauges, and latencies without leaking
// the go-metrics dependency to every caller.
//
// Adapted from the scoot common/stats package: the latched-snapshot
// machinery is dropped (devfarm renders on demand from a long-lived
// admin endpoint, see common/endpoints) but the Counter/Gauge/Latency
// instrument shapes and the Scope()/Render() API are kept unchanged
// so call sites read the same way.
package stats

import (
	"encoding/json"
	"strings"
	"time"

	"github.com/rcrowley/go-metrics"
)

// StatsRegistry is the subset of the go-metrics registry interface
// devfarm needs.
type StatsRegistry interface {
	GetOrRegister(string, interface{}) interface{}
	Unregister(string)
	Each(func(string, interface{}))
}

// StatsReceiver is the interface every devfarm component depends on
// for instrumentation. Components are passed a StatsReceiver scoped
// to their own subsystem (see Scope) so instrument names stay
// hierarchical without every component having to know its own prefix.
type StatsReceiver interface {
	Scope(scope ...string) StatsReceiver
	Counter(name ...string) Counter
	Gauge(name ...string) Gauge
	Latency(name ...string) Latency
	Remove(name ...string)
	Render(pretty bool) []byte
}

type Counter interface {
	Count() int64
	Inc(int64)
}

type Gauge interface {
	Update(int64)
	Value() int64
}

type Latency interface {
	// Time starts the clock and returns self so call sites can
	// defer stat.Latency("foo_ms").Time().Stop().
	Time() Latency
	Stop()
}

func DefaultStatsReceiver() StatsReceiver {
	return NewCustomStatsReceiver(metrics.NewRegistry())
}

func NewCustomStatsReceiver(registry StatsRegistry) StatsReceiver {
	return &defaultStatsReceiver{registry: registry, precision: time.Millisecond}
}

type defaultStatsReceiver struct {
	registry  StatsRegistry
	precision time.Duration
	scope     []string
}

func (s *defaultStatsReceiver) Scope(scope ...string) StatsReceiver {
	return &defaultStatsReceiver{s.registry, s.precision, s.scoped(scope...)}
}

func (s *defaultStatsReceiver) Counter(name ...string) Counter {
	return s.registry.GetOrRegister(s.scopedName(name...), newMetricCounter).(Counter)
}

func (s *defaultStatsReceiver) Gauge(name ...string) Gauge {
	return s.registry.GetOrRegister(s.scopedName(name...), newMetricGauge).(Gauge)
}

func (s *defaultStatsReceiver) Latency(name ...string) Latency {
	return s.registry.GetOrRegister(s.scopedName(name...), newMetricLatency).(Latency)
}

func (s *defaultStatsReceiver) Remove(name ...string) {
	s.registry.Unregister(s.scopedName(name...))
}

func (s *defaultStatsReceiver) Render(pretty bool) []byte {
	out := jsonMap{}
	s.registry.Each(func(name string, i interface{}) {
		switch m := i.(type) {
		case Counter:
			out[name] = m.Count()
		case Gauge:
			out[name] = m.Value()
		}
	})
	var b []byte
	var err error
	if pretty {
		b, err = json.MarshalIndent(out, "", "  ")
	} else {
		b, err = json.Marshal(out)
	}
	if err != nil {
		panic("stats registry bug, cannot be marshaled: " + err.Error())
	}
	return b
}

type jsonMap map[string]interface{}

// Append to existing scope and scrub the '/' path separator.
func (s *defaultStatsReceiver) scoped(scope ...string) []string {
	scoped := make([]string, len(scope))
	for i, e := range scope {
		scoped[i] = strings.Replace(e, "/", "_SLASH_", -1)
	}
	return append(append([]string{}, s.scope...), scoped...)
}

func (s *defaultStatsReceiver) scopedName(scope ...string) string {
	return strings.Join(s.scoped(scope...), "/")
}

// NilStatsReceiver ignores all stats operations. Used by components
// under test that don't care about instrumentation.
func NilStatsReceiver() StatsReceiver {
	return &nilStatsReceiver{}
}

type nilStatsReceiver struct{}

func (s *nilStatsReceiver) Scope(scope ...string) StatsReceiver { return s }
func (s *nilStatsReceiver) Counter(name ...string) Counter      { return metrics.NilCounter() }
func (s *nilStatsReceiver) Gauge(name ...string) Gauge          { return metrics.NilGauge() }
func (s *nilStatsReceiver) Latency(name ...string) Latency      { return &nilLatency{} }
func (s *nilStatsReceiver) Remove(name ...string)               {}
func (s *nilStatsReceiver) Render(pretty bool) []byte           { return []byte("{}") }

func newMetricCounter() interface{} { return metrics.NewCounter() }

func newMetricGauge() interface{} { return metrics.NewGauge() }

type metricLatency struct {
	metrics.Histogram
	start time.Time
}

func newMetricLatency() interface{} {
	return &metricLatency{Histogram: metrics.NewHistogram(metrics.NewUniformSample(1000))}
}

func (l *metricLatency) Time() Latency { l.start = time.Now(); return l }
func (l *metricLatency) Stop()         { l.Update(time.Since(l.start).Nanoseconds()) }

type nilLatency struct{}

func (l *nilLatency) Time() Latency { return l }
func (l *nilLatency) Stop()         {}
