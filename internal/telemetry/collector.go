package telemetry

import (
	"github.com/prometheus/client_golang/prometheus"
)

// counterDef maps a snapshot field to a Prometheus counter.
type counterDef struct {
	desc  *prometheus.Desc
	value func(Snapshot) uint64
}

// Collector exports a Stats as Prometheus metrics.
type Collector struct {
	stats    *Stats
	counters []counterDef
	uptime   *prometheus.Desc
}

// NewCollector creates a collector over stats. constLabels are attached to
// every metric (e.g. the watched root set).
func NewCollector(stats *Stats, constLabels prometheus.Labels) *Collector {
	counter := func(name, help string, value func(Snapshot) uint64) counterDef {
		return counterDef{
			desc:  prometheus.NewDesc(prometheus.BuildFQName("treewatch", "", name), help, nil, constLabels),
			value: value,
		}
	}

	return &Collector{
		stats: stats,
		counters: []counterDef{
			counter("raw_events_total", "Raw file system events received from the watcher.",
				func(s Snapshot) uint64 { return s.RawEvents }),
			counter("settled_changes_total", "Paths flushed by the debouncer.",
				func(s Snapshot) uint64 { return s.Settled }),
			counter("ignored_changes_total", "Settled paths rejected by ignore patterns.",
				func(s Snapshot) uint64 { return s.Ignored }),
			counter("delivered_changes_total", "Paths handed to the reaction function.",
				func(s Snapshot) uint64 { return s.Delivered }),
			counter("react_errors_total", "Reaction calls that returned an error or panicked.",
				func(s Snapshot) uint64 { return s.ReactErrors }),
			counter("overflows_total", "Watcher overflows that lost events.",
				func(s Snapshot) uint64 { return s.Overflows }),
			counter("rescans_total", "Full rescans of the watch roots.",
				func(s Snapshot) uint64 { return s.Rescans }),
			counter("discarded_changes_total", "Pending or queued changes dropped on cancel.",
				func(s Snapshot) uint64 { return s.Discarded }),
		},
		uptime: prometheus.NewDesc("treewatch_uptime_seconds", "Seconds since the session started.", nil, constLabels),
	}
}

// Describe implements prometheus.Collector.
func (c *Collector) Describe(ch chan<- *prometheus.Desc) {
	for _, def := range c.counters {
		ch <- def.desc
	}
	ch <- c.uptime
}

// Collect implements prometheus.Collector.
func (c *Collector) Collect(ch chan<- prometheus.Metric) {
	snap := c.stats.Snapshot()
	for _, def := range c.counters {
		ch <- prometheus.MustNewConstMetric(def.desc, prometheus.CounterValue, float64(def.value(snap)))
	}
	ch <- prometheus.MustNewConstMetric(c.uptime, prometheus.GaugeValue, snap.Uptime().Seconds())
}
