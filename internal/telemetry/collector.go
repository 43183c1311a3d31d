// Package telemetry exposes orchestrator statistics as Prometheus metrics.
package telemetry

import (
	"runtime"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

var _ prometheus.Collector = (*Collector)(nil)

// Collector implements prometheus.Collector over a Stats value.
type Collector struct {
	version string
	stats   *Stats

	infoDesc            *prometheus.Desc
	uptimeDesc          *prometheus.Desc
	compilesDesc        *prometheus.Desc
	restartsDesc        *prometheus.Desc
	unexpectedExitsDesc *prometheus.Desc
	childRunningDesc    *prometheus.Desc
	childPIDDesc        *prometheus.Desc
}

// NewCollector creates a new metrics collector
func NewCollector(version string, stats *Stats) *Collector {
	return &Collector{
		version: version,
		stats:   stats,

		infoDesc: prometheus.NewDesc(
			"devloop_info",
			"Devloop build information",
			[]string{"version", "go_version"},
			nil,
		),
		uptimeDesc: prometheus.NewDesc(
			"devloop_uptime_seconds",
			"Time since the dev session started",
			nil,
			nil,
		),
		compilesDesc: prometheus.NewDesc(
			"devloop_compiles_total",
			"Total number of finished compilations by result",
			[]string{"result"},
			nil,
		),
		restartsDesc: prometheus.NewDesc(
			"devloop_child_restarts_total",
			"Total number of child process starts",
			nil,
			nil,
		),
		unexpectedExitsDesc: prometheus.NewDesc(
			"devloop_child_unexpected_exits_total",
			"Total number of child processes that exited on their own",
			nil,
			nil,
		),
		childRunningDesc: prometheus.NewDesc(
			"devloop_child_running",
			"Whether a supervised child is running",
			nil,
			nil,
		),
		childPIDDesc: prometheus.NewDesc(
			"devloop_child_pid",
			"Process id of the current child, 0 when none",
			nil,
			nil,
		),
	}
}

// Describe implements prometheus.Collector
func (c *Collector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.infoDesc
	ch <- c.uptimeDesc
	ch <- c.compilesDesc
	ch <- c.restartsDesc
	ch <- c.unexpectedExitsDesc
	ch <- c.childRunningDesc
	ch <- c.childPIDDesc
}

// Collect implements prometheus.Collector
func (c *Collector) Collect(ch chan<- prometheus.Metric) {
	snap := c.stats.Snapshot()

	ch <- prometheus.MustNewConstMetric(c.infoDesc, prometheus.GaugeValue, 1, c.version, runtime.Version())
	ch <- prometheus.MustNewConstMetric(c.uptimeDesc, prometheus.GaugeValue, snap.Uptime.Seconds())
	ch <- prometheus.MustNewConstMetric(c.compilesDesc, prometheus.CounterValue, float64(snap.CompilesSucceeded), "success")
	ch <- prometheus.MustNewConstMetric(c.compilesDesc, prometheus.CounterValue, float64(snap.CompilesFailed), "failure")
	ch <- prometheus.MustNewConstMetric(c.restartsDesc, prometheus.CounterValue, float64(snap.Restarts))
	ch <- prometheus.MustNewConstMetric(c.unexpectedExitsDesc, prometheus.CounterValue, float64(snap.UnexpectedExits))

	running := float64(0)
	if snap.ChildPID > 0 {
		running = 1
	}
	ch <- prometheus.MustNewConstMetric(c.childRunningDesc, prometheus.GaugeValue, running)
	ch <- prometheus.MustNewConstMetric(c.childPIDDesc, prometheus.GaugeValue, float64(snap.ChildPID))
}

// NewRegistry creates a Prometheus registry with the devloop collector and
// the Go runtime collectors.
func NewRegistry(collector *Collector) *prometheus.Registry {
	registry := prometheus.NewRegistry()
	registry.MustRegister(collector)
	registry.MustRegister(collectors.NewGoCollector())
	registry.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	return registry
}
