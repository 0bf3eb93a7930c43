package report

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/psantana5/kiosk-supervisor/internal/process"
)

const namespace = "kiosk"

// Metrics are boring counters only.
// Every counter must be explainable by looking at the supervisor log.
type Metrics struct {
	registry *prometheus.Registry

	launches        prometheus.Counter
	launchFailures  prometheus.Counter
	exits           *prometheus.CounterVec
	cleanupFailures prometheus.Counter
	cooldowns       prometheus.Counter
	lastCooldown    prometheus.Gauge
	iteration       prometheus.Gauge
	runtime         prometheus.Histogram
}

// NewMetrics builds a private registry. current reports the PID of the running
// browser (0 when none) and feeds the child resource gauges at scrape time.
func NewMetrics(current func() int) *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		launches: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "launches_total",
			Help:      "Browser launch attempts",
		}),
		launchFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "launch_failures_total",
			Help:      "Launch attempts where the browser could not be started",
		}),
		exits: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "exits_total",
			Help:      "Browser terminations by exit reason",
		}, []string{"reason"}),
		cleanupFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "profile_cleanup_failures_total",
			Help:      "Failed scratch profile removals",
		}),
		cooldowns: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cooldowns_total",
			Help:      "Cooldown pauses between launches",
		}),
		lastCooldown: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "last_cooldown_seconds",
			Help:      "Duration of the most recent cooldown",
		}),
		iteration: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "iteration",
			Help:      "Current supervisor iteration",
		}),
		runtime: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "browser_runtime_seconds",
			Help:      "How long each browser instance stayed up",
			Buckets:   prometheus.ExponentialBuckets(1, 4, 10),
		}),
	}

	m.registry.MustRegister(
		m.launches,
		m.launchFailures,
		m.exits,
		m.cleanupFailures,
		m.cooldowns,
		m.lastCooldown,
		m.iteration,
		m.runtime,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	if current != nil {
		m.registry.MustRegister(
			prometheus.NewGaugeFunc(prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "browser_up",
				Help:      "1 while a browser process is running",
			}, func() float64 {
				if current() == 0 {
					return 0
				}
				return 1
			}),
			prometheus.NewGaugeFunc(prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "browser_rss_bytes",
				Help:      "Resident memory of the browser process tree",
			}, func() float64 {
				return float64(treeUsage(current()).RSSBytes)
			}),
			prometheus.NewGaugeFunc(prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "browser_processes",
				Help:      "Processes in the browser process tree",
			}, func() float64 {
				return float64(treeUsage(current()).Processes)
			}),
		)
	}

	return m
}

func treeUsage(pid int) process.Usage {
	if pid == 0 {
		return process.Usage{}
	}
	usage, err := process.TreeUsage(pid)
	if err != nil {
		return process.Usage{}
	}
	return usage
}

// LaunchAttempted counts a launch attempt
func (m *Metrics) LaunchAttempted(iteration uint64) {
	m.launches.Inc()
	m.iteration.Set(float64(iteration))
}

// LaunchFailed counts a browser that never started
func (m *Metrics) LaunchFailed() {
	m.launchFailures.Inc()
}

// BrowserExited records one terminated browser
func (m *Metrics) BrowserExited(r *process.Result) {
	m.exits.WithLabelValues(string(r.Reason)).Inc()
	m.runtime.Observe(r.Duration.Seconds())
}

// CleanupFailed counts a failed profile removal
func (m *Metrics) CleanupFailed() {
	m.cleanupFailures.Inc()
}

// CooldownStarted records a pause between launches
func (m *Metrics) CooldownStarted(d time.Duration) {
	m.cooldowns.Inc()
	m.lastCooldown.Set(d.Seconds())
}

// Registry exposes the underlying registry
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the registry in the Prometheus text format
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
