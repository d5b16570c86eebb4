// Package observability provides metrics and tracing for the run engine.
package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const (
	// MetricsNamespace is the namespace for all run engine metrics.
	MetricsNamespace = "caravan"

	// MetricsSubsystem is the subsystem for run metrics.
	MetricsSubsystem = "runs"
)

// Task outcomes.
const (
	OutcomeOK     = "ok"
	OutcomeFailed = "failed"
	OutcomeLost   = "lost"
)

// Metrics holds all Prometheus metrics of the run engine.
type Metrics struct {
	// Run metrics
	RunsSubmittedTotal prometheus.Counter
	RunsFinishedTotal  *prometheus.CounterVec
	RunsActive         prometheus.Gauge
	RegistrySize       prometheus.Gauge
	RunsEvictedTotal   prometheus.Counter

	// Area metrics
	AreaRadiusKm *prometheus.HistogramVec
	TargetsTotal *prometheus.CounterVec

	// Task metrics
	TasksTotal          *prometheus.CounterVec
	TaskDurationSeconds prometheus.Histogram

	// Event metrics
	EventsPublishedTotal *prometheus.CounterVec
}

// NewMetrics creates and registers all run engine metrics.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}

	factory := promauto.With(reg)
	m := &Metrics{}

	m.initRunMetrics(factory)
	m.initAreaMetrics(factory)
	m.initTaskMetrics(factory)
	m.initEventMetrics(factory)

	return m
}

func (m *Metrics) initRunMetrics(factory promauto.Factory) {
	m.RunsSubmittedTotal = factory.NewCounter(
		prometheus.CounterOpts{
			Namespace: MetricsNamespace,
			Subsystem: MetricsSubsystem,
			Name:      "submitted_total",
			Help:      "Total number of submitted runs",
		},
	)

	m.RunsFinishedTotal = factory.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: MetricsNamespace,
			Subsystem: MetricsSubsystem,
			Name:      "finished_total",
			Help:      "Total number of runs that reached a terminal status",
		},
		[]string{"status"},
	)

	m.RunsActive = factory.NewGauge(
		prometheus.GaugeOpts{
			Namespace: MetricsNamespace,
			Subsystem: MetricsSubsystem,
			Name:      "active",
			Help:      "Number of runs not yet terminal",
		},
	)

	m.RegistrySize = factory.NewGauge(
		prometheus.GaugeOpts{
			Namespace: MetricsNamespace,
			Subsystem: MetricsSubsystem,
			Name:      "registry_size",
			Help:      "Number of runs held by the registry",
		},
	)

	m.RunsEvictedTotal = factory.NewCounter(
		prometheus.CounterOpts{
			Namespace: MetricsNamespace,
			Subsystem: MetricsSubsystem,
			Name:      "evicted_total",
			Help:      "Total number of runs evicted from the registry",
		},
	)
}

func (m *Metrics) initAreaMetrics(factory promauto.Factory) {
	m.AreaRadiusKm = factory.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: MetricsNamespace,
			Subsystem: MetricsSubsystem,
			Name:      "area_radius_km",
			Help:      "Resolved radius of the area of interest",
			Buckets:   prometheus.ExponentialBuckets(5, 2, 9), // 5 km to 1280 km
		},
		[]string{"gmpe"},
	)

	m.TargetsTotal = factory.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: MetricsNamespace,
			Subsystem: MetricsSubsystem,
			Name:      "targets_total",
			Help:      "Total number of target rows read, by validity",
		},
		[]string{"validity"},
	)
}

func (m *Metrics) initTaskMetrics(factory promauto.Factory) {
	m.TasksTotal = factory.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: MetricsNamespace,
			Subsystem: MetricsSubsystem,
			Name:      "tasks_total",
			Help:      "Total number of per-target tasks, by outcome",
		},
		[]string{"outcome"},
	)

	m.TaskDurationSeconds = factory.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: MetricsNamespace,
			Subsystem: MetricsSubsystem,
			Name:      "task_duration_seconds",
			Help:      "Duration of per-target tasks in seconds",
			Buckets:   prometheus.ExponentialBuckets(0.001, 4, 10), // 1ms to ~4min
		},
	)
}

func (m *Metrics) initEventMetrics(factory promauto.Factory) {
	m.EventsPublishedTotal = factory.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: MetricsNamespace,
			Subsystem: MetricsSubsystem,
			Name:      "events_published_total",
			Help:      "Total number of run lifecycle events, by result",
		},
		[]string{"type", "result"},
	)
}
