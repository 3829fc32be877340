package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "rollout"

// PoolMetrics holds the prometheus collectors of a worker pool. A nil
// *PoolMetrics is valid and records nothing.
type PoolMetrics struct {
	batches    *prometheus.CounterVec
	duration   *prometheus.HistogramVec
	workerErrs *prometheus.CounterVec
	steps      prometheus.Counter
	autoResets prometheus.Counter
}

func NewPoolMetrics() *PoolMetrics {
	return &PoolMetrics{
		batches: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "pool",
			Name:      "batches_total",
			Help:      "Total number of collected batches by operation and status",
		}, []string{"op", "status"}),
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "pool",
			Name:      "batch_duration_seconds",
			Help:      "Histogram of batch wall time by operation",
			Buckets:   prometheus.DefBuckets,
		}, []string{"op"}),
		workerErrs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "pool",
			Name:      "worker_errors_total",
			Help:      "Total number of worker failure reports by worker index and kind",
		}, []string{"worker", "kind"}),
		steps: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "pool",
			Name:      "steps_total",
			Help:      "Total number of actor steps collected",
		}),
		autoResets: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "pool",
			Name:      "auto_resets_total",
			Help:      "Total number of episodes rolled over by auto-reset",
		}),
	}
}

// Register attaches all pool collectors to reg.
func (m *PoolMetrics) Register(reg *prometheus.Registry) {
	if m == nil {
		return
	}
	reg.MustRegister(m.batches, m.duration, m.workerErrs, m.steps, m.autoResets)
}

func (m *PoolMetrics) ObserveBatch(op, status string, d time.Duration) {
	if m == nil {
		return
	}
	m.batches.WithLabelValues(op, status).Inc()
	m.duration.WithLabelValues(op).Observe(d.Seconds())
}

func (m *PoolMetrics) WorkerError(worker int, kind string) {
	if m == nil {
		return
	}
	m.workerErrs.WithLabelValues(strconv.Itoa(worker), kind).Inc()
}

func (m *PoolMetrics) AddSteps(n int) {
	if m == nil || n <= 0 {
		return
	}
	m.steps.Add(float64(n))
}

func (m *PoolMetrics) AddAutoResets(n int) {
	if m == nil || n <= 0 {
		return
	}
	m.autoResets.Add(float64(n))
}

// RolloutMetrics instruments the rollout driver. A nil *RolloutMetrics is
// valid and records nothing.
type RolloutMetrics struct {
	episodes       *prometheus.CounterVec
	episodeSteps   prometheus.Histogram
	recorderWrites *prometheus.CounterVec
}

func NewRolloutMetrics() *RolloutMetrics {
	return &RolloutMetrics{
		episodes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "run",
			Name:      "episodes_total",
			Help:      "Total number of finished episodes by worker name",
		}, []string{"worker"}),
		episodeSteps: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "run",
			Name:      "episode_steps",
			Help:      "Histogram of steps per finished episode",
			Buckets:   prometheus.ExponentialBuckets(1, 2, 12),
		}),
		recorderWrites: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "run",
			Name:      "recorder_writes_total",
			Help:      "Total number of episode record writes by status",
		}, []string{"status"}),
	}
}

// Register attaches all rollout collectors to reg.
func (m *RolloutMetrics) Register(reg *prometheus.Registry) {
	if m == nil {
		return
	}
	reg.MustRegister(m.episodes, m.episodeSteps, m.recorderWrites)
}

func (m *RolloutMetrics) EpisodeDone(worker string, steps int) {
	if m == nil {
		return
	}
	m.episodes.WithLabelValues(worker).Inc()
	m.episodeSteps.Observe(float64(steps))
}

func (m *RolloutMetrics) RecorderWrite(err error) {
	if m == nil {
		return
	}
	status := "ok"
	if err != nil {
		status = "error"
	}
	m.recorderWrites.WithLabelValues(status).Inc()
}
