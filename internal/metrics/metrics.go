// Package metrics owns the Prometheus collectors of the arena service.
package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	registerOnce sync.Once

	sessionsStarted  *prometheus.CounterVec
	sessionsEnded    *prometheus.CounterVec
	submissionsTotal *prometheus.CounterVec
	violationsTotal  *prometheus.CounterVec
	wsConnections    prometheus.Gauge
	judgeDuration    *prometheus.HistogramVec
	kafkaMessages    *prometheus.CounterVec
)

// Register initialises the collectors on the default registry. Safe to call repeatedly.
func Register() {
	registerOnce.Do(func() {
		sessionsStarted = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "arena_sessions_started_total",
			Help: "Sessions moved to active.",
		}, []string{"kind"})

		sessionsEnded = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "arena_sessions_ended_total",
			Help: "Sessions completed, by trigger.",
		}, []string{"kind", "reason"})

		submissionsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "arena_submissions_total",
			Help: "Graded answers and code submissions.",
		}, []string{"kind", "outcome"})

		violationsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "arena_violations_total",
			Help: "Proctoring violations applied.",
		}, []string{"severity"})

		wsConnections = prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "arena_ws_connections",
			Help: "Open websocket connections.",
		})

		judgeDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "arena_judge_duration_seconds",
			Help:    "Wall time of one judge run.",
			Buckets: []float64{0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
		}, []string{"language"})

		kafkaMessages = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "arena_kafka_messages_total",
			Help: "Proctoring messages consumed.",
		}, []string{"topic", "status"})

		prometheus.MustRegister(sessionsStarted, sessionsEnded, submissionsTotal, violationsTotal,
			wsConnections, judgeDuration, kafkaMessages)
	})
}

func SessionStarted(kind string) {
	Register()
	sessionsStarted.WithLabelValues(kind).Inc()
}

func SessionEnded(kind, reason string) {
	Register()
	sessionsEnded.WithLabelValues(kind, reason).Inc()
}

// Submission counts a graded attempt; outcome is "correct", "incorrect" or "rejected".
func Submission(kind, outcome string) {
	Register()
	submissionsTotal.WithLabelValues(kind, outcome).Inc()
}

func Violation(severity string) {
	Register()
	violationsTotal.WithLabelValues(severity).Inc()
}

func ConnectionOpened() {
	Register()
	wsConnections.Inc()
}

func ConnectionClosed() {
	Register()
	wsConnections.Dec()
}

func ObserveJudge(language string, seconds float64) {
	Register()
	judgeDuration.WithLabelValues(language).Observe(seconds)
}

func KafkaMessage(topic, status string) {
	Register()
	kafkaMessages.WithLabelValues(topic, status).Inc()
}
