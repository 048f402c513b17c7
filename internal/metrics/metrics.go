// Package metrics содержит Prometheus-коллекторы сверки и шлюза.
package metrics

import (
	"errors"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "teleguard"

// Metrics коллекторы приложения. Методы безопасны для nil-получателя.
type Metrics struct {
	sweepRuns     *prometheus.CounterVec
	sweepDuration prometheus.Histogram
	evictions     *prometheus.CounterVec
	reminders     *prometheus.CounterVec
	gatewayCalls  *prometheus.CounterVec
	reactivations *prometheus.CounterVec
}

// MustNew регистрирует коллекторы в reg (nil означает глобальный реестр).
// Повторная регистрация переиспользует уже существующие коллекторы.
func MustNew(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	m := &Metrics{
		sweepRuns: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "sweep",
			Name:      "runs_total",
			Help:      "Reconciliation runs by result.",
		}, []string{"result"}),
		sweepDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "sweep",
			Name:      "duration_seconds",
			Help:      "Duration of a reconciliation run.",
			Buckets:   []float64{0.1, 0.5, 1, 5, 15, 30, 60, 120, 300, 600},
		}),
		evictions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "sweep",
			Name:      "evictions_total",
			Help:      "Eviction attempts of expired subscribers by gateway result.",
		}, []string{"result"}),
		reminders: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "sweep",
			Name:      "reminders_total",
			Help:      "Expiry reminders by bucket and result.",
		}, []string{"bucket", "result"}),
		gatewayCalls: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "gateway",
			Name:      "calls_total",
			Help:      "Calls to the group platform by operation and outcome.",
		}, []string{"operation", "outcome"}),
		reactivations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "reactivation",
			Name:      "events_total",
			Help:      "Reactivation events by delivery outcome.",
		}, []string{"outcome"}),
	}

	m.sweepRuns = register(reg, m.sweepRuns)
	m.sweepDuration = register(reg, m.sweepDuration)
	m.evictions = register(reg, m.evictions)
	m.reminders = register(reg, m.reminders)
	m.gatewayCalls = register(reg, m.gatewayCalls)
	m.reactivations = register(reg, m.reactivations)
	return m
}

func register[C prometheus.Collector](reg prometheus.Registerer, c C) C {
	if err := reg.Register(c); err != nil {
		var already prometheus.AlreadyRegisteredError
		if errors.As(err, &already) {
			if existing, ok := already.ExistingCollector.(C); ok {
				return existing
			}
		}
		panic(err)
	}
	return c
}

// ObserveSweep учитывает завершённый прогон сверки
func (m *Metrics) ObserveSweep(result string, d time.Duration) {
	if m == nil {
		return
	}
	m.sweepRuns.WithLabelValues(result).Inc()
	m.sweepDuration.Observe(d.Seconds())
}

// IncSweepSkipped прогон не начался: уже идёт другой
func (m *Metrics) IncSweepSkipped(reason string) {
	if m == nil {
		return
	}
	m.sweepRuns.WithLabelValues(reason).Inc()
}

func (m *Metrics) IncEviction(result string) {
	if m == nil {
		return
	}
	m.evictions.WithLabelValues(result).Inc()
}

func (m *Metrics) IncReminder(bucket, result string) {
	if m == nil {
		return
	}
	m.reminders.WithLabelValues(bucket, result).Inc()
}

// IncGatewayCall outcome: ok, error, unavailable
func (m *Metrics) IncGatewayCall(operation, outcome string) {
	if m == nil {
		return
	}
	m.gatewayCalls.WithLabelValues(operation, outcome).Inc()
}

func (m *Metrics) IncReactivation(outcome string) {
	if m == nil {
		return
	}
	m.reactivations.WithLabelValues(outcome).Inc()
}
