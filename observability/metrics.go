package observability

import (
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

type lendingMetrics struct {
	operations   *prometheus.CounterVec
	errors       *prometheus.CounterVec
	latency      *prometheus.HistogramVec
	liquidations prometheus.Counter
	utilization  *prometheus.GaugeVec
	vaultBalance *prometheus.GaugeVec
}

var (
	lendingMetricsOnce sync.Once
	lendingRegistry    *lendingMetrics
)

// LendingMetrics returns the lazily-initialised metrics registry used to
// record lending engine activity.
func LendingMetrics() *lendingMetrics {
	lendingMetricsOnce.Do(func() {
		lendingRegistry = &lendingMetrics{
			operations: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "orbitlen",
				Subsystem: "lending",
				Name:      "operations_total",
				Help:      "Total lending operations segmented by operation and outcome.",
			}, []string{"operation", "outcome"}),
			errors: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "orbitlen",
				Subsystem: "lending",
				Name:      "errors_total",
				Help:      "Total lending operation errors segmented by operation and reason.",
			}, []string{"operation", "reason"}),
			latency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
				Namespace: "orbitlen",
				Subsystem: "lending",
				Name:      "operation_duration_seconds",
				Help:      "Latency distribution for lending operation handlers.",
				Buckets:   prometheus.DefBuckets,
			}, []string{"operation"}),
			liquidations: prometheus.NewCounter(prometheus.CounterOpts{
				Namespace: "orbitlen",
				Subsystem: "lending",
				Name:      "liquidations_total",
				Help:      "Count of completed liquidations.",
			}),
			utilization: prometheus.NewGaugeVec(prometheus.GaugeOpts{
				Namespace: "orbitlen",
				Subsystem: "lending",
				Name:      "bank_utilization",
				Help:      "Current borrowed fraction of deposits per bank.",
			}, []string{"bank"}),
			vaultBalance: prometheus.NewGaugeVec(prometheus.GaugeOpts{
				Namespace: "orbitlen",
				Subsystem: "lending",
				Name:      "bank_vault_balance",
				Help:      "Current liquidity vault balance per bank.",
			}, []string{"bank"}),
		}
		prometheus.MustRegister(
			lendingRegistry.operations,
			lendingRegistry.errors,
			lendingRegistry.latency,
			lendingRegistry.liquidations,
			lendingRegistry.utilization,
			lendingRegistry.vaultBalance,
		)
	})
	return lendingRegistry
}

// Observe records the outcome and duration of one lending operation.
func (m *lendingMetrics) Observe(operation string, err error, duration time.Duration) {
	if m == nil {
		return
	}
	operation = normalizeLabel(operation)
	outcome := "ok"
	if err != nil {
		outcome = "error"
		m.errors.WithLabelValues(operation, reasonLabel(err)).Inc()
	}
	m.operations.WithLabelValues(operation, outcome).Inc()
	m.latency.WithLabelValues(operation).Observe(duration.Seconds())
}

// ObserveLiquidation counts one completed liquidation.
func (m *lendingMetrics) ObserveLiquidation() {
	if m == nil {
		return
	}
	m.liquidations.Inc()
}

// SetBankGauges publishes the per-bank utilization and vault level.
func (m *lendingMetrics) SetBankGauges(bank string, utilization, vault float64) {
	if m == nil {
		return
	}
	bank = normalizeLabel(bank)
	m.utilization.WithLabelValues(bank).Set(utilization)
	m.vaultBalance.WithLabelValues(bank).Set(vault)
}

func normalizeLabel(v string) string {
	v = strings.TrimSpace(strings.ToLower(v))
	if v == "" {
		return "unknown"
	}
	return v
}

func reasonLabel(err error) string {
	// Unwrap to the sentinel so wrapping context never explodes label
	// cardinality.
	for {
		next := errors.Unwrap(err)
		if next == nil {
			break
		}
		err = next
	}
	msg := strings.TrimSpace(err.Error())
	msg = strings.TrimPrefix(msg, "lending: ")
	msg = strings.TrimPrefix(msg, "oracle: ")
	if msg == "" {
		return "unknown"
	}
	return strings.ReplaceAll(msg, " ", "_")
}
