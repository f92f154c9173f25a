package observability

import (
	"math/big"
	"strings"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// SettlementMetrics records settlement core activity: operation counts and
// latencies plus treasury and claim balance gauges.
type SettlementMetrics struct {
	operations *prometheus.CounterVec
	failures   *prometheus.CounterVec
	latency    *prometheus.HistogramVec
	vault      *prometheus.GaugeVec
	claims     *prometheus.GaugeVec
}

var (
	settlementOnce sync.Once
	settlementReg  *SettlementMetrics
)

// Settlement returns the lazily-initialised settlement metrics registry.
func Settlement() *SettlementMetrics {
	settlementOnce.Do(func() {
		settlementReg = &SettlementMetrics{
			operations: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "upiramp",
				Subsystem: "settlement",
				Name:      "operations_total",
				Help:      "Total settlement core operations segmented by operation and outcome.",
			}, []string{"operation", "outcome"}),
			failures: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "upiramp",
				Subsystem: "settlement",
				Name:      "failures_total",
				Help:      "Settlement operation failures segmented by operation and error.",
			}, []string{"operation", "error"}),
			latency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
				Namespace: "upiramp",
				Subsystem: "settlement",
				Name:      "operation_duration_seconds",
				Help:      "Latency distribution for settlement core operations.",
				Buckets:   prometheus.DefBuckets,
			}, []string{"operation"}),
			vault: prometheus.NewGaugeVec(prometheus.GaugeOpts{
				Namespace: "upiramp",
				Subsystem: "vault",
				Name:      "balance_units",
				Help:      "Pooled treasury balance per asset in base units.",
			}, []string{"asset"}),
			claims: prometheus.NewGaugeVec(prometheus.GaugeOpts{
				Namespace: "upiramp",
				Subsystem: "claims",
				Name:      "outstanding_units",
				Help:      "Outstanding claim liability per asset in base units.",
			}, []string{"asset"}),
		}
		prometheus.MustRegister(
			settlementReg.operations,
			settlementReg.failures,
			settlementReg.latency,
			settlementReg.vault,
			settlementReg.claims,
		)
	})
	return settlementReg
}

// Observe records the outcome and duration of one settlement operation.
func (m *SettlementMetrics) Observe(operation string, duration time.Duration, err error) {
	if m == nil {
		return
	}
	op := strings.TrimSpace(operation)
	outcome := "ok"
	if err != nil {
		outcome = "error"
		m.failures.WithLabelValues(op, errorLabel(err)).Inc()
	}
	m.operations.WithLabelValues(op, outcome).Inc()
	m.latency.WithLabelValues(op).Observe(duration.Seconds())
}

// SetVaultBalance publishes the current treasury balance for an asset.
func (m *SettlementMetrics) SetVaultBalance(asset string, balance *big.Int) {
	if m == nil || balance == nil {
		return
	}
	value, _ := new(big.Float).SetInt(balance).Float64()
	m.vault.WithLabelValues(strings.ToUpper(strings.TrimSpace(asset))).Set(value)
}

// SetClaimLiability publishes the outstanding claim total for an asset.
func (m *SettlementMetrics) SetClaimLiability(asset string, total *big.Int) {
	if m == nil || total == nil {
		return
	}
	value, _ := new(big.Float).SetInt(total).Float64()
	m.claims.WithLabelValues(strings.ToUpper(strings.TrimSpace(asset))).Set(value)
}

func errorLabel(err error) string {
	if err == nil {
		return ""
	}
	msg := err.Error()
	if idx := strings.IndexByte(msg, ':'); idx > 0 {
		// Sentinel errors carry a "package: description" shape; keep both
		// halves but normalise spacing so label cardinality stays bounded.
		msg = msg[:idx] + "_" + strings.TrimSpace(msg[idx+1:])
	}
	return strings.ReplaceAll(msg, " ", "_")
}
