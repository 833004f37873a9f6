package chain

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics bundles the Prometheus collectors the chain controller, market
// engine, and mempool record into: package-level CounterVec/HistogramVec
// collectors behind a register-on-first-use helper, shared process-wide.
type Metrics struct {
	blockApplyLatency *prometheus.HistogramVec
	mempoolDepth      prometheus.Gauge
	marginCallVolume  *prometheus.CounterVec
	blackSwanEvents   *prometheus.CounterVec
}

var (
	metricsOnce sync.Once
	metrics     *Metrics
)

// ChainMetrics returns the process-wide metrics registry, constructing and
// registering it with the default Prometheus registerer on first use.
func ChainMetrics() *Metrics {
	metricsOnce.Do(func() {
		metrics = &Metrics{
			blockApplyLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
				Namespace: "marketchain",
				Subsystem: "chain",
				Name:      "block_apply_duration_seconds",
				Help:      "Latency of ApplyBlock, segmented by outcome.",
				Buckets:   prometheus.DefBuckets,
			}, []string{"outcome"}),
			mempoolDepth: prometheus.NewGauge(prometheus.GaugeOpts{
				Namespace: "marketchain",
				Subsystem: "mempool",
				Name:      "pending_transactions",
				Help:      "Number of transactions currently pending in the mempool.",
			}),
			marginCallVolume: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "marketchain",
				Subsystem: "market",
				Name:      "margin_call_volume_total",
				Help:      "Cumulative number of call orders closed or partially filled by margin calls, by asset.",
			}, []string{"asset"}),
			blackSwanEvents: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "marketchain",
				Subsystem: "market",
				Name:      "black_swan_events_total",
				Help:      "Count of global-settlement (black swan) events, by asset.",
			}, []string{"asset"}),
		}
		prometheus.MustRegister(
			metrics.blockApplyLatency,
			metrics.mempoolDepth,
			metrics.marginCallVolume,
			metrics.blackSwanEvents,
		)
	})
	return metrics
}

func (m *Metrics) observeApply(start time.Time, err error) {
	if m == nil {
		return
	}
	outcome := "success"
	if err != nil {
		outcome = "error"
	}
	m.blockApplyLatency.WithLabelValues(outcome).Observe(time.Since(start).Seconds())
}

func (m *Metrics) setMempoolDepth(n int) {
	if m == nil {
		return
	}
	m.mempoolDepth.Set(float64(n))
}

func (m *Metrics) recordBlackSwan(asset string) {
	if m == nil {
		return
	}
	m.blackSwanEvents.WithLabelValues(asset).Inc()
}

func (m *Metrics) recordMarginCalls(asset string, n int) {
	if m == nil || n == 0 {
		return
	}
	m.marginCallVolume.WithLabelValues(asset).Add(float64(n))
}
