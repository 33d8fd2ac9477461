package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	PromNamespace      = "salvo"
	TxMetricsNamespace = "tx_metrics"
)

// RejectReason labels why an item ended Rejected.
type RejectReason string

const (
	RejectInvalidEnvelope  RejectReason = "invalid_envelope"
	RejectPermanent        RejectReason = "permanent"
	RejectRetriesExhausted RejectReason = "retries_exhausted"
	RejectReverted         RejectReason = "reverted"
	RejectCancelled        RejectReason = "cancelled_while_retrying"
)

type Metrics struct {
	BroadcastSuccess prometheus.Counter
	BroadcastFailure prometheus.Counter
	Retries          prometheus.Counter
	InFlight         prometheus.Gauge
	Outcomes         *prometheus.CounterVec
	Rejections       *prometheus.CounterVec
	TxInclusion      prometheus.Histogram
}

// NewMetrics registers the batch metrics on reg. A nil reg leaves them unregistered.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		BroadcastSuccess: factory.NewCounter(prometheus.CounterOpts{
			Namespace: PromNamespace,
			Subsystem: TxMetricsNamespace,
			Name:      "broadcast_success",
			Help:      "Number of successful tx broadcasts.",
		}),
		BroadcastFailure: factory.NewCounter(prometheus.CounterOpts{
			Namespace: PromNamespace,
			Subsystem: TxMetricsNamespace,
			Name:      "broadcast_failure",
			Help:      "Number of failed tx broadcasts.",
		}),
		Retries: factory.NewCounter(prometheus.CounterOpts{
			Namespace: PromNamespace,
			Subsystem: TxMetricsNamespace,
			Name:      "retries",
			Help:      "Number of broadcast attempts scheduled after a retryable failure.",
		}),
		InFlight: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: PromNamespace,
			Subsystem: TxMetricsNamespace,
			Name:      "in_flight",
			Help:      "Number of broadcasts currently holding a submission slot.",
		}),
		Outcomes: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: PromNamespace,
			Subsystem: TxMetricsNamespace,
			Name:      "outcomes",
			Help:      "Number of items per terminal outcome.",
		}, []string{"outcome"}),
		Rejections: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: PromNamespace,
			Subsystem: TxMetricsNamespace,
			Name:      "rejections",
			Help:      "Number of rejected items per reason.",
		}, []string{"reason"}),
		TxInclusion: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: PromNamespace,
			Subsystem: TxMetricsNamespace,
			Name:      "tx_inclusion",
			Help:      "Histogram of milliseconds between first broadcast and a successful receipt.",
			Buckets:   []float64{50, 100, 250, 500, 1000, 1500, 2000, 5000, 10000, 15000, 20000, 30000, 60000},
		}),
	}
}
