package observability

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics groups all Prometheus instruments used by the service.
type Metrics struct {
	RequestsHandled     *prometheus.CounterVec
	ClassifierFallbacks prometheus.Counter
	DispatchLatency     *prometheus.HistogramVec
	DispatchErrors      *prometheus.CounterVec
	EmptyWorkerReplies  prometheus.Counter
	SessionEvents       *prometheus.CounterVec
	ActivityEvents      *prometheus.CounterVec
	PendingApprovals    prometheus.Gauge
	WSMessages          *prometheus.CounterVec
	StorageErrors       *prometheus.CounterVec
}

func NewMetrics(namespace string) *Metrics {
	return &Metrics{
		RequestsHandled: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "requests_handled_total",
			Help:      "Handled user requests by classified action kind.",
		}, []string{"action"}),
		ClassifierFallbacks: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "classifier_fallbacks_total",
			Help:      "Classification attempts that fell back to the safe default.",
		}),
		DispatchLatency: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "dispatch_latency_ms",
			Help:      "Worker round-trip latency in milliseconds.",
			Buckets:   []float64{100, 250, 500, 1000, 2500, 5000, 15000, 30000, 60000},
		}, []string{"worker"}),
		DispatchErrors: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "dispatch_errors_total",
			Help:      "Dispatch failures by worker and code.",
		}, []string{"worker", "code"}),
		EmptyWorkerReplies: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "empty_worker_replies_total",
			Help:      "Worker replies that carried no usable text or data.",
		}),
		SessionEvents: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "session_events_total",
			Help:      "Session lifecycle events by type.",
		}, []string{"event"}),
		ActivityEvents: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "activity_events_total",
			Help:      "Approval activity transitions by type.",
		}, []string{"event"}),
		PendingApprovals: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "pending_approvals",
			Help:      "Activities currently awaiting a human decision.",
		}),
		WSMessages: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "ws_messages_total",
			Help:      "WebSocket messages by direction and type.",
		}, []string{"direction", "type"}),
		StorageErrors: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "storage_errors_total",
			Help:      "Storage failures by operation.",
		}, []string{"op"}),
	}
}

func (m *Metrics) ObserveDispatchLatency(worker string, d time.Duration) {
	m.DispatchLatency.WithLabelValues(worker).Observe(float64(d.Milliseconds()))
}

func MetricsHandler() http.Handler {
	return promhttp.Handler()
}
