package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

// Inference and annotation pipeline Prometheus metrics.
var (
	InferenceRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "newsdigest",
			Name:      "inference_requests_total",
			Help:      "Total number of inference requests",
		},
		[]string{"provider", "model", "status"},
	)

	InferenceRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "newsdigest",
			Name:      "inference_request_duration_seconds",
			Help:      "Inference request duration in seconds",
			Buckets:   []float64{0.25, 0.5, 1, 2.5, 5, 10, 20, 40, 80},
		},
		[]string{"provider", "model"},
	)

	InferenceTokensTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "newsdigest",
			Name:      "inference_tokens_total",
			Help:      "Total inference tokens consumed",
		},
		[]string{"provider", "model", "type"},
	)

	InferenceErrorsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "newsdigest",
			Name:      "inference_errors_total",
			Help:      "Total inference errors",
		},
		[]string{"provider", "model", "error_type"},
	)

	InferenceBudgetRemaining = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: "newsdigest",
			Name:      "inference_budget_requests_remaining",
			Help:      "Remaining request budget",
		},
		[]string{"provider", "period"},
	)

	InferenceCacheTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "newsdigest",
			Name:      "inference_cache_total",
			Help:      "Response cache hits and misses",
		},
		[]string{"result"}, // "hit" / "miss" / "skip"
	)

	CallAttemptsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "newsdigest",
			Name:      "call_attempts_total",
			Help:      "Structured call attempts by stage and outcome",
		},
		[]string{"stage", "outcome"}, // outcome: ok / rate_limited / invalid / error
	)

	CallResultsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "newsdigest",
			Name:      "call_results_total",
			Help:      "Structured calls by stage after retries",
		},
		[]string{"stage", "result"}, // ok / exhausted
	)

	AnnotationsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "newsdigest",
			Name:      "annotations_total",
			Help:      "Annotated items by the protocol stage that produced them",
		},
		[]string{"origin"},
	)

	ChunkDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "newsdigest",
			Name:      "chunk_duration_seconds",
			Help:      "Wall-clock time to annotate one chunk, delays included",
			Buckets:   []float64{1, 5, 15, 30, 60, 120, 300, 600},
		},
	)
)

var registerOnce sync.Once

// Register registers the pipeline and HTTP metrics with the default registry.
// Safe to call more than once.
func Register() {
	registerOnce.Do(func() {
		prometheus.MustRegister(
			InferenceRequestsTotal,
			InferenceRequestDuration,
			InferenceTokensTotal,
			InferenceErrorsTotal,
			InferenceBudgetRemaining,
			InferenceCacheTotal,
			CallAttemptsTotal,
			CallResultsTotal,
			AnnotationsTotal,
			ChunkDuration,
			httpRequestDuration,
			httpRequestsTotal,
			httpInFlight,
		)
	})
}
