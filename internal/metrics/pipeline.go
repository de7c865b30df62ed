package metrics

import "github.com/prometheus/client_golang/prometheus"

const namespace = "biblio"

// Pipeline Prometheus metrics.
var (
	LLMRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "llm_requests_total",
			Help:      "Total number of language model completion requests",
		},
		[]string{"stage", "model", "status"},
	)

	LLMRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "llm_request_duration_seconds",
			Help:      "Language model completion duration in seconds",
			Buckets:   []float64{0.1, 0.25, 0.5, 1, 2.5, 5, 10, 20, 40},
		},
		[]string{"stage", "model"},
	)

	LLMTokensTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "llm_tokens_total",
			Help:      "Total language model tokens consumed",
		},
		[]string{"stage", "model", "type"},
	)

	UpstreamRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "upstream_requests_total",
			Help:      "Total number of library API requests",
		},
		[]string{"endpoint", "status"},
	)

	UpstreamRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "upstream_request_duration_seconds",
			Help:      "Library API request duration in seconds",
			Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 35},
		},
		[]string{"endpoint"},
	)

	PlannerFallbacksTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "planner_fallbacks_total",
			Help:      "Query plans degraded to the default query",
		},
		[]string{"reason"}, // llm_error, no_json, parse_error
	)

	SummaryFallbacksTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "summary_fallbacks_total",
			Help:      "Summaries replaced by the canned fallback answer",
		},
		[]string{"reason"}, // no_json, parse_error, unavailable
	)

	PlannedQueries = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "planned_queries",
			Help:      "Number of structured queries produced per question",
			Buckets:   []float64{1, 2, 3, 5, 8, 13},
		},
	)

	ImagesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "images_resolved_total",
			Help:      "Image resolution outcomes per record",
		},
		[]string{"result"}, // direct, resolved, missing, error, skipped
	)
)

var registered bool

// Register registers all Prometheus collectors. Must be called once from main.
func Register() {
	if registered {
		return
	}
	prometheus.MustRegister(
		LLMRequestsTotal,
		LLMRequestDuration,
		LLMTokensTotal,
		UpstreamRequestsTotal,
		UpstreamRequestDuration,
		PlannerFallbacksTotal,
		SummaryFallbacksTotal,
		PlannedQueries,
		ImagesTotal,
		httpRequestDuration,
		httpRequestsTotal,
	)
	registered = true
}
