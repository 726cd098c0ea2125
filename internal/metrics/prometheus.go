package metrics

import (
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	AnalysisDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "teamscope_analysis_duration_seconds",
			Help:    "Survey analysis duration in seconds",
			Buckets: []float64{0.01, 0.05, 0.1, 0.5, 1, 2, 5},
		},
		[]string{"analysis_type"},
	)

	AnalysesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "teamscope_analyses_total",
			Help: "Total number of analyses run",
		},
		[]string{"analysis_type", "status"},
	)

	NetworkNodes = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "teamscope_network_nodes",
			Help:    "Number of nodes per analyzed network",
			Buckets: []float64{0, 5, 10, 25, 50, 100, 250, 500},
		},
	)

	NetworkEdges = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "teamscope_network_edges",
			Help:    "Number of edges per analyzed network",
			Buckets: []float64{0, 10, 25, 50, 100, 250, 500, 1000},
		},
	)

	SnapshotCacheHits = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "teamscope_snapshot_cache_hits_total",
			Help: "Total analytics snapshot cache hits",
		},
		[]string{"snapshot_type"},
	)

	SnapshotCacheMisses = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "teamscope_snapshot_cache_misses_total",
			Help: "Total analytics snapshot cache misses",
		},
		[]string{"snapshot_type"},
	)

	EnrichmentFallbacks = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "teamscope_enrichment_fallbacks_total",
			Help: "Total insight enrichment failures handled by the rule-based fallback",
		},
	)

	EnrichmentTokensUsed = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "teamscope_enrichment_tokens_used",
			Help: "Total enrichment model tokens used",
		},
		[]string{"model", "type"},
	)

	ResponsesSubmitted = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "teamscope_responses_submitted_total",
			Help: "Total survey responses submitted",
		},
		[]string{"survey_type"},
	)

	SurveysCreated = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "teamscope_surveys_created_total",
			Help: "Total surveys created",
		},
		[]string{"survey_type"},
	)

	InvitationsSent = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "teamscope_invitations_sent_total",
			Help: "Total survey invitations created",
		},
	)

	NetworkExports = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "teamscope_network_exports_total",
			Help: "Total network exports to the graph store",
		},
		[]string{"status"},
	)

	HTTPRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "teamscope_http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: []float64{0.005, 0.01, 0.05, 0.1, 0.5, 1, 5},
		},
		[]string{"method", "route", "status"},
	)
)

func Init() {
	prometheus.MustRegister(AnalysisDuration)
	prometheus.MustRegister(AnalysesTotal)
	prometheus.MustRegister(NetworkNodes)
	prometheus.MustRegister(NetworkEdges)
	prometheus.MustRegister(SnapshotCacheHits)
	prometheus.MustRegister(SnapshotCacheMisses)
	prometheus.MustRegister(EnrichmentFallbacks)
	prometheus.MustRegister(EnrichmentTokensUsed)
	prometheus.MustRegister(ResponsesSubmitted)
	prometheus.MustRegister(SurveysCreated)
	prometheus.MustRegister(InvitationsSent)
	prometheus.MustRegister(NetworkExports)
	prometheus.MustRegister(HTTPRequestDuration)
}

func MetricsHandler() fiber.Handler {
	return adaptor.HTTPHandler(promhttp.Handler())
}
