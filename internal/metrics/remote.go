package metrics

import "github.com/prometheus/client_golang/prometheus"

// Remote collaborator metrics.
var (
	RemoteRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "rerank",
			Name:      "remote_requests_total",
			Help:      "Total number of remote scoring requests",
		},
		[]string{"provider", "status"},
	)

	RemoteRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "rerank",
			Name:      "remote_request_duration_seconds",
			Help:      "Remote scoring request duration in seconds",
			Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		},
		[]string{"provider"},
	)

	RemoteFallbackTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "rerank",
			Name:      "remote_fallback_total",
			Help:      "Candidates scored neutral after a remote failure",
		},
		[]string{"step"},
	)

	EmbeddingRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "rerank",
			Name:      "embedding_requests_total",
			Help:      "Total number of query embedding requests",
		},
		[]string{"provider", "model", "status"},
	)

	EmbeddingTokensTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "rerank",
			Name:      "embedding_tokens_total",
			Help:      "Total embedding tokens consumed",
		},
		[]string{"provider", "model"},
	)

	ScoreCacheTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "rerank",
			Name:      "score_cache_total",
			Help:      "Remote score cache hits and misses",
		},
		[]string{"result"}, // "hit" / "miss" / "error"
	)
)

var remoteMetricsRegistered bool

// RegisterRemoteMetrics registers remote collaborator metrics. Must be called once from main.
func RegisterRemoteMetrics() {
	if remoteMetricsRegistered {
		return
	}
	prometheus.MustRegister(RemoteRequestsTotal)
	prometheus.MustRegister(RemoteRequestDuration)
	prometheus.MustRegister(RemoteFallbackTotal)
	prometheus.MustRegister(EmbeddingRequestsTotal)
	prometheus.MustRegister(EmbeddingTokensTotal)
	prometheus.MustRegister(ScoreCacheTotal)
	remoteMetricsRegistered = true
}
