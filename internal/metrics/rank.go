package metrics

import "github.com/prometheus/client_golang/prometheus"

// Ranking pipeline metrics.
var (
	RankRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "rerank",
			Name:      "rank_requests_total",
			Help:      "Total number of rank calls",
		},
		[]string{"status"}, // ok / invalid_input / configuration / remote_scoring / error
	)

	RankDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "rerank",
			Name:      "rank_duration_seconds",
			Help:      "Rank call duration in seconds",
			Buckets:   []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5},
		},
	)

	RankCandidates = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "rerank",
			Name:      "rank_candidates",
			Help:      "Number of candidates per rank call",
			Buckets:   prometheus.ExponentialBuckets(1, 4, 7),
		},
	)

	StepDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "rerank",
			Name:      "step_duration_seconds",
			Help:      "Pipeline step duration in seconds",
			Buckets:   []float64{0.0001, 0.0005, 0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 5},
		},
		[]string{"step"},
	)
)

var rankMetricsRegistered bool

// RegisterRankMetrics registers pipeline metrics. Must be called once from main.
func RegisterRankMetrics() {
	if rankMetricsRegistered {
		return
	}
	prometheus.MustRegister(RankRequestsTotal)
	prometheus.MustRegister(RankDuration)
	prometheus.MustRegister(RankCandidates)
	prometheus.MustRegister(StepDuration)
	rankMetricsRegistered = true
}
