package rerank

import (
	"github.com/kailas-cloud/rerank/internal/step/bm25"
	"github.com/kailas-cloud/rerank/internal/step/boost"
	"github.com/kailas-cloud/rerank/internal/step/combine"
	"github.com/kailas-cloud/rerank/internal/step/decay"
	"github.com/kailas-cloud/rerank/internal/step/mmr"
	"github.com/kailas-cloud/rerank/internal/step/prior"
	"github.com/kailas-cloud/rerank/internal/step/remote"
	"github.com/kailas-cloud/rerank/internal/step/similarity"
)

// Step configurations.
type (
	BM25Config       = bm25.Config
	DecayConfig      = decay.Config
	SimilarityConfig = similarity.Config
	RemoteConfig     = remote.Config
	CombineConfig    = combine.Config
	MMRConfig        = mmr.Config
)

// Enumerations accepted by the step configurations.
const (
	Exponential = decay.Exponential
	Gravity     = decay.Gravity

	WeightedSum     = combine.WeightedSum
	WeightedProduct = combine.WeightedProduct
	RRF             = combine.RRF

	NormalizeNone   = combine.None
	NormalizeMinMax = combine.MinMax
	NormalizeZScore = combine.ZScore

	FailFast        = remote.FailFast
	NeutralFallback = remote.NeutralFallback
)

// DefaultBM25 returns k1=1.2, b=0.75 over title and content.
func DefaultBM25() BM25Config { return bm25.DefaultConfig() }

// DefaultMMR returns lambda=0.5 with content-embedding cosine similarity.
func DefaultMMR() MMRConfig { return mmr.DefaultConfig() }

// MMRSimilarity returns a built-in MMR similarity: metric is cosine, dot or
// euclidean, embedding is content or title. Empty values mean content cosine.
func MMRSimilarity(metric, embedding string) (func(a, b Record) float64, error) {
	sim, err := mmr.SimilarityFor(mmr.Metric(metric), mmr.Embedding(embedding))
	if err != nil {
		return nil, err //nolint:wrapcheck // already a configuration error
	}
	return sim, nil
}

// BM25 creates a lexical scorer.
func BM25(cfg BM25Config) (Step, error) {
	st, err := bm25.New(cfg)
	if err != nil {
		return nil, err //nolint:wrapcheck // configuration errors are returned as-is
	}
	return st, nil
}

// Decay creates a time-decay scorer.
func Decay(cfg DecayConfig) (Step, error) {
	st, err := decay.New(cfg)
	if err != nil {
		return nil, err //nolint:wrapcheck // configuration errors are returned as-is
	}
	return st, nil
}

// Boost creates a scorer that reads Record.Boost.
func Boost(name string) (Step, error) {
	st, err := boost.New(name, boost.RecordBoost())
	if err != nil {
		return nil, err //nolint:wrapcheck // configuration errors are returned as-is
	}
	return st, nil
}

// Expression creates a boost scorer from a CEL expression over the candidate.
func Expression(name, expr string) (Step, error) {
	eval, err := boost.CompileCEL(expr)
	if err != nil {
		return nil, err //nolint:wrapcheck // already a configuration error
	}
	st, err := boost.New(name, eval)
	if err != nil {
		return nil, err //nolint:wrapcheck // configuration errors are returned as-is
	}
	return st, nil
}

// Prior creates a scorer that reads the upstream Record.Score.
func Prior(name string) Step { return prior.New(name) }

// Similarity creates an embedding and keyword similarity scorer.
func Similarity(cfg SimilarityConfig) (Step, error) {
	st, err := similarity.New(cfg)
	if err != nil {
		return nil, err //nolint:wrapcheck // configuration errors are returned as-is
	}
	return st, nil
}

// Remote creates a step that scores candidates with an out-of-process model.
func Remote(cfg RemoteConfig) (Step, error) {
	st, err := remote.New(cfg)
	if err != nil {
		return nil, err //nolint:wrapcheck // configuration errors are returned as-is
	}
	return st, nil
}

// Combine creates the weighted combiner that sets the final score.
func Combine(cfg CombineConfig) (Step, error) {
	st, err := combine.New(cfg)
	if err != nil {
		return nil, err //nolint:wrapcheck // configuration errors are returned as-is
	}
	return st, nil
}

// MMR creates the diversity re-ranker.
func MMR(cfg MMRConfig) (Step, error) {
	st, err := mmr.New(cfg)
	if err != nil {
		return nil, err //nolint:wrapcheck // configuration errors are returned as-is
	}
	return st, nil
}
