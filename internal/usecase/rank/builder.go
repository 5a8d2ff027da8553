package rank

import (
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/kailas-cloud/rerank/internal/config"
	"github.com/kailas-cloud/rerank/internal/domain"
	"github.com/kailas-cloud/rerank/internal/step/bm25"
	"github.com/kailas-cloud/rerank/internal/step/boost"
	"github.com/kailas-cloud/rerank/internal/step/combine"
	"github.com/kailas-cloud/rerank/internal/step/decay"
	"github.com/kailas-cloud/rerank/internal/step/mmr"
	"github.com/kailas-cloud/rerank/internal/step/prior"
	"github.com/kailas-cloud/rerank/internal/step/remote"
	"github.com/kailas-cloud/rerank/internal/step/similarity"
)

// Collaborators are the external dependencies a configured pipeline may need.
type Collaborators struct {
	// Scorers maps a remote provider name (cross_encoder, cohere) to its client.
	Scorers map[string]domain.RemoteScorer
	// CachedScorers holds cache-backed variants used by steps with cache: true.
	// A missing entry falls back to the uncached scorer.
	CachedScorers map[string]domain.RemoteScorer
	Embedder      domain.QueryEmbedder
	Logger        *zap.Logger
	Now           func() time.Time
}

// Build constructs a pipeline from configuration. Any invalid step parameter
// is an ErrConfiguration.
func Build(cfg config.PipelineConfig, c Collaborators) (*Service, error) {
	steps := make([]Step, 0, len(cfg.Steps))
	for i, sc := range cfg.Steps {
		st, err := buildStep(sc, c)
		if err != nil {
			return nil, fmt.Errorf("pipeline step %d (%s): %w", i, sc.Kind, err)
		}
		steps = append(steps, st)
	}
	return New(steps, WithLogger(c.Logger))
}

func buildStep(sc config.StepConfig, c Collaborators) (Step, error) {
	switch sc.Kind {
	case config.StepBM25:
		return buildBM25(sc)
	case config.StepDecay:
		if sc.Decay == nil {
			return nil, domain.Configurationf("decay rate is required")
		}
		return decay.New(decay.Config{
			Name:             sc.Name,
			Rate:             sc.Decay.Rate,
			Unit:             sc.Decay.Unit,
			Curve:            decay.Curve(sc.Decay.Curve),
			RequireTimestamp: sc.Decay.RequireTimestamp,
			Now:              c.Now,
		})
	case config.StepBoost:
		if sc.Boost == nil || sc.Boost.Expression == "" {
			return boost.New(sc.Name, boost.RecordBoost())
		}
		eval, err := boost.CompileCEL(sc.Boost.Expression, boost.WithClock(c.Now))
		if err != nil {
			return nil, err
		}
		return boost.New(sc.Name, eval)
	case config.StepPrior:
		return prior.New(sc.Name), nil
	case config.StepSimilarity:
		cfg := similarity.Config{Name: sc.Name}
		if sc.Similarity != nil {
			cfg.Dimensions = sc.Similarity.Dimensions
			if sc.Similarity.EmbedQuery {
				if c.Embedder == nil {
					return nil, domain.Configurationf("query embedder is not configured")
				}
				cfg.Embedder = c.Embedder
			}
		}
		return similarity.New(cfg)
	case config.StepRemote:
		return buildRemote(sc, c)
	case config.StepCombine:
		return buildCombine(sc)
	case config.StepMMR:
		cfg := mmr.DefaultConfig()
		cfg.Name = sc.Name
		if m := sc.MMR; m != nil {
			if m.Lambda != nil {
				cfg.Lambda = *m.Lambda
			}
			cfg.K = m.K
			cfg.Relevance = m.Relevance
			cfg.Threshold = m.Threshold
			sim, err := mmr.SimilarityFor(mmr.Metric(m.Similarity), mmr.Embedding(m.Embedding))
			if err != nil {
				return nil, err //nolint:wrapcheck // already a configuration error
			}
			cfg.Similarity = sim
		}
		return mmr.New(cfg)
	default:
		return nil, domain.Configurationf("unknown step kind %q", sc.Kind)
	}
}

func buildBM25(sc config.StepConfig) (Step, error) {
	cfg := bm25.DefaultConfig()
	cfg.Name = sc.Name
	if p := sc.BM25; p != nil {
		if p.K1 != nil {
			cfg.K1 = *p.K1
		}
		if p.B != nil {
			cfg.B = *p.B
		}
		if p.IDFFloor != nil {
			cfg.IDFFloor = *p.IDFFloor
		}
		if p.MinN > 0 {
			cfg.MinN = p.MinN
		}
		if p.MaxN > 0 {
			cfg.MaxN = p.MaxN
		}
		if len(p.Fields) > 0 {
			cfg.Fields = make([]bm25.Field, len(p.Fields))
			for i, f := range p.Fields {
				cfg.Fields[i] = bm25.Field(f)
			}
		}
	}
	return bm25.New(cfg)
}

func buildRemote(sc config.StepConfig, c Collaborators) (Step, error) {
	if sc.Remote == nil {
		return nil, domain.Configurationf("remote block is required")
	}
	scorer, ok := c.Scorers[sc.Remote.Provider]
	if !ok || scorer == nil {
		return nil, domain.Configurationf("remote provider %q is not available", sc.Remote.Provider)
	}
	if sc.Remote.Cache {
		if cached, ok := c.CachedScorers[sc.Remote.Provider]; ok && cached != nil {
			scorer = cached
		}
	}
	return remote.New(remote.Config{
		Name:           sc.Name,
		Scorer:         scorer,
		BatchSize:      sc.Remote.BatchSize,
		MaxConcurrency: sc.Remote.MaxConcurrency,
		Timeout:        sc.Remote.Timeout,
		Policy:         remote.Policy(sc.Remote.Policy),
		Logger:         c.Logger,
	})
}

func buildCombine(sc config.StepConfig) (Step, error) {
	if sc.Combine == nil {
		return nil, domain.Configurationf("combine weights are required")
	}
	var norm map[string]combine.Mode
	if len(sc.Combine.Normalize) > 0 {
		norm = make(map[string]combine.Mode, len(sc.Combine.Normalize))
		for col, m := range sc.Combine.Normalize {
			norm[col] = combine.Mode(m)
		}
	}
	return combine.New(combine.Config{
		Name:      sc.Name,
		Strategy:  combine.Strategy(sc.Combine.Strategy),
		Weights:   sc.Combine.Weights,
		Normalize: norm,
		RRFK:      sc.Combine.RRFK,
	})
}
