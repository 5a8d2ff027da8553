// Package mmr re-orders candidates with Maximal Marginal Relevance, trading
// relevance against redundancy with what has already been selected.
//
// Selection is greedy: at each round every remaining candidate is scored
// λ·rel − (1−λ)·max sim(c, s) over the selected set (0 while it is empty)
// and the best one is taken, ties by original index. The maximum similarity
// is maintained incrementally, so a run costs O(K·N) similarity evaluations.
package mmr

import (
	"context"
	"math"

	"github.com/kailas-cloud/rerank/internal/domain"
	"github.com/kailas-cloud/rerank/internal/domain/batch"
	"github.com/kailas-cloud/rerank/internal/domain/record"
	"github.com/kailas-cloud/rerank/internal/domain/stage"
	"github.com/kailas-cloud/rerank/internal/domain/vector"
)

// Defaults.
const (
	DefaultName   = "mmr"
	DefaultLambda = 0.5
)

// SimilarityFunc returns the similarity of two candidate records.
type SimilarityFunc func(a, b record.Record) float64

// ContentCosine is cosine similarity over ContentEmbedding. A missing or zero
// embedding on either side is 0.
func ContentCosine(a, b record.Record) float64 {
	v, _ := vector.Cosine(a.ContentEmbedding, b.ContentEmbedding)
	return v
}

// Metric names a built-in similarity over candidate embeddings.
type Metric string

// Euclidean maps L2 distance d to 1/(1+d), so identical vectors are 1.
const (
	Cosine    Metric = "cosine"
	Dot       Metric = "dot"
	Euclidean Metric = "euclidean"
)

// Embedding selects which record embedding a built-in similarity compares.
type Embedding string

const (
	ContentEmbedding Embedding = "content"
	TitleEmbedding   Embedding = "title"
)

// SimilarityFor returns the built-in similarity for metric over the chosen
// embedding. Empty values mean cosine over content. A missing embedding on
// either side is 0, as in ContentCosine.
func SimilarityFor(metric Metric, emb Embedding) (SimilarityFunc, error) {
	var pick func(record.Record) []float32
	switch emb {
	case "", ContentEmbedding:
		pick = func(r record.Record) []float32 { return r.ContentEmbedding }
	case TitleEmbedding:
		pick = func(r record.Record) []float32 { return r.TitleEmbedding }
	default:
		return nil, domain.Configurationf("mmr: unknown embedding %q", emb)
	}

	switch metric {
	case "", Cosine:
		if emb == "" || emb == ContentEmbedding {
			return ContentCosine, nil
		}
		return func(a, b record.Record) float64 {
			v, _ := vector.Cosine(pick(a), pick(b))
			return v
		}, nil
	case Dot:
		return func(a, b record.Record) float64 {
			v, _ := vector.Dot(pick(a), pick(b))
			return v
		}, nil
	case Euclidean:
		return func(a, b record.Record) float64 {
			d, ok := vector.Euclidean(pick(a), pick(b))
			if !ok {
				return 0
			}
			return 1 / (1 + d)
		}, nil
	default:
		return nil, domain.Configurationf("mmr: unknown similarity %q", metric)
	}
}

// Config configures an MMR step. Start from DefaultConfig and override.
type Config struct {
	Name   string
	Lambda float64
	// K is the number of candidates kept. K <= 0 or K >= N re-ranks everything.
	// A Threshold can stop selection earlier and keep fewer than K.
	K int
	// Relevance names the score column used as relevance. Empty means the
	// final score, which requires a combiner earlier in the pipeline.
	Relevance string
	// Threshold stops selection once the best MMR score drops below it; the
	// unselected tail is dropped. Nil disables it.
	Threshold  *float64
	Similarity SimilarityFunc
}

// DefaultConfig returns λ=0.5, full re-rank over final score with content cosine.
func DefaultConfig() Config {
	return Config{
		Name:       DefaultName,
		Lambda:     DefaultLambda,
		Similarity: ContentCosine,
	}
}

// Reranker is a reordering step.
type Reranker struct {
	name      string
	lambda    float64
	k         int
	relevance string
	threshold *float64
	sim       SimilarityFunc
}

// New validates cfg and creates an MMR step.
func New(cfg Config) (*Reranker, error) {
	if cfg.Name == "" {
		cfg.Name = DefaultName
	}
	if cfg.Lambda < 0 || cfg.Lambda > 1 || math.IsNaN(cfg.Lambda) {
		return nil, domain.Configurationf("mmr %q: lambda must be in [0,1], got %v", cfg.Name, cfg.Lambda)
	}
	if cfg.Threshold != nil && (math.IsNaN(*cfg.Threshold) || math.IsInf(*cfg.Threshold, 0)) {
		return nil, domain.Configurationf("mmr %q: threshold must be finite", cfg.Name)
	}
	if cfg.Similarity == nil {
		cfg.Similarity = ContentCosine
	}
	var threshold *float64
	if cfg.Threshold != nil {
		v := *cfg.Threshold
		threshold = &v
	}
	return &Reranker{
		name:      cfg.Name,
		lambda:    cfg.Lambda,
		k:         cfg.K,
		relevance: cfg.Relevance,
		threshold: threshold,
		sim:       cfg.Similarity,
	}, nil
}

// Name returns the step name.
func (r *Reranker) Name() string { return r.name }

// Kind reports a reordering step.
func (r *Reranker) Kind() stage.Kind { return stage.Reordering }

// NeedsFinalScore reports whether relevance is read from the final score.
func (r *Reranker) NeedsFinalScore() bool { return r.relevance == "" }

// InputColumns returns the relevance column, if one is configured.
func (r *Reranker) InputColumns() []string {
	if r.relevance == "" {
		return nil
	}
	return []string{r.relevance}
}

// Apply selects up to K candidates and reorders the batch to selection order.
func (r *Reranker) Apply(_ context.Context, _ record.Record, b *batch.Batch) error {
	n := b.Len()
	if n == 0 {
		return nil
	}
	k := r.k
	if k <= 0 || k > n {
		k = n
	}

	cands := b.Candidates()
	rel := r.relevances(b)
	recs := make([]record.Record, n)
	for i, c := range cands {
		recs[i] = c.Record()
	}

	maxSim := make([]float64, n)
	taken := make([]bool, n)
	order := make([]int, 0, k)
	for len(order) < k {
		best := -1
		var bestScore float64
		for i := 0; i < n; i++ {
			if taken[i] {
				continue
			}
			redundancy := 0.0
			if len(order) > 0 {
				redundancy = maxSim[i]
			}
			score := r.lambda*rel[i] - (1-r.lambda)*redundancy
			if best < 0 || score > bestScore ||
				(score == bestScore && cands[i].Index() < cands[best].Index()) {
				best, bestScore = i, score
			}
		}
		if r.threshold != nil && bestScore < *r.threshold {
			break
		}

		taken[best] = true
		first := len(order) == 0
		order = append(order, best)
		for i := 0; i < n; i++ {
			if taken[i] {
				continue
			}
			s := r.sim(recs[i], recs[best])
			if math.IsNaN(s) || math.IsInf(s, 0) {
				s = 0
			}
			if first || s > maxSim[i] {
				maxSim[i] = s
			}
		}
	}

	return b.Permute(order)
}

func (r *Reranker) relevances(b *batch.Batch) []float64 {
	out := make([]float64, b.Len())
	if r.relevance != "" {
		for i, s := range b.Column(r.relevance) {
			out[i] = s.Value
		}
		return out
	}
	for i, c := range b.Candidates() {
		out[i], _ = c.FinalScore()
	}
	return out
}
