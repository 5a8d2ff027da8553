// Package combine merges score columns into the final ranking score.
package combine

import (
	"context"
	"math"
	"sort"

	"github.com/kailas-cloud/rerank/internal/domain"
	"github.com/kailas-cloud/rerank/internal/domain/batch"
	"github.com/kailas-cloud/rerank/internal/domain/record"
	"github.com/kailas-cloud/rerank/internal/domain/stage"
)

// Strategy selects how weighted columns are merged.
type Strategy string

const (
	// WeightedSum is Σ w·norm(s).
	WeightedSum Strategy = "weighted_sum"
	// WeightedProduct is Π max(norm(s),0)^w. Neutral entries are factor 1.
	WeightedProduct Strategy = "weighted_product"
	// RRF is reciprocal rank fusion, Σ w/(k+rank). Neutral entries are unranked.
	RRF Strategy = "rrf"
)

// Mode is a per-column normalization computed over the current batch.
type Mode string

const (
	None   Mode = "none"
	MinMax Mode = "minmax"
	ZScore Mode = "zscore"
)

// Defaults.
const (
	DefaultName = "combine"
	DefaultRRFK = 60.0
)

// Config configures a combiner. Columns with zero or absent weight are ignored.
type Config struct {
	Name      string
	Strategy  Strategy
	Weights   map[string]float64
	Normalize map[string]Mode
	RRFK      float64
}

type term struct {
	column string
	weight float64
	mode   Mode
}

// Combiner sets every candidate's final score.
type Combiner struct {
	name     string
	strategy Strategy
	terms    []term // sorted by column
	rrfK     float64
}

// New validates cfg and creates a combiner.
func New(cfg Config) (*Combiner, error) {
	if cfg.Name == "" {
		cfg.Name = DefaultName
	}
	if cfg.Strategy == "" {
		cfg.Strategy = WeightedSum
	}
	switch cfg.Strategy {
	case WeightedSum, WeightedProduct, RRF:
	default:
		return nil, domain.Configurationf("combiner %q: unknown strategy %q", cfg.Name, cfg.Strategy)
	}
	if cfg.RRFK == 0 {
		cfg.RRFK = DefaultRRFK
	}
	if cfg.RRFK < 0 || math.IsNaN(cfg.RRFK) || math.IsInf(cfg.RRFK, 0) {
		return nil, domain.Configurationf("combiner %q: rrf k must be positive, got %v", cfg.Name, cfg.RRFK)
	}
	if len(cfg.Weights) == 0 {
		return nil, domain.Configurationf("combiner %q: at least one weight is required", cfg.Name)
	}

	terms := make([]term, 0, len(cfg.Weights))
	for col, w := range cfg.Weights {
		if col == "" {
			return nil, domain.Configurationf("combiner %q: empty column name", cfg.Name)
		}
		if w < 0 || math.IsNaN(w) || math.IsInf(w, 0) {
			return nil, domain.Configurationf("combiner %q: weight for %q must be a non-negative number, got %v", cfg.Name, col, w)
		}
		if w == 0 {
			continue
		}
		terms = append(terms, term{column: col, weight: w, mode: None})
	}
	for col, m := range cfg.Normalize {
		switch m {
		case "", None, MinMax, ZScore:
		default:
			return nil, domain.Configurationf("combiner %q: unknown normalization %q for %q", cfg.Name, m, col)
		}
		if _, ok := cfg.Weights[col]; !ok {
			return nil, domain.Configurationf("combiner %q: normalization for unweighted column %q", cfg.Name, col)
		}
	}
	if len(terms) == 0 {
		return nil, domain.Configurationf("combiner %q: all weights are zero", cfg.Name)
	}
	sort.Slice(terms, func(i, j int) bool { return terms[i].column < terms[j].column })
	for i := range terms {
		if m := cfg.Normalize[terms[i].column]; m != "" {
			terms[i].mode = m
		}
	}

	return &Combiner{name: cfg.Name, strategy: cfg.Strategy, terms: terms, rrfK: cfg.RRFK}, nil
}

// Name returns the step name.
func (c *Combiner) Name() string { return c.name }

// Kind reports a combining step.
func (c *Combiner) Kind() stage.Kind { return stage.Combining }

// InputColumns returns the weighted columns in summation order.
func (c *Combiner) InputColumns() []string {
	out := make([]string, len(c.terms))
	for i, t := range c.terms {
		out[i] = t.column
	}
	return out
}

// Apply computes the final score of every candidate. A column missing from
// the batch reads as neutral.
func (c *Combiner) Apply(_ context.Context, _ record.Record, b *batch.Batch) error {
	n := b.Len()
	if n == 0 {
		return nil
	}

	final := make([]float64, n)
	if c.strategy == WeightedProduct {
		for i := range final {
			final[i] = 1
		}
	}

	for _, t := range c.terms {
		col := b.Column(t.column)
		switch c.strategy {
		case RRF:
			for i, r := range ranks(b, col) {
				if r > 0 {
					final[i] += t.weight / (c.rrfK + float64(r))
				}
			}
		case WeightedProduct:
			norm := normalize(col, t.mode)
			for i, s := range col {
				if s.Neutral {
					continue
				}
				final[i] *= math.Pow(math.Max(norm[i], 0), t.weight)
			}
		default:
			norm := normalize(col, t.mode)
			for i := range col {
				final[i] += t.weight * norm[i]
			}
		}
	}

	for i, cand := range b.Candidates() {
		cand.SetFinal(final[i])
	}
	return nil
}

// normalize maps a column through mode. Statistics exclude neutral entries,
// which normalize to 0. A degenerate column (zero range or deviation) is 0.
func normalize(col []batch.Score, mode Mode) []float64 {
	out := make([]float64, len(col))
	var values []float64
	for _, s := range col {
		if !s.Neutral {
			values = append(values, s.Value)
		}
	}
	if len(values) == 0 {
		return out
	}

	switch mode {
	case MinMax:
		lo, hi := values[0], values[0]
		for _, v := range values[1:] {
			lo = math.Min(lo, v)
			hi = math.Max(hi, v)
		}
		span := hi - lo
		for i, s := range col {
			if !s.Neutral && span > 0 {
				out[i] = (s.Value - lo) / span
			}
		}
	case ZScore:
		var sum float64
		for _, v := range values {
			sum += v
		}
		mean := sum / float64(len(values))
		var sq float64
		for _, v := range values {
			sq += (v - mean) * (v - mean)
		}
		std := math.Sqrt(sq / float64(len(values)))
		for i, s := range col {
			if !s.Neutral && std > 0 {
				out[i] = (s.Value - mean) / std
			}
		}
	default:
		for i, s := range col {
			if !s.Neutral {
				out[i] = s.Value
			}
		}
	}
	return out
}

// ranks returns the 1-based descending rank of each non-neutral entry, ties
// broken by original index. Neutral entries get 0.
func ranks(b *batch.Batch, col []batch.Score) []int {
	pos := make([]int, 0, len(col))
	for i, s := range col {
		if !s.Neutral {
			pos = append(pos, i)
		}
	}
	sort.SliceStable(pos, func(x, y int) bool {
		a, c := col[pos[x]].Value, col[pos[y]].Value
		if a != c {
			return a > c
		}
		return b.At(pos[x]).Index() < b.At(pos[y]).Index()
	})
	out := make([]int, len(col))
	for r, i := range pos {
		out[i] = r + 1
	}
	return out
}
