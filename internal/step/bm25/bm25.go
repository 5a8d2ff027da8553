// Package bm25 scores candidates against the query with Okapi BM25 over word
// n-grams. There is no external corpus: document frequencies and the average
// document length come from the batch being ranked.
package bm25

import (
	"context"
	"fmt"
	"math"
	"sort"

	"github.com/kailas-cloud/rerank/internal/domain"
	"github.com/kailas-cloud/rerank/internal/domain/batch"
	"github.com/kailas-cloud/rerank/internal/domain/record"
	"github.com/kailas-cloud/rerank/internal/domain/stage"
)

// Field selects which part of a record is scored.
type Field string

const (
	// Title scores Record.Title.
	Title Field = "title"
	// Content scores Record.Text.
	Content Field = "content"
)

// Defaults.
const (
	DefaultName     = "bm25"
	DefaultK1       = 1.2
	DefaultB        = 0.75
	DefaultIDFFloor = 0.01
	DefaultMinN     = 1
	DefaultMaxN     = 2
	maxNGram        = 5
)

// Config holds BM25 parameters. Start from DefaultConfig and override.
type Config struct {
	Name     string
	K1       float64
	B        float64
	IDFFloor float64 // lower bound for IDF, keeps terms present in every document positive
	MinN     int
	MaxN     int
	Fields   []Field
}

// DefaultConfig returns k1=1.2, b=0.75, unigrams+bigrams over title and content.
func DefaultConfig() Config {
	return Config{
		Name:     DefaultName,
		K1:       DefaultK1,
		B:        DefaultB,
		IDFFloor: DefaultIDFFloor,
		MinN:     DefaultMinN,
		MaxN:     DefaultMaxN,
		Fields:   []Field{Title, Content},
	}
}

// Scorer writes one column per field: "<name>.title" and "<name>.content".
// A candidate without the field (or with no tokens in it) gets a neutral score.
type Scorer struct {
	cfg Config
}

// New validates cfg and creates a scorer.
func New(cfg Config) (*Scorer, error) {
	if cfg.Name == "" {
		cfg.Name = DefaultName
	}
	if cfg.K1 < 0 || math.IsNaN(cfg.K1) || math.IsInf(cfg.K1, 0) {
		return nil, domain.Configurationf("bm25 %q: k1 must be a non-negative number, got %v", cfg.Name, cfg.K1)
	}
	if cfg.B < 0 || cfg.B > 1 || math.IsNaN(cfg.B) {
		return nil, domain.Configurationf("bm25 %q: b must be in [0,1], got %v", cfg.Name, cfg.B)
	}
	if cfg.IDFFloor <= 0 || math.IsInf(cfg.IDFFloor, 0) || math.IsNaN(cfg.IDFFloor) {
		return nil, domain.Configurationf("bm25 %q: idf floor must be positive, got %v", cfg.Name, cfg.IDFFloor)
	}
	if cfg.MinN < 1 || cfg.MaxN < cfg.MinN || cfg.MaxN > maxNGram {
		return nil, domain.Configurationf(
			"bm25 %q: n-gram range must satisfy 1 <= min <= max <= %d, got %d..%d",
			cfg.Name, maxNGram, cfg.MinN, cfg.MaxN,
		)
	}
	if len(cfg.Fields) == 0 {
		cfg.Fields = []Field{Title, Content}
	}
	seen := make(map[Field]bool, len(cfg.Fields))
	for _, f := range cfg.Fields {
		if f != Title && f != Content {
			return nil, domain.Configurationf("bm25 %q: unknown field %q", cfg.Name, f)
		}
		if seen[f] {
			return nil, domain.Configurationf("bm25 %q: field %q listed twice", cfg.Name, f)
		}
		seen[f] = true
	}
	fields := make([]Field, len(cfg.Fields))
	copy(fields, cfg.Fields)
	cfg.Fields = fields
	return &Scorer{cfg: cfg}, nil
}

// Name returns the step name.
func (s *Scorer) Name() string { return s.cfg.Name }

// Kind reports a scoring step.
func (s *Scorer) Kind() stage.Kind { return stage.Scoring }

// Column returns the column name written for field.
func (s *Scorer) Column(f Field) string { return s.cfg.Name + "." + string(f) }

// Columns returns every column this step writes.
func (s *Scorer) Columns() []string {
	out := make([]string, len(s.cfg.Fields))
	for i, f := range s.cfg.Fields {
		out[i] = s.Column(f)
	}
	return out
}

// Apply scores every candidate for every configured field.
func (s *Scorer) Apply(_ context.Context, query record.Record, b *batch.Batch) error {
	queryTerms := uniqueSorted(ngrams(tokenize(query.Text), s.cfg.MinN, s.cfg.MaxN))

	columns := make([][]batch.Score, len(s.cfg.Fields))
	for fi, f := range s.cfg.Fields {
		columns[fi] = s.scoreField(queryTerms, b, f)
	}

	for fi, f := range s.cfg.Fields {
		name := s.Column(f)
		for i, c := range b.Candidates() {
			if err := c.SetScore(name, columns[fi][i]); err != nil {
				return fmt.Errorf("bm25 %q: %w", s.cfg.Name, err)
			}
		}
	}
	return nil
}

func (s *Scorer) scoreField(queryTerms []string, b *batch.Batch, f Field) []batch.Score {
	n := b.Len()
	out := make([]batch.Score, n)
	docs := make([]map[string]int, n)
	lengths := make([]int, n)

	present := 0
	totalLen := 0
	df := make(map[string]int, len(queryTerms))
	for i, c := range b.Candidates() {
		rec := c.Record()
		text := rec.Text
		if f == Title {
			text = rec.Title
		}
		terms := ngrams(tokenize(text), s.cfg.MinN, s.cfg.MaxN)
		if len(terms) == 0 {
			continue
		}
		docs[i] = termFreq(terms)
		lengths[i] = len(terms)
		present++
		totalLen += len(terms)
		for _, t := range queryTerms {
			if docs[i][t] > 0 {
				df[t]++
			}
		}
	}

	if present == 0 || len(queryTerms) == 0 {
		for i := range out {
			out[i] = batch.Neutral()
		}
		return out
	}

	avgLen := float64(totalLen) / float64(present)
	idf := make(map[string]float64, len(queryTerms))
	for _, t := range queryTerms {
		idf[t] = s.idf(present, df[t])
	}

	k1, bb := s.cfg.K1, s.cfg.B
	for i := range out {
		if docs[i] == nil {
			out[i] = batch.Neutral()
			continue
		}
		norm := k1 * (1 - bb + bb*float64(lengths[i])/avgLen)
		var score float64
		for _, t := range queryTerms {
			tf := float64(docs[i][t])
			if tf == 0 {
				continue
			}
			score += idf[t] * tf * (k1 + 1) / (tf + norm)
		}
		out[i] = batch.Value(score)
	}
	return out
}

// idf is the Robertson-Sparck Jones weight clamped at the configured floor.
func (s *Scorer) idf(n, df int) float64 {
	v := math.Log((float64(n-df) + 0.5) / (float64(df) + 0.5))
	if math.IsNaN(v) || v < s.cfg.IDFFloor {
		return s.cfg.IDFFloor
	}
	return v
}

func uniqueSorted(terms []string) []string {
	seen := make(map[string]struct{}, len(terms))
	out := make([]string, 0, len(terms))
	for _, t := range terms {
		if _, ok := seen[t]; ok {
			continue
		}
		seen[t] = struct{}{}
		out = append(out, t)
	}
	sort.Strings(out)
	return out
}
