// Package similarity scores candidates by embedding cosine similarity and
// keyword overlap with the query.
package similarity

import (
	"context"
	"fmt"

	"github.com/kailas-cloud/rerank/internal/domain"
	"github.com/kailas-cloud/rerank/internal/domain/batch"
	"github.com/kailas-cloud/rerank/internal/domain/record"
	"github.com/kailas-cloud/rerank/internal/domain/stage"
	"github.com/kailas-cloud/rerank/internal/domain/vector"
)

// DefaultName is the step name used when none is configured.
const DefaultName = "similarity"

// Column suffixes.
const (
	TitleVector     = "title_vector"
	ContentVector   = "content_vector"
	TitleKeywords   = "title_keywords"
	ContentKeywords = "content_keywords"
)

// Config configures a similarity step.
type Config struct {
	Name string
	// Dimensions pins the expected embedding size. Zero accepts the size of
	// the query embedding.
	Dimensions int
	// Embedder embeds the query text when the query carries no embedding.
	Embedder domain.QueryEmbedder
}

// Scorer compares the query embedding with candidate title and content
// embeddings, and the query keywords with candidate title and content keywords.
type Scorer struct {
	name     string
	dims     int
	embedder domain.QueryEmbedder
}

// New validates cfg and creates a similarity step.
func New(cfg Config) (*Scorer, error) {
	if cfg.Name == "" {
		cfg.Name = DefaultName
	}
	if cfg.Dimensions < 0 {
		return nil, domain.Configurationf("similarity %q: negative dimensions %d", cfg.Name, cfg.Dimensions)
	}
	return &Scorer{name: cfg.Name, dims: cfg.Dimensions, embedder: cfg.Embedder}, nil
}

// Name returns the step name.
func (s *Scorer) Name() string { return s.name }

// Kind reports a scoring step.
func (s *Scorer) Kind() stage.Kind { return stage.Scoring }

// Column returns the full column name for a suffix.
func (s *Scorer) Column(suffix string) string { return s.name + "." + suffix }

// Columns returns every column this step writes.
func (s *Scorer) Columns() []string {
	return []string{
		s.Column(TitleVector),
		s.Column(ContentVector),
		s.Column(TitleKeywords),
		s.Column(ContentKeywords),
	}
}

// Apply writes four columns per candidate. Missing data on either side, or a
// zero vector, yields a neutral score. Any dimension mismatch fails the step
// before anything is written.
func (s *Scorer) Apply(ctx context.Context, query record.Record, b *batch.Batch) error {
	qvec := query.ContentEmbedding
	if len(qvec) == 0 && s.embedder != nil && b.Len() > 0 {
		v, err := s.embedder.Embed(ctx, query.Text)
		if err != nil {
			return domain.NewRemoteScoringError(s.name, fmt.Errorf("embed query: %w", err))
		}
		qvec = v
	}

	if err := s.checkDimensions(qvec, b); err != nil {
		return err
	}

	type row struct{ titleVec, contentVec, titleKw, contentKw batch.Score }
	rows := make([]row, b.Len())
	for i, c := range b.Candidates() {
		rec := c.Record()
		rows[i] = row{
			titleVec:   cosine(qvec, rec.TitleEmbedding),
			contentVec: cosine(qvec, rec.ContentEmbedding),
			titleKw:    jaccard(query.ContentKeywords, rec.TitleKeywords),
			contentKw:  jaccard(query.ContentKeywords, rec.ContentKeywords),
		}
	}

	for i, c := range b.Candidates() {
		r := rows[i]
		for _, w := range []struct {
			suffix string
			score  batch.Score
		}{
			{TitleVector, r.titleVec},
			{ContentVector, r.contentVec},
			{TitleKeywords, r.titleKw},
			{ContentKeywords, r.contentKw},
		} {
			if err := c.SetScore(s.Column(w.suffix), w.score); err != nil {
				return fmt.Errorf("similarity %q: %w", s.name, err)
			}
		}
	}
	return nil
}

func (s *Scorer) checkDimensions(qvec []float32, b *batch.Batch) error {
	dims := s.dims
	if dims > 0 && len(qvec) > 0 && len(qvec) != dims {
		return domain.Configurationf("similarity %q: query embedding has %d dimensions, want %d", s.name, len(qvec), dims)
	}
	if dims == 0 {
		dims = len(qvec)
	}
	if dims == 0 {
		return nil
	}
	for _, c := range b.Candidates() {
		rec := c.Record()
		if n := len(rec.TitleEmbedding); n > 0 && n != dims {
			return domain.Configurationf(
				"similarity %q: candidate %d title embedding has %d dimensions, want %d", s.name, c.Index(), n, dims,
			)
		}
		if n := len(rec.ContentEmbedding); n > 0 && n != dims {
			return domain.Configurationf(
				"similarity %q: candidate %d content embedding has %d dimensions, want %d", s.name, c.Index(), n, dims,
			)
		}
	}
	return nil
}

func cosine(a, b []float32) batch.Score {
	v, ok := vector.Cosine(a, b)
	if !ok {
		return batch.Neutral()
	}
	return batch.Value(v)
}

func jaccard(a, b []string) batch.Score {
	v, ok := vector.Jaccard(a, b)
	if !ok {
		return batch.Neutral()
	}
	return batch.Value(v)
}
