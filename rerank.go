package rerank

import (
	"context"
	"fmt"

	"gopkg.in/yaml.v3"

	"github.com/kailas-cloud/rerank/internal/domain/record"
	rankuc "github.com/kailas-cloud/rerank/internal/usecase/rank"
)

// Ranker runs an immutable pipeline. It is safe for concurrent use.
type Ranker struct {
	svc *rankuc.Service
}

// New creates a Ranker from explicit steps, executed in order.
func New(steps ...Step) (*Ranker, error) {
	svc, err := rankuc.New(steps)
	if err != nil {
		return nil, fmt.Errorf("rerank: %w", err)
	}
	return &Ranker{svc: svc}, nil
}

// Build creates a Ranker from a declarative pipeline. Remote and similarity
// steps resolve their collaborators from opts.
func Build(cfg PipelineConfig, opts ...Option) (*Ranker, error) {
	o := &options{scorers: make(map[string]RemoteScorer)}
	for _, opt := range opts {
		opt.apply(o)
	}
	if o.err != nil {
		return nil, fmt.Errorf("rerank: %w", o.err)
	}

	svc, err := rankuc.Build(cfg, rankuc.Collaborators{
		Scorers:  o.scorers,
		Embedder: o.embedder,
		Logger:   o.logger,
		Now:      o.now,
	})
	if err != nil {
		return nil, fmt.Errorf("rerank: %w", err)
	}
	return &Ranker{svc: svc}, nil
}

// ParsePipeline decodes a YAML document of the form
//
//	steps:
//	  - kind: bm25
//	  - kind: combine
//	    combine: {weights: {bm25.content: 1}}
//
// Step names default to their kind.
func ParsePipeline(data []byte) (PipelineConfig, error) {
	var cfg PipelineConfig
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return PipelineConfig{}, fmt.Errorf("rerank: parse pipeline: %w", err)
	}
	for i := range cfg.Steps {
		if cfg.Steps[i].Name == "" {
			cfg.Steps[i].Name = cfg.Steps[i].Kind
		}
	}
	return cfg, nil
}

// Steps returns the step names in execution order.
func (r *Ranker) Steps() []string { return r.svc.Steps() }

// Rank orders mixed plain-text and structured candidates.
func (r *Ranker) Rank(ctx context.Context, query Input, candidates []Input) ([]Result, error) {
	res, err := r.svc.Rank(ctx, query, candidates)
	if err != nil {
		return nil, fmt.Errorf("rerank: %w", err)
	}
	return res, nil
}

// RankTexts orders plain-text candidates.
func (r *Ranker) RankTexts(ctx context.Context, query string, candidates []string) ([]Result, error) {
	return r.Rank(ctx, record.Text(query), record.Texts(candidates...))
}

// RankRecords orders structured candidates.
func (r *Ranker) RankRecords(ctx context.Context, query Record, candidates []Record) ([]Result, error) {
	return r.Rank(ctx, record.FromRecord(query), record.Records(candidates...))
}
