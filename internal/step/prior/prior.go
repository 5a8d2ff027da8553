// Package prior exposes the upstream retrieval score carried on each record as
// a score column, so it can be weighted alongside the other signals.
package prior

import (
	"context"
	"fmt"

	"github.com/kailas-cloud/rerank/internal/domain/batch"
	"github.com/kailas-cloud/rerank/internal/domain/record"
	"github.com/kailas-cloud/rerank/internal/domain/stage"
)

// DefaultName is the step name used when none is configured.
const DefaultName = "prior"

// Scorer copies Record.Score into its column. Missing scores are neutral.
type Scorer struct {
	name string
}

// New creates a prior step.
func New(name string) *Scorer {
	if name == "" {
		name = DefaultName
	}
	return &Scorer{name: name}
}

// Name returns the step and column name.
func (s *Scorer) Name() string { return s.name }

// Columns returns the single column this step writes.
func (s *Scorer) Columns() []string { return []string{s.name} }

// Kind reports a scoring step.
func (s *Scorer) Kind() stage.Kind { return stage.Scoring }

// Apply writes the retrieval score of every candidate.
func (s *Scorer) Apply(_ context.Context, _ record.Record, b *batch.Batch) error {
	for _, c := range b.Candidates() {
		score := batch.Neutral()
		if v := c.Record().Score; v != nil {
			score = batch.Value(*v)
		}
		if err := c.SetScore(s.name, score); err != nil {
			return fmt.Errorf("prior %q: %w", s.name, err)
		}
	}
	return nil
}
