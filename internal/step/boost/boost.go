// Package boost scores candidates with a caller-supplied pure function of the
// record: a CEL expression, the record's own boost field, or any Evaluator.
package boost

import (
	"context"
	"fmt"

	"github.com/kailas-cloud/rerank/internal/domain"
	"github.com/kailas-cloud/rerank/internal/domain/batch"
	"github.com/kailas-cloud/rerank/internal/domain/record"
	"github.com/kailas-cloud/rerank/internal/domain/stage"
)

// DefaultName is the step name used when none is configured.
const DefaultName = "boost"

// Evaluator computes a boost for a record. It must be pure and total; ok=false
// yields a neutral score.
type Evaluator interface {
	Evaluate(rec record.Record) (value float64, ok bool)
}

// EvaluatorFunc adapts a function to Evaluator.
type EvaluatorFunc func(rec record.Record) (float64, bool)

// Evaluate calls f.
func (f EvaluatorFunc) Evaluate(rec record.Record) (float64, bool) { return f(rec) }

// RecordBoost reads Record.Boost. Records without a boost score neutral.
func RecordBoost() Evaluator {
	return EvaluatorFunc(func(rec record.Record) (float64, bool) {
		if rec.Boost == nil {
			return 0, false
		}
		return *rec.Boost, true
	})
}

// Scorer writes a single column named after the step.
type Scorer struct {
	name string
	eval Evaluator
}

// New creates a boost step around eval.
func New(name string, eval Evaluator) (*Scorer, error) {
	if name == "" {
		name = DefaultName
	}
	if eval == nil {
		return nil, domain.Configurationf("boost %q: evaluator is required", name)
	}
	return &Scorer{name: name, eval: eval}, nil
}

// Name returns the step and column name.
func (s *Scorer) Name() string { return s.name }

// Columns returns the single column this step writes.
func (s *Scorer) Columns() []string { return []string{s.name} }

// Kind reports a scoring step.
func (s *Scorer) Kind() stage.Kind { return stage.Scoring }

// Apply evaluates every candidate.
func (s *Scorer) Apply(_ context.Context, _ record.Record, b *batch.Batch) error {
	for _, c := range b.Candidates() {
		score := batch.Neutral()
		if v, ok := s.eval.Evaluate(c.Record()); ok {
			score = batch.Value(v)
		}
		if err := c.SetScore(s.name, score); err != nil {
			return fmt.Errorf("boost %q: %w", s.name, err)
		}
	}
	return nil
}
