// Package rank runs a ranking pipeline over a candidate batch.
package rank

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"

	"github.com/kailas-cloud/rerank/internal/domain"
	"github.com/kailas-cloud/rerank/internal/domain/batch"
	"github.com/kailas-cloud/rerank/internal/domain/record"
	"github.com/kailas-cloud/rerank/internal/domain/stage"
	logpkg "github.com/kailas-cloud/rerank/internal/logger"
	"github.com/kailas-cloud/rerank/internal/metrics"
	"github.com/kailas-cloud/rerank/internal/tracing"
)

// errContract signals a step that broke the batch contract for its kind.
var errContract = errors.New("step broke batch contract")

// Ranked is one candidate of a ranking result.
type Ranked struct {
	Index      int                // position in the caller's input
	Input      record.Input       // candidate as supplied
	Record     record.Record      // normalized candidate
	FinalScore float64            // ranking key
	Scores     map[string]float64 // every score column, neutral entries as 0
}

// Option configures a Service.
type Option func(*Service)

// WithLogger sets the logger. Nil keeps the no-op logger.
func WithLogger(l *zap.Logger) Option {
	return func(s *Service) {
		if l != nil {
			s.logger = l
		}
	}
}

// Service executes an immutable list of steps. It is safe for concurrent use.
type Service struct {
	steps  []Step
	logger *zap.Logger
}

// New validates the step list and creates a pipeline.
func New(steps []Step, opts ...Option) (*Service, error) {
	if len(steps) == 0 {
		return nil, domain.Configurationf("pipeline needs at least one step")
	}

	names := make(map[string]bool, len(steps))
	written := make(map[string]bool)
	combined, unknownColumns := false, false
	for i, st := range steps {
		if st == nil {
			return nil, domain.Configurationf("step %d is nil", i)
		}
		name := st.Name()
		if strings.TrimSpace(name) == "" {
			return nil, domain.Configurationf("step %d has no name", i)
		}
		if names[name] {
			return nil, domain.Configurationf("duplicate step name %q", name)
		}
		names[name] = true

		if !st.Kind().IsValid() {
			return nil, domain.Configurationf("step %q has unknown kind %q", name, st.Kind())
		}
		if r, ok := st.(FinalScoreReader); ok && r.NeedsFinalScore() && !combined {
			return nil, domain.Configurationf("step %q reads the final score but no combiner runs before it", name)
		}
		if r, ok := st.(ColumnReader); ok && !unknownColumns {
			for _, col := range r.InputColumns() {
				if !written[col] {
					return nil, domain.Configurationf("step %q reads column %q that no earlier step writes", name, col)
				}
			}
		}
		switch st.Kind() {
		case stage.Combining:
			combined = true
		case stage.Scoring:
			w, ok := st.(ColumnWriter)
			if !ok {
				unknownColumns = true
				break
			}
			for _, col := range w.Columns() {
				written[col] = true
			}
		}
	}

	s := &Service{
		steps:  append([]Step(nil), steps...),
		logger: zap.NewNop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Steps returns the step names in execution order.
func (s *Service) Steps() []string {
	out := make([]string, len(s.steps))
	for i, st := range s.steps {
		out[i] = st.Name()
	}
	return out
}

// Rank scores and orders candidates against query. The result is sorted by
// final score descending, ties by input index, unless the last step that
// affected order was a reordering step, whose order is kept.
func (s *Service) Rank(ctx context.Context, query record.Input, candidates []record.Input) (_ []Ranked, err error) {
	start := time.Now()
	ctx, end := tracing.StartSpan(ctx, "rerank.rank", attribute.Int("candidates", len(candidates)))
	defer func() {
		end(err)
		metrics.RankRequestsTotal.WithLabelValues(statusLabel(err)).Inc()
		metrics.RankDuration.Observe(time.Since(start).Seconds())
	}()

	q, err := normalizeQuery(query)
	if err != nil {
		return nil, err
	}
	b, err := batch.New(candidates)
	if err != nil {
		return nil, err //nolint:wrapcheck // already an InvalidInput error
	}
	metrics.RankCandidates.Observe(float64(b.Len()))
	if b.Len() == 0 {
		return []Ranked{}, nil
	}

	combined, keepOrder := false, false
	for _, st := range s.steps {
		if err := s.runStep(ctx, st, q, b); err != nil {
			return nil, err
		}
		switch st.Kind() {
		case stage.Combining:
			combined, keepOrder = true, false
		case stage.Reordering:
			keepOrder = true
		}
	}

	if !combined {
		defaultFinal(b)
	}
	if !keepOrder {
		b.SortByFinal()
	}
	return results(b), nil
}

func (s *Service) runStep(ctx context.Context, st Step, q record.Record, b *batch.Batch) (err error) {
	name := st.Name()
	before := indices(b)
	start := time.Now()

	ctx, end := tracing.StartSpan(ctx, "rerank.step",
		attribute.String("step", name),
		attribute.String("kind", string(st.Kind())),
	)
	defer func() { end(err) }()

	log := logpkg.FromContextOr(ctx, s.logger)
	if err := st.Apply(ctx, q, b); err != nil {
		log.Debug("Step failed", zap.String("step", name), zap.Error(err))
		return fmt.Errorf("step %q: %w", name, err)
	}
	duration := time.Since(start)
	metrics.StepDuration.WithLabelValues(name).Observe(duration.Seconds())

	if err := verify(st.Kind(), before, b); err != nil {
		return fmt.Errorf("step %q: %w", name, err)
	}

	log.Debug("Step completed",
		zap.String("step", name),
		zap.String("kind", string(st.Kind())),
		zap.Int("candidates", b.Len()),
		zap.Duration("duration", duration),
	)
	return nil
}

func normalizeQuery(in record.Input) (record.Record, error) {
	switch in.Kind() {
	case record.PlainText, record.Structured:
	default:
		return record.Record{}, domain.InvalidInputf("query is required")
	}
	q := in.Normalize()
	if strings.TrimSpace(q.Text) == "" {
		return record.Record{}, domain.InvalidInputf("query text is required")
	}
	return q, nil
}

func indices(b *batch.Batch) []int {
	out := make([]int, b.Len())
	for i, c := range b.Candidates() {
		out[i] = c.Index()
	}
	return out
}

// verify checks the post-condition of a step: scoring and combining steps keep
// the batch as it was, combining steps also set every final score, and
// reordering steps leave a duplicate-free subset.
func verify(kind stage.Kind, before []int, b *batch.Batch) error {
	after := indices(b)
	if kind != stage.Reordering {
		if len(after) != len(before) {
			return fmt.Errorf("%w: %s step changed batch length from %d to %d", errContract, kind, len(before), len(after))
		}
		for i := range after {
			if after[i] != before[i] {
				return fmt.Errorf("%w: %s step reordered the batch", errContract, kind)
			}
		}
		if kind == stage.Combining {
			for _, c := range b.Candidates() {
				if _, ok := c.FinalScore(); !ok {
					return fmt.Errorf("%w: candidate %d has no final score", errContract, c.Index())
				}
			}
		}
		return nil
	}

	known := make(map[int]bool, len(before))
	for _, i := range before {
		known[i] = true
	}
	if len(after) > len(before) {
		return fmt.Errorf("%w: reordering grew the batch", errContract)
	}
	for _, i := range after {
		if !known[i] {
			return fmt.Errorf("%w: candidate %d duplicated or unknown", errContract, i)
		}
		delete(known, i)
	}
	return nil
}

// defaultFinal sets the final score of every candidate to its most recently
// written column. Neutral and missing read as 0.
func defaultFinal(b *batch.Batch) {
	for _, c := range b.Candidates() {
		cols := c.Columns()
		if len(cols) == 0 {
			c.SetFinal(0)
			continue
		}
		sc, _ := c.Score(cols[len(cols)-1])
		c.SetFinal(sc.Value)
	}
}

func results(b *batch.Batch) []Ranked {
	out := make([]Ranked, b.Len())
	for i, c := range b.Candidates() {
		final, _ := c.FinalScore()
		out[i] = Ranked{
			Index:      c.Index(),
			Input:      c.Input(),
			Record:     c.Record(),
			FinalScore: final,
			Scores:     c.Scores(),
		}
	}
	return out
}

func statusLabel(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, domain.ErrInvalidInput):
		return "invalid_input"
	case errors.Is(err, domain.ErrConfiguration):
		return "configuration"
	case errors.Is(err, domain.ErrRemoteScoring):
		return "remote_scoring"
	default:
		return "error"
	}
}
