// Package remote scores candidates with an external model (cross-encoder,
// hosted rerank API) behind the domain.RemoteScorer contract.
package remote

import (
	"context"
	"errors"
	"fmt"
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

// Policy decides what a failed remote call does to the pipeline.
type Policy string

const (
	// FailFast aborts the rank call with a RemoteScoringError.
	FailFast Policy = "fail_fast"
	// NeutralFallback scores the affected candidates neutral and continues.
	// Must be opted into explicitly.
	NeutralFallback Policy = "neutral_fallback"
)

// Defaults.
const (
	DefaultName           = "remote"
	DefaultMaxConcurrency = 4
)

var errLengthMismatch = errors.New("score count does not match document count")

// Config configures a remote step.
type Config struct {
	Name   string
	Scorer domain.RemoteScorer
	// BatchSize is the number of documents per request; 0 sends everything in one.
	BatchSize int
	// MaxConcurrency bounds the requests in flight.
	MaxConcurrency int
	// Timeout bounds the whole step, across every chunk. 0 means no bound
	// beyond the caller's context.
	Timeout time.Duration
	Policy  Policy
	Logger  *zap.Logger
}

// Scorer dispatches candidate texts to the remote collaborator and collects
// the responses, bounded by the step timeout, before writing its column.
type Scorer struct {
	name        string
	client      domain.RemoteScorer
	batchSize   int
	concurrency int
	timeout     time.Duration
	policy      Policy
	logger      *zap.Logger
}

// New validates cfg and creates a remote step.
func New(cfg Config) (*Scorer, error) {
	if cfg.Name == "" {
		cfg.Name = DefaultName
	}
	if cfg.Scorer == nil {
		return nil, domain.Configurationf("remote %q: scorer is required", cfg.Name)
	}
	if cfg.BatchSize < 0 {
		return nil, domain.Configurationf("remote %q: negative batch size %d", cfg.Name, cfg.BatchSize)
	}
	if cfg.MaxConcurrency < 0 {
		return nil, domain.Configurationf("remote %q: negative concurrency %d", cfg.Name, cfg.MaxConcurrency)
	}
	if cfg.MaxConcurrency == 0 {
		cfg.MaxConcurrency = DefaultMaxConcurrency
	}
	if cfg.Timeout < 0 {
		return nil, domain.Configurationf("remote %q: negative timeout %s", cfg.Name, cfg.Timeout)
	}
	if cfg.Policy == "" {
		cfg.Policy = FailFast
	}
	if cfg.Policy != FailFast && cfg.Policy != NeutralFallback {
		return nil, domain.Configurationf("remote %q: unknown failure policy %q", cfg.Name, cfg.Policy)
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	return &Scorer{
		name:        cfg.Name,
		client:      cfg.Scorer,
		batchSize:   cfg.BatchSize,
		concurrency: cfg.MaxConcurrency,
		timeout:     cfg.Timeout,
		policy:      cfg.Policy,
		logger:      cfg.Logger,
	}, nil
}

// Name returns the step and column name.
func (s *Scorer) Name() string { return s.name }

// Columns returns the single column this step writes.
func (s *Scorer) Columns() []string { return []string{s.name} }

// Kind reports a scoring step.
func (s *Scorer) Kind() stage.Kind { return stage.Scoring }

// Policy returns the configured failure policy.
func (s *Scorer) Policy() Policy { return s.policy }

type chunk struct{ lo, hi int }

func (s *Scorer) chunks(n int) []chunk {
	size := s.batchSize
	if size == 0 || size > n {
		size = n
	}
	out := make([]chunk, 0, (n+size-1)/size)
	for lo := 0; lo < n; lo += size {
		out = append(out, chunk{lo: lo, hi: min(lo+size, n)})
	}
	return out
}

// Apply scores every candidate. Non-finite remote scores are stored neutral.
func (s *Scorer) Apply(ctx context.Context, query record.Record, b *batch.Batch) (err error) {
	n := b.Len()
	if n == 0 {
		return nil
	}

	ctx, end := tracing.StartSpan(ctx, "rerank.remote",
		attribute.String("step", s.name),
		attribute.Int("candidates", n),
	)
	defer func() { end(err) }()

	if s.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}

	docs := make([]string, n)
	for i, c := range b.Candidates() {
		docs[i] = c.Record().Text
	}

	results := make([]batch.Score, n)
	chunks := s.chunks(n)

	if s.policy == FailFast {
		if err := s.scoreFailFast(ctx, query.Text, docs, chunks, results); err != nil {
			return domain.NewRemoteScoringError(s.name, err)
		}
	} else {
		s.scoreWithFallback(ctx, query.Text, docs, chunks, results)
	}

	for i, c := range b.Candidates() {
		if err := c.SetScore(s.name, results[i]); err != nil {
			return fmt.Errorf("remote %q: %w", s.name, err)
		}
	}
	return nil
}

// chunkResult carries one collaborator response back to the collector.
type chunkResult struct {
	idx    int
	scores []float64
	err    error
}

func (s *Scorer) scoreFailFast(ctx context.Context, query string, docs []string, chunks []chunk, out []batch.Score) error {
	errs := s.dispatch(ctx, query, docs, chunks, out, true)
	for _, err := range errs {
		if err != nil {
			return err
		}
	}
	return nil
}

func (s *Scorer) scoreWithFallback(ctx context.Context, query string, docs []string, chunks []chunk, out []batch.Score) {
	errs := s.dispatch(ctx, query, docs, chunks, out, false)
	for i, err := range errs {
		if err == nil {
			continue
		}
		ch := chunks[i]
		for j := ch.lo; j < ch.hi; j++ {
			out[j] = batch.Neutral()
		}
		metrics.RemoteFallbackTotal.WithLabelValues(s.name).Add(float64(ch.hi - ch.lo))
		logpkg.FromContextOr(ctx, s.logger).Warn("Remote scoring failed, using neutral scores",
			zap.String("step", s.name),
			zap.Int("chunk_offset", ch.lo),
			zap.Int("chunk_size", ch.hi-ch.lo),
			zap.Error(err),
		)
	}
}

// dispatch runs at most s.concurrency collaborator calls at once and returns
// one error per chunk. It returns as soon as ctx is done, whether or not the
// collaborator honours ctx: chunks without a response by then get ctx.Err().
// Only the collector goroutine writes to out, so responses that arrive after
// dispatch returned are dropped. With failFast the first failure cancels the
// remaining calls and is reported in the failing chunk's slot.
func (s *Scorer) dispatch(
	ctx context.Context,
	query string,
	docs []string,
	chunks []chunk,
	out []batch.Score,
	failFast bool,
) []error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	errs := make([]error, len(chunks))
	received := make([]bool, len(chunks))
	results := make(chan chunkResult, len(chunks))
	sem := make(chan struct{}, s.concurrency)

	go func() {
		for i, ch := range chunks {
			select {
			case sem <- struct{}{}:
			case <-ctx.Done():
				return
			}
			if ctx.Err() != nil {
				<-sem
				return
			}
			go func() {
				defer func() { <-sem }()
				scores, err := s.client.Score(ctx, query, docs[ch.lo:ch.hi])
				results <- chunkResult{idx: i, scores: scores, err: err}
			}()
		}
	}()

	// expire marks every chunk still waiting for a response.
	expire := func(err error) []error {
		for i := range chunks {
			if !received[i] {
				errs[i] = fmt.Errorf("chunk %d..%d: %w", chunks[i].lo, chunks[i].hi, err)
			}
		}
		return errs
	}

	for pending := len(chunks); pending > 0; pending-- {
		select {
		case r := <-results:
			if err := ctx.Err(); err != nil {
				return expire(err)
			}
			received[r.idx] = true
			errs[r.idx] = accept(chunks[r.idx], r, out)
			if errs[r.idx] != nil && failFast {
				return errs
			}
		case <-ctx.Done():
			return expire(ctx.Err())
		}
	}
	return errs
}

// accept validates one response and writes it into out[ch.lo:ch.hi]; chunks
// never overlap.
func accept(ch chunk, r chunkResult, out []batch.Score) error {
	if r.err != nil {
		return fmt.Errorf("chunk %d..%d: %w", ch.lo, ch.hi, r.err)
	}
	if len(r.scores) != ch.hi-ch.lo {
		return fmt.Errorf("chunk %d..%d: %w: got %d, want %d", ch.lo, ch.hi, errLengthMismatch, len(r.scores), ch.hi-ch.lo)
	}
	for i, v := range r.scores {
		out[ch.lo+i] = batch.Value(v)
	}
	return nil
}
