// Package decay scores candidates by recency.
package decay

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/kailas-cloud/rerank/internal/domain"
	"github.com/kailas-cloud/rerank/internal/domain/batch"
	"github.com/kailas-cloud/rerank/internal/domain/record"
	"github.com/kailas-cloud/rerank/internal/domain/stage"
)

// Curve selects the decay function.
type Curve string

const (
	// Exponential is exp(-rate * age/unit).
	Exponential Curve = "exponential"
	// Gravity is 1 / (age/unit + 2)^rate, the classic news-ranking gravity.
	Gravity Curve = "gravity"
)

// Defaults.
const (
	DefaultName         = "decay"
	DefaultMissingScore = 1.0
)

// Config configures a decay step. Rate has no default.
type Config struct {
	Name  string
	Rate  float64
	Unit  time.Duration // 24h for exponential, 1h for gravity when zero
	Curve Curve         // Exponential when empty
	// RequireTimestamp turns a missing candidate timestamp into ErrInvalidInput.
	// Otherwise the candidate scores MissingScore, which means no penalty.
	RequireTimestamp bool
	// Now is the reference clock when the query carries no timestamp.
	Now func() time.Time
}

// Scorer writes a single column named after the step.
type Scorer struct {
	name     string
	rate     float64
	unit     time.Duration
	curve    Curve
	required bool
	now      func() time.Time
}

// New validates cfg and creates a decay step.
func New(cfg Config) (*Scorer, error) {
	if cfg.Name == "" {
		cfg.Name = DefaultName
	}
	if cfg.Curve == "" {
		cfg.Curve = Exponential
	}
	if cfg.Curve != Exponential && cfg.Curve != Gravity {
		return nil, domain.Configurationf("decay %q: unknown curve %q", cfg.Name, cfg.Curve)
	}
	if cfg.Rate <= 0 || math.IsNaN(cfg.Rate) || math.IsInf(cfg.Rate, 0) {
		return nil, domain.Configurationf("decay %q: rate must be a positive number, got %v", cfg.Name, cfg.Rate)
	}
	if cfg.Unit < 0 {
		return nil, domain.Configurationf("decay %q: negative unit %s", cfg.Name, cfg.Unit)
	}
	if cfg.Unit == 0 {
		cfg.Unit = 24 * time.Hour
		if cfg.Curve == Gravity {
			cfg.Unit = time.Hour
		}
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &Scorer{
		name:     cfg.Name,
		rate:     cfg.Rate,
		unit:     cfg.Unit,
		curve:    cfg.Curve,
		required: cfg.RequireTimestamp,
		now:      cfg.Now,
	}, nil
}

// Name returns the step and column name.
func (s *Scorer) Name() string { return s.name }

// Columns returns the single column this step writes.
func (s *Scorer) Columns() []string { return []string{s.name} }

// Kind reports a scoring step.
func (s *Scorer) Kind() stage.Kind { return stage.Scoring }

// Apply scores each candidate by the age of its timestamp relative to the
// query timestamp (or the clock). Future timestamps have age zero.
func (s *Scorer) Apply(_ context.Context, query record.Record, b *batch.Batch) error {
	ref := s.now()
	if query.Timestamp != nil {
		ref = *query.Timestamp
	}

	scores := make([]float64, b.Len())
	for i, c := range b.Candidates() {
		ts := c.Record().Timestamp
		if ts == nil {
			if s.required {
				return domain.InvalidInputf("decay %q: candidate %d has no timestamp", s.name, c.Index())
			}
			scores[i] = DefaultMissingScore
			continue
		}
		scores[i] = s.score(ref.Sub(*ts))
	}

	for i, c := range b.Candidates() {
		if err := c.SetScore(s.name, batch.Value(scores[i])); err != nil {
			return fmt.Errorf("decay %q: %w", s.name, err)
		}
	}
	return nil
}

func (s *Scorer) score(age time.Duration) float64 {
	if age < 0 {
		age = 0
	}
	units := float64(age) / float64(s.unit)
	if s.curve == Gravity {
		return 1 / math.Pow(units+2, s.rate)
	}
	return math.Exp(-s.rate * units)
}
