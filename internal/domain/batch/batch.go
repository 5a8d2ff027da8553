// Package batch holds the per-invocation working set of a ranking pipeline.
package batch

import (
	"errors"
	"fmt"
	"math"
	"sort"
	"strings"

	"github.com/kailas-cloud/rerank/internal/domain"
	"github.com/kailas-cloud/rerank/internal/domain/record"
)

var (
	// ErrScoreExists signals an attempt to overwrite an existing score column.
	ErrScoreExists = errors.New("score already recorded")
	// ErrBadPermutation signals a reorder that would drop, duplicate or fabricate candidates.
	ErrBadPermutation = errors.New("invalid permutation")
)

// Score is one step's value for one candidate. Neutral scores carry no
// information and contribute zero influence to the combiner.
type Score struct {
	Value   float64
	Neutral bool
}

// Neutral returns the neutral sentinel.
func Neutral() Score { return Score{Neutral: true} }

// Value wraps v. Non-finite values collapse to Neutral.
func Value(v float64) Score {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return Neutral()
	}
	return Score{Value: v}
}

// Candidate is a scored candidate: the caller's input, its normalized record,
// an append-only score map and the running final score.
type Candidate struct {
	index    int
	input    record.Input
	rec      record.Record
	scores   map[string]Score
	columns  []string // write order
	final    float64
	hasFinal bool
}

// Index returns the candidate's position in the caller's input.
func (c *Candidate) Index() int { return c.index }

// Input returns the candidate exactly as supplied.
func (c *Candidate) Input() record.Input { return c.input }

// Record returns the normalized record.
func (c *Candidate) Record() record.Record { return c.rec }

// SetScore records a score under name. Each name can be written once per run.
func (c *Candidate) SetScore(name string, s Score) error {
	if _, ok := c.scores[name]; ok {
		return fmt.Errorf("%w: %q", ErrScoreExists, name)
	}
	if !s.Neutral {
		s = Value(s.Value)
	} else {
		s.Value = 0
	}
	c.scores[name] = s
	c.columns = append(c.columns, name)
	return nil
}

// Score returns the score recorded under name.
func (c *Candidate) Score(name string) (Score, bool) {
	s, ok := c.scores[name]
	return s, ok
}

// Scores returns a copy of all score columns. Neutral entries read as 0.
func (c *Candidate) Scores() map[string]float64 {
	out := make(map[string]float64, len(c.scores))
	for k, s := range c.scores {
		out[k] = s.Value
	}
	return out
}

// Columns returns the score column names in write order.
func (c *Candidate) Columns() []string {
	out := make([]string, len(c.columns))
	copy(out, c.columns)
	return out
}

// FinalScore returns the final score and whether it has been set.
func (c *Candidate) FinalScore() (float64, bool) { return c.final, c.hasFinal }

// SetFinal sets the final ranking key. Non-finite values become 0.
func (c *Candidate) SetFinal(v float64) {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		v = 0
	}
	c.final = v
	c.hasFinal = true
}

// Batch is the ordered sequence of candidates threaded through one pipeline run.
type Batch struct {
	items []*Candidate
}

// New normalizes inputs into a batch. It rejects batches that mix plain text
// with records and candidates with empty text.
func New(inputs []record.Input) (*Batch, error) {
	items := make([]*Candidate, len(inputs))
	var kind record.Kind
	for i, in := range inputs {
		switch in.Kind() {
		case record.PlainText, record.Structured:
		default:
			return nil, domain.InvalidInputf("candidate %d: unset input", i)
		}
		if i == 0 {
			kind = in.Kind()
		} else if in.Kind() != kind {
			return nil, domain.InvalidInputf(
				"candidate %d is %s but batch started with %s", i, in.Kind(), kind,
			)
		}
		rec := in.Normalize()
		if strings.TrimSpace(rec.Text) == "" {
			return nil, domain.InvalidInputf("candidate %d: text is required", i)
		}
		items[i] = &Candidate{
			index:  i,
			input:  in,
			rec:    rec,
			scores: make(map[string]Score),
		}
	}
	return &Batch{items: items}, nil
}

// Len returns the number of candidates.
func (b *Batch) Len() int { return len(b.items) }

// At returns the candidate at position i of the current order.
func (b *Batch) At(i int) *Candidate { return b.items[i] }

// Candidates returns the candidates in current order.
func (b *Batch) Candidates() []*Candidate {
	out := make([]*Candidate, len(b.items))
	copy(out, b.items)
	return out
}

// Column returns the named score for every candidate in current order.
// Candidates without the column read as Neutral.
func (b *Batch) Column(name string) []Score {
	out := make([]Score, len(b.items))
	for i, c := range b.items {
		s, ok := c.scores[name]
		if !ok {
			s = Neutral()
		}
		out[i] = s
	}
	return out
}

// Permute reorders the batch: order lists positions of the current batch, and
// may be shorter than the batch to truncate it. Positions must be unique and
// in range.
func (b *Batch) Permute(order []int) error {
	if len(order) > len(b.items) {
		return fmt.Errorf("%w: %d positions for %d candidates", ErrBadPermutation, len(order), len(b.items))
	}
	seen := make([]bool, len(b.items))
	next := make([]*Candidate, len(order))
	for i, pos := range order {
		if pos < 0 || pos >= len(b.items) {
			return fmt.Errorf("%w: position %d out of range", ErrBadPermutation, pos)
		}
		if seen[pos] {
			return fmt.Errorf("%w: position %d repeated", ErrBadPermutation, pos)
		}
		seen[pos] = true
		next[i] = b.items[pos]
	}
	b.items = next
	return nil
}

// Truncate keeps the first k candidates. k >= Len is a no-op.
func (b *Batch) Truncate(k int) error {
	if k < 0 {
		return fmt.Errorf("%w: negative length %d", ErrBadPermutation, k)
	}
	if k < len(b.items) {
		b.items = b.items[:k]
	}
	return nil
}

// SortByFinal orders candidates by final score descending, ties by original
// index ascending. Unset final scores read as 0.
func (b *Batch) SortByFinal() {
	sort.SliceStable(b.items, func(i, j int) bool {
		a, c := b.items[i], b.items[j]
		if a.final != c.final {
			return a.final > c.final
		}
		return a.index < c.index
	})
}
