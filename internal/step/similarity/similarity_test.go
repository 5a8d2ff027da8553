package similarity

import (
	"context"
	"errors"
	"math"
	"testing"

	"github.com/kailas-cloud/rerank/internal/domain"
	"github.com/kailas-cloud/rerank/internal/domain/batch"
	"github.com/kailas-cloud/rerank/internal/domain/record"
)

type mockEmbedder struct {
	vec   []float32
	err   error
	calls int
}

func (m *mockEmbedder) Embed(_ context.Context, _ string) ([]float32, error) {
	m.calls++
	return m.vec, m.err
}

func newBatch(t *testing.T, recs ...record.Record) *batch.Batch {
	t.Helper()
	b, err := batch.New(record.Records(recs...))
	if err != nil {
		t.Fatalf("batch.New: %v", err)
	}
	return b
}

func TestApply_VectorsAndKeywords(t *testing.T) {
	s, err := New(Config{})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	query := record.Record{
		Text:             "q",
		ContentEmbedding: []float32{1, 0},
		ContentKeywords:  []string{"go", "http"},
	}
	b := newBatch(t,
		record.Record{
			Text:             "same",
			ContentEmbedding: []float32{2, 0},
			TitleEmbedding:   []float32{0, 1},
			ContentKeywords:  []string{"go", "http"},
			TitleKeywords:    []string{"go"},
		},
		record.Record{Text: "bare"},
		record.Record{Text: "zero", ContentEmbedding: []float32{0, 0}},
	)
	if err := s.Apply(context.Background(), query, b); err != nil {
		t.Fatalf("Apply: %v", err)
	}

	content := b.Column(s.Column(ContentVector))
	if math.Abs(content[0].Value-1) > 1e-9 {
		t.Errorf("expected cosine 1, got %+v", content[0])
	}
	if !content[1].Neutral || !content[2].Neutral {
		t.Errorf("expected neutral for missing and zero vectors, got %+v %+v", content[1], content[2])
	}
	if title := b.Column(s.Column(TitleVector)); title[0].Neutral || title[0].Value != 0 {
		t.Errorf("expected orthogonal title cosine 0, got %+v", title[0])
	}
	if kw := b.Column(s.Column(ContentKeywords)); kw[0].Value != 1 || !kw[1].Neutral {
		t.Errorf("unexpected content keyword scores %+v", kw)
	}
	if kw := b.Column(s.Column(TitleKeywords)); kw[0].Value != 0.5 {
		t.Errorf("expected title jaccard 0.5, got %+v", kw[0])
	}
}

func TestApply_DimensionMismatch(t *testing.T) {
	tests := []struct {
		name  string
		dims  int
		query []float32
		cand  []float32
	}{
		{"candidate vs query", 0, []float32{1, 0, 0}, []float32{1, 0}},
		{"query vs configured", 2, []float32{1, 0, 0}, []float32{1, 0}},
		{"candidate vs configured", 3, nil, []float32{1, 0}},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			s, _ := New(Config{Dimensions: tc.dims})
			b := newBatch(t,
				record.Record{Text: "ok", ContentKeywords: []string{"a"}},
				record.Record{Text: "bad", ContentEmbedding: tc.cand},
			)
			err := s.Apply(context.Background(), record.Record{Text: "q", ContentEmbedding: tc.query}, b)
			if !errors.Is(err, domain.ErrConfiguration) {
				t.Fatalf("expected ErrConfiguration, got %v", err)
			}
			if cols := b.At(0).Columns(); len(cols) != 0 {
				t.Errorf("expected no writes, got %v", cols)
			}
		})
	}
}

func TestApply_QueryEmbedder(t *testing.T) {
	emb := &mockEmbedder{vec: []float32{0, 1}}
	s, _ := New(Config{Embedder: emb})
	b := newBatch(t, record.Record{Text: "a", ContentEmbedding: []float32{0, 3}})
	if err := s.Apply(context.Background(), record.Record{Text: "q"}, b); err != nil {
		t.Fatalf("Apply: %v", err)
	}
	if emb.calls != 1 {
		t.Errorf("expected one embed call, got %d", emb.calls)
	}
	if got := b.Column(s.Column(ContentVector))[0].Value; math.Abs(got-1) > 1e-9 {
		t.Errorf("expected cosine 1, got %v", got)
	}

	// a query that carries its own embedding skips the embedder
	b2 := newBatch(t, record.Record{Text: "a"})
	if err := s.Apply(context.Background(), record.Record{Text: "q", ContentEmbedding: []float32{1, 1}}, b2); err != nil {
		t.Fatalf("Apply: %v", err)
	}
	if emb.calls != 1 {
		t.Errorf("embedder should not be called, got %d calls", emb.calls)
	}
}

func TestApply_EmbedderError(t *testing.T) {
	s, _ := New(Config{Name: "emb", Embedder: &mockEmbedder{err: errors.New("boom")}})
	b := newBatch(t, record.Record{Text: "a"})
	err := s.Apply(context.Background(), record.Record{Text: "q"}, b)
	if !errors.Is(err, domain.ErrRemoteScoring) {
		t.Fatalf("expected ErrRemoteScoring, got %v", err)
	}
	var rse *domain.RemoteScoringError
	if !errors.As(err, &rse) || rse.Step != "emb" {
		t.Errorf("expected RemoteScoringError for step emb, got %v", err)
	}
}

func TestNew_NegativeDimensions(t *testing.T) {
	if _, err := New(Config{Dimensions: -1}); !errors.Is(err, domain.ErrConfiguration) {
		t.Fatalf("expected ErrConfiguration, got %v", err)
	}
}
