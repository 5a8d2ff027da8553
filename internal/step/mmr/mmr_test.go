package mmr

import (
	"context"
	"errors"
	"math"
	"testing"

	"github.com/kailas-cloud/rerank/internal/domain"
	"github.com/kailas-cloud/rerank/internal/domain/batch"
	"github.com/kailas-cloud/rerank/internal/domain/record"
)

// newBatch builds candidates with the given content embeddings and final scores.
func newBatch(t *testing.T, embs [][]float32, rel []float64) *batch.Batch {
	t.Helper()
	recs := make([]record.Record, len(embs))
	for i, e := range embs {
		recs[i] = record.Record{Text: "doc", ContentEmbedding: e}
	}
	b, err := batch.New(record.Records(recs...))
	if err != nil {
		t.Fatalf("batch.New: %v", err)
	}
	for i, v := range rel {
		b.At(i).SetFinal(v)
	}
	return b
}

func indices(b *batch.Batch) []int {
	out := make([]int, b.Len())
	for i := range out {
		out[i] = b.At(i).Index()
	}
	return out
}

func equal(a, b []int) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func TestApply_Diversifies(t *testing.T) {
	r, err := New(DefaultConfig())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	b := newBatch(t, [][]float32{{1, 0}, {1, 0}, {0, 1}}, []float64{1, 0.95, 0.5})
	if err := r.Apply(context.Background(), record.Record{}, b); err != nil {
		t.Fatalf("Apply: %v", err)
	}
	if got, want := indices(b), []int{0, 2, 1}; !equal(got, want) {
		t.Errorf("order = %v, want %v", got, want)
	}
}

func TestApply_LambdaOneIsRelevanceOrder(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Lambda = 1
	r, _ := New(cfg)
	b := newBatch(t,
		[][]float32{{1, 0}, {1, 0}, {0, 1}, {1, 1}, nil},
		[]float64{0.2, 0.9, 0.9, 0.5, 0.7},
	)
	if err := r.Apply(context.Background(), record.Record{}, b); err != nil {
		t.Fatalf("Apply: %v", err)
	}
	if got, want := indices(b), []int{1, 2, 4, 3, 0}; !equal(got, want) {
		t.Errorf("order = %v, want %v", got, want)
	}
}

func TestApply_K(t *testing.T) {
	embs := [][]float32{{1, 0}, {0, 1}, {1, 1}}
	rel := []float64{0.3, 0.2, 0.1}
	tests := []struct {
		k    int
		want int
	}{
		{0, 3}, {-1, 3}, {3, 3}, {10, 3}, {2, 2}, {1, 1},
	}
	for _, tc := range tests {
		cfg := DefaultConfig()
		cfg.K = tc.k
		r, _ := New(cfg)
		b := newBatch(t, embs, rel)
		if err := r.Apply(context.Background(), record.Record{}, b); err != nil {
			t.Fatalf("k=%d: Apply: %v", tc.k, err)
		}
		if b.Len() != tc.want {
			t.Errorf("k=%d: got %d candidates, want %d", tc.k, b.Len(), tc.want)
		}
		seen := map[int]bool{}
		for _, idx := range indices(b) {
			if seen[idx] {
				t.Errorf("k=%d: duplicate index %d", tc.k, idx)
			}
			seen[idx] = true
		}
	}
}

func TestApply_Threshold(t *testing.T) {
	cfg := DefaultConfig()
	zero := 0.0
	cfg.Threshold = &zero
	r, _ := New(cfg)
	b := newBatch(t, [][]float32{{1, 0}, {1, 0}, {0, 1}}, []float64{1, 0.95, 0.5})
	if err := r.Apply(context.Background(), record.Record{}, b); err != nil {
		t.Fatalf("Apply: %v", err)
	}
	if got, want := indices(b), []int{0, 2}; !equal(got, want) {
		t.Errorf("order = %v, want %v", got, want)
	}
}

func TestApply_RelevanceColumn(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Lambda = 1
	cfg.Relevance = "remote"
	r, _ := New(cfg)
	if r.NeedsFinalScore() {
		t.Error("column relevance should not need a final score")
	}
	b := newBatch(t, [][]float32{nil, nil, nil}, nil)
	for i, s := range []batch.Score{batch.Value(0.1), batch.Neutral(), batch.Value(0.4)} {
		if err := b.At(i).SetScore("remote", s); err != nil {
			t.Fatalf("SetScore: %v", err)
		}
	}
	if err := r.Apply(context.Background(), record.Record{}, b); err != nil {
		t.Fatalf("Apply: %v", err)
	}
	if got, want := indices(b), []int{2, 0, 1}; !equal(got, want) {
		t.Errorf("order = %v, want %v", got, want)
	}
}

func TestApply_CustomSimilarity(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Lambda = 0.3
	cfg.Similarity = func(a, b record.Record) float64 {
		if a.Title == b.Title {
			return 1
		}
		return 0
	}
	r, _ := New(cfg)
	b, _ := batch.New(record.Records(
		record.Record{Text: "a", Title: "go"},
		record.Record{Text: "b", Title: "go"},
		record.Record{Text: "c", Title: "rust"},
	))
	for i, v := range []float64{1, 0.9, 0.1} {
		b.At(i).SetFinal(v)
	}
	if err := r.Apply(context.Background(), record.Record{}, b); err != nil {
		t.Fatalf("Apply: %v", err)
	}
	if got, want := indices(b), []int{0, 2, 1}; !equal(got, want) {
		t.Errorf("order = %v, want %v", got, want)
	}
}

func TestSimilarityFor(t *testing.T) {
	a := record.Record{ContentEmbedding: []float32{1, 0}, TitleEmbedding: []float32{0, 0}}
	b := record.Record{ContentEmbedding: []float32{3, 4}, TitleEmbedding: []float32{0, 0}}
	bare := record.Record{}

	tests := []struct {
		metric Metric
		emb    Embedding
		x, y   record.Record
		want   float64
	}{
		{"", "", a, b, 0.6},
		{Cosine, ContentEmbedding, a, b, 0.6},
		{Dot, ContentEmbedding, a, b, 3},
		{Euclidean, ContentEmbedding, a, b, 1 / (1 + math.Sqrt(20))},
		{Euclidean, TitleEmbedding, a, b, 1},
		{Cosine, TitleEmbedding, a, b, 0},
		{Dot, ContentEmbedding, a, bare, 0},
		{Euclidean, ContentEmbedding, a, bare, 0},
	}
	for _, tc := range tests {
		sim, err := SimilarityFor(tc.metric, tc.emb)
		if err != nil {
			t.Fatalf("SimilarityFor(%q, %q): %v", tc.metric, tc.emb, err)
		}
		if got := sim(tc.x, tc.y); math.Abs(got-tc.want) > 1e-9 {
			t.Errorf("SimilarityFor(%q, %q) = %v, want %v", tc.metric, tc.emb, got, tc.want)
		}
	}

	for _, bad := range []struct {
		metric Metric
		emb    Embedding
	}{{"manhattan", ""}, {"", "body"}} {
		if _, err := SimilarityFor(bad.metric, bad.emb); !errors.Is(err, domain.ErrConfiguration) {
			t.Errorf("SimilarityFor(%q, %q): expected ErrConfiguration, got %v", bad.metric, bad.emb, err)
		}
	}
}

func TestApply_TitleEuclidean(t *testing.T) {
	recs := []record.Record{
		{Text: "a", TitleEmbedding: []float32{1, 0}, ContentEmbedding: []float32{1, 1}},
		{Text: "b", TitleEmbedding: []float32{1, 0}, ContentEmbedding: []float32{1, 1}},
		{Text: "c", TitleEmbedding: []float32{0, 1}, ContentEmbedding: []float32{1, 1}},
	}
	run := func(sim SimilarityFunc) []int {
		cfg := DefaultConfig()
		cfg.Similarity = sim
		r, err := New(cfg)
		if err != nil {
			t.Fatalf("New: %v", err)
		}
		b, _ := batch.New(record.Records(recs...))
		for i, v := range []float64{1, 0.9, 0.8} {
			b.At(i).SetFinal(v)
		}
		if err := r.Apply(context.Background(), record.Record{}, b); err != nil {
			t.Fatalf("Apply: %v", err)
		}
		return indices(b)
	}

	if got, want := run(ContentCosine), []int{0, 1, 2}; !equal(got, want) {
		t.Errorf("content cosine order = %v, want %v", got, want)
	}
	titleL2, _ := SimilarityFor(Euclidean, TitleEmbedding)
	if got, want := run(titleL2), []int{0, 2, 1}; !equal(got, want) {
		t.Errorf("title euclidean order = %v, want %v", got, want)
	}
}

func TestNew_Validation(t *testing.T) {
	nan := math.NaN()
	for name, cfg := range map[string]Config{
		"lambda below zero": {Lambda: -0.1},
		"lambda above one":  {Lambda: 1.1},
		"nan lambda":        {Lambda: nan},
		"nan threshold":     {Lambda: 0.5, Threshold: &nan},
	} {
		t.Run(name, func(t *testing.T) {
			if _, err := New(cfg); !errors.Is(err, domain.ErrConfiguration) {
				t.Fatalf("expected ErrConfiguration, got %v", err)
			}
		})
	}
}

func TestApply_Empty(t *testing.T) {
	r, _ := New(DefaultConfig())
	b, _ := batch.New(nil)
	if err := r.Apply(context.Background(), record.Record{}, b); err != nil {
		t.Fatalf("Apply: %v", err)
	}
}
