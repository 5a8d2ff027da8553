package scorecache

import (
	"context"
	"errors"
	"math"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"go.uber.org/zap"
)

func TestScore_MissThenHit(t *testing.T) {
	inner := &mockScorer{scores: lengthScores}
	ms := newMockKVStore()
	cs := newTestCachedScorer(t, inner, ms)
	ctx := context.Background()

	first, err := cs.Score(ctx, "q", []string{"a", "bb"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if first[0] != 1 || first[1] != 2 {
		t.Fatalf("unexpected scores %v", first)
	}
	if len(ms.data) != 2 || ms.ttl != time.Hour {
		t.Fatalf("expected 2 cached entries with 1h ttl, got %d %v", len(ms.data), ms.ttl)
	}

	second, err := cs.Score(ctx, "q", []string{"a", "bb"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if second[0] != 1 || second[1] != 2 {
		t.Fatalf("unexpected cached scores %v", second)
	}
	if len(inner.calls) != 1 {
		t.Fatalf("expected a single inner call, got %d", len(inner.calls))
	}
}

func TestScore_PartialHitPreservesOrder(t *testing.T) {
	inner := &mockScorer{scores: lengthScores}
	ms := newMockKVStore()
	cs := newTestCachedScorer(t, inner, ms)
	ctx := context.Background()

	if _, err := cs.Score(ctx, "q", []string{"bb"}); err != nil {
		t.Fatalf("warmup: %v", err)
	}

	got, err := cs.Score(ctx, "q", []string{"a", "bb", "ccc"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	want := []float64{1, 2, 3}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("score[%d] = %v, want %v", i, got[i], want[i])
		}
	}
	last := inner.calls[len(inner.calls)-1]
	if len(last) != 2 || last[0] != "a" || last[1] != "ccc" {
		t.Errorf("expected only misses to reach inner scorer, got %v", last)
	}
}

func TestScore_KeyScopedByQueryAndProvider(t *testing.T) {
	cs := New(&mockScorer{scores: lengthScores}, newMockKVStore(), Config{Provider: "a"}, nil, nil)
	other := New(&mockScorer{scores: lengthScores}, newMockKVStore(), Config{Provider: "b"}, nil, nil)

	if cs.cacheKey("q1", "d") == cs.cacheKey("q2", "d") {
		t.Error("different queries must not share a key")
	}
	if cs.cacheKey("q", "d") == other.cacheKey("q", "d") {
		t.Error("different providers must not share a key")
	}
	if cs.cacheKey("ab", "c") == cs.cacheKey("a", "bc") {
		t.Error("query/doc boundary must be part of the key")
	}
}

func TestScore_StoreReadErrorFallsThrough(t *testing.T) {
	inner := &mockScorer{scores: lengthScores}
	ms := newMockKVStore()
	ms.getErr = errors.New("connection refused")
	counter := prometheus.NewCounterVec(prometheus.CounterOpts{Name: "test_cache_total"}, []string{"result"})
	cs := New(inner, ms, Config{Provider: "test"}, counter, zap.NewNop())

	got, err := cs.Score(context.Background(), "q", []string{"a"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got[0] != 1 {
		t.Errorf("unexpected score %v", got[0])
	}
	if v := testutil.ToFloat64(counter.WithLabelValues("error")); v != 1 {
		t.Errorf("expected 1 error, got %v", v)
	}
	if v := testutil.ToFloat64(counter.WithLabelValues("miss")); v != 1 {
		t.Errorf("expected 1 miss, got %v", v)
	}
}

func TestScore_StoreWriteErrorIgnored(t *testing.T) {
	ms := newMockKVStore()
	ms.setErr = errors.New("OOM")
	cs := newTestCachedScorer(t, &mockScorer{scores: lengthScores}, ms)

	if _, err := cs.Score(context.Background(), "q", []string{"a"}); err != nil {
		t.Fatalf("write failures must not fail scoring: %v", err)
	}
}

func TestScore_InnerError(t *testing.T) {
	cs := newTestCachedScorer(t, &mockScorer{err: errors.New("provider down")}, newMockKVStore())

	if _, err := cs.Score(context.Background(), "q", []string{"a"}); err == nil {
		t.Fatal("expected error")
	}
}

func TestScore_NonFiniteNotCached(t *testing.T) {
	ms := newMockKVStore()
	inner := &mockScorer{scores: func(docs []string) []float64 {
		return []float64{math.NaN(), 0.5}
	}}
	cs := newTestCachedScorer(t, inner, ms)

	got, err := cs.Score(context.Background(), "q", []string{"a", "b"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !math.IsNaN(got[0]) || got[1] != 0.5 {
		t.Errorf("unexpected scores %v", got)
	}
	if len(ms.data) != 1 {
		t.Errorf("expected only the finite score cached, got %d entries", len(ms.data))
	}
}

func TestScore_LengthMismatchPassedThrough(t *testing.T) {
	inner := &mockScorer{scores: func([]string) []float64 { return []float64{1} }}
	ms := newMockKVStore()
	cs := newTestCachedScorer(t, inner, ms)

	got, err := cs.Score(context.Background(), "q", []string{"a", "b"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(got) != 1 {
		t.Errorf("expected raw inner result, got %v", got)
	}
	if len(ms.data) != 0 {
		t.Error("mismatched results must not be cached")
	}
}

func TestDecodeScore_Invalid(t *testing.T) {
	if _, ok := decodeScore([]byte{1, 2, 3}); ok {
		t.Error("expected decode failure for short value")
	}
	v, ok := decodeScore(encodeScore(-2.75))
	if !ok || v != -2.75 {
		t.Errorf("round trip = %v %v", v, ok)
	}
}
