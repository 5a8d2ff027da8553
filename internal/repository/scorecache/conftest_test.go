package scorecache

import (
	"context"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/kailas-cloud/rerank/internal/db"
)

type mockScorer struct {
	scores func(docs []string) []float64
	err    error
	calls  [][]string
}

func (m *mockScorer) Score(_ context.Context, _ string, docs []string) ([]float64, error) {
	m.calls = append(m.calls, docs)
	if m.err != nil {
		return nil, m.err
	}
	return m.scores(docs), nil
}

// mockKVStore is an in-memory store with optional failure injection.
type mockKVStore struct {
	data   map[string][]byte
	getErr error
	setErr error
	ttl    time.Duration
}

func newMockKVStore() *mockKVStore {
	return &mockKVStore{data: make(map[string][]byte)}
}

func (m *mockKVStore) MGet(_ context.Context, keys []string) ([][]byte, error) {
	if m.getErr != nil {
		return nil, m.getErr
	}
	out := make([][]byte, len(keys))
	for i, k := range keys {
		out[i] = m.data[k]
	}
	return out, nil
}

func (m *mockKVStore) SetMultiWithTTL(_ context.Context, items []db.KVItem, ttl time.Duration) error {
	if m.setErr != nil {
		return m.setErr
	}
	m.ttl = ttl
	for _, it := range items {
		m.data[it.Key] = it.Value
	}
	return nil
}

func lengthScores(docs []string) []float64 {
	out := make([]float64, len(docs))
	for i, d := range docs {
		out[i] = float64(len(d))
	}
	return out
}

func newTestCachedScorer(t *testing.T, inner *mockScorer, ms *mockKVStore) *CachedScorer {
	t.Helper()
	return New(inner, ms, Config{Provider: "test", TTL: time.Hour}, nil, zap.NewNop())
}
