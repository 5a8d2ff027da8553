// Package scorecache memoizes remote relevance scores in a key-value store.
package scorecache

import (
	"context"
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"fmt"
	"math"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/kailas-cloud/rerank/internal/db"
	"github.com/kailas-cloud/rerank/internal/domain"
)

// DefaultKeyPrefix namespaces cache keys.
const DefaultKeyPrefix = "rerank:score:"

// store is the consumer interface for the score cache (ISP).
type store interface {
	MGet(ctx context.Context, keys []string) ([][]byte, error)
	SetMultiWithTTL(ctx context.Context, items []db.KVItem, ttl time.Duration) error
}

// Config controls key layout and expiry.
type Config struct {
	// Provider scopes keys so different models never share scores.
	Provider  string
	KeyPrefix string
	TTL       time.Duration
}

// CachedScorer decorates a domain.RemoteScorer with a read-through cache.
// Cache failures degrade to a plain call of the inner scorer.
type CachedScorer struct {
	inner      domain.RemoteScorer
	store      store
	cfg        Config
	cacheTotal *prometheus.CounterVec
	logger     *zap.Logger
}

var _ domain.RemoteScorer = (*CachedScorer)(nil)

// New creates a caching decorator.
// cacheTotal is a counter vec with label "result" ("hit"/"miss"/"error"), passed explicitly.
func New(
	inner domain.RemoteScorer,
	s store,
	cfg Config,
	cacheTotal *prometheus.CounterVec,
	logger *zap.Logger,
) *CachedScorer {
	if cfg.KeyPrefix == "" {
		cfg.KeyPrefix = DefaultKeyPrefix
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &CachedScorer{
		inner:      inner,
		store:      s,
		cfg:        cfg,
		cacheTotal: cacheTotal,
		logger:     logger,
	}
}

// Score returns cached scores where present and asks the inner scorer for
// the rest in a single call, preserving input order.
func (c *CachedScorer) Score(ctx context.Context, query string, docs []string) ([]float64, error) {
	if len(docs) == 0 {
		return []float64{}, nil
	}

	keys := make([]string, len(docs))
	for i, d := range docs {
		keys[i] = c.cacheKey(query, d)
	}

	scores := make([]float64, len(docs))
	missIdx := c.lookup(ctx, keys, scores)
	c.add("hit", len(docs)-len(missIdx))
	if len(missIdx) == 0 {
		return scores, nil
	}
	c.add("miss", len(missIdx))

	missDocs := make([]string, len(missIdx))
	for j, i := range missIdx {
		missDocs[j] = docs[i]
	}
	fresh, err := c.inner.Score(ctx, query, missDocs)
	if err != nil {
		return nil, fmt.Errorf("score uncached docs: %w", err)
	}
	if len(fresh) != len(missDocs) {
		// Returned as-is so the remote step reports the length mismatch.
		return fresh, nil
	}

	items := make([]db.KVItem, 0, len(missIdx))
	for j, i := range missIdx {
		scores[i] = fresh[j]
		if math.IsNaN(fresh[j]) || math.IsInf(fresh[j], 0) {
			continue
		}
		items = append(items, db.KVItem{Key: keys[i], Value: encodeScore(fresh[j])})
	}
	c.put(ctx, items)
	return scores, nil
}

// HealthCheck delegates to the inner scorer when it supports health checks.
func (c *CachedScorer) HealthCheck(ctx context.Context) error {
	if hc, ok := c.inner.(domain.HealthChecker); ok {
		return hc.HealthCheck(ctx)
	}
	return nil
}

// lookup fills scores for cache hits and returns the indices of misses.
func (c *CachedScorer) lookup(ctx context.Context, keys []string, scores []float64) []int {
	all := make([]int, len(keys))
	for i := range all {
		all[i] = i
	}

	values, err := c.store.MGet(ctx, keys)
	if err != nil {
		c.add("error", 1)
		c.logger.Warn("Failed to read cached scores", zap.Int("keys", len(keys)), zap.Error(err))
		return all
	}

	missIdx := all[:0]
	for i := range keys {
		if i >= len(values) || values[i] == nil {
			missIdx = append(missIdx, i)
			continue
		}
		v, ok := decodeScore(values[i])
		if !ok {
			c.logger.Warn("Failed to parse cached score", zap.String("key", keys[i]))
			missIdx = append(missIdx, i)
			continue
		}
		scores[i] = v
	}
	return missIdx
}

func (c *CachedScorer) put(ctx context.Context, items []db.KVItem) {
	if len(items) == 0 {
		return
	}
	if err := c.store.SetMultiWithTTL(ctx, items, c.cfg.TTL); err != nil {
		c.add("error", 1)
		c.logger.Warn("Failed to cache scores", zap.Int("keys", len(items)), zap.Error(err))
	}
}

func (c *CachedScorer) add(result string, n int) {
	if c.cacheTotal != nil && n > 0 {
		c.cacheTotal.WithLabelValues(result).Add(float64(n))
	}
}

func (c *CachedScorer) cacheKey(query, doc string) string {
	h := sha256.New()
	h.Write([]byte(c.cfg.Provider))
	h.Write([]byte{0})
	h.Write([]byte(query))
	h.Write([]byte{0})
	h.Write([]byte(doc))
	return c.cfg.KeyPrefix + hex.EncodeToString(h.Sum(nil))
}

func encodeScore(v float64) []byte {
	buf := make([]byte, 8)
	binary.LittleEndian.PutUint64(buf, math.Float64bits(v))
	return buf
}

func decodeScore(data []byte) (float64, bool) {
	if len(data) != 8 {
		return 0, false
	}
	return math.Float64frombits(binary.LittleEndian.Uint64(data)), true
}
