// Package cohere scores documents with the Cohere rerank API.
package cohere

import (
	"context"
	"fmt"
	"math"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/kailas-cloud/rerank/internal/domain"
	"github.com/kailas-cloud/rerank/internal/transport/httpclient"
)

// Provider is the name used in metrics and configuration.
const Provider = "cohere"

const (
	DefaultBaseURL = "https://api.cohere.com"
	DefaultModel   = "rerank-v3.5"
	// DefaultHealthTTL is how long a health check result is reused. Every
	// check is a billed rerank call.
	DefaultHealthTTL = time.Minute
)

type rerankRequest struct {
	Query     string   `json:"query"`
	Documents []string `json:"documents"`
	Model     string   `json:"model"`
	TopN      int      `json:"top_n"`
}

type rerankResult struct {
	Index          int     `json:"index"`
	RelevanceScore float64 `json:"relevance_score"`
}

type rerankResponse struct {
	Results []rerankResult `json:"results"`
}

// Client implements domain.RemoteScorer. The API key is sent by the
// underlying httpclient as a static Authorization header.
type Client struct {
	baseURL string
	model   string
	http    *httpclient.Client

	healthTTL time.Duration
	now       func() time.Time
	inflight  singleflight.Group
	mu        sync.Mutex
	checkedAt time.Time
	lastErr   error
}

var _ domain.RemoteScorer = (*Client)(nil)

// New creates a client. Empty baseURL and model fall back to defaults.
func New(baseURL, model string, http *httpclient.Client) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	if model == "" {
		model = DefaultModel
	}
	return &Client{
		baseURL:   strings.TrimRight(baseURL, "/"),
		model:     model,
		http:      http,
		healthTTL: DefaultHealthTTL,
		now:       time.Now,
	}
}

// AuthHeaders builds the header set for httpclient.Config.
func AuthHeaders(apiKey string) map[string]string {
	return map[string]string{"Authorization": "Bearer " + apiKey}
}

// Score returns one score per doc in input order. Results are returned by the
// API sorted by relevance, so they are mapped back by index. Documents the
// API omitted get NaN, which the remote step treats as neutral.
func (c *Client) Score(ctx context.Context, query string, docs []string) ([]float64, error) {
	if len(docs) == 0 {
		return []float64{}, nil
	}
	req := rerankRequest{Query: query, Documents: docs, Model: c.model, TopN: len(docs)}
	var resp rerankResponse
	if err := c.http.PostJSON(ctx, c.baseURL+"/v1/rerank", req, &resp); err != nil {
		return nil, fmt.Errorf("cohere rerank: %w", err)
	}

	scores := make([]float64, len(docs))
	for i := range scores {
		scores[i] = math.NaN()
	}
	for _, r := range resp.Results {
		if r.Index < 0 || r.Index >= len(docs) {
			return nil, fmt.Errorf("%w: cohere returned out-of-range index %d", domain.ErrRemoteScoring, r.Index)
		}
		scores[r.Index] = r.RelevanceScore
	}
	return scores, nil
}

// HealthCheck verifies the API answers a minimal rerank call. The outcome is
// reused for healthTTL and concurrent checks share one request.
func (c *Client) HealthCheck(ctx context.Context) error {
	c.mu.Lock()
	if !c.checkedAt.IsZero() && c.now().Sub(c.checkedAt) < c.healthTTL {
		err := c.lastErr
		c.mu.Unlock()
		return err
	}
	c.mu.Unlock()

	_, err, _ := c.inflight.Do("health", func() (any, error) {
		_, err := c.Score(ctx, "ping", []string{"pong"})
		c.mu.Lock()
		c.checkedAt, c.lastErr = c.now(), err
		c.mu.Unlock()
		return nil, err
	})
	return err //nolint:wrapcheck // Score already wraps
}
