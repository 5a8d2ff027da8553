// Package crossencoder scores documents with a self-hosted cross-encoder
// model server (POST /inference).
package crossencoder

import (
	"context"
	"fmt"
	"strings"

	"github.com/kailas-cloud/rerank/internal/domain"
	"github.com/kailas-cloud/rerank/internal/transport/httpclient"
)

// Provider is the name used in metrics and configuration.
const Provider = "cross_encoder"

type inferenceRequest struct {
	Query string   `json:"query"`
	Docs  []string `json:"docs"`
	TopK  int      `json:"top_k"`
}

// Client implements domain.RemoteScorer.
type Client struct {
	addr string
	http *httpclient.Client
}

var _ domain.RemoteScorer = (*Client)(nil)

// New creates a client for the server at addr (scheme://host:port).
func New(addr string, http *httpclient.Client) *Client {
	return &Client{addr: strings.TrimRight(addr, "/"), http: http}
}

// Score returns one relevance score per doc, in input order.
func (c *Client) Score(ctx context.Context, query string, docs []string) ([]float64, error) {
	if len(docs) == 0 {
		return []float64{}, nil
	}
	var scores []float64
	req := inferenceRequest{Query: query, Docs: docs, TopK: len(docs)}
	if err := c.http.PostJSON(ctx, c.addr+"/inference", req, &scores); err != nil {
		return nil, fmt.Errorf("cross-encoder inference: %w", err)
	}
	return scores, nil
}

// HealthCheck requests the server root.
func (c *Client) HealthCheck(ctx context.Context) error {
	if err := c.http.Get(ctx, c.addr+"/"); err != nil {
		return fmt.Errorf("cross-encoder health: %w", err)
	}
	return nil
}
