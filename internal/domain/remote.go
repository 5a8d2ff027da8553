package domain

import "context"

// RemoteScorer is the contract of an out-of-process relevance model
// (cross-encoder server, Cohere-like rerank API).
// Score returns one score per doc, in the same order as docs.
type RemoteScorer interface {
	Score(ctx context.Context, query string, docs []string) ([]float64, error)
}

// QueryEmbedder vectorizes query text for similarity scoring.
type QueryEmbedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

// HealthChecker verifies collaborator availability.
type HealthChecker interface {
	HealthCheck(ctx context.Context) error
}
