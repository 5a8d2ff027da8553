package health

import "context"

// CachePinger checks score cache availability.
type CachePinger interface {
	Ping(ctx context.Context) error
}

// Checker checks availability of a remote collaborator (scorer or embedder).
type Checker interface {
	HealthCheck(ctx context.Context) error
}
