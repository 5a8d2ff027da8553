package rerank

import "github.com/kailas-cloud/rerank/internal/domain"

// Sentinel errors re-exported from the domain layer.
// Use errors.Is() to check.
var (
	ErrInvalidInput  = domain.ErrInvalidInput
	ErrConfiguration = domain.ErrConfiguration
	ErrRemoteScoring = domain.ErrRemoteScoring
)

// RemoteScoringError carries the step that issued a failed remote call.
type RemoteScoringError = domain.RemoteScoringError
