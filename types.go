package rerank

import (
	"github.com/kailas-cloud/rerank/internal/config"
	"github.com/kailas-cloud/rerank/internal/domain"
	"github.com/kailas-cloud/rerank/internal/domain/record"
	rankuc "github.com/kailas-cloud/rerank/internal/usecase/rank"
)

type (
	// Record is the structured form of a query or candidate.
	Record = record.Record
	// Input is either plain text or a Record.
	Input = record.Input
	// Result is one ranked candidate.
	Result = rankuc.Ranked
	// Step is a single pipeline stage.
	Step = rankuc.Step
	// RemoteScorer is an out-of-process relevance model.
	RemoteScorer = domain.RemoteScorer
	// QueryEmbedder vectorizes query text for similarity steps.
	QueryEmbedder = domain.QueryEmbedder
	// PipelineConfig is the declarative step list accepted by Build.
	PipelineConfig = config.PipelineConfig
	// StepConfig configures one step of a PipelineConfig.
	StepConfig = config.StepConfig
)

// Text wraps a bare text string.
func Text(s string) Input { return record.Text(s) }

// FromRecord wraps a structured record.
func FromRecord(r Record) Input { return record.FromRecord(r) }
