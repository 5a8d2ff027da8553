package rank

import (
	"context"

	"github.com/kailas-cloud/rerank/internal/domain/batch"
	"github.com/kailas-cloud/rerank/internal/domain/record"
	"github.com/kailas-cloud/rerank/internal/domain/stage"
)

// Step is one stage of the pipeline. Scoring steps add score columns,
// combining steps set the final score, reordering steps permute or truncate
// the batch. Steps must not keep state between Apply calls.
type Step interface {
	Name() string
	Kind() stage.Kind
	Apply(ctx context.Context, query record.Record, b *batch.Batch) error
}

// ColumnWriter is implemented by scoring steps that know every column they
// write. A scoring step without it disables column checks for later steps.
type ColumnWriter interface {
	Columns() []string
}

// ColumnReader is implemented by steps that read score columns written by
// earlier steps.
type ColumnReader interface {
	InputColumns() []string
}

// FinalScoreReader is implemented by steps that read the final score and
// therefore must run after a combining step.
type FinalScoreReader interface {
	NeedsFinalScore() bool
}
