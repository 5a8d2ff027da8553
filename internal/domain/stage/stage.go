// Package stage names the kinds of steps a ranking pipeline can run.
package stage

// Kind describes what a step does to a batch.
type Kind string

const (
	// Scoring adds a score column; batch order and length are unchanged.
	Scoring Kind = "scoring"
	// Combining merges score columns into the final score.
	Combining Kind = "combining"
	// Reordering changes the batch order and may truncate it.
	Reordering Kind = "reordering"
)

// IsValid checks if the kind is one of the supported values.
func (k Kind) IsValid() bool {
	return k == Scoring || k == Combining || k == Reordering
}
