package boost

import (
	"math"
	"time"

	"github.com/google/cel-go/cel"

	"github.com/kailas-cloud/rerank/internal/domain"
	"github.com/kailas-cloud/rerank/internal/domain/record"
)

// Expression variables. Absent boost and score read as 1.0, absent title as
// the empty string, absent timestamp as has_timestamp=false and age_days=-1.
const (
	varText         = "text"
	varTitle        = "title"
	varTags         = "tags"
	varBoost        = "boost"
	varScore        = "score"
	varHasTimestamp = "has_timestamp"
	varAgeDays      = "age_days"
	varMetadata     = "metadata"
)

// CELOption configures CompileCEL.
type CELOption func(*CELEvaluator)

// WithClock sets the reference clock for age_days.
func WithClock(now func() time.Time) CELOption {
	return func(e *CELEvaluator) {
		if now != nil {
			e.now = now
		}
	}
}

// CELEvaluator evaluates a compiled CEL expression against a record.
type CELEvaluator struct {
	expr string
	prg  cel.Program
	now  func() time.Time
}

// CompileCEL parses and type-checks expr. The expression must produce a
// number or a bool (true=1, false=0).
func CompileCEL(expr string, opts ...CELOption) (*CELEvaluator, error) {
	env, err := cel.NewEnv(
		cel.Variable(varText, cel.StringType),
		cel.Variable(varTitle, cel.StringType),
		cel.Variable(varTags, cel.ListType(cel.StringType)),
		cel.Variable(varBoost, cel.DoubleType),
		cel.Variable(varScore, cel.DoubleType),
		cel.Variable(varHasTimestamp, cel.BoolType),
		cel.Variable(varAgeDays, cel.DoubleType),
		cel.Variable(varMetadata, cel.MapType(cel.StringType, cel.DynType)),
	)
	if err != nil {
		return nil, domain.Configurationf("cel environment: %v", err)
	}

	ast, iss := env.Compile(expr)
	if iss != nil && iss.Err() != nil {
		return nil, domain.Configurationf("boost expression %q: %v", expr, iss.Err())
	}

	out := ast.OutputType()
	switch {
	case out.IsExactType(cel.DoubleType),
		out.IsExactType(cel.IntType),
		out.IsExactType(cel.UintType),
		out.IsExactType(cel.BoolType),
		out.IsExactType(cel.DynType):
	default:
		return nil, domain.Configurationf("boost expression %q: must return a number or bool, got %s", expr, out)
	}

	prg, err := env.Program(ast)
	if err != nil {
		return nil, domain.Configurationf("boost expression %q: %v", expr, err)
	}

	e := &CELEvaluator{expr: expr, prg: prg, now: time.Now}
	for _, opt := range opts {
		opt(e)
	}
	return e, nil
}

// String returns the source expression.
func (e *CELEvaluator) String() string { return e.expr }

// Evaluate runs the expression. Runtime errors (missing map keys, division by
// zero, non-numeric dyn results) yield a neutral score.
func (e *CELEvaluator) Evaluate(rec record.Record) (float64, bool) {
	val, _, err := e.prg.Eval(e.activation(rec))
	if err != nil {
		return 0, false
	}
	var v float64
	switch x := val.Value().(type) {
	case float64:
		v = x
	case int64:
		v = float64(x)
	case uint64:
		v = float64(x)
	case bool:
		if x {
			v = 1
		}
	default:
		return 0, false
	}
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, false
	}
	return v, true
}

func (e *CELEvaluator) activation(rec record.Record) map[string]any {
	boost, score := 1.0, 1.0
	if rec.Boost != nil {
		boost = *rec.Boost
	}
	if rec.Score != nil {
		score = *rec.Score
	}
	ageDays := -1.0
	if rec.Timestamp != nil {
		ageDays = math.Max(0, e.now().Sub(*rec.Timestamp).Hours()/24)
	}
	tags := rec.Tags
	if tags == nil {
		tags = []string{}
	}
	metadata := rec.Metadata
	if metadata == nil {
		metadata = map[string]any{}
	}
	return map[string]any{
		varText:         rec.Text,
		varTitle:        rec.Title,
		varTags:         tags,
		varBoost:        boost,
		varScore:        score,
		varHasTimestamp: rec.Timestamp != nil,
		varAgeDays:      ageDays,
		varMetadata:     metadata,
	}
}
