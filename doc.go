// Package rerank re-orders retrieval candidates against a query with a
// configurable pipeline of scoring, combining and diversity steps.
//
// # Programmatic pipeline
//
//	lex, _ := rerank.BM25(rerank.DefaultBM25())
//	mix, _ := rerank.Combine(rerank.CombineConfig{
//	    Weights: map[string]float64{"bm25.content": 1, "recency": 0.3},
//	})
//	fresh, _ := rerank.Decay(rerank.DecayConfig{Name: "recency", Rate: 0.01})
//	r, _ := rerank.New(lex, fresh, mix)
//	results, _ := r.RankTexts(ctx, "capital of France", docs)
//
// # Pipeline from YAML
//
//	cfg, _ := rerank.ParsePipeline(yamlBytes)
//	r, _ := rerank.Build(cfg, rerank.WithCrossEncoder("http://localhost:8000"))
//
// Every step writes named score columns; the final score comes from the last
// combining step, or from the last written column when no combiner runs.
// Results are sorted by final score unless a diversity step set the order.
package rerank
