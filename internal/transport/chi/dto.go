package chi

import "github.com/kailas-cloud/rerank/internal/domain/record"

type rankRequest struct {
	Query      *record.Input  `json:"query"`
	Candidates []record.Input `json:"candidates"`
	TopK       *int           `json:"top_k,omitempty"`
}

type rankResult struct {
	Index      int                `json:"index"`
	Candidate  record.Input       `json:"candidate"`
	FinalScore float64            `json:"final_score"`
	Scores     map[string]float64 `json:"scores"`
}

type rankResponse struct {
	Results []rankResult `json:"results"`
}

type errorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

type healthResponse struct {
	Status string            `json:"status"`
	Checks map[string]string `json:"checks"`
}
