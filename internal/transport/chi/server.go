package chi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/kailas-cloud/rerank/internal/domain/record"
	logpkg "github.com/kailas-cloud/rerank/internal/logger"
	healthuc "github.com/kailas-cloud/rerank/internal/usecase/health"
	rankuc "github.com/kailas-cloud/rerank/internal/usecase/rank"
)

// Defaults applied when Options leaves a limit at zero.
const (
	DefaultMaxBodyBytes  = 8 << 20
	DefaultMaxCandidates = 1000
)

// Ranker runs the configured pipeline.
type Ranker interface {
	Rank(ctx context.Context, query record.Input, candidates []record.Input) ([]rankuc.Ranked, error)
}

// HealthReporter aggregates collaborator health.
type HealthReporter interface {
	Check(ctx context.Context) healthuc.Report
}

// Options bounds request size.
type Options struct {
	MaxBodyBytes  int64
	MaxCandidates int
}

// Server serves the rerank HTTP API.
type Server struct {
	ranker        Ranker
	health        HealthReporter
	logger        *zap.Logger
	opts          Options
	errorHandlers []errorHandler
}

// NewServer creates an HTTP API server.
func NewServer(ranker Ranker, health HealthReporter, logger *zap.Logger, opts Options) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	if opts.MaxBodyBytes <= 0 {
		opts.MaxBodyBytes = DefaultMaxBodyBytes
	}
	if opts.MaxCandidates <= 0 {
		opts.MaxCandidates = DefaultMaxCandidates
	}
	return &Server{
		ranker:        ranker,
		health:        health,
		logger:        logger,
		opts:          opts,
		errorHandlers: defaultErrorHandlers(),
	}
}

// Rank handles POST /v1/rank.
func (s *Server) Rank(w http.ResponseWriter, r *http.Request) {
	var req rankRequest
	body := http.MaxBytesReader(w, r.Body, s.opts.MaxBodyBytes)
	if err := json.NewDecoder(body).Decode(&req); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeError(w, http.StatusRequestEntityTooLarge, codeTooLarge,
				fmt.Sprintf("request body exceeds %d bytes", tooLarge.Limit))
			return
		}
		writeError(w, http.StatusBadRequest, codeBadRequest, "Invalid request body: "+err.Error())
		return
	}

	if req.Query == nil {
		writeError(w, http.StatusBadRequest, codeInvalidInput, "query is required")
		return
	}
	if len(req.Candidates) > s.opts.MaxCandidates {
		writeError(w, http.StatusBadRequest, codeInvalidInput,
			fmt.Sprintf("too many candidates: %d > %d", len(req.Candidates), s.opts.MaxCandidates))
		return
	}
	if req.TopK != nil && *req.TopK < 0 {
		writeError(w, http.StatusBadRequest, codeInvalidInput, "top_k must be non-negative")
		return
	}

	ranked, err := s.ranker.Rank(r.Context(), *req.Query, req.Candidates)
	if err != nil {
		s.handleDomainError(w, r, err)
		return
	}

	if req.TopK != nil && *req.TopK > 0 && *req.TopK < len(ranked) {
		ranked = ranked[:*req.TopK]
	}
	resp := rankResponse{Results: make([]rankResult, len(ranked))}
	for i, item := range ranked {
		resp.Results[i] = rankResult{
			Index:      item.Index,
			Candidate:  item.Input,
			FinalScore: item.FinalScore,
			Scores:     item.Scores,
		}
	}
	writeJSON(w, http.StatusOK, resp)
}

// HealthCheck handles GET /health.
func (s *Server) HealthCheck(w http.ResponseWriter, r *http.Request) {
	report := s.health.Check(r.Context())

	checks := make(map[string]string, len(report.Checks))
	for k, v := range report.Checks {
		checks[k] = string(v)
	}

	httpStatus := http.StatusOK
	if report.Status != healthuc.Healthy {
		httpStatus = http.StatusServiceUnavailable
	}
	writeJSON(w, httpStatus, healthResponse{Status: string(report.Status), Checks: checks})
}

// Metrics handles GET /metrics.
func (s *Server) Metrics(w http.ResponseWriter, r *http.Request) {
	promhttp.Handler().ServeHTTP(w, r)
}

func (s *Server) handleDomainError(w http.ResponseWriter, r *http.Request, err error) {
	logger := logpkg.FromContext(r.Context())
	logger.Warn("domain error", zap.Error(err))
	for _, h := range s.errorHandlers {
		if h(w, err) {
			return
		}
	}
	s.logger.Error("internal error", zap.Error(err))
	writeError(w, http.StatusInternalServerError, codeInternal, "internal error")
}
