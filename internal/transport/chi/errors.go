package chi

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/kailas-cloud/rerank/internal/domain"
)

// Error codes returned in errorResponse.Code.
const (
	codeBadRequest    = "bad_request"
	codeUnauthorized  = "unauthorized"
	codeInvalidInput  = "invalid_input"
	codeConfiguration = "configuration_error"
	codeRemoteScoring = "remote_scoring_failed"
	codeTooLarge      = "request_too_large"
	codeInternal      = "internal_error"

	codeNotFound         = "not_found"
	codeMethodNotAllowed = "method_not_allowed"
)

// errorHandler tries to handle a domain error. Returns true if handled.
type errorHandler func(w http.ResponseWriter, err error) bool

// sentinelHandler returns an errorHandler that matches a single sentinel error.
// exposeDetail controls whether the wrapped message reaches the client.
func sentinelHandler(sentinel error, status int, code string, exposeDetail bool) errorHandler {
	return func(w http.ResponseWriter, err error) bool {
		if !errors.Is(err, sentinel) {
			return false
		}
		msg := sentinel.Error()
		if exposeDetail {
			msg = err.Error()
		}
		writeError(w, status, code, msg)
		return true
	}
}

func defaultErrorHandlers() []errorHandler {
	return []errorHandler{
		sentinelHandler(domain.ErrInvalidInput, http.StatusBadRequest, codeInvalidInput, true),
		// configuration problems are operator errors: keep internals out of the response
		sentinelHandler(domain.ErrConfiguration, http.StatusInternalServerError, codeConfiguration, false),
		sentinelHandler(domain.ErrRemoteScoring, http.StatusBadGateway, codeRemoteScoring, false),
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, errorResponse{Code: code, Message: message})
}
