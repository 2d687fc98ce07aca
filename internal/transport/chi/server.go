// Package chi wires the fusion service into an HTTP API.
package chi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	chirouter "github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/kailas-cloud/hybridrank/internal/domain"
	"github.com/kailas-cloud/hybridrank/internal/usecase/fusion"
	healthuc "github.com/kailas-cloud/hybridrank/internal/usecase/health"
)

// Error codes returned to clients.
const (
	codeBadRequest       = "bad_request"
	codeValidationFailed = "validation_failed"
	codeMalformedInput   = "malformed_input"
	codeCollapseMismatch = "collapse_key_type_mismatch"
	codeInternalError    = "internal_error"
)

// Fuser is the fusion entry point the server calls. Satisfied by the
// fusion service directly or by its caching decorator.
type Fuser interface {
	Fuse(ctx context.Context, req fusion.Request) (fusion.Response, error)
}

// errorHandler tries to handle a domain error. Returns true if handled.
type errorHandler func(w http.ResponseWriter, err error) bool

// Server exposes the fusion API over HTTP.
type Server struct {
	fuser         Fuser
	health        *healthuc.Service
	maxTopK       int
	logger        *zap.Logger
	errorHandlers []errorHandler
}

// NewServer creates an HTTP API server.
func NewServer(fuser Fuser, health *healthuc.Service, maxTopK int, logger *zap.Logger) *Server {
	s := &Server{
		fuser:   fuser,
		health:  health,
		maxTopK: maxTopK,
		logger:  logger,
	}
	s.errorHandlers = []errorHandler{
		sentinelHandler(domain.ErrInvalidTechnique, http.StatusBadRequest, codeValidationFailed),
		sentinelHandler(domain.ErrInvalidWeights, http.StatusBadRequest, codeValidationFailed),
		sentinelHandler(domain.ErrInvalidRankConstant, http.StatusBadRequest, codeValidationFailed),
		sentinelHandler(domain.ErrMalformedInput, http.StatusUnprocessableEntity, codeMalformedInput),
		sentinelHandler(domain.ErrCollapseKeyType, http.StatusUnprocessableEntity, codeCollapseMismatch),
	}
	return s
}

// Routes registers the API endpoints on a router.
func (s *Server) Routes(r chirouter.Router) {
	r.Post("/v1/fuse", s.FuseResults)
	r.Get("/health", s.HealthCheck)
}

// FuseResults handles POST /v1/fuse.
func (s *Server) FuseResults(w http.ResponseWriter, r *http.Request) {
	var req fuseRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, codeBadRequest, "Invalid request body: "+err.Error())
		return
	}

	if len(req.Shards) == 0 {
		writeError(w, http.StatusBadRequest, codeValidationFailed, "At least one shard is required")
		return
	}
	if req.TopK < 0 || (s.maxTopK > 0 && req.TopK > s.maxTopK) {
		writeError(w, http.StatusBadRequest, codeValidationFailed,
			fmt.Sprintf("top_k must be between 0 and %d", s.maxTopK))
		return
	}

	fusionReq, err := fusionRequestFromWire(req)
	if err != nil {
		s.handleDomainError(w, err)
		return
	}

	resp, err := s.fuser.Fuse(r.Context(), fusionReq)
	if err != nil {
		s.handleDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, fuseResponseToWire(resp))
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

	writeJSON(w, httpStatus, healthResponse{
		Status: string(report.Status),
		Checks: checks,
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, errorResponse{
		Code:    code,
		Message: message,
	})
}

// sentinelHandler returns an errorHandler that matches a single sentinel
// error. A matched sentinel's message is safe to show the client; the
// handler chain decides which sentinels those are.
func sentinelHandler(sentinel error, status int, code string) errorHandler {
	return func(w http.ResponseWriter, err error) bool {
		if !errors.Is(err, sentinel) {
			return false
		}
		writeError(w, status, code, err.Error())
		return true
	}
}

func (s *Server) handleDomainError(w http.ResponseWriter, err error) {
	s.logger.Warn("domain error", zap.Error(err))
	for _, h := range s.errorHandlers {
		if h(w, err) {
			return
		}
	}
	s.logger.Error("internal error", zap.Error(err))
	writeError(w, http.StatusInternalServerError, codeInternalError, "internal error")
}
