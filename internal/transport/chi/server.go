// Package chi implements the HTTP API on the chi router.
package chi

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/datalens-ai/datalens/internal/analysis"
	"github.com/datalens-ai/datalens/internal/domain"
	"github.com/datalens-ai/datalens/internal/metrics"
)

// ErrorCode identifies an error class in the response body.
type ErrorCode string

const (
	CodeBadRequest        ErrorCode = "bad_request"
	CodeUnauthorized      ErrorCode = "unauthorized"
	CodeGenerationFailed  ErrorCode = "generation_failed"
	CodeDeadlineExceeded  ErrorCode = "deadline_exceeded"
	CodeEmbeddingProvider ErrorCode = "embedding_provider_error"
	CodeInternalError     ErrorCode = "internal_error"
)

// ErrorResponse is the JSON error body.
type ErrorResponse struct {
	Code    ErrorCode `json:"code"`
	Message string    `json:"message"`
}

// errorHandler tries to handle a domain error. Returns true if handled.
type errorHandler func(w http.ResponseWriter, err error, msg string) bool

// HealthCheck probes one dependency.
type HealthCheck func(ctx context.Context) error

// Server exposes the analysis pipeline over HTTP.
type Server struct {
	analysis       *analysis.Service
	checks         map[string]HealthCheck
	apiKeys        []string
	maxUploadBytes int64
	logger         *zap.Logger
	errorHandlers  []errorHandler
}

// ServerConfig wires the HTTP server.
type ServerConfig struct {
	Analysis    *analysis.Service
	Checks      map[string]HealthCheck
	APIKeys     []string
	MaxUploadMB int
	Logger      *zap.Logger
}

// NewServer creates an HTTP API server.
func NewServer(cfg *ServerConfig) *Server {
	maxUpload := cfg.MaxUploadMB
	if maxUpload <= 0 {
		maxUpload = 32
	}

	s := &Server{
		analysis:       cfg.Analysis,
		checks:         cfg.Checks,
		apiKeys:        cfg.APIKeys,
		maxUploadBytes: int64(maxUpload) << 20,
		logger:         cfg.Logger,
	}
	s.errorHandlers = []errorHandler{
		sentinelHandler(domain.ErrDeadline, http.StatusGatewayTimeout, CodeDeadlineExceeded),
		sentinelHandler(domain.ErrGenerationFailed, http.StatusBadGateway, CodeGenerationFailed),
		sentinelHandler(domain.ErrEmbeddingProvider, http.StatusBadGateway, CodeEmbeddingProvider),
	}
	return s
}

// Router builds the route tree with the standard middleware stack.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(JSONRecoverer(s.logger))
	r.Use(chimw.RequestID)
	r.Use(WideEventMiddleware(s.logger))
	r.Use(BearerAuthMiddleware(s.apiKeys))
	r.Use(metrics.Middleware())

	r.Get("/health", s.HealthCheck)
	r.Get("/metrics", s.Metrics)
	r.Post("/api/", s.Analyze)
	return r
}

// Analyze handles POST /api/: a multipart form with a required
// "questions" text file, an optional "data" tabular file, and an
// optional "image" file.
func (s *Server) Analyze(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseMultipartForm(s.maxUploadBytes); err != nil {
		writeError(w, http.StatusBadRequest, CodeBadRequest, "invalid multipart form: "+err.Error())
		return
	}

	question, err := s.questionFromForm(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, CodeBadRequest, err.Error())
		return
	}

	req := analysis.Request{Question: question}

	if name, data, ok := formFile(r, "data"); ok {
		req.Upload = &analysis.Upload{Name: name, Data: data}
	}
	if _, data, ok := formFile(r, "image"); ok {
		req.Image = data
	}

	payload, err := s.analysis.Analyze(r.Context(), req)
	if err != nil {
		s.handleDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, payload)
}

// questionFromForm reads the questions file, falling back to a plain
// form value for non-file clients.
func (s *Server) questionFromForm(r *http.Request) (string, error) {
	if _, data, ok := formFile(r, "questions"); ok {
		if len(data) == 0 {
			return "", errors.New("questions file is empty")
		}
		return string(data), nil
	}
	if v := r.FormValue("questions"); v != "" {
		return v, nil
	}
	return "", errors.New("questions field is required")
}

func formFile(r *http.Request, field string) (string, []byte, bool) {
	file, header, err := r.FormFile(field)
	if err != nil {
		return "", nil, false
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		return "", nil, false
	}
	return header.Filename, data, true
}

// HealthCheck handles GET /health.
func (s *Server) HealthCheck(w http.ResponseWriter, r *http.Request) {
	status := "healthy"
	httpStatus := http.StatusOK
	checks := make(map[string]string, len(s.checks))

	for name, check := range s.checks {
		if err := check(r.Context()); err != nil {
			s.logger.Warn("health check failed", zap.String("check", name), zap.Error(err))
			checks[name] = "unhealthy"
			status = "unhealthy"
			httpStatus = http.StatusServiceUnavailable
			continue
		}
		checks[name] = "healthy"
	}

	writeJSON(w, httpStatus, map[string]any{
		"status": status,
		"checks": checks,
	})
}

// Metrics handles GET /metrics.
func (s *Server) Metrics(w http.ResponseWriter, r *http.Request) {
	promhttp.Handler().ServeHTTP(w, r)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code ErrorCode, message string) {
	writeJSON(w, status, ErrorResponse{
		Code:    code,
		Message: message,
	})
}

// safeDomainMessage returns a sentinel error message for the client without exposing internals.
func safeDomainMessage(err error) string {
	sentinels := []error{
		domain.ErrNoData,
		domain.ErrUnsupportedFormat,
		domain.ErrGenerationFailed,
		domain.ErrDeadline,
		domain.ErrEmbeddingProvider,
	}
	for _, s := range sentinels {
		if errors.Is(err, s) {
			return s.Error()
		}
	}
	return "internal error"
}

// sentinelHandler returns an errorHandler that matches a single sentinel error.
func sentinelHandler(sentinel error, status int, code ErrorCode) errorHandler {
	return func(w http.ResponseWriter, err error, msg string) bool {
		if !errors.Is(err, sentinel) {
			return false
		}
		writeError(w, status, code, msg)
		return true
	}
}

func (s *Server) handleDomainError(w http.ResponseWriter, err error) {
	s.logger.Warn("domain error", zap.Error(err))
	msg := safeDomainMessage(err)
	for _, h := range s.errorHandlers {
		if h(w, err, msg) {
			return
		}
	}
	s.logger.Error("internal error", zap.Error(err))
	writeError(w, http.StatusInternalServerError, CodeInternalError, "internal error")
}
