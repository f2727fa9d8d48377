package chi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/kailas-cloud/ragdex/internal/domain"
	"github.com/kailas-cloud/ragdex/internal/metrics"
	answeruc "github.com/kailas-cloud/ragdex/internal/usecase/answer"
	healthuc "github.com/kailas-cloud/ragdex/internal/usecase/health"
	ingestuc "github.com/kailas-cloud/ragdex/internal/usecase/ingest"
	usageuc "github.com/kailas-cloud/ragdex/internal/usecase/usage"
)

// Error codes returned in the error response body.
const (
	codeBadRequest             = "bad_request"
	codeValidationFailed       = "validation_failed"
	codeUnauthorized           = "unauthorized"
	codeVectorDimMismatch      = "vector_dim_mismatch"
	codeRateLimited            = "rate_limited"
	codeEmbeddingQuota         = "embedding_quota_exceeded"
	codeEmbeddingProviderError = "embedding_provider_error"
	codeRerankProviderError    = "rerank_provider_error"
	codeLLMProviderError       = "llm_provider_error"
	codeInternalError          = "internal_error"
)

// Ingester indexes documents.
type Ingester interface {
	Ingest(ctx context.Context, req ingestuc.Request) (ingestuc.Result, error)
}

// Answerer resolves questions against the indexed corpus.
type Answerer interface {
	Answer(ctx context.Context, query string) (answeruc.Response, error)
}

// UsageReporter reports token budget state.
type UsageReporter interface {
	GetReport(ctx context.Context, period usageuc.Period) usageuc.Report
}

// HealthChecker reports component health.
type HealthChecker interface {
	Check(ctx context.Context) healthuc.Report
}

// errorHandler tries to handle a domain error. Returns true if handled.
type errorHandler func(w http.ResponseWriter, err error, msg string) bool

// Server is the HTTP API over the ingest and answer pipelines.
type Server struct {
	ingest        Ingester
	answer        Answerer
	usage         UsageReporter
	health        HealthChecker
	logger        *zap.Logger
	errorHandlers []errorHandler
}

// NewServer creates an HTTP API server.
func NewServer(
	ingest Ingester,
	answer Answerer,
	usage UsageReporter,
	health HealthChecker,
	logger *zap.Logger,
) *Server {
	s := &Server{
		ingest: ingest,
		answer: answer,
		usage:  usage,
		health: health,
		logger: logger,
	}
	s.errorHandlers = []errorHandler{
		sentinelHandler(domain.ErrVectorDimMismatch, http.StatusBadRequest, codeVectorDimMismatch),
		sentinelHandler(domain.ErrRateLimited, http.StatusTooManyRequests, codeRateLimited),
		sentinelHandler(domain.ErrEmbeddingQuotaExceeded, http.StatusPaymentRequired, codeEmbeddingQuota),
		sentinelHandler(domain.ErrEmbeddingProviderError, http.StatusBadGateway, codeEmbeddingProviderError),
		sentinelHandler(domain.ErrRerankProviderError, http.StatusBadGateway, codeRerankProviderError),
		sentinelHandler(domain.ErrLLMProviderError, http.StatusBadGateway, codeLLMProviderError),
	}
	return s
}

// Router builds the chi router with the standard middleware chain.
func (s *Server) Router(apiKeys []string) chi.Router {
	r := chi.NewRouter()
	r.Use(jsonRecoverer(s.logger))
	r.Use(middleware.RequestID)
	r.Use(wideEventMiddleware(s.logger))
	r.Use(BearerAuthMiddleware(apiKeys))
	r.Use(metrics.Middleware())

	r.Get("/health", s.HealthCheck)
	r.Get("/metrics", s.Metrics)

	r.Route("/api/v1", func(r chi.Router) {
		r.Post("/documents", s.IngestDocument)
		r.Post("/answers", s.CreateAnswer)
		r.Get("/usage", s.GetUsage)
	})

	return r
}

type ingestRequest struct {
	Source  string `json:"source"`
	Title   string `json:"title"`
	Section string `json:"section"`
	Text    string `json:"text"`
}

type ingestResponse struct {
	Source string `json:"source"`
	Chunks int    `json:"chunks"`
	Tokens int    `json:"tokens"`
}

// IngestDocument handles POST /api/v1/documents.
func (s *Server) IngestDocument(w http.ResponseWriter, r *http.Request) {
	var req ingestRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, codeBadRequest, "Invalid request body: "+err.Error())
		return
	}

	if strings.TrimSpace(req.Source) == "" {
		writeError(w, http.StatusBadRequest, codeValidationFailed, "source is required")
		return
	}

	ctx, usage := domain.NewContextWithUsage(r.Context())
	result, err := s.ingest.Ingest(ctx, ingestuc.Request{
		Source:  req.Source,
		Title:   req.Title,
		Section: req.Section,
		Text:    req.Text,
	})
	if err != nil {
		s.handleDomainError(w, err)
		return
	}

	setEmbeddingHeaders(w, usage)

	status := http.StatusCreated
	if result.Chunks == 0 {
		status = http.StatusOK
	}
	writeJSON(w, status, ingestResponse{
		Source: result.Source,
		Chunks: result.Chunks,
		Tokens: result.Tokens,
	})
}

type answerRequest struct {
	Question string `json:"question"`
}

// CreateAnswer handles POST /api/v1/answers.
func (s *Server) CreateAnswer(w http.ResponseWriter, r *http.Request) {
	var req answerRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, codeBadRequest, "Invalid request body: "+err.Error())
		return
	}

	if strings.TrimSpace(req.Question) == "" {
		writeError(w, http.StatusBadRequest, codeValidationFailed, "question is required")
		return
	}

	ctx, usage := domain.NewContextWithUsage(r.Context())
	resp, err := s.answer.Answer(ctx, req.Question)
	if err != nil {
		s.handleDomainError(w, err)
		return
	}

	setEmbeddingHeaders(w, usage)
	writeJSON(w, http.StatusOK, resp)
}

// GetUsage handles GET /api/v1/usage.
func (s *Server) GetUsage(w http.ResponseWriter, r *http.Request) {
	period := usageuc.PeriodMonth
	if p := r.URL.Query().Get("period"); p != "" {
		period = usageuc.Period(p)
	}

	report := s.usage.GetReport(r.Context(), period)
	writeJSON(w, http.StatusOK, report)
}

// HealthCheck handles GET /health.
func (s *Server) HealthCheck(w http.ResponseWriter, r *http.Request) {
	report := s.health.Check(r.Context())

	httpStatus := http.StatusOK
	if report.Status != healthuc.Healthy {
		httpStatus = http.StatusServiceUnavailable
	}

	writeJSON(w, httpStatus, map[string]any{
		"status": report.Status,
		"checks": report.Checks,
	})
}

// Metrics handles GET /metrics.
func (s *Server) Metrics(w http.ResponseWriter, r *http.Request) {
	promhttp.Handler().ServeHTTP(w, r)
}

func setEmbeddingHeaders(w http.ResponseWriter, usage *domain.EmbeddingUsage) {
	if usage != nil && usage.Used {
		w.Header().Set("X-Embedding-Tokens", strconv.Itoa(usage.TotalTokens))
	}
}

type errorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, errorResponse{Code: code, Message: message})
}

// safeDomainMessage returns a sentinel error message for the client without exposing internals.
func safeDomainMessage(err error) string {
	sentinels := []error{
		domain.ErrVectorDimMismatch,
		domain.ErrRateLimited,
		domain.ErrEmbeddingQuotaExceeded,
		domain.ErrEmbeddingProviderError,
		domain.ErrRerankProviderError,
		domain.ErrLLMProviderError,
	}
	for _, s := range sentinels {
		if errors.Is(err, s) {
			return s.Error()
		}
	}
	return "internal error"
}

// sentinelHandler returns an errorHandler that matches a single sentinel error.
func sentinelHandler(sentinel error, status int, code string) errorHandler {
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
	writeError(w, http.StatusInternalServerError, codeInternalError, "internal error")
}
