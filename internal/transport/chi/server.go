// Package chi exposes the HTTP API: document ingestion, retrieval-augmented
// queries, collection management, health, and metrics.
package chi

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/kailas-cloud/ragdex/internal/domain"
	healthuc "github.com/kailas-cloud/ragdex/internal/usecase/health"
	ingestuc "github.com/kailas-cloud/ragdex/internal/usecase/ingest"
	queryuc "github.com/kailas-cloud/ragdex/internal/usecase/query"
)

const maxBatchSize = 100

// Error codes returned in the JSON error body.
const (
	codeBadRequest         = "bad_request"
	codeValidationFailed   = "validation_failed"
	codeCollectionNotFound = "collection_not_found"
	codeDimensionMismatch  = "dimension_mismatch"
	codeRateLimited        = "rate_limited"
	codeServiceUnavailable = "service_unavailable"
	codeGenerationFailed   = "generation_failed"
	codeInternalError      = "internal_error"
)

type errorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// CollectionManager reads and deletes collections.
type CollectionManager interface {
	Info(ctx context.Context, name string) (domain.CollectionInfo, error)
	Delete(ctx context.Context, name string) error
}

// errorHandler tries to handle a domain error. Returns true if handled.
type errorHandler func(w http.ResponseWriter, err error, msg string) bool

// Server holds the HTTP handlers.
type Server struct {
	ingest        *ingestuc.Service
	query         *queryuc.Service
	collections   CollectionManager
	health        *healthuc.Service
	logger        *zap.Logger
	errorHandlers []errorHandler
}

// NewServer creates an HTTP API server.
func NewServer(
	ingest *ingestuc.Service,
	query *queryuc.Service,
	collections CollectionManager,
	health *healthuc.Service,
	logger *zap.Logger,
) *Server {
	s := &Server{
		ingest:      ingest,
		query:       query,
		collections: collections,
		health:      health,
		logger:      logger,
	}
	s.errorHandlers = []errorHandler{
		rateLimitedHandler,
		dimensionMismatchHandler,
		sentinelHandler(domain.ErrNotFound, http.StatusNotFound, codeCollectionNotFound),
		sentinelHandler(domain.ErrCircuitOpen, http.StatusServiceUnavailable, codeServiceUnavailable),
		sentinelHandler(domain.ErrQueueCleared, http.StatusServiceUnavailable, codeServiceUnavailable),
		sentinelHandler(domain.ErrStoreUnavailable, http.StatusServiceUnavailable, codeServiceUnavailable),
		sentinelHandler(domain.ErrGenerationFailed, http.StatusBadGateway, codeGenerationFailed),
	}
	return s
}

// Routes mounts all endpoints on the router.
func (s *Server) Routes(r chi.Router) {
	r.Route("/api/v1/collections/{collection}", func(r chi.Router) {
		r.Get("/", s.getCollection)
		r.Delete("/", s.deleteCollection)
		r.Put("/documents", s.upsertDocuments)
		r.Post("/query", s.queryCollection)
	})
	r.Get("/healthz", s.healthCheck)
	r.Get("/metrics", s.metrics)
}

type documentItem struct {
	ID       string         `json:"id,omitempty"`
	Text     string         `json:"text"`
	Metadata map[string]any `json:"metadata,omitempty"`
}

type upsertDocumentsRequest struct {
	Documents []documentItem `json:"documents"`
}

type upsertDocumentsResponse struct {
	IDs             []string `json:"ids"`
	EmbeddingTokens int      `json:"embedding_tokens"`
}

// upsertDocuments handles PUT /api/v1/collections/{collection}/documents.
func (s *Server) upsertDocuments(w http.ResponseWriter, r *http.Request) {
	var req upsertDocumentsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, codeBadRequest, "Invalid request body: "+err.Error())
		return
	}
	if len(req.Documents) == 0 || len(req.Documents) > maxBatchSize {
		writeError(w, http.StatusBadRequest, codeValidationFailed,
			"documents count must be between 1 and "+strconv.Itoa(maxBatchSize))
		return
	}

	items := make([]ingestuc.Item, len(req.Documents))
	for i, d := range req.Documents {
		items[i] = ingestuc.Item{ID: d.ID, Text: d.Text, Metadata: d.Metadata}
	}

	receipt, err := s.ingest.Ingest(r.Context(), chi.URLParam(r, "collection"), items)
	if err != nil {
		s.handleDomainError(w, err)
		return
	}

	w.Header().Set("X-Embedding-Tokens", strconv.Itoa(receipt.TotalTokens))
	writeJSON(w, http.StatusOK, upsertDocumentsResponse{
		IDs:             receipt.IDs,
		EmbeddingTokens: receipt.TotalTokens,
	})
}

type queryRequest struct {
	Query    string         `json:"query"`
	TopK     int            `json:"top_k,omitempty"`
	Filter   map[string]any `json:"filter,omitempty"`
	Generate bool           `json:"generate,omitempty"`
}

// queryCollection handles POST /api/v1/collections/{collection}/query.
func (s *Server) queryCollection(w http.ResponseWriter, r *http.Request) {
	var req queryRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, codeBadRequest, "Invalid request body: "+err.Error())
		return
	}
	if req.Query == "" {
		writeError(w, http.StatusBadRequest, codeValidationFailed, "query is required")
		return
	}
	if req.TopK < 0 {
		writeError(w, http.StatusBadRequest, codeValidationFailed, "top_k must not be negative")
		return
	}

	resp, err := s.query.Query(r.Context(), queryuc.Request{
		Collection: chi.URLParam(r, "collection"),
		ClientKey:  clientKey(r),
		Query:      req.Query,
		TopK:       req.TopK,
		Filter:     req.Filter,
		Generate:   req.Generate,
	})
	if err != nil {
		s.handleDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, resp)
}

// getCollection handles GET /api/v1/collections/{collection}.
func (s *Server) getCollection(w http.ResponseWriter, r *http.Request) {
	info, err := s.collections.Info(r.Context(), chi.URLParam(r, "collection"))
	if err != nil {
		s.handleDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, info)
}

// deleteCollection handles DELETE /api/v1/collections/{collection}.
func (s *Server) deleteCollection(w http.ResponseWriter, r *http.Request) {
	if err := s.collections.Delete(r.Context(), chi.URLParam(r, "collection")); err != nil {
		s.handleDomainError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// healthCheck handles GET /healthz.
func (s *Server) healthCheck(w http.ResponseWriter, r *http.Request) {
	status := s.health.Check(r.Context())
	httpStatus := http.StatusOK
	if !status.Healthy {
		httpStatus = http.StatusServiceUnavailable
	}
	writeJSON(w, httpStatus, status)
}

// metrics handles GET /metrics.
func (s *Server) metrics(w http.ResponseWriter, r *http.Request) {
	promhttp.Handler().ServeHTTP(w, r)
}

// clientKey identifies the caller for rate limiting: the bearer token when
// present, otherwise the remote IP.
func clientKey(r *http.Request) string {
	if token := bearerToken(r); token != "" {
		return token
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
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

// safeDomainMessage returns a sentinel error message for the client without exposing internals.
func safeDomainMessage(err error) string {
	sentinels := []error{
		domain.ErrNotFound,
		domain.ErrDimensionMismatch,
		domain.ErrRateLimited,
		domain.ErrCircuitOpen,
		domain.ErrQueueCleared,
		domain.ErrStoreUnavailable,
		domain.ErrGenerationFailed,
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

// rateLimitedHandler handles ErrRateLimited with a Retry-After header.
func rateLimitedHandler(w http.ResponseWriter, err error, msg string) bool {
	if !errors.Is(err, domain.ErrRateLimited) {
		return false
	}
	var rle *domain.RateLimitedError
	if errors.As(err, &rle) && !rle.ResetTime.IsZero() {
		secs := int(time.Until(rle.ResetTime).Seconds())
		if secs < 1 {
			secs = 1
		}
		w.Header().Set("Retry-After", strconv.Itoa(secs))
	}
	writeError(w, http.StatusTooManyRequests, codeRateLimited, msg)
	return true
}

// dimensionMismatchHandler surfaces the expected and actual dimensions.
func dimensionMismatchHandler(w http.ResponseWriter, err error, msg string) bool {
	if !errors.Is(err, domain.ErrDimensionMismatch) {
		return false
	}
	var dme *domain.DimensionMismatchError
	if errors.As(err, &dme) {
		msg = dme.Error()
	}
	writeError(w, http.StatusBadRequest, codeDimensionMismatch, msg)
	return true
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
