package server

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"pagetext/internal/ratelimit"
	"pagetext/internal/servicetoken"
	"pagetext/internal/util"
	"pagetext/pkg/store"
	"pagetext/services/extract/internal/app"
)

// Config wires required dependencies for the HTTP server. A nil Verifier
// disables internal auth and a nil Limiter disables rate limiting.
type Config struct {
	App            *app.App
	Verifier       *servicetoken.Verifier
	Limiter        *ratelimit.FixedWindowLimiter
	TrustedProxies *util.TrustedProxies
}

// Server exposes HTTP endpoints for the extract service.
type Server struct {
	app     *app.App
	auth    *servicetoken.Verifier
	limiter *ratelimit.FixedWindowLimiter
	proxies *util.TrustedProxies
	mux     *http.ServeMux
}

func New(cfg Config) *Server {
	s := &Server{
		app:     cfg.App,
		auth:    cfg.Verifier,
		limiter: cfg.Limiter,
		proxies: cfg.TrustedProxies,
		mux:     http.NewServeMux(),
	}
	s.routes()
	return s
}

// Router returns the configured handler.
func (s *Server) Router() http.Handler {
	return util.WithRequestID(util.WithRequestLog("extract", util.WithSecurityHeaders(s.mux)))
}

func (s *Server) routes() {
	s.mux.HandleFunc("GET /healthz", s.handleHealth)
	s.mux.Handle("POST /extract/jobs", s.internal(s.rateLimited(s.handleCreateJob)))
	s.mux.Handle("GET /extract/jobs/{id}", s.internal(http.HandlerFunc(s.handleGetJob)))
	s.mux.Handle("GET /extract/documents", s.internal(http.HandlerFunc(s.handleListDocuments)))
	s.mux.Handle("GET /extract/documents/{id}", s.internal(http.HandlerFunc(s.handleGetDocument)))
	s.mux.Handle("DELETE /extract/documents/{id}", s.internal(http.HandlerFunc(s.handleDeleteDocument)))
}

func (s *Server) internal(next http.Handler) http.Handler {
	return servicetoken.Middleware(s.auth, next)
}

func (s *Server) rateLimited(next http.HandlerFunc) http.Handler {
	if s.limiter == nil {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		key := r.URL.Path + "|" + util.ClientIP(r, s.proxies)
		ok, err := s.limiter.Allow(r.Context(), key)
		if err != nil {
			util.LoggerFromContext(r.Context()).Warn("rate_limit_unavailable", "err", err)
		}
		if !ok {
			retry := int(s.limiter.RetryAfter().Round(time.Second) / time.Second)
			if retry < 1 {
				retry = 1
			}
			w.Header().Set("Retry-After", strconv.Itoa(retry))
			writeError(w, http.StatusTooManyRequests, "too many requests")
			return
		}
		next(w, r)
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

type extractRequest struct {
	Locator string `json:"locator"`
}

func (s *Server) handleCreateJob(w http.ResponseWriter, r *http.Request) {
	var req extractRequest
	if err := json.NewDecoder(io.LimitReader(r.Body, 1<<20)).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	job, err := s.app.Enqueue(r.Context(), req.Locator)
	if err != nil {
		if errors.Is(err, app.ErrInvalidLocator) {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		util.LoggerFromContext(r.Context()).Error("enqueue_failed", "err", err)
		writeError(w, http.StatusServiceUnavailable, "queue unavailable")
		return
	}
	writeJSON(w, http.StatusCreated, job)
}

func (s *Server) handleGetJob(w http.ResponseWriter, r *http.Request) {
	job, ok, err := s.app.GetJob(r.Context(), r.PathValue("id"))
	if err != nil {
		util.LoggerFromContext(r.Context()).Error("get_job_failed", "err", err)
		writeError(w, http.StatusServiceUnavailable, "queue unavailable")
		return
	}
	if !ok {
		writeError(w, http.StatusNotFound, "job not found")
		return
	}
	writeJSON(w, http.StatusOK, job)
}

func (s *Server) handleListDocuments(w http.ResponseWriter, r *http.Request) {
	limit := 50
	if raw := strings.TrimSpace(r.URL.Query().Get("limit")); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 || n > 500 {
			writeError(w, http.StatusBadRequest, "limit must be between 1 and 500")
			return
		}
		limit = n
	}
	docs, err := s.app.ListDocuments(limit)
	if err != nil {
		util.LoggerFromContext(r.Context()).Error("list_documents_failed", "err", err)
		writeError(w, http.StatusInternalServerError, "failed to list documents")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": docs, "count": len(docs)})
}

func (s *Server) handleGetDocument(w http.ResponseWriter, r *http.Request) {
	doc, ok, err := s.app.GetDocument(r.Context(), r.PathValue("id"))
	if err != nil {
		util.LoggerFromContext(r.Context()).Error("get_document_failed", "err", err)
		writeError(w, http.StatusInternalServerError, "failed to load document")
		return
	}
	if !ok {
		writeError(w, http.StatusNotFound, "document not found")
		return
	}
	writeJSON(w, http.StatusOK, doc)
}

func (s *Server) handleDeleteDocument(w http.ResponseWriter, r *http.Request) {
	err := s.app.DeleteDocument(r.Context(), r.PathValue("id"))
	switch {
	case errors.Is(err, store.ErrNotFound):
		writeError(w, http.StatusNotFound, "document not found")
	case err != nil:
		util.LoggerFromContext(r.Context()).Error("delete_document_failed", "err", err)
		writeError(w, http.StatusInternalServerError, "failed to delete document")
	default:
		w.WriteHeader(http.StatusNoContent)
	}
}

type errorResponse struct {
	Error     string `json:"error"`
	RequestID string `json:"requestId,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, errorResponse{
		Error:     msg,
		RequestID: strings.TrimSpace(w.Header().Get(util.RequestIDHeader)),
	})
}
