// Package api exposes the HTTP status interface for the crawler.
package api

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/regscan/crawler/internal/crawl"
	"github.com/regscan/crawler/internal/metrics"
)

// Server wires HTTP handlers to the stores.
type Server struct {
	router      chi.Router
	checkpoints crawl.CheckpointStore
	ledger      crawl.UnitLedger
	entities    crawl.EntityStore
	kind        crawl.CrawlKind
	logger      *zap.Logger
}

// NewServer constructs a Server with middleware and routes.
func NewServer(
	checkpoints crawl.CheckpointStore,
	ledger crawl.UnitLedger,
	entities crawl.EntityStore,
	kind crawl.CrawlKind,
	logger *zap.Logger,
) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Server{
		checkpoints: checkpoints,
		ledger:      ledger,
		entities:    entities,
		kind:        kind,
		logger:      logger,
	}

	r := chi.NewRouter()
	r.Use(requestIDMiddleware)
	r.Use(s.loggingMiddleware)
	r.Use(s.recoverMiddleware)
	r.Use(timeoutMiddleware(30 * time.Second))

	r.Get("/healthz", s.healthz)
	r.Get("/readyz", s.readyz)
	r.Method(http.MethodGet, "/metrics", metrics.Handler())

	r.Route("/v1", func(r chi.Router) {
		r.Get("/status", s.status)
		r.Get("/summary", s.summary)
	})

	s.router = r
	return s
}

// Handler returns the router for use with http.Server.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) healthz(w http.ResponseWriter, _ *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) readyz(w http.ResponseWriter, r *http.Request) {
	// The checkpoint read exercises the document store connection.
	if _, _, err := s.checkpoints.ReadCursor(r.Context(), s.kind); err != nil {
		s.writeError(w, http.StatusServiceUnavailable, "store not reachable")
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}

type statusResponse struct {
	Kind        crawl.CrawlKind `json:"kind"`
	Cursor      crawl.Cursor    `json:"cursor"`
	LastUnitRef string          `json:"last_unit_ref,omitempty"`
	UpdatedAt   *time.Time      `json:"updated_at,omitempty"`
	Processing  int64           `json:"processing"`
	Completed   int64           `json:"completed"`
	Failed      int64           `json:"failed"`
}

func (s *Server) status(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	resp := statusResponse{Kind: s.kind}

	cp, ok, err := s.checkpoints.ReadCursor(ctx, s.kind)
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, "read checkpoint failed")
		return
	}
	if ok {
		resp.Cursor = cp.Cursor
		resp.LastUnitRef = cp.LastUnitRef
		resp.UpdatedAt = &cp.UpdatedAt
	}

	counts := map[crawl.UnitStatus]*int64{
		crawl.StatusProcessing: &resp.Processing,
		crawl.StatusCompleted:  &resp.Completed,
		crawl.StatusFailed:     &resp.Failed,
	}
	for status, dst := range counts {
		n, err := s.ledger.CountByStatus(ctx, status)
		if err != nil {
			s.writeError(w, http.StatusInternalServerError, "count ledger failed")
			return
		}
		*dst = n
	}
	s.writeJSON(w, http.StatusOK, resp)
}

func (s *Server) summary(w http.ResponseWriter, r *http.Request) {
	sum, err := s.entities.Summary(r.Context())
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, "summarize entities failed")
		return
	}
	s.writeJSON(w, http.StatusOK, sum)
}

func requestIDMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		reqID := uuid.NewString()
		ctx := context.WithValue(r.Context(), requestIDKey{}, reqID)
		w.Header().Set("X-Request-ID", reqID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := &responseWriter{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(ww, r)
		s.logger.Info("request completed",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", ww.status),
			zap.Int64("duration_ms", time.Since(start).Milliseconds()),
		)
	})
}

func (s *Server) recoverMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if rec := recover(); rec != nil {
				s.logger.Error("panic recovered", zap.Any("error", rec))
				s.writeError(w, http.StatusInternalServerError, "internal server error")
			}
		}()
		next.ServeHTTP(w, r)
	})
}

func timeoutMiddleware(d time.Duration) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.TimeoutHandler(next, d, "request timed out")
	}
}

type responseWriter struct {
	http.ResponseWriter
	status int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.status = code
	rw.ResponseWriter.WriteHeader(code)
}

type requestIDKey struct{}

func (s *Server) writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		s.logger.Error("write JSON failed", zap.Error(err))
	}
}

func (s *Server) writeError(w http.ResponseWriter, status int, msg string) {
	s.writeJSON(w, status, map[string]string{"error": msg})
}
