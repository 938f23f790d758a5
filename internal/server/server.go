// Package server exposes the question-answering service over a small JSON API.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"autoqa/internal/crawler"
	"autoqa/internal/domain"
	"autoqa/internal/index"
	"autoqa/internal/logger"
	"autoqa/internal/service"
	"autoqa/internal/threshold"
)

const (
	defaultLogLimit = 50
	maxLogLimit     = 500
	maxSearchK      = 50
)

// Service is the subset of the RAG service the API drives.
type Service interface {
	Answer(ctx context.Context, query string) (domain.Result, error)
	Search(ctx context.Context, query string, topK int) ([]domain.Passage, string, error)
	RebuildIndex(ctx context.Context) (index.Stats, error)
	Stats(ctx context.Context) (service.Stats, error)
	Interactions(ctx context.Context, limit int) ([]domain.Interaction, error)
	Nudge(delta float64) threshold.Outcome
	StartCrawl(ctx context.Context, req crawler.Request) (crawler.Status, error)
	StopCrawl(ctx context.Context) (crawler.Status, error)
	CrawlStatus(ctx context.Context) (crawler.Status, error)
}

// Server handles HTTP requests.
type Server struct {
	svc          Service
	maxBodyBytes int64
	mux          *http.ServeMux
}

// New creates a server. maxBodyBytes bounds JSON request bodies; zero disables the limit.
func New(svc Service, maxBodyBytes int64) *Server {
	s := &Server{svc: svc, maxBodyBytes: maxBodyBytes, mux: http.NewServeMux()}
	s.routes()
	return s
}

func (s *Server) routes() {
	s.mux.HandleFunc("POST /api/ask", s.handleAsk)
	s.mux.HandleFunc("GET /search", s.handleSearch)
	s.mux.HandleFunc("POST /api/crawl_start", s.handleCrawlStart)
	s.mux.HandleFunc("POST /api/crawl_stop", s.handleCrawlStop)
	s.mux.HandleFunc("GET /api/crawl_status", s.handleCrawlStatus)
	s.mux.HandleFunc("POST /api/rebuild", s.handleRebuild)
	s.mux.HandleFunc("GET /api/status", s.handleStatus)
	s.mux.HandleFunc("GET /api/logs", s.handleLogs)
	s.mux.HandleFunc("POST /api/evolve", s.handleEvolve)
	s.mux.HandleFunc("GET /health", s.handleHealth)
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
	s.mux.ServeHTTP(rec, r)
	logger.Debug("%s %s %d %dB %s", r.Method, r.URL.Path, rec.status, rec.bytes, time.Since(start))
}

// ListenAndServe serves on addr until ctx is cancelled, then shuts down
// gracefully within shutdownTimeout.
func ListenAndServe(ctx context.Context, addr string, handler http.Handler, shutdownTimeout time.Duration) error {
	httpServer := &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       2 * time.Minute,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("listening on %s", addr)
		errCh <- httpServer.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		return err
	}
	if err := <-errCh; !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

type askRequest struct {
	Question string `json:"question"`
}

func (s *Server) handleAsk(w http.ResponseWriter, r *http.Request) {
	var req askRequest
	if err := decodeJSON(w, r, &req, s.maxBodyBytes); err != nil {
		return
	}
	res, err := s.svc.Answer(r.Context(), req.Question)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

type searchResponse struct {
	Query    string           `json:"query"`
	Backend  string           `json:"backend"`
	Passages []domain.Passage `json:"passages"`
}

func (s *Server) handleSearch(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query().Get("q")
	k, err := intParam(r, "k", 0)
	if err != nil || k < 0 {
		writeError(w, http.StatusBadRequest, "k must be a non-negative integer")
		return
	}
	if k > maxSearchK {
		k = maxSearchK
	}
	passages, backend, err := s.svc.Search(r.Context(), q, k)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	if passages == nil {
		passages = []domain.Passage{}
	}
	writeJSON(w, http.StatusOK, searchResponse{Query: q, Backend: backend, Passages: passages})
}

func (s *Server) handleCrawlStart(w http.ResponseWriter, r *http.Request) {
	var req crawler.Request
	if err := decodeJSON(w, r, &req, s.maxBodyBytes); err != nil {
		return
	}
	st, err := s.svc.StartCrawl(r.Context(), req)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, st)
}

func (s *Server) handleCrawlStop(w http.ResponseWriter, r *http.Request) {
	st, err := s.svc.StopCrawl(r.Context())
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, st)
}

func (s *Server) handleCrawlStatus(w http.ResponseWriter, r *http.Request) {
	st, err := s.svc.CrawlStatus(r.Context())
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, st)
}

func (s *Server) handleRebuild(w http.ResponseWriter, r *http.Request) {
	stats, err := s.svc.RebuildIndex(r.Context())
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	stats, err := s.svc.Stats(r.Context())
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

func (s *Server) handleLogs(w http.ResponseWriter, r *http.Request) {
	limit, err := intParam(r, "limit", defaultLogLimit)
	if err != nil || limit < 0 {
		writeError(w, http.StatusBadRequest, "limit must be a non-negative integer")
		return
	}
	if limit > maxLogLimit {
		limit = maxLogLimit
	}
	list, err := s.svc.Interactions(r.Context(), limit)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	if list == nil {
		list = []domain.Interaction{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"interactions": list})
}

type evolveResponse struct {
	Before float64 `json:"before"`
	After  float64 `json:"after"`
}

func (s *Server) handleEvolve(w http.ResponseWriter, r *http.Request) {
	out := s.svc.Nudge(service.EvolveStep)
	writeJSON(w, http.StatusOK, evolveResponse{Before: out.Before, After: out.After})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"status":  "healthy",
		"service": "autoqa",
	})
}

func intParam(r *http.Request, name string, def int) (int, error) {
	raw := strings.TrimSpace(r.URL.Query().Get(name))
	if raw == "" {
		return def, nil
	}
	return strconv.Atoi(raw)
}

// writeServiceError maps domain errors to HTTP statuses.
func writeServiceError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, domain.ErrEmptyQuery),
		errors.Is(err, domain.ErrInvalidInput),
		errors.Is(err, domain.ErrInvalidURL):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, domain.ErrCrawlInProgress):
		writeError(w, http.StatusConflict, err.Error())
	case errors.Is(err, domain.ErrNotFound):
		writeError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, crawler.ErrNotRunning):
		writeError(w, http.StatusServiceUnavailable, err.Error())
	default:
		logger.Error("request failed: %v", err)
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}

type statusRecorder struct {
	http.ResponseWriter
	status int
	bytes  int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

func (r *statusRecorder) Write(p []byte) (int, error) {
	n, err := r.ResponseWriter.Write(p)
	r.bytes += n
	return n, err
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

func decodeJSON(w http.ResponseWriter, r *http.Request, dst any, maxBytes int64) error {
	if maxBytes > 0 {
		r.Body = http.MaxBytesReader(w, r.Body, maxBytes)
	}
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		var syntaxError *json.SyntaxError
		var typeError *json.UnmarshalTypeError
		var tooLarge *http.MaxBytesError
		switch {
		case errors.As(err, &syntaxError):
			writeError(w, http.StatusBadRequest, "malformed JSON")
		case errors.As(err, &typeError):
			writeError(w, http.StatusBadRequest, "invalid JSON type")
		case errors.As(err, &tooLarge):
			writeError(w, http.StatusRequestEntityTooLarge, "request body too large")
		default:
			writeError(w, http.StatusBadRequest, "invalid request body")
		}
		return err
	}
	if err := dec.Decode(&struct{}{}); err != io.EOF {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return errors.New("extra data")
	}
	return nil
}
