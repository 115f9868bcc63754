package api

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"go.uber.org/zap"
)

const (
	defaultSearchLimit = 10
	maxSearchLimit     = 100
)

func writeText(w http.ResponseWriter, status int, body string) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(status)
	_, _ = w.Write([]byte(body))
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func (s *Server) handleRoot(w http.ResponseWriter, r *http.Request) {
	writeText(w, http.StatusOK, "Hello Hono!")
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeText(w, http.StatusOK, "OK")
}

// handleInit pages the whole catalog into the queue before answering.
func (s *Server) handleInit(w http.ResponseWriter, r *http.Request) {
	if !s.crawling.TryLock() {
		writeText(w, http.StatusConflict, "pagination already running")
		return
	}
	defer s.crawling.Unlock()

	stats, err := s.paginator.Run(r.Context())
	if err != nil {
		s.logger.Error("Pagination failed", zap.Error(err))
		writeText(w, http.StatusInternalServerError, err.Error())
		return
	}

	s.logger.Info("Pagination complete",
		zap.Int("pages", stats.Pages),
		zap.Int("records", stats.Records))
	writeText(w, http.StatusOK, "QUEUE")
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	if s.queue == nil {
		writeText(w, http.StatusServiceUnavailable, "queue not configured")
		return
	}
	stats, err := s.queue.Stats()
	if err != nil {
		writeText(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

func (s *Server) handleSearch(w http.ResponseWriter, r *http.Request) {
	if s.embedder == nil || s.store == nil {
		writeText(w, http.StatusServiceUnavailable, "search not configured")
		return
	}

	q := strings.TrimSpace(r.URL.Query().Get("q"))
	if q == "" {
		writeText(w, http.StatusBadRequest, "missing q parameter")
		return
	}

	limit := defaultSearchLimit
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 || n > maxSearchLimit {
			writeText(w, http.StatusBadRequest, fmt.Sprintf("limit must be between 1 and %d", maxSearchLimit))
			return
		}
		limit = n
	}

	vectors, err := s.embedder.GetEmbeddings(r.Context(), []string{q})
	if err != nil || len(vectors) != 1 {
		s.logger.Error("Failed to embed query", zap.Error(err))
		writeText(w, http.StatusBadGateway, "failed to embed query")
		return
	}

	results, err := s.store.Search(r.Context(), vectors[0], limit)
	if err != nil {
		s.logger.Error("Failed to search vectors", zap.Error(err))
		writeText(w, http.StatusInternalServerError, "search failed")
		return
	}
	if results == nil {
		writeJSON(w, http.StatusOK, []any{})
		return
	}
	writeJSON(w, http.StatusOK, results)
}
