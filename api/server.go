package api

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"sync"
	"time"

	"gameindex/crawler"
	"gameindex/pkg/embedding"
	"gameindex/queue"
	"gameindex/repository"

	"github.com/gorilla/mux"
	"go.uber.org/zap"
)

// Paginator runs one full catalog pass.
type Paginator interface {
	Run(ctx context.Context) (crawler.Stats, error)
}

type QueueStats interface {
	Stats() (queue.Stats, error)
}

// Server represents the API server
type Server struct {
	router    *mux.Router
	paginator Paginator
	queue     QueueStats
	embedder  embedding.Client
	store     repository.VectorRepo
	logger    *zap.Logger
	port      int

	// held while /init is paging the catalog
	crawling sync.Mutex
}

// NewServer wires the routes. embedder and store may be nil, in which case
// /search answers 503.
func NewServer(paginator Paginator, q QueueStats, embedder embedding.Client, store repository.VectorRepo, port int, logger *zap.Logger) *Server {
	s := &Server{
		router:    mux.NewRouter(),
		paginator: paginator,
		queue:     q,
		embedder:  embedder,
		store:     store,
		logger:    logger,
		port:      port,
	}

	s.router.Use(s.logRequests)
	s.router.HandleFunc("/", s.handleRoot).Methods(http.MethodGet)
	s.router.HandleFunc("/init", s.handleInit).Methods(http.MethodGet)
	s.router.HandleFunc("/health", s.handleHealth).Methods(http.MethodGet)
	s.router.HandleFunc("/stats", s.handleStats).Methods(http.MethodGet)
	s.router.HandleFunc("/search", s.handleSearch).Methods(http.MethodGet)
	return s
}

func (s *Server) Handler() http.Handler {
	return s.router
}

// Start serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) Start(ctx context.Context) error {
	srv := &http.Server{
		Addr:              ":" + strconv.Itoa(s.port),
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("Starting API server", zap.Int("port", s.port))
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	}
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

func (s *Server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)
		s.logger.Info("HTTP request",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", rec.status),
			zap.Duration("elapsed", time.Since(start)))
	})
}
