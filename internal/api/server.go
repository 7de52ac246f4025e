package api

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"github.com/marcus/prep/internal/backend"
	"github.com/marcus/prep/internal/metrics"
	"github.com/marcus/prep/internal/models"
)

// Store is the backend the server exposes, plus the change log it serves
// to long-polling clients.
type Store interface {
	backend.Backend
	ChangesSince(ctx context.Context, after int64, limit int) ([]models.ChangeEvent, error)
	LastSeq(ctx context.Context) (int64, error)
	// Changed returns a channel closed at the next commit.
	Changed() <-chan struct{}
	Ping(ctx context.Context) error
}

// Server is the HTTP API server for prep-server.
type Server struct {
	config      Config
	http        *http.Server
	store       Store
	metrics     *metrics.Metrics
	rateLimiter *RateLimiter
	cancel      context.CancelFunc
}

// NewServer creates a new Server with the given config and store.
func NewServer(cfg Config, store Store, m *metrics.Metrics) (*Server, error) {
	if cfg.ChangesPage <= 0 {
		cfg.ChangesPage = 500
	}
	s := &Server{
		config:      cfg,
		store:       store,
		metrics:     m,
		rateLimiter: NewRateLimiter(),
	}

	s.http = &http.Server{
		Addr:         cfg.ListenAddr,
		Handler:      s.Handler(),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: cfg.LongPollMax + 30*time.Second,
		IdleTimeout:  120 * time.Second,
	}

	return s, nil
}

// Start begins listening for HTTP requests (non-blocking).
func (s *Server) Start() error {
	ln, err := net.Listen("tcp", s.config.ListenAddr)
	if err != nil {
		return fmt.Errorf("listen: %w", err)
	}

	go func() {
		if err := s.http.Serve(ln); err != nil && err != http.ErrServerClosed {
			slog.Error("http server", "err", err)
		}
	}()

	ctx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel
	go func() {
		defer func() {
			if r := recover(); r != nil {
				slog.Error("housekeeping panic", "panic", r)
			}
		}()
		ticker := time.NewTicker(time.Minute)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				s.rateLimiter.cleanup()
				if seq, err := s.store.LastSeq(ctx); err == nil {
					s.metrics.SetChangeLogSeq(seq)
				}
			}
		}
	}()

	return nil
}

// Shutdown gracefully stops the server.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.cancel != nil {
		s.cancel()
	}
	return s.http.Shutdown(ctx)
}

// Handler builds the HTTP handler with all routes and middleware.
func (s *Server) Handler() http.Handler {
	r := mux.NewRouter()
	r.Use(metricsMiddleware(s.metrics))

	r.HandleFunc("/healthz", s.handleHealth).Methods(http.MethodGet)
	r.Handle("/metrics", s.metrics.Handler()).Methods(http.MethodGet)

	// v1 routes live on the root router so a method mismatch reaches
	// MethodNotAllowedHandler; a subrouter answers it with a bare 404.
	r.HandleFunc("/v1/dataset", s.handleDataset).Methods(http.MethodGet)

	r.HandleFunc("/v1/dishes", s.handleCreateDish).Methods(http.MethodPost)
	r.HandleFunc("/v1/dishes/{id}", s.handleUpdateDish).Methods(http.MethodPatch)
	r.HandleFunc("/v1/dishes/{id}", s.handleDeleteDish).Methods(http.MethodDelete)

	r.HandleFunc("/v1/items", s.handleCreateItem).Methods(http.MethodPost)
	r.HandleFunc("/v1/items/{id}", s.handleUpdateItem).Methods(http.MethodPatch)
	r.HandleFunc("/v1/items/{id}", s.handleDeleteItem).Methods(http.MethodDelete)
	r.HandleFunc("/v1/items/{id}/move", s.handleMoveItem).Methods(http.MethodPost)
	r.HandleFunc("/v1/items/{id}/recipe", s.handleSetRecipe).Methods(http.MethodPut)

	r.HandleFunc("/v1/changes", s.handleChanges).Methods(http.MethodGet)

	r.NotFoundHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeError(w, http.StatusNotFound, ErrCodeNotFound, "no such route")
	})
	r.MethodNotAllowedHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeError(w, http.StatusMethodNotAllowed, ErrCodeBadRequest, "method not allowed")
	})

	return chain(r,
		recoveryMiddleware,
		requestIDMiddleware,
		loggerMiddleware,
		loggingMiddleware,
		corsMiddleware(newCORSPolicy(s.config.CORSAllowedOrigins)),
		maxBytesMiddleware(1<<20),
		writeRateLimitMiddleware(s.rateLimiter, s.config.RateLimitWrite, s.config.TrustedProxies),
	)
}

// handleHealth returns a health check response, pinging the database.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if err := s.store.Ping(r.Context()); err != nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "error", "detail": "db unreachable"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// handleDataset returns every dish and item along with the change log
// position the snapshot corresponds to.
func (s *Server) handleDataset(w http.ResponseWriter, r *http.Request) {
	seq, err := s.store.LastSeq(r.Context())
	if err != nil {
		writeBackendError(w, r, err)
		return
	}
	ds, err := s.store.FetchAll(r.Context())
	if err != nil {
		writeBackendError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, DatasetResponse{Dataset: ds, LastSeq: seq})
}
