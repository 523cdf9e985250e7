// Package server provides the HTTP API for Basho.
package server

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/hyperjump/basho/internal/config"
	"github.com/hyperjump/basho/internal/hub"
	"github.com/hyperjump/basho/internal/models"
	"github.com/hyperjump/basho/internal/search"
	"github.com/hyperjump/basho/internal/store"
	"github.com/hyperjump/basho/pkg/utils"
)

// Searcher runs the fast path of a search.
type Searcher interface {
	Search(ctx context.Context, req *models.SearchRequest) (*search.Outcome, error)
}

// JobRunner runs narration jobs and serves websocket subscriptions.
type JobRunner interface {
	hub.SubscribeHandler
	StartJob(requestID string)
	RunSync(ctx context.Context, requestID string) (*models.RequestState, error)
}

// Server is the HTTP server for the Basho API.
type Server struct {
	engine Searcher
	jobs   JobRunner
	store  store.Store
	hub    *hub.Hub
	config *config.Config
	logger *zap.Logger
	server *http.Server
}

// NewServer creates a server with the given dependencies.
func NewServer(
	engine Searcher,
	jobs JobRunner,
	st store.Store,
	h *hub.Hub,
	cfg *config.Config,
	logger *zap.Logger,
) *Server {
	s := &Server{
		engine: engine,
		jobs:   jobs,
		store:  st,
		hub:    h,
		config: cfg,
		logger: utils.OrNop(logger),
	}
	s.server = &http.Server{
		Addr:              fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:           s.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s
}

// Router builds the route table. The websocket route sits outside the timeout and
// compression middleware since it hijacks the connection.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)

	r.Group(func(r chi.Router) {
		timeout := s.config.Server.RequestTimeout
		if timeout <= 0 {
			timeout = 60 * time.Second
		}
		r.Use(middleware.Timeout(timeout))
		r.Use(middleware.Compress(5))

		r.Post("/api/v1/search", s.handleSearch)
		r.Get("/api/v1/requests/{id}", s.handleGetRequest)
		r.Get("/health", s.handleHealth)
		r.Handle("/metrics", promhttp.Handler())
	})

	r.Get("/ws", s.handleWS)
	return r
}

// Start starts the HTTP server and blocks until it stops. It returns nil after Stop.
func (s *Server) Start() error {
	s.logger.Info("starting server", zap.String("addr", s.server.Addr))
	if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

// Stop gracefully shuts down the server.
func (s *Server) Stop(ctx context.Context) error {
	return s.server.Shutdown(ctx)
}
