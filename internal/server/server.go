// Package server provides the HTTP API for Margot: read-only navigation of
// the archive plus the operator endpoints over the open-document ledger.
package server

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/margot-dms/margot/internal/archive"
	"github.com/margot-dms/margot/internal/assembly"
	"github.com/margot-dms/margot/internal/config"
	"github.com/margot-dms/margot/internal/export"
	"go.uber.org/zap"
)

// Server is the HTTP server for the Margot API.
type Server struct {
	engine   *assembly.Engine
	archive  *archive.Archive
	exporter *export.Service
	config   *config.ServerConfig
	logger   *zap.Logger
	server   *http.Server
}

// NewServer creates a server with the given dependencies.
func NewServer(
	engine *assembly.Engine,
	arc *archive.Archive,
	exporter *export.Service,
	cfg *config.ServerConfig,
	logger *zap.Logger,
) *Server {
	return &Server{
		engine:   engine,
		archive:  arc,
		exporter: exporter,
		config:   cfg,
		logger:   logger,
	}
}

// Router builds the chi router with all routes mounted.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(60 * time.Second))

	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/senders", s.handleListSenders)
		r.Route("/senders/{sender}/documents", func(r chi.Router) {
			r.Get("/", s.handleListDocuments)
			r.Get("/{id}", s.handleGetDocument)
			r.Get("/{id}/markdown", s.handleGetMarkdown)
			r.Get("/{id}/originals", s.handleListOriginals)
			r.Get("/{id}/previews", s.handleListPreviews)
			r.Get("/{id}/logs", s.handleListLogs)
			r.Get("/{id}/file/{subfolder}/{filename}", s.handleGetFile)
		})
		r.Get("/open", s.handleListOpen)
		r.Post("/open/{id}/complete", s.handleForceComplete)
		r.Post("/open/{id}/merge", s.handleMergeExternal)
		r.Post("/flush", s.handleFlush)
		r.Get("/export/index.xlsx", s.handleExportIndex)
	})
	r.Get("/health", s.handleHealth)
	return r
}

// Start starts the HTTP server and blocks until it stops.
func (s *Server) Start() error {
	addr := fmt.Sprintf("%s:%d", s.config.Host, s.config.Port)
	s.server = &http.Server{
		Addr:    addr,
		Handler: s.Router(),
	}
	s.logger.Info("Starting server", zap.String("addr", addr))
	return s.server.ListenAndServe()
}

// Stop gracefully shuts down the server.
func (s *Server) Stop(ctx context.Context) error {
	if s.server != nil {
		return s.server.Shutdown(ctx)
	}
	return nil
}
