// Package server provides the HTTP API for Kiroku.
package server

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/kazane-dev/kiroku/internal/config"
	"github.com/kazane-dev/kiroku/internal/keyword"
	"github.com/kazane-dev/kiroku/internal/models"
	"github.com/kazane-dev/kiroku/internal/upload"
	"go.uber.org/zap"
)

// Ingestor is the write path the server drives.
type Ingestor interface {
	Ingest(ctx context.Context, sessionID string, files []*models.RawFile, fields map[string]string) (*models.IngestionSummary, error)
	DeleteFile(ctx context.Context, fileID string) (int, error)
}

// Answerer is the RAG query path.
type Answerer interface {
	Ask(ctx context.Context, userID, question string, topK int) (*models.Answer, error)
}

// Searcher is keyword search over indexed chunks.
type Searcher interface {
	Search(ctx context.Context, userID, query string, limit int) ([]*keyword.Result, error)
}

// Server is the HTTP server for the Kiroku API.
type Server struct {
	receiver *upload.Receiver
	arena    *upload.Arena
	ingestor Ingestor
	answerer Answerer
	searcher Searcher
	blobRoot string
	config   *config.ServerConfig
	logger   *zap.Logger
	server   *http.Server
}

// NewServer creates a server with the given dependencies. blobRoot is the
// directory served under /files/.
func NewServer(
	receiver *upload.Receiver,
	arena *upload.Arena,
	ingestor Ingestor,
	answerer Answerer,
	searcher Searcher,
	blobRoot string,
	cfg *config.ServerConfig,
	logger *zap.Logger,
) *Server {
	return &Server{
		receiver: receiver,
		arena:    arena,
		ingestor: ingestor,
		answerer: answerer,
		searcher: searcher,
		blobRoot: blobRoot,
		config:   cfg,
		logger:   logger,
	}
}

// Router builds the chi router with all routes and middleware.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(5 * time.Minute))

	r.Post("/api/v1/knowledge/upload", s.handleUpload)
	r.Get("/api/v1/uploads/{sessionID}", s.handleUploadProgress)
	r.Post("/api/v1/ask", s.handleAsk)
	r.Get("/api/v1/knowledge/search", s.handleSearch)
	r.Delete("/api/v1/knowledge/files/{fileID}", s.handleDeleteFile)
	r.Get("/health", s.handleHealth)

	if s.blobRoot != "" {
		fs := http.StripPrefix("/files/", http.FileServer(http.Dir(s.blobRoot)))
		r.Get("/files/*", fs.ServeHTTP)
	}
	return r
}

// Start starts the HTTP server and blocks until it stops.
func (s *Server) Start() error {
	addr := fmt.Sprintf("%s:%d", s.config.Host, s.config.Port)
	s.server = &http.Server{
		Addr:    addr,
		Handler: s.Router(),
	}
	s.logger.Info("starting server", zap.String("addr", addr))
	return s.server.ListenAndServe()
}

// Stop gracefully shuts down the server.
func (s *Server) Stop(ctx context.Context) error {
	if s.server != nil {
		return s.server.Shutdown(ctx)
	}
	return nil
}
