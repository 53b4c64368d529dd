// Package server handles HTTP endpoints and request routing.
package server

import (
	"context"
	"dadjokes-api/archive"
	"dadjokes-api/pkg/jokes"
	"dadjokes-api/store"
	"log/slog"
	"net/http"
	"time"

	"github.com/felixge/httpsnoop"
	"github.com/gorilla/mux"
)

// Store is the document store behind the joke routes.
type Store interface {
	Load(ctx context.Context) (*jokes.Document, error)
	Save(ctx context.Context, doc *jokes.Document) (*jokes.Document, error)
	Reset(ctx context.Context) (*jokes.Document, error)
	NewItem(title, body, source string) jokes.Item
	UpdateItem(doc *jokes.Document, id string, patch store.Patch) (jokes.Item, error)
	MaxRecords() int
}

// Fetcher supplies a fresh joke for refresh-mode updates.
type Fetcher interface {
	Fetch(ctx context.Context) (jokes.Joke, error)
}

// Poller fetches a joke and stores it.
type Poller interface {
	FetchOnce(ctx context.Context) (*jokes.Item, error)
}

// Archive exposes mirrored snapshots.
type Archive interface {
	List(ctx context.Context) ([]archive.Entry, error)
	Load(ctx context.Context, version int64) (*jokes.Document, error)
}

// Server handles HTTP requests.
type Server struct {
	store   Store
	fetcher Fetcher
	poller  Poller
	archive Archive
	logger  *slog.Logger
	topic   string
	apiKeys []string
}

// Config holds server configuration.
type Config struct {
	Store   Store
	Fetcher Fetcher
	Poller  Poller
	Archive Archive // Optional
	Logger  *slog.Logger
	Topic   string   // Reported by /health
	APIKeys []string // When set, mutating routes require one as a bearer token
}

// New creates a new HTTP server handler.
func New(cfg *Config) *Server {
	return &Server{
		store:   cfg.Store,
		fetcher: cfg.Fetcher,
		poller:  cfg.Poller,
		archive: cfg.Archive,
		logger:  cfg.Logger,
		topic:   cfg.Topic,
		apiKeys: cfg.APIKeys,
	}
}

// Handler returns the router with every route and middleware attached.
func (s *Server) Handler() http.Handler {
	r := mux.NewRouter()
	r.Use(s.accessLog)
	r.NotFoundHandler = http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		s.writeError(w, http.StatusNotFound, "not found")
	})
	r.MethodNotAllowedHandler = http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		s.writeError(w, http.StatusMethodNotAllowed, "method not allowed")
	})

	r.Methods(http.MethodGet).Path("/health").HandlerFunc(s.handleHealth)
	r.Methods(http.MethodGet).Path("/").Handler(s.guard(s.handleFetch))
	r.Methods(http.MethodPost).Path("/jokes").Handler(s.guard(s.handleCreate))
	r.Methods(http.MethodGet).Path("/jokes").HandlerFunc(s.handleList)
	r.Methods(http.MethodGet).Path("/jokes/{id}").HandlerFunc(s.handleGet)
	r.Methods(http.MethodPut).Path("/jokes/{id}").Handler(s.guard(s.handleUpdate))
	r.Methods(http.MethodDelete).Path("/jokes/{id}").Handler(s.guard(s.handleDelete))
	r.Methods(http.MethodPost).Path("/reset").Handler(s.guard(s.handleReset))
	r.Methods(http.MethodGet).Path("/snapshots").HandlerFunc(s.handleSnapshots)
	r.Methods(http.MethodGet).Path("/snapshots/{version:[0-9]+}").HandlerFunc(s.handleSnapshot)
	return r
}

// HTTPServer wraps Handler in an http.Server listening on port.
func (s *Server) HTTPServer(port string) *http.Server {
	return &http.Server{
		Addr:              ":" + port,
		Handler:           s.Handler(),
		ReadTimeout:       10 * time.Second,
		WriteTimeout:      60 * time.Second, // Covers replay, provider fetch and publish
		IdleTimeout:       120 * time.Second,
		ReadHeaderTimeout: 5 * time.Second,
	}
}

func (s *Server) accessLog(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		m := httpsnoop.CaptureMetrics(next, w, r)
		level := slog.LevelInfo
		if m.Code >= http.StatusInternalServerError {
			level = slog.LevelWarn
		}
		s.logger.Log(r.Context(), level, "HTTP request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", m.Code,
			"bytes", m.Written,
			"duration_ms", m.Duration.Milliseconds(),
			"ip", clientIP(r))
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]any{"ok": true, "topic": s.topic})
}
