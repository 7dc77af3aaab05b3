// Package server provides the HTTP boundary of the bot backend.
package server

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/format37/panthera/internal/history"
	"github.com/format37/panthera/internal/menu"
	"github.com/format37/panthera/internal/models"
	"github.com/format37/panthera/internal/storage"
)

// Completer is the single call the handler needs from the LLM client.
type Completer interface {
	Complete(ctx context.Context, model string, turns []models.Turn) (string, error)
}

// Options carry the per-deployment handler settings.
type Options struct {
	// DefaultModel is used when a session has no model selected.
	DefaultModel string
	// SystemPrompt overrides the assembler's default persona preamble
	// when non-empty.
	SystemPrompt string
}

type Server struct {
	store     storage.Storage
	assembler *history.Assembler
	completer Completer
	menu      *menu.Menu
	opts      Options
	logger    *zap.Logger
	router    chi.Router
}

func New(store storage.Storage, assembler *history.Assembler, completer Completer, m *menu.Menu, opts Options, logger *zap.Logger) *Server {
	s := &Server{
		store:     store,
		assembler: assembler,
		completer: completer,
		menu:      m,
		opts:      opts,
		logger:    logger,
	}

	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(s.requestLogger)
	r.Get("/test", s.handleTest)
	r.Post("/message", s.handleMessage)
	s.router = r
	return s
}

// ServeHTTP implements http.Handler so the server can be exercised with
// httptest without a live listener.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

func (s *Server) handleTest(w http.ResponseWriter, _ *http.Request) {
	JSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestID := uuid.New().String()
		start := time.Now()
		next.ServeHTTP(w, r)
		s.logger.Info("Request handled",
			zap.String("request_id", requestID),
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Duration("duration", time.Since(start)))
	})
}

// JSON writes a JSON response with the given status code.
func JSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		http.Error(w, `{"error": "failed to encode response"}`, http.StatusInternalServerError)
	}
}

// Error writes a JSON error response.
func Error(w http.ResponseWriter, status int, message string) {
	JSON(w, status, map[string]string{"error": message})
}
