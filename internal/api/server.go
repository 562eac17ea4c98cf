package api

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/flowsider/etfflow/internal/cache"
)

// Server is the thin consumer surface over the flows cache: JSON listing
// with filters, CSV export, and a manual refresh hook for the dashboard's
// "force refresh" button.
type Server struct {
	router *chi.Mux
	cache  *cache.Cache
	logger *slog.Logger
}

func NewServer(cache *cache.Cache, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Server{
		router: chi.NewRouter(),
		cache:  cache,
		logger: logger,
	}

	s.setupRoutes()
	return s
}

func (s *Server) setupRoutes() {
	s.router.Use(middleware.Logger)
	s.router.Use(middleware.Recoverer)
	s.router.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Content-Type"},
	}))

	s.router.Get("/health", s.handleHealth)
	s.router.Get("/flows", s.handleListFlows)
	s.router.Get("/flows.csv", s.handleFlowsCSV)
	s.router.Get("/flows/instruments", s.handleListInstruments)
	s.router.Post("/flows/refresh", s.handleRefresh)
	s.router.Get("/stats", s.handleStats)
}

func (s *Server) Router() http.Handler {
	return s.router
}

func respondJSON(w http.ResponseWriter, status int, payload interface{}) {
	response, _ := json.Marshal(payload)
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	w.Write(response)
}

func respondError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, map[string]string{"error": message})
}
