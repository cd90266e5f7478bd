package server

import (
	"log/slog"
	"net/http"

	"sales-insights/internal/handlers"
	"sales-insights/internal/services"
	"sales-insights/internal/store"
)

type Server struct {
	mux         *http.ServeMux
	logger      *slog.Logger
	apiHandlers *handlers.APIHandlers
}

func NewServer(st *store.Store, engine *services.Insights, logger *slog.Logger, maxUploadSize int64) *Server {
	s := &Server{
		mux:         http.NewServeMux(),
		logger:      logger,
		apiHandlers: handlers.NewAPIHandlers(st, engine, logger, maxUploadSize),
	}
	s.setupRoutes()
	return s
}

func (s *Server) setupRoutes() {
	s.mux.HandleFunc("GET /health", s.apiHandlers.HandleHealth)
	s.mux.HandleFunc("GET /admin/stats", s.apiHandlers.HandleStats)

	// Aggregation endpoints take a FilterSpec body; grouping keys ride on
	// query parameters.
	s.mux.HandleFunc("POST /api/kpis", s.apiHandlers.HandleKPIs)
	s.mux.HandleFunc("POST /api/series", s.apiHandlers.HandleSeries)
	s.mux.HandleFunc("POST /api/breakdown", s.apiHandlers.HandleBreakdown)
	s.mux.HandleFunc("POST /api/anomalies", s.apiHandlers.HandleAnomalies)
	s.mux.HandleFunc("POST /api/recommendations", s.apiHandlers.HandleRecommendations)
	s.mux.HandleFunc("POST /api/chat", s.apiHandlers.HandleChat)

	// Dataset lifecycle.
	s.mux.HandleFunc("GET /api/filters", s.apiHandlers.HandleFilters)
	s.mux.HandleFunc("POST /api/upload", s.apiHandlers.HandleUpload)
	s.mux.HandleFunc("POST /api/refresh", s.apiHandlers.HandleRefresh)
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.mux.ServeHTTP(w, r)
}
