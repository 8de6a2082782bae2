package server

import (
	"log/slog"
	"net/http"

	"retail-insights/internal/handlers"
	"retail-insights/internal/services"
)

type Server struct {
	analytics   *services.Analytics
	mux         *http.ServeMux
	logger      *slog.Logger
	apiHandlers *handlers.APIHandlers
	sseHandlers *handlers.SSEHandlers
}

type TemplateHandlers struct {
	Dashboard http.HandlerFunc
}

func NewServer(analytics *services.Analytics, logger *slog.Logger, maxUpload int64, templateHandlers *TemplateHandlers) *Server {
	s := &Server{
		analytics:   analytics,
		mux:         http.NewServeMux(),
		logger:      logger,
		apiHandlers: handlers.NewAPIHandlers(analytics, logger, maxUpload),
		sseHandlers: handlers.NewSSEHandlers(analytics, logger),
	}
	s.setupRoutes(templateHandlers)
	return s
}

func (s *Server) setupRoutes(templateHandlers *TemplateHandlers) {
	// Dashboard routes
	s.mux.HandleFunc("GET /{$}", templateHandlers.Dashboard)
	s.mux.HandleFunc("GET /health", s.apiHandlers.HandleHealth)
	s.mux.HandleFunc("GET /admin/stats", s.apiHandlers.HandleStats)

	// REST API endpoints
	s.mux.HandleFunc("GET /api/views", s.apiHandlers.HandleCatalog)
	s.mux.HandleFunc("POST /api/datasets", s.apiHandlers.HandleUpload)
	s.mux.HandleFunc("GET /api/datasets", s.apiHandlers.HandleListDatasets)
	s.mux.HandleFunc("GET /api/datasets/{id}", s.apiHandlers.HandleGetDataset)
	s.mux.HandleFunc("DELETE /api/datasets/{id}", s.apiHandlers.HandleDeleteDataset)
	s.mux.HandleFunc("GET /api/datasets/{id}/views/{name}", s.apiHandlers.HandleView)
	s.mux.HandleFunc("POST /api/datasets/{id}/filter", s.apiHandlers.HandleFilter)

	// Datastar SSE endpoints
	s.mux.HandleFunc("GET /sse/datasets/{id}/refresh", s.sseHandlers.HandleRefresh)
	s.mux.HandleFunc("POST /sse/datasets/{id}/filter", s.sseHandlers.HandleFilter)
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.mux.ServeHTTP(w, r)
}
