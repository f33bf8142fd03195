// Package api serves the read-only status surface. Every endpoint is a pure
// projection of the state store; nothing here mutates reconciliation state.
package api

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"

	mw "github.com/edvin/quadops/internal/api/middleware"
	"github.com/edvin/quadops/internal/api/response"
	"github.com/edvin/quadops/internal/model"
	"github.com/edvin/quadops/internal/state"
)

type Server struct {
	router chi.Router
	logger zerolog.Logger
	store  *state.Store
}

func NewServer(logger zerolog.Logger, store *state.Store) *Server {
	s := &Server{
		router: chi.NewRouter(),
		logger: logger.With().Str("component", "api").Logger(),
		store:  store,
	}
	s.setupMiddleware()
	s.setupRoutes()
	return s
}

func (s *Server) setupMiddleware() {
	s.router.Use(middleware.RequestID)
	s.router.Use(middleware.RealIP)
	s.router.Use(mw.RequestLogger(s.logger))
	s.router.Use(middleware.Recoverer)
}

func (s *Server) setupRoutes() {
	s.router.Get("/", s.handleRoot)
	s.router.Get("/healthz", s.handleHealthz)

	s.router.Route("/api/v1", func(r chi.Router) {
		r.Get("/applications", s.handleListApplications)
		r.Get("/applications/{appName}", s.handleApplicationStatus)
		r.Get("/applications/{appName}/deployments", s.handleDeploymentHistory)
		r.Get("/applications/{appName}/errors", s.handleErrors)
		r.Get("/applications/{appName}/services/{serviceName}/health", s.handleHealthHistory)
	})
}

func (s *Server) handleRoot(w http.ResponseWriter, _ *http.Request) {
	response.WriteJSON(w, http.StatusOK, map[string]string{
		"service": "quadops",
		"status":  "ok",
	})
}

func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()

	if err := s.store.Ping(ctx); err != nil {
		response.WriteJSON(w, http.StatusServiceUnavailable, map[string]string{"state_db": err.Error()})
		return
	}
	response.WriteJSON(w, http.StatusOK, map[string]string{"state_db": "ok"})
}

func (s *Server) handleListApplications(w http.ResponseWriter, r *http.Request) {
	statuses, err := s.store.AllApplicationStatuses(r.Context())
	if err != nil {
		response.WriteError(w, http.StatusInternalServerError, err.Error())
		return
	}
	response.WriteJSON(w, http.StatusOK, statuses)
}

func (s *Server) handleApplicationStatus(w http.ResponseWriter, r *http.Request) {
	appName := chi.URLParam(r, "appName")

	summary, err := s.store.AppStatusSummary(r.Context(), appName)
	if err != nil {
		response.WriteError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if summary.OverallStatus == model.AppNotFound {
		response.WriteError(w, http.StatusNotFound, "application not found")
		return
	}
	response.WriteJSON(w, http.StatusOK, summary)
}

func (s *Server) handleDeploymentHistory(w http.ResponseWriter, r *http.Request) {
	appName := chi.URLParam(r, "appName")

	deployments, err := s.store.DeploymentHistory(r.Context(), appName, queryLimit(r, 20))
	if err != nil {
		response.WriteError(w, http.StatusInternalServerError, err.Error())
		return
	}
	response.WriteJSON(w, http.StatusOK, deployments)
}

func (s *Server) handleErrors(w http.ResponseWriter, r *http.Request) {
	appName := chi.URLParam(r, "appName")

	records, err := s.store.UnresolvedErrors(r.Context(), appName, queryLimit(r, 50))
	if err != nil {
		response.WriteError(w, http.StatusInternalServerError, err.Error())
		return
	}
	response.WriteJSON(w, http.StatusOK, records)
}

func (s *Server) handleHealthHistory(w http.ResponseWriter, r *http.Request) {
	appName := chi.URLParam(r, "appName")
	serviceName := chi.URLParam(r, "serviceName")

	checks, err := s.store.HealthHistory(r.Context(), appName, serviceName, queryLimit(r, 20))
	if err != nil {
		response.WriteError(w, http.StatusInternalServerError, err.Error())
		return
	}
	response.WriteJSON(w, http.StatusOK, checks)
}

func queryLimit(r *http.Request, fallback int) int {
	raw := r.URL.Query().Get("limit")
	if raw == "" {
		return fallback
	}
	limit, err := strconv.Atoi(raw)
	if err != nil || limit < 1 || limit > 500 {
		return fallback
	}
	return limit
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

// NewHTTPServer wraps the router in a server with sane timeouts.
func NewHTTPServer(addr string, s *Server) *http.Server {
	return &http.Server{
		Addr:              addr,
		Handler:           s,
		ReadHeaderTimeout: 5 * time.Second,
	}
}
