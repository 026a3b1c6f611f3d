// Package dashboard assembles the portfolio dashboard and serves it over HTTP.
package dashboard

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/sirupsen/logrus"

	"github.com/eddiefleurent/finance_dashboard/internal/models"
	"github.com/eddiefleurent/finance_dashboard/internal/storage"
)

// maxBodyBytes caps request bodies.
const maxBodyBytes = 1 << 20

// Server is the dashboard HTTP API.
type Server struct {
	router       *chi.Mux
	server       *http.Server
	storage      storage.Interface
	orchestrator *Orchestrator
	market       MarketData
	logger       *logrus.Logger
	addr         string
	authToken    string
}

// Config holds listener settings.
type Config struct {
	Addr      string
	AuthToken string
}

// NewServer builds the router.
func NewServer(cfg Config, st storage.Interface, orch *Orchestrator, md MarketData, logger *logrus.Logger) *Server {
	s := &Server{
		router:       chi.NewRouter(),
		storage:      st,
		orchestrator: orch,
		market:       md,
		logger:       logger,
		addr:         cfg.Addr,
		authToken:    cfg.AuthToken,
	}

	s.setupRoutes()
	return s
}

// Handler exposes the router, mainly for tests.
func (s *Server) Handler() http.Handler { return s.router }

func (s *Server) setupRoutes() {
	s.router.Use(middleware.RequestID)
	s.router.Use(middleware.Logger)
	s.router.Use(middleware.Recoverer)
	s.router.Use(middleware.Timeout(60 * time.Second))

	if s.authToken != "" {
		s.router.Use(s.authMiddleware)
	}

	s.router.Get("/health", s.handleHealth)

	s.router.Route("/api", func(r chi.Router) {
		r.Get("/dashboard", s.handleDashboard)
		r.Post("/refresh", s.handleRefresh)

		r.Get("/watchlist", s.handleGetWatchlist)
		r.Post("/watchlist", s.handleAddWatchlist)
		r.Delete("/watchlist/{ticker}", s.handleRemoveWatchlist)

		r.Get("/positions", s.handleListPositions)
		r.Post("/positions", s.handleCreatePosition)
		r.Get("/positions/{id}", s.handleGetPosition)
		r.Put("/positions/{id}", s.handleUpdatePosition)
		r.Delete("/positions/{id}", s.handleDeletePosition)

		r.Put("/earnings/{ticker}", s.handleSetEarnings)
	})
}

func (s *Server) authMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/health" {
			next.ServeHTTP(w, r)
			return
		}

		token := r.Header.Get("X-Auth-Token")
		if token == "" {
			token = r.URL.Query().Get("token")
		}

		if token != s.authToken {
			writeError(w, http.StatusUnauthorized, "unauthorized")
			return
		}

		next.ServeHTTP(w, r)
	})
}

// Start blocks serving HTTP until Shutdown.
func (s *Server) Start() error {
	s.server = &http.Server{
		Addr:              s.addr,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	s.logger.Infof("Starting dashboard server on %s", s.addr)
	if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown stops the listener gracefully.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.server != nil {
		return s.server.Shutdown(ctx)
	}
	return nil
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	health := map[string]any{
		"status":    "healthy",
		"timestamp": time.Now().Unix(),
	}
	if at, err := s.storage.GetLastRefresh(r.Context()); err == nil && !at.IsZero() {
		health["last_refresh"] = at
	}
	s.writeJSON(w, http.StatusOK, health)
}

func (s *Server) handleDashboard(w http.ResponseWriter, r *http.Request) {
	force := r.URL.Query().Get("refresh") == "true"
	s.serveDashboard(w, r, force)
}

func (s *Server) handleRefresh(w http.ResponseWriter, r *http.Request) {
	s.serveDashboard(w, r, true)
}

func (s *Server) serveDashboard(w http.ResponseWriter, r *http.Request, force bool) {
	data, err := s.orchestrator.Build(r.Context(), force)
	if err != nil {
		s.logger.WithError(err).Error("Failed to build dashboard")
		writeError(w, http.StatusInternalServerError, "failed to build dashboard")
		return
	}
	s.writeJSON(w, http.StatusOK, data)
}

// ============ Watchlist ============

type watchlistRequest struct {
	Tickers []string `json:"tickers"`
}

func (s *Server) handleGetWatchlist(w http.ResponseWriter, r *http.Request) {
	list, err := s.storage.Watchlist(r.Context())
	if err != nil {
		s.logger.WithError(err).Error("Failed to read watchlist")
		writeError(w, http.StatusInternalServerError, "failed to read watchlist")
		return
	}
	s.writeJSON(w, http.StatusOK, map[string][]string{"tickers": list})
}

// handleAddWatchlist rejects the whole request if any ticker is malformed or
// unknown to the data provider.
func (s *Server) handleAddWatchlist(w http.ResponseWriter, r *http.Request) {
	var req watchlistRequest
	if !s.decode(w, r, &req) {
		return
	}
	if len(req.Tickers) == 0 {
		writeError(w, http.StatusBadRequest, "tickers is required")
		return
	}

	tickers := make([]string, 0, len(req.Tickers))
	for _, t := range req.Tickers {
		n, err := storage.NormalizeTicker(t)
		if err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		if !s.market.ValidateTicker(r.Context(), n) {
			writeError(w, http.StatusUnprocessableEntity, "unknown ticker "+n)
			return
		}
		tickers = append(tickers, n)
	}

	if err := s.storage.AddToWatchlist(r.Context(), tickers...); err != nil {
		s.logger.WithError(err).Error("Failed to update watchlist")
		writeError(w, http.StatusInternalServerError, "failed to update watchlist")
		return
	}
	s.handleGetWatchlist(w, r)
}

func (s *Server) handleRemoveWatchlist(w http.ResponseWriter, r *http.Request) {
	if err := s.storage.RemoveFromWatchlist(r.Context(), chi.URLParam(r, "ticker")); err != nil {
		s.storageError(w, err, "Failed to update watchlist")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// ============ Positions ============

func (s *Server) handleListPositions(w http.ResponseWriter, r *http.Request) {
	positions, err := s.storage.ListPositions(r.Context())
	if err != nil {
		s.logger.WithError(err).Error("Failed to list positions")
		writeError(w, http.StatusInternalServerError, "failed to list positions")
		return
	}
	s.writeJSON(w, http.StatusOK, positions)
}

func (s *Server) handleCreatePosition(w http.ResponseWriter, r *http.Request) {
	var pos models.Position
	if !s.decode(w, r, &pos) {
		return
	}
	created, err := s.storage.CreatePosition(r.Context(), &pos)
	if err != nil {
		s.storageError(w, err, "Failed to create position")
		return
	}
	s.writeJSON(w, http.StatusCreated, created)
}

func (s *Server) handleGetPosition(w http.ResponseWriter, r *http.Request) {
	pos, err := s.storage.GetPosition(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.storageError(w, err, "Failed to load position")
		return
	}
	s.writeJSON(w, http.StatusOK, pos)
}

func (s *Server) handleUpdatePosition(w http.ResponseWriter, r *http.Request) {
	var pos models.Position
	if !s.decode(w, r, &pos) {
		return
	}
	pos.ID = chi.URLParam(r, "id")
	if err := s.storage.UpdatePosition(r.Context(), &pos); err != nil {
		s.storageError(w, err, "Failed to update position")
		return
	}
	s.writeJSON(w, http.StatusOK, &pos)
}

func (s *Server) handleDeletePosition(w http.ResponseWriter, r *http.Request) {
	if err := s.storage.DeletePosition(r.Context(), chi.URLParam(r, "id")); err != nil {
		s.storageError(w, err, "Failed to delete position")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// ============ Earnings ============

type earningsRequest struct {
	Date string `json:"date"`
}

// handleSetEarnings records the next earnings date; an empty date clears it.
func (s *Server) handleSetEarnings(w http.ResponseWriter, r *http.Request) {
	var req earningsRequest
	if !s.decode(w, r, &req) {
		return
	}
	var date models.Date
	if d := strings.TrimSpace(req.Date); d != "" {
		parsed, err := models.ParseDate(d)
		if err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		date = parsed
	}
	ticker := chi.URLParam(r, "ticker")
	if err := s.storage.SetEarningsDate(r.Context(), ticker, date); err != nil {
		s.storageError(w, err, "Failed to save earnings date")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// ============ Helpers ============

func (s *Server) decode(w http.ResponseWriter, r *http.Request, v any) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return false
	}
	return true
}

// storageError maps storage errors to status codes.
func (s *Server) storageError(w http.ResponseWriter, err error, msg string) {
	switch {
	case errors.Is(err, storage.ErrPositionNotFound):
		writeError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, storage.ErrInvalidTicker):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, storage.ErrInvalidPosition):
		writeError(w, http.StatusBadRequest, err.Error())
	default:
		s.logger.WithError(err).Error(msg)
		writeError(w, http.StatusInternalServerError, strings.ToLower(msg))
	}
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.WithError(err).Error("Failed to encode response")
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": msg})
}
