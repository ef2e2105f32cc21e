// Package admin exposes health, metrics and cache inspection over HTTP.
package admin

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"sort"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog/log"

	"fxhub/internal/application/port"
	"fxhub/internal/domain"
)

const (
	defaultHistoryLimit = 50
	maxHistoryLimit     = 1000
)

// StatusReporter reports per-platform connectivity.
type StatusReporter interface {
	Status() map[string]bool
}

type Deps struct {
	Status StatusReporter
	Cache  port.RateCache
	// optional
	Repository port.Repository
	Metrics    http.Handler
	WebSocket  http.Handler
}

type Server struct {
	deps   Deps
	router *chi.Mux
	server *http.Server
}

func New(addr string, deps Deps) *Server {
	s := &Server{deps: deps, router: chi.NewRouter()}
	s.router.Use(middleware.Recoverer)
	s.router.Use(middleware.RequestID)
	s.router.Use(loggingMiddleware)
	s.setupRoutes()

	s.server = &http.Server{
		Addr:              addr,
		Handler:           s.router,
		ReadHeaderTimeout: 5 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
	return s
}

func (s *Server) setupRoutes() {
	s.router.Get("/healthz", s.handleHealth)
	if s.deps.Metrics != nil {
		s.router.Handle("/metrics", s.deps.Metrics)
	}
	if s.deps.WebSocket != nil {
		s.router.Handle("/ws", s.deps.WebSocket)
	}

	s.router.Route("/api/rates", func(r chi.Router) {
		r.Get("/raw/{platform}/{symbol}", s.handleRaw)
		r.Get("/raw/{symbol}", s.handleRawAll)
		r.Get("/derived/{symbol}", s.handleDerived)
		if s.deps.Repository != nil {
			r.Get("/history/{key}", s.handleHistory)
		}
	})
}

func (s *Server) Handler() http.Handler { return s.router }

func (s *Server) ListenAndServe() error {
	ln, err := net.Listen("tcp", s.server.Addr)
	if err != nil {
		return err
	}
	log.Info().Str("addr", ln.Addr().String()).Msg("admin server listening")
	if err := s.server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.server.Shutdown(ctx)
}

type healthResponse struct {
	Status    string          `json:"status"`
	Platforms map[string]bool `json:"platforms"`
}

// handleHealth answers 200 while at least one platform is connected.
func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	platforms := s.deps.Status.Status()
	up := 0
	for _, ok := range platforms {
		if ok {
			up++
		}
	}

	resp := healthResponse{Status: "ok", Platforms: platforms}
	status := http.StatusOK
	switch {
	case up == 0:
		resp.Status = "down"
		status = http.StatusServiceUnavailable
	case up < len(platforms):
		resp.Status = "degraded"
	}
	writeJSON(w, status, resp)
}

func (s *Server) handleRaw(w http.ResponseWriter, r *http.Request) {
	platform, symbol := chi.URLParam(r, "platform"), chi.URLParam(r, "symbol")
	rate, ok, err := s.deps.Cache.GetRaw(r.Context(), platform, symbol)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if !ok {
		writeError(w, http.StatusNotFound, "no rate for "+domain.RawKey(platform, symbol))
		return
	}
	writeJSON(w, http.StatusOK, rate)
}

func (s *Server) handleRawAll(w http.ResponseWriter, r *http.Request) {
	symbol := chi.URLParam(r, "symbol")
	byPlatform, err := s.deps.Cache.GetAllRawForSymbol(r.Context(), symbol)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	out := make([]domain.Rate, 0, len(byPlatform))
	for _, rate := range byPlatform {
		out = append(out, rate)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Platform < out[j].Platform })
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleDerived(w http.ResponseWriter, r *http.Request) {
	symbol := chi.URLParam(r, "symbol")
	rate, ok, err := s.deps.Cache.GetDerived(r.Context(), symbol)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if !ok {
		writeError(w, http.StatusNotFound, "no rate for "+symbol)
		return
	}
	writeJSON(w, http.StatusOK, rate)
}

func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	limit := defaultHistoryLimit
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			writeError(w, http.StatusBadRequest, "invalid limit")
			return
		}
		limit = min(n, maxHistoryLimit)
	}

	rates, err := s.deps.Repository.RecentRates(r.Context(), chi.URLParam(r, "key"), limit)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if rates == nil {
		rates = []domain.Rate{}
	}
	writeJSON(w, http.StatusOK, rates)
}

func loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		log.Debug().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", ww.Status()).
			Dur("duration", time.Since(start)).
			Str("request_id", middleware.GetReqID(r.Context())).
			Msg("http request")
	})
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		log.Error().Err(err).Msg("failed to encode response")
	}
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}
