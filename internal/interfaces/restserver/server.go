// Package restserver serves a platform's current quotes over HTTP.
package restserver

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog/log"

	"fxhub/internal/domain"
)

// Source returns the current quote for a rate name without advancing it.
type Source interface {
	Get(name string) (domain.Rate, bool)
}

// RateResponse is the body of GET /api/rates/{rateName}.
type RateResponse struct {
	RateName  string  `json:"rateName"`
	Bid       float64 `json:"bid"`
	Ask       float64 `json:"ask"`
	Timestamp string  `json:"timestamp"`
}

type Server struct {
	source Source
	router *chi.Mux
	server *http.Server
}

func New(addr string, source Source) *Server {
	s := &Server{
		source: source,
		router: chi.NewRouter(),
	}
	s.router.Use(middleware.Recoverer)
	s.router.Get("/api/rates/{rateName}", s.handleRate)

	s.server = &http.Server{
		Addr:              addr,
		Handler:           s.router,
		ReadHeaderTimeout: 5 * time.Second,
		WriteTimeout:      15 * time.Second,
	}
	return s
}

func (s *Server) Handler() http.Handler { return s.router }

// Serve accepts on ln until Shutdown.
func (s *Server) Serve(ln net.Listener) error {
	log.Info().Str("addr", ln.Addr().String()).Msg("rest server listening")
	if err := s.server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *Server) ListenAndServe() error {
	ln, err := net.Listen("tcp", s.server.Addr)
	if err != nil {
		return err
	}
	return s.Serve(ln)
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.server.Shutdown(ctx)
}

func (s *Server) handleRate(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "rateName")
	rate, ok := s.source.Get(name)
	if !ok {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "rate not found: " + name})
		return
	}
	writeJSON(w, http.StatusOK, RateResponse{
		RateName:  name,
		Bid:       rate.Bid,
		Ask:       rate.Ask,
		Timestamp: domain.FormatTimestamp(rate.Timestamp),
	})
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		log.Error().Err(err).Msg("failed to encode response")
	}
}
