package api

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog/log"
)

type Server struct {
	handler *Handler
	router  chi.Router
	server  *http.Server
}

func NewServer(handler *Handler, host string, port int) *Server {
	router := chi.NewRouter()
	handler.RegisterRoutes(router)

	server := &http.Server{
		Addr:    fmt.Sprintf("%s:%d", host, port),
		Handler: router,
		// No WriteTimeout: /events holds its connection open.
		ReadHeaderTimeout: 10 * time.Second,
	}

	return &Server{
		handler: handler,
		router:  router,
		server:  server,
	}
}

// Router exposes the mux for tests.
func (s *Server) Router() chi.Router {
	return s.router
}

func (s *Server) Start() error {
	log.Info().Str("addr", s.server.Addr).Msg("[API] Starting server")
	if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

func (s *Server) Stop(ctx context.Context) error {
	return s.server.Shutdown(ctx)
}
