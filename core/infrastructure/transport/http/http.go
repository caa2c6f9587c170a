package http

import (
	"context"
	"errors"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	httpmiddleware "github.com/hyperterse/hypercluster/core/infrastructure/transport/http/middleware"
	"github.com/hyperterse/hypercluster/core/logger"
)

// Server is the request layer of a worker: a chi router served on a
// listener the caller has already bound.
type Server struct {
	router *chi.Mux
	server *http.Server
}

// NewServer creates the router with the middleware stack shared by every
// route. worker labels the request metrics of this process.
func NewServer(worker string) *Server {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(httpmiddleware.RequestLog)
	r.Use(middleware.Recoverer)
	r.Use(httpmiddleware.Metrics(worker))

	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-CSRF-Token"},
		ExposedHeaders:   []string{"Link"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	return &Server{
		router: r,
		server: &http.Server{
			Handler:     r,
			ReadTimeout: 15 * time.Second,
			// No write timeout: websocket connections are long lived.
			WriteTimeout: 0,
			IdleTimeout:  60 * time.Second,
		},
	}
}

// Router returns the chi router
func (s *Server) Router() *chi.Mux {
	return s.router
}

// Serve serves on ln until Stop is called. It returns nil after a clean
// shutdown, including one that happened before Serve was reached.
func (s *Server) Serve(ln net.Listener) error {
	if err := s.server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Stop stops the HTTP server gracefully
func (s *Server) Stop() error {
	log := logger.New("http")

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	if err := s.server.Shutdown(ctx); err != nil {
		log.Errorf("Error shutting down HTTP server: %v", err)
		if closeErr := s.server.Close(); closeErr != nil {
			log.Errorf("Error force closing HTTP server: %v", closeErr)
		}
		return err
	}

	log.Debugf("HTTP server stopped")
	return nil
}
