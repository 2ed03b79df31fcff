package server

import (
	"context"
	"errors"
	"net"
	"net/http"
	"time"

	"github.com/charmbracelet/log"
)

// Middleware wraps an http.Handler and returns a new http.Handler with additional behavior.
// Common middleware includes logging and panic recovery.
type Middleware func(http.Handler) http.Handler

// Handler defines the interface for HTTP request handlers that own their route patterns.
type Handler interface {
	http.Handler      // ServeHTTP handles the HTTP request and writes the response
	Routes() []string // Routes returns the path patterns this handler serves
}

// Router defines the interface for HTTP routing and middleware management.
// Implementations register handlers, apply middleware, and configure the HTTP server.
type Router interface {
	Use(middleware ...Middleware)                     // Use adds middleware to the router's middleware stack
	Handle(method, path string, handler http.Handler) // Handle registers a handler for the specified method and path
	Handler(handler Handler)                          // Handler registers a custom Handler implementation
	ServeHTTP(w http.ResponseWriter, r *http.Request) // ServeHTTP implements http.Handler for the entire router
}

// Server runs the dashboard's HTTP listener.
type Server struct {
	http   *http.Server
	logger *log.Logger
	cancel context.CancelFunc
}

// New creates a Server listening on addr.
//
// Request contexts derive from a base context that Shutdown cancels, so long-lived event streams end
// instead of holding the shutdown open.
func New(addr string, handler http.Handler, logger *log.Logger) *Server {
	base, cancel := context.WithCancel(context.Background())
	return &Server{
		http: &http.Server{
			Addr:              addr,
			Handler:           handler,
			ReadHeaderTimeout: 10 * time.Second,
			BaseContext:       func(net.Listener) context.Context { return base },
		},
		logger: logger,
		cancel: cancel,
	}
}

// Serve accepts connections on l until Shutdown is called.
func (s *Server) Serve(l net.Listener) error {
	s.logger.Info("listening", "addr", l.Addr().String())
	if err := s.http.Serve(l); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// ListenAndServe binds the configured address and serves until Shutdown is called.
func (s *Server) ListenAndServe() error {
	l, err := net.Listen("tcp", s.http.Addr)
	if err != nil {
		return err
	}
	return s.Serve(l)
}

// Shutdown stops accepting requests and waits for active ones until ctx ends.
func (s *Server) Shutdown(ctx context.Context) error {
	s.cancel()
	return s.http.Shutdown(ctx)
}
