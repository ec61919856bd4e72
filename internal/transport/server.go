// Package transport implements the HTTP front door of quotaproxy: it
// accepts client requests, asks the key engine for a (model, key) pair,
// relays the request to the Generative Language API, and feeds the
// outcome back to the engine.
package transport

import (
	"context"
	"net/http"
	"time"

	"golang.org/x/net/http2"
	"golang.org/x/net/http2/h2c"
)

// Server wraps an *http.Server with the fixed timeouts the original
// implementation relied on and an optional h2c (HTTP/2 over cleartext)
// upgrade, since some Gemini client libraries speak HTTP/2 only.
type Server struct {
	httpServer *http.Server
	addr       string
}

// NewServer builds a Server listening on addr. When enableHTTP2 is set,
// the handler is wrapped so clients can negotiate HTTP/2 without TLS;
// TLS termination itself is out of scope for this proxy and is expected
// to happen in front of it, if at all.
func NewServer(addr string, handler http.Handler, enableHTTP2 bool) *Server {
	finalHandler := handler
	if enableHTTP2 {
		h2s := &http2.Server{}
		finalHandler = h2c.NewHandler(handler, h2s)
	}

	return &Server{
		addr: addr,
		httpServer: &http.Server{
			Addr:         addr,
			Handler:      finalHandler,
			ReadTimeout:  10 * time.Second,
			WriteTimeout: 600 * time.Second,
			IdleTimeout:  120 * time.Second,
		},
	}
}

// Addr returns the configured listen address.
func (s *Server) Addr() string { return s.addr }

// ListenAndServe starts the server and blocks until it stops.
func (s *Server) ListenAndServe() error {
	return s.httpServer.ListenAndServe()
}

// Shutdown gracefully stops the server, waiting for in-flight requests
// to finish or ctx to expire.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}
